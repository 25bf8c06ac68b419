package eventstudy

import (
	"io"
	"log/slog"
	"math"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// tradingDays returns n consecutive weekdays starting at start
func tradingDays(start time.Time, n int) []time.Time {
	dates := make([]time.Time, 0, n)
	for d := start; len(dates) < n; d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		dates = append(dates, d)
	}
	return dates
}

// smallConfig keeps panels short enough to reason about by hand
func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.Widths = []int{1, 3}
	cfg.EstimationPeriod = 20
	cfg.GapPeriod = 3
	cfg.MinObservations = 10
	cfg.Concurrency = 2
	return cfg
}

// marketSeries is a deterministic, non-constant market return path
func marketSeries(i int) float64 {
	return 0.01*math.Sin(float64(i)*0.7) + 0.002*float64(i%5-2)
}

// firmPanel builds returns for one firm on the given dates with r = alpha + beta*m + noise(i)
func firmPanel(firm string, dates []time.Time, alpha, beta float64, noise func(i int) float64) []DailyReturn {
	out := make([]DailyReturn, len(dates))
	for i, d := range dates {
		m := marketSeries(i)
		r := alpha + beta*m
		if noise != nil {
			r += noise(i)
		}
		out[i] = DailyReturn{FirmID: firm, Date: d, Return: Some(r), Market: Some(m)}
	}
	return out
}
