package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"eventstudy/internal/config"
	"eventstudy/internal/eventstudy"
	"eventstudy/internal/services"
)

func TestApplyOverrides(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.DatabasePath = "from-config.db"
	cfg.Schema.Detect = true

	opts := options{outDir: "results", dbPath: "", detect: false, metricsAddr: ":9464"}
	applyOverrides(cfg, opts, map[string]bool{"out": true, "metrics-addr": true})

	assert.Equal(t, "results", cfg.Paths.OutputDir)
	assert.Equal(t, ":9464", cfg.Observability.MetricsAddr)
	// unset flags leave configuration alone
	assert.Equal(t, "from-config.db", cfg.Storage.DatabasePath)
	assert.True(t, cfg.Schema.Detect)

	applyOverrides(cfg, opts, map[string]bool{"db": true, "detect-schema": true})
	assert.Empty(t, cfg.Storage.DatabasePath)
	assert.False(t, cfg.Schema.Detect)
}

func TestPrintReport(t *testing.T) {
	report := &services.RunReport{
		RunID: "run-7",
		Result: &eventstudy.Result{
			Summary: []eventstudy.SummaryRow{
				{Method: eventstudy.MarketModel, Width: 1, N: 12, Mean: eventstudy.Some(0.0123), TStat: eventstudy.Some(2.5)},
			},
			Diagnostics: eventstudy.Diagnostics{
				EventsKept:     12,
				FirmsEstimated: 11,
				DateMode:       eventstudy.DateModeTrading,
				Benchmark:      eventstudy.WeightingSupplied,
			},
		},
		Files: []string{"out/car_summary.csv"},
	}

	var buf bytes.Buffer
	printReport(&buf, report)
	out := buf.String()

	assert.Contains(t, out, "run run-7: 12 events, 11 firms estimated")
	assert.Contains(t, out, "trading dates, supplied benchmark")
	assert.Contains(t, out, "0.0123")
	assert.Contains(t, out, "2.5000")
	assert.Contains(t, out, "out/car_summary.csv")
}

func TestFormat(t *testing.T) {
	assert.Equal(t, ".", format(eventstudy.Float{}))
	assert.Equal(t, "-0.0500", format(eventstudy.Some(-0.05)))
}
