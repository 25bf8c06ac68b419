package eventstudy

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	apperrors "eventstudy/internal/errors"
)

// Extreme-return cutoffs used by the data-quality report
const (
	ExtremeLowReturn  = -0.5
	ExtremeHighReturn = 2.0
)

// ValidationError describes an invalid parameter or input
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	return ve.Message
}

// ValidateInputs checks the stage-fatal preconditions of a run.
// Row-level gaps (missing dates, missing returns) are not errors here; they degrade per entity.
func ValidateInputs(events []Event, returns []DailyReturn) error {
	var missing []string
	if len(events) == 0 {
		missing = append(missing, "events")
	}
	if len(returns) == 0 {
		missing = append(missing, "returns")
	}
	if len(missing) > 0 {
		return apperrors.NewMissingInputError("input tables are empty", missing...)
	}

	var haveFirm, haveDate bool
	for _, ev := range events {
		if ev.FirmID != "" {
			haveFirm = true
		}
		if !ev.Date.IsZero() {
			haveDate = true
		}
		if haveFirm && haveDate {
			break
		}
	}
	if !haveFirm {
		missing = append(missing, "firm_id")
	}
	if !haveDate {
		missing = append(missing, "event_date")
	}
	if len(missing) > 0 {
		return apperrors.NewMissingInputError("events carry no usable key columns", missing...)
	}

	var returnFirm, returnDate bool
	for _, r := range returns {
		if r.FirmID != "" {
			returnFirm = true
		}
		if !r.Date.IsZero() {
			returnDate = true
		}
		if returnFirm && returnDate {
			break
		}
	}
	if !returnFirm {
		missing = append(missing, "returns.firm_id")
	}
	if !returnDate {
		missing = append(missing, "returns.date")
	}
	if len(missing) > 0 {
		return apperrors.NewMissingInputError("returns carry no usable key columns", missing...)
	}
	return nil
}

// QualityReport summarizes the return panel before estimation
type QualityReport struct {
	Rows               int     `json:"rows"`
	Firms              int     `json:"firms"`
	MissingReturns     int     `json:"missing_returns"`
	MissingShare       float64 `json:"missing_share"`
	MissingDates       int     `json:"missing_dates"`
	ExtremeLow         int     `json:"extreme_low"`
	ExtremeHigh        int     `json:"extreme_high"`
	DuplicateFirmDates int     `json:"duplicate_firm_dates"`
	MeanReturn         Float   `json:"mean_return"`
	StdDevReturn       Float   `json:"sd_return"`
	MinReturn          Float   `json:"min_return"`
	MaxReturn          Float   `json:"max_return"`
	SeriesMean         Float   `json:"series_length_mean"`
	SeriesMedian       Float   `json:"series_length_median"`
	SeriesMin          int     `json:"series_length_min"`
	SeriesMax          int     `json:"series_length_max"`
	HasMarket          bool    `json:"has_market"`
	HasWeight          bool    `json:"has_weight"`
}

// InspectReturns builds the data-quality report for a return panel
func InspectReturns(returns []DailyReturn) QualityReport {
	report := QualityReport{Rows: len(returns)}
	if len(returns) == 0 {
		return report
	}

	type firmDate struct {
		firm string
		date time.Time
	}
	seen := make(map[firmDate]bool, len(returns))
	perFirm := make(map[string]int)
	values := make([]float64, 0, len(returns))

	for _, r := range returns {
		perFirm[r.FirmID]++
		if r.Date.IsZero() {
			report.MissingDates++
		} else {
			key := firmDate{r.FirmID, civilDate(r.Date)}
			if seen[key] {
				report.DuplicateFirmDates++
			}
			seen[key] = true
		}
		if r.Market.Valid {
			report.HasMarket = true
		}
		if r.Weight.Valid {
			report.HasWeight = true
		}

		v, ok := r.Return.Get()
		if !ok {
			report.MissingReturns++
			continue
		}
		if v < ExtremeLowReturn {
			report.ExtremeLow++
		}
		if v > ExtremeHighReturn {
			report.ExtremeHigh++
		}
		values = append(values, v)
	}

	report.Firms = len(perFirm)
	report.MissingShare = float64(report.MissingReturns) / float64(report.Rows)

	if len(values) > 0 {
		report.MeanReturn = Some(stat.Mean(values, nil))
		if len(values) > 1 {
			report.StdDevReturn = Some(stat.StdDev(values, nil))
		}
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, v := range values {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		report.MinReturn = Some(lo)
		report.MaxReturn = Some(hi)
	}

	lengths := make([]float64, 0, len(perFirm))
	report.SeriesMin = math.MaxInt
	for _, n := range perFirm {
		lengths = append(lengths, float64(n))
		report.SeriesMin = min(report.SeriesMin, n)
		report.SeriesMax = max(report.SeriesMax, n)
	}
	sort.Float64s(lengths)
	report.SeriesMean = Some(stat.Mean(lengths, nil))
	report.SeriesMedian = Some(median(lengths))

	return report
}

// median expects sorted input
func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
