package eventstudy

import (
	"fmt"
	"sort"
	"time"

	apperrors "eventstudy/internal/errors"
)

// maxAnchorLag bounds the distance between an announcement and its day 0 in trading mode
const maxAnchorLag = 7 * 24 * time.Hour

// BuildReport counts what the window builder dropped or could not fill
type BuildReport struct {
	EventsInput       int      `json:"events_input"`
	EventsKept        int      `json:"events_kept"`
	EventsMissingKey  int      `json:"events_missing_key"`
	EventsDuplicate   int      `json:"events_duplicate"`
	ReturnsInput      int      `json:"returns_input"`
	ReturnsDuplicate  int      `json:"returns_duplicate"`
	DateMode          DateMode `json:"date_mode"`
	EventsUnanchored  int      `json:"events_unanchored"`
	Rows              int      `json:"rows"`
	RowsMissingReturn int      `json:"rows_missing_return"`
	RowsMissingMarket int      `json:"rows_missing_market"`
}

// Panel is the expanded firm-event-day panel.
// Rows hold one contiguous block of len(Offsets) rows per kept event, in event order.
type Panel struct {
	Events    []Event
	Offsets   []int
	Rows      []PanelRow
	Benchmark Benchmark
	Report    BuildReport
}

// EventRows returns the row block of the i-th kept event
func (p *Panel) EventRows(i int) []PanelRow {
	n := len(p.Offsets)
	return p.Rows[i*n : (i+1)*n]
}

type firmDay struct {
	firm string
	date time.Time
}

// BuildPanel cleans events and returns and expands every event into its estimation block and event window
func BuildPanel(cfg Config, events []Event, returns []DailyReturn) (*Panel, error) {
	if err := ValidateInputs(events, returns); err != nil {
		return nil, err
	}

	report := BuildReport{EventsInput: len(events), ReturnsInput: len(returns)}

	kept, missingKey, duplicate := cleanEvents(events)
	report.EventsKept = len(kept)
	report.EventsMissingKey = missingKey
	report.EventsDuplicate = duplicate
	if len(kept) == 0 {
		return nil, apperrors.NewMissingInputError("no event has both a firm id and an announcement date", "firm_id", "event_date")
	}

	clean, dupReturns := dedupReturns(returns)
	report.ReturnsDuplicate = dupReturns

	bench, err := BuildBenchmark(clean, cfg.Weighting)
	if err != nil {
		return nil, fmt.Errorf("build benchmark: %w", err)
	}

	mode := cfg.DateMode
	if mode == DateModeAuto || mode == "" {
		mode = DetectDateMode(clean)
	}
	report.DateMode = mode

	lookup := make(map[firmDay]DailyReturn, len(clean))
	for _, r := range clean {
		lookup[firmDay{r.FirmID, r.Date}] = r
	}

	var calendar []time.Time
	if mode == DateModeTrading {
		calendar = tradingCalendar(clean)
	}

	offsets := cfg.Offsets()
	estFirst, estLast := cfg.EstimationBounds()
	maxW := cfg.MaxWidth()

	rows := make([]PanelRow, 0, len(kept)*len(offsets))
	for _, ev := range kept {
		anchor, anchored := 0, true
		if mode == DateModeTrading {
			anchor, anchored = anchorIndex(calendar, ev.Date)
			if !anchored {
				report.EventsUnanchored++
			}
		}

		for _, o := range offsets {
			row := PanelRow{
				EventID:      ev.ID,
				FirmID:       ev.FirmID,
				Announcement: ev.Date,
				Offset:       o,
				Estimation:   o >= estFirst && o <= estLast,
				EventWindow:  o >= -maxW && o <= maxW,
			}

			switch mode {
			case DateModeTrading:
				if idx := anchor + o; anchored && idx >= 0 && idx < len(calendar) {
					row.Date = calendar[idx]
				}
			default:
				row.Date = ev.Date.AddDate(0, 0, o)
			}

			if !row.Date.IsZero() {
				if r, ok := lookup[firmDay{ev.FirmID, row.Date}]; ok {
					row.Return = r.Return
					row.Weight = r.Weight
				}
				row.Market = bench.At(row.Date)
			}

			if !row.Return.Valid {
				report.RowsMissingReturn++
			}
			if !row.Market.Valid {
				report.RowsMissingMarket++
			}
			rows = append(rows, row)
		}
	}
	report.Rows = len(rows)

	return &Panel{
		Events:    kept,
		Offsets:   offsets,
		Rows:      rows,
		Benchmark: bench,
		Report:    report,
	}, nil
}

// anchorIndex returns the position of day 0 in the trading calendar: the first trading date on or
// after the announcement. An announcement after the calendar, or one whose next trading date is
// more than maxAnchorLag away, has no position.
func anchorIndex(calendar []time.Time, announcement time.Time) (int, bool) {
	i := sort.Search(len(calendar), func(i int) bool { return !calendar[i].Before(announcement) })
	if i == len(calendar) || calendar[i].Sub(announcement) > maxAnchorLag {
		return 0, false
	}
	return i, true
}

// cleanEvents drops events without a firm or date and deduplicates by (firm, date) and by event id.
// First occurrence wins. Events without an id get one derived from firm and date.
func cleanEvents(events []Event) (kept []Event, missingKey, duplicate int) {
	seenKey := make(map[firmDay]bool, len(events))
	seenID := make(map[string]bool, len(events))

	for _, ev := range events {
		if ev.FirmID == "" || ev.Date.IsZero() {
			missingKey++
			continue
		}
		ev.Date = civilDate(ev.Date)
		if ev.ID == "" {
			ev.ID = fmt.Sprintf("%s_%s", ev.FirmID, ev.Date.Format("20060102"))
		}

		key := firmDay{ev.FirmID, ev.Date}
		if seenKey[key] || seenID[ev.ID] {
			duplicate++
			continue
		}
		seenKey[key] = true
		seenID[ev.ID] = true
		kept = append(kept, ev)
	}
	return kept, missingKey, duplicate
}

// dedupReturns normalizes dates and keeps the first observation per firm and date.
// Rows without a firm or date cannot be joined and are skipped.
func dedupReturns(returns []DailyReturn) ([]DailyReturn, int) {
	seen := make(map[firmDay]bool, len(returns))
	clean := make([]DailyReturn, 0, len(returns))
	duplicate := 0

	for _, r := range returns {
		if r.FirmID == "" || r.Date.IsZero() {
			continue
		}
		r.Date = civilDate(r.Date)
		key := firmDay{r.FirmID, r.Date}
		if seen[key] {
			duplicate++
			continue
		}
		seen[key] = true
		clean = append(clean, r)
	}
	return clean, duplicate
}

// DetectDateMode returns trading when no observation falls on a weekend, calendar otherwise
func DetectDateMode(returns []DailyReturn) DateMode {
	for _, r := range returns {
		if r.Date.IsZero() {
			continue
		}
		switch r.Date.Weekday() {
		case time.Saturday, time.Sunday:
			return DateModeCalendar
		}
	}
	return DateModeTrading
}

// tradingCalendar returns the sorted distinct dates of the return panel
func tradingCalendar(returns []DailyReturn) []time.Time {
	seen := make(map[time.Time]bool)
	var dates []time.Time
	for _, r := range returns {
		if r.Date.IsZero() || seen[r.Date] {
			continue
		}
		seen[r.Date] = true
		dates = append(dates, r.Date)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}
