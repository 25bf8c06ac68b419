package eventstudy

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"strings"

	apperrors "eventstudy/internal/errors"
)

// EventSchema maps event table columns onto Event fields. EventID is optional.
type EventSchema struct {
	EventID string `json:"event_id" yaml:"event_id"`
	FirmID  string `json:"firm_id" yaml:"firm_id"`
	Date    string `json:"date" yaml:"date"`
}

// ReturnSchema maps return table columns onto DailyReturn fields. Market and Weight are optional.
type ReturnSchema struct {
	FirmID string `json:"firm_id" yaml:"firm_id"`
	Date   string `json:"date" yaml:"date"`
	Return string `json:"return" yaml:"return"`
	Market string `json:"market" yaml:"market"`
	Weight string `json:"weight" yaml:"weight"`
}

// DefaultEventSchema is the column layout written by this package
func DefaultEventSchema() EventSchema {
	return EventSchema{EventID: "event_id", FirmID: "firm_id", Date: "event_date"}
}

// DefaultReturnSchema is the column layout written by this package
func DefaultReturnSchema() ReturnSchema {
	return ReturnSchema{FirmID: "firm_id", Date: "date", Return: "ret", Market: "mkt", Weight: "weight"}
}

// columnIndex maps lower-cased, trimmed header names to positions; the first duplicate wins
type columnIndex map[string]int

func indexHeaders(headers []string) columnIndex {
	idx := make(columnIndex, len(headers))
	for i, h := range headers {
		key := normalizeHeader(h)
		if _, ok := idx[key]; !ok {
			idx[key] = i
		}
	}
	return idx
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
}

// lookup returns the position of a column; an empty name is reported as absent
func (c columnIndex) lookup(name string) (int, bool) {
	if name == "" {
		return -1, false
	}
	i, ok := c[normalizeHeader(name)]
	return i, ok
}

// check reports every required column that is absent in one error
func (c columnIndex) check(required map[string]string) error {
	var missing []string
	for _, field := range slices.Sorted(maps.Keys(required)) {
		if _, ok := c.lookup(required[field]); !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return apperrors.NewMissingInputError("required columns absent", missing...)
	}
	return nil
}

// Validate checks that the required event columns exist in headers
func (s EventSchema) Validate(headers []string) error {
	return indexHeaders(headers).check(map[string]string{"firm_id": s.FirmID, "event_date": s.Date})
}

// Validate checks that the required return columns exist in headers
func (s ReturnSchema) Validate(headers []string) error {
	return indexHeaders(headers).check(map[string]string{"firm_id": s.FirmID, "date": s.Date, "ret": s.Return})
}

// Name patterns used by best-effort detection, most specific first
var (
	firmPatterns       = []string{"permno", "gvkey", "cusip", "ticker", "symbol", "firm", "id"}
	eventDatePatterns  = []string{"event_date", "announce", "ann_date", "anndate", "date"}
	datePatterns       = []string{"date"}
	marketPatterns     = []string{"vwretd", "ewretd", "sprtrn", "mkt", "market"}
	returnPatterns     = []string{"ret", "return"}
	weightPatterns     = []string{"weight", "mktcap", "market_cap", "mcap", "size"}
	nonReturnFragments = []string{"abnormal", "car", "excess"}
	nonMarketFragments = []string{"abnormal", "excess", "cap", "value"}
)

// DetectEventSchema guesses event columns from header names. Each guess is logged as a warning.
func DetectEventSchema(ctx context.Context, headers []string, logger *slog.Logger) (EventSchema, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var s EventSchema
	used := map[int]bool{}

	if i := findColumn(headers, used, []string{"event_id", "eventid", "event"}, []string{"date"}); i >= 0 {
		s.EventID = headers[i]
		used[i] = true
	}
	if i := findColumn(headers, used, firmPatterns, []string{"event"}); i >= 0 {
		s.FirmID = headers[i]
		used[i] = true
	}
	if i := findColumn(headers, used, eventDatePatterns, nil); i >= 0 {
		s.Date = headers[i]
		used[i] = true
	}

	logger.WarnContext(ctx, "event columns detected from header names; pass an explicit schema to silence",
		"event_id", s.EventID,
		"firm_id", s.FirmID,
		"event_date", s.Date,
	)
	return s, s.Validate(headers)
}

// DetectReturnSchema guesses return columns from header names. Each guess is logged as a warning.
func DetectReturnSchema(ctx context.Context, headers []string, logger *slog.Logger) (ReturnSchema, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var s ReturnSchema
	used := map[int]bool{}

	if i := findColumn(headers, used, firmPatterns, nil); i >= 0 {
		s.FirmID = headers[i]
		used[i] = true
	}
	if i := findColumn(headers, used, datePatterns, nil); i >= 0 {
		s.Date = headers[i]
		used[i] = true
	}
	if i := findColumn(headers, used, marketPatterns, nonMarketFragments); i >= 0 {
		s.Market = headers[i]
		used[i] = true
	}
	if i := findColumn(headers, used, weightPatterns, nil); i >= 0 {
		s.Weight = headers[i]
		used[i] = true
	}
	if i := findColumn(headers, used, returnPatterns, nonReturnFragments); i >= 0 {
		s.Return = headers[i]
		used[i] = true
	}

	logger.WarnContext(ctx, "return columns detected from header names; pass an explicit schema to silence",
		"firm_id", s.FirmID,
		"date", s.Date,
		"ret", s.Return,
		"mkt", s.Market,
		"weight", s.Weight,
	)
	return s, s.Validate(headers)
}

// findColumn returns the first unused header matching the earliest pattern, or -1.
// An exact name match beats a substring match for the same pattern.
func findColumn(headers []string, used map[int]bool, patterns, exclude []string) int {
	for _, p := range patterns {
		match := -1
		for i, h := range headers {
			if used[i] {
				continue
			}
			name := normalizeHeader(h)
			if excluded(name, exclude) {
				continue
			}
			if name == p {
				return i
			}
			if match < 0 && strings.Contains(name, p) {
				match = i
			}
		}
		if match >= 0 {
			return match
		}
	}
	return -1
}

func excluded(name string, fragments []string) bool {
	for _, f := range fragments {
		if strings.Contains(name, f) {
			return true
		}
	}
	return false
}
