package eventstudy

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	apperrors "eventstudy/internal/errors"
	"eventstudy/internal/exporter"
)

// stataEpoch is day zero of Stata %td dates
var stataEpoch = time.Date(1960, 1, 1, 0, 0, 0, 0, time.UTC)

// dateLayouts are tried in order for textual dates
var dateLayouts = []string{
	"2006-01-02",
	"20060102",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"02Jan2006",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01-02-06",
}

// missingTokens are cell values read as missing
var missingTokens = map[string]bool{
	"":     true,
	".":    true,
	"na":   true,
	"n/a":  true,
	"nan":  true,
	"null": true,
}

// Loader reads event and return tables from CSV or XLSX files
type Loader struct {
	logger        *slog.Logger
	eventSchema   EventSchema
	returnSchema  ReturnSchema
	detectColumns bool
}

// NewLoader creates a loader using the default column layout
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		logger:       logger,
		eventSchema:  DefaultEventSchema(),
		returnSchema: DefaultReturnSchema(),
	}
}

// WithEventSchema sets an explicit event column mapping
func (l *Loader) WithEventSchema(s EventSchema) *Loader {
	l.eventSchema = s
	return l
}

// WithReturnSchema sets an explicit return column mapping
func (l *Loader) WithReturnSchema(s ReturnSchema) *Loader {
	l.returnSchema = s
	return l
}

// WithDetection enables name-pattern detection when the configured schema does not match the headers
func (l *Loader) WithDetection(enabled bool) *Loader {
	l.detectColumns = enabled
	return l
}

// LoadEvents reads an events table
func (l *Loader) LoadEvents(ctx context.Context, path string) ([]Event, error) {
	headers, records, err := readTable(path)
	if err != nil {
		return nil, err
	}
	events, err := l.ParseEvents(ctx, headers, records)
	if err != nil {
		return nil, fmt.Errorf("load events from %s: %w", path, err)
	}
	l.logger.InfoContext(ctx, "loaded events", "path", path, "events", len(events))
	return events, nil
}

// LoadReturns reads a daily return table
func (l *Loader) LoadReturns(ctx context.Context, path string) ([]DailyReturn, error) {
	headers, records, err := readTable(path)
	if err != nil {
		return nil, err
	}
	returns, err := l.ParseReturns(ctx, headers, records)
	if err != nil {
		return nil, fmt.Errorf("load returns from %s: %w", path, err)
	}
	l.logger.InfoContext(ctx, "loaded returns", "path", path, "rows", len(returns))
	return returns, nil
}

// ParseEvents converts raw records into events using the configured or detected schema
func (l *Loader) ParseEvents(ctx context.Context, headers []string, records [][]string) ([]Event, error) {
	schema := l.eventSchema
	if err := schema.Validate(headers); err != nil {
		if !l.detectColumns {
			return nil, err
		}
		if schema, err = DetectEventSchema(ctx, headers, l.logger); err != nil {
			return nil, err
		}
	}

	cols := indexHeaders(headers)
	idCol, hasID := cols.lookup(schema.EventID)
	firmCol, _ := cols.lookup(schema.FirmID)
	dateCol, _ := cols.lookup(schema.Date)

	events := make([]Event, 0, len(records))
	for i, rec := range records {
		ev := Event{FirmID: strings.TrimSpace(cell(rec, firmCol))}
		if hasID {
			ev.ID = strings.TrimSpace(cell(rec, idCol))
		}
		date, err := ParseDate(cell(rec, dateCol))
		if err != nil {
			return nil, apperrors.NewParsingError("parse event date", err).
				WithContext("row", i+2).
				WithContext("column", schema.Date)
		}
		ev.Date = date
		events = append(events, ev)
	}
	return events, nil
}

// ParseReturns converts raw records into daily returns using the configured or detected schema
func (l *Loader) ParseReturns(ctx context.Context, headers []string, records [][]string) ([]DailyReturn, error) {
	schema := l.returnSchema
	if err := schema.Validate(headers); err != nil {
		if !l.detectColumns {
			return nil, err
		}
		if schema, err = DetectReturnSchema(ctx, headers, l.logger); err != nil {
			return nil, err
		}
	}

	cols := indexHeaders(headers)
	firmCol, _ := cols.lookup(schema.FirmID)
	dateCol, _ := cols.lookup(schema.Date)
	retCol, _ := cols.lookup(schema.Return)
	mktCol, hasMarket := cols.lookup(schema.Market)
	weightCol, hasWeight := cols.lookup(schema.Weight)

	returns := make([]DailyReturn, 0, len(records))
	for i, rec := range records {
		row := i + 2
		r := DailyReturn{FirmID: strings.TrimSpace(cell(rec, firmCol))}

		date, err := ParseDate(cell(rec, dateCol))
		if err != nil {
			return nil, apperrors.NewParsingError("parse return date", err).
				WithContext("row", row).
				WithContext("column", schema.Date)
		}
		r.Date = date

		if r.Return, err = ParseFloat(cell(rec, retCol)); err != nil {
			return nil, apperrors.NewParsingError("parse return", err).
				WithContext("row", row).
				WithContext("column", schema.Return)
		}
		if hasMarket {
			if r.Market, err = ParseFloat(cell(rec, mktCol)); err != nil {
				return nil, apperrors.NewParsingError("parse market return", err).
					WithContext("row", row).
					WithContext("column", schema.Market)
			}
		}
		if hasWeight {
			if r.Weight, err = ParseFloat(cell(rec, weightCol)); err != nil {
				return nil, apperrors.NewParsingError("parse weight", err).
					WithContext("row", row).
					WithContext("column", schema.Weight)
			}
		}
		returns = append(returns, r)
	}
	return returns, nil
}

// ParseDate reads a date cell. Missing tokens yield the zero time.
// Integers that are not eight-digit YYYYMMDD values are read as Stata %td day numbers.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if missingTokens[strings.ToLower(s)] {
		return time.Time{}, nil
	}

	if n, err := strconv.Atoi(s); err == nil && len(strings.TrimPrefix(s, "-")) != 8 {
		return stataEpoch.AddDate(0, 0, n), nil
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return civilDate(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// ParseFloat reads a numeric cell. Missing tokens yield a missing value, never zero.
func ParseFloat(s string) (Float, error) {
	s = strings.TrimSpace(s)
	if missingTokens[strings.ToLower(s)] {
		return Float{}, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Float{}, fmt.Errorf("invalid number %q", s)
	}
	return Some(v), nil
}

// cell returns a field, treating short records as missing trailing cells
func cell(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return rec[i]
}

// readTable returns the header row and data rows of a CSV or XLSX file
func readTable(path string) ([]string, [][]string, error) {
	var rows [][]string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		var err error
		rows, err = exporter.ReadSheet(path, "")
		if err != nil {
			return nil, nil, apperrors.NewParsingError("read workbook", err).WithContext("path", path)
		}
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, apperrors.NewMissingInputError(fmt.Sprintf("open %s: %v", path, err), path)
		}
		defer f.Close()
		rows, err = readCSV(f)
		if err != nil {
			return nil, nil, apperrors.NewParsingError("read csv", err).WithContext("path", path)
		}
	}

	if len(rows) == 0 {
		return nil, nil, apperrors.NewMissingInputError(fmt.Sprintf("%s has no header row", path), path)
	}
	return rows[0], rows[1:], nil
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	return reader.ReadAll()
}
