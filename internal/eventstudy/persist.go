package eventstudy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"eventstudy/internal/exporter"
)

// Output file names written by SaveCSV
const (
	RowsFile    = "abnormal_returns.csv"
	EventsFile  = "event_cars.csv"
	SummaryFile = "car_summary.csv"
	ParamsFile  = "firm_params.csv"
)

// maxSheetRows keeps the row table within the worksheet row limit
const maxSheetRows = 1_048_575

// Table is one output table in string form
type Table struct {
	Name    string
	Headers []string
	Records [][]string
}

// RowTable returns the per-row table with abnormal returns, row statistics and the event's CARs broadcast by event id
func RowTable(res *Result) Table {
	headers := []string{"event_id", "firm_id", "event_date", "offset", "date", "estimation"}
	for _, w := range res.Config.Widths {
		headers = append(headers, "win"+strconv.Itoa(w))
	}
	headers = append(headers, "ret", "mkt", "weight")
	for _, m := range Methods {
		headers = append(headers, "ar_"+m.Short())
	}
	headers = append(headers, "se", "tstat", "pvalue", "significant")
	headers = append(headers, carHeaders(res.Config.Widths)...)

	byEvent := make(map[string]EventResult, len(res.Events))
	for _, e := range res.Events {
		byEvent[e.EventID] = e
	}

	records := make([][]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		rec := []string{
			row.EventID,
			row.FirmID,
			formatDate(row.Announcement),
			strconv.Itoa(row.Offset),
			formatDate(row.Date),
			formatBool(row.Estimation),
		}
		for _, w := range res.Config.Widths {
			rec = append(rec, formatBool(row.InWindow(w)))
		}
		rec = append(rec, row.Return.String(), row.Market.String(), row.Weight.String())
		for _, m := range Methods {
			rec = append(rec, row.Abnormal(m).String())
		}
		rec = append(rec, row.StdErr.String(), row.TStat.String(), row.PValue.String(), formatBool(row.Significant))
		rec = append(rec, carValues(byEvent[row.EventID], res.Config.Widths)...)
		records = append(records, rec)
	}

	return Table{Name: "rows", Headers: headers, Records: records}
}

// EventTable returns one row per event with firm parameters and CARs
func EventTable(res *Result) Table {
	headers := []string{"event_id", "firm_id", "event_date", "alpha", "beta", "r2", "resid_var", "observations", "status"}
	headers = append(headers, carHeaders(res.Config.Widths)...)
	for _, w := range res.Config.Widths {
		headers = append(headers, carColumn(w, MarketModel)+"_t", carColumn(w, MarketModel)+"_days")
	}

	records := make([][]string, 0, len(res.Events))
	for _, e := range res.Events {
		p := e.Params
		rec := []string{
			e.EventID,
			e.FirmID,
			formatDate(e.Date),
			p.Alpha.String(),
			p.Beta.String(),
			p.RSquared.String(),
			p.ResidualVariance.String(),
			strconv.Itoa(p.Observations),
			string(p.Status),
		}
		rec = append(rec, carValues(e, res.Config.Widths)...)
		for _, w := range res.Config.Widths {
			c, _ := e.CAR(MarketModel, w)
			rec = append(rec, c.TStat.String(), strconv.Itoa(c.Days))
		}
		records = append(records, rec)
	}

	return Table{Name: "events", Headers: headers, Records: records}
}

// SummaryTable returns the cross-sectional significance table
func SummaryTable(res *Result) Table {
	headers := []string{
		"method", "width", "n", "mean_car", "median_car", "sd_car", "pct_positive",
		"t_stat", "t_p", "sign_p", "signed_rank_p",
	}
	records := make([][]string, 0, len(res.Summary))
	for _, s := range res.Summary {
		records = append(records, []string{
			s.Method.String(),
			strconv.Itoa(s.Width),
			strconv.Itoa(s.N),
			s.Mean.String(),
			s.Median.String(),
			s.StdDev.String(),
			s.PositiveShare.String(),
			s.TStat.String(),
			s.TPValue.String(),
			s.SignPValue.String(),
			s.RankPValue.String(),
		})
	}
	return Table{Name: "summary", Headers: headers, Records: records}
}

// FirmParamsTable returns one row per firm with its market-model fit and mean benchmark
func FirmParamsTable(res *Result) Table {
	headers := []string{
		"firm_id", "alpha", "beta", "r2", "resid_var", "observations",
		"mean_ret", "mean_observations", "status",
	}
	records := make([][]string, 0, len(res.Params))
	for _, p := range res.Params {
		records = append(records, []string{
			p.FirmID,
			p.Alpha.String(),
			p.Beta.String(),
			p.RSquared.String(),
			p.ResidualVariance.String(),
			strconv.Itoa(p.Observations),
			p.MeanReturn.String(),
			strconv.Itoa(p.MeanObservations),
			string(p.Status),
		})
	}
	return Table{Name: "params", Headers: headers, Records: records}
}

// SaveCSV writes the four result tables into dir and returns the written paths
func SaveCSV(dir string, res *Result) ([]string, error) {
	if res == nil {
		return nil, fmt.Errorf("no result to save")
	}
	writer := exporter.NewCSVWriter(dir)

	rows := RowTable(res)
	stream, err := writer.Stream(RowsFile, rows.Headers)
	if err != nil {
		return nil, fmt.Errorf("create row table: %w", err)
	}
	for i, rec := range rows.Records {
		if err := stream.Write(rec); err != nil {
			stream.Close()
			return nil, fmt.Errorf("write row %d: %w", i, err)
		}
	}
	if err := stream.Close(); err != nil {
		return nil, fmt.Errorf("close row table: %w", err)
	}

	paths := []string{filepath.Join(dir, RowsFile)}
	for file, table := range map[string]Table{
		EventsFile:  EventTable(res),
		SummaryFile: SummaryTable(res),
		ParamsFile:  FirmParamsTable(res),
	} {
		if err := writer.WriteTable(file, table.Headers, table.Records); err != nil {
			return nil, fmt.Errorf("write %s: %w", file, err)
		}
		paths = append(paths, filepath.Join(dir, file))
	}
	slices.Sort(paths[1:])
	return paths, nil
}

// SaveXLSX writes the event, summary and parameter tables, and the row table when it fits, as one workbook
func SaveXLSX(path string, res *Result) error {
	if res == nil {
		return fmt.Errorf("no result to save")
	}
	tables := []Table{SummaryTable(res), EventTable(res), FirmParamsTable(res)}
	if len(res.Rows) <= maxSheetRows {
		tables = append(tables, RowTable(res))
	}

	sheets := make([]exporter.Sheet, len(tables))
	for i, t := range tables {
		sheets[i] = exporter.Sheet{Name: t.Name, Headers: t.Headers, Records: t.Records}
	}
	return exporter.NewWorkbookWriter().WriteWorkbook(path, sheets)
}

// SaveJSON writes v as indented JSON
func SaveJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

func carHeaders(widths []int) []string {
	headers := make([]string, 0, len(Methods)*len(widths))
	for _, m := range Methods {
		for _, w := range widths {
			headers = append(headers, carColumn(w, m))
		}
	}
	return headers
}

func carValues(e EventResult, widths []int) []string {
	values := make([]string, 0, len(Methods)*len(widths))
	for _, m := range Methods {
		for _, w := range widths {
			c, _ := e.CAR(m, w)
			values = append(values, c.Value.String())
		}
	}
	return values
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
