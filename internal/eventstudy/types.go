package eventstudy

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Float is an optional float64. The zero value is missing.
type Float struct {
	Value float64
	Valid bool
}

// Some returns a present value. NaN and infinities are treated as missing.
func Some(v float64) Float {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Float{}
	}
	return Float{Value: v, Valid: true}
}

// Get returns the value and whether it is present.
func (f Float) Get() (float64, bool) {
	return f.Value, f.Valid
}

// String formats the value with the shortest exact representation; missing is "".
func (f Float) String() string {
	if !f.Valid {
		return ""
	}
	return strconv.FormatFloat(f.Value, 'g', -1, 64)
}

// MarshalJSON encodes missing values as null
func (f Float) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// UnmarshalJSON decodes null as missing
func (f *Float) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = Float{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Some(v)
	return nil
}

// Method is a return-adjustment method used to compute abnormal returns
type Method int

const (
	// MarketModel subtracts alpha + beta * market return
	MarketModel Method = iota
	// MarketAdjusted subtracts the market return
	MarketAdjusted
	// MeanAdjusted subtracts the firm's estimation-window mean return
	MeanAdjusted
)

const numMethods = 3

// Methods lists all methods in output order
var Methods = []Method{MarketModel, MarketAdjusted, MeanAdjusted}

// String returns the long name of the method
func (m Method) String() string {
	switch m {
	case MarketModel:
		return "market_model"
	case MarketAdjusted:
		return "market_adjusted"
	case MeanAdjusted:
		return "mean_adjusted"
	default:
		return "unknown"
	}
}

// Short returns the column suffix used in output tables
func (m Method) Short() string {
	switch m {
	case MarketModel:
		return "mm"
	case MarketAdjusted:
		return "ma"
	case MeanAdjusted:
		return "mean"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the method by name
func (m Method) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON decodes a method name
func (m *Method) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseMethod(name)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseMethod accepts long names and short suffixes
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "market_model", "mm", "market-model":
		return MarketModel, nil
	case "market_adjusted", "ma", "market-adjusted":
		return MarketAdjusted, nil
	case "mean_adjusted", "mean", "mean-adjusted":
		return MeanAdjusted, nil
	default:
		return 0, fmt.Errorf("unknown method %q", s)
	}
}

// Weighting selects how the market benchmark is constructed
type Weighting string

const (
	// WeightingAuto picks supplied, then value, then equal based on the data
	WeightingAuto Weighting = "auto"
	// WeightingSupplied uses the market column of the return data
	WeightingSupplied Weighting = "supplied"
	// WeightingValue uses a value-weighted cross-sectional mean per date
	WeightingValue Weighting = "value"
	// WeightingEqual uses an equal-weighted cross-sectional mean per date
	WeightingEqual Weighting = "equal"
)

// DateMode selects how relative offsets map to dates
type DateMode string

const (
	DateModeAuto     DateMode = "auto"
	DateModeCalendar DateMode = "calendar"
	DateModeTrading  DateMode = "trading"
)

// Event is one corporate announcement for one firm
type Event struct {
	ID     string    `json:"event_id"`
	FirmID string    `json:"firm_id"`
	Date   time.Time `json:"event_date"` // zero when missing
}

// DailyReturn is one firm-date observation of the return panel
type DailyReturn struct {
	FirmID string    `json:"firm_id"`
	Date   time.Time `json:"date"`
	Return Float     `json:"ret"`
	Market Float     `json:"mkt"`    // supplied benchmark return, optional
	Weight Float     `json:"weight"` // value-weighting basis such as market cap, optional
}

// PanelRow is one (event, relative day) row of the event panel
type PanelRow struct {
	EventID      string    `json:"event_id"`
	FirmID       string    `json:"firm_id"`
	Announcement time.Time `json:"event_date"`
	Offset       int       `json:"offset"`
	Date         time.Time `json:"date"` // zero when the offset falls outside the return calendar
	Estimation   bool      `json:"estimation"`
	EventWindow  bool      `json:"event_window"`
	Return       Float     `json:"ret"`
	Market       Float     `json:"mkt"`
	Weight       Float     `json:"weight"`
}

// InWindow reports whether the row belongs to the symmetric event window of the given width
func (r PanelRow) InWindow(width int) bool {
	if !r.EventWindow {
		return false
	}
	return r.Offset >= -width && r.Offset <= width
}

// ParamStatus records why firm parameters are or are not defined
type ParamStatus string

const (
	ParamsEstimated    ParamStatus = "estimated"
	ParamsInsufficient ParamStatus = "insufficient"
	ParamsDegenerate   ParamStatus = "degenerate"
)

// FirmParams holds the market-model fit and mean benchmark of one firm
type FirmParams struct {
	FirmID           string      `json:"firm_id"`
	Alpha            Float       `json:"alpha"`
	Beta             Float       `json:"beta"`
	RSquared         Float       `json:"r2"`
	ResidualVariance Float       `json:"resid_var"`
	Observations     int         `json:"observations"`
	MeanReturn       Float       `json:"mean_ret"`
	MeanObservations int         `json:"mean_observations"`
	Status           ParamStatus `json:"status"`
}

// Defined reports whether alpha, beta, R² and residual variance are all present
func (p FirmParams) Defined() bool {
	return p.Status == ParamsEstimated
}

// Predict returns the market-model expected return for a market return
func (p FirmParams) Predict(market float64) Float {
	if !p.Defined() {
		return Float{}
	}
	return Some(p.Alpha.Value + p.Beta.Value*market)
}

// StdErr returns the residual standard deviation
func (p FirmParams) StdErr() Float {
	if !p.Defined() {
		return Float{}
	}
	return Some(math.Sqrt(p.ResidualVariance.Value))
}

// AbnormalRow is a panel row with derived abnormal-return columns
type AbnormalRow struct {
	PanelRow
	AR          [numMethods]Float `json:"ar"`
	StdErr      Float             `json:"se"`
	TStat       Float             `json:"tstat"`
	PValue      Float             `json:"pvalue"`
	Significant bool              `json:"significant"`
}

// Abnormal returns the abnormal return for a method
func (r AbnormalRow) Abnormal(m Method) Float {
	if m < 0 || int(m) >= numMethods {
		return Float{}
	}
	return r.AR[m]
}

// CAR is the cumulative abnormal return of one event for one method and width
type CAR struct {
	Method Method `json:"method"`
	Width  int    `json:"width"`
	Value  Float  `json:"car"`
	Days   int    `json:"days"`
	TStat  Float  `json:"tstat"` // market model only
}

// EventResult is the canonical per-event output
type EventResult struct {
	EventID string     `json:"event_id"`
	FirmID  string     `json:"firm_id"`
	Date    time.Time  `json:"event_date"`
	Params  FirmParams `json:"params"`
	CARs    []CAR      `json:"cars"`
}

// CAR looks up the CAR for a method and width
func (e EventResult) CAR(m Method, width int) (CAR, bool) {
	for _, c := range e.CARs {
		if c.Method == m && c.Width == width {
			return c, true
		}
	}
	return CAR{}, false
}

// SummaryRow holds cross-sectional significance tests for one CAR column
type SummaryRow struct {
	Method        Method `json:"method"`
	Width         int    `json:"width"`
	N             int    `json:"n"`
	Positive      int    `json:"positive"`
	Mean          Float  `json:"mean_car"`
	Median        Float  `json:"median_car"`
	StdDev        Float  `json:"sd_car"`
	PositiveShare Float  `json:"pct_positive"`
	TStat         Float  `json:"t_stat"`
	TPValue       Float  `json:"t_p"`
	SignPValue    Float  `json:"sign_p"`
	RankPValue    Float  `json:"signed_rank_p"`
}

// Diagnostics counts every degradation the run absorbed
type Diagnostics struct {
	EventsInput       int            `json:"events_input"`
	EventsKept        int            `json:"events_kept"`
	EventsMissingKey  int            `json:"events_missing_key"`
	EventsDuplicate   int            `json:"events_duplicate"`
	ReturnsInput      int            `json:"returns_input"`
	ReturnsDuplicate  int            `json:"returns_duplicate"`
	DateMode          DateMode       `json:"date_mode"`
	EventsUnanchored  int            `json:"events_unanchored"`
	Benchmark         Weighting      `json:"benchmark"`
	BenchmarkDates    int            `json:"benchmark_dates"`
	PanelRows         int            `json:"panel_rows"`
	RowsMissingReturn int            `json:"rows_missing_return"`
	RowsMissingMarket int            `json:"rows_missing_market"`
	Firms             int            `json:"firms"`
	FirmsEstimated    int            `json:"firms_estimated"`
	FirmsInsufficient int            `json:"firms_insufficient"`
	FirmsDegenerate   int            `json:"firms_degenerate"`
	FirmsNoMean       int            `json:"firms_no_mean"`
	UndefinedCARs     map[string]int `json:"undefined_cars"`
}

// Result bundles every output table of a run
type Result struct {
	Config      Config        `json:"config"`
	Rows        []AbnormalRow `json:"-"`
	Events      []EventResult `json:"events"`
	Params      []FirmParams  `json:"params"`
	Summary     []SummaryRow  `json:"summary"`
	Diagnostics Diagnostics   `json:"diagnostics"`
}

// carColumn names the CAR column for a width and method, e.g. car3_mm
func carColumn(width int, m Method) string {
	return fmt.Sprintf("car%d_%s", width, m.Short())
}

// civilDate strips the clock and location so dates compare by calendar day
func civilDate(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
