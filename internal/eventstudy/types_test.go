package eventstudy

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloat(t *testing.T) {
	tests := []struct {
		name   string
		in     float64
		valid  bool
		output string
	}{
		{"regular value", 0.0325, true, "0.0325"},
		{"zero is present", 0, true, "0"},
		{"negative", -0.01, true, "-0.01"},
		{"NaN is missing", math.NaN(), false, ""},
		{"positive infinity is missing", math.Inf(1), false, ""},
		{"negative infinity is missing", math.Inf(-1), false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Some(tt.in)
			assert.Equal(t, tt.valid, f.Valid)
			assert.Equal(t, tt.output, f.String())
		})
	}

	t.Run("zero value is missing", func(t *testing.T) {
		var f Float
		_, ok := f.Get()
		assert.False(t, ok)
	})
}

func TestFloat_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		A Float `json:"a"`
		B Float `json:"b"`
	}{A: Some(1.5)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1.5,"b":null}`, string(data))

	var decoded struct {
		A Float `json:"a"`
		B Float `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":-0.25,"b":null}`), &decoded))
	assert.Equal(t, Some(-0.25), decoded.A)
	assert.False(t, decoded.B.Valid)
}

func TestMethod(t *testing.T) {
	tests := []struct {
		method Method
		long   string
		short  string
	}{
		{MarketModel, "market_model", "mm"},
		{MarketAdjusted, "market_adjusted", "ma"},
		{MeanAdjusted, "mean_adjusted", "mean"},
		{Method(7), "unknown", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.long, func(t *testing.T) {
			assert.Equal(t, tt.long, tt.method.String())
			assert.Equal(t, tt.short, tt.method.Short())
		})
	}

	t.Run("parse", func(t *testing.T) {
		for _, s := range []string{"market_model", "MM", " market-model "} {
			m, err := ParseMethod(s)
			require.NoError(t, err)
			assert.Equal(t, MarketModel, m)
		}
		m, err := ParseMethod("mean")
		require.NoError(t, err)
		assert.Equal(t, MeanAdjusted, m)

		_, err = ParseMethod("fama_french")
		assert.Error(t, err)
	})

	t.Run("json by name", func(t *testing.T) {
		data, err := json.Marshal([]Method{MarketAdjusted})
		require.NoError(t, err)
		assert.Equal(t, `["market_adjusted"]`, string(data))

		var back []Method
		require.NoError(t, json.Unmarshal([]byte(`["mm","mean_adjusted"]`), &back))
		assert.Equal(t, []Method{MarketModel, MeanAdjusted}, back)
		assert.Error(t, json.Unmarshal([]byte(`["capm"]`), &back))
	})
}

func TestPanelRow_InWindow(t *testing.T) {
	tests := []struct {
		name   string
		row    PanelRow
		width  int
		expect bool
	}{
		{"day zero in width 1", PanelRow{Offset: 0, EventWindow: true}, 1, true},
		{"edge of width 3", PanelRow{Offset: -3, EventWindow: true}, 3, true},
		{"outside width 3", PanelRow{Offset: 4, EventWindow: true}, 3, false},
		{"estimation row never in window", PanelRow{Offset: -1, Estimation: true}, 10, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, tt.row.InWindow(tt.width))
		})
	}
}

func TestFirmParams(t *testing.T) {
	p := FirmParams{
		Alpha:            Some(0.001),
		Beta:             Some(1.2),
		RSquared:         Some(0.4),
		ResidualVariance: Some(0.0004),
		Status:           ParamsEstimated,
	}
	require.True(t, p.Defined())
	assert.InDelta(t, 0.013, p.Predict(0.01).Value, 1e-15)
	assert.InDelta(t, 0.02, p.StdErr().Value, 1e-15)

	undefined := FirmParams{Status: ParamsInsufficient, MeanReturn: Some(0.001)}
	assert.False(t, undefined.Defined())
	assert.False(t, undefined.Predict(0.01).Valid)
	assert.False(t, undefined.StdErr().Valid)
}

func TestEventResult_CAR(t *testing.T) {
	e := EventResult{CARs: []CAR{
		{Method: MarketModel, Width: 1, Value: Some(0.01)},
		{Method: MeanAdjusted, Width: 3, Value: Some(0.02)},
	}}

	c, ok := e.CAR(MeanAdjusted, 3)
	require.True(t, ok)
	assert.Equal(t, Some(0.02), c.Value)

	_, ok = e.CAR(MarketAdjusted, 1)
	assert.False(t, ok)
}

func TestCarColumn(t *testing.T) {
	assert.Equal(t, "car3_mm", carColumn(3, MarketModel))
	assert.Equal(t, "car10_mean", carColumn(10, MeanAdjusted))
}

func TestCivilDate(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	got := civilDate(time.Date(2020, 3, 16, 23, 30, 0, 0, loc))
	assert.Equal(t, day(2020, 3, 16), got)
	assert.True(t, civilDate(time.Time{}).IsZero())
}
