package eventstudy

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestEstimateParams_PerfectFit(t *testing.T) {
	// default design: estimation offsets [-260, -11], realized return equal to the market
	cfg := DefaultConfig()
	dates := tradingDays(day(2018, 1, 1), 300)
	returns := firmPanel("F", dates, 0, 1, nil)
	events := []Event{{ID: "E1", FirmID: "F", Date: dates[280]}}

	panel, err := BuildPanel(cfg, events, returns)
	require.NoError(t, err)

	params, err := EstimateParams(context.Background(), cfg, panel.Rows)
	require.NoError(t, err)

	p := params["F"]
	require.Equal(t, ParamsEstimated, p.Status)
	assert.Equal(t, 250, p.Observations)
	assert.InDelta(t, 0, p.Alpha.Value, 1e-12)
	assert.InDelta(t, 1, p.Beta.Value, 1e-10)
	assert.InDelta(t, 1, p.RSquared.Value, 1e-10)
	assert.InDelta(t, 0, p.ResidualVariance.Value, 1e-20)
}

func TestEstimateParams_MatchesIndependentLeastSquares(t *testing.T) {
	cfg := smallConfig()
	dates := tradingDays(day(2020, 1, 1), 60)
	noise := func(i int) float64 { return 0.003 * math.Cos(float64(i)*1.3) }
	returns := firmPanel("F", dates, 0.0005, 0.8, noise)
	events := []Event{{ID: "E1", FirmID: "F", Date: dates[40]}}

	panel, err := BuildPanel(cfg, events, returns)
	require.NoError(t, err)

	params, err := EstimateParams(context.Background(), cfg, panel.Rows)
	require.NoError(t, err)
	p := params["F"]
	require.True(t, p.Defined())

	// independent QR least-squares solve over the same estimation sample
	var xs, ys []float64
	for _, row := range panel.Rows {
		if row.Estimation && row.Return.Valid && row.Market.Valid {
			xs = append(xs, row.Market.Value)
			ys = append(ys, row.Return.Value)
		}
	}
	n := len(xs)
	require.Equal(t, 20, n)
	assert.Equal(t, n, p.Observations)

	design := mat.NewDense(n, 2, nil)
	for i, x := range xs {
		design.Set(i, 0, 1)
		design.Set(i, 1, x)
	}
	var coef mat.VecDense
	require.NoError(t, coef.SolveVec(design, mat.NewVecDense(n, ys)))

	assert.InDelta(t, coef.AtVec(0), p.Alpha.Value, 1e-12)
	assert.InDelta(t, coef.AtVec(1), p.Beta.Value, 1e-10)

	var ssr, sst, mean float64
	for _, y := range ys {
		mean += y / float64(n)
	}
	for i, x := range xs {
		e := ys[i] - coef.AtVec(0) - coef.AtVec(1)*x
		ssr += e * e
		sst += (ys[i] - mean) * (ys[i] - mean)
	}
	assert.InDelta(t, ssr/float64(n-2), p.ResidualVariance.Value, 1e-15)
	assert.InDelta(t, 1-ssr/sst, p.RSquared.Value, 1e-10)

	// OLS minimizes the residual sum of squares: nudging beta cannot lower it
	perturbed := 0.0
	for i, x := range xs {
		e := ys[i] - p.Alpha.Value - (p.Beta.Value+1e-4)*x
		perturbed += e * e
	}
	assert.Greater(t, perturbed, ssr)
}

func TestEstimateParams_Insufficient(t *testing.T) {
	cfg := smallConfig()
	dates := tradingDays(day(2020, 1, 1), 60)
	returns := firmPanel("F", dates, 0, 1, nil)

	// keep only 5 estimation-window dates for the firm
	events := []Event{{ID: "E1", FirmID: "F", Date: dates[40]}}
	var sparse []DailyReturn
	for i, r := range returns {
		if i >= 17 && i < 36 && i%4 != 0 {
			r.Return = Float{}
		}
		sparse = append(sparse, r)
	}

	panel, err := BuildPanel(cfg, events, sparse)
	require.NoError(t, err)
	params, err := EstimateParams(context.Background(), cfg, panel.Rows)
	require.NoError(t, err)

	p := params["F"]
	assert.Equal(t, ParamsInsufficient, p.Status)
	assert.Less(t, p.Observations, cfg.MinObservations)
	assert.False(t, p.Alpha.Valid)
	assert.False(t, p.Beta.Valid)
	assert.False(t, p.RSquared.Valid)
	assert.False(t, p.ResidualVariance.Valid)
	assert.True(t, p.MeanReturn.Valid, "mean benchmark needs no regression")
	assert.Equal(t, p.Observations, p.MeanObservations)
}

func TestEstimateParams_Degenerate(t *testing.T) {
	cfg := smallConfig()
	dates := tradingDays(day(2020, 1, 1), 60)
	returns := make([]DailyReturn, len(dates))
	for i, d := range dates {
		returns[i] = DailyReturn{FirmID: "F", Date: d, Return: Some(0.001 * float64(i%3)), Market: Some(0.002)}
	}

	panel, err := BuildPanel(cfg, []Event{{ID: "E1", FirmID: "F", Date: dates[40]}}, returns)
	require.NoError(t, err)
	params, err := EstimateParams(context.Background(), cfg, panel.Rows)
	require.NoError(t, err)

	p := params["F"]
	assert.Equal(t, ParamsDegenerate, p.Status)
	assert.Equal(t, 20, p.Observations)
	assert.False(t, p.Defined())
	assert.False(t, p.Beta.Valid)
	assert.True(t, p.MeanReturn.Valid)
}

func TestEstimateParams_NoEstimationData(t *testing.T) {
	cfg := smallConfig()
	dates := tradingDays(day(2020, 1, 1), 60)
	returns := firmPanel("F", dates, 0, 1, nil)

	// announcement on the first trading day leaves the estimation block empty
	panel, err := BuildPanel(cfg, []Event{{ID: "E1", FirmID: "F", Date: dates[0]}}, returns)
	require.NoError(t, err)
	params, err := EstimateParams(context.Background(), cfg, panel.Rows)
	require.NoError(t, err)

	p, ok := params["F"]
	require.True(t, ok, "firm is still reported")
	assert.Equal(t, ParamsInsufficient, p.Status)
	assert.Equal(t, 0, p.Observations)
	assert.False(t, p.MeanReturn.Valid)
}

func TestEstimateParams_PoolsEventsByDate(t *testing.T) {
	cfg := smallConfig()
	dates := tradingDays(day(2020, 1, 1), 60)
	noise := func(i int) float64 { return 0.001 * float64(i%7-3) }
	returns := firmPanel("F", dates, 0, 1.1, noise)
	events := []Event{
		{ID: "E1", FirmID: "F", Date: dates[40]},
		{ID: "E2", FirmID: "F", Date: dates[42]},
	}

	panel, err := BuildPanel(cfg, events, returns)
	require.NoError(t, err)
	params, err := EstimateParams(context.Background(), cfg, panel.Rows)
	require.NoError(t, err)

	// estimation indices 17..36 and 19..38 overlap; distinct dates 17..38
	assert.Equal(t, 22, params["F"].Observations)
}

func TestEstimateParams_ManyFirms(t *testing.T) {
	cfg := smallConfig()
	cfg.Concurrency = 3
	dates := tradingDays(day(2020, 1, 1), 60)

	var returns []DailyReturn
	var events []Event
	for _, firm := range []string{"D", "B", "A", "C", "E"} {
		noise := func(i int) float64 { return 0.002 * math.Sin(float64(i)+float64(firm[0])) }
		returns = append(returns, firmPanel(firm, dates, 0, 1.5, noise)...)
		events = append(events, Event{ID: "E" + firm, FirmID: firm, Date: dates[45]})
	}

	panel, err := BuildPanel(cfg, events, returns)
	require.NoError(t, err)
	params, err := EstimateParams(context.Background(), cfg, panel.Rows)
	require.NoError(t, err)

	sorted := params.Sorted()
	require.Len(t, sorted, 5)
	for i, want := range []string{"A", "B", "C", "D", "E"} {
		assert.Equal(t, want, sorted[i].FirmID)
		assert.True(t, sorted[i].Defined())
	}

	estimated, insufficient, degenerate, noMean := params.Counts()
	assert.Equal(t, 5, estimated)
	assert.Zero(t, insufficient+degenerate+noMean)
}

func TestEstimateParams_Cancelled(t *testing.T) {
	cfg := smallConfig()
	dates := tradingDays(day(2020, 1, 1), 60)
	panel, err := BuildPanel(cfg, []Event{{ID: "E1", FirmID: "F", Date: dates[40]}}, firmPanel("F", dates, 0, 1, nil))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	params, err := EstimateParams(ctx, cfg, panel.Rows)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, params)
}
