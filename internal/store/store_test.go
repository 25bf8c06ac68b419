package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "eventstudy/internal/errors"
	"eventstudy/internal/eventstudy"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "results.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleResult() *eventstudy.Result {
	date := time.Date(2020, 3, 16, 0, 0, 0, 0, time.UTC)
	cfg := eventstudy.DefaultConfig()
	cfg.Widths = []int{1, 3}

	events := []eventstudy.EventResult{
		{
			EventID: "E1", FirmID: "AAA", Date: date,
			CARs: []eventstudy.CAR{
				{Method: eventstudy.MarketModel, Width: 1, Value: eventstudy.Some(0.031), Days: 3, TStat: eventstudy.Some(2.2)},
				{Method: eventstudy.MarketModel, Width: 3, Value: eventstudy.Some(0.045), Days: 7, TStat: eventstudy.Some(1.9)},
			},
		},
		{
			EventID: "E2", FirmID: "BBB", Date: date.AddDate(0, 0, 1),
			CARs: []eventstudy.CAR{
				{Method: eventstudy.MarketModel, Width: 1},
				{Method: eventstudy.MarketModel, Width: 3},
			},
		},
	}

	return &eventstudy.Result{
		Config: cfg,
		Events: events,
		Params: []eventstudy.FirmParams{
			{
				FirmID: "AAA", Alpha: eventstudy.Some(0.0002), Beta: eventstudy.Some(1.07),
				RSquared: eventstudy.Some(0.41), ResidualVariance: eventstudy.Some(0.00031),
				Observations: 248, MeanReturn: eventstudy.Some(0.0006), MeanObservations: 250,
				Status: eventstudy.ParamsEstimated,
			},
			{FirmID: "BBB", Observations: 12, MeanReturn: eventstudy.Some(0.001), MeanObservations: 12, Status: eventstudy.ParamsInsufficient},
		},
		Summary: []eventstudy.SummaryRow{
			{
				Method: eventstudy.MarketModel, Width: 1, N: 1, Positive: 1,
				Mean: eventstudy.Some(0.031), Median: eventstudy.Some(0.031), PositiveShare: eventstudy.Some(1),
				SignPValue: eventstudy.Some(1), RankPValue: eventstudy.Some(1),
			},
			{
				Method: eventstudy.MarketModel, Width: 3, N: 1, Positive: 1,
				Mean: eventstudy.Some(0.045), Median: eventstudy.Some(0.045), PositiveShare: eventstudy.Some(1),
				SignPValue: eventstudy.Some(1), RankPValue: eventstudy.Some(1),
			},
		},
		Diagnostics: eventstudy.Diagnostics{EventsKept: 2, UndefinedCARs: map[string]int{"car1_mm": 1}},
	}
}

func TestSaveRun_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	res := sampleResult()

	require.NoError(t, s.SaveRun(ctx, "run-1", res))

	summary, err := s.LoadSummary(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, res.Summary, summary)

	params, err := s.LoadParams(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, res.Params, params)

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].RunID)
	assert.Equal(t, 2, runs[0].Events)
	assert.Equal(t, 4, runs[0].CARs)
	assert.WithinDuration(t, time.Now(), runs[0].CreatedAt, time.Minute)
}

func TestSaveRun_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	res := sampleResult()

	require.NoError(t, s.SaveRun(ctx, "run-1", res))
	require.NoError(t, s.SaveRun(ctx, "run-1", res))
	require.NoError(t, s.SaveRun(ctx, "run-2", res))

	summary, err := s.LoadSummary(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, summary, 2)

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, run := range runs {
		assert.Equal(t, 4, run.CARs, run.RunID)
	}
}

func TestSaveRun_Replaces(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	res := sampleResult()
	require.NoError(t, s.SaveRun(ctx, "run-1", res))

	res.Params = res.Params[:1]
	res.Summary = res.Summary[1:]
	require.NoError(t, s.SaveRun(ctx, "run-1", res))

	params, err := s.LoadParams(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, params, 1)

	summary, err := s.LoadSummary(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, summary, 1)
	assert.Equal(t, 3, summary[0].Width)
}

func TestSaveRun_Invalid(t *testing.T) {
	s := openTestStore(t)
	err := s.SaveRun(context.Background(), "", sampleResult())
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))

	err = s.SaveRun(context.Background(), "run", nil)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
}

func TestLoad_UnknownRun(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	summary, err := s.LoadSummary(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, summary)

	params, err := s.LoadParams(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, params)
}

func TestOpen_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "results.db")

	s, err := Open(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, s.SaveRun(ctx, "run-1", sampleResult()))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, nil)
	require.NoError(t, err)
	defer s.Close()

	params, err := s.LoadParams(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, params, 2)
}

func TestOpen_BadPath(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "missing", "dir", "x.db"), nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeStorage))
}
