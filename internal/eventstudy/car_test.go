package eventstudy

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// windowRows builds event-window rows for offsets -maxW..maxW with the given abnormal return per offset
func windowRows(eventID, firm string, maxW int, ar func(offset int) Float) []AbnormalRow {
	var rows []AbnormalRow
	for o := -maxW; o <= maxW; o++ {
		row := AbnormalRow{PanelRow: PanelRow{EventID: eventID, FirmID: firm, Offset: o, EventWindow: true}}
		v := ar(o)
		for m := range row.AR {
			row.AR[m] = v
		}
		rows = append(rows, row)
	}
	return rows
}

func TestAggregateCARs_NestedWindows(t *testing.T) {
	cfg := DefaultConfig()
	events := []Event{{ID: "E1", FirmID: "F", Date: day(2020, 3, 16)}}
	rows := windowRows("E1", "F", 10, func(int) Float { return Some(0.01) })

	results, err := AggregateCARs(context.Background(), cfg, events, rows, ParamTable{})
	require.NoError(t, err)
	require.Len(t, results, 1)

	want := map[int]float64{1: 0.03, 3: 0.07, 5: 0.11, 10: 0.21}
	for _, m := range Methods {
		for w, v := range want {
			c, ok := results[0].CAR(m, w)
			require.True(t, ok)
			assert.InDelta(t, v, c.Value.Value, 1e-12, "%s width %d", m, w)
			assert.Equal(t, 2*w+1, c.Days)
		}
	}
	assert.Len(t, results[0].CARs, len(Methods)*len(cfg.Widths))
	assert.Equal(t, "F", results[0].Params.FirmID)
}

func TestAggregateCARs_MissingDayIsExcluded(t *testing.T) {
	cfg := DefaultConfig()
	events := []Event{{ID: "E1", FirmID: "F"}}
	rows := windowRows("E1", "F", 10, func(o int) Float {
		switch o {
		case -1:
			return Some(0.01)
		case 0:
			return Float{}
		case 1:
			return Some(0.02)
		default:
			return Some(0.005)
		}
	})

	results, err := AggregateCARs(context.Background(), cfg, events, rows, ParamTable{})
	require.NoError(t, err)

	c, _ := results[0].CAR(MarketModel, 1)
	assert.InDelta(t, 0.03, c.Value.Value, 1e-15)
	assert.Equal(t, 2, c.Days)

	c, _ = results[0].CAR(MarketModel, 3)
	assert.InDelta(t, 0.05, c.Value.Value, 1e-15)
	assert.Equal(t, 6, c.Days)
}

func TestAggregateCARs_NoContributingDays(t *testing.T) {
	cfg := DefaultConfig()
	events := []Event{{ID: "E1", FirmID: "F"}, {ID: "E2", FirmID: "G"}}
	rows := append(
		windowRows("E1", "F", 10, func(o int) Float {
			if o >= -1 && o <= 1 {
				return Float{}
			}
			return Some(0.01)
		}),
		windowRows("E2", "G", 10, func(int) Float { return Float{} })...,
	)

	results, err := AggregateCARs(context.Background(), cfg, events, rows, ParamTable{})
	require.NoError(t, err)
	require.Len(t, results, 2)

	c, _ := results[0].CAR(MarketModel, 1)
	assert.False(t, c.Value.Valid)
	assert.Equal(t, 0, c.Days)
	c, _ = results[0].CAR(MarketModel, 3)
	assert.InDelta(t, 0.04, c.Value.Value, 1e-15)

	for _, c := range results[1].CARs {
		assert.False(t, c.Value.Valid)
	}

	undefined := undefinedCARs(results)
	assert.Equal(t, 2, undefined["car1_mm"])
	assert.Equal(t, 1, undefined["car10_mean"])
}

func TestAggregateCARs_IgnoresEstimationRows(t *testing.T) {
	cfg := DefaultConfig()
	events := []Event{{ID: "E1", FirmID: "F"}}
	rows := windowRows("E1", "F", 10, func(int) Float { return Some(0.01) })
	est := AbnormalRow{PanelRow: PanelRow{EventID: "E1", FirmID: "F", Offset: -20, Estimation: true}}
	est.AR[MarketModel] = Some(5)
	rows = append([]AbnormalRow{est}, rows...)

	results, err := AggregateCARs(context.Background(), cfg, events, rows, ParamTable{})
	require.NoError(t, err)

	c, _ := results[0].CAR(MarketModel, 10)
	assert.InDelta(t, 0.21, c.Value.Value, 1e-12)
}

func TestAggregateCARs_MarketModelTStat(t *testing.T) {
	cfg := DefaultConfig()
	events := []Event{{ID: "E1", FirmID: "F"}}
	rows := windowRows("E1", "F", 10, func(int) Float { return Some(0.01) })
	params := ParamTable{"F": {
		FirmID: "F", Alpha: Some(0), Beta: Some(1), RSquared: Some(0.3),
		ResidualVariance: Some(0.0004), Status: ParamsEstimated,
	}}

	results, err := AggregateCARs(context.Background(), cfg, events, rows, params)
	require.NoError(t, err)

	c, _ := results[0].CAR(MarketModel, 1)
	assert.InDelta(t, 0.03/(0.02*math.Sqrt(3)), c.TStat.Value, 1e-12)

	c, _ = results[0].CAR(MarketAdjusted, 1)
	assert.False(t, c.TStat.Valid)
	assert.Equal(t, params["F"], results[0].Params)
}

func TestAggregateCARs_OrderAndConcurrency(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Concurrency = 3

	var events []Event
	var rows []AbnormalRow
	for i := 0; i < 20; i++ {
		id := string(rune('a' + i))
		events = append(events, Event{ID: id, FirmID: "F" + id})
		v := float64(i) / 1000
		rows = append(rows, windowRows(id, "F"+id, 10, func(int) Float { return Some(v) })...)
	}

	results, err := AggregateCARs(context.Background(), cfg, events, rows, ParamTable{})
	require.NoError(t, err)
	require.Len(t, results, 20)
	for i, r := range results {
		assert.Equal(t, events[i].ID, r.EventID)
		c, _ := r.CAR(MarketModel, 1)
		assert.InDelta(t, 3*float64(i)/1000, c.Value.Value, 1e-12)
	}
}

func TestAggregateCARs_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events := []Event{{ID: "E1", FirmID: "F"}}
	rows := windowRows("E1", "F", 10, func(int) Float { return Some(0.01) })

	results, err := AggregateCARs(ctx, DefaultConfig(), events, rows, ParamTable{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
}
