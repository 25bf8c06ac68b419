package eventstudy

import (
	"context"
	"math"

	"golang.org/x/sync/errgroup"
)

// AggregateCARs sums abnormal returns per event, width and method.
// Days with a missing abnormal return are excluded from the sum; a window with no contributing day has a missing CAR.
// Results follow the order of events. On cancellation only completed events are returned, with the context error.
func AggregateCARs(ctx context.Context, cfg Config, events []Event, rows []AbnormalRow, params ParamTable) ([]EventResult, error) {
	byEvent := make(map[string][]int, len(events))
	for i, row := range rows {
		if row.EventWindow {
			byEvent[row.EventID] = append(byEvent[row.EventID], i)
		}
	}

	results := make([]EventResult, len(events))
	done := make([]bool, len(events))

	limit := cfg.Concurrency
	if limit < 1 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, ev := range events {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p := params[ev.FirmID]
			if p.FirmID == "" {
				p.FirmID = ev.FirmID
			}
			results[i] = EventResult{
				EventID: ev.ID,
				FirmID:  ev.FirmID,
				Date:    ev.Date,
				Params:  p,
				CARs:    eventCARs(cfg.Widths, rows, byEvent[ev.ID], p),
			}
			done[i] = true
			return nil
		})
	}
	err := g.Wait()

	out := make([]EventResult, 0, len(events))
	for i := range results {
		if done[i] {
			out = append(out, results[i])
		}
	}
	return out, err
}

// eventCARs computes every (method, width) CAR of one event, method-major and widths ascending
func eventCARs(widths []int, rows []AbnormalRow, idx []int, p FirmParams) []CAR {
	se, hasSE := p.StdErr().Get()

	cars := make([]CAR, 0, len(Methods)*len(widths))
	for _, m := range Methods {
		for _, w := range widths {
			c := CAR{Method: m, Width: w}
			var sum float64
			for _, i := range idx {
				row := rows[i]
				if !row.InWindow(w) {
					continue
				}
				if v, ok := row.AR[m].Get(); ok {
					sum += v
					c.Days++
				}
			}
			if c.Days > 0 {
				c.Value = Some(sum)
				if m == MarketModel && hasSE && se > 0 {
					c.TStat = Some(sum / (se * math.Sqrt(float64(c.Days))))
				}
			}
			cars = append(cars, c)
		}
	}
	return cars
}

// undefinedCARs counts missing CARs per output column
func undefinedCARs(results []EventResult) map[string]int {
	counts := make(map[string]int)
	for _, r := range results {
		for _, c := range r.CARs {
			if !c.Value.Valid {
				counts[carColumn(c.Width, c.Method)]++
			}
		}
	}
	return counts
}
