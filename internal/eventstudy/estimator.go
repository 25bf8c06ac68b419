package eventstudy

import (
	"context"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// ParamTable maps firm id to its estimated parameters
type ParamTable map[string]FirmParams

// Sorted returns the parameters ordered by firm id
func (t ParamTable) Sorted() []FirmParams {
	out := make([]FirmParams, 0, len(t))
	for _, p := range t {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FirmID < out[j].FirmID })
	return out
}

// Counts tallies firms by parameter status and firms without a mean benchmark
func (t ParamTable) Counts() (estimated, insufficient, degenerate, noMean int) {
	for _, p := range t {
		switch p.Status {
		case ParamsEstimated:
			estimated++
		case ParamsInsufficient:
			insufficient++
		case ParamsDegenerate:
			degenerate++
		}
		if !p.MeanReturn.Valid {
			noMean++
		}
	}
	return estimated, insufficient, degenerate, noMean
}

// estimationSample is one firm's pooled estimation-window observations
type estimationSample struct {
	firm   string
	dates  map[time.Time]bool
	market []float64
	ret    []float64 // paired with market
	means  []float64 // every present firm return, market or not
}

// EstimateParams fits the market model and the mean benchmark for every firm in the panel.
// Only estimation-window rows are read. A firm's rows are pooled across its events, first row per date wins.
// On cancellation the firms finished so far are returned together with the context error.
func EstimateParams(ctx context.Context, cfg Config, rows []PanelRow) (ParamTable, error) {
	samples := groupEstimation(rows)

	firms := make([]string, 0, len(samples))
	for f := range samples {
		firms = append(firms, f)
	}
	sort.Strings(firms)

	results := make([]FirmParams, len(firms))
	done := make([]bool, len(firms))

	limit := cfg.Concurrency
	if limit < 1 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, firm := range firms {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = fitFirm(samples[firm], cfg.MinObservations)
			done[i] = true
			return nil
		})
	}
	err := g.Wait()

	table := make(ParamTable, len(firms))
	for i := range firms {
		if done[i] {
			table[results[i].FirmID] = results[i]
		}
	}
	return table, err
}

// groupEstimation pools estimation rows per firm, skipping rows whose date has been seen for that firm
func groupEstimation(rows []PanelRow) map[string]*estimationSample {
	samples := make(map[string]*estimationSample)
	for _, row := range rows {
		if _, ok := samples[row.FirmID]; !ok && row.FirmID != "" {
			samples[row.FirmID] = &estimationSample{firm: row.FirmID, dates: make(map[time.Time]bool)}
		}
		if !row.Estimation || row.Date.IsZero() {
			continue
		}
		s := samples[row.FirmID]
		if s == nil || s.dates[row.Date] {
			continue
		}
		s.dates[row.Date] = true

		r, ok := row.Return.Get()
		if !ok {
			continue
		}
		s.means = append(s.means, r)
		if m, ok := row.Market.Get(); ok {
			s.market = append(s.market, m)
			s.ret = append(s.ret, r)
		}
	}
	return samples
}

// fitFirm runs closed-form OLS of firm returns on market returns
func fitFirm(s *estimationSample, minObs int) FirmParams {
	p := FirmParams{
		FirmID:           s.firm,
		Observations:     len(s.market),
		MeanObservations: len(s.means),
	}
	if len(s.means) > 0 {
		p.MeanReturn = Some(stat.Mean(s.means, nil))
	}

	n := len(s.market)
	if n < minObs || n < 3 {
		p.Status = ParamsInsufficient
		return p
	}
	if flat(s.market) {
		p.Status = ParamsDegenerate
		return p
	}

	alpha, beta := stat.LinearRegression(s.market, s.ret, nil, false)

	var ssr float64
	for i, x := range s.market {
		e := s.ret[i] - (alpha + beta*x)
		ssr += e * e
	}

	r2 := stat.RSquared(s.market, s.ret, nil, alpha, beta)
	if math.IsNaN(r2) {
		// constant firm returns: the flat line fits exactly
		if ssr == 0 {
			r2 = 1
		}
	}

	p.Alpha = Some(alpha)
	p.Beta = Some(beta)
	p.RSquared = Some(r2)
	p.ResidualVariance = Some(ssr / float64(n-2))
	if !p.Alpha.Valid || !p.Beta.Valid || !p.RSquared.Valid || !p.ResidualVariance.Valid {
		return FirmParams{
			FirmID:           s.firm,
			Observations:     n,
			MeanReturn:       p.MeanReturn,
			MeanObservations: p.MeanObservations,
			Status:           ParamsDegenerate,
		}
	}
	p.Status = ParamsEstimated
	return p
}

// flat reports whether every value equals the first
func flat(xs []float64) bool {
	for _, x := range xs[1:] {
		if x != xs[0] {
			return false
		}
	}
	return true
}
