package eventstudy

import (
	"fmt"
	"time"

	apperrors "eventstudy/internal/errors"
)

// Benchmark holds one market return per calendar date, built on a single basis
type Benchmark struct {
	Basis   Weighting
	returns map[time.Time]Float
}

// At returns the benchmark return for a date; missing when no return exists for it
func (b Benchmark) At(date time.Time) Float {
	if date.IsZero() || b.returns == nil {
		return Float{}
	}
	return b.returns[civilDate(date)]
}

// Len returns the number of dates with a defined benchmark return
func (b Benchmark) Len() int {
	return len(b.returns)
}

// ResolveWeighting picks the concrete benchmark basis for a return panel.
// Auto prefers a supplied market column, then value weights, then equal weights.
func ResolveWeighting(returns []DailyReturn, w Weighting) (Weighting, error) {
	var hasMarket, hasWeight bool
	for _, r := range returns {
		if r.Market.Valid {
			hasMarket = true
		}
		if r.Weight.Valid && r.Weight.Value > 0 {
			hasWeight = true
		}
	}

	switch w {
	case WeightingAuto, "":
		switch {
		case hasMarket:
			return WeightingSupplied, nil
		case hasWeight:
			return WeightingValue, nil
		default:
			return WeightingEqual, nil
		}
	case WeightingSupplied:
		if !hasMarket {
			return "", apperrors.NewMissingInputError("supplied weighting requires a market return column", "mkt")
		}
		return w, nil
	case WeightingValue:
		if !hasWeight {
			return "", apperrors.NewMissingInputError("value weighting requires a positive weight column", "weight")
		}
		return w, nil
	case WeightingEqual:
		return w, nil
	default:
		return "", fmt.Errorf("unknown weighting %q", w)
	}
}

// BuildBenchmark constructs the market return series used by every adjustment method.
// Returns must already be deduplicated by firm and date.
func BuildBenchmark(returns []DailyReturn, w Weighting) (Benchmark, error) {
	basis, err := ResolveWeighting(returns, w)
	if err != nil {
		return Benchmark{}, err
	}

	b := Benchmark{Basis: basis, returns: make(map[time.Time]Float)}

	switch basis {
	case WeightingSupplied:
		// the market column is the same series repeated per firm; first present value wins
		for _, r := range returns {
			if r.Date.IsZero() || !r.Market.Valid {
				continue
			}
			d := civilDate(r.Date)
			if _, ok := b.returns[d]; !ok {
				b.returns[d] = r.Market
			}
		}

	case WeightingValue, WeightingEqual:
		type acc struct{ sum, weight float64 }
		sums := make(map[time.Time]*acc)
		for _, r := range returns {
			ret, ok := r.Return.Get()
			if r.Date.IsZero() || !ok {
				continue
			}
			weight := 1.0
			if basis == WeightingValue {
				wv, ok := r.Weight.Get()
				if !ok || wv <= 0 {
					continue
				}
				weight = wv
			}
			d := civilDate(r.Date)
			a := sums[d]
			if a == nil {
				a = &acc{}
				sums[d] = a
			}
			a.sum += weight * ret
			a.weight += weight
		}
		for d, a := range sums {
			if a.weight > 0 {
				b.returns[d] = Some(a.sum / a.weight)
			}
		}
	}

	return b, nil
}
