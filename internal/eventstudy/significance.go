package eventstudy

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// exactRankLimit is the largest tie-free sample whose signed-rank p-value is computed exactly
const exactRankLimit = 50

// TestSignificance runs the cross-sectional tests for every tested method and width.
// The t, sign and signed-rank tests of a row all use the same non-missing CAR sample.
func TestSignificance(cfg Config, results []EventResult) []SummaryRow {
	summary := make([]SummaryRow, 0, len(cfg.TestMethods)*len(cfg.Widths))
	for _, m := range cfg.TestMethods {
		for _, w := range cfg.Widths {
			var sample []float64
			for _, r := range results {
				if c, ok := r.CAR(m, w); ok && c.Value.Valid {
					sample = append(sample, c.Value.Value)
				}
			}
			summary = append(summary, summarize(m, w, sample))
		}
	}
	return summary
}

func summarize(m Method, w int, sample []float64) SummaryRow {
	row := SummaryRow{Method: m, Width: w, N: len(sample)}
	if len(sample) == 0 {
		return row
	}

	for _, v := range sample {
		if v > 0 {
			row.Positive++
		}
	}
	row.PositiveShare = Some(float64(row.Positive) / float64(row.N))
	row.Mean = Some(stat.Mean(sample, nil))

	sorted := append([]float64(nil), sample...)
	sort.Float64s(sorted)
	row.Median = Some(median(sorted))

	if len(sample) > 1 {
		row.StdDev = Some(stat.StdDev(sample, nil))
	}

	row.TStat, row.TPValue = tTest(sample)
	row.SignPValue = signTest(sample)
	row.RankPValue = signedRankTest(sample)
	return row
}

// tTest is the one-sample Student-t test of mean zero
func tTest(sample []float64) (t, p Float) {
	n := len(sample)
	if n < 2 {
		return Float{}, Float{}
	}
	mean, variance := stat.MeanVariance(sample, nil)
	sd := math.Sqrt(variance)
	if sd == 0 || math.IsNaN(sd) {
		return Float{}, Float{}
	}
	tv := mean / (sd / math.Sqrt(float64(n)))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 1)}
	return Some(tv), Some(math.Min(1, 2*dist.Survival(math.Abs(tv))))
}

// signTest is the exact two-sided binomial test of P(CAR > 0) = 0.5, zeros dropped
func signTest(sample []float64) Float {
	var n, k int
	for _, v := range sample {
		if v == 0 {
			continue
		}
		n++
		if v > 0 {
			k++
		}
	}
	if n == 0 {
		return Float{}
	}
	dist := distuv.Binomial{N: float64(n), P: 0.5}
	lower := dist.CDF(float64(k))
	upper := 1 - dist.CDF(float64(k-1))
	return Some(math.Min(1, 2*math.Min(lower, upper)))
}

// signedRankTest is the two-sided Wilcoxon signed-rank test of median zero.
// Zeros are dropped and tied magnitudes get their average rank. Small tie-free samples use the
// exact null distribution; otherwise the normal approximation with tie-corrected variance.
func signedRankTest(sample []float64) Float {
	type obs struct {
		abs      float64
		positive bool
	}
	var xs []obs
	for _, v := range sample {
		if v != 0 {
			xs = append(xs, obs{abs: math.Abs(v), positive: v > 0})
		}
	}
	n := len(xs)
	if n == 0 {
		return Float{}
	}
	sort.SliceStable(xs, func(i, j int) bool { return xs[i].abs < xs[j].abs })

	var wPlus, tieTerm float64
	ties := false
	for i := 0; i < n; {
		j := i
		for j+1 < n && xs[j+1].abs == xs[i].abs {
			j++
		}
		rank := float64(i+j+2) / 2
		if size := float64(j - i + 1); size > 1 {
			ties = true
			tieTerm += size*size*size - size
		}
		for k := i; k <= j; k++ {
			if xs[k].positive {
				wPlus += rank
			}
		}
		i = j + 1
	}

	if !ties && n <= exactRankLimit {
		return Some(exactSignedRankP(n, int(wPlus)))
	}

	nf := float64(n)
	mean := nf * (nf + 1) / 4
	variance := nf*(nf+1)*(2*nf+1)/24 - tieTerm/48
	if variance <= 0 {
		return Float{}
	}
	z := (wPlus - mean) / math.Sqrt(variance)
	return Some(normalTwoSided(z))
}

// exactSignedRankP returns the two-sided exact p-value of W+ = w for n untied ranks
func exactSignedRankP(n, w int) float64 {
	maxSum := n * (n + 1) / 2
	counts := make([]float64, maxSum+1)
	counts[0] = 1
	for r := 1; r <= n; r++ {
		for s := maxSum; s >= r; s-- {
			counts[s] += counts[s-r]
		}
	}
	total := math.Ldexp(1, n)

	var lower, upper float64
	for s, c := range counts {
		if s <= w {
			lower += c
		}
		if s >= w {
			upper += c
		}
	}
	return math.Min(1, 2*math.Min(lower, upper)/total)
}
