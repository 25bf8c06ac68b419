package eventstudy

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// ComputeAbnormal derives the three abnormal returns and the market-model row statistics for every panel row.
// The panel is not modified; each method is computed independently of the others.
func ComputeAbnormal(cfg Config, rows []PanelRow, params ParamTable) []AbnormalRow {
	out := make([]AbnormalRow, len(rows))
	for i, row := range rows {
		p := params[row.FirmID]
		ar := AbnormalRow{PanelRow: row}

		r, hasReturn := row.Return.Get()
		m, hasMarket := row.Market.Get()

		if hasReturn {
			if hasMarket {
				if expected := p.Predict(m); expected.Valid {
					ar.AR[MarketModel] = Some(r - expected.Value)
				}
				ar.AR[MarketAdjusted] = Some(r - m)
			}
			if mean, ok := p.MeanReturn.Get(); ok {
				ar.AR[MeanAdjusted] = Some(r - mean)
			}
		}

		ar.StdErr = p.StdErr()
		if se, ok := ar.StdErr.Get(); ok && se > 0 && ar.AR[MarketModel].Valid {
			t := ar.AR[MarketModel].Value / se
			ar.TStat = Some(t)
			ar.PValue = Some(normalTwoSided(t))
			ar.Significant = ar.PValue.Valid && ar.PValue.Value < cfg.SignificanceThreshold
		}

		out[i] = ar
	}
	return out
}

// normalTwoSided returns the two-tailed standard normal p-value of a test statistic
func normalTwoSided(z float64) float64 {
	return math.Min(1, 2*distuv.UnitNormal.Survival(math.Abs(z)))
}
