package kpi

import (
	"math"

	"github.com/lendops/tapekpi/internal/contracts"
)

// PortfolioYield is the principal-weighted average interest rate of the
// tape, expressed as a percentage.
type PortfolioYield struct{}

func (PortfolioYield) Meta() Metadata {
	return Metadata{
		Name:          "portfolio_yield",
		Formula:       "sum(interest_rate * principal_balance) / sum(principal_balance) * 100",
		Unit:          "percent",
		Sources:       []string{contracts.ColInterestRate, contracts.ColPrincipalBalance},
		Owner:         "treasury",
		Target:        12.0,
		WarnThreshold: 10.0,
		CritThreshold: 6.0,
		HigherIsWorse: false,
	}
}

func (c PortfolioYield) Calculate(f *contracts.Frame) (float64, Context) {
	meta := c.Meta()
	if ctx, empty := emptyGuard(meta, f); empty {
		return 0, ctx
	}
	return weightedRate(meta, f, contracts.ColInterestRate, contracts.ColPrincipalBalance, 100)
}

// weightedRate computes sum(rate*weight)/sum(weight)*scale over rows where
// both cells are present.
func weightedRate(meta Metadata, f *contracts.Frame, rateCol, weightCol string, scale float64) (float64, Context) {
	ctx := baseContext(meta, f)
	if !hasAll(f, []string{rateCol, weightCol}) {
		ctx["reason"] = "Missing " + rateCol + " or " + weightCol
		return 0, ctx
	}
	rates := f.Floats(rateCol)
	weights := f.Floats(weightCol)

	var weighted, total float64
	for i := range rates {
		if math.IsNaN(rates[i]) || math.IsNaN(weights[i]) {
			continue
		}
		weighted += rates[i] * weights[i]
		total += weights[i]
	}
	if total == 0 {
		ctx["reason"] = "Zero " + weightCol
		return 0, ctx
	}
	ctx["components"] = map[string]float64{
		"weighted_sum": weighted,
		"total_weight": total,
	}
	return weighted / total * scale, ctx
}
