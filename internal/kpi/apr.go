package kpi

import "github.com/lendops/tapekpi/internal/contracts"

// WeightedAPR is the origination-amount-weighted average interest rate.
// It is informational and carries no health thresholds.
type WeightedAPR struct{}

func (WeightedAPR) Meta() Metadata {
	return Metadata{
		Name:    "weighted_apr",
		Formula: "sum(interest_rate * loan_amount) / sum(loan_amount) * 100",
		Unit:    "percent",
		Sources: []string{contracts.ColInterestRate, contracts.ColLoanAmount},
		Owner:   "treasury",
	}
}

func (c WeightedAPR) Calculate(f *contracts.Frame) (float64, Context) {
	meta := c.Meta()
	if ctx, empty := emptyGuard(meta, f); empty {
		return 0, ctx
	}
	return weightedRate(meta, f, contracts.ColInterestRate, contracts.ColLoanAmount, 100)
}
