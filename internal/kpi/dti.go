package kpi

import "github.com/lendops/tapekpi/internal/contracts"

// DTI is the mean debt-to-income ratio across the tape, with borrower income
// converted from annual to monthly. Zero-income rows are excluded.
type DTI struct{}

func (DTI) Meta() Metadata {
	return Metadata{
		Name:          "dti",
		Formula:       "mean(monthly_debt / (borrower_income / 12) * 100)",
		Unit:          "percent",
		Sources:       []string{contracts.ColMonthlyDebt, contracts.ColBorrowerIncome},
		Owner:         "underwriting",
		Target:        30.0,
		WarnThreshold: 36.0,
		CritThreshold: 43.0,
		HigherIsWorse: true,
	}
}

func (c DTI) Calculate(f *contracts.Frame) (float64, Context) {
	meta := c.Meta()
	if ctx, empty := emptyGuard(meta, f); empty {
		return 0, ctx
	}
	return rowMeanRatio(meta, f, contracts.ColMonthlyDebt, contracts.ColBorrowerIncome, 1.0/12.0)
}
