package kpi

import (
	"math"

	"github.com/lendops/tapekpi/internal/contracts"
)

// LTV is the mean loan-to-value ratio across the tape. Rows with a zero or
// missing appraised value are excluded rather than poisoning the mean.
type LTV struct{}

func (LTV) Meta() Metadata {
	return Metadata{
		Name:          "ltv",
		Formula:       "mean(loan_amount / appraised_value * 100)",
		Unit:          "percent",
		Sources:       []string{contracts.ColLoanAmount, contracts.ColAppraisedValue},
		Owner:         "underwriting",
		Target:        70.0,
		WarnThreshold: 80.0,
		CritThreshold: 95.0,
		HigherIsWorse: true,
	}
}

func (c LTV) Calculate(f *contracts.Frame) (float64, Context) {
	meta := c.Meta()
	if ctx, empty := emptyGuard(meta, f); empty {
		return 0, ctx
	}
	return rowMeanRatio(meta, f, contracts.ColLoanAmount, contracts.ColAppraisedValue, 1)
}

// rowMeanRatio computes the mean of num/(den*denScale)*100 over rows where
// both sides are present and the denominator is non-zero.
func rowMeanRatio(meta Metadata, f *contracts.Frame, numCol, denCol string, denScale float64) (float64, Context) {
	ctx := baseContext(meta, f)
	if !hasAll(f, []string{numCol, denCol}) {
		ctx["reason"] = "Missing " + numCol + " or " + denCol
		return 0, ctx
	}
	nums := f.Floats(numCol)
	dens := f.Floats(denCol)

	var sum float64
	valid, excluded := 0, 0
	for i := range nums {
		den := dens[i] * denScale
		if math.IsNaN(nums[i]) || math.IsNaN(dens[i]) || den == 0 {
			excluded++
			continue
		}
		sum += nums[i] / den * 100
		valid++
	}
	ctx["components"] = map[string]float64{
		"valid_rows":    float64(valid),
		"excluded_rows": float64(excluded),
	}
	if valid == 0 {
		ctx["reason"] = "No rows with a usable denominator"
		return 0, ctx
	}
	return sum / float64(valid), ctx
}
