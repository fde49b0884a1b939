package kpi

import "github.com/lendops/tapekpi/internal/contracts"

// CollectionRate measures how much of the eligible balance was actually
// collected as cash over the measurement window.
type CollectionRate struct{}

func (CollectionRate) Meta() Metadata {
	return Metadata{
		Name:          "collection_rate",
		Formula:       "cash_available / total_eligible * 100",
		Unit:          "percent",
		Sources:       []string{contracts.ColCashAvailable, contracts.ColTotalEligible},
		Owner:         "servicing",
		Target:        95.0,
		WarnThreshold: 90.0,
		CritThreshold: 80.0,
		HigherIsWorse: false,
	}
}

func (c CollectionRate) Calculate(f *contracts.Frame) (float64, Context) {
	meta := c.Meta()
	if ctx, empty := emptyGuard(meta, f); empty {
		return 0, ctx
	}
	ctx := baseContext(meta, f)
	if !hasAll(f, []string{contracts.ColCashAvailable, contracts.ColTotalEligible}) {
		ctx["reason"] = "Missing cash or eligible columns"
		return 0, ctx
	}
	cash, _ := sumColumn(f, contracts.ColCashAvailable)
	eligible, _ := sumColumn(f, contracts.ColTotalEligible)
	if eligible == 0 {
		ctx["reason"] = "Zero total eligible"
		return 0, ctx
	}
	ctx["components"] = map[string]float64{
		"cash_available": cash,
		"total_eligible": eligible,
	}
	return cash / eligible * 100, ctx
}
