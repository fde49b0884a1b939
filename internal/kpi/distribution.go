package kpi

import "github.com/lendops/tapekpi/internal/contracts"

// DPDDistribution reports how the total receivable is spread across the DPD
// buckets. The value is the share of receivable captured by the bucket
// columns present on the tape; the per-bucket shares are carried in the
// components map. Informational, no thresholds.
type DPDDistribution struct{}

func (DPDDistribution) Meta() Metadata {
	return Metadata{
		Name:    "dpd_distribution",
		Formula: "sum(dpd bucket balances) / total_receivable * 100, per-bucket shares in components",
		Unit:    "percent",
		Sources: append(contracts.DPDBucketColumns(), contracts.ColTotalReceivable),
		Owner:   "credit-risk",
	}
}

func (c DPDDistribution) Calculate(f *contracts.Frame) (float64, Context) {
	meta := c.Meta()
	if ctx, empty := emptyGuard(meta, f); empty {
		return 0, ctx
	}
	ctx := baseContext(meta, f)

	if !f.HasColumn(contracts.ColTotalReceivable) {
		ctx["reason"] = "Missing total receivable column"
		return 0, ctx
	}
	receivable, _ := sumColumn(f, contracts.ColTotalReceivable)
	if receivable == 0 {
		ctx["reason"] = "Zero total receivable"
		return 0, ctx
	}

	shares := make(map[string]float64)
	var bucketed float64
	for _, col := range contracts.DPDBucketColumns() {
		if !f.HasColumn(col) {
			continue
		}
		sum, _ := sumColumn(f, col)
		shares[col] = sum / receivable * 100
		bucketed += sum
	}
	if len(shares) == 0 {
		ctx["reason"] = "Missing DPD bucket columns"
		return 0, ctx
	}

	ctx["components"] = shares
	return bucketed / receivable * 100, ctx
}
