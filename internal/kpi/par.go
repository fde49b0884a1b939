package kpi

import (
	"strings"

	"github.com/lendops/tapekpi/internal/contracts"
)

// PAR30 is the portfolio-at-risk ratio over 30 days: the share of total
// receivable sitting in the 30-60, 60-90 and 90+ DPD buckets.
type PAR30 struct{}

func (PAR30) Meta() Metadata {
	return Metadata{
		Name:    "par_30",
		Formula: "(dpd_30_60 + dpd_60_90 + dpd_90_plus) / total_receivable * 100",
		Unit:    "percent",
		Sources: []string{
			contracts.ColDPD30to60, contracts.ColDPD60to90,
			contracts.ColDPD90Plus, contracts.ColTotalReceivable,
		},
		Owner:         "credit-risk",
		Target:        3.0,
		WarnThreshold: 5.0,
		CritThreshold: 10.0,
		HigherIsWorse: true,
	}
}

func (c PAR30) Calculate(f *contracts.Frame) (float64, Context) {
	meta := c.Meta()
	if ctx, empty := emptyGuard(meta, f); empty {
		return 0, ctx
	}
	ctx := baseContext(meta, f)

	buckets := []string{contracts.ColDPD30to60, contracts.ColDPD60to90, contracts.ColDPD90Plus}
	if hasAll(f, append(buckets, contracts.ColTotalReceivable)) {
		var delinquent float64
		for _, col := range buckets {
			s, _ := sumColumn(f, col)
			delinquent += s
		}
		receivable, _ := sumColumn(f, contracts.ColTotalReceivable)
		if receivable == 0 {
			ctx["reason"] = "Zero total receivable"
			return 0, ctx
		}
		ctx["components"] = map[string]float64{
			"delinquent_balance": delinquent,
			"total_receivable":   receivable,
		}
		return delinquent / receivable * 100, ctx
	}

	// Count-based fallback when the tape carries loan statuses but no
	// balance buckets. Flagged in the context because a count ratio is
	// not balance-weighted.
	if f.HasColumn(contracts.ColLoanStatus) {
		statuses := f.Strings(contracts.ColLoanStatus)
		delinquent := 0
		for _, s := range statuses {
			if isDelinquentStatus(s) {
				delinquent++
			}
		}
		ctx["fallback"] = "loan_status"
		ctx["components"] = map[string]float64{
			"delinquent_loans": float64(delinquent),
			"total_loans":      float64(len(statuses)),
		}
		if len(statuses) == 0 {
			ctx["reason"] = "No loan status rows"
			return 0, ctx
		}
		return float64(delinquent) / float64(len(statuses)) * 100, ctx
	}

	ctx["reason"] = "Missing DPD bucket columns"
	return 0, ctx
}

// PAR90 is the share of total receivable in the 90+ DPD bucket.
type PAR90 struct{}

func (PAR90) Meta() Metadata {
	return Metadata{
		Name:          "par_90",
		Formula:       "dpd_90_plus / total_receivable * 100",
		Unit:          "percent",
		Sources:       []string{contracts.ColDPD90Plus, contracts.ColTotalReceivable},
		Owner:         "credit-risk",
		Target:        1.0,
		WarnThreshold: 3.0,
		CritThreshold: 5.0,
		HigherIsWorse: true,
	}
}

func (c PAR90) Calculate(f *contracts.Frame) (float64, Context) {
	meta := c.Meta()
	if ctx, empty := emptyGuard(meta, f); empty {
		return 0, ctx
	}
	ctx := baseContext(meta, f)
	if !hasAll(f, []string{contracts.ColDPD90Plus, contracts.ColTotalReceivable}) {
		ctx["reason"] = "Missing DPD bucket columns"
		return 0, ctx
	}
	over90, _ := sumColumn(f, contracts.ColDPD90Plus)
	receivable, _ := sumColumn(f, contracts.ColTotalReceivable)
	if receivable == 0 {
		ctx["reason"] = "Zero total receivable"
		return 0, ctx
	}
	ctx["components"] = map[string]float64{
		"dpd_90_plus":      over90,
		"total_receivable": receivable,
	}
	return over90 / receivable * 100, ctx
}

func hasAll(f *contracts.Frame, cols []string) bool {
	for _, c := range cols {
		if !f.HasColumn(c) {
			return false
		}
	}
	return true
}

func isDelinquentStatus(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "delinquent", "default", "defaulted", "late", "past_due", "past due", "npl":
		return true
	}
	return false
}
