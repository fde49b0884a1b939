package kpi

import (
	"math"
	"strings"

	"github.com/lendops/tapekpi/internal/contracts"
)

// SegmentConcentration reports the receivable share of the largest segment,
// with the full per-segment mix carried in the components map.
type SegmentConcentration struct{}

func (SegmentConcentration) Meta() Metadata {
	return Metadata{
		Name:          "segment_concentration",
		Formula:       "max(segment receivable share) * 100",
		Unit:          "percent",
		Sources:       []string{contracts.ColSegment, contracts.ColTotalReceivable},
		Owner:         "credit-risk",
		WarnThreshold: 60.0,
		CritThreshold: 80.0,
		HigherIsWorse: true,
	}
}

func (c SegmentConcentration) Calculate(f *contracts.Frame) (float64, Context) {
	meta := c.Meta()
	if ctx, empty := emptyGuard(meta, f); empty {
		return 0, ctx
	}
	ctx := baseContext(meta, f)
	if !hasAll(f, []string{contracts.ColSegment, contracts.ColTotalReceivable}) {
		ctx["reason"] = "Missing segment or receivable columns"
		return 0, ctx
	}
	shares, total := SegmentShares(f)
	if total == 0 {
		ctx["reason"] = "Zero total receivable"
		return 0, ctx
	}
	top := 0.0
	for _, share := range shares {
		if share > top {
			top = share
		}
	}
	ctx["components"] = shares
	return top, ctx
}

// SegmentShares groups total receivable by segment and returns each
// segment's share of the total as a percentage. Rows with a blank segment
// fall into "unsegmented".
func SegmentShares(f *contracts.Frame) (map[string]float64, float64) {
	if f == nil || !f.HasColumn(contracts.ColSegment) || !f.HasColumn(contracts.ColTotalReceivable) {
		return nil, 0
	}
	segments := f.Strings(contracts.ColSegment)
	amounts := f.Floats(contracts.ColTotalReceivable)

	byroot := make(map[string]float64)
	var total float64
	for i := range segments {
		if math.IsNaN(amounts[i]) {
			continue
		}
		name := strings.TrimSpace(strings.ToLower(segments[i]))
		if name == "" {
			name = "unsegmented"
		}
		byroot[name] += amounts[i]
		total += amounts[i]
	}
	if total == 0 {
		return nil, 0
	}
	shares := make(map[string]float64, len(byroot))
	for name, amount := range byroot {
		shares[name] = amount / total * 100
	}
	return shares, total
}
