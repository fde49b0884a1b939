// Package kpi implements the portfolio KPI engine. Each metric is an
// independent calculator that pulls its own columns from the loan tape,
// degrades to a zero value with an explanatory context when inputs are
// missing, and never aborts the run for its peers.
package kpi

import (
	"math"
	"time"

	"github.com/lendops/tapekpi/internal/contracts"
)

// Context carries per-calculation diagnostics alongside the numeric value:
// the formula applied, row counts, fallbacks taken and degradation reasons.
type Context map[string]interface{}

// Metadata describes a KPI independently of any particular loan tape.
type Metadata struct {
	Name          string
	Formula       string
	Unit          string
	Sources       []string
	Owner         string
	Target        float64
	WarnThreshold float64
	CritThreshold float64
	HigherIsWorse bool
}

// Calculator computes one KPI from a loan tape. Implementations must not
// panic on malformed input; they report problems through the context.
type Calculator interface {
	Meta() Metadata
	Calculate(f *contracts.Frame) (float64, Context)
}

// Composite computes a KPI from previously computed primitives rather than
// from the raw tape. Composites run after all calculators.
type Composite interface {
	Meta() Metadata
	CalculateFrom(values map[string]float64) (float64, Context, error)
}

func baseContext(meta Metadata, f *contracts.Frame) Context {
	rows := 0
	if f != nil {
		rows = f.NumRows()
	}
	return Context{
		"formula":     meta.Formula,
		"rows":        rows,
		"computed_at": time.Now().UTC().Format(time.RFC3339),
	}
}

// emptyGuard handles the nil/empty tape case shared by every calculator.
func emptyGuard(meta Metadata, f *contracts.Frame) (Context, bool) {
	if f == nil || f.IsEmpty() {
		ctx := baseContext(meta, f)
		ctx["reason"] = "Empty loan tape"
		return ctx, true
	}
	return nil, false
}

// sumColumn sums the numeric values of a column, skipping nulls and
// uncoercible cells. The second return is how many cells were skipped.
func sumColumn(f *contracts.Frame, col string) (float64, int) {
	vals := f.Floats(col)
	if vals == nil {
		return 0, f.NumRows()
	}
	var sum float64
	skipped := 0
	for _, v := range vals {
		if math.IsNaN(v) {
			skipped++
			continue
		}
		sum += v
	}
	return sum, skipped
}

// statusFor derives the health status of a value against the KPI's
// thresholds. KPIs without thresholds are informational.
func statusFor(meta Metadata, value float64) contracts.KPIStatus {
	if meta.WarnThreshold == 0 && meta.CritThreshold == 0 {
		return contracts.StatusUnknown
	}
	if meta.HigherIsWorse {
		switch {
		case value >= meta.CritThreshold:
			return contracts.StatusCritical
		case value >= meta.WarnThreshold:
			return contracts.StatusWarning
		}
		return contracts.StatusHealthy
	}
	switch {
	case value <= meta.CritThreshold:
		return contracts.StatusCritical
	case value <= meta.WarnThreshold:
		return contracts.StatusWarning
	}
	return contracts.StatusHealthy
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
