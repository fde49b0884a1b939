package kpi

import "fmt"

// PortfolioHealth blends delinquency and collection performance into a
// single 0-10 score. It consumes already-computed primitives, so the engine
// always runs it after the per-metric calculators.
type PortfolioHealth struct{}

func (PortfolioHealth) Meta() Metadata {
	return Metadata{
		Name:          "portfolio_health",
		Formula:       "clamp(0, 10, (10 - par_30/10) * (collection_rate/10))",
		Unit:          "score",
		Sources:       []string{"par_30", "collection_rate"},
		Owner:         "credit-risk",
		Target:        8.0,
		WarnThreshold: 6.0,
		CritThreshold: 4.0,
		HigherIsWorse: false,
	}
}

func (c PortfolioHealth) CalculateFrom(values map[string]float64) (float64, Context, error) {
	meta := c.Meta()
	ctx := Context{"formula": meta.Formula}
	for _, dep := range meta.Sources {
		if _, ok := values[dep]; !ok {
			return 0, ctx, fmt.Errorf("missing prerequisite %q for %s", dep, meta.Name)
		}
	}
	par30 := values["par_30"]
	rate := values["collection_rate"]
	ctx["components"] = map[string]float64{
		"par_30":          par30,
		"collection_rate": rate,
	}
	score := (10 - par30/10) * (rate / 10)
	return clamp(score, 0, 10), ctx, nil
}
