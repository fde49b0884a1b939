package kpi

import (
	"context"
	"fmt"
	"time"

	"github.com/lendops/tapekpi/internal/contracts"
	"github.com/lendops/tapekpi/pkg/logger"
	"github.com/lendops/tapekpi/pkg/redis"
)

// Engine runs every registered calculator against one loan tape, then the
// composites over the resulting primitives. A failing calculator yields a
// result entry with the Error field set instead of aborting the run, so the
// output always carries one entry per registered KPI.
type Engine struct {
	frame       *contracts.Frame
	log         *logger.Logger
	trail       *contracts.AuditTrail
	calculators []Calculator
	composites  []Composite
	cache       *redis.Cache
	cacheTTL    time.Duration
}

// NewEngine builds an engine over a loan tape with the default calculator
// set registered. The actor and action are stamped on every audit entry.
func NewEngine(f *contracts.Frame, log *logger.Logger, actor, action string) *Engine {
	return &Engine{
		frame: f,
		log:   log,
		trail: contracts.NewAuditTrail(actor, action),
		calculators: []Calculator{
			PAR30{}, PAR90{}, DPDDistribution{}, CollectionRate{},
			LTV{}, DTI{},
			PortfolioYield{}, WeightedAPR{},
			SegmentConcentration{},
		},
		composites: []Composite{PortfolioHealth{}},
	}
}

// WithCalculators replaces the default calculator set.
func (e *Engine) WithCalculators(calcs ...Calculator) *Engine {
	e.calculators = calcs
	return e
}

// WithComposites replaces the default composite set.
func (e *Engine) WithComposites(comps ...Composite) *Engine {
	e.composites = comps
	return e
}

// WithCache enables result caching keyed by the tape's content hash.
func (e *Engine) WithCache(cache *redis.Cache, ttl time.Duration) *Engine {
	e.cache = cache
	e.cacheTTL = ttl
	return e
}

// CalculateAll runs every calculator and, when includeComposites is set,
// every composite. The returned map has exactly one entry per registered
// KPI regardless of individual failures.
func (e *Engine) CalculateAll(ctx context.Context, includeComposites bool) map[string]*contracts.KPIResult {
	inputsHash := e.frame.Hash()
	asOf := e.asOfDate()

	if cached, ok := e.fromCache(ctx, inputsHash, includeComposites); ok {
		return cached
	}

	results := make(map[string]*contracts.KPIResult, len(e.calculators)+len(e.composites))
	primitives := make(map[string]float64, len(e.calculators))

	for _, calc := range e.calculators {
		res := e.runCalculator(calc, inputsHash, asOf)
		results[res.KPIKey] = res
		if res.Error == "" && res.Value != nil {
			primitives[res.KPIKey] = *res.Value
		}
	}

	if includeComposites {
		for _, comp := range e.composites {
			res := e.runComposite(comp, primitives, inputsHash, asOf)
			results[res.KPIKey] = res
		}
	}

	e.toCache(ctx, inputsHash, includeComposites, results)
	return results
}

// runCalculator executes one calculator, converts a panic into an error
// result, and appends exactly one audit entry for the invocation.
func (e *Engine) runCalculator(calc Calculator, inputsHash string, asOf time.Time) (res *contracts.KPIResult) {
	meta := calc.Meta()
	res = e.newResult(meta, inputsHash, asOf)

	defer func() {
		if r := recover(); r != nil {
			res.Error = fmt.Sprintf("calculator panic: %v", r)
			res.Status = contracts.StatusUnknown
			e.log.WithField("kpi", meta.Name).Errorf("calculator panicked: %v", r)
		}
		e.audit(res)
	}()

	value, kctx := calc.Calculate(e.frame)
	e.fill(res, meta, value, kctx)
	return res
}

func (e *Engine) runComposite(comp Composite, primitives map[string]float64, inputsHash string, asOf time.Time) (res *contracts.KPIResult) {
	meta := comp.Meta()
	res = e.newResult(meta, inputsHash, asOf)

	defer func() {
		if r := recover(); r != nil {
			res.Error = fmt.Sprintf("composite panic: %v", r)
			res.Status = contracts.StatusUnknown
		}
		e.audit(res)
	}()

	value, kctx, err := comp.CalculateFrom(primitives)
	if err != nil {
		res.Error = err.Error()
		res.Status = contracts.StatusUnknown
		res.Context = kctx
		return res
	}
	e.fill(res, meta, value, kctx)
	return res
}

func (e *Engine) newResult(meta Metadata, inputsHash string, asOf time.Time) *contracts.KPIResult {
	res := &contracts.KPIResult{
		KPIKey:     meta.Name,
		Unit:       meta.Unit,
		Status:     contracts.StatusUnknown,
		AsOf:       asOf,
		ComputedAt: time.Now().UTC(),
		InputsHash: inputsHash,
	}
	if meta.Target != 0 {
		res.Target = contracts.Float(meta.Target)
	}
	return res
}

func (e *Engine) fill(res *contracts.KPIResult, meta Metadata, value float64, kctx Context) {
	res.Value = contracts.Float(value)
	res.Status = statusFor(meta, value)
	res.Context = kctx
	if comps, ok := kctx["components"].(map[string]float64); ok {
		res.Components = comps
	}
}

func (e *Engine) audit(res *contracts.KPIResult) {
	status := contracts.AuditSuccess
	fields := map[string]interface{}{"kpi": res.KPIKey, "status": string(res.Status)}
	if res.Error != "" {
		status = contracts.AuditFailure
		fields["error"] = res.Error
	} else if res.Value != nil {
		fields["value"] = *res.Value
	}
	e.trail.Record(contracts.EventKPICalculated, status, fields)
}

// AuditTrail returns a copy of the entries recorded so far.
func (e *Engine) AuditTrail() []contracts.AuditEntry {
	return e.trail.Entries()
}

// asOfDate is the latest measurement date found on the tape, falling back
// to the current UTC time when the tape carries none.
func (e *Engine) asOfDate() time.Time {
	if e.frame != nil && e.frame.HasColumn(contracts.ColMeasurementDate) {
		raw := e.frame.Strings(contracts.ColMeasurementDate)
		var latest time.Time
		for _, cell := range raw {
			if ts, ok := contracts.ParseDate(cell); ok && ts.After(latest) {
				latest = ts
			}
		}
		if !latest.IsZero() {
			return latest
		}
	}
	return time.Now().UTC()
}

func (e *Engine) cacheKey(inputsHash string, includeComposites bool) string {
	return fmt.Sprintf("kpi:%s:%t", inputsHash, includeComposites)
}

func (e *Engine) fromCache(ctx context.Context, inputsHash string, includeComposites bool) (map[string]*contracts.KPIResult, bool) {
	if e.cache == nil {
		return nil, false
	}
	var cached map[string]*contracts.KPIResult
	hit, err := e.cache.Get(ctx, e.cacheKey(inputsHash, includeComposites), &cached)
	if err != nil {
		e.log.WithError(err).Warn("kpi cache lookup failed")
		return nil, false
	}
	if !hit {
		return nil, false
	}
	e.trail.Record(contracts.EventCacheHit, contracts.AuditSuccess, map[string]interface{}{
		"inputs_hash": inputsHash,
		"results":     len(cached),
	})
	return cached, true
}

func (e *Engine) toCache(ctx context.Context, inputsHash string, includeComposites bool, results map[string]*contracts.KPIResult) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Set(ctx, e.cacheKey(inputsHash, includeComposites), results, e.cacheTTL); err != nil {
		e.log.WithError(err).Warn("kpi cache store failed")
	}
}
