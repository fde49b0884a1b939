// Package pipeline orchestrates a full KPI run: ingest a loan tape, gate it
// through data quality, compute every KPI, write the report artifacts and
// optionally persist the run.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lendops/tapekpi/internal/contracts"
	"github.com/lendops/tapekpi/internal/ingest"
	"github.com/lendops/tapekpi/internal/kpi"
	"github.com/lendops/tapekpi/internal/quality"
	"github.com/lendops/tapekpi/pkg/config"
	"github.com/lendops/tapekpi/pkg/httputil"
	"github.com/lendops/tapekpi/pkg/logger"
	"github.com/lendops/tapekpi/pkg/redis"
)

// Pipeline completion states written to kpi_results.json.
const (
	StatusSuccess  = "success"
	StatusDegraded = "degraded"
)

// Store persists a finished run. Persistence failures degrade the run but
// never discard the computed results.
type Store interface {
	SaveRun(ctx context.Context, runID string, results map[string]*contracts.KPIResult, trail []contracts.AuditEntry) error
}

// Options selects the input and output of one run.
type Options struct {
	// Dataset is a local file path or an http(s) URL.
	Dataset string
	// OutputDir receives kpi_results.json and metrics.csv. Empty skips
	// artifact writing.
	OutputDir string
	// Actor is stamped on every audit entry of the run.
	Actor string
	// SkipComposites omits the composite KPIs.
	SkipComposites bool
}

// Summary is the outcome of one pipeline run.
type Summary struct {
	RunID             string
	Status            string
	Results           map[string]*contracts.KPIResult
	SegmentResults    map[string]map[string]*contracts.KPIResult
	Quality           *quality.Report
	AsOf              time.Time
	DuplicatesRemoved int
	OutputFiles       []string
	Trail             []contracts.AuditEntry
}

// Runner wires configuration into the ingestion, KPI and reporting stages.
type Runner struct {
	appCfg  *config.Config
	pipeCfg *config.PipelineConfig
	log     *logger.Logger
	store   Store
	cache   *redis.Cache
}

// NewRunner builds a runner from the application and pipeline configs.
func NewRunner(appCfg *config.Config, pipeCfg *config.PipelineConfig, log *logger.Logger) *Runner {
	return &Runner{appCfg: appCfg, pipeCfg: pipeCfg, log: log}
}

// WithStore enables run persistence.
func (r *Runner) WithStore(s Store) *Runner {
	r.store = s
	return r
}

// WithCache enables KPI result caching.
func (r *Runner) WithCache(c *redis.Cache) *Runner {
	r.cache = c
	return r
}

// Run executes the full pipeline. A strict validation failure or an
// unreadable dataset returns an error and writes no artifacts; downstream
// problems (quality findings in non-strict mode, individual KPI errors,
// persistence failures) mark the run degraded instead.
func (r *Runner) Run(ctx context.Context, opts Options) (*Summary, error) {
	runID := uuid.NewString()
	log := r.log.WithField("run_id", runID)
	log.WithField("dataset", opts.Dataset).Info("pipeline run started")

	trail := contracts.NewAuditTrail(opts.Actor, "pipeline_run")
	res, err := r.ingestDataset(ctx, trail, opts.Dataset)
	if err != nil {
		return nil, err
	}

	engine := kpi.NewEngine(res.Frame, r.log, opts.Actor, "pipeline_run")
	if r.cache != nil {
		engine = engine.WithCache(r.cache, time.Hour)
	}
	results := engine.CalculateAll(ctx, !opts.SkipComposites)

	summary := &Summary{
		RunID:             runID,
		Status:            runStatus(res.Quality, results),
		Results:           results,
		SegmentResults:    r.segmentBreakdown(res.Frame),
		Quality:           res.Quality,
		AsOf:              asOfFromResults(results),
		DuplicatesRemoved: res.DuplicatesRemoved,
		Trail:             append(trail.Entries(), engine.AuditTrail()...),
	}

	if opts.OutputDir != "" {
		files, err := writeArtifacts(opts.OutputDir, summary)
		if err != nil {
			return nil, fmt.Errorf("write run artifacts: %w", err)
		}
		summary.OutputFiles = files
	}

	if r.store != nil {
		if err := r.store.SaveRun(ctx, runID, results, summary.Trail); err != nil {
			log.WithError(err).Error("run persistence failed")
			summary.Status = StatusDegraded
		}
	}

	log.WithFields(map[string]interface{}{
		"status":  summary.Status,
		"kpis":    len(results),
		"quality": summary.Quality.Score,
	}).Info("pipeline run finished")
	return summary, nil
}

// ingestDataset routes file paths and URLs to the right ingestion entry
// point, attaching the archiver and the guarded HTTP client as configured.
func (r *Runner) ingestDataset(ctx context.Context, trail *contracts.AuditTrail, dataset string) (*ingest.Result, error) {
	ing := ingest.NewIngestor(r.pipeCfg.Pipeline.Phases.Ingestion, r.log, trail)

	if archiver, err := r.buildArchiver(ctx); err != nil {
		r.log.WithError(err).Warn("archiver unavailable, raw payloads will not be kept")
	} else if archiver != nil {
		ing = ing.WithArchiver(archiver)
	}

	if isURL(dataset) {
		httpCfg := r.pipeCfg.Cascade.HTTP
		client := httputil.New(r.log, r.appCfg.Provider.Timeout).
			WithRetry(httpCfg.Retry.MaxRetries, time.Duration(httpCfg.Retry.BackoffSeconds*float64(time.Second))).
			WithRateLimiter(httputil.NewRateLimiter(httpCfg.RateLimit.MaxRequestsPerMinute)).
			WithCircuitBreaker(httputil.NewCircuitBreaker(httpCfg.CircuitBreaker.FailureThreshold, time.Duration(httpCfg.CircuitBreaker.ResetSeconds*float64(time.Second)))).
			WithAudit(trail)
		return ing.WithHTTPClient(client).IngestHTTP(ctx, dataset)
	}
	return ing.IngestFile(ctx, dataset)
}

func (r *Runner) buildArchiver(ctx context.Context) (ingest.Archiver, error) {
	if r.appCfg.Archive.S3Bucket != "" {
		return ingest.NewS3Archiver(ctx, r.appCfg.Archive)
	}
	if r.appCfg.Archive.Dir != "" {
		return ingest.NewDirArchiver(r.appCfg.Archive.Dir), nil
	}
	return nil, nil
}

// segmentBreakdown recomputes the portfolio-level KPIs per segment so the
// metrics report can carry segment rows next to the portfolio rows.
func (r *Runner) segmentBreakdown(f *contracts.Frame) map[string]map[string]*contracts.KPIResult {
	if f == nil || !f.HasColumn(contracts.ColSegment) {
		return nil
	}
	segments := f.Strings(contracts.ColSegment)
	names := distinctSegments(segments)
	if len(names) < 2 {
		return nil
	}

	out := make(map[string]map[string]*contracts.KPIResult, len(names))
	for _, name := range names {
		name := name
		sub := f.Filter(func(row int) bool {
			return normalizeSegment(segments[row]) == name
		})
		engine := kpi.NewEngine(sub, r.log, "pipeline", "segment_breakdown").
			WithCalculators(kpi.PAR30{}, kpi.PAR90{}, kpi.CollectionRate{}).
			WithComposites()
		out[name] = engine.CalculateAll(context.Background(), false)
	}
	return out
}

func runStatus(report *quality.Report, results map[string]*contracts.KPIResult) string {
	if report != nil && !report.Passed() {
		return StatusDegraded
	}
	for _, res := range results {
		if res.Error != "" {
			return StatusDegraded
		}
	}
	return StatusSuccess
}

// asOfFromResults takes the shared as-of date stamped by the engine.
func asOfFromResults(results map[string]*contracts.KPIResult) time.Time {
	for _, res := range results {
		return res.AsOf
	}
	return time.Now().UTC()
}

func distinctSegments(cells []string) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, cell := range cells {
		name := normalizeSegment(cell)
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalizeSegment(cell string) string {
	name := strings.TrimSpace(strings.ToLower(cell))
	if name == "" {
		return "unsegmented"
	}
	return name
}

func isURL(dataset string) bool {
	return strings.HasPrefix(dataset, "http://") || strings.HasPrefix(dataset, "https://")
}
