package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/lendops/tapekpi/internal/contracts"
	"github.com/lendops/tapekpi/internal/quality"
	"github.com/lendops/tapekpi/pkg/config"
	"github.com/lendops/tapekpi/pkg/httputil"
	"github.com/lendops/tapekpi/pkg/logger"
)

// Result bundles the canonical frame and the data-quality report produced
// by one ingestion call.
type Result struct {
	Frame             *contracts.Frame
	Quality           *quality.Report
	DuplicatesRemoved int
	Source            string
}

// Ingestor is the unified ingestion normalizer: it accepts raw payloads
// from files or HTTP, infers the format, applies source-specific
// reshaping, deduplicates, validates against the configured schema and
// archives the raw input. One Ingestor instance is scoped to one logical
// run.
type Ingestor struct {
	cfg        config.IngestionConfig
	log        *logger.Logger
	trail      *contracts.AuditTrail
	reporter   *quality.Reporter
	httpClient *httputil.Client
	archiver   Archiver
	cashByDate map[string]float64
}

// NewIngestor creates an ingestor. The audit trail receives archive and
// ingestion events; HTTP and archival support are attached with the With*
// chain.
func NewIngestor(cfg config.IngestionConfig, log *logger.Logger, trail *contracts.AuditTrail) *Ingestor {
	return &Ingestor{
		cfg:      cfg,
		log:      log,
		trail:    trail,
		reporter: quality.NewReporter(log),
	}
}

// WithHTTPClient enables IngestHTTP.
func (in *Ingestor) WithHTTPClient(c *httputil.Client) *Ingestor {
	in.httpClient = c
	return in
}

// WithArchiver enables raw-payload archival.
func (in *Ingestor) WithArchiver(a Archiver) *Ingestor {
	in.archiver = a
	return in
}

// WithCashAvailability supplies an external cash-availability figure keyed
// by ISO date, joined into cash_available_usd during reshaping.
func (in *Ingestor) WithCashAvailability(cashByDate map[string]float64) *Ingestor {
	in.cashByDate = cashByDate
	return in
}

// IngestFile reads a loan-tape export, detecting the format from the file
// extension (CSV, XLSX, JSON, JSON-lines, HTML).
func (in *Ingestor) IngestFile(ctx context.Context, path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}

	frame, err := parseByExtension(filepath.Ext(path), data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}

	return in.process(ctx, frame, filepath.Base(path), data)
}

// IngestHTTP fetches a loan-tape export over HTTP with rate limiting,
// retry and circuit breaking, inferring the payload type from the
// Content-Type header.
func (in *Ingestor) IngestHTTP(ctx context.Context, rawURL string) (*Result, error) {
	if in.httpClient == nil {
		return nil, fmt.Errorf("HTTP ingestion not configured")
	}

	resp, err := in.httpClient.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	frame, err := parseByContentType(resp.Header.Get("Content-Type"), data)
	if err != nil {
		return nil, fmt.Errorf("parse response from %s: %w", rawURL, err)
	}

	return in.process(ctx, frame, archiveNameForURL(rawURL), data)
}

// process runs the normalization stages: reshape, deduplicate, validate,
// archive. Only strict-mode validation failures abort; everything else is
// recorded and the run continues.
func (in *Ingestor) process(ctx context.Context, frame *contracts.Frame, source string, raw []byte) (*Result, error) {
	if NeedsReshape(frame) {
		reshaped, err := Reshape(frame, in.cfg.Looker, in.cashByDate)
		if err != nil {
			return nil, fmt.Errorf("reshape %s: %w", source, err)
		}
		frame = reshaped
	}

	removed := 0
	if in.cfg.Deduplication.Enabled {
		frame, removed = Dedupe(frame, in.cfg.Deduplication.KeyColumns)
		if removed > 0 {
			in.log.WithFields(map[string]interface{}{
				"source":  source,
				"removed": removed,
			}).Warn("duplicate rows removed")
		}
	}

	v := in.cfg.Validation
	report := in.reporter.Run(frame, v.RequiredColumns, v.NumericColumns, v.DateColumns)
	if v.Strict && (len(report.MissingColumns) > 0 || len(report.TypeErrors) > 0) {
		return nil, &ValidationError{Report: report}
	}

	in.archiveRaw(ctx, source, raw)

	in.trail.Record(contracts.EventIngestion, contracts.AuditSuccess, map[string]interface{}{
		"source":             source,
		"rows":               frame.NumRows(),
		"duplicates_removed": removed,
		"quality_status":     report.Status,
		"quality_score":      report.Score,
	})

	return &Result{
		Frame:             frame,
		Quality:           report,
		DuplicatesRemoved: removed,
		Source:            source,
	}, nil
}

// archiveRaw copies the raw payload into the archive. Failures are
// recorded in the audit trail and otherwise ignored: losing an archive
// copy must not lose the run.
func (in *Ingestor) archiveRaw(ctx context.Context, source string, raw []byte) {
	if in.archiver == nil {
		return
	}

	if err := in.archiver.Store(ctx, source, raw); err != nil {
		in.log.WithError(err).WithField("source", source).Error("failed to archive raw input")
		in.trail.Record(contracts.EventArchive, contracts.AuditFailure, map[string]interface{}{
			"source": source,
			"error":  err.Error(),
		})
		return
	}

	in.trail.Record(contracts.EventArchive, contracts.AuditSuccess, map[string]interface{}{
		"source": source,
		"bytes":  len(raw),
	})
}

func parseByExtension(ext string, data []byte) (*contracts.Frame, error) {
	switch strings.ToLower(ext) {
	case ".csv":
		return readCSV(bytes.NewReader(data))
	case ".xlsx":
		return readXLSX(bytes.NewReader(data))
	case ".json":
		return parseJSONPayload(data)
	case ".jsonl", ".ndjson":
		return readJSONLines(data)
	case ".html", ".htm":
		return readHTMLTable(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("unsupported file extension %q", ext)
	}
}

func parseByContentType(contentType string, data []byte) (*contracts.Frame, error) {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "json"):
		return parseJSONPayload(data)
	case strings.Contains(ct, "csv"), strings.Contains(ct, "text/plain"):
		return readCSV(bytes.NewReader(data))
	case strings.Contains(ct, "html"):
		return readHTMLTable(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("unsupported content type %q", contentType)
	}
}

// parseJSONPayload handles both array-of-objects and JSON-lines bodies.
func parseJSONPayload(data []byte) (*contracts.Frame, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return readJSON(data)
	}
	return readJSONLines(data)
}

func archiveNameForURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "http_download"
	}
	name := strings.ReplaceAll(u.Host+u.Path, "/", "_")
	return strings.Trim(name, "_")
}
