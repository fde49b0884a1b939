// Package store persists finished KPI runs to PostgreSQL.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lendops/tapekpi/internal/contracts"
	"github.com/lendops/tapekpi/pkg/database"
	"github.com/lendops/tapekpi/pkg/logger"
)

// Repository writes runs, results and audit events. All writes for one run
// happen in a single transaction.
type Repository struct {
	db  *database.DB
	log *logger.Logger
}

func NewRepository(db *database.DB, log *logger.Logger) *Repository {
	return &Repository{db: db, log: log}
}

// Migrate creates the run tables when they do not exist yet.
func (r *Repository) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS kpi_runs (
			run_id      TEXT PRIMARY KEY,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS kpi_results (
			id          BIGSERIAL PRIMARY KEY,
			run_id      TEXT NOT NULL REFERENCES kpi_runs(run_id),
			kpi_key     TEXT NOT NULL,
			value_num   DOUBLE PRECISION,
			unit        TEXT NOT NULL,
			status      TEXT NOT NULL,
			as_of       TIMESTAMPTZ NOT NULL,
			computed_at TIMESTAMPTZ NOT NULL,
			inputs_hash TEXT NOT NULL,
			context     JSONB,
			error       TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS kpi_results_key_asof_idx ON kpi_results (kpi_key, as_of)`,
		`CREATE TABLE IF NOT EXISTS audit_events (
			id         BIGSERIAL PRIMARY KEY,
			run_id     TEXT NOT NULL REFERENCES kpi_runs(run_id),
			event      TEXT NOT NULL,
			status     TEXT NOT NULL,
			actor      TEXT NOT NULL,
			action     TEXT NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL,
			context    JSONB
		)`,
	}
	for _, stmt := range statements {
		if _, err := r.db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate run store: %w", err)
		}
	}
	return nil
}

// SaveRun persists one run with its results and audit trail atomically.
func (r *Repository) SaveRun(ctx context.Context, runID string, results map[string]*contracts.KPIResult, trail []contracts.AuditEntry) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin run tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `INSERT INTO kpi_runs (run_id) VALUES ($1)`, runID); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for key, res := range results {
		kctx, err := json.Marshal(res.Context)
		if err != nil {
			return fmt.Errorf("marshal context for %s: %w", key, err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO kpi_results
			 (run_id, kpi_key, value_num, unit, status, as_of, computed_at, inputs_hash, context, error)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			runID, res.KPIKey, res.Value, res.Unit, string(res.Status),
			res.AsOf, res.ComputedAt, res.InputsHash, kctx, res.Error,
		)
		if err != nil {
			return fmt.Errorf("insert result %s: %w", key, err)
		}
	}

	for _, entry := range trail {
		ectx, err := json.Marshal(entry.Context)
		if err != nil {
			return fmt.Errorf("marshal audit context: %w", err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO audit_events (run_id, event, status, actor, action, occurred_at, context)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			runID, entry.Event, entry.Status, entry.Actor, entry.Action, entry.Timestamp, ectx,
		)
		if err != nil {
			return fmt.Errorf("insert audit event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit run tx: %w", err)
	}
	r.log.WithFields(map[string]interface{}{
		"run_id":  runID,
		"results": len(results),
		"events":  len(trail),
	}).Info("run persisted")
	return nil
}

// HistoryPoint is one stored value of a KPI over time.
type HistoryPoint struct {
	RunID string
	Value *float64
	AsOf  time.Time
}

// History returns the most recent stored values for a KPI, newest first.
func (r *Repository) History(ctx context.Context, kpiKey string, limit int) ([]HistoryPoint, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := r.db.Pool.Query(ctx,
		`SELECT run_id, value_num, as_of FROM kpi_results
		 WHERE kpi_key = $1 ORDER BY as_of DESC, computed_at DESC LIMIT $2`,
		kpiKey, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query kpi history: %w", err)
	}
	defer rows.Close()

	var points []HistoryPoint
	for rows.Next() {
		var p HistoryPoint
		if err := rows.Scan(&p.RunID, &p.Value, &p.AsOf); err != nil {
			return nil, fmt.Errorf("scan kpi history: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}
