package contracts

import (
	"sync"
	"time"
)

// Audit event names shared across the pipeline.
const (
	EventArchive       = "archive"
	EventHTTPRetry     = "http_retry"
	EventKPICalculated = "kpi_calculated"
	EventIngestion     = "ingestion"
	EventCacheHit      = "cache_hit"
)

// Audit entry statuses.
const (
	AuditSuccess = "success"
	AuditFailure = "failure"
)

// AuditEntry is one append-only record in the audit trail. Entries are
// created once per operation and never mutated.
type AuditEntry struct {
	Event     string                 `json:"event"`
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Actor     string                 `json:"actor"`
	Action    string                 `json:"action"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

// AuditTrail accumulates entries for the lifetime of one run. The actor
// and action labels identify who triggered the run and why; they are
// stamped on every entry for traceability.
type AuditTrail struct {
	mu      sync.Mutex
	actor   string
	action  string
	entries []AuditEntry
}

// NewAuditTrail creates an empty trail with the given provenance labels.
func NewAuditTrail(actor, action string) *AuditTrail {
	return &AuditTrail{actor: actor, action: action}
}

// Record appends one entry. Fields may be nil.
func (t *AuditTrail) Record(event, status string, fields map[string]interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, AuditEntry{
		Event:     event,
		Status:    status,
		Timestamp: time.Now().UTC(),
		Actor:     t.actor,
		Action:    t.action,
		Context:   fields,
	})
}

// Entries returns a copy of the accumulated trail in append order.
func (t *AuditTrail) Entries() []AuditEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]AuditEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of recorded entries.
func (t *AuditTrail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
