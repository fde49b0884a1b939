package contracts

import "time"

// KPIStatus classifies a KPI value against its thresholds.
type KPIStatus string

const (
	StatusHealthy  KPIStatus = "healthy"
	StatusWarning  KPIStatus = "warning"
	StatusCritical KPIStatus = "critical"
	StatusUnknown  KPIStatus = "unknown"
)

// KPIResult is the immutable outcome of one calculator run.
type KPIResult struct {
	KPIKey     string             `json:"kpi_key"`
	Value      *float64           `json:"value_num"`
	Unit       string             `json:"unit"`
	Status     KPIStatus          `json:"status"`
	Target     *float64           `json:"target,omitempty"`
	Components map[string]float64 `json:"components,omitempty"`
	AsOf       time.Time          `json:"as_of"`
	ComputedAt time.Time          `json:"computed_at"`
	InputsHash string             `json:"inputs_hash"`

	// Context carries the calculator's formula, row counts, null counts
	// and degradation reasons for audit and reporting.
	Context map[string]interface{} `json:"context,omitempty"`

	// Error is set when the calculator failed; the result still appears
	// in the aggregate map so one broken KPI never aborts a batch.
	Error string `json:"error,omitempty"`
}

// Float returns a pointer to v, for populating optional numeric fields.
func Float(v float64) *float64 { return &v }
