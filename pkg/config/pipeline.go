package config

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PipelineConfig is the nested pipeline configuration consumed (not owned)
// by the core. It is loaded from YAML with strict field checking so typos
// fail at startup instead of silently disabling a phase.
type PipelineConfig struct {
	Pipeline PipelineSection `yaml:"pipeline" json:"pipeline"`
	Cascade  CascadeSection  `yaml:"cascade" json:"cascade"`
}

// PipelineSection groups the pipeline phases.
type PipelineSection struct {
	Phases PhasesSection `yaml:"phases" json:"phases"`
}

// PhasesSection holds per-phase settings.
type PhasesSection struct {
	Ingestion IngestionConfig `yaml:"ingestion" json:"ingestion"`
}

// IngestionConfig configures the ingestion normalizer.
type IngestionConfig struct {
	Validation    ValidationConfig    `yaml:"validation" json:"validation"`
	Deduplication DeduplicationConfig `yaml:"deduplication" json:"deduplication"`
	Looker        LookerConfig        `yaml:"looker" json:"looker"`
}

// ValidationConfig configures schema validation.
type ValidationConfig struct {
	RequiredColumns []string `yaml:"required_columns" json:"required_columns"`
	NumericColumns  []string `yaml:"numeric_columns" json:"numeric_columns"`
	DateColumns     []string `yaml:"date_columns" json:"date_columns"`
	Strict          bool     `yaml:"strict" json:"strict"`
}

// DeduplicationConfig configures key-based deduplication.
type DeduplicationConfig struct {
	Enabled    bool     `yaml:"enabled" json:"enabled"`
	KeyColumns []string `yaml:"key_columns" json:"key_columns"`
}

// LookerConfig configures Looker-style wide-export reshaping.
// MeasurementDateStrategy is one of: column, max_disbursement_date,
// max_maturity_date, auto (priority order when multiple signals exist).
type LookerConfig struct {
	MeasurementDateStrategy string `yaml:"measurement_date_strategy" json:"measurement_date_strategy"`
	MeasurementDateColumn   string `yaml:"measurement_date_column" json:"measurement_date_column"`
}

// CascadeSection groups upstream-call settings.
type CascadeSection struct {
	HTTP HTTPConfig `yaml:"http" json:"http"`
}

// HTTPConfig configures the resilient HTTP client.
type HTTPConfig struct {
	Retry          RetrySettings          `yaml:"retry" json:"retry"`
	RateLimit      RateLimitSettings      `yaml:"rate_limit" json:"rate_limit"`
	CircuitBreaker CircuitBreakerSettings `yaml:"circuit_breaker" json:"circuit_breaker"`
}

// RetrySettings configures the retry wrapper.
type RetrySettings struct {
	MaxRetries     int     `yaml:"max_retries" json:"max_retries"`
	BackoffSeconds float64 `yaml:"backoff_seconds" json:"backoff_seconds"`
}

// RateLimitSettings configures the outbound rate limiter.
type RateLimitSettings struct {
	MaxRequestsPerMinute int `yaml:"max_requests_per_minute" json:"max_requests_per_minute"`
}

// CircuitBreakerSettings configures the circuit breaker.
type CircuitBreakerSettings struct {
	FailureThreshold int     `yaml:"failure_threshold" json:"failure_threshold"`
	ResetSeconds     float64 `yaml:"reset_seconds" json:"reset_seconds"`
}

// DefaultPipeline returns the configuration used when no YAML file is given.
func DefaultPipeline() *PipelineConfig {
	return &PipelineConfig{
		Pipeline: PipelineSection{
			Phases: PhasesSection{
				Ingestion: IngestionConfig{
					Validation: ValidationConfig{
						RequiredColumns: []string{
							"loan_id",
							"total_receivable_usd",
							"total_eligible_usd",
							"cash_available_usd",
							"measurement_date",
						},
						NumericColumns: []string{
							"total_receivable_usd",
							"total_eligible_usd",
							"cash_available_usd",
						},
						DateColumns: []string{"measurement_date"},
						Strict:      false,
					},
					Deduplication: DeduplicationConfig{
						Enabled:    true,
						KeyColumns: []string{"loan_id", "measurement_date"},
					},
					Looker: LookerConfig{
						MeasurementDateStrategy: "auto",
					},
				},
			},
		},
		Cascade: CascadeSection{
			HTTP: HTTPConfig{
				Retry:          RetrySettings{MaxRetries: 3, BackoffSeconds: 1},
				RateLimit:      RateLimitSettings{MaxRequestsPerMinute: 60},
				CircuitBreaker: CircuitBreakerSettings{FailureThreshold: 5, ResetSeconds: 60},
			},
		},
	}
}

// LoadPipeline reads a pipeline YAML file. Unknown fields are rejected.
// An empty path returns the defaults.
func LoadPipeline(path string) (*PipelineConfig, error) {
	if path == "" {
		return DefaultPipeline(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline config: %w", err)
	}

	cfg := DefaultPipeline()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse pipeline config: %w", err)
	}

	return cfg, nil
}

// Hash returns a deterministic SHA-256 digest of the configuration,
// recorded alongside run snapshots for reproducibility. Structs marshal
// with a stable field order, unlike maps.
func (c *PipelineConfig) Hash() (string, error) {
	jsonBytes, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}
