package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "archive", cfg.Archive.Dir)
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("ENV", "sandbox")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ENV must be one of")
}

func TestLoadPipeline_Defaults(t *testing.T) {
	cfg, err := LoadPipeline("")
	require.NoError(t, err)

	v := cfg.Pipeline.Phases.Ingestion.Validation
	assert.Contains(t, v.RequiredColumns, "loan_id")
	assert.Contains(t, v.RequiredColumns, "measurement_date")
	assert.False(t, v.Strict)
	assert.Equal(t, 3, cfg.Cascade.HTTP.Retry.MaxRetries)
	assert.Equal(t, 60, cfg.Cascade.HTTP.RateLimit.MaxRequestsPerMinute)
}

func TestLoadPipeline_FromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	yaml := `
pipeline:
  phases:
    ingestion:
      validation:
        required_columns: [loan_id, total_receivable_usd]
        numeric_columns: [total_receivable_usd]
        date_columns: [measurement_date]
        strict: true
      deduplication:
        enabled: true
        key_columns: [loan_id]
      looker:
        measurement_date_strategy: column
        measurement_date_column: as_of_date
cascade:
  http:
    retry:
      max_retries: 5
      backoff_seconds: 0.5
    rate_limit:
      max_requests_per_minute: 30
    circuit_breaker:
      failure_threshold: 2
      reset_seconds: 10
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := LoadPipeline(path)
	require.NoError(t, err)

	ing := cfg.Pipeline.Phases.Ingestion
	assert.True(t, ing.Validation.Strict)
	assert.Equal(t, []string{"loan_id"}, ing.Deduplication.KeyColumns)
	assert.Equal(t, "column", ing.Looker.MeasurementDateStrategy)
	assert.Equal(t, "as_of_date", ing.Looker.MeasurementDateColumn)
	assert.Equal(t, 5, cfg.Cascade.HTTP.Retry.MaxRetries)
	assert.InDelta(t, 0.5, cfg.Cascade.HTTP.Retry.BackoffSeconds, 1e-9)
	assert.Equal(t, 2, cfg.Cascade.HTTP.CircuitBreaker.FailureThreshold)
}

func TestLoadPipeline_RejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  phasess: {}\n"), 0o644))

	_, err := LoadPipeline(path)
	assert.Error(t, err)
}

func TestPipelineConfig_HashDeterministic(t *testing.T) {
	a, err := DefaultPipeline().Hash()
	require.NoError(t, err)
	b, err := DefaultPipeline().Hash()
	require.NoError(t, err)
	assert.Equal(t, a, b)

	changed := DefaultPipeline()
	changed.Cascade.HTTP.Retry.MaxRetries = 99
	c, err := changed.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}
