package pipeline

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendops/tapekpi/internal/contracts"
	"github.com/lendops/tapekpi/pkg/config"
	"github.com/lendops/tapekpi/pkg/logger"
)

const tapeCSV = `loan_id,measurement_date,segment,total_receivable_usd,total_eligible_usd,cash_available_usd,dpd_30_60_usd,dpd_60_90_usd,dpd_90_plus_usd
L1,2026-01-31,auto,600000,600000,580000,30000,20000,10000
L2,2026-01-31,sme,400000,400000,392000,20000,10000,10000
`

func testRunner(t *testing.T, strict bool) *Runner {
	t.Helper()
	appCfg := &config.Config{
		Env:      "development",
		Archive:  config.ArchiveConfig{Dir: filepath.Join(t.TempDir(), "archive")},
		Provider: config.ProviderConfig{Timeout: 5 * time.Second},
	}
	pipeCfg := config.DefaultPipeline()
	pipeCfg.Pipeline.Phases.Ingestion.Validation.Strict = strict
	return NewRunner(appCfg, pipeCfg, logger.NewNop())
}

func writeTape(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tape.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRun_FileDatasetProducesArtifacts(t *testing.T) {
	outDir := t.TempDir()
	summary, err := testRunner(t, false).Run(context.Background(), Options{
		Dataset:   writeTape(t, tapeCSV),
		OutputDir: outDir,
		Actor:     "test",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, summary.Status)
	assert.NotEmpty(t, summary.RunID)
	require.Len(t, summary.OutputFiles, 2)

	data, err := os.ReadFile(filepath.Join(outDir, "kpi_results.json"))
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, summary.RunID, doc["run_id"])
	assert.Equal(t, StatusSuccess, doc["pipeline_status"])
	assert.InDelta(t, 97.2, doc["collection_rate"].(float64), 1e-9)
	assert.Contains(t, doc, "timestamp")
}

func TestRun_MetricsCSVLayout(t *testing.T) {
	outDir := t.TempDir()
	summary, err := testRunner(t, false).Run(context.Background(), Options{
		Dataset:   writeTape(t, tapeCSV),
		OutputDir: outDir,
		Actor:     "test",
	})
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, summary.Status)

	f, err := os.Open(filepath.Join(outDir, "metrics.csv"))
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, []string{"metric_name", "value", "unit", "date", "segment", "confidence_level"}, rows[0])

	segments := make(map[string]bool)
	for _, row := range rows[1:] {
		require.Len(t, row, 6)
		assert.Equal(t, "2026-01-31", row[3])
		segments[row[4]] = true
	}
	assert.True(t, segments["all"])
	assert.True(t, segments["auto"])
	assert.True(t, segments["sme"])
}

func TestRun_StrictValidationFailureWritesNothing(t *testing.T) {
	outDir := t.TempDir()
	incomplete := "loan_id,total_receivable_usd\nL1,100\n"

	_, err := testRunner(t, true).Run(context.Background(), Options{
		Dataset:   writeTape(t, incomplete),
		OutputDir: outDir,
		Actor:     "test",
	})
	require.Error(t, err)

	entries, readErr := os.ReadDir(outDir)
	require.NoError(t, readErr)
	assert.Empty(t, entries, "failed runs must not leave partial artifacts")
}

func TestRun_QualityFindingsDegradeNonStrictRun(t *testing.T) {
	incomplete := "loan_id,total_receivable_usd\nL1,100\n"

	summary, err := testRunner(t, false).Run(context.Background(), Options{
		Dataset: writeTape(t, incomplete),
		Actor:   "test",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusDegraded, summary.Status)
	assert.False(t, summary.Quality.Passed())
}

func TestRun_HTTPDataset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte(tapeCSV))
	}))
	defer srv.Close()

	summary, err := testRunner(t, false).Run(context.Background(), Options{
		Dataset: srv.URL,
		Actor:   "test",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, summary.Status)
	require.NotNil(t, summary.Results["collection_rate"].Value)
	assert.InDelta(t, 97.2, *summary.Results["collection_rate"].Value, 1e-9)
}

type failingStore struct{}

func (failingStore) SaveRun(context.Context, string, map[string]*contracts.KPIResult, []contracts.AuditEntry) error {
	return errors.New("connection refused")
}

func TestRun_StoreFailureDegradesButKeepsResults(t *testing.T) {
	summary, err := testRunner(t, false).WithStore(failingStore{}).Run(context.Background(), Options{
		Dataset: writeTape(t, tapeCSV),
		Actor:   "test",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusDegraded, summary.Status)
	assert.NotEmpty(t, summary.Results)
}

func TestRun_AuditTrailCoversIngestionAndKPIs(t *testing.T) {
	summary, err := testRunner(t, false).Run(context.Background(), Options{
		Dataset: writeTape(t, tapeCSV),
		Actor:   "nightly",
	})
	require.NoError(t, err)

	events := make(map[string]int)
	for _, entry := range summary.Trail {
		assert.Equal(t, "nightly", entry.Actor)
		events[entry.Event]++
	}
	assert.Positive(t, events[contracts.EventIngestion])
	assert.Equal(t, 10, events[contracts.EventKPICalculated])
}
