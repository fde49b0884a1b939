package ingest

import (
	"context"
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
	"github.com/lendops/tapekpi/pkg/httputil"
	"github.com/lendops/tapekpi/pkg/logger"
)

func testIngestionConfig(strict bool) config.IngestionConfig {
	return config.IngestionConfig{
		Validation: config.ValidationConfig{
			RequiredColumns: []string{"loan_id", "total_receivable_usd", "measurement_date"},
			NumericColumns:  []string{"total_receivable_usd"},
			DateColumns:     []string{"measurement_date"},
			Strict:          strict,
		},
		Deduplication: config.DeduplicationConfig{
			Enabled:    true,
			KeyColumns: []string{"loan_id"},
		},
	}
}

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tape.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIngestFile_CSVHappyPath(t *testing.T) {
	path := writeTempCSV(t, "loan_id,total_receivable_usd,measurement_date\na,100,2026-01-31\na,100,2026-01-31\nb,200,2026-01-31\n")

	trail := contracts.NewAuditTrail("test", "ingest")
	in := NewIngestor(testIngestionConfig(false), logger.NewNop(), trail)

	res, err := in.IngestFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Frame.NumRows())
	assert.Equal(t, 1, res.DuplicatesRemoved)
	assert.True(t, res.Quality.Passed())

	entries := trail.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, contracts.EventIngestion, entries[0].Event)
	assert.Equal(t, "test", entries[0].Actor)
}

func TestIngestFile_StrictValidationFails(t *testing.T) {
	path := writeTempCSV(t, "loan_id,total_receivable_usd\na,100\n")

	trail := contracts.NewAuditTrail("test", "ingest")
	in := NewIngestor(testIngestionConfig(true), logger.NewNop(), trail)

	_, err := in.IngestFile(context.Background(), path)
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Report.MissingColumns, "measurement_date")
}

func TestIngestFile_NonStrictReturnsDegradedData(t *testing.T) {
	path := writeTempCSV(t, "loan_id,total_receivable_usd\na,100\n")

	trail := contracts.NewAuditTrail("test", "ingest")
	in := NewIngestor(testIngestionConfig(false), logger.NewNop(), trail)

	res, err := in.IngestFile(context.Background(), path)
	require.NoError(t, err)
	assert.False(t, res.Quality.Passed())
	assert.Equal(t, 1, res.Frame.NumRows())
}

func TestIngestFile_UnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tape.parquet")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	in := NewIngestor(testIngestionConfig(false), logger.NewNop(), contracts.NewAuditTrail("t", "a"))
	_, err := in.IngestFile(context.Background(), path)
	assert.Error(t, err)
}

func TestIngestFile_ArchiveSuccessAudited(t *testing.T) {
	path := writeTempCSV(t, "loan_id,total_receivable_usd,measurement_date\na,100,2026-01-31\n")

	archiveDir := t.TempDir()
	trail := contracts.NewAuditTrail("test", "ingest")
	in := NewIngestor(testIngestionConfig(false), logger.NewNop(), trail).
		WithArchiver(NewDirArchiver(archiveDir))

	_, err := in.IngestFile(context.Background(), path)
	require.NoError(t, err)

	files, err := os.ReadDir(archiveDir)
	require.NoError(t, err)
	assert.Len(t, files, 1)

	entries := trail.Entries()
	var archiveEntry *contracts.AuditEntry
	for i := range entries {
		if entries[i].Event == contracts.EventArchive {
			archiveEntry = &entries[i]
		}
	}
	require.NotNil(t, archiveEntry)
	assert.Equal(t, contracts.AuditSuccess, archiveEntry.Status)
}

type failingArchiver struct{}

func (failingArchiver) Store(context.Context, string, []byte) error {
	return errors.New("disk full")
}

func TestIngestFile_ArchiveFailureIsNonFatal(t *testing.T) {
	path := writeTempCSV(t, "loan_id,total_receivable_usd,measurement_date\na,100,2026-01-31\n")

	trail := contracts.NewAuditTrail("test", "ingest")
	in := NewIngestor(testIngestionConfig(false), logger.NewNop(), trail).
		WithArchiver(failingArchiver{})

	res, err := in.IngestFile(context.Background(), path)
	require.NoError(t, err, "archival failure must not abort ingestion")
	assert.Equal(t, 1, res.Frame.NumRows())

	found := false
	for _, e := range trail.Entries() {
		if e.Event == contracts.EventArchive && e.Status == contracts.AuditFailure {
			found = true
		}
	}
	assert.True(t, found, "archive failure must be visible in the audit trail")
}

func TestIngestHTTP_JSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"loan_id":"a","total_receivable_usd":100,"measurement_date":"2026-01-31"}]`))
	}))
	defer srv.Close()

	trail := contracts.NewAuditTrail("test", "ingest")
	client := httputil.New(logger.NewNop(), 5*time.Second).WithRetry(1, time.Millisecond)
	in := NewIngestor(testIngestionConfig(false), logger.NewNop(), trail).WithHTTPClient(client)

	res, err := in.IngestHTTP(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Frame.NumRows())
	assert.True(t, res.Quality.Passed())
}

func TestIngestHTTP_CSVContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("loan_id,total_receivable_usd,measurement_date\na,100,2026-01-31\n"))
	}))
	defer srv.Close()

	client := httputil.New(logger.NewNop(), 5*time.Second)
	in := NewIngestor(testIngestionConfig(false), logger.NewNop(), contracts.NewAuditTrail("t", "a")).
		WithHTTPClient(client)

	res, err := in.IngestHTTP(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Frame.NumRows())
}

func TestIngestHTTP_NotConfigured(t *testing.T) {
	in := NewIngestor(testIngestionConfig(false), logger.NewNop(), contracts.NewAuditTrail("t", "a"))
	_, err := in.IngestHTTP(context.Background(), "https://example.com")
	assert.Error(t, err)
}
