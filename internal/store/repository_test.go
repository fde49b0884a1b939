package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendops/tapekpi/internal/contracts"
	"github.com/lendops/tapekpi/internal/pipeline"
	"github.com/lendops/tapekpi/pkg/config"
	"github.com/lendops/tapekpi/pkg/database"
	"github.com/lendops/tapekpi/pkg/logger"
)

// The repository must satisfy the runner's persistence contract.
var _ pipeline.Store = (*Repository)(nil)

func TestNewRepository(t *testing.T) {
	r := NewRepository(nil, logger.NewNop())
	assert.NotNil(t, r)
}

func TestSaveRunAndHistory(t *testing.T) {
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	cfg := &config.Config{}
	cfg.Database.URL = os.Getenv("DATABASE_URL")
	cfg.Database.MaxConns = 2
	cfg.Database.MinConns = 1
	cfg.Database.MaxConnLifetime = time.Minute
	cfg.Database.MaxConnIdleTime = time.Minute

	db, err := database.New(cfg)
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db, logger.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, repo.Migrate(ctx))

	kpiKey := "itest_" + uuid.NewString()
	asOf := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	runID := uuid.NewString()
	results := map[string]*contracts.KPIResult{
		kpiKey: {
			KPIKey:     kpiKey,
			Value:      contracts.Float(4.2),
			Unit:       "percent",
			Status:     contracts.StatusHealthy,
			AsOf:       asOf,
			ComputedAt: time.Now().UTC(),
			InputsHash: "feed",
			Context:    map[string]interface{}{"row_count": 2},
		},
		kpiKey + "_failed": {
			KPIKey: kpiKey + "_failed",
			Unit:   "percent",
			Status: contracts.StatusUnknown,
			AsOf:   asOf,
			Error:  "calculator failed",
		},
	}
	trail := []contracts.AuditEntry{{
		Event:     contracts.EventKPICalculated,
		Status:    contracts.AuditSuccess,
		Timestamp: time.Now().UTC(),
		Actor:     "tester",
		Action:    "integration run",
		Context:   map[string]interface{}{"kpi": kpiKey},
	}}

	require.NoError(t, repo.SaveRun(ctx, runID, results, trail))

	// A duplicate run id must roll back, leaving the first run intact.
	require.Error(t, repo.SaveRun(ctx, runID, results, trail))

	points, err := repo.History(ctx, kpiKey, 10)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, runID, points[0].RunID)
	require.NotNil(t, points[0].Value)
	assert.InDelta(t, 4.2, *points[0].Value, 1e-9)
	assert.True(t, points[0].AsOf.Equal(asOf))

	failed, err := repo.History(ctx, kpiKey+"_failed", 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Nil(t, failed[0].Value, "failed results store a null value")
}
