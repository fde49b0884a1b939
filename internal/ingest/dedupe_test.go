package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendops/tapekpi/internal/contracts"
)

func TestDedupe_KeepsFirstOccurrence(t *testing.T) {
	f := contracts.NewFrame([]string{"loan_id", "total_receivable_usd"})
	require.NoError(t, f.AppendRow([]string{"a", "100"}))
	require.NoError(t, f.AppendRow([]string{"a", "999"}))
	require.NoError(t, f.AppendRow([]string{"b", "200"}))

	out, removed := Dedupe(f, []string{"loan_id"})

	assert.Equal(t, 2, out.NumRows())
	assert.Equal(t, 1, removed)

	// First occurrence wins.
	v, _ := out.Value("total_receivable_usd", 0)
	assert.Equal(t, "100", v)
}

func TestDedupe_CompositeKey(t *testing.T) {
	f := contracts.NewFrame([]string{"loan_id", "measurement_date"})
	require.NoError(t, f.AppendRow([]string{"a", "2026-01-31"}))
	require.NoError(t, f.AppendRow([]string{"a", "2026-02-28"}))
	require.NoError(t, f.AppendRow([]string{"a", "2026-01-31"}))

	out, removed := Dedupe(f, []string{"loan_id", "measurement_date"})
	assert.Equal(t, 2, out.NumRows())
	assert.Equal(t, 1, removed)
}

func TestDedupe_NoKeyColumnsIsNoop(t *testing.T) {
	f := contracts.NewFrame([]string{"loan_id"})
	require.NoError(t, f.AppendRow([]string{"a"}))
	require.NoError(t, f.AppendRow([]string{"a"}))

	out, removed := Dedupe(f, nil)
	assert.Equal(t, 2, out.NumRows())
	assert.Equal(t, 0, removed)
}
