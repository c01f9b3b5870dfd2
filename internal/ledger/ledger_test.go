package ledger

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dpgraph/internal/privacy"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testEntry(analysisID string, batch uint32, eps, delta float64) Entry {
	return Entry{
		AnalysisID:    analysisID,
		Batch:         batch,
		Definition:    privacy.Definition{Distance: privacy.Pure, Neighboring: privacy.AddRemove},
		GraphHash:     "hash",
		NodeCount:     4,
		ReleasedCount: 2,
		Epsilon:       eps,
		Delta:         delta,
		Release:       json.RawMessage(`{"1":{"public":true}}`),
	}
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "Open() iteration %d", i)
		require.NoError(t, s.Close())
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestOpen_SchemaIndexes(t *testing.T) {
	s := createTestStore(t)

	var table string
	err := s.db.QueryRow(
		`SELECT tbl_name FROM sqlite_master WHERE type = 'index' AND name = 'idx_releases_graph_hash'`,
	).Scan(&table)
	require.NoError(t, err, "graph hash index missing from a new database")
	assert.Equal(t, "releases", table)
}

func TestRecordRelease_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordRelease(ctx, testEntry("a1", 1, 0.5, 0)))
	require.NoError(t, s.RecordRelease(ctx, testEntry("a1", 2, 0.25, 1e-6)))

	entries, err := s.ReadReleases(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, uint32(1), entries[0].Batch)
	assert.Equal(t, uint32(2), entries[1].Batch)
	assert.Equal(t, privacy.Pure, entries[0].Definition.Distance)
	assert.Equal(t, privacy.AddRemove, entries[0].Definition.Neighboring)
	assert.Equal(t, "hash", entries[0].GraphHash)
	assert.Equal(t, 4, entries[0].NodeCount)
	assert.Equal(t, 2, entries[0].ReleasedCount)
	assert.JSONEq(t, `{"1":{"public":true}}`, string(entries[1].Release))
}

func TestRecordRelease_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordRelease(ctx, testEntry("a1", 1, 0.5, 0)))
	// A second write of the same batch keeps the first row.
	require.NoError(t, s.RecordRelease(ctx, testEntry("a1", 1, 9, 0)))

	entries, err := s.ReadReleases(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 0.5, entries[0].Epsilon)
}

func TestRecordRelease_EmptyAnalysisID(t *testing.T) {
	s := createTestStore(t)
	err := s.RecordRelease(context.Background(), testEntry("", 1, 1, 0))
	assert.Error(t, err)
}

func TestReadReleases_Empty(t *testing.T) {
	s := createTestStore(t)

	entries, err := s.ReadReleases(context.Background(), "missing")
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestReadReleases_IsolatedByAnalysis(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordRelease(ctx, testEntry("a1", 1, 1, 0)))
	require.NoError(t, s.RecordRelease(ctx, testEntry("a2", 1, 2, 0)))

	entries, err := s.ReadReleases(ctx, "a2")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a2", entries[0].AnalysisID)
}

func TestTotalUsage(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordRelease(ctx, testEntry("a1", 1, 0.5, 1e-6)))
	require.NoError(t, s.RecordRelease(ctx, testEntry("a1", 2, 0.25, 1e-6)))
	require.NoError(t, s.RecordRelease(ctx, testEntry("a1", 3, 0, 0)))

	eps, delta, err := s.TotalUsage(ctx, "a1")
	require.NoError(t, err)
	assert.InDelta(t, 0.75, eps, 1e-12)
	assert.InDelta(t, 2e-6, delta, 1e-15)
}

func TestTotalUsage_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, _, err := s.TotalUsage(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadDefinition(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.RecordRelease(ctx, testEntry("a1", 1, 1, 0)))

	def, err := s.ReadDefinition(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, privacy.Definition{Distance: privacy.Pure, Neighboring: privacy.AddRemove}, def)

	_, err = s.ReadDefinition(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
