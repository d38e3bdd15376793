package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/newhook/necropolis/internal/aggregate"
	"github.com/newhook/necropolis/internal/outcome"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := OpenPath(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func record(name, result, errorType, fingerprint string) *outcome.Record {
	return &outcome.Record{Name: name, Outcome: result, ErrorType: errorType, Fingerprint: fingerprint, Category: "build"}
}

func recordRun(t *testing.T, db *DB, id string, at time.Time, records ...*outcome.Record) {
	t.Helper()
	report := aggregate.Compute(records, id, at, 10)
	require.NoError(t, db.RecordRun(context.Background(), report, records, "/reports/"+id+".json"))
}

func TestOpenPathCreatesSchema(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for _, table := range []string{"aggregation_runs", "outcomes"} {
		ok, err := tableExists(ctx, db.DB, table)
		require.NoError(t, err)
		assert.True(t, ok, table)
	}
	versions, err := MigrationStatus(ctx, db.DB)
	require.NoError(t, err)
	assert.Equal(t, []string{"001"}, versions)
}

func TestOpenPathReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	db, err := OpenPath(ctx, path)
	require.NoError(t, err)
	recordRun(t, db, "run-1", time.Now(), record("a", outcome.Success, "SUCCESS", ""))
	require.NoError(t, db.Close())

	db, err = OpenPath(ctx, path)
	require.NoError(t, err)
	defer db.Close()
	runs, err := db.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRecordRunAndListRuns(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	t1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	recordRun(t, db, "run-1", t1,
		record("a", outcome.Failure, "TIMEOUT", "timeout"),
		record("b", outcome.Success, "SUCCESS", ""))
	recordRun(t, db, "run-2", t2, record("c", outcome.Success, "SUCCESS", ""))

	runs, err := db.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, t2, runs[0].GeneratedAt)
	assert.Equal(t, "run-1", runs[1].ID)
	assert.Equal(t, 2, runs[1].TotalOutcomes)
	assert.Equal(t, 1, runs[1].TotalFailures)
	assert.Equal(t, 50.0, runs[1].OverallSuccessRate)
	assert.Equal(t, "/reports/run-1.json", runs[1].ReportPath)

	runs, err = db.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRecordRunDuplicateIDRollsBack(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	recordRun(t, db, "run-1", at, record("a", outcome.Failure, "TIMEOUT", "timeout"))
	report := aggregate.Compute(nil, "run-1", at, 10)
	err := db.RecordRun(ctx, report, []*outcome.Record{record("b", outcome.Failure, "TIMEOUT", "timeout")}, "")
	require.Error(t, err)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM outcomes").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestTopFingerprints(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	t1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(24 * time.Hour)

	recordRun(t, db, "run-1", t1,
		record("a", outcome.Failure, "DEPENDENCY_FAILURE", "npm ERR! code ERESOLVE"),
		record("b", outcome.Failure, "TIMEOUT", "timeout"),
		record("c", outcome.Success, "SUCCESS", ""))
	recordRun(t, db, "run-2", t2,
		record("a", outcome.Failure, "DEPENDENCY_FAILURE", "npm ERR! code ERESOLVE"),
		record("a2", outcome.Failure, "DEPENDENCY_FAILURE", "npm ERR! code ERESOLVE"))

	counts, err := db.TopFingerprints(ctx, 10)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, FingerprintCount{
		Fingerprint: "npm ERR! code ERESOLVE",
		ErrorType:   "DEPENDENCY_FAILURE",
		Count:       3,
		Runs:        2,
		LastSeen:    t2,
	}, counts[0])
	assert.Equal(t, "timeout", counts[1].Fingerprint)
	assert.Equal(t, 1, counts[1].Runs)
}
