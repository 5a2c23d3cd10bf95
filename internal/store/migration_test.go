package store

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/wellness/internal/domain"
)

const snapshotFixture = `{
  "version": 1,
  "days": {
    "2025-06-27": {"steps": 8123, "sleepCoreMinutes": 300, "sleepDeepMinutes": 90, "sleepAwakeMinutes": 30},
    "2025-06-28": {"restingHeartRate": 51, "bodyMass": 72.4},
    "2024-01-02": {"steps": 100},
    "not-a-day": {"steps": 1}
  }
}`

func writeSnapshot(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "daily_metrics.json")
	require.NoError(t, os.WriteFile(path, []byte(snapshotFixture), 0o600))
	return path
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestMigratorImportsOnceAndArchives(t *testing.T) {
	ctx := context.Background()
	path := writeSnapshot(t)
	mem := newTestMemory()
	legacy := NewJSONSnapshot(path, time.UTC, quietLogger())
	m := NewMigrator(mem, legacy, WithMigratorLogger(quietLogger()), WithMigratorClock(func() time.Time { return fixedNow }))

	res, err := m.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, res.Legacy)
	require.Equal(t, 2, res.Expected)
	require.Equal(t, 2, res.Migrated)

	rec, err := mem.Get(ctx, time.Date(2025, time.June, 27, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 8123, *rec.Steps)
	require.Equal(t, 6*time.Hour+30*time.Minute, *rec.TotalSleep)

	done, err := mem.MigrationCompleted(ctx, LegacySnapshotMigration)
	require.NoError(t, err)
	require.True(t, done)

	_, err = os.Stat(path)
	require.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(path + ArchiveSuffix)
	require.NoError(t, err)

	again, err := m.Run(ctx)
	require.NoError(t, err)
	require.True(t, again.AlreadyCompleted)
}

// lossyStore drops every other upserted record to simulate a broken import.
type lossyStore struct {
	*Memory
}

func (s lossyStore) Upsert(ctx context.Context, records ...domain.DailyMetricRecord) error {
	kept := make([]domain.DailyMetricRecord, 0, len(records))
	for i, rec := range records {
		if i%2 == 0 {
			kept = append(kept, rec)
		}
	}
	return s.Memory.Upsert(ctx, kept...)
}

func TestMigratorVerificationFailureKeepsLegacy(t *testing.T) {
	ctx := context.Background()
	path := writeSnapshot(t)
	mem := newTestMemory()
	m := NewMigrator(lossyStore{mem}, NewJSONSnapshot(path, time.UTC, quietLogger()),
		WithMigratorLogger(quietLogger()), WithMigratorClock(func() time.Time { return fixedNow }))

	res, err := m.Run(ctx)
	require.ErrorIs(t, err, ErrMigrationUnverified)
	require.Equal(t, 2, res.Expected)
	require.Equal(t, 1, res.Migrated)

	done, err := mem.MigrationCompleted(ctx, LegacySnapshotMigration)
	require.NoError(t, err)
	require.False(t, done)

	_, err = os.Stat(path)
	require.NoError(t, err, "legacy snapshot must stay in place")
}

func TestMigratorWithoutSnapshotCompletes(t *testing.T) {
	ctx := context.Background()
	mem := newTestMemory()
	legacy := NewJSONSnapshot(filepath.Join(t.TempDir(), "missing.json"), time.UTC, quietLogger())

	res, err := NewMigrator(mem, legacy, WithMigratorLogger(quietLogger())).Run(ctx)
	require.NoError(t, err)
	require.Zero(t, res.Legacy)

	done, err := mem.MigrationCompleted(ctx, LegacySnapshotMigration)
	require.NoError(t, err)
	require.True(t, done)
}
