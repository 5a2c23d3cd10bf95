package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"example.com/wellness/internal/domain"
	"example.com/wellness/internal/observability"
)

// LegacySnapshotMigration names the completion flag of the JSON snapshot import.
const LegacySnapshotMigration = "legacy_json_snapshot_v1"

// ErrMigrationUnverified means the migrated record count did not match. The
// legacy data is left in place and the flag unset, so the next start retries.
var ErrMigrationUnverified = errors.New("legacy migration verification failed")

// MigrationResult summarises one Migrator run.
type MigrationResult struct {
	AlreadyCompleted bool
	Legacy           int
	Expected         int
	Migrated         int
}

// MigratorOption configures a Migrator.
type MigratorOption func(*Migrator)

// WithMigratorLogger overrides the migrator logger.
func WithMigratorLogger(logger *log.Logger) MigratorOption {
	return func(m *Migrator) {
		m.logger = logger
	}
}

// WithMigratorClock overrides the time source used for the retention window.
func WithMigratorClock(now func() time.Time) MigratorOption {
	return func(m *Migrator) {
		m.now = now
	}
}

// WithMigratorLocation sets the location used for day keys.
func WithMigratorLocation(loc *time.Location) MigratorOption {
	return func(m *Migrator) {
		if loc != nil {
			m.loc = loc
		}
	}
}

// Migrator moves legacy records into a Store exactly once.
type Migrator struct {
	store  Store
	legacy LegacySource
	name   string
	logger *log.Logger
	now    func() time.Time
	loc    *time.Location
}

// NewMigrator builds a Migrator guarded by the LegacySnapshotMigration flag.
func NewMigrator(store Store, legacy LegacySource, opts ...MigratorOption) *Migrator {
	m := &Migrator{
		store:  store,
		legacy: legacy,
		name:   LegacySnapshotMigration,
		logger: log.New(log.Writer(), "[migration] ", log.LstdFlags|log.Lshortfile),
		now:    time.Now,
		loc:    time.UTC,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run performs the migration if its flag is unset. Records older than the
// retention window are not expected to survive and are excluded from
// verification.
func (m *Migrator) Run(ctx context.Context) (MigrationResult, error) {
	var res MigrationResult

	done, err := m.store.MigrationCompleted(ctx, m.name)
	if err != nil {
		return res, fmt.Errorf("check migration flag: %w", err)
	}
	if done {
		res.AlreadyCompleted = true
		return res, nil
	}

	records, err := m.legacy.Load(ctx)
	if err != nil {
		observability.RecordMigration("failed")
		return res, err
	}
	res.Legacy = len(records)

	cutoff := domain.DayKey(RetentionCutoff(m.now(), m.loc))
	expected := make(map[string]struct{}, len(records))
	retained := make([]domain.DailyMetricRecord, 0, len(records))
	var from, to time.Time
	for _, rec := range records {
		rec.Date = domain.StartOfDay(rec.Date, m.loc)
		if rec.Key() < cutoff {
			continue
		}
		expected[rec.Key()] = struct{}{}
		retained = append(retained, rec)
		if from.IsZero() || rec.Date.Before(from) {
			from = rec.Date
		}
		if rec.Date.After(to) {
			to = rec.Date
		}
	}
	res.Expected = len(expected)

	if len(retained) > 0 {
		if err := m.store.Upsert(ctx, retained...); err != nil {
			observability.RecordMigration("failed")
			return res, fmt.Errorf("import legacy records: %w", err)
		}

		stored, err := m.store.Range(ctx, from, to)
		if err != nil {
			observability.RecordMigration("failed")
			return res, fmt.Errorf("verify legacy records: %w", err)
		}
		for _, rec := range stored {
			if _, ok := expected[rec.Key()]; ok {
				res.Migrated++
			}
		}
	}

	if res.Migrated != res.Expected {
		observability.RecordMigration("unverified")
		m.logger.Printf("migration %s: expected %d records, found %d; legacy data kept", m.name, res.Expected, res.Migrated)
		return res, ErrMigrationUnverified
	}

	if err := m.store.MarkMigrationCompleted(ctx, m.name); err != nil {
		observability.RecordMigration("failed")
		return res, fmt.Errorf("mark migration completed: %w", err)
	}
	observability.RecordMigration("completed")

	if err := m.legacy.Archive(ctx); err != nil {
		m.logger.Printf("migration %s completed but archiving failed: %v", m.name, err)
	}
	m.logger.Printf("migration %s: imported %d of %d legacy records", m.name, res.Migrated, res.Legacy)
	return res, nil
}
