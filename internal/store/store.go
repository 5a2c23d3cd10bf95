// Package store persists reconciled daily records.
package store

import (
	"context"
	"time"

	"example.com/wellness/internal/domain"
)

// RetentionDays bounds how far back daily records are kept.
const RetentionDays = 90

// MetricsStore holds one DailyMetricRecord per day.
type MetricsStore interface {
	// Upsert merges each record into the stored day at field level, then
	// prunes records outside the retention window.
	Upsert(ctx context.Context, records ...domain.DailyMetricRecord) error
	// Get returns the record for day or domain.ErrNotFound.
	Get(ctx context.Context, day time.Time) (domain.DailyMetricRecord, error)
	// Range returns records with from <= day <= to, ascending.
	Range(ctx context.Context, from, to time.Time) ([]domain.DailyMetricRecord, error)
}

// LoadStore holds one DailyTrainingLoad per day.
type LoadStore interface {
	UpsertLoads(ctx context.Context, loads ...domain.DailyTrainingLoad) error
	LoadRange(ctx context.Context, from, to time.Time) ([]domain.DailyTrainingLoad, error)
}

// MigrationFlags persists one-time migration completion markers.
type MigrationFlags interface {
	MigrationCompleted(ctx context.Context, name string) (bool, error)
	MarkMigrationCompleted(ctx context.Context, name string) error
}

// Store is the full persistence surface used by the service.
type Store interface {
	MetricsStore
	LoadStore
	MigrationFlags
}

// RetentionCutoff returns the oldest day still retained at now. Days strictly
// before the cutoff are pruned.
func RetentionCutoff(now time.Time, loc *time.Location) time.Time {
	return domain.StartOfDay(now, loc).AddDate(0, 0, -RetentionDays)
}
