// Package postgres implements the wellness store on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/wellness/internal/domain"
	"example.com/wellness/internal/observability"
	"example.com/wellness/internal/store"
)

// writerLockKey is the advisory lock serialising writers across processes.
const writerLockKey int64 = 0x77656c6c6e657373

const metricColumns = `day, steps, active_energy_kcal, resting_heart_rate, distance_m,
        sleep_deep_s, sleep_rem_s, sleep_core_s, sleep_unspecified_s, sleep_awake_s,
        body_mass_kg, body_fat_pct, lean_mass_kg,
        total_sleep_s, sleep_efficiency, activity_score, sleep_quality_score, updated_at`

const upsertMetricSQL = `INSERT INTO daily_metrics (` + metricColumns + `)
        VALUES ($1::date, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
        ON CONFLICT (day) DO UPDATE SET
            steps = EXCLUDED.steps,
            active_energy_kcal = EXCLUDED.active_energy_kcal,
            resting_heart_rate = EXCLUDED.resting_heart_rate,
            distance_m = EXCLUDED.distance_m,
            sleep_deep_s = EXCLUDED.sleep_deep_s,
            sleep_rem_s = EXCLUDED.sleep_rem_s,
            sleep_core_s = EXCLUDED.sleep_core_s,
            sleep_unspecified_s = EXCLUDED.sleep_unspecified_s,
            sleep_awake_s = EXCLUDED.sleep_awake_s,
            body_mass_kg = EXCLUDED.body_mass_kg,
            body_fat_pct = EXCLUDED.body_fat_pct,
            lean_mass_kg = EXCLUDED.lean_mass_kg,
            total_sleep_s = EXCLUDED.total_sleep_s,
            sleep_efficiency = EXCLUDED.sleep_efficiency,
            activity_score = EXCLUDED.activity_score,
            sleep_quality_score = EXCLUDED.sleep_quality_score,
            updated_at = EXCLUDED.updated_at`

const upsertLoadSQL = `INSERT INTO daily_training_load (day, tss, sessions, distance_m, duration_s, updated_at)
        VALUES ($1::date, $2, $3, $4, $5, $6)
        ON CONFLICT (day) DO UPDATE SET
            tss = EXCLUDED.tss,
            sessions = EXCLUDED.sessions,
            distance_m = EXCLUDED.distance_m,
            duration_s = EXCLUDED.duration_s,
            updated_at = EXCLUDED.updated_at`

// Option configures a Repository.
type Option func(*Repository)

// WithLocation sets the location day keys are computed in.
func WithLocation(loc *time.Location) Option {
	return func(r *Repository) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// WithClock overrides the time source used for retention and timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		r.now = now
	}
}

// Repository provides Postgres-backed persistence for daily records.
type Repository struct {
	pool *pgxpool.Pool
	loc  *time.Location
	now  func() time.Time
}

var _ store.Store = (*Repository)(nil)

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool, opts ...Option) *Repository {
	r := &Repository{pool: pool, loc: time.UTC, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Upsert merges records inside one transaction holding the writer lock, then
// applies retention.
func (r *Repository) Upsert(ctx context.Context, records ...domain.DailyMetricRecord) error {
	tx, err := r.beginWrite(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	now := r.now()
	for _, rec := range records {
		if rec.Date.IsZero() {
			return fmt.Errorf("upsert daily metrics: record without date")
		}
		rec.Date = domain.StartOfDay(rec.Date, r.loc)
		rec.UpdatedAt = now

		existing, err := r.scanMetric(tx.QueryRow(ctx,
			`SELECT `+metricColumns+` FROM daily_metrics WHERE day = $1::date FOR UPDATE`, rec.Key()))
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("load day %s: %w", rec.Key(), err)
		}
		merged := existing.Merge(rec)

		if _, err := tx.Exec(ctx, upsertMetricSQL, metricArgs(merged)...); err != nil {
			return fmt.Errorf("upsert day %s: %w", rec.Key(), err)
		}
	}

	if err := r.pruneTx(ctx, tx, now); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordDaysWritten("daily_metrics", len(records))
	return nil
}

// Get fetches a single day.
func (r *Repository) Get(ctx context.Context, day time.Time) (domain.DailyMetricRecord, error) {
	key := domain.DayKey(domain.StartOfDay(day, r.loc))
	rec, err := r.scanMetric(r.pool.QueryRow(ctx, `SELECT `+metricColumns+` FROM daily_metrics WHERE day = $1::date`, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DailyMetricRecord{}, domain.ErrNotFound
		}
		return domain.DailyMetricRecord{}, err
	}
	return rec, nil
}

// Range lists days between from and to inclusive, ascending.
func (r *Repository) Range(ctx context.Context, from, to time.Time) ([]domain.DailyMetricRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+metricColumns+` FROM daily_metrics WHERE day BETWEEN $1::date AND $2::date ORDER BY day`,
		r.key(from), r.key(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.DailyMetricRecord, 0)
	for rows.Next() {
		rec, err := r.scanMetric(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// UpsertLoads replaces the per-day training load totals.
func (r *Repository) UpsertLoads(ctx context.Context, loads ...domain.DailyTrainingLoad) error {
	tx, err := r.beginWrite(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	now := r.now()
	for _, load := range loads {
		if load.Date.IsZero() {
			return fmt.Errorf("upsert training load: load without date")
		}
		key := r.key(load.Date)
		if _, err := tx.Exec(ctx, upsertLoadSQL, key, load.TSS, load.Sessions, load.DistanceMeters, load.Duration.Seconds(), now); err != nil {
			return fmt.Errorf("upsert load %s: %w", key, err)
		}
	}

	if err := r.pruneTx(ctx, tx, now); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordDaysWritten("training_load", len(loads))
	return nil
}

// LoadRange lists training load days between from and to inclusive, ascending.
func (r *Repository) LoadRange(ctx context.Context, from, to time.Time) ([]domain.DailyTrainingLoad, error) {
	const query = `SELECT day, tss, sessions, distance_m, duration_s, updated_at
        FROM daily_training_load WHERE day BETWEEN $1::date AND $2::date ORDER BY day`

	rows, err := r.pool.Query(ctx, query, r.key(from), r.key(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.DailyTrainingLoad, 0)
	for rows.Next() {
		var (
			load     domain.DailyTrainingLoad
			day      time.Time
			duration float64
		)
		if err := rows.Scan(&day, &load.TSS, &load.Sessions, &load.DistanceMeters, &duration, &load.UpdatedAt); err != nil {
			return nil, err
		}
		load.Date = r.localDay(day)
		load.Duration = time.Duration(duration * float64(time.Second))
		out = append(out, load)
	}
	return out, rows.Err()
}

// MigrationCompleted reports whether the named migration flag is set.
func (r *Repository) MigrationCompleted(ctx context.Context, name string) (bool, error) {
	var done bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM store_migrations WHERE name = $1)`, name).Scan(&done)
	return done, err
}

// MarkMigrationCompleted sets the named migration flag.
func (r *Repository) MarkMigrationCompleted(ctx context.Context, name string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO store_migrations (name, completed_at) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
		name, r.now())
	return err
}

func (r *Repository) beginWrite(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", writerLockKey); err != nil {
		tx.Rollback(ctx)
		return nil, fmt.Errorf("acquire writer lock: %w", err)
	}
	return tx, nil
}

func (r *Repository) pruneTx(ctx context.Context, tx pgx.Tx, now time.Time) error {
	cutoff := domain.DayKey(store.RetentionCutoff(now, r.loc))
	var pruned int64
	for _, table := range []string{"daily_metrics", "daily_training_load"} {
		tag, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE day < $1::date`, cutoff)
		if err != nil {
			return fmt.Errorf("prune %s: %w", table, err)
		}
		pruned += tag.RowsAffected()
	}
	observability.RecordPruned(int(pruned))
	return nil
}

func (r *Repository) key(t time.Time) string {
	return domain.DayKey(domain.StartOfDay(t, r.loc))
}

// localDay reinterprets a DATE value, scanned as UTC midnight, in r.loc.
func (r *Repository) localDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, r.loc)
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scanMetric(row scanner) (domain.DailyMetricRecord, error) {
	var (
		rec                                    domain.DailyMetricRecord
		day                                    time.Time
		deep, rem, core, unspec, awake, total *float64
	)
	err := row.Scan(&day, &rec.Steps, &rec.ActiveEnergyKcal, &rec.RestingHeartRate, &rec.DistanceMeters,
		&deep, &rem, &core, &unspec, &awake,
		&rec.BodyMassKg, &rec.BodyFatPercent, &rec.LeanMassKg,
		&total, &rec.SleepEfficiency, &rec.ActivityScore, &rec.SleepQualityScore, &rec.UpdatedAt)
	if err != nil {
		return domain.DailyMetricRecord{}, err
	}
	rec.Date = r.localDay(day)
	rec.SleepDeep = fromSeconds(deep)
	rec.SleepREM = fromSeconds(rem)
	rec.SleepCore = fromSeconds(core)
	rec.SleepUnspecified = fromSeconds(unspec)
	rec.SleepAwake = fromSeconds(awake)
	rec.TotalSleep = fromSeconds(total)
	return rec, nil
}

func metricArgs(rec domain.DailyMetricRecord) []any {
	return []any{
		rec.Key(), rec.Steps, rec.ActiveEnergyKcal, rec.RestingHeartRate, rec.DistanceMeters,
		toSeconds(rec.SleepDeep), toSeconds(rec.SleepREM), toSeconds(rec.SleepCore),
		toSeconds(rec.SleepUnspecified), toSeconds(rec.SleepAwake),
		rec.BodyMassKg, rec.BodyFatPercent, rec.LeanMassKg,
		toSeconds(rec.TotalSleep), rec.SleepEfficiency, rec.ActivityScore, rec.SleepQualityScore, rec.UpdatedAt,
	}
}

func toSeconds(d *time.Duration) *float64 {
	if d == nil {
		return nil
	}
	s := d.Seconds()
	return &s
}

func fromSeconds(s *float64) *time.Duration {
	if s == nil {
		return nil
	}
	d := time.Duration(*s * float64(time.Second))
	return &d
}
