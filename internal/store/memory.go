package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"example.com/wellness/internal/domain"
	"example.com/wellness/internal/observability"
)

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithClock overrides the time source used for retention and timestamps.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// WithLocation sets the location day keys are computed in.
func WithLocation(loc *time.Location) MemoryOption {
	return func(m *Memory) {
		if loc != nil {
			m.loc = loc
		}
	}
}

// Memory is an in-process Store. All mutations are serialised by one lock.
type Memory struct {
	mu      sync.RWMutex
	metrics map[string]domain.DailyMetricRecord
	loads   map[string]domain.DailyTrainingLoad
	flags   map[string]time.Time
	now     func() time.Time
	loc     *time.Location
}

var _ Store = (*Memory)(nil)

// NewMemory constructs an empty Memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		metrics: make(map[string]domain.DailyMetricRecord),
		loads:   make(map[string]domain.DailyTrainingLoad),
		flags:   make(map[string]time.Time),
		now:     time.Now,
		loc:     time.UTC,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Upsert(ctx context.Context, records ...domain.DailyMetricRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, rec := range records {
		if rec.Date.IsZero() {
			return fmt.Errorf("upsert daily metrics: record without date")
		}
		rec.Date = domain.StartOfDay(rec.Date, m.loc)
		rec.UpdatedAt = now
		key := rec.Key()
		m.metrics[key] = m.metrics[key].Merge(rec)
	}
	observability.RecordDaysWritten("daily_metrics", len(records))
	m.pruneLocked(now)
	return nil
}

func (m *Memory) Get(ctx context.Context, day time.Time) (domain.DailyMetricRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.metrics[domain.DayKey(domain.StartOfDay(day, m.loc))]
	if !ok {
		return domain.DailyMetricRecord{}, domain.ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *Memory) Range(ctx context.Context, from, to time.Time) ([]domain.DailyMetricRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lo, hi := m.bounds(from, to)
	out := make([]domain.DailyMetricRecord, 0)
	for key, rec := range m.metrics {
		if key >= lo && key <= hi {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

func (m *Memory) UpsertLoads(ctx context.Context, loads ...domain.DailyTrainingLoad) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, load := range loads {
		if load.Date.IsZero() {
			return fmt.Errorf("upsert training load: load without date")
		}
		load.Date = domain.StartOfDay(load.Date, m.loc)
		load.UpdatedAt = now
		m.loads[load.Key()] = load
	}
	observability.RecordDaysWritten("training_load", len(loads))
	m.pruneLocked(now)
	return nil
}

func (m *Memory) LoadRange(ctx context.Context, from, to time.Time) ([]domain.DailyTrainingLoad, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lo, hi := m.bounds(from, to)
	out := make([]domain.DailyTrainingLoad, 0)
	for key, load := range m.loads {
		if key >= lo && key <= hi {
			out = append(out, load)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

func (m *Memory) MigrationCompleted(ctx context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.flags[name]
	return ok, nil
}

func (m *Memory) MarkMigrationCompleted(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags[name] = m.now()
	return nil
}

func (m *Memory) bounds(from, to time.Time) (string, string) {
	return domain.DayKey(domain.StartOfDay(from, m.loc)), domain.DayKey(domain.StartOfDay(to, m.loc))
}

func (m *Memory) pruneLocked(now time.Time) {
	cutoff := domain.DayKey(RetentionCutoff(now, m.loc))
	pruned := 0
	for key := range m.metrics {
		if key < cutoff {
			delete(m.metrics, key)
			pruned++
		}
	}
	for key := range m.loads {
		if key < cutoff {
			delete(m.loads, key)
			pruned++
		}
	}
	observability.RecordPruned(pruned)
}
