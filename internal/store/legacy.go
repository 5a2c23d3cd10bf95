package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	"example.com/wellness/internal/domain"
)

// ArchiveSuffix is appended to a migrated legacy snapshot.
const ArchiveSuffix = ".migrated"

// LegacySource yields records from a pre-database storage format.
type LegacySource interface {
	Load(ctx context.Context) ([]domain.DailyMetricRecord, error)
	// Archive retires the legacy data after a verified migration.
	Archive(ctx context.Context) error
}

// legacySnapshot is the on-disk layout written by the previous releases: one
// JSON object keyed by YYYY-MM-DD with sleep stages in minutes.
type legacySnapshot struct {
	Version int                  `json:"version"`
	Days    map[string]legacyDay `json:"days"`
}

type legacyDay struct {
	Steps            *float64 `json:"steps,omitempty"`
	ActiveEnergy     *float64 `json:"activeEnergy,omitempty"`
	RestingHeartRate *float64 `json:"restingHeartRate,omitempty"`
	Distance         *float64 `json:"distance,omitempty"`
	SleepDeepMin     *float64 `json:"sleepDeepMinutes,omitempty"`
	SleepREMMin      *float64 `json:"sleepRemMinutes,omitempty"`
	SleepCoreMin     *float64 `json:"sleepCoreMinutes,omitempty"`
	SleepUnspecMin   *float64 `json:"sleepUnspecifiedMinutes,omitempty"`
	SleepAwakeMin    *float64 `json:"sleepAwakeMinutes,omitempty"`
	BodyMass         *float64 `json:"bodyMass,omitempty"`
	BodyFat          *float64 `json:"bodyFatPercentage,omitempty"`
	LeanMass         *float64 `json:"leanBodyMass,omitempty"`
}

// JSONSnapshot reads the legacy JSON snapshot file.
type JSONSnapshot struct {
	path   string
	loc    *time.Location
	logger *log.Logger
}

// NewJSONSnapshot builds a LegacySource for the snapshot at path.
func NewJSONSnapshot(path string, loc *time.Location, logger *log.Logger) *JSONSnapshot {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[legacy] ", log.LstdFlags)
	}
	return &JSONSnapshot{path: path, loc: loc, logger: logger}
}

// Load returns nothing when the snapshot file does not exist. Days with
// unparseable keys are skipped.
func (s *JSONSnapshot) Load(ctx context.Context) ([]domain.DailyMetricRecord, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read legacy snapshot: %w", err)
	}

	var snap legacySnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode legacy snapshot: %w", err)
	}

	out := make([]domain.DailyMetricRecord, 0, len(snap.Days))
	for key, day := range snap.Days {
		date, err := domain.ParseDay(key, s.loc)
		if err != nil {
			s.logger.Printf("skip legacy day %q: %v", key, err)
			continue
		}
		out = append(out, day.record(date))
	}
	return out, nil
}

// Archive renames the snapshot so it is not picked up again.
func (s *JSONSnapshot) Archive(ctx context.Context) error {
	if err := os.Rename(s.path, s.path+ArchiveSuffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("archive legacy snapshot: %w", err)
	}
	return nil
}

func (d legacyDay) record(date time.Time) domain.DailyMetricRecord {
	rec := domain.DailyMetricRecord{Date: date}
	quantities := []struct {
		kind  domain.MetricKind
		value *float64
	}{
		{domain.MetricSteps, d.Steps},
		{domain.MetricActiveEnergy, d.ActiveEnergy},
		{domain.MetricRestingHeartRate, d.RestingHeartRate},
		{domain.MetricDistance, d.Distance},
		{domain.MetricBodyMass, d.BodyMass},
		{domain.MetricBodyFat, d.BodyFat},
		{domain.MetricLeanMass, d.LeanMass},
	}
	for _, q := range quantities {
		if q.value != nil {
			rec.SetQuantity(q.kind, *q.value)
		}
	}
	stages := []struct {
		kind    domain.MetricKind
		minutes *float64
	}{
		{domain.MetricSleepDeep, d.SleepDeepMin},
		{domain.MetricSleepREM, d.SleepREMMin},
		{domain.MetricSleepCore, d.SleepCoreMin},
		{domain.MetricSleepUnspecified, d.SleepUnspecMin},
		{domain.MetricSleepAwake, d.SleepAwakeMin},
	}
	for _, st := range stages {
		if st.minutes != nil {
			rec.SetDuration(st.kind, time.Duration(*st.minutes*float64(time.Minute)))
		}
	}
	rec.Recompute()
	return rec
}
