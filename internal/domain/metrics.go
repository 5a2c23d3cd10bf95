package domain

import (
	"math"
	"time"
)

// Scoring targets for the derived daily scores.
const (
	StepsTarget        = 10000.0
	ActiveEnergyTarget = 600.0
	SleepTarget        = 8 * time.Hour
)

// DailyMetricRecord is the canonical per-day record. A nil field means the value
// has never been observed for the day.
type DailyMetricRecord struct {
	Date time.Time

	Steps            *int
	ActiveEnergyKcal *float64
	RestingHeartRate *float64
	DistanceMeters   *float64

	SleepDeep        *time.Duration
	SleepREM         *time.Duration
	SleepCore        *time.Duration
	SleepUnspecified *time.Duration
	SleepAwake       *time.Duration

	BodyMassKg     *float64
	BodyFatPercent *float64
	LeanMassKg     *float64

	TotalSleep        *time.Duration
	SleepEfficiency   *float64
	ActivityScore     *float64
	SleepQualityScore *float64

	UpdatedAt time.Time
}

// Key returns the record's day key.
func (r DailyMetricRecord) Key() string {
	return DayKey(r.Date)
}

// SetQuantity stores a reconciled numeric value for a non-interval kind.
func (r *DailyMetricRecord) SetQuantity(kind MetricKind, value float64) {
	switch kind {
	case MetricSteps:
		steps := int(math.Round(value))
		r.Steps = &steps
	case MetricActiveEnergy:
		r.ActiveEnergyKcal = &value
	case MetricDistance:
		r.DistanceMeters = &value
	case MetricRestingHeartRate:
		r.RestingHeartRate = &value
	case MetricBodyMass:
		r.BodyMassKg = &value
	case MetricBodyFat:
		r.BodyFatPercent = &value
	case MetricLeanMass:
		r.LeanMassKg = &value
	}
}

// SetDuration stores a reconciled sleep-stage duration.
func (r *DailyMetricRecord) SetDuration(kind MetricKind, d time.Duration) {
	switch kind {
	case MetricSleepDeep:
		r.SleepDeep = &d
	case MetricSleepREM:
		r.SleepREM = &d
	case MetricSleepCore:
		r.SleepCore = &d
	case MetricSleepUnspecified:
		r.SleepUnspecified = &d
	case MetricSleepAwake:
		r.SleepAwake = &d
	}
}

// Merge overlays the fields present in incoming on top of r and recomputes the
// derived scores. Fields absent from incoming keep their current values,
// except that sleep stages are one unit: when incoming carries any stage, it
// replaces every stored stage.
func (r DailyMetricRecord) Merge(incoming DailyMetricRecord) DailyMetricRecord {
	out := r.Clone()
	if out.Date.IsZero() {
		out.Date = incoming.Date
	}
	out.Steps = overlay(out.Steps, incoming.Steps)
	out.ActiveEnergyKcal = overlay(out.ActiveEnergyKcal, incoming.ActiveEnergyKcal)
	out.RestingHeartRate = overlay(out.RestingHeartRate, incoming.RestingHeartRate)
	out.DistanceMeters = overlay(out.DistanceMeters, incoming.DistanceMeters)
	if incoming.HasSleep() {
		out.SleepDeep = clonePtr(incoming.SleepDeep)
		out.SleepREM = clonePtr(incoming.SleepREM)
		out.SleepCore = clonePtr(incoming.SleepCore)
		out.SleepUnspecified = clonePtr(incoming.SleepUnspecified)
		out.SleepAwake = clonePtr(incoming.SleepAwake)
	}
	out.BodyMassKg = overlay(out.BodyMassKg, incoming.BodyMassKg)
	out.BodyFatPercent = overlay(out.BodyFatPercent, incoming.BodyFatPercent)
	out.LeanMassKg = overlay(out.LeanMassKg, incoming.LeanMassKg)
	if incoming.UpdatedAt.After(out.UpdatedAt) {
		out.UpdatedAt = incoming.UpdatedAt
	}
	out.Recompute()
	return out
}

// HasSleep reports whether any sleep stage is set.
func (r DailyMetricRecord) HasSleep() bool {
	return r.SleepDeep != nil || r.SleepREM != nil || r.SleepCore != nil ||
		r.SleepUnspecified != nil || r.SleepAwake != nil
}

// Clone returns a deep copy of r.
func (r DailyMetricRecord) Clone() DailyMetricRecord {
	out := r
	out.Steps = clonePtr(r.Steps)
	out.ActiveEnergyKcal = clonePtr(r.ActiveEnergyKcal)
	out.RestingHeartRate = clonePtr(r.RestingHeartRate)
	out.DistanceMeters = clonePtr(r.DistanceMeters)
	out.SleepDeep = clonePtr(r.SleepDeep)
	out.SleepREM = clonePtr(r.SleepREM)
	out.SleepCore = clonePtr(r.SleepCore)
	out.SleepUnspecified = clonePtr(r.SleepUnspecified)
	out.SleepAwake = clonePtr(r.SleepAwake)
	out.BodyMassKg = clonePtr(r.BodyMassKg)
	out.BodyFatPercent = clonePtr(r.BodyFatPercent)
	out.LeanMassKg = clonePtr(r.LeanMassKg)
	out.TotalSleep = clonePtr(r.TotalSleep)
	out.SleepEfficiency = clonePtr(r.SleepEfficiency)
	out.ActivityScore = clonePtr(r.ActivityScore)
	out.SleepQualityScore = clonePtr(r.SleepQualityScore)
	return out
}

// Recompute derives totalSleep, sleepEfficiency, activityScore and
// sleepQualityScore from the raw fields. Scores whose inputs are missing are
// left nil.
func (r *DailyMetricRecord) Recompute() {
	r.TotalSleep = nil
	var total time.Duration
	for _, stage := range []*time.Duration{r.SleepDeep, r.SleepREM, r.SleepCore, r.SleepUnspecified} {
		if stage != nil {
			total += *stage
			r.TotalSleep = &total
		}
	}

	r.SleepEfficiency = nil
	if r.TotalSleep != nil && r.SleepAwake != nil {
		inBed := *r.TotalSleep + *r.SleepAwake
		if inBed > 0 {
			eff := float64(*r.TotalSleep) / float64(inBed) * 100
			r.SleepEfficiency = &eff
		}
	}

	r.ActivityScore = nil
	if r.Steps != nil {
		stepRatio := math.Min(float64(*r.Steps)/StepsTarget, 1)
		score := 100 * stepRatio
		if r.ActiveEnergyKcal != nil {
			score = 70*stepRatio + 30*math.Min(*r.ActiveEnergyKcal/ActiveEnergyTarget, 1)
		}
		r.ActivityScore = &score
	}

	r.SleepQualityScore = nil
	if r.TotalSleep != nil && r.SleepEfficiency != nil {
		score := 60*math.Min(float64(*r.TotalSleep)/float64(SleepTarget), 1) + 40*(*r.SleepEfficiency/100)
		r.SleepQualityScore = &score
	}
}

// IsEmpty reports whether no raw field is set.
func (r DailyMetricRecord) IsEmpty() bool {
	return r.Steps == nil && r.ActiveEnergyKcal == nil && r.RestingHeartRate == nil &&
		r.DistanceMeters == nil && r.SleepDeep == nil && r.SleepREM == nil &&
		r.SleepCore == nil && r.SleepUnspecified == nil && r.SleepAwake == nil &&
		r.BodyMassKg == nil && r.BodyFatPercent == nil && r.LeanMassKg == nil
}

func overlay[T any](current, incoming *T) *T {
	if incoming == nil {
		return current
	}
	v := *incoming
	return &v
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
