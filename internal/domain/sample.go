package domain

import (
	"fmt"
	"math"
	"time"
)

// MetricKind classifies a sample.
type MetricKind string

const (
	MetricSteps            MetricKind = "steps"
	MetricActiveEnergy     MetricKind = "active_energy"
	MetricDistance         MetricKind = "distance"
	MetricRestingHeartRate MetricKind = "resting_heart_rate"
	MetricBodyMass         MetricKind = "body_mass"
	MetricBodyFat          MetricKind = "body_fat_percentage"
	MetricLeanMass         MetricKind = "lean_body_mass"
	MetricSleepDeep        MetricKind = "sleep_deep"
	MetricSleepREM         MetricKind = "sleep_rem"
	MetricSleepCore        MetricKind = "sleep_core"
	MetricSleepUnspecified MetricKind = "sleep_unspecified"
	MetricSleepAwake       MetricKind = "sleep_awake"
)

// Shape describes how samples of a kind combine within a day.
type Shape int

const (
	// ShapeInterval samples cover a time range and combine by interval union.
	ShapeInterval Shape = iota
	// ShapeCumulative samples carry a quantity and combine by summation.
	ShapeCumulative
	// ShapeInstant samples are point observations; the latest one wins.
	ShapeInstant
)

// MetricKinds lists every supported kind.
func MetricKinds() []MetricKind {
	return []MetricKind{
		MetricSteps, MetricActiveEnergy, MetricDistance, MetricRestingHeartRate,
		MetricBodyMass, MetricBodyFat, MetricLeanMass,
		MetricSleepDeep, MetricSleepREM, MetricSleepCore, MetricSleepUnspecified, MetricSleepAwake,
	}
}

// IsSleep reports whether the kind is a sleep stage.
func (k MetricKind) IsSleep() bool {
	switch k {
	case MetricSleepDeep, MetricSleepREM, MetricSleepCore, MetricSleepUnspecified, MetricSleepAwake:
		return true
	}
	return false
}

// Shape returns how samples of this kind combine.
func (k MetricKind) Shape() Shape {
	switch {
	case k.IsSleep():
		return ShapeInterval
	case k == MetricSteps, k == MetricActiveEnergy, k == MetricDistance:
		return ShapeCumulative
	default:
		return ShapeInstant
	}
}

// Valid reports whether k is a supported kind.
func (k MetricKind) Valid() bool {
	for _, known := range MetricKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// Sample is a single observation from one provider. Interval samples carry an
// End; instant samples leave it zero. Value is ignored for interval kinds.
type Sample struct {
	Kind     MetricKind
	Start    time.Time
	End      time.Time
	Value    float64
	Provider Provider
}

// Duration returns the covered span of an interval sample.
func (s Sample) Duration() time.Duration {
	if s.End.IsZero() || s.End.Before(s.Start) {
		return 0
	}
	return s.End.Sub(s.Start)
}

// Validate checks that the sample can be bucketed and combined.
func (s Sample) Validate() error {
	if !s.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSample, s.Kind)
	}
	if s.Start.IsZero() {
		return fmt.Errorf("%w: %s sample has no start", ErrInvalidSample, s.Kind)
	}
	if s.Kind.Shape() == ShapeInterval {
		if s.End.IsZero() || s.End.Before(s.Start) {
			return fmt.Errorf("%w: %s interval ends before it starts", ErrInvalidSample, s.Kind)
		}
		return nil
	}
	if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) || s.Value < 0 {
		return fmt.Errorf("%w: %s value %v", ErrInvalidSample, s.Kind, s.Value)
	}
	return nil
}
