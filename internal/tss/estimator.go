// Package tss estimates Training Stress Score for completed sessions.
package tss

import "example.com/wellness/internal/domain"

// Method names the rule in the fallback chain that produced an estimate.
type Method string

const (
	MethodEffortScore Method = "effort_score"
	MethodPower       Method = "power"
	MethodHeartRate   Method = "heart_rate"
	MethodEnergy      Method = "energy"
	MethodDuration    Method = "duration"
)

// Thresholds are the athlete calibration constants. Zero means unknown.
type Thresholds struct {
	FTP  float64
	LTHR float64
}

// Result is a single estimate and the method that produced it.
type Result struct {
	TSS    float64
	Method Method
}

// AssumedIntensity returns the intensity factor used when nothing but
// duration is known.
func AssumedIntensity(t domain.ActivityType) float64 {
	switch t {
	case domain.ActivityRace, domain.ActivityWorkout:
		return 0.95
	case domain.ActivityRide:
		return 0.70
	case domain.ActivityRun:
		return 0.75
	default:
		return 0.65
	}
}

// Estimate walks the fallback chain; the first applicable rule wins. It
// reports false only when the activity has no effort score and no duration.
func Estimate(a domain.ActivitySummary, th Thresholds) (Result, bool) {
	if a.EffortScore != nil {
		return Result{TSS: *a.EffortScore, Method: MethodEffortScore}, true
	}

	hours := a.Duration().Hours()

	if hours > 0 && th.FTP > 0 && positive(a.AvgPowerWatts) {
		return Result{TSS: intensityScore(hours, *a.AvgPowerWatts/th.FTP), Method: MethodPower}, true
	}
	if hours > 0 && th.LTHR > 0 && positive(a.AvgHeartRate) {
		return Result{TSS: intensityScore(hours, *a.AvgHeartRate/th.LTHR), Method: MethodHeartRate}, true
	}
	if th.FTP > 0 && positive(a.Kilojoules) {
		return Result{TSS: *a.Kilojoules / (th.FTP * 3.6), Method: MethodEnergy}, true
	}
	if hours > 0 {
		return Result{TSS: intensityScore(hours, AssumedIntensity(a.Type)), Method: MethodDuration}, true
	}
	return Result{}, false
}

// Apply sets EstimatedTSS and TSSMethod on every activity that yields an
// estimate and returns the updated slice.
func Apply(activities []domain.ActivitySummary, th Thresholds) []domain.ActivitySummary {
	out := make([]domain.ActivitySummary, len(activities))
	for i, a := range activities {
		if res, ok := Estimate(a, th); ok {
			v := res.TSS
			a.EstimatedTSS = &v
			a.TSSMethod = string(res.Method)
		}
		out[i] = a
	}
	return out
}

func intensityScore(hours, intensity float64) float64 {
	return hours * intensity * intensity * 100
}

func positive(v *float64) bool {
	return v != nil && *v > 0
}
