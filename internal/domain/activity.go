package domain

import (
	"strings"
	"time"
)

// ActivityType is the normalised session type used for intensity defaults.
type ActivityType string

const (
	ActivityRide    ActivityType = "ride"
	ActivityRun     ActivityType = "run"
	ActivitySwim    ActivityType = "swim"
	ActivityRace    ActivityType = "race"
	ActivityWorkout ActivityType = "workout"
	ActivityOther   ActivityType = "other"
)

var activityAliases = map[string]ActivityType{
	"ride":        ActivityRide,
	"virtualride": ActivityRide,
	"ebikeride":   ActivityRide,
	"cycling":     ActivityRide,
	"run":         ActivityRun,
	"virtualrun":  ActivityRun,
	"trailrun":    ActivityRun,
	"running":     ActivityRun,
	"swim":        ActivitySwim,
	"swimming":    ActivitySwim,
	"race":        ActivityRace,
	"workout":     ActivityWorkout,
	"training":    ActivityWorkout,
}

// ParseActivityType maps a provider type label onto a known type. Unknown
// labels map to ActivityOther.
func ParseActivityType(raw string) ActivityType {
	if t, ok := activityAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return t
	}
	return ActivityOther
}

// ActivitySummary describes one completed session as reported by an activity feed.
type ActivitySummary struct {
	ID             string
	Type           ActivityType
	Name           string
	Start          time.Time
	MovingTime     time.Duration
	ElapsedTime    time.Duration
	DistanceMeters float64
	AvgPowerWatts  *float64
	AvgHeartRate   *float64
	Kilojoules     *float64
	EffortScore    *float64

	EstimatedTSS *float64
	TSSMethod    string
}

// Duration returns moving time, falling back to elapsed time.
func (a ActivitySummary) Duration() time.Duration {
	if a.MovingTime > 0 {
		return a.MovingTime
	}
	return a.ElapsedTime
}

// DailyTrainingLoad accumulates the sessions of one local day.
type DailyTrainingLoad struct {
	Date           time.Time
	TSS            float64
	Sessions       int
	DistanceMeters float64
	Duration       time.Duration
	UpdatedAt      time.Time
}

// Key returns the load's day key.
func (l DailyTrainingLoad) Key() string {
	return DayKey(l.Date)
}
