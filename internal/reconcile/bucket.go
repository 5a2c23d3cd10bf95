package reconcile

import (
	"time"

	"example.com/wellness/internal/domain"
)

// SleepNightOffset shifts sleep samples forward before truncation so a session
// spanning midnight lands on the day the athlete wakes up. Naps and sessions
// longer than a day are not special-cased.
const SleepNightOffset = 6 * time.Hour

// MetricDay returns the local midnight of the day a sample is attributed to.
func MetricDay(s domain.Sample, loc *time.Location) time.Time {
	if s.Kind.IsSleep() {
		return domain.StartOfDay(s.Start.Add(SleepNightOffset), loc)
	}
	return domain.StartOfDay(s.Start, loc)
}
