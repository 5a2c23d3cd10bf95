// Package insights derives weekly statistics and rule-based recommendations
// from stored daily records.
package insights

import (
	"sort"
	"time"

	"example.com/wellness/internal/domain"
)

const (
	// DefaultWindowDays is the trailing window of a weekly summary.
	DefaultWindowDays = 7
	// SleepTargetHours is the nightly target sleep debt is measured against.
	SleepTargetHours = 8.0

	trendPoints     = 3
	sleepDebtWindow = 7
)

// WeeklySummary holds rolling statistics over a slice of daily records. Nil
// fields had no input data.
type WeeklySummary struct {
	Start time.Time
	End   time.Time
	Days  int

	Entries                int
	AverageSteps           *float64
	AverageSleepHours      *float64
	AverageSleepEfficiency *float64
	AverageActivityScore   *float64
	ActivityTrend          *float64
	SleepTrend             *float64
	SleepDebtHours         *float64
}

// Summarize builds the summary for the days trailing end (inclusive).
// Records outside the window are ignored.
func Summarize(records []domain.DailyMetricRecord, end time.Time, days int, loc *time.Location) WeeklySummary {
	if days <= 0 {
		days = DefaultWindowDays
	}
	last := domain.StartOfDay(end, loc)
	first := last.AddDate(0, 0, -(days - 1))
	lo, hi := domain.DayKey(first), domain.DayKey(last)

	window := make([]domain.DailyMetricRecord, 0, len(records))
	for _, rec := range records {
		key := domain.DayKey(domain.StartOfDay(rec.Date, loc))
		if key >= lo && key <= hi {
			window = append(window, rec)
		}
	}

	s := SummarizeRecords(window)
	s.Start, s.End, s.Days = first, last, days
	return s
}

// SummarizeRecords computes the statistics over records in date order.
func SummarizeRecords(records []domain.DailyMetricRecord) WeeklySummary {
	sorted := append([]domain.DailyMetricRecord(nil), records...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	var steps, sleepHours, efficiency, activity []float64
	for _, rec := range sorted {
		if rec.Steps != nil {
			steps = append(steps, float64(*rec.Steps))
		}
		if rec.TotalSleep != nil {
			sleepHours = append(sleepHours, rec.TotalSleep.Hours())
		}
		if rec.SleepEfficiency != nil {
			efficiency = append(efficiency, *rec.SleepEfficiency)
		}
		if rec.ActivityScore != nil {
			activity = append(activity, *rec.ActivityScore)
		}
	}

	return WeeklySummary{
		Entries:                len(sorted),
		AverageSteps:           mean(steps),
		AverageSleepHours:      mean(sleepHours),
		AverageSleepEfficiency: mean(efficiency),
		AverageActivityScore:   mean(activity),
		ActivityTrend:          Trend(activity),
		SleepTrend:             Trend(sleepHours),
		SleepDebtHours:         SleepDebt(sleepHours),
	}
}

// Trend compares the mean of the most recent three points with the mean of
// the first three. It needs six points so the windows do not overlap.
func Trend(points []float64) *float64 {
	if len(points) < 2*trendPoints {
		return nil
	}
	recent := *mean(points[len(points)-trendPoints:])
	earlier := *mean(points[:trendPoints])
	d := recent - earlier
	return &d
}

// SleepDebt returns actual sleep over the last seven entries minus the
// target for the same number of entries, in hours.
func SleepDebt(sleepHours []float64) *float64 {
	if len(sleepHours) == 0 {
		return nil
	}
	if len(sleepHours) > sleepDebtWindow {
		sleepHours = sleepHours[len(sleepHours)-sleepDebtWindow:]
	}
	var actual float64
	for _, h := range sleepHours {
		actual += h
	}
	debt := actual - SleepTargetHours*float64(len(sleepHours))
	return &debt
}

func mean(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	m := sum / float64(len(values))
	return &m
}
