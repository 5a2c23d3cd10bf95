// Package reconcile turns raw provider samples into canonical per-day records.
package reconcile

import (
	"sort"
	"time"
)

// Interval is a half-open covered time range.
type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) length() time.Duration {
	if i.End.Before(i.Start) {
		return 0
	}
	return i.End.Sub(i.Start)
}

// UnionDuration returns the total non-overlapping duration covered by the
// intervals. Touching intervals merge without a gap. The input is not modified.
func UnionDuration(intervals []Interval) time.Duration {
	switch len(intervals) {
	case 0:
		return 0
	case 1:
		return intervals[0].length()
	}

	sorted := make([]Interval, len(intervals))
	copy(sorted, intervals)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	var total time.Duration
	cur := sorted[0]
	for _, next := range sorted[1:] {
		if !next.Start.After(cur.End) {
			if next.End.After(cur.End) {
				cur.End = next.End
			}
			continue
		}
		total += cur.length()
		cur = next
	}
	return total + cur.length()
}
