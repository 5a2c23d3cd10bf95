package reconcile

import (
	"sort"
	"time"

	"example.com/wellness/internal/domain"
)

// Group names the provider group a reconciled value came from.
type Group string

const (
	GroupPrimary  Group = "primary"
	GroupFallback Group = "fallback"
	GroupNone     Group = "none"
)

// Decision records which group supplied the value for one metric day.
type Decision struct {
	Day   time.Time
	Kind  domain.MetricKind
	Group Group
}

// Select implements the all-or-nothing group choice: the primary total wins
// whenever it is nonzero, otherwise the fallback total is used. The two are
// never added.
func Select(primary, fallback float64) (float64, Group) {
	if primary != 0 {
		return primary, GroupPrimary
	}
	if fallback != 0 {
		return fallback, GroupFallback
	}
	return 0, GroupNone
}

// Reconciler buckets samples by metric day and resolves overlapping
// providers into one record per day.
type Reconciler struct {
	primary domain.Provider
	loc     *time.Location
}

// NewReconciler builds a Reconciler preferring primary, bucketing days in loc.
func NewReconciler(primary domain.Provider, loc *time.Location) *Reconciler {
	if loc == nil {
		loc = time.UTC
	}
	return &Reconciler{primary: primary, loc: loc}
}

// Primary returns the preferred provider.
func (r *Reconciler) Primary() domain.Provider {
	return r.primary
}

type dayBucket struct {
	day   time.Time
	kinds map[domain.MetricKind]*groupSamples
}

type groupSamples struct {
	primary  []domain.Sample
	fallback []domain.Sample
}

// Reconcile returns one partial record per metric day touched by samples,
// sorted by day. Only reconciled fields are set; merging into the stored
// record is the store's job. Samples must already be validated.
func (r *Reconciler) Reconcile(samples []domain.Sample) ([]domain.DailyMetricRecord, []Decision) {
	buckets := make(map[string]*dayBucket)
	for _, s := range samples {
		day := MetricDay(s, r.loc)
		key := domain.DayKey(day)
		b, ok := buckets[key]
		if !ok {
			b = &dayBucket{day: day, kinds: make(map[domain.MetricKind]*groupSamples)}
			buckets[key] = b
		}
		g, ok := b.kinds[s.Kind]
		if !ok {
			g = &groupSamples{}
			b.kinds[s.Kind] = g
		}
		if s.Provider == r.primary {
			g.primary = append(g.primary, s)
		} else {
			g.fallback = append(g.fallback, s)
		}
	}

	keys := make([]string, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	records := make([]domain.DailyMetricRecord, 0, len(keys))
	var decisions []Decision
	for _, key := range keys {
		b := buckets[key]
		rec := domain.DailyMetricRecord{Date: b.day}
		night := b.sleepGroup()
		for _, kind := range domain.MetricKinds() {
			g, ok := b.kinds[kind]
			if !ok {
				continue
			}
			var group Group
			if kind.IsSleep() {
				group = applySleep(&rec, kind, g, night)
			} else {
				group = r.apply(&rec, kind, g)
			}
			decisions = append(decisions, Decision{Day: b.day, Kind: kind, Group: group})
		}
		if rec.IsEmpty() {
			continue
		}
		rec.Recompute()
		records = append(records, rec)
	}
	return records, decisions
}

// sleepGroup picks one group for every sleep stage of the night: the primary
// when any of its stages has a nonzero total, otherwise the fallback.
func (b *dayBucket) sleepGroup() Group {
	fallback := false
	for kind, g := range b.kinds {
		if !kind.IsSleep() {
			continue
		}
		if intervalTotal(g.primary) > 0 {
			return GroupPrimary
		}
		if intervalTotal(g.fallback) > 0 {
			fallback = true
		}
	}
	if fallback {
		return GroupFallback
	}
	return GroupNone
}

func applySleep(rec *domain.DailyMetricRecord, kind domain.MetricKind, g *groupSamples, night Group) Group {
	var samples []domain.Sample
	switch night {
	case GroupPrimary:
		samples = g.primary
	case GroupFallback:
		samples = g.fallback
	default:
		return GroupNone
	}
	total := intervalTotal(samples)
	if total == 0 {
		return GroupNone
	}
	rec.SetDuration(kind, total)
	return night
}

func (r *Reconciler) apply(rec *domain.DailyMetricRecord, kind domain.MetricKind, g *groupSamples) Group {
	switch kind.Shape() {
	case domain.ShapeCumulative:
		total, group := Select(distinctSum(g.primary), distinctSum(g.fallback))
		if group != GroupNone {
			rec.SetQuantity(kind, total)
		}
		return group
	default:
		if latest, ok := latestValue(g.primary); ok {
			rec.SetQuantity(kind, latest)
			return GroupPrimary
		}
		if latest, ok := latestValue(g.fallback); ok {
			rec.SetQuantity(kind, latest)
			return GroupFallback
		}
		return GroupNone
	}
}

func intervalTotal(samples []domain.Sample) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	intervals := make([]Interval, 0, len(samples))
	for _, s := range samples {
		intervals = append(intervals, Interval{Start: s.Start, End: s.End})
	}
	return UnionDuration(intervals)
}

type sampleKey struct {
	start int64
	end   int64
	value float64
}

// distinctSum adds cumulative samples, collapsing exact duplicates such as
// those produced by a retried fetch or two relays forwarding the same reading.
func distinctSum(samples []domain.Sample) float64 {
	seen := make(map[sampleKey]struct{}, len(samples))
	var total float64
	for _, s := range samples {
		k := sampleKey{start: s.Start.UnixNano(), value: s.Value}
		if !s.End.IsZero() {
			k.end = s.End.UnixNano()
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		total += s.Value
	}
	return total
}

func latestValue(samples []domain.Sample) (float64, bool) {
	if len(samples) == 0 {
		return 0, false
	}
	latest := samples[0]
	for _, s := range samples[1:] {
		if s.Start.After(latest.Start) {
			latest = s
		}
	}
	return latest.Value, true
}
