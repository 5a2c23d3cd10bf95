package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/wellness/internal/domain"
)

func at(day, hour, minute int) time.Time {
	return time.Date(2025, time.June, day, hour, minute, 0, 0, time.UTC)
}

func sleep(p domain.Provider, start, end time.Time) domain.Sample {
	return domain.Sample{Kind: domain.MetricSleepCore, Start: start, End: end, Provider: p}
}

func TestSelectNeverSumsGroups(t *testing.T) {
	primary := float64(7 * time.Hour)
	fallback := float64(8 * time.Hour)

	got, group := Select(primary, fallback)
	require.Equal(t, primary, got)
	require.Equal(t, GroupPrimary, group)

	got, group = Select(0, fallback)
	require.Equal(t, fallback, got)
	require.Equal(t, GroupFallback, group)

	_, group = Select(0, 0)
	require.Equal(t, GroupNone, group)
}

func TestReconcilePrimaryWinsOverlappingNight(t *testing.T) {
	r := NewReconciler(domain.ProviderHealthStore, time.UTC)
	samples := []domain.Sample{
		sleep(domain.ProviderHealthStore, at(10, 23, 0), at(11, 6, 30)),
		sleep(domain.ProviderWearableRelay, at(10, 23, 15), at(11, 6, 0)),
	}

	records, decisions := r.Reconcile(samples)
	require.Len(t, records, 1)

	rec := records[0]
	require.Equal(t, "2025-06-11", rec.Key(), "sleep lands on the wake-up day")
	require.NotNil(t, rec.TotalSleep)
	require.Equal(t, 7*time.Hour+30*time.Minute, *rec.TotalSleep)
	require.Equal(t, []Decision{{Day: rec.Date, Kind: domain.MetricSleepCore, Group: GroupPrimary}}, decisions)
}

func TestReconcileFallsBackToUnionOfOthers(t *testing.T) {
	r := NewReconciler(domain.ProviderHealthStore, time.UTC)
	samples := []domain.Sample{
		sleep(domain.ProviderWearableRelay, at(10, 23, 0), at(11, 3, 0)),
		sleep(domain.ProviderActivityAPI, at(11, 2, 0), at(11, 7, 0)),
		{Kind: domain.MetricSteps, Start: at(11, 9, 0), Value: 4000, Provider: domain.ProviderHealthStore},
	}

	records, _ := r.Reconcile(samples)
	require.Len(t, records, 1)
	require.Equal(t, 8*time.Hour, *records[0].SleepCore)
	require.Equal(t, 4000, *records[0].Steps)
}

func TestReconcileChoosesOneGroupPerSleepNight(t *testing.T) {
	r := NewReconciler(domain.ProviderHealthStore, time.UTC)
	samples := []domain.Sample{
		sleep(domain.ProviderHealthStore, at(10, 23, 0), at(11, 6, 30)),
		{Kind: domain.MetricSleepUnspecified, Start: at(10, 23, 15), End: at(11, 6, 0), Provider: domain.ProviderWearableRelay},
	}

	records, decisions := r.Reconcile(samples)
	require.Len(t, records, 1)
	rec := records[0]
	require.Equal(t, 7*time.Hour+30*time.Minute, *rec.TotalSleep)
	require.Nil(t, rec.SleepUnspecified, "fallback stages are dropped once the primary reported the night")
	require.Equal(t, []Decision{
		{Day: rec.Date, Kind: domain.MetricSleepCore, Group: GroupPrimary},
		{Day: rec.Date, Kind: domain.MetricSleepUnspecified, Group: GroupNone},
	}, decisions)
}

func TestReconcileSleepFallbackKeepsAllStages(t *testing.T) {
	r := NewReconciler(domain.ProviderHealthStore, time.UTC)
	records, _ := r.Reconcile([]domain.Sample{
		{Kind: domain.MetricSleepDeep, Start: at(10, 23, 0), End: at(11, 1, 0), Provider: domain.ProviderWearableRelay},
		{Kind: domain.MetricSleepREM, Start: at(11, 1, 0), End: at(11, 2, 30), Provider: domain.ProviderActivityAPI},
		{Kind: domain.MetricSteps, Start: at(11, 9, 0), Value: 300, Provider: domain.ProviderHealthStore},
	})
	require.Len(t, records, 1)
	require.Equal(t, 2*time.Hour, *records[0].SleepDeep)
	require.Equal(t, 90*time.Minute, *records[0].SleepREM)
	require.Equal(t, 3*time.Hour+30*time.Minute, *records[0].TotalSleep)
}

func TestReconcileCumulativeCollapsesDuplicates(t *testing.T) {
	r := NewReconciler(domain.ProviderHealthStore, time.UTC)
	sample := domain.Sample{Kind: domain.MetricSteps, Start: at(12, 8, 0), End: at(12, 9, 0), Value: 1500, Provider: domain.ProviderHealthStore}
	other := sample
	other.Start = at(12, 12, 0)
	other.End = at(12, 13, 0)
	other.Value = 500

	records, _ := r.Reconcile([]domain.Sample{sample, sample, other})
	require.Len(t, records, 1)
	require.Equal(t, 2000, *records[0].Steps)
}

func TestReconcileInstantUsesLatestObservation(t *testing.T) {
	r := NewReconciler(domain.ProviderHealthStore, time.UTC)
	records, _ := r.Reconcile([]domain.Sample{
		{Kind: domain.MetricBodyMass, Start: at(12, 7, 0), Value: 71.2, Provider: domain.ProviderWearableRelay},
		{Kind: domain.MetricBodyMass, Start: at(12, 21, 0), Value: 71.8, Provider: domain.ProviderWearableRelay},
		{Kind: domain.MetricBodyMass, Start: at(12, 6, 0), Value: 70.9, Provider: domain.ProviderActivityAPI},
	})
	require.Len(t, records, 1)
	require.Equal(t, 71.8, *records[0].BodyMassKg)
	require.Nil(t, records[0].Steps)
}

func TestReconcileBucketsByLocalDay(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	r := NewReconciler(domain.ProviderHealthStore, loc)
	records, _ := r.Reconcile([]domain.Sample{
		{Kind: domain.MetricSteps, Start: at(12, 3, 0), Value: 100, Provider: domain.ProviderHealthStore},
		{Kind: domain.MetricSteps, Start: at(12, 6, 0), Value: 200, Provider: domain.ProviderHealthStore},
	})
	require.Len(t, records, 2)
	require.Equal(t, "2025-06-11", records[0].Key())
	require.Equal(t, 100, *records[0].Steps)
	require.Equal(t, "2025-06-12", records[1].Key())
}

func TestMetricDaySleepOffset(t *testing.T) {
	evening := domain.Sample{Kind: domain.MetricSleepDeep, Start: at(10, 17, 59), End: at(10, 18, 30)}
	require.Equal(t, "2025-06-10", domain.DayKey(MetricDay(evening, time.UTC)))

	late := domain.Sample{Kind: domain.MetricSleepDeep, Start: at(10, 18, 0), End: at(10, 19, 0)}
	require.Equal(t, "2025-06-11", domain.DayKey(MetricDay(late, time.UTC)))

	steps := domain.Sample{Kind: domain.MetricSteps, Start: at(10, 23, 30), Value: 10}
	require.Equal(t, "2025-06-10", domain.DayKey(MetricDay(steps, time.UTC)))
}
