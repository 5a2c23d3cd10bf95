package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/wellness/internal/domain"
	"example.com/wellness/internal/events"
	"example.com/wellness/internal/loadagg"
	"example.com/wellness/internal/notify"
	"example.com/wellness/internal/providers"
	"example.com/wellness/internal/settings"
	"example.com/wellness/internal/store"
)

var now = time.Date(2025, time.June, 12, 9, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func ts(day, hour, minute int) time.Time {
	return time.Date(2025, time.June, day, hour, minute, 0, 0, time.UTC)
}

func quiet() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newService(t *testing.T, mem *store.Memory, sources []Source, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithLogger(quiet()), WithClock(clock)}, opts...)
	svc, err := New(domain.ProviderHealthStore, sources, mem, opts...)
	require.NoError(t, err)
	return svc
}

func newMemory() *store.Memory {
	return store.NewMemory(store.WithClock(clock))
}

func TestSyncOverlappingNightUsesPrimaryOnly(t *testing.T) {
	ctx := context.Background()
	mem := newMemory()
	svc := newService(t, mem, []Source{
		{Provider: domain.ProviderHealthStore, Fetcher: providers.StaticFetcher{Samples: []domain.Sample{
			{Kind: domain.MetricSleepCore, Start: ts(10, 23, 0), End: ts(11, 6, 30)},
		}}},
		{Provider: domain.ProviderWearableRelay, Fetcher: providers.StaticFetcher{Samples: []domain.Sample{
			{Kind: domain.MetricSleepCore, Start: ts(10, 23, 15), End: ts(11, 6, 0)},
		}}},
	})

	res, err := svc.Sync(ctx, ts(11, 0, 0), ts(11, 0, 0))
	require.NoError(t, err)
	require.Equal(t, []string{"2025-06-11"}, res.Days)

	rec, err := mem.Get(ctx, ts(11, 0, 0))
	require.NoError(t, err)
	require.Equal(t, 7*time.Hour+30*time.Minute, *rec.TotalSleep)
}

func TestSyncProviderFailureDoesNotAbortOthers(t *testing.T) {
	ctx := context.Background()
	mem := newMemory()
	svc := newService(t, mem, []Source{
		{Provider: domain.ProviderHealthStore, Fetcher: providers.StaticFetcher{Err: errors.New("timeout")}},
		{Provider: domain.ProviderWearableRelay, Fetcher: providers.StaticFetcher{Samples: []domain.Sample{
			{Kind: domain.MetricSteps, Start: ts(11, 10, 0), Value: 4200},
		}}},
	})

	res, err := svc.Sync(ctx, ts(11, 0, 0), ts(11, 0, 0))
	require.NoError(t, err)
	require.Contains(t, res.ProviderErrors, domain.ProviderHealthStore)

	rec, err := mem.Get(ctx, ts(11, 0, 0))
	require.NoError(t, err)
	require.Equal(t, 4200, *rec.Steps, "fallback group is used when the primary returned nothing")
}

func TestSyncSingleSourceFailureSurfaces(t *testing.T) {
	svc := newService(t, newMemory(), []Source{
		{Provider: domain.ProviderWearableRelay, Fetcher: providers.StaticFetcher{Err: domain.ErrLinkageRequired}},
	})

	res, err := svc.Sync(context.Background(), ts(11, 0, 0), ts(11, 0, 0))
	require.ErrorIs(t, err, domain.ErrLinkageRequired)
	require.Equal(t, []domain.Provider{domain.ProviderWearableRelay}, res.LinkageRequired())
}

func TestSyncLinkageErrorIsDistinguishable(t *testing.T) {
	svc := newService(t, newMemory(), []Source{
		{Provider: domain.ProviderHealthStore, Fetcher: providers.StaticFetcher{}},
		{Provider: domain.ProviderActivityAPI, Fetcher: providers.StaticFetcher{Err: domain.ErrLinkageRequired}},
	})

	res, err := svc.Sync(context.Background(), ts(11, 0, 0), ts(11, 0, 0))
	require.NoError(t, err)
	require.Empty(t, res.Days)
	require.Equal(t, []domain.Provider{domain.ProviderActivityAPI}, res.LinkageRequired())
}

type blockingFetcher struct {
	started chan struct{}
	release chan struct{}
}

func (b blockingFetcher) Fetch(ctx context.Context, from, to time.Time) ([]domain.Sample, error) {
	close(b.started)
	select {
	case <-b.release:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestSyncIsNonReentrant(t *testing.T) {
	fetcher := blockingFetcher{started: make(chan struct{}), release: make(chan struct{})}
	svc := newService(t, newMemory(), []Source{{Provider: domain.ProviderHealthStore, Fetcher: fetcher}})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Sync(context.Background(), ts(11, 0, 0), ts(11, 0, 0))
		done <- err
	}()
	<-fetcher.started
	require.True(t, svc.Busy())

	res, err := svc.Sync(context.Background(), ts(11, 0, 0), ts(11, 0, 0))
	require.NoError(t, err)
	require.True(t, res.Skipped)

	close(fetcher.release)
	require.NoError(t, <-done)
	require.False(t, svc.Busy())
}

func TestSyncCancelledBeforeJoinWritesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mem := newMemory()
	fetcher := blockingFetcher{started: make(chan struct{}), release: make(chan struct{})}
	svc := newService(t, mem, []Source{
		{Provider: domain.ProviderHealthStore, Fetcher: fetcher},
		{Provider: domain.ProviderWearableRelay, Fetcher: providers.StaticFetcher{Samples: []domain.Sample{
			{Kind: domain.MetricSteps, Start: ts(11, 10, 0), Value: 4200},
		}}},
	})

	go func() {
		<-fetcher.started
		cancel()
	}()

	_, err := svc.Sync(ctx, ts(11, 0, 0), ts(11, 0, 0))
	require.ErrorIs(t, err, context.Canceled)

	_, err = mem.Get(context.Background(), ts(11, 0, 0))
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSyncRejectsInvalidSamplesAndNotifiesOnce(t *testing.T) {
	ctx := context.Background()
	mem := newMemory()
	var notified atomic.Int32
	var last events.DataUpdated
	obs := &notify.Observers{}
	obs.Subscribe(func(evt events.DataUpdated) {
		notified.Add(1)
		last = evt
	})
	athlete := settings.NewStatic(250, 170)

	svc := newService(t, mem, []Source{
		{Provider: domain.ProviderHealthStore, Fetcher: providers.StaticFetcher{Samples: []domain.Sample{
			{Kind: domain.MetricSteps, Start: ts(10, 9, 0), Value: 900},
			{Kind: domain.MetricSteps, Start: ts(11, 9, 0), Value: -3},
			{Kind: domain.MetricBodyMass, Start: ts(10, 7, 0), Value: 73.1},
			{Kind: domain.MetricBodyMass, Start: ts(11, 7, 0), Value: 72.6},
		}}},
	}, WithNotifier(obs), WithSettings(athlete))

	res, err := svc.Sync(ctx, ts(10, 0, 0), ts(11, 0, 0))
	require.NoError(t, err)
	require.Equal(t, 3, res.SamplesAccepted)
	require.Equal(t, 1, res.SamplesRejected)
	require.Equal(t, int32(1), notified.Load())
	require.Equal(t, res.PassID, last.PassID)
	require.Equal(t, []string{"2025-06-10", "2025-06-11"}, last.Days)

	a, err := athlete.Athlete(ctx)
	require.NoError(t, err)
	require.Equal(t, 72.6, *a.BodyMassKg)
}

func TestSyncWithoutChangesDoesNotNotify(t *testing.T) {
	var notified atomic.Int32
	obs := &notify.Observers{}
	obs.Subscribe(func(events.DataUpdated) { notified.Add(1) })

	svc := newService(t, newMemory(), []Source{{Provider: domain.ProviderHealthStore, Fetcher: providers.StaticFetcher{}}}, WithNotifier(obs))
	_, err := svc.Sync(context.Background(), ts(11, 0, 0), ts(11, 0, 0))
	require.NoError(t, err)
	require.Zero(t, notified.Load())
}

func TestSyncStoresTrainingLoad(t *testing.T) {
	ctx := context.Background()
	mem := newMemory()
	feed := providers.StaticFeed{Activities: []domain.ActivitySummary{
		{ID: "r1", Type: domain.ActivityRide, Start: ts(11, 17, 0), MovingTime: 2 * time.Hour},
		{ID: "r0", Type: domain.ActivityRide, Start: ts(1, 17, 0), MovingTime: time.Hour},
	}}
	agg := loadagg.New(feed, nil, mem, loadagg.WithLogger(quiet()))
	svc := newService(t, mem, []Source{{Provider: domain.ProviderHealthStore, Fetcher: providers.StaticFetcher{}}}, WithLoadAggregator(agg))

	res, err := svc.Sync(ctx, ts(10, 0, 0), ts(11, 0, 0))
	require.NoError(t, err)
	require.Equal(t, []string{"2025-06-11"}, res.LoadDays)

	loads, err := mem.LoadRange(ctx, ts(1, 0, 0), ts(12, 0, 0))
	require.NoError(t, err)
	require.Len(t, loads, 1)
	require.InDelta(t, 98.0, loads[0].TSS, 1e-9)
}

func TestSyncReportsUnlinkedActivityFeed(t *testing.T) {
	ctx := context.Background()
	mem := newMemory()
	require.NoError(t, mem.UpsertLoads(ctx, domain.DailyTrainingLoad{Date: ts(11, 0, 0), TSS: 80, Sessions: 1}))

	feed := providers.NewHTTPActivityFeed(
		providers.HTTPConfig{Provider: domain.ProviderActivityAPI, BaseURL: "http://relay.invalid"},
		providers.WithHTTPLogger(quiet()),
	)
	agg := loadagg.New(feed, nil, mem, loadagg.WithLogger(quiet()))
	svc := newService(t, mem, []Source{{Provider: domain.ProviderHealthStore, Fetcher: providers.StaticFetcher{}}}, WithLoadAggregator(agg))

	res, err := svc.Sync(ctx, ts(10, 0, 0), ts(11, 0, 0))
	require.NoError(t, err)
	require.ErrorIs(t, res.FeedError, domain.ErrLinkageRequired)
	require.Equal(t, []domain.Provider{domain.ProviderActivityAPI}, res.LinkageRequired())
	require.Empty(t, res.LoadDays)

	loads, err := mem.LoadRange(ctx, ts(1, 0, 0), ts(12, 0, 0))
	require.NoError(t, err)
	require.Len(t, loads, 1)
	require.Equal(t, 80.0, loads[0].TSS)
}

func TestLinkageRequiredIsSortedAndDeduplicated(t *testing.T) {
	res := Result{
		ProviderErrors: map[domain.Provider]error{
			domain.ProviderHealthStore: fmt.Errorf("token revoked: %w", domain.ErrLinkageRequired),
			domain.ProviderActivityAPI: domain.ErrLinkageRequired,
		},
		FeedError: fmt.Errorf("fetch activities page 1: %w", domain.ErrLinkageRequired),
	}
	got := res.LinkageRequired()
	require.Len(t, got, 2)
	require.True(t, got[0] < got[1])
}

func TestNewValidatesSources(t *testing.T) {
	_, err := New(domain.ProviderHealthStore, nil, newMemory())
	require.ErrorIs(t, err, ErrNoSources)

	_, err = New(domain.ProviderHealthStore, []Source{
		{Provider: domain.ProviderHealthStore, Fetcher: providers.StaticFetcher{}},
		{Provider: domain.ProviderHealthStore, Fetcher: providers.StaticFetcher{}},
	}, newMemory())
	require.Error(t, err)
}
