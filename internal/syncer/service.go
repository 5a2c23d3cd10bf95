// Package syncer runs sync passes: concurrent provider fetches, reconciliation
// and the store writes that follow.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"example.com/wellness/internal/domain"
	"example.com/wellness/internal/events"
	"example.com/wellness/internal/loadagg"
	"example.com/wellness/internal/notify"
	"example.com/wellness/internal/observability"
	"example.com/wellness/internal/providers"
	"example.com/wellness/internal/reconcile"
	"example.com/wellness/internal/settings"
	"example.com/wellness/internal/store"
)

// ErrNoSources is returned by New when no provider is configured.
var ErrNoSources = errors.New("at least one provider source is required")

// Source binds a fetcher to the provider identity its samples carry.
type Source struct {
	Provider domain.Provider
	Fetcher  providers.Fetcher
}

// Result describes one sync pass.
type Result struct {
	PassID          string
	Skipped         bool
	From            time.Time
	To              time.Time
	SamplesAccepted int
	SamplesRejected int
	Days            []string
	LoadDays        []string
	ProviderErrors  map[domain.Provider]error
	// FeedError is the activity feed failure for the pass, if any. Training
	// load is left untouched when it is set.
	FeedError error
	Duration  time.Duration
}

// LinkageRequired lists, sorted, the providers that failed for lack of a
// linked identity. A feed failure counts against the activity provider.
func (r Result) LinkageRequired() []domain.Provider {
	var out []domain.Provider
	for p, err := range r.ProviderErrors {
		if errors.Is(err, domain.ErrLinkageRequired) {
			out = append(out, p)
		}
	}
	if errors.Is(r.FeedError, domain.ErrLinkageRequired) && !slices.Contains(out, domain.ProviderActivityAPI) {
		out = append(out, domain.ProviderActivityAPI)
	}
	slices.Sort(out)
	return out
}

// Option configures a Service.
type Option func(*Service)

// WithLogger overrides the service logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithLocation sets the location used for day bucketing.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithLoadAggregator adds training-load collection to every pass.
func WithLoadAggregator(agg *loadagg.Aggregator) Option {
	return func(s *Service) {
		s.loads = agg
	}
}

// WithSettings enables the body-mass write-back after successful passes.
func WithSettings(p settings.Provider) Option {
	return func(s *Service) {
		s.settings = p
	}
}

// WithNotifier sets the data-updated notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// Service owns sync passes. A pass is non-reentrant: a concurrent call
// returns a skipped result without doing any work.
type Service struct {
	sources    []Source
	store      store.MetricsStore
	reconciler *reconcile.Reconciler
	loads      *loadagg.Aggregator
	settings   settings.Provider
	notifier   notify.Notifier
	loc        *time.Location
	now        func() time.Time
	logger     *log.Logger

	busy atomic.Bool
}

// New constructs a Service preferring primary when providers overlap.
func New(primary domain.Provider, sources []Source, metrics store.MetricsStore, opts ...Option) (*Service, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}
	seen := make(map[domain.Provider]struct{}, len(sources))
	for _, src := range sources {
		if !src.Provider.Valid() {
			return nil, fmt.Errorf("unknown provider %q", src.Provider)
		}
		if src.Fetcher == nil {
			return nil, fmt.Errorf("provider %s has no fetcher", src.Provider)
		}
		if _, dup := seen[src.Provider]; dup {
			return nil, fmt.Errorf("provider %s configured twice", src.Provider)
		}
		seen[src.Provider] = struct{}{}
	}

	s := &Service{
		sources:  sources,
		store:    metrics,
		notifier: notify.Noop{},
		loc:      time.UTC,
		now:      time.Now,
		logger:   log.New(log.Writer(), "[syncer] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reconciler = reconcile.NewReconciler(primary, s.loc)
	return s, nil
}

// Busy reports whether a pass is in flight.
func (s *Service) Busy() bool {
	return s.busy.Load()
}

type fetchOutcome struct {
	samples []domain.Sample
	err     error
}

// Sync runs one pass over the local days from..to inclusive.
func (s *Service) Sync(ctx context.Context, from, to time.Time) (Result, error) {
	if !s.busy.CompareAndSwap(false, true) {
		observability.RecordSyncPass("skipped", 0)
		return Result{Skipped: true}, nil
	}
	defer s.busy.Store(false)

	started := s.now()
	lo := domain.StartOfDay(from, s.loc)
	hi := domain.StartOfDay(to, s.loc)
	if hi.Before(lo) {
		return Result{}, fmt.Errorf("sync range ends before it starts: %s > %s", domain.DayKey(lo), domain.DayKey(hi))
	}
	res := Result{
		PassID:         uuid.NewString(),
		From:           lo,
		To:             hi,
		ProviderErrors: make(map[domain.Provider]error),
	}

	// Sleep that ends on the first day started the evening before; widen the
	// fetch window so it is not cut off.
	fetchFrom := lo.Add(-reconcile.SleepNightOffset)
	fetchTo := hi.AddDate(0, 0, 1)

	outcomes := make([]fetchOutcome, len(s.sources))
	var (
		wg       sync.WaitGroup
		loadDays []domain.DailyTrainingLoad
		loadErr  error
	)
	for i, src := range s.sources {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			samples, err := src.Fetcher.Fetch(ctx, fetchFrom, fetchTo)
			outcomes[i] = fetchOutcome{samples: samples, err: err}
		}(i, src)
	}
	if s.loads != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			loadDays, loadErr = s.loads.Collect(ctx, lo, hi)
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		s.finish(&res, started, "cancelled")
		return res, fmt.Errorf("sync pass %s cancelled: %w", res.PassID, err)
	}

	accepted := make([]domain.Sample, 0)
	for i, out := range outcomes {
		src := s.sources[i]
		if out.err != nil {
			res.ProviderErrors[src.Provider] = out.err
			reason := "fetch"
			if errors.Is(out.err, domain.ErrLinkageRequired) {
				reason = "linkage"
			}
			observability.RecordProviderFailure(string(src.Provider), reason)
			s.logger.Printf("pass %s: provider %s failed, treating as empty: %v", res.PassID, src.Provider, out.err)
			if len(s.sources) == 1 {
				s.finish(&res, started, "failed")
				return res, fmt.Errorf("sync pass %s: %s: %w", res.PassID, src.Provider, out.err)
			}
			continue
		}

		rejected := 0
		for _, sample := range out.samples {
			sample.Provider = src.Provider
			if err := sample.Validate(); err != nil {
				rejected++
				s.logger.Printf("pass %s: skip %s sample: %v", res.PassID, src.Provider, err)
				continue
			}
			if day := reconcile.MetricDay(sample, s.loc); day.Before(lo) || day.After(hi) {
				continue
			}
			accepted = append(accepted, sample)
		}
		res.SamplesRejected += rejected
		observability.RecordSamplesRejected(string(src.Provider), rejected)
	}
	res.SamplesAccepted = len(accepted)

	records, _ := s.reconciler.Reconcile(accepted)
	if len(records) > 0 {
		if err := s.store.Upsert(ctx, records...); err != nil {
			s.finish(&res, started, "failed")
			return res, fmt.Errorf("sync pass %s: store daily metrics: %w", res.PassID, err)
		}
		for _, rec := range records {
			res.Days = append(res.Days, rec.Key())
		}
	}

	if s.loads != nil {
		if loadErr != nil {
			res.FeedError = loadErr
			reason := "fetch"
			if errors.Is(loadErr, domain.ErrLinkageRequired) {
				reason = "linkage"
			}
			observability.RecordProviderFailure("activity_feed", reason)
			s.logger.Printf("pass %s: training load collection failed: %v", res.PassID, loadErr)
		} else if err := s.loads.Save(ctx, loadDays); err != nil {
			s.logger.Printf("pass %s: %v", res.PassID, err)
		} else {
			for _, load := range loadDays {
				res.LoadDays = append(res.LoadDays, load.Key())
			}
		}
	}

	s.writeBackBodyMass(ctx, res.PassID, records)

	if len(res.Days) > 0 || len(res.LoadDays) > 0 {
		evt := events.DataUpdated{
			PassID:     res.PassID,
			From:       domain.DayKey(lo),
			To:         domain.DayKey(hi),
			Days:       res.Days,
			LoadDays:   res.LoadDays,
			OccurredAt: s.now(),
		}
		if err := s.notifier.DataUpdated(ctx, evt); err != nil {
			s.logger.Printf("pass %s: notify: %v", res.PassID, err)
		}
	}

	s.finish(&res, started, "success")
	observability.RecordSyncSucceeded(s.now())
	s.logger.Printf("pass %s: %d samples, %d days, %d load days in %s",
		res.PassID, res.SamplesAccepted, len(res.Days), len(res.LoadDays), res.Duration)
	return res, nil
}

// writeBackBodyMass stores the latest reconciled body mass in the settings
// provider. Failures are logged and do not fail the pass.
func (s *Service) writeBackBodyMass(ctx context.Context, passID string, records []domain.DailyMetricRecord) {
	if s.settings == nil {
		return
	}
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].BodyMassKg == nil {
			continue
		}
		if err := s.settings.RecordBodyMass(ctx, *records[i].BodyMassKg, records[i].Date); err != nil {
			s.logger.Printf("pass %s: body mass write-back: %v", passID, err)
		}
		return
	}
}

func (s *Service) finish(res *Result, started time.Time, outcome string) {
	res.Duration = s.now().Sub(started)
	observability.RecordSyncPass(outcome, res.Duration)
}
