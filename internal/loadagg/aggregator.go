// Package loadagg rolls activity summaries up into daily training load.
package loadagg

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"example.com/wellness/internal/domain"
	"example.com/wellness/internal/providers"
	"example.com/wellness/internal/settings"
	"example.com/wellness/internal/store"
	"example.com/wellness/internal/tss"
)

const (
	// DefaultPerPage is the page size requested from the activity feed.
	DefaultPerPage = 50
	// DefaultMaxPages caps the paging loop against a misbehaving feed.
	DefaultMaxPages = 20
)

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger overrides the aggregator logger.
func WithLogger(logger *log.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// WithLocation sets the location used for day grouping.
func WithLocation(loc *time.Location) Option {
	return func(a *Aggregator) {
		if loc != nil {
			a.loc = loc
		}
	}
}

// WithPaging overrides the page size and page ceiling.
func WithPaging(perPage, maxPages int) Option {
	return func(a *Aggregator) {
		if perPage > 0 {
			a.perPage = perPage
		}
		if maxPages > 0 {
			a.maxPages = maxPages
		}
	}
}

// Aggregator pages the activity feed, estimates TSS and groups by day.
type Aggregator struct {
	feed     providers.ActivityFeed
	settings settings.Provider
	store    store.LoadStore
	loc      *time.Location
	perPage  int
	maxPages int
	logger   *log.Logger
}

// New constructs an Aggregator. settings may be nil, in which case every
// estimate runs without thresholds.
func New(feed providers.ActivityFeed, athlete settings.Provider, loads store.LoadStore, opts ...Option) *Aggregator {
	a := &Aggregator{
		feed:     feed,
		settings: athlete,
		store:    loads,
		loc:      time.UTC,
		perPage:  DefaultPerPage,
		maxPages: DefaultMaxPages,
		logger:   log.New(log.Writer(), "[loadagg] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Ingest collects the days between from and to and upserts them.
func (a *Aggregator) Ingest(ctx context.Context, from, to time.Time) ([]domain.DailyTrainingLoad, error) {
	loads, err := a.Collect(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if err := a.Save(ctx, loads); err != nil {
		return nil, err
	}
	return loads, nil
}

// Collect fetches activities for the local days from..to inclusive and
// returns their per-day load without writing anything.
func (a *Aggregator) Collect(ctx context.Context, from, to time.Time) ([]domain.DailyTrainingLoad, error) {
	activities, err := a.FetchRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return Aggregate(tss.Apply(activities, a.thresholds(ctx)), a.loc), nil
}

// Save upserts loads into the store.
func (a *Aggregator) Save(ctx context.Context, loads []domain.DailyTrainingLoad) error {
	if len(loads) == 0 {
		return nil
	}
	if err := a.store.UpsertLoads(ctx, loads...); err != nil {
		return fmt.Errorf("store training load: %w", err)
	}
	return nil
}

// FetchRange pages the feed, newest first, keeping activities that start on
// the local days from..to. Paging continues while a page is full and its
// oldest item is still inside the range, up to the page ceiling. A page is
// full when the feed returned perPage raw items, whether or not all of them
// parsed.
//
// When the ceiling stops paging early, the local day of the oldest fetched
// activity may be incomplete, so its activities are dropped rather than
// stored as a partial day.
func (a *Aggregator) FetchRange(ctx context.Context, from, to time.Time) ([]domain.ActivitySummary, error) {
	lo := domain.StartOfDay(from, a.loc)
	hi := domain.StartOfDay(to, a.loc).AddDate(0, 0, 1)

	var (
		out    []domain.ActivitySummary
		oldest time.Time
	)
	for page := 1; page <= a.maxPages; page++ {
		res, err := a.feed.FetchActivities(ctx, page, a.perPage)
		if err != nil {
			return nil, fmt.Errorf("fetch activities page %d: %w", page, err)
		}

		for _, item := range res.Activities {
			if oldest.IsZero() || item.Start.Before(oldest) {
				oldest = item.Start
			}
			if !item.Start.Before(lo) && item.Start.Before(hi) {
				out = append(out, item)
			}
		}

		if res.Fetched < a.perPage || (!oldest.IsZero() && oldest.Before(lo)) {
			return out, nil
		}
	}

	if oldest.IsZero() {
		return out, nil
	}
	partial := domain.StartOfDay(oldest, a.loc)
	a.logger.Printf("activity feed still full after %d pages; dropping partial day %s", a.maxPages, domain.DayKey(partial))
	kept := out[:0]
	for _, item := range out {
		if !domain.StartOfDay(item.Start, a.loc).Equal(partial) {
			kept = append(kept, item)
		}
	}
	return kept, nil
}

func (a *Aggregator) thresholds(ctx context.Context) tss.Thresholds {
	if a.settings == nil {
		return tss.Thresholds{}
	}
	athlete, err := a.settings.Athlete(ctx)
	if err != nil {
		a.logger.Printf("athlete settings unavailable, estimating without thresholds: %v", err)
	}
	return tss.Thresholds{FTP: athlete.FTP, LTHR: athlete.LTHR}
}

// Aggregate groups activities by local start day. Each day sums the
// sessions that have an estimate; sessions without one still count toward
// session count, distance and duration.
func Aggregate(activities []domain.ActivitySummary, loc *time.Location) []domain.DailyTrainingLoad {
	byDay := make(map[string]*domain.DailyTrainingLoad)
	for _, act := range activities {
		day := domain.StartOfDay(act.Start, loc)
		key := domain.DayKey(day)
		load, ok := byDay[key]
		if !ok {
			load = &domain.DailyTrainingLoad{Date: day}
			byDay[key] = load
		}
		if act.EstimatedTSS != nil {
			load.TSS += *act.EstimatedTSS
		}
		load.Sessions++
		load.DistanceMeters += act.DistanceMeters
		load.Duration += act.Duration()
	}

	out := make([]domain.DailyTrainingLoad, 0, len(byDay))
	for _, load := range byDay {
		out = append(out, *load)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
