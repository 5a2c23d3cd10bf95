// Package providers adapts upstream trackers into typed samples and activity summaries.
package providers

import (
	"context"
	"time"

	"example.com/wellness/internal/domain"
)

// Fetcher returns the samples a provider holds for [from, to).
type Fetcher interface {
	Fetch(ctx context.Context, from, to time.Time) ([]domain.Sample, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, from, to time.Time) ([]domain.Sample, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, from, to time.Time) ([]domain.Sample, error) {
	return f(ctx, from, to)
}

// ActivityPage is one page of an activity feed. Fetched counts every item the
// upstream returned, including items that were skipped as unparseable, so
// callers can tell a full page from a short one.
type ActivityPage struct {
	Activities []domain.ActivitySummary
	Fetched    int
}

// ActivityFeed pages through completed sessions, newest first.
type ActivityFeed interface {
	FetchActivities(ctx context.Context, page, perPage int) (ActivityPage, error)
}

// StaticFetcher serves a fixed sample set, filtered to the requested range.
type StaticFetcher struct {
	Samples []domain.Sample
	Err     error
}

// Fetch returns the samples starting inside [from, to).
func (s StaticFetcher) Fetch(ctx context.Context, from, to time.Time) ([]domain.Sample, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]domain.Sample, 0, len(s.Samples))
	for _, sample := range s.Samples {
		if !sample.Start.Before(from) && sample.Start.Before(to) {
			out = append(out, sample)
		}
	}
	return out, nil
}

// StaticFeed serves a fixed activity list. Activities are expected newest first.
type StaticFeed struct {
	Activities []domain.ActivitySummary
}

// FetchActivities returns a 1-based page of the list.
func (s StaticFeed) FetchActivities(ctx context.Context, page, perPage int) (ActivityPage, error) {
	items := paginate(s.Activities, page, perPage)
	return ActivityPage{Activities: items, Fetched: len(items)}, nil
}

func paginate[T any](items []T, page, perPage int) []T {
	if page < 1 || perPage < 1 {
		return nil
	}
	start := (page - 1) * perPage
	if start >= len(items) {
		return nil
	}
	end := start + perPage
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
