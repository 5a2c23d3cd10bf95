package providers

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/wellness/internal/domain"
)

func quiet() HTTPOption {
	return WithHTTPLogger(log.New(io.Discard, "", 0))
}

func TestHTTPFetcherSkipsBadSamples(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/athletes/a-1/samples", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NotEmpty(t, r.URL.Query().Get("from"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"samples":[
			{"kind":"sleep_deep","start":"2025-06-10T23:00:00Z","end":"2025-06-11T00:30:00Z"},
			{"kind":"steps","start":"yesterday","value":120},
			{"kind":"vo2max","start":"2025-06-11T08:00:00Z","value":50},
			{"kind":"steps","start":"2025-06-11T08:00:00Z","value":3200}
		]}`)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPConfig{Provider: domain.ProviderWearableRelay, BaseURL: srv.URL + "/", AthleteID: "a-1", Token: "tok"}, quiet())
	samples, err := f.Fetch(context.Background(), time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC), time.Date(2025, 6, 12, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, samples, 2)
	require.Equal(t, domain.MetricSleepDeep, samples[0].Kind)
	require.Equal(t, 90*time.Minute, samples[0].Duration())
	require.Equal(t, domain.ProviderWearableRelay, samples[1].Provider)
	require.Equal(t, 3200.0, samples[1].Value)
}

func TestHTTPFetcherLinkageRequired(t *testing.T) {
	f := NewHTTPFetcher(HTTPConfig{Provider: domain.ProviderActivityAPI, BaseURL: "http://unused"}, quiet())
	_, err := f.Fetch(context.Background(), time.Now().Add(-time.Hour), time.Now())
	require.ErrorIs(t, err, domain.ErrLinkageRequired)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	f = NewHTTPFetcher(HTTPConfig{Provider: domain.ProviderActivityAPI, BaseURL: srv.URL, AthleteID: "x"}, quiet())
	_, err = f.Fetch(context.Background(), time.Now().Add(-time.Hour), time.Now())
	require.ErrorIs(t, err, domain.ErrLinkageRequired)
}

func TestHTTPFetcherUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPConfig{Provider: domain.ProviderWearableRelay, BaseURL: srv.URL, AthleteID: "x"}, quiet())
	_, err := f.Fetch(context.Background(), time.Now().Add(-time.Hour), time.Now())
	require.Error(t, err)
	require.NotErrorIs(t, err, domain.ErrLinkageRequired)
}

func TestHTTPActivityFeedMapsFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "2", r.URL.Query().Get("page"))
		require.Equal(t, "30", r.URL.Query().Get("per_page"))
		_, _ = io.WriteString(w, `[
			{"id":1234,"type":"VirtualRide","name":"Zwift","start_date":"2025-06-11T17:00:00Z","moving_time":3600,"elapsed_time":3700,"distance":32000,"average_watts":210,"kilojoules":756},
			{"id":"abc","type":"Run","start_date":"not a date"}
		]`)
	}))
	defer srv.Close()

	feed := NewHTTPActivityFeed(HTTPConfig{Provider: domain.ProviderActivityAPI, BaseURL: srv.URL, AthleteID: "7"}, quiet())
	got, err := feed.FetchActivities(context.Background(), 2, 30)
	require.NoError(t, err)
	require.Equal(t, 2, got.Fetched)
	acts := got.Activities
	require.Len(t, acts, 1)
	require.Equal(t, "1234", acts[0].ID)
	require.Equal(t, domain.ActivityRide, acts[0].Type)
	require.Equal(t, time.Hour, acts[0].MovingTime)
	require.Equal(t, 210.0, *acts[0].AvgPowerWatts)
	require.Nil(t, acts[0].AvgHeartRate)
}

func TestStaticFetcherFiltersRange(t *testing.T) {
	base := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	f := StaticFetcher{Samples: []domain.Sample{
		{Kind: domain.MetricSteps, Start: base.Add(-time.Minute), Value: 1},
		{Kind: domain.MetricSteps, Start: base, Value: 2},
		{Kind: domain.MetricSteps, Start: base.Add(24 * time.Hour), Value: 3},
	}}
	got, err := f.Fetch(context.Background(), base, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, 2.0, got[0].Value)
}

func TestStaticFeedPaginates(t *testing.T) {
	feed := StaticFeed{Activities: make([]domain.ActivitySummary, 5)}
	page, _ := feed.FetchActivities(context.Background(), 2, 2)
	require.Len(t, page.Activities, 2)
	require.Equal(t, 2, page.Fetched)
	page, _ = feed.FetchActivities(context.Background(), 3, 2)
	require.Len(t, page.Activities, 1)
	page, _ = feed.FetchActivities(context.Background(), 4, 2)
	require.Empty(t, page.Activities)
	require.Zero(t, page.Fetched)
}
