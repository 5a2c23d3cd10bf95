package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"example.com/wellness/internal/domain"
	"example.com/wellness/internal/observability"
)

// HTTPConfig describes an upstream relay speaking the canonical JSON format.
type HTTPConfig struct {
	Provider  domain.Provider
	BaseURL   string
	AthleteID string
	Token     string
	Timeout   time.Duration
}

// HTTPOption configures the HTTP adapters.
type HTTPOption func(*httpClient)

// WithHTTPLogger overrides the adapter logger.
func WithHTTPLogger(logger *log.Logger) HTTPOption {
	return func(c *httpClient) {
		c.logger = logger
	}
}

// WithHTTPClient overrides the underlying client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(c *httpClient) {
		c.client = client
	}
}

type httpClient struct {
	cfg    HTTPConfig
	client *http.Client
	logger *log.Logger
}

func newHTTPClient(cfg HTTPConfig, opts []HTTPOption) httpClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	c := httpClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: log.New(log.Writer(), fmt.Sprintf("[provider:%s] ", cfg.Provider), log.LstdFlags),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// get decodes the JSON body of GET path into out. Missing linkage or a
// rejected token surfaces as domain.ErrLinkageRequired.
func (c httpClient) get(ctx context.Context, path string, query url.Values, out any) error {
	if strings.TrimSpace(c.cfg.AthleteID) == "" {
		return fmt.Errorf("%s: no linked athlete: %w", c.cfg.Provider, domain.ErrLinkageRequired)
	}

	endpoint := fmt.Sprintf("%s/athletes/%s/%s", c.cfg.BaseURL, url.PathEscape(c.cfg.AthleteID), path)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", c.cfg.Provider, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s: upstream returned %d: %w", c.cfg.Provider, resp.StatusCode, domain.ErrLinkageRequired)
	case resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s: upstream error %d: %s", c.cfg.Provider, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", c.cfg.Provider, err)
	}
	return nil
}

// HTTPFetcher pulls samples from a relay endpoint
// GET {base}/athletes/{id}/samples?from=&to=.
type HTTPFetcher struct {
	httpClient
}

// NewHTTPFetcher constructs an HTTPFetcher.
func NewHTTPFetcher(cfg HTTPConfig, opts ...HTTPOption) *HTTPFetcher {
	return &HTTPFetcher{httpClient: newHTTPClient(cfg, opts)}
}

type sampleItem struct {
	Kind  string  `json:"kind"`
	Start string  `json:"start"`
	End   string  `json:"end,omitempty"`
	Value float64 `json:"value"`
}

// Fetch implements Fetcher. Items with unparseable timestamps or unknown kinds
// are skipped and logged.
func (f *HTTPFetcher) Fetch(ctx context.Context, from, to time.Time) ([]domain.Sample, error) {
	query := url.Values{}
	query.Set("from", from.UTC().Format(time.RFC3339))
	query.Set("to", to.UTC().Format(time.RFC3339))

	var payload struct {
		Samples []sampleItem `json:"samples"`
	}
	if err := f.get(ctx, "samples", query, &payload); err != nil {
		return nil, err
	}

	out := make([]domain.Sample, 0, len(payload.Samples))
	skipped := 0
	for i, item := range payload.Samples {
		sample, err := item.sample(f.cfg.Provider)
		if err != nil {
			skipped++
			f.logger.Printf("skip sample %d: %v", i, err)
			continue
		}
		out = append(out, sample)
	}
	observability.RecordSamplesRejected(string(f.cfg.Provider), skipped)
	return out, nil
}

func (i sampleItem) sample(p domain.Provider) (domain.Sample, error) {
	kind := domain.MetricKind(i.Kind)
	if !kind.Valid() {
		return domain.Sample{}, fmt.Errorf("unknown kind %q", i.Kind)
	}
	start, err := time.Parse(time.RFC3339, i.Start)
	if err != nil {
		return domain.Sample{}, fmt.Errorf("bad start: %w", err)
	}
	var end time.Time
	if i.End != "" {
		if end, err = time.Parse(time.RFC3339, i.End); err != nil {
			return domain.Sample{}, fmt.Errorf("bad end: %w", err)
		}
	}
	return domain.Sample{Kind: kind, Start: start, End: end, Value: i.Value, Provider: p}, nil
}

// HTTPActivityFeed pages activities from
// GET {base}/athletes/{id}/activities?page=&per_page=.
type HTTPActivityFeed struct {
	httpClient
}

// NewHTTPActivityFeed constructs an HTTPActivityFeed.
func NewHTTPActivityFeed(cfg HTTPConfig, opts ...HTTPOption) *HTTPActivityFeed {
	return &HTTPActivityFeed{httpClient: newHTTPClient(cfg, opts)}
}

type activityItem struct {
	ID               json.RawMessage `json:"id"`
	Type             string          `json:"type"`
	Name             string          `json:"name"`
	StartDate        string          `json:"start_date"`
	MovingTime       float64         `json:"moving_time"`
	ElapsedTime      float64         `json:"elapsed_time"`
	Distance         float64         `json:"distance"`
	AverageWatts     *float64        `json:"average_watts"`
	AverageHeartrate *float64        `json:"average_heartrate"`
	Kilojoules       *float64        `json:"kilojoules"`
	SufferScore      *float64        `json:"suffer_score"`
}

// FetchActivities implements ActivityFeed. Items without a parseable start are
// skipped but still counted in Fetched.
func (f *HTTPActivityFeed) FetchActivities(ctx context.Context, page, perPage int) (ActivityPage, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(perPage))

	var items []activityItem
	if err := f.get(ctx, "activities", query, &items); err != nil {
		return ActivityPage{}, err
	}

	out := make([]domain.ActivitySummary, 0, len(items))
	for _, item := range items {
		start, err := time.Parse(time.RFC3339, item.StartDate)
		if err != nil {
			f.logger.Printf("skip activity %s: bad start_date: %v", item.id(), err)
			continue
		}
		out = append(out, domain.ActivitySummary{
			ID:             item.id(),
			Type:           domain.ParseActivityType(item.Type),
			Name:           item.Name,
			Start:          start,
			MovingTime:     seconds(item.MovingTime),
			ElapsedTime:    seconds(item.ElapsedTime),
			DistanceMeters: item.Distance,
			AvgPowerWatts:  item.AverageWatts,
			AvgHeartRate:   item.AverageHeartrate,
			Kilojoules:     item.Kilojoules,
			EffortScore:    item.SufferScore,
		})
	}
	return ActivityPage{Activities: out, Fetched: len(items)}, nil
}

// id accepts numeric and string identifiers.
func (i activityItem) id() string {
	return strings.Trim(string(i.ID), `"`)
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
