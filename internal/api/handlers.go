// Package api exposes HTTP handlers for the wellness service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/schema"

	"example.com/wellness/internal/auth"
	"example.com/wellness/internal/domain"
	"example.com/wellness/internal/insights"
	"example.com/wellness/internal/store"
	"example.com/wellness/internal/syncer"
)

const (
	defaultRangeDays = 7
	maxRangeDays     = store.RetentionDays + 1
)

var queryDecoder = newQueryDecoder()

func newQueryDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}

type rangeQuery struct {
	From string `schema:"from"`
	To   string `schema:"to"`
}

type summaryQuery struct {
	End  string   `schema:"end"`
	Days *int     `schema:"days"`
	TSB  *float64 `schema:"tsb"`
}

// decodeQuery fills dst from the URL query and names the first bad parameter.
func decodeQuery(r *http.Request, dst any) error {
	err := queryDecoder.Decode(dst, r.URL.Query())
	if err == nil {
		return nil
	}
	var multi schema.MultiError
	if errors.As(err, &multi) {
		fields := make([]string, 0, len(multi))
		for field := range multi {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		if len(fields) > 0 {
			return fmt.Errorf("%s is malformed", fields[0])
		}
	}
	return err
}

// Syncer runs a sync pass over local days from..to inclusive.
type Syncer interface {
	Sync(ctx context.Context, from, to time.Time) (syncer.Result, error)
}

// Option configures a Handler.
type Option func(*Handler)

// WithLocation sets the location used to interpret day parameters.
func WithLocation(loc *time.Location) Option {
	return func(h *Handler) {
		if loc != nil {
			h.loc = loc
		}
	}
}

// WithClock overrides the time source for default ranges.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

// WithoutAuth serves every route without checking claims.
func WithoutAuth() Option {
	return func(h *Handler) {
		h.requireAuth = false
	}
}

// Handler coordinates HTTP requests with the stores and the sync service.
type Handler struct {
	metrics     store.MetricsStore
	loads       store.LoadStore
	sync        Syncer
	loc         *time.Location
	now         func() time.Time
	requireAuth bool
}

// NewHandler builds a Handler. sync may be nil to disable POST /v1/sync.
func NewHandler(metrics store.MetricsStore, loads store.LoadStore, sync Syncer, opts ...Option) *Handler {
	h := &Handler{
		metrics:     metrics,
		loads:       loads,
		sync:        sync,
		loc:         time.UTC,
		now:         time.Now,
		requireAuth: true,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes wires endpoints to the router.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", healthz).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/daily-metrics", h.dailyMetrics).Methods(http.MethodGet)
	v1.HandleFunc("/daily-metrics/{day}", h.dailyMetricsByDay).Methods(http.MethodGet)
	v1.HandleFunc("/training-load", h.trainingLoad).Methods(http.MethodGet)
	v1.HandleFunc("/weekly-summary", h.weeklySummary).Methods(http.MethodGet)
	v1.HandleFunc("/insights", h.insights).Methods(http.MethodGet)
	v1.HandleFunc("/sync", h.runSync).Methods(http.MethodPost)

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	})
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, scope auth.Scope) bool {
	if !h.requireAuth {
		return true
	}
	_, err := auth.Authorize(r.Context(), scope)
	switch {
	case err == nil:
		return true
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "scope "+string(scope)+" required")
	default:
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	}
	return false
}

func (h *Handler) dailyMetrics(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, auth.ScopeMetricsRead) {
		return
	}
	from, to, err := h.dayRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	records, err := h.metrics.Range(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	items := make([]DailyMetricsView, 0, len(records))
	for _, rec := range records {
		items = append(items, toDailyMetricsView(rec))
	}
	writeJSON(w, http.StatusOK, DailyMetricsResponse{From: domain.DayKey(from), To: domain.DayKey(to), Items: items})
}

func (h *Handler) dailyMetricsByDay(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, auth.ScopeMetricsRead) {
		return
	}
	day, err := domain.ParseDay(mux.Vars(r)["day"], h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "day must be YYYY-MM-DD")
		return
	}

	rec, err := h.metrics.Get(r.Context(), day)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no data for "+domain.DayKey(day))
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toDailyMetricsView(rec))
}

func (h *Handler) trainingLoad(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, auth.ScopeMetricsRead) {
		return
	}
	if h.loads == nil {
		writeError(w, http.StatusNotFound, "not_found", "training load is not configured")
		return
	}
	from, to, err := h.dayRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	loads, err := h.loads.LoadRange(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	resp := TrainingLoadResponse{From: domain.DayKey(from), To: domain.DayKey(to), Items: make([]TrainingLoadView, 0, len(loads))}
	for _, load := range loads {
		resp.TotalTSS += load.TSS
		resp.Items = append(resp.Items, TrainingLoadView{
			Date:           load.Key(),
			TSS:            load.TSS,
			Sessions:       load.Sessions,
			DistanceMeters: load.DistanceMeters,
			DurationHours:  load.Duration.Hours(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) weeklySummary(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, auth.ScopeMetricsRead) {
		return
	}
	summary, err := h.summarize(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toSummaryView(summary))
}

func (h *Handler) insights(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, auth.ScopeMetricsRead) {
		return
	}
	var q summaryQuery
	if err := decodeQuery(r, &q); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	var tc *insights.TrainingContext
	if q.TSB != nil {
		tc = &insights.TrainingContext{Balance: *q.TSB}
	}
	summary, err := h.summarizeQuery(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, InsightsResponse{
		Summary:  toSummaryView(summary),
		Insights: insights.Generate(summary, tc),
	})
}

func (h *Handler) runSync(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, auth.ScopeSyncWrite) {
		return
	}
	if h.sync == nil {
		writeError(w, http.StatusNotFound, "not_found", "sync is not configured")
		return
	}

	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	from, to, err := h.parseRange(req.From, req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	res, err := h.sync.Sync(r.Context(), from, to)
	resp := toSyncResponse(res)
	if err != nil {
		if errors.Is(err, domain.ErrLinkageRequired) {
			writeError(w, http.StatusConflict, "linkage_required", err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, "sync_failed", err.Error())
		return
	}
	if res.Skipped {
		writeJSON(w, http.StatusAccepted, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) summarize(r *http.Request) (insights.WeeklySummary, error) {
	var q summaryQuery
	if err := decodeQuery(r, &q); err != nil {
		return insights.WeeklySummary{}, err
	}
	return h.summarizeQuery(r.Context(), q)
}

func (h *Handler) summarizeQuery(ctx context.Context, q summaryQuery) (insights.WeeklySummary, error) {
	end := domain.StartOfDay(h.now(), h.loc)
	if q.End != "" {
		parsed, err := domain.ParseDay(q.End, h.loc)
		if err != nil {
			return insights.WeeklySummary{}, errors.New("end must be YYYY-MM-DD")
		}
		end = parsed
	}
	days := insights.DefaultWindowDays
	if q.Days != nil {
		if *q.Days <= 0 || *q.Days > maxRangeDays {
			return insights.WeeklySummary{}, fmt.Errorf("days must be between 1 and %d", maxRangeDays)
		}
		days = *q.Days
	}

	records, err := h.metrics.Range(ctx, end.AddDate(0, 0, -(days-1)), end)
	if err != nil {
		return insights.WeeklySummary{}, err
	}
	return insights.Summarize(records, end, days, h.loc), nil
}

func (h *Handler) dayRange(r *http.Request) (time.Time, time.Time, error) {
	var q rangeQuery
	if err := decodeQuery(r, &q); err != nil {
		return time.Time{}, time.Time{}, err
	}
	return h.parseRange(q.From, q.To)
}

// parseRange resolves optional YYYY-MM-DD bounds. A missing to is today and a
// missing from is the week ending at to.
func (h *Handler) parseRange(rawFrom, rawTo string) (time.Time, time.Time, error) {
	to := domain.StartOfDay(h.now(), h.loc)
	if rawTo != "" {
		parsed, err := domain.ParseDay(rawTo, h.loc)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("to must be YYYY-MM-DD")
		}
		to = parsed
	}
	from := to.AddDate(0, 0, -(defaultRangeDays - 1))
	if rawFrom != "" {
		parsed, err := domain.ParseDay(rawFrom, h.loc)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("from must be YYYY-MM-DD")
		}
		from = parsed
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, errors.New("from must not be after to")
	}
	if to.Sub(from) >= time.Duration(maxRangeDays)*24*time.Hour {
		return time.Time{}, time.Time{}, fmt.Errorf("range may span at most %d days", maxRangeDays)
	}
	return from, to, nil
}

// DailyMetricsView exposes one reconciled day. Durations are hours.
type DailyMetricsView struct {
	Date              string    `json:"date"`
	Steps             *int      `json:"steps,omitempty"`
	ActiveEnergyKcal  *float64  `json:"active_energy_kcal,omitempty"`
	DistanceMeters    *float64  `json:"distance_m,omitempty"`
	RestingHeartRate  *float64  `json:"resting_heart_rate,omitempty"`
	SleepDeepHours    *float64  `json:"sleep_deep_h,omitempty"`
	SleepREMHours     *float64  `json:"sleep_rem_h,omitempty"`
	SleepCoreHours    *float64  `json:"sleep_core_h,omitempty"`
	SleepUnspecHours  *float64  `json:"sleep_unspecified_h,omitempty"`
	SleepAwakeHours   *float64  `json:"sleep_awake_h,omitempty"`
	TotalSleepHours   *float64  `json:"total_sleep_h,omitempty"`
	SleepEfficiency   *float64  `json:"sleep_efficiency,omitempty"`
	BodyMassKg        *float64  `json:"body_mass_kg,omitempty"`
	BodyFatPercent    *float64  `json:"body_fat_pct,omitempty"`
	LeanMassKg        *float64  `json:"lean_mass_kg,omitempty"`
	ActivityScore     *float64  `json:"activity_score,omitempty"`
	SleepQualityScore *float64  `json:"sleep_quality_score,omitempty"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// DailyMetricsResponse packages range results.
type DailyMetricsResponse struct {
	From  string             `json:"from"`
	To    string             `json:"to"`
	Items []DailyMetricsView `json:"items"`
}

// TrainingLoadView exposes one day of aggregated training load.
type TrainingLoadView struct {
	Date           string  `json:"date"`
	TSS            float64 `json:"tss"`
	Sessions       int     `json:"sessions"`
	DistanceMeters float64 `json:"distance_m"`
	DurationHours  float64 `json:"duration_h"`
}

// TrainingLoadResponse packages training load results.
type TrainingLoadResponse struct {
	From     string             `json:"from"`
	To       string             `json:"to"`
	TotalTSS float64            `json:"total_tss"`
	Items    []TrainingLoadView `json:"items"`
}

// WeeklySummaryView exposes the rolling statistics.
type WeeklySummaryView struct {
	Start                  string   `json:"start"`
	End                    string   `json:"end"`
	Days                   int      `json:"days"`
	Entries                int      `json:"entries"`
	AverageSteps           *float64 `json:"average_steps,omitempty"`
	AverageSleepHours      *float64 `json:"average_sleep_h,omitempty"`
	AverageSleepEfficiency *float64 `json:"average_sleep_efficiency,omitempty"`
	AverageActivityScore   *float64 `json:"average_activity_score,omitempty"`
	ActivityTrend          *float64 `json:"activity_trend,omitempty"`
	SleepTrend             *float64 `json:"sleep_trend,omitempty"`
	SleepDebtHours         *float64 `json:"sleep_debt_h,omitempty"`
}

// InsightsResponse pairs the summary with the insights derived from it.
type InsightsResponse struct {
	Summary  WeeklySummaryView  `json:"summary"`
	Insights []insights.Insight `json:"insights"`
}

// SyncRequest is the optional payload for POST /v1/sync.
type SyncRequest struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// SyncResponse describes a completed or skipped pass.
type SyncResponse struct {
	PassID          string            `json:"pass_id,omitempty"`
	Skipped         bool              `json:"skipped"`
	From            string            `json:"from,omitempty"`
	To              string            `json:"to,omitempty"`
	SamplesAccepted int               `json:"samples_accepted"`
	SamplesRejected int               `json:"samples_rejected"`
	Days            []string          `json:"days"`
	LoadDays        []string          `json:"load_days,omitempty"`
	ProviderErrors  map[string]string `json:"provider_errors,omitempty"`
	LinkageRequired []string          `json:"linkage_required,omitempty"`
	FeedError       string            `json:"feed_error,omitempty"`
	DurationSeconds float64           `json:"duration_seconds"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func hours(d *time.Duration) *float64 {
	if d == nil {
		return nil
	}
	v := d.Hours()
	return &v
}

func toDailyMetricsView(rec domain.DailyMetricRecord) DailyMetricsView {
	return DailyMetricsView{
		Date:              rec.Key(),
		Steps:             rec.Steps,
		ActiveEnergyKcal:  rec.ActiveEnergyKcal,
		DistanceMeters:    rec.DistanceMeters,
		RestingHeartRate:  rec.RestingHeartRate,
		SleepDeepHours:    hours(rec.SleepDeep),
		SleepREMHours:     hours(rec.SleepREM),
		SleepCoreHours:    hours(rec.SleepCore),
		SleepUnspecHours:  hours(rec.SleepUnspecified),
		SleepAwakeHours:   hours(rec.SleepAwake),
		TotalSleepHours:   hours(rec.TotalSleep),
		SleepEfficiency:   rec.SleepEfficiency,
		BodyMassKg:        rec.BodyMassKg,
		BodyFatPercent:    rec.BodyFatPercent,
		LeanMassKg:        rec.LeanMassKg,
		ActivityScore:     rec.ActivityScore,
		SleepQualityScore: rec.SleepQualityScore,
		UpdatedAt:         rec.UpdatedAt,
	}
}

func toSummaryView(s insights.WeeklySummary) WeeklySummaryView {
	return WeeklySummaryView{
		Start:                  domain.DayKey(s.Start),
		End:                    domain.DayKey(s.End),
		Days:                   s.Days,
		Entries:                s.Entries,
		AverageSteps:           s.AverageSteps,
		AverageSleepHours:      s.AverageSleepHours,
		AverageSleepEfficiency: s.AverageSleepEfficiency,
		AverageActivityScore:   s.AverageActivityScore,
		ActivityTrend:          s.ActivityTrend,
		SleepTrend:             s.SleepTrend,
		SleepDebtHours:         s.SleepDebtHours,
	}
}

func toSyncResponse(res syncer.Result) SyncResponse {
	resp := SyncResponse{
		PassID:          res.PassID,
		Skipped:         res.Skipped,
		SamplesAccepted: res.SamplesAccepted,
		SamplesRejected: res.SamplesRejected,
		Days:            res.Days,
		LoadDays:        res.LoadDays,
		DurationSeconds: res.Duration.Seconds(),
	}
	if resp.Days == nil {
		resp.Days = []string{}
	}
	if !res.From.IsZero() {
		resp.From, resp.To = domain.DayKey(res.From), domain.DayKey(res.To)
	}
	if len(res.ProviderErrors) > 0 {
		resp.ProviderErrors = make(map[string]string, len(res.ProviderErrors))
		for p, err := range res.ProviderErrors {
			resp.ProviderErrors[string(p)] = err.Error()
		}
	}
	if res.FeedError != nil {
		resp.FeedError = res.FeedError.Error()
	}
	for _, p := range res.LinkageRequired() {
		resp.LinkageRequired = append(resp.LinkageRequired, string(p))
	}
	return resp
}
