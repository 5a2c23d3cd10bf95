// Package observability owns the service-wide Prometheus collectors.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wellness"

var (
	syncPassCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "passes_total",
		Help:      "Number of sync passes grouped by outcome.",
	}, []string{"outcome"})

	syncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "pass_duration_seconds",
		Help:      "Wall-clock duration of completed sync passes.",
		Buckets:   prometheus.DefBuckets,
	})

	lastSyncGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful sync pass.",
	})

	providerFailureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "provider",
		Name:      "fetch_failures_total",
		Help:      "Provider fetch failures treated as empty results.",
	}, []string{"provider", "reason"})

	rejectedSampleCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "provider",
		Name:      "samples_rejected_total",
		Help:      "Samples skipped because they failed parsing or validation.",
	}, []string{"provider"})

	daysWrittenCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "days_written_total",
		Help:      "Per-day records upserted grouped by table.",
	}, []string{"table"})

	prunedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "retention_pruned_total",
		Help:      "Per-day records removed by the retention window.",
	})

	migrationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "migration_runs_total",
		Help:      "Legacy migration attempts grouped by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		syncPassCounter,
		syncDuration,
		lastSyncGauge,
		providerFailureCounter,
		rejectedSampleCounter,
		daysWrittenCounter,
		prunedCounter,
		migrationCounter,
	)
}

// RecordSyncPass counts a pass and, unless skipped, observes its duration.
func RecordSyncPass(outcome string, elapsed time.Duration) {
	syncPassCounter.WithLabelValues(outcome).Inc()
	if outcome != "skipped" {
		syncDuration.Observe(elapsed.Seconds())
	}
}

// RecordSyncSucceeded updates the last-success watermark.
func RecordSyncSucceeded(ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastSyncGauge.Set(float64(ts.Unix()))
}

// RecordProviderFailure counts a failed provider fetch.
func RecordProviderFailure(provider, reason string) {
	providerFailureCounter.WithLabelValues(provider, reason).Inc()
}

// RecordSamplesRejected counts skipped samples for provider.
func RecordSamplesRejected(provider string, n int) {
	if n <= 0 {
		return
	}
	rejectedSampleCounter.WithLabelValues(provider).Add(float64(n))
}

// RecordDaysWritten counts upserted day records.
func RecordDaysWritten(table string, n int) {
	if n <= 0 {
		return
	}
	daysWrittenCounter.WithLabelValues(table).Add(float64(n))
}

// RecordPruned counts records removed by retention.
func RecordPruned(n int) {
	if n <= 0 {
		return
	}
	prunedCounter.Add(float64(n))
}

// RecordMigration counts a migration attempt.
func RecordMigration(outcome string) {
	migrationCounter.WithLabelValues(outcome).Inc()
}
