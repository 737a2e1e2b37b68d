// Package metrics holds the Prometheus counters of a pipeline run. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "jobsift"

// Metrics holds all pipeline metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	FetchAttempts   *prometheus.CounterVec
	FetchFailures   *prometheus.CounterVec
	FetchDuration   *prometheus.HistogramVec
	PostingsFetched *prometheus.CounterVec

	NormalizationDropped *prometheus.CounterVec
	MergeResults         *prometheus.CounterVec
	StoreSize            prometheus.Gauge

	QuickFilterOutcomes *prometheus.CounterVec
	ScorerCalls         *prometheus.CounterVec
	ScorerDuration      prometheus.Histogram
	CacheLookups        *prometheus.CounterVec
	Decisions           *prometheus.CounterVec
}

// New registers every metric on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		FetchAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_attempts_total",
			Help:      "Source fetch attempts, retries included",
		}, []string{"source"}),
		FetchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Sources that ended a run in failure",
		}, []string{"source", "kind"}),
		FetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Wall time spent on one source, retries included",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"source"}),
		PostingsFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "postings_fetched_total",
			Help:      "Raw postings returned by sources",
		}, []string{"source"}),

		NormalizationDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "normalization_dropped_total",
			Help:      "Postings dropped for missing identity fields",
		}, []string{"source"}),
		MergeResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_results_total",
			Help:      "Merged postings by result",
		}, []string{"result"}),
		StoreSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_postings",
			Help:      "Canonical postings held by the store",
		}),

		QuickFilterOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quick_filter_outcomes_total",
			Help:      "Quick-filter outcomes",
		}, []string{"outcome"}),
		ScorerCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scorer_calls_total",
			Help:      "Scorer evaluations by result",
		}, []string{"result"}),
		ScorerDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scorer_duration_seconds",
			Help:      "Latency of a single scorer evaluation",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "score_cache_lookups_total",
			Help:      "Score cache lookups by result",
		}, []string{"result"}),
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Final decisions",
		}, []string{"decision"}),
	}
}

// Registry exposes the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// WriteTextfile writes the current values in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

// ObserveFetch records the outcome of one source. failureKind is empty on success.
func (m *Metrics) ObserveFetch(source string, attempts, postings int, failureKind string, took time.Duration) {
	if m == nil {
		return
	}
	m.FetchAttempts.WithLabelValues(source).Add(float64(attempts))
	m.FetchDuration.WithLabelValues(source).Observe(took.Seconds())
	m.PostingsFetched.WithLabelValues(source).Add(float64(postings))
	if failureKind != "" {
		m.FetchFailures.WithLabelValues(source, failureKind).Inc()
	}
}

// ObserveDropped records postings dropped by the normalizer.
func (m *Metrics) ObserveDropped(bySource map[string]int) {
	if m == nil {
		return
	}
	for source, n := range bySource {
		m.NormalizationDropped.WithLabelValues(source).Add(float64(n))
	}
}

// ObserveMerge records one merge report and the resulting store size.
func (m *Metrics) ObserveMerge(added, updated, unchanged, storeSize int) {
	if m == nil {
		return
	}
	m.MergeResults.WithLabelValues("added").Add(float64(added))
	m.MergeResults.WithLabelValues("updated").Add(float64(updated))
	m.MergeResults.WithLabelValues("unchanged").Add(float64(unchanged))
	m.StoreSize.Set(float64(storeSize))
}

func (m *Metrics) ObserveOutcome(outcome string) {
	if m == nil {
		return
	}
	m.QuickFilterOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveScorer records one scorer evaluation. result is "ok" or a failure kind.
func (m *Metrics) ObserveScorer(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.ScorerCalls.WithLabelValues(result).Inc()
	m.ScorerDuration.Observe(took.Seconds())
}

func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveDecision(decision string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(decision).Inc()
}
