package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "volcano_risk"

// Metrics holds the Prometheus counters, histograms, and gauges for the risk service.
type Metrics struct {
	// Fetch-and-cache metrics.
	FetchDecisions  *prometheus.CounterVec // labels: reason={first time,fresh,recent window,cache}
	FetchErrors     prometheus.Counter
	EventsFetched   prometheus.Counter
	EventsUpserted  prometheus.Counter
	FeaturesSkipped prometheus.Counter
	ChunksFetched   prometheus.Counter

	// Upstream call metrics.
	UpstreamDuration *prometheus.HistogramVec // labels: source={catalog,status,elevated,registry}
	UpstreamErrors   *prometheus.CounterVec   // labels: source
	StatusCache      *prometheus.CounterVec   // labels: result={hit,miss}

	// Scoring and batch metrics.
	Assessments      *prometheus.CounterVec // labels: basis, color
	BatchSize        prometheus.Histogram
	BatchDuration    prometheus.Histogram
	BatchFailures    prometheus.Counter
	ResultsPublished prometheus.Counter
	SchedulerRunning prometheus.Gauge
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(
		m.FetchDecisions,
		m.FetchErrors,
		m.EventsFetched,
		m.EventsUpserted,
		m.FeaturesSkipped,
		m.ChunksFetched,
		m.UpstreamDuration,
		m.UpstreamErrors,
		m.StatusCache,
		m.Assessments,
		m.BatchSize,
		m.BatchDuration,
		m.BatchFailures,
		m.ResultsPublished,
		m.SchedulerRunning,
	)
	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}

	return &Metrics{
		FetchDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_decisions_total",
			Help:      help("Freshness ledger decisions by reason."),
		}, []string{"reason"}),
		FetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      help("Fetch-and-cache calls that failed."),
		}),
		EventsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_fetched_total",
			Help:      help("Catalog events received from upstream."),
		}),
		EventsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_upserted_total",
			Help:      help("Seismic events written to the cache."),
		}),
		FeaturesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "features_skipped_total",
			Help:      help("Catalog features dropped for missing id or time."),
		}),
		ChunksFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_fetched_total",
			Help:      help("Sub-window catalog requests completed."),
		}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      help("Upstream request duration in seconds."),
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"source"}),
		UpstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      help("Upstream request failures by source."),
		}, []string{"source"}),
		StatusCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_cache_total",
			Help:      help("Authoritative status cache lookups by result."),
		}, []string{"result"}),
		Assessments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assessments_total",
			Help:      help("Risk assessments computed by basis and color."),
		}, []string{"basis", "color"}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      help("Number of locations per batch assessment."),
			Buckets:   []float64{1, 10, 50, 100, 200, 300, 500, 1000},
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      help("Duration of a complete batch assessment."),
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		}),
		BatchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_location_failures_total",
			Help:      help("Locations dropped from a batch because their assessment failed."),
		}),
		ResultsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_published_total",
			Help:      help("Batch results written to the results topic."),
		}),
		SchedulerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_running",
			Help:      help("1 when the periodic sync is active, 0 when stopped."),
		}),
	}
}
