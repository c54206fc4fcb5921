package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wordloc"

// Metrics holds the Prometheus counters, histograms, and gauges for the service.
type Metrics struct {
	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec   // labels: provider, method={geocode,suggest,reverse}, outcome={success,empty,error,panic,timeout,unsupported}
	GeocodeDuration    *prometheus.HistogramVec // labels: provider, method
	GeocodeCache       *prometheus.CounterVec   // labels: method, result={hit,miss}
	GeocodeAPIDuration *prometheus.HistogramVec // labels: provider, method
	ProvidersEnabled   *prometheus.GaugeVec     // labels: provider

	// Session metrics.
	SessionsActive  prometheus.Gauge
	SessionEvents   *prometheus.CounterVec // labels: event
	LocationChanges *prometheus.CounterVec // labels: source
	StaleResults    prometheus.Counter

	// Location event pipeline metrics.
	EventsQueued            prometheus.Counter
	EventsDropped           prometheus.Counter
	EventsPublished         prometheus.Counter
	PublishErrors           prometheus.Counter
	PipelineRunning         prometheus.Gauge
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.GeocodeRequests,
		m.GeocodeDuration,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.ProvidersEnabled,
		m.SessionsActive,
		m.SessionEvents,
		m.LocationChanges,
		m.StaleResults,
		m.EventsQueued,
		m.EventsDropped,
		m.EventsPublished,
		m.PublishErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Provider calls made by the aggregator, by provider, method and outcome.",
		}, []string{"provider", "method", "outcome"}),
		GeocodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_duration_seconds",
			Help:      "Provider call duration as seen by the aggregator.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"provider", "method"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by method and result.",
		}, []string{"method", "result"}),
		GeocodeAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Upstream geocoding API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"provider", "method"}),
		ProvidersEnabled: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "provider_enabled",
			Help:      "1 when the named geocoding provider is registered with the aggregator.",
		}, []string{"provider"}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of live map sessions.",
		}),
		SessionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Events handled by location synchronizers, by event type.",
		}, []string{"event"}),
		LocationChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_changes_total",
			Help:      "Current location replacements, by source.",
		}, []string{"source"}),
		StaleResults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_results_total",
			Help:      "Resolutions discarded because a newer one was issued.",
		}),
		EventsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_events_queued_total",
			Help:      "Location events accepted by the publish queue.",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_events_dropped_total",
			Help:      "Location events dropped because the publish queue was full.",
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_events_published_total",
			Help:      "Location events written to the sink.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failed batch writes to the sink.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the publish pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of location events per published batch.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete extract-serialize-load cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
	}
}
