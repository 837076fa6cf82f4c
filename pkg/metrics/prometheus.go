// Package metrics provides Prometheus metrics for the sandscore rating service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	durationBuckets  []float64
	enabled          bool
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Recalculation metrics
	recalculations     prometheus.Counter
	recalculationErrs  prometheus.Counter
	recalcDuration     prometheus.Histogram
	passes             prometheus.Counter
	passDelta          prometheus.Gauge
	matchesProcessed   prometheus.Counter
	matchesSkipped     prometheus.Counter
	matchesDuplicate   prometheus.Counter
	playersRated       *prometheus.GaugeVec
	lastRecalcUnixTime prometheus.Gauge

	// Storage and standings
	storeLatency      *prometheus.HistogramVec
	storeErrors       *prometheus.CounterVec
	standingsRebuild  prometheus.Histogram
	standingsQuery    prometheus.Histogram
	leaderboardErrors prometheus.Counter

	// Match ingestion
	ingestQueueSize    prometheus.Gauge
	ingestQueueCap     prometheus.Gauge
	ingestEnqueued     prometheus.Counter
	ingestRejected     *prometheus.CounterVec
	ingestWritten      prometheus.Counter
	ingestDuplicates   prometheus.Counter
	ingestWriteErrors  prometheus.Counter
	ingestBatchSize    prometheus.Histogram
	ingestWriteLatency prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager. Collectors are registered on the
// configured registry immediately.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "sandscore",
		subsystem:        "ratings",
		histogramBuckets: prometheus.DefBuckets,
		durationBuckets:  prometheus.ExponentialBuckets(1, 4, 10), // 1ms .. ~4.4min
		enabled:          true,
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: buckets,
	})
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.recalculations = m.counter("recalculations_total", "Completed rating recalculations")
	m.recalculationErrs = m.counter("recalculation_errors_total", "Recalculations that failed")
	m.recalcDuration = m.histogram("recalculation_duration_milliseconds",
		"Wall time of a full recalculation in milliseconds", m.durationBuckets)
	m.passes = m.counter("passes_total", "Replay passes executed")
	m.passDelta = m.gauge("pass_rating_delta", "Summed absolute rating change of the latest pass")
	m.matchesProcessed = m.counter("matches_processed_total", "Matches folded into ratings, counted once per pass")
	m.matchesSkipped = m.counter("matches_skipped_total", "Matches skipped because a participant is unknown")
	m.matchesDuplicate = m.counter("matches_duplicate_total", "Matches skipped because their id was already seen")
	m.lastRecalcUnixTime = m.gauge("last_recalculation_timestamp_seconds", "Unix time of the last successful recalculation")
	m.playersRated = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "players_rated",
		Help: "Players with at least one processed match, by bracket",
	}, []string{"bracket"})

	m.storeLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name:    "store_latency_milliseconds",
		Help:    "Latency of storage operations in milliseconds",
		Buckets: m.durationBuckets,
	}, []string{"operation"})
	m.storeErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "store_errors_total",
		Help: "Failed storage operations",
	}, []string{"operation"})
	m.standingsRebuild = m.histogram("standings_rebuild_milliseconds",
		"Time to republish a bracket's standings in milliseconds", m.histogramBuckets)
	m.standingsQuery = m.histogram("standings_query_milliseconds",
		"Latency of leaderboard and rank lookups in milliseconds", m.histogramBuckets)
	m.leaderboardErrors = m.counter("leaderboard_errors_total", "Failed leaderboard and rank lookups")

	m.ingestQueueSize = m.gauge("ingest_queue_size", "Matches waiting to be written")
	m.ingestQueueCap = m.gauge("ingest_queue_capacity", "Capacity of the ingestion queue")
	m.ingestEnqueued = m.counter("ingest_enqueued_total", "Matches accepted for writing")
	m.ingestRejected = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "ingest_rejected_total",
		Help: "Matches refused by the ingestion queue, by reason",
	}, []string{"reason"})
	m.ingestWritten = m.counter("ingest_written_total", "Matches written to the store")
	m.ingestDuplicates = m.counter("ingest_duplicates_total", "Matches the store already held")
	m.ingestWriteErrors = m.counter("ingest_write_errors_total", "Matches that could not be written")
	m.ingestBatchSize = m.histogram("ingest_batch_size", "Matches per store write",
		prometheus.ExponentialBuckets(1, 2, 10))
	m.ingestWriteLatency = m.histogram("ingest_write_milliseconds",
		"Latency of one batch write in milliseconds", m.histogramBuckets)

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "http_requests_total",
		Help: "HTTP requests by endpoint, method and status",
	}, []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name:    "http_request_duration_milliseconds",
		Help:    "HTTP request duration in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})
}

// RecordRecalculation records a finished recalculation.
func (m *Manager) RecordRecalculation(durationMs float64, unixSeconds int64) {
	if !m.enabled {
		return
	}
	m.recalculations.Inc()
	m.recalcDuration.Observe(durationMs)
	m.lastRecalcUnixTime.Set(float64(unixSeconds))
}

// RecordRecalculationError counts a failed recalculation.
func (m *Manager) RecordRecalculationError() {
	if m.enabled {
		m.recalculationErrs.Inc()
	}
}

// RecordPass records one replay pass.
func (m *Manager) RecordPass(processed int, delta float64) {
	if !m.enabled {
		return
	}
	m.passes.Inc()
	m.matchesProcessed.Add(float64(processed))
	m.passDelta.Set(delta)
}

// RecordMatchesFiltered counts matches dropped before the first pass.
func (m *Manager) RecordMatchesFiltered(skipped, duplicates int) {
	if !m.enabled {
		return
	}
	m.matchesSkipped.Add(float64(skipped))
	m.matchesDuplicate.Add(float64(duplicates))
}

// SetPlayersRated publishes the standings size of a bracket.
func (m *Manager) SetPlayersRated(bracket string, n int) {
	if m.enabled {
		m.playersRated.WithLabelValues(bracket).Set(float64(n))
	}
}

// RecordStoreOperation observes a storage call; failed calls are also counted.
func (m *Manager) RecordStoreOperation(op string, latencyMs float64, err error) {
	if !m.enabled {
		return
	}
	m.storeLatency.WithLabelValues(op).Observe(latencyMs)
	if err != nil {
		m.storeErrors.WithLabelValues(op).Inc()
	}
}

// RecordStandingsRebuild observes the time to republish one bracket.
func (m *Manager) RecordStandingsRebuild(latencyMs float64) {
	if m.enabled {
		m.standingsRebuild.Observe(latencyMs)
	}
}

// RecordStandingsQuery observes a leaderboard or rank lookup.
func (m *Manager) RecordStandingsQuery(latencyMs float64) {
	if m.enabled {
		m.standingsQuery.Observe(latencyMs)
	}
}

// RecordLeaderboardError counts a failed leaderboard or rank lookup.
func (m *Manager) RecordLeaderboardError() {
	if m.enabled {
		m.leaderboardErrors.Inc()
	}
}

// SetIngestQueue publishes the ingestion queue size and capacity.
func (m *Manager) SetIngestQueue(size, capacity int) {
	if !m.enabled {
		return
	}
	m.ingestQueueSize.Set(float64(size))
	m.ingestQueueCap.Set(float64(capacity))
}

// RecordIngestEnqueued counts a match accepted by the queue.
func (m *Manager) RecordIngestEnqueued() {
	if m.enabled {
		m.ingestEnqueued.Inc()
	}
}

// RecordIngestRejected counts a match the queue refused.
func (m *Manager) RecordIngestRejected(reason string) {
	if m.enabled {
		m.ingestRejected.WithLabelValues(reason).Inc()
	}
}

// RecordIngestBatch records the outcome of one batch write.
func (m *Manager) RecordIngestBatch(size, written, duplicates, failed int, latencyMs float64) {
	if !m.enabled {
		return
	}
	m.ingestBatchSize.Observe(float64(size))
	m.ingestWriteLatency.Observe(latencyMs)
	m.ingestWritten.Add(float64(written))
	m.ingestDuplicates.Add(float64(duplicates))
	m.ingestWriteErrors.Add(float64(failed))
}

// RecordHTTPRequest counts a served request and observes its duration.
func (m *Manager) RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	if !m.enabled {
		return
	}
	m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// Package-level helpers forward to the global manager.

func RecordRecalculation(durationMs float64, unixSeconds int64) {
	globalManager.RecordRecalculation(durationMs, unixSeconds)
}

func RecordRecalculationError() {
	globalManager.RecordRecalculationError()
}

func RecordPass(processed int, delta float64) {
	globalManager.RecordPass(processed, delta)
}

func RecordMatchesFiltered(skipped, duplicates int) {
	globalManager.RecordMatchesFiltered(skipped, duplicates)
}

func SetPlayersRated(bracket string, n int) {
	globalManager.SetPlayersRated(bracket, n)
}

func RecordStoreOperation(op string, latencyMs float64, err error) {
	globalManager.RecordStoreOperation(op, latencyMs, err)
}

func RecordStandingsRebuild(latencyMs float64) {
	globalManager.RecordStandingsRebuild(latencyMs)
}

func RecordStandingsQuery(latencyMs float64) {
	globalManager.RecordStandingsQuery(latencyMs)
}

func RecordLeaderboardError() {
	globalManager.RecordLeaderboardError()
}

func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	globalManager.RecordHTTPRequest(endpoint, method, statusCode, durationMs)
}


func SetIngestQueue(size, capacity int) {
	globalManager.SetIngestQueue(size, capacity)
}

func RecordIngestEnqueued() {
	globalManager.RecordIngestEnqueued()
}

func RecordIngestRejected(reason string) {
	globalManager.RecordIngestRejected(reason)
}

func RecordIngestBatch(size, written, duplicates, failed int, latencyMs float64) {
	globalManager.RecordIngestBatch(size, written, duplicates, failed, latencyMs)
}

// GetRegistry returns the custom registry backing the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
