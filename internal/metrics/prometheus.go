package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the ingestion service

var (
	// Provider call metrics, one observation per attempt
	APICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nba_api_calls_total",
			Help: "Total number of provider API call attempts",
		},
		[]string{"provider", "outcome"},
	)

	APICallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nba_api_call_duration_seconds",
			Help:    "Duration of provider API call attempts in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	APIRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nba_api_retries_total",
			Help: "Total number of provider API retries",
		},
		[]string{"provider"},
	)

	RateLimitWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nba_rate_limit_wait_seconds",
			Help:    "Time spent waiting for a provider rate limit token",
			Buckets: []float64{.001, .01, .1, .5, 1, 5, 15, 30, 60},
		},
		[]string{"provider"},
	)

	// Database metrics
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nba_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "kind", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nba_db_query_duration_seconds",
			Help:    "Duration of database queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "kind"},
	)

	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nba_db_connections_active",
			Help: "Number of active database connections",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nba_db_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	// Cache metrics
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nba_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache"},
	)

	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nba_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)

	CacheOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nba_cache_operation_duration_seconds",
			Help:    "Duration of cache operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// Report assembly metrics
	AssembliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nba_report_assemblies_total",
			Help: "Total number of report assemblies by outcome",
		},
		[]string{"outcome"},
	)

	AssemblyDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nba_report_assembly_duration_seconds",
			Help:    "Duration of report assemblies in seconds",
			Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 120},
		},
	)

	SectionDegradedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nba_report_section_degraded_total",
			Help: "Total number of degraded report sections",
		},
		[]string{"section", "reason"},
	)

	LineMovementsDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nba_line_movements_detected_total",
			Help: "Total number of line movements detected",
		},
	)

	// Batch refresh metrics
	BatchRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nba_batch_runs_total",
			Help: "Total number of batch refresh runs",
		},
		[]string{"status"},
	)

	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nba_batch_duration_seconds",
			Help:    "Duration of batch refresh runs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	BatchTeamStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nba_batch_team_status",
			Help: "Number of teams per status in the last batch run",
		},
		[]string{"status"},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nba_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	// System metrics
	SystemUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nba_system_uptime_seconds",
			Help: "System uptime in seconds",
		},
	)

	LastSuccessfulRefresh = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nba_last_successful_refresh_timestamp",
			Help: "Timestamp of last batch refresh without failures",
		},
	)
)

// RecordAPICall records a provider call attempt
func RecordAPICall(provider, outcome string, duration float64) {
	APICallsTotal.WithLabelValues(provider, outcome).Inc()
	APICallDuration.WithLabelValues(provider).Observe(duration)
}

// RecordRetry records a provider retry
func RecordRetry(provider string) {
	APIRetriesTotal.WithLabelValues(provider).Inc()
}

// RecordRateLimitWait records time spent waiting for a token
func RecordRateLimitWait(provider string, duration float64) {
	RateLimitWait.WithLabelValues(provider).Observe(duration)
}

// RecordDBQuery records a database query metric
func RecordDBQuery(operation, kind, status string, duration float64) {
	DBQueriesTotal.WithLabelValues(operation, kind, status).Inc()
	DBQueryDuration.WithLabelValues(operation, kind).Observe(duration)
}

// RecordCacheHit records a cache hit
func RecordCacheHit(cache string) {
	CacheHitsTotal.WithLabelValues(cache).Inc()
}

// RecordCacheMiss records a cache miss
func RecordCacheMiss(cache string) {
	CacheMissesTotal.WithLabelValues(cache).Inc()
}

// RecordCacheOperation records a cache operation duration
func RecordCacheOperation(operation string, duration float64) {
	CacheOperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordAssembly records a report assembly
func RecordAssembly(outcome string, duration float64) {
	AssembliesTotal.WithLabelValues(outcome).Inc()
	AssemblyDuration.Observe(duration)
}

// RecordSectionDegraded records a degraded report section
func RecordSectionDegraded(section, reason string) {
	SectionDegradedTotal.WithLabelValues(section, reason).Inc()
}

// RecordLineMovement records a line movement detection
func RecordLineMovement() {
	LineMovementsDetected.Inc()
}

// RecordBatch records a finished batch run and its per-status team counts
func RecordBatch(status string, duration float64, counts map[string]int) {
	BatchRunsTotal.WithLabelValues(status).Inc()
	BatchDuration.Observe(duration)
	for s, n := range counts {
		BatchTeamStatus.WithLabelValues(s).Set(float64(n))
	}

	if status == "success" {
		LastSuccessfulRefresh.SetToCurrentTime()
	}
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// UpdateDBConnectionStats updates database connection pool statistics
func UpdateDBConnectionStats(active, idle int32) {
	DBConnectionsActive.Set(float64(active))
	DBConnectionsIdle.Set(float64(idle))
}
