// Package telemetry exposes the prometheus instruments shared by the pool,
// caches and executor. Metrics are constructed against an explicit
// Registerer and handed to components at startup; NewNop gives the same
// instruments backed by a private registry for tests and metric-less
// deployments.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Lease outcome labels.
const (
	LeasePooled   = "pooled"   // served from the idle queue
	LeaseReplaced = "replaced" // idle conn failed its probe, replacement opened
	LeaseAdhoc    = "adhoc"    // pool exhausted, overflow connection opened
)

// Cache tier labels.
const (
	TierResults = "results"
	TierSchemas = "schemas"
	TierTables  = "tables"
)

// Query outcome labels.
const (
	OutcomeOK      = "ok"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

// Metrics bundles every instrument the execution layer records into.
// All fields are always non-nil.
type Metrics struct {
	// Pool
	LeasesTotal *prometheus.CounterVec // by outcome: pooled, replaced, adhoc
	PoolIdle    prometheus.Gauge

	// Caches, by tier: results, schemas, tables
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// Executor
	QueriesInFlight prometheus.Gauge
	QueryDuration   *prometheus.HistogramVec // by outcome: ok, timeout, error
	RowsReturned    prometheus.Histogram
}

// New registers all instruments against reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LeasesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "datflow_pool_leases_total",
			Help: "Connection leases by outcome (pooled, replaced, adhoc).",
		}, []string{"outcome"}),
		PoolIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "datflow_pool_idle_connections",
			Help: "Connections currently sitting in the idle queue.",
		}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "datflow_cache_hits_total",
			Help: "Cache hits by tier (results, schemas, tables).",
		}, []string{"tier"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "datflow_cache_misses_total",
			Help: "Cache misses by tier (results, schemas, tables).",
		}, []string{"tier"}),
		QueriesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "datflow_queries_in_flight",
			Help: "Executions currently running against the backend.",
		}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "datflow_query_duration_seconds",
			Help:    "Wall-clock execution latency by outcome.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"outcome"}),
		RowsReturned: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "datflow_query_rows_returned",
			Help:    "Materialized row counts per execution.",
			Buckets: []float64{1, 10, 100, 1000, 5000, 10000, 50000},
		}),
	}

	reg.MustRegister(
		m.LeasesTotal, m.PoolIdle,
		m.CacheHits, m.CacheMisses,
		m.QueriesInFlight, m.QueryDuration, m.RowsReturned,
	)
	return m
}

// NewNop returns fully wired instruments that are never scraped.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
