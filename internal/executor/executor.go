// Package executor runs guarded statements against the backend. Every
// statement passes through the dialect guard, gets a bounded timeout, and
// runs on a leased pool session in its own goroutine so cancellation takes
// effect immediately instead of waiting for the driver to notice.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/koustreak/DatFlow/internal/cache"
	"github.com/koustreak/DatFlow/internal/database"
	"github.com/koustreak/DatFlow/internal/dialect"
	"github.com/koustreak/DatFlow/internal/logger"
	"github.com/koustreak/DatFlow/internal/telemetry"
)

// Pool is the session source the executor leases from.
type Pool interface {
	Lease(ctx context.Context) (database.Conn, error)
	Release(conn database.Conn)
}

// Config tunes one Executor.
type Config struct {
	// DefaultTimeout applies when a query carries none. MaxTimeout is the
	// ceiling; requests asking for more are clamped, not rejected.
	DefaultTimeout time.Duration
	MaxTimeout     time.Duration

	// BatchSize and WarnRows control result materialization.
	BatchSize int
	WarnRows  int

	// CacheMaxRows bounds which results are worth caching.
	CacheMaxRows int

	// Per-shape TTLs for cached results.
	ResultTTL    time.Duration
	AggregateTTL time.Duration
	DistinctTTL  time.Duration

	Logger  *logger.Logger
	Metrics *telemetry.Metrics
}

func (c *Config) withDefaults() {
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 60 * time.Second
	}
	if c.MaxTimeout <= 0 {
		c.MaxTimeout = 300 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 1000
	}
	if c.WarnRows <= 0 {
		c.WarnRows = 10000
	}
	if c.CacheMaxRows <= 0 {
		c.CacheMaxRows = 5000
	}
	if c.ResultTTL <= 0 {
		c.ResultTTL = 300 * time.Second
	}
	if c.AggregateTTL <= 0 {
		c.AggregateTTL = 600 * time.Second
	}
	if c.DistinctTTL <= 0 {
		c.DistinctTTL = 900 * time.Second
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}
	if c.Metrics == nil {
		c.Metrics = telemetry.NewNop()
	}
}

// Executor is the guarded entry point for running SQL.
type Executor struct {
	pool    Pool
	guard   *dialect.Guard
	dialect database.Dialect
	caches  *cache.Tiered
	cfg     Config
	log     *logger.Logger
	met     *telemetry.Metrics
}

// New builds an Executor. caches may be nil for an uncached executor.
func New(pool Pool, d database.Dialect, caches *cache.Tiered, cfg Config) *Executor {
	cfg.withDefaults()
	if caches == nil {
		caches = cache.NewTiered(false)
	}
	return &Executor{
		pool:    pool,
		guard:   dialect.New(cfg.Logger),
		dialect: d,
		caches:  caches,
		cfg:     cfg,
		log:     cfg.Logger.With().Str("component", "executor").Logger(),
		met:     cfg.Metrics,
	}
}

// Dialect reports the backend dialect the executor guards for.
func (e *Executor) Dialect() database.Dialect {
	return e.dialect
}

type outcome struct {
	res *database.Result
	err error
}

// Execute runs one statement end to end: cache lookup, limit policy,
// dialect rewrite, lease, run, materialize, cache fill. Cache hits return
// before any session is leased.
//
// Every statement runs on the backend pool. Statements that target
// uploaded_ tables pass the guard's LIMIT tolerance but belong on
// localstore.Query; routing them there is the caller's job.
func (e *Executor) Execute(ctx context.Context, q database.Query) (*database.Result, error) {
	id := uuid.NewString()[:8]
	log := e.log.With().Str("query_id", id).Logger()

	read := q.Kind() == database.KindRead

	var key string
	if read {
		key = cache.ResultKey(q.Text, q.Hint)
		if v, ok := e.caches.Results.Get(key); ok {
			e.met.CacheHits.WithLabelValues(telemetry.TierResults).Inc()
			log.Debugf("cache hit for query %s", id)
			return v.(*database.Result), nil
		}
		e.met.CacheMisses.WithLabelValues(telemetry.TierResults).Inc()
	}

	q = e.guard.ApplyLimit(q, e.dialect)
	q, err := e.guard.Rewrite(q, e.dialect)
	if err != nil {
		return nil, err
	}

	timeout := q.Timeout
	if timeout <= 0 {
		timeout = e.cfg.DefaultTimeout
	}
	if timeout > e.cfg.MaxTimeout {
		timeout = e.cfg.MaxTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := e.pool.Lease(runCtx)
	if err != nil {
		return nil, err
	}

	e.met.QueriesInFlight.Inc()
	start := time.Now()

	done := make(chan outcome, 1)
	go func() {
		defer e.pool.Release(conn)
		rows, err := conn.Query(runCtx, q.Text)
		if err != nil {
			done <- outcome{err: err}
			return
		}
		res, err := database.ScanRowsChunked(rows, e.cfg.BatchSize, e.cfg.WarnRows, log)
		done <- outcome{res: res, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-runCtx.Done():
		// The driver observes runCtx and unblocks the goroutine, which
		// then releases the session.
		out = outcome{err: runCtx.Err()}
	}

	elapsed := time.Since(start)
	e.met.QueriesInFlight.Dec()

	if out.err != nil {
		if errors.Is(out.err, context.DeadlineExceeded) || database.IsTimeout(out.err) {
			e.met.QueryDuration.WithLabelValues(telemetry.OutcomeTimeout).Observe(elapsed.Seconds())
			log.Warnf("query %s timed out after %s", id, timeout)
			return nil, database.WrapError(database.ErrKindTimeout,
				fmt.Sprintf("query exceeded the %s limit; narrow the result set or raise the timeout", timeout),
				out.err)
		}
		e.met.QueryDuration.WithLabelValues(telemetry.OutcomeError).Observe(elapsed.Seconds())
		log.ErrorWith("query failed", out.err, map[string]interface{}{"query_id": id})
		if database.KindOf(out.err) != database.ErrKindUnknown {
			return nil, out.err
		}
		return nil, database.WrapError(database.ErrKindBackend, "query execution failed", out.err)
	}

	e.met.QueryDuration.WithLabelValues(telemetry.OutcomeOK).Observe(elapsed.Seconds())
	e.met.RowsReturned.Observe(float64(out.res.RowCount))
	log.Infof("query %s returned %d rows in %s", id, out.res.RowCount, elapsed.Round(time.Millisecond))

	if read && out.res.Complete && out.res.RowCount <= e.cfg.CacheMaxRows {
		e.caches.Results.Put(key, out.res, e.ttlFor(q.Text))
	}
	return out.res, nil
}

// ttlFor picks the result TTL by statement shape. Aggregates change slowly
// and DISTINCT projections slower still, so both outlive plain reads.
func (e *Executor) ttlFor(text string) time.Duration {
	switch dialect.Shape(text) {
	case dialect.ShapeAggregate:
		return e.cfg.AggregateTTL
	case dialect.ShapeDistinct:
		return e.cfg.DistinctTTL
	default:
		return e.cfg.ResultTTL
	}
}
