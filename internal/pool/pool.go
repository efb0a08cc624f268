// Package pool owns a bounded set of live backend sessions and lends them
// out one caller at a time. Exhaustion degrades into overflow connections
// rather than blocking callers indefinitely; capacity is the only thing the
// pool guarantees, never availability.
package pool

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/koustreak/DatFlow/internal/database"
	"github.com/koustreak/DatFlow/internal/logger"
	"github.com/koustreak/DatFlow/internal/telemetry"
)

const (
	defaultSize           = 5
	defaultAcquireTimeout = 10 * time.Second
)

// Config tunes a Pool. Fixed for the pool's lifetime.
type Config struct {
	// Size is the pooled capacity N. The idle queue never holds more.
	Size int

	// AcquireTimeout bounds the wait for an idle session before the pool
	// degrades to an overflow connection.
	AcquireTimeout time.Duration

	// SkipProbe disables the liveness probe on lease.
	SkipProbe bool

	Logger  *logger.Logger
	Metrics *telemetry.Metrics
}

// Pool is a fixed-capacity connection pool. Safe for concurrent use; the
// idle queue is the only shared structure and all mutations go through its
// channel operations.
type Pool struct {
	connector      database.Connector
	idle           chan database.Conn
	size           int
	acquireTimeout time.Duration
	probe          bool
	log            *logger.Logger
	met            *telemetry.Metrics
}

// New pre-opens cfg.Size sessions into the idle queue. Per-session open
// failures are logged and do not abort construction: a pool that opened
// nothing still works, serving every lease from overflow connections.
func New(ctx context.Context, connector database.Connector, cfg Config) *Pool {
	if cfg.Size <= 0 {
		cfg.Size = defaultSize
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = defaultAcquireTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = telemetry.NewNop()
	}

	p := &Pool{
		connector:      connector,
		idle:           make(chan database.Conn, cfg.Size),
		size:           cfg.Size,
		acquireTimeout: cfg.AcquireTimeout,
		probe:          !cfg.SkipProbe,
		log:            cfg.Logger.With().Str("component", "pool").Str("driver", connector.Name()).Logger(),
		met:            cfg.Metrics,
	}

	var g errgroup.Group
	for i := 0; i < cfg.Size; i++ {
		g.Go(func() error {
			conn, err := connector.Open(ctx)
			if err != nil {
				p.log.With().Err(err).Logger().Warn("failed to open pooled connection")
				return nil
			}
			p.idle <- conn
			return nil
		})
	}
	_ = g.Wait()

	p.met.PoolIdle.Set(float64(len(p.idle)))
	p.log.Infof("pool ready with %d/%d connections", len(p.idle), cfg.Size)
	return p
}

// Size returns the pooled capacity N.
func (p *Pool) Size() int { return p.size }

// Idle returns the current idle-queue depth. Never exceeds Size.
func (p *Pool) Idle() int { return len(p.idle) }

// Lease hands out a session for exclusive use. The caller must pass it to
// Release exactly once when done.
//
// An idle session is probed before hand-off; a dead one is discarded and a
// fresh session opened in its place. If no session turns idle within the
// acquire window, Lease opens an overflow session outside the pooled
// capacity instead of blocking further. Exhaustion costs extra concurrency,
// not failure.
func (p *Pool) Lease(ctx context.Context) (database.Conn, error) {
	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()

	select {
	case conn := <-p.idle:
		p.met.PoolIdle.Set(float64(len(p.idle)))
		if !p.probe {
			p.met.LeasesTotal.WithLabelValues(telemetry.LeasePooled).Inc()
			return conn, nil
		}
		if err := conn.Ping(ctx); err != nil {
			p.log.With().Err(err).Logger().Warn("probe failed, replacing connection")
			if cerr := conn.Close(); cerr != nil {
				p.log.With().Err(cerr).Logger().Debug("close of broken connection failed")
			}
			fresh, err := p.connector.Open(ctx)
			if err != nil {
				return nil, err
			}
			p.met.LeasesTotal.WithLabelValues(telemetry.LeaseReplaced).Inc()
			return fresh, nil
		}
		p.met.LeasesTotal.WithLabelValues(telemetry.LeasePooled).Inc()
		return conn, nil

	case <-timer.C:
		// Pool exhausted. Not an error: degrade to an overflow session.
		p.log.Warn("pool exhausted, opening overflow connection")
		conn, err := p.connector.Open(ctx)
		if err != nil {
			return nil, err
		}
		p.met.LeasesTotal.WithLabelValues(telemetry.LeaseAdhoc).Inc()
		return conn, nil

	case <-ctx.Done():
		return nil, database.WrapError(database.ErrKindTimeout, "lease cancelled", ctx.Err())
	}
}

// Release returns a session to the idle queue, or closes it when the queue
// is already at capacity (which is how overflow sessions normally die).
// Close failures are logged and swallowed; the caller already has its
// result and must never see them.
func (p *Pool) Release(conn database.Conn) {
	if conn == nil {
		return
	}
	select {
	case p.idle <- conn:
		p.met.PoolIdle.Set(float64(len(p.idle)))
	default:
		if err := conn.Close(); err != nil {
			p.log.With().Err(err).Logger().Warn("failed to close surplus connection")
		}
	}
}

// Close drains the idle queue and closes every session. Sessions still
// leased are not tracked; callers must Release them before Close.
func (p *Pool) Close() {
	for {
		select {
		case conn := <-p.idle:
			if err := conn.Close(); err != nil {
				p.log.With().Err(err).Logger().Warn("failed to close pooled connection")
			}
		default:
			p.met.PoolIdle.Set(0)
			return
		}
	}
}
