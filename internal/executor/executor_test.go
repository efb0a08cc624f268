package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/DatFlow/internal/cache"
	"github.com/koustreak/DatFlow/internal/database"
)

// fakeRows replays a fixed result set.
type fakeRows struct {
	columns []string
	data    [][]any
	pos     int
	closed  bool
}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.pos-1]
	for i := range dest {
		*(dest[i].(*any)) = row[i]
	}
	return nil
}

func (r *fakeRows) Columns() ([]string, error) { return r.columns, nil }
func (r *fakeRows) Close()                     { r.closed = true }
func (r *fakeRows) Err() error                 { return nil }

// fakeConn records the statement text it receives.
type fakeConn struct {
	mu       sync.Mutex
	received []string
	rows     func(ctx context.Context) (database.Rows, error)
}

func (c *fakeConn) Ping(ctx context.Context) error { return nil }
func (c *fakeConn) Close() error                   { return nil }

func (c *fakeConn) Query(ctx context.Context, sql string, args ...any) (database.Rows, error) {
	c.mu.Lock()
	c.received = append(c.received, sql)
	c.mu.Unlock()
	if c.rows != nil {
		return c.rows(ctx)
	}
	return &fakeRows{columns: []string{"id"}, data: [][]any{{int64(1)}}}, nil
}

func (c *fakeConn) lastSQL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.received) == 0 {
		return ""
	}
	return c.received[len(c.received)-1]
}

// fakePool counts leases and releases.
type fakePool struct {
	conn     *fakeConn
	leases   atomic.Int32
	releases atomic.Int32
}

func (p *fakePool) Lease(ctx context.Context) (database.Conn, error) {
	p.leases.Add(1)
	return p.conn, nil
}

func (p *fakePool) Release(conn database.Conn) {
	p.releases.Add(1)
}

func newTestExecutor(conn *fakeConn, caches *cache.Tiered) (*Executor, *fakePool) {
	p := &fakePool{conn: conn}
	e := New(p, database.DialectSQLServer, caches, Config{})
	return e, p
}

func TestExecutor_Execute(t *testing.T) {
	conn := &fakeConn{}
	e, p := newTestExecutor(conn, nil)

	res, err := e.Execute(context.Background(), database.NewQuery("SELECT * FROM t"))
	require.NoError(t, err)

	assert.Equal(t, 1, res.RowCount)
	assert.True(t, res.Complete)
	assert.Equal(t, []string{"id"}, res.Columns)
	assert.Equal(t, int32(1), p.leases.Load())
	assert.Equal(t, int32(1), p.releases.Load())
}

func TestExecutor_InjectsLimitBeforeExecution(t *testing.T) {
	conn := &fakeConn{}
	e, _ := newTestExecutor(conn, nil)

	_, err := e.Execute(context.Background(), database.NewQuery("SELECT * FROM t"))
	require.NoError(t, err)
	assert.Equal(t, "SELECT TOP 1000 * FROM t", conn.lastSQL())
}

func TestExecutor_ExplicitLimitHint(t *testing.T) {
	conn := &fakeConn{}
	e, _ := newTestExecutor(conn, nil)

	q := database.NewQuery("SELECT * FROM t")
	q.Hint = database.LimitRows(25)
	_, err := e.Execute(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, "SELECT TOP 25 * FROM t", conn.lastSQL())
}

func TestExecutor_DialectViolation(t *testing.T) {
	conn := &fakeConn{}
	e, p := newTestExecutor(conn, nil)

	_, err := e.Execute(context.Background(),
		database.NewQuery("SELECT * FROM orders LIMIT 10"))
	require.Error(t, err)
	assert.True(t, database.IsDialectViolation(err))

	// Rejected before any session was leased.
	assert.Equal(t, int32(0), p.leases.Load())
}

func TestExecutor_CacheHitSkipsPool(t *testing.T) {
	conn := &fakeConn{}
	caches := cache.NewTiered(true)
	e, p := newTestExecutor(conn, caches)

	q := database.NewQuery("SELECT * FROM t")

	first, err := e.Execute(context.Background(), q)
	require.NoError(t, err)
	require.Equal(t, int32(1), p.leases.Load())

	second, err := e.Execute(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, int32(1), p.leases.Load(), "cache hit must not lease")
	assert.Same(t, first, second)
}

func TestExecutor_MutationNotCached(t *testing.T) {
	conn := &fakeConn{}
	caches := cache.NewTiered(true)
	e, p := newTestExecutor(conn, caches)

	q := database.NewQuery("UPDATE t SET a = 1")
	_, err := e.Execute(context.Background(), q)
	require.NoError(t, err)
	_, err = e.Execute(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, int32(2), p.leases.Load())
}

func TestExecutor_OversizedResultNotCached(t *testing.T) {
	data := make([][]any, 11)
	for i := range data {
		data[i] = []any{int64(i)}
	}
	conn := &fakeConn{rows: func(ctx context.Context) (database.Rows, error) {
		return &fakeRows{columns: []string{"id"}, data: data}, nil
	}}

	p := &fakePool{conn: conn}
	caches := cache.NewTiered(true)
	e := New(p, database.DialectSQLServer, caches, Config{CacheMaxRows: 10})

	q := database.NewQuery("SELECT * FROM t")
	_, err := e.Execute(context.Background(), q)
	require.NoError(t, err)
	_, err = e.Execute(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, int32(2), p.leases.Load())
}

func TestExecutor_Timeout(t *testing.T) {
	conn := &fakeConn{rows: func(ctx context.Context) (database.Rows, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	p := &fakePool{conn: conn}
	e := New(p, database.DialectSQLServer, nil, Config{})

	q := database.NewQuery("SELECT * FROM t")
	q.Timeout = 30 * time.Millisecond

	start := time.Now()
	_, err := e.Execute(context.Background(), q)
	require.Error(t, err)
	assert.True(t, database.IsTimeout(err))
	assert.Less(t, time.Since(start), 5*time.Second)

	// The goroutine owns the release; once the driver observes the expired
	// context it unwinds and returns the session exactly once.
	assert.Eventually(t, func() bool {
		return p.releases.Load() == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), p.leases.Load())
}

func TestExecutor_TimeoutClampedToCeiling(t *testing.T) {
	conn := &fakeConn{rows: func(ctx context.Context) (database.Rows, error) {
		deadline, ok := ctx.Deadline()
		if !ok {
			return nil, errors.New("no deadline set")
		}
		if time.Until(deadline) > 100*time.Millisecond {
			return nil, errors.New("deadline exceeds ceiling")
		}
		return &fakeRows{columns: []string{"id"}}, nil
	}}
	p := &fakePool{conn: conn}
	e := New(p, database.DialectSQLServer, nil, Config{MaxTimeout: 100 * time.Millisecond})

	q := database.NewQuery("SELECT * FROM t")
	q.Timeout = time.Hour

	_, err := e.Execute(context.Background(), q)
	require.NoError(t, err)
}

func TestExecutor_BackendErrorKind(t *testing.T) {
	conn := &fakeConn{rows: func(ctx context.Context) (database.Rows, error) {
		return nil, errors.New("table does not exist")
	}}
	p := &fakePool{conn: conn}
	e := New(p, database.DialectSQLServer, nil, Config{})

	_, err := e.Execute(context.Background(), database.NewQuery("SELECT * FROM nope"))
	require.Error(t, err)
	assert.True(t, database.IsBackendError(err))
	assert.Equal(t, int32(1), p.releases.Load())
}

func TestExecutor_PreservesMappedErrorKind(t *testing.T) {
	conn := &fakeConn{rows: func(ctx context.Context) (database.Rows, error) {
		return nil, database.NewError(database.ErrKindConnectionFailed, "connection reset")
	}}
	p := &fakePool{conn: conn}
	e := New(p, database.DialectSQLServer, nil, Config{})

	_, err := e.Execute(context.Background(), database.NewQuery("SELECT * FROM t"))
	require.Error(t, err)
	assert.True(t, database.IsConnectionFailed(err))
}

// recordingStore captures Put calls so TTL selection is observable.
type recordingStore struct {
	cache.Nop
	mu   sync.Mutex
	last time.Duration
}

func (s *recordingStore) Put(key string, value any, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = ttl
}

func TestExecutor_TTLByShape(t *testing.T) {
	tests := []struct {
		name string
		text string
		want time.Duration
	}{
		{"plain select", "SELECT * FROM t", 300 * time.Second},
		{"aggregate", "SELECT category, SUM(amount) AS total FROM t GROUP BY category", 600 * time.Second},
		{"distinct", "SELECT DISTINCT city FROM t", 900 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingStore{}
			caches := &cache.Tiered{Results: rec, Schemas: cache.NewNop(), Tables: cache.NewNop()}

			conn := &fakeConn{}
			p := &fakePool{conn: conn}
			e := New(p, database.DialectSQLServer, caches, Config{})

			_, err := e.Execute(context.Background(), database.NewQuery(tt.text))
			require.NoError(t, err)

			rec.mu.Lock()
			defer rec.mu.Unlock()
			assert.Equal(t, tt.want, rec.last)
		})
	}
}
