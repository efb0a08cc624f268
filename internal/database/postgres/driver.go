// Package postgres implements database.Connector for PostgreSQL over pgx.
// Each session is its own *pgx.Conn; the pool package decides how many stay
// open, so pgxpool is not used here.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/koustreak/DatFlow/internal/database"
)

// Connector produces PostgreSQL sessions.
type Connector struct {
	cfg *pgx.ConnConfig
}

// New parses the DSN and returns a Connector. No connection is attempted
// until Open.
func New(dsn string) (*Connector, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, database.WrapError(database.ErrKindConnectionFailed, "invalid DSN", err)
	}
	return &Connector{cfg: cfg}, nil
}

func (c *Connector) Name() string { return "postgres" }

func (c *Connector) Dialect() database.Dialect { return database.DialectPostgres }

// Open establishes one dedicated session.
func (c *Connector) Open(ctx context.Context) (database.Conn, error) {
	conn, err := pgx.ConnectConfig(ctx, c.cfg)
	if err != nil {
		return nil, mapError(err, "failed to open connection")
	}
	return &session{conn: conn}, nil
}

// Close is a no-op: sessions hold no shared state.
func (c *Connector) Close() error { return nil }

// --- session wraps one *pgx.Conn ---

type session struct {
	conn *pgx.Conn
}

func (s *session) Ping(ctx context.Context) error {
	if err := s.conn.Ping(ctx); err != nil {
		return mapError(err, "probe failed")
	}
	return nil
}

func (s *session) Query(ctx context.Context, sql string, args ...any) (database.Rows, error) {
	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return &pgRows{rows: rows}, nil
}

func (s *session) Close() error {
	return s.conn.Close(context.Background())
}

// --- pgRows wraps pgx.Rows ---

type pgRows struct {
	rows pgx.Rows
}

func (r *pgRows) Next() bool             { return r.rows.Next() }
func (r *pgRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }

func (r *pgRows) Columns() ([]string, error) {
	fields := r.rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}
	return cols, nil
}

func (r *pgRows) Close()     { r.rows.Close() }
func (r *pgRows) Err() error { return r.rows.Err() }
