// Package sqlserver implements database.Connector for Microsoft SQL Server
// over go-mssqldb. Sessions are dedicated *sql.Conn handles; pooling policy
// belongs to the pool package, so the shared *sql.DB here is configured as a
// pure connection factory.
package sqlserver

import (
	"context"
	"database/sql"

	_ "github.com/microsoft/go-mssqldb" // register "sqlserver" driver

	"github.com/koustreak/DatFlow/internal/database"
)

// Connector produces SQL Server sessions.
type Connector struct {
	db *sql.DB
}

// New validates the DSN and returns a Connector. No connection is attempted
// until Open; a backend that is down at startup only degrades the pool.
func New(dsn string) (*Connector, error) {
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, database.WrapError(database.ErrKindConnectionFailed, "invalid DSN", err)
	}

	// The pool package owns lifecycle; keep nothing idle here so a closed
	// session really closes.
	db.SetMaxIdleConns(0)
	db.SetMaxOpenConns(0)

	return &Connector{db: db}, nil
}

func (c *Connector) Name() string { return "sqlserver" }

func (c *Connector) Dialect() database.Dialect { return database.DialectSQLServer }

// Open establishes one dedicated session.
func (c *Connector) Open(ctx context.Context) (database.Conn, error) {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, mapError(err, "failed to open connection")
	}
	return &session{conn: conn}, nil
}

// Close releases the shared handle. Open sessions survive until their own
// Close.
func (c *Connector) Close() error {
	return c.db.Close()
}

// --- session wraps one *sql.Conn ---

type session struct {
	conn *sql.Conn
}

func (s *session) Ping(ctx context.Context) error {
	if err := s.conn.PingContext(ctx); err != nil {
		return mapError(err, "probe failed")
	}
	return nil
}

func (s *session) Query(ctx context.Context, query string, args ...any) (database.Rows, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return &sqlRows{rows: rows}, nil
}

func (s *session) Close() error {
	return s.conn.Close()
}

// --- sqlRows wraps *sql.Rows ---

type sqlRows struct {
	rows *sql.Rows
}

func (r *sqlRows) Next() bool                 { return r.rows.Next() }
func (r *sqlRows) Scan(dest ...any) error     { return r.rows.Scan(dest...) }
func (r *sqlRows) Columns() ([]string, error) { return r.rows.Columns() }
func (r *sqlRows) Close()                     { _ = r.rows.Close() }
func (r *sqlRows) Err() error                 { return r.rows.Err() }
