package database

import "context"

// Connector is the factory for backend sessions. The connection pool owns
// the sessions a Connector produces; everything above the pool talks only
// to this interface; callers never import the sqlserver, postgres or
// mysql packages directly.
type Connector interface {
	// Name identifies the driver for logging (e.g. "sqlserver").
	Name() string

	// Dialect reports the SQL variant the backend speaks.
	Dialect() Dialect

	// Open establishes one new backend session.
	Open(ctx context.Context) (Conn, error)

	// Close releases any resources shared across sessions.
	Close() error
}

// Conn is a single live backend session. A Conn is lent to exactly one
// caller at a time; it is not safe for concurrent use.
type Conn interface {
	// Ping runs a cheap probe to verify the session is still usable.
	Ping(ctx context.Context) error

	// Query executes a SQL statement that returns rows.
	Query(ctx context.Context, sql string, args ...any) (Rows, error)

	// Close tears down the session.
	Close() error
}

// Rows is an abstraction over a backend result set.
// Callers must always call Close() when done, even on error.
type Rows interface {
	// Next advances to the next row.
	// Returns false when no more rows exist or on error.
	Next() bool

	// Scan copies the current row's columns into the provided destinations.
	Scan(dest ...any) error

	// Columns returns the column names in the order the backend reported them.
	Columns() ([]string, error)

	// Close releases resources held by the result set.
	Close()

	// Err returns any error encountered during iteration.
	Err() error
}

// Row is an abstraction over a single backend row.
type Row interface {
	Scan(dest ...any) error
}
