package database

// Dialect identifies the SQL variant a backend speaks. The executor uses it
// to pick the legal limiting and pagination syntax before a statement runs.
type Dialect int

const (
	// DialectSQLServer uses TOP n and OFFSET … ROWS FETCH NEXT … ROWS ONLY.
	DialectSQLServer Dialect = iota

	// DialectSQLite uses LIMIT n. Locally materialized uploaded tables
	// live in SQLite, which is why LIMIT is tolerated in statements that
	// target them even when the primary backend is SQL Server.
	DialectSQLite

	// DialectPostgres uses LIMIT n.
	DialectPostgres

	// DialectMySQL uses LIMIT n.
	DialectMySQL
)

// LimitStyle is the family of row-limiting syntax a dialect accepts.
type LimitStyle int

const (
	// LimitStyleTop prefixes the select list: SELECT TOP n …
	LimitStyleTop LimitStyle = iota

	// LimitStyleLimit suffixes the statement: … LIMIT n
	LimitStyleLimit
)

// LimitStyle returns the limiting-syntax family for the dialect.
func (d Dialect) LimitStyle() LimitStyle {
	if d == DialectSQLServer {
		return LimitStyleTop
	}
	return LimitStyleLimit
}

func (d Dialect) String() string {
	switch d {
	case DialectSQLServer:
		return "sqlserver"
	case DialectSQLite:
		return "sqlite"
	case DialectPostgres:
		return "postgres"
	case DialectMySQL:
		return "mysql"
	default:
		return "unknown"
	}
}
