package database

import (
	"fmt"
	"strings"
)

// validOps is the allowlist of comparison operators for WHERE clauses.
// Any operator not in this list is rejected to prevent SQL injection
// through the operator position (which cannot be parameterized).
var validOps = map[string]bool{
	"=":    true,
	"!=":   true,
	"<>":   true,
	"<":    true,
	">":    true,
	"<=":   true,
	">=":   true,
	"LIKE": true,
}

// SelectBuilder constructs a SELECT statement using a fluent API. Values are
// never interpolated into the SQL string, always passed as args. Row limits
// and offsets are emitted inline (integers only) in the dialect's own syntax,
// TOP n for SQL Server and LIMIT/OFFSET elsewhere, so the output can be fed
// straight into the executor as statement text.
//
// Usage (SQL Server):
//
//	sql, args, err := Select("dbo.orders", DialectSQLServer).
//	    Columns("id", "status").
//	    Where("status", "=", "open").
//	    OrderBy("id", Desc).
//	    Limit(20).
//	    Build()
type SelectBuilder struct {
	table   string
	dialect Dialect
	columns []string
	where   []whereClause
	orderBy []orderClause
	limit   *int
	offset  *int
}

// SortDirection controls the ORDER BY direction.
type SortDirection bool

const (
	Asc  SortDirection = false
	Desc SortDirection = true
)

type whereClause struct {
	column string
	op     string
	value  any
}

type orderClause struct {
	column string
	dir    SortDirection
}

// Select starts a new SelectBuilder for the given table and dialect.
func Select(table string, d Dialect) *SelectBuilder {
	return &SelectBuilder{table: table, dialect: d}
}

// Columns restricts the SELECT to the specified columns.
// If not called, SELECT * is used.
func (b *SelectBuilder) Columns(cols ...string) *SelectBuilder {
	b.columns = cols
	return b
}

// Where adds a WHERE condition. op must be one of the allowed comparison
// operators (=, !=, <, >, <=, >=, LIKE).
// Multiple calls are combined with AND.
func (b *SelectBuilder) Where(column, op string, value any) *SelectBuilder {
	b.where = append(b.where, whereClause{column, op, value})
	return b
}

// OrderBy appends an ORDER BY clause for the given column and direction.
func (b *SelectBuilder) OrderBy(column string, dir SortDirection) *SelectBuilder {
	b.orderBy = append(b.orderBy, orderClause{column, dir})
	return b
}

// Limit sets the maximum number of rows to return.
func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	b.limit = &n
	return b
}

// Offset sets the number of rows to skip. SQL Server emits OFFSET … ROWS
// FETCH NEXT … ROWS ONLY, which requires an OrderBy.
func (b *SelectBuilder) Offset(n int) *SelectBuilder {
	b.offset = &n
	return b
}

// Build produces the final SQL string and argument slice.
// Returns an error if any WHERE operator is not in the allowlist.
func (b *SelectBuilder) Build() (string, []any, error) {
	// --- column list ---
	cols := "*"
	if len(b.columns) > 0 {
		quoted := make([]string, len(b.columns))
		for i, c := range b.columns {
			quoted[i] = QuoteIdent(c)
		}
		cols = strings.Join(quoted, ", ")
	}

	topStyle := b.dialect.LimitStyle() == LimitStyleTop

	var sb strings.Builder
	sb.WriteString("SELECT ")
	if topStyle && b.limit != nil && b.offset == nil {
		fmt.Fprintf(&sb, "TOP %d ", *b.limit)
	}
	sb.WriteString(cols)
	sb.WriteString(" FROM ")
	sb.WriteString(quoteQualified(b.table))

	var args []any
	argIdx := 1

	// --- WHERE ---
	if len(b.where) > 0 {
		parts := make([]string, 0, len(b.where))
		for _, w := range b.where {
			op := strings.ToUpper(w.op)
			if !validOps[op] {
				return "", nil, NewError(ErrKindInvalidInput,
					fmt.Sprintf("unsupported WHERE operator: %q", w.op))
			}
			parts = append(parts, fmt.Sprintf("%s %s %s", QuoteIdent(w.column), op, b.placeholder(argIdx)))
			args = append(args, w.value)
			argIdx++
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(parts, " AND "))
	}

	// --- ORDER BY ---
	if len(b.orderBy) > 0 {
		parts := make([]string, len(b.orderBy))
		for i, o := range b.orderBy {
			dir := "ASC"
			if o.dir == Desc {
				dir = "DESC"
			}
			parts[i] = fmt.Sprintf("%s %s", QuoteIdent(o.column), dir)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
	}

	// --- LIMIT / OFFSET ---
	if topStyle {
		if b.offset != nil {
			// OFFSET/FETCH requires an ordering clause; (SELECT NULL) is
			// the no-op ordering SQL Server accepts.
			if len(b.orderBy) == 0 {
				sb.WriteString(" ORDER BY (SELECT NULL)")
			}
			fmt.Fprintf(&sb, " OFFSET %d ROWS", *b.offset)
			if b.limit != nil {
				fmt.Fprintf(&sb, " FETCH NEXT %d ROWS ONLY", *b.limit)
			}
		}
	} else {
		if b.limit != nil {
			fmt.Fprintf(&sb, " LIMIT %d", *b.limit)
		}
		if b.offset != nil {
			fmt.Fprintf(&sb, " OFFSET %d", *b.offset)
		}
	}

	return sb.String(), args, nil
}

// placeholder returns the correct parameter placeholder for the dialect.
// Postgres: $1, $2, …   SQL Server: @p1, @p2, …   MySQL/SQLite: ?
func (b *SelectBuilder) placeholder(idx int) string {
	switch b.dialect {
	case DialectPostgres:
		return fmt.Sprintf("$%d", idx)
	case DialectSQLServer:
		return fmt.Sprintf("@p%d", idx)
	default:
		return "?"
	}
}

// QuoteIdent wraps a SQL identifier in double-quotes (ANSI standard).
// This safely handles reserved words and mixed-case names. SQL Server
// accepts double-quoted identifiers under QUOTED_IDENTIFIER, which is on
// by default for ODBC and TDS sessions.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteQualified quotes a possibly schema-qualified name part by part.
func quoteQualified(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = QuoteIdent(p)
	}
	return strings.Join(parts, ".")
}
