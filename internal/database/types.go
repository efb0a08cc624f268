package database

import (
	"strconv"
	"strings"
	"time"
)

// QueryKind separates read statements from mutating ones. Only reads are
// eligible for result caching.
type QueryKind int

const (
	KindRead QueryKind = iota
	KindMutation
)

// LimitHint expresses the caller's row-limit request: an explicit positive
// count, "all data" (safety-capped by the executor), or the default.
type LimitHint struct {
	rows int
	all  bool
}

// LimitRows requests at most n rows. Non-positive n means the default.
func LimitRows(n int) LimitHint {
	if n <= 0 {
		return LimitHint{}
	}
	return LimitHint{rows: n}
}

// LimitAll requests the full result set. A safety cap is still applied
// before execution.
func LimitAll() LimitHint {
	return LimitHint{all: true}
}

// LimitDefault requests the standard limit.
func LimitDefault() LimitHint {
	return LimitHint{}
}

// Rows returns the explicit row limit, if one was requested.
func (h LimitHint) Rows() (int, bool) {
	return h.rows, h.rows > 0
}

// All reports whether the caller asked for the full result set.
func (h LimitHint) All() bool {
	return h.all
}

// Key returns a stable token for cache keying.
func (h LimitHint) Key() string {
	switch {
	case h.all:
		return "all"
	case h.rows > 0:
		return strconv.Itoa(h.rows)
	default:
		return "default"
	}
}

// Query is an immutable statement plus its execution budget. Rewrites
// produce new values via WithText; the original is never mutated.
type Query struct {
	// Text is the raw SQL statement.
	Text string

	// Hint is the caller's row-limit request.
	Hint LimitHint

	// Timeout bounds execution. Zero means the executor default.
	Timeout time.Duration
}

// NewQuery builds a Query with the default limit hint.
func NewQuery(text string) Query {
	return Query{Text: text}
}

// WithText returns a copy of q carrying the rewritten statement.
func (q Query) WithText(text string) Query {
	q.Text = text
	return q
}

// Kind classifies the statement by its leading keyword. SELECT and
// WITH-prefixed statements are reads; everything else is a mutation.
func (q Query) Kind() QueryKind {
	head := strings.ToUpper(strings.TrimSpace(q.Text))
	if strings.HasPrefix(head, "SELECT") || strings.HasPrefix(head, "WITH") ||
		strings.HasPrefix(head, "SHOW") || strings.HasPrefix(head, "DESCRIBE") {
		return KindRead
	}
	return KindMutation
}

// Record is one result row as a column-name → value mapping. Column order is
// carried separately on Result, matching the backend's reported order.
type Record map[string]any

// Result is the fully materialized outcome of one execution. It is immutable
// after return and safe to share between callers (cache hits return the same
// value).
type Result struct {
	// Columns in the backend's reported order.
	Columns []string

	// Rows in the order the backend yielded them.
	Rows []Record

	// RowCount is len(Rows) unless a collaborator substituted a better
	// total (e.g. a preview's COUNT query).
	RowCount int

	// Complete is false when iteration stopped early.
	Complete bool
}
