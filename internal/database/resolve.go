package database

import "strings"

// ResolveColumn picks the first candidate name present in columns, matching
// case-insensitively. Backends report metadata columns under different names
// (sys.tables vs information_schema vs SHOW TABLES output); callers list the
// names they accept and get a typed outcome instead of guessing positionally.
func ResolveColumn(columns []string, candidates ...string) (string, bool) {
	for _, want := range candidates {
		for _, col := range columns {
			if strings.EqualFold(col, want) {
				return col, true
			}
		}
	}
	return "", false
}

// ResolveValue looks up a record value under the first matching candidate
// column name.
func ResolveValue(rec Record, columns []string, candidates ...string) (any, bool) {
	col, ok := ResolveColumn(columns, candidates...)
	if !ok {
		return nil, false
	}
	v, ok := rec[col]
	return v, ok
}
