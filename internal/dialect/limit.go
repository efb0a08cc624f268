package dialect

import (
	"fmt"
	"strings"

	"github.com/koustreak/DatFlow/internal/database"
)

// ApplyLimit injects an automatic row limit into q per the limiting policy:
//
//   - explicit limit N        → limiting clause of exactly N
//   - "all data" requested    → safety cap (5000 with DISTINCT/GROUP BY,
//     10000 otherwise)
//   - neither                 → default limiting clause of 1000
//
// Nothing is injected when the statement already carries a limiting or
// pagination clause (pagination takes precedence), is not a SELECT, or is
// metadata-only (row-count aggregates, schema-description statements).
// A new Query is returned; the input is never mutated.
func (g *Guard) ApplyLimit(q database.Query, d database.Dialect) database.Query {
	text := q.Text

	if !reSelect.MatchString(text) {
		return q
	}
	if reMetaCount.MatchString(text) || reDescribe.MatchString(text) {
		return q
	}
	hasPagination := reOffset.MatchString(text) || reFetch.MatchString(text)
	hasLimiting := reTop.MatchString(text) || reLimit.MatchString(text)
	if hasPagination || hasLimiting {
		if hasPagination {
			g.log.Debug("statement is paginated; skipping automatic limit")
		}
		return q
	}

	limit := DefaultLimit
	if n, ok := q.Hint.Rows(); ok {
		limit = n
	} else if q.Hint.All() {
		if reGrouping.MatchString(text) {
			limit = SafetyCapGrouped
		} else {
			limit = SafetyCapPlain
		}
		g.log.Infof("capping unlimited query at %d rows", limit)
	}

	return q.WithText(injectLimit(text, d, limit))
}

// injectLimit writes the limiting clause in the dialect's own syntax.
// TOP insertion targets the first SELECT token in the statement, so a CTE
// such as WITH x AS (SELECT …) SELECT … gets the limit on the inner select.
func injectLimit(text string, d database.Dialect, n int) string {
	if d.LimitStyle() == database.LimitStyleLimit {
		return fmt.Sprintf("%s LIMIT %d", strings.TrimRight(strings.TrimSpace(text), ";"), n)
	}

	// TOP goes after DISTINCT when one is present: SELECT DISTINCT TOP n …
	if loc := reDistinct.FindStringIndex(text); loc != nil {
		return text[:loc[1]] + fmt.Sprintf(" TOP %d", n) + text[loc[1]:]
	}
	if loc := reSelect.FindStringIndex(text); loc != nil {
		return text[:loc[1]] + fmt.Sprintf(" TOP %d", n) + text[loc[1]:]
	}
	return text
}

// CacheShape classifies a statement for result-cache TTL selection.
type CacheShape int

const (
	// ShapePlain is any other SELECT.
	ShapePlain CacheShape = iota

	// ShapeAggregate contains a row-count or aggregate construct.
	ShapeAggregate

	// ShapeDistinct contains a duplicate-elimination construct.
	ShapeDistinct
)

// Shape reports the cache shape of the statement text.
func Shape(text string) CacheShape {
	if reAggregate.MatchString(text) {
		return ShapeAggregate
	}
	if strings.Contains(strings.ToUpper(text), "DISTINCT") {
		return ShapeDistinct
	}
	return ShapePlain
}
