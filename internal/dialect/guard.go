// Package dialect validates and rewrites the limiting and pagination
// clauses of a statement for the target backend before it is executed.
// Statement text is treated as untrusted input (queries arrive from users
// and from a text-generation collaborator alike) and the guard's job is to
// make sure exactly one row-limiting construct reaches the backend, in that
// backend's own syntax.
package dialect

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/koustreak/DatFlow/internal/database"
	"github.com/koustreak/DatFlow/internal/logger"
)

// UploadedTablePrefix marks locally materialized tables. Statements that
// target them run against SQLite, so the foreign LIMIT clause is tolerated
// even when the primary backend dialect forbids it.
const UploadedTablePrefix = "uploaded_"

// Automatic limiting policy values.
const (
	// DefaultLimit is injected when the caller gave no explicit limit.
	DefaultLimit = 1000

	// SafetyCapGrouped caps "all data" requests on queries with
	// duplicate-elimination or grouping constructs.
	SafetyCapGrouped = 5000

	// SafetyCapPlain caps all other "all data" requests.
	SafetyCapPlain = 10000
)

// Token detection is case-insensitive over the full statement. Detection is
// deliberately broad (bare keywords) while the rewrite regexes below are
// narrow; a clause the rewrite cannot parse falls through to the appending
// branches instead of being silently mangled.
var (
	reTop       = regexp.MustCompile(`(?i)\bTOP\b`)
	reTopN      = regexp.MustCompile(`(?i)\bTOP\s+(\d+)\s*`)
	reOffset    = regexp.MustCompile(`(?i)\bOFFSET\b`)
	reOffsetN   = regexp.MustCompile(`(?i)\bOFFSET\s+\d+\s+ROWS?\b`)
	reFetch     = regexp.MustCompile(`(?i)\bFETCH\s+(NEXT|FIRST)\b`)
	reLimit     = regexp.MustCompile(`(?i)\bLIMIT\b`)
	reSelect    = regexp.MustCompile(`(?i)\bSELECT\b`)
	reDistinct  = regexp.MustCompile(`(?i)\bSELECT\s+DISTINCT\b`)
	reUploaded  = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+[\["]?` + UploadedTablePrefix + `\w+`)
	reMetaCount = regexp.MustCompile(`(?i)\bCOUNT\s*\(`)
	reDescribe  = regexp.MustCompile(`(?i)\bDESCRIBE\b`)
	reGrouping  = regexp.MustCompile(`(?i)\b(?:DISTINCT|GROUP\s+BY)\b`)
	reAggregate = regexp.MustCompile(`(?i)\b(?:COUNT|SUM|AVG|MIN|MAX)\s*\(`)
	reOrderBy   = regexp.MustCompile(`(?i)\bORDER\s+BY\b`)
)

// Guard rewrites statements for a target dialect. Zero-allocation pass for
// statements that already conform.
type Guard struct {
	log *logger.Logger
}

// New returns a Guard logging through log.
func New(log *logger.Logger) *Guard {
	if log == nil {
		log = logger.Nop()
	}
	return &Guard{log: log}
}

// Rewrite ensures q carries at most one limiting or pagination construct
// that is syntactically legal for d. It returns a new Query; the input is
// never mutated. Statements that already conform pass through unchanged, so
// rewriting an already-rewritten query is a no-op.
func (g *Guard) Rewrite(q database.Query, d database.Dialect) (database.Query, error) {
	text := q.Text

	hasTop := reTop.MatchString(text)
	hasOffset := reOffset.MatchString(text)
	hasFetch := reFetch.MatchString(text)
	hasLimit := reLimit.MatchString(text)

	switch d.LimitStyle() {
	case database.LimitStyleTop:
		if hasLimit && !reUploaded.MatchString(text) {
			return q, database.NewError(database.ErrKindDialect,
				fmt.Sprintf("LIMIT is not valid %s syntax; use TOP or OFFSET … FETCH NEXT", d))
		}
		if hasTop && (hasOffset || hasFetch) {
			rewritten, err := g.resolveTopConflict(text, hasFetch)
			if err != nil {
				return q, err
			}
			g.log.Debugf("rewrote TOP/pagination conflict: %s", rewritten)
			return q.WithText(rewritten), nil
		}
	case database.LimitStyleLimit:
		if hasTop {
			return q, database.NewError(database.ErrKindDialect,
				fmt.Sprintf("TOP is not valid %s syntax; use LIMIT", d))
		}
	}

	return q, nil
}

// resolveTopConflict removes the TOP clause and re-expresses its row count
// through the pagination construct. TOP and OFFSET cannot coexist in the
// same statement, and the OFFSET/FETCH form always wins because it carries
// the ordering the caller asked for.
func (g *Guard) resolveTopConflict(text string, hasFetch bool) (string, error) {
	m := reTopN.FindStringSubmatch(text)
	if m == nil {
		// No parseable row count: strip the bare TOP token and keep the
		// pagination construct as the single limiting clause.
		return collapseSpaces(reTop.ReplaceAllString(text, "")), nil
	}

	n, err := strconv.Atoi(m[1])
	if err != nil {
		return "", database.WrapError(database.ErrKindDialect, "unparseable TOP row count", err)
	}

	stripped := collapseSpaces(strings.Replace(text, m[0], "", 1))

	if hasFetch {
		// A FETCH NEXT/FIRST clause already bounds the rows; stripping
		// TOP leaves exactly one limiting construct.
		return stripped, nil
	}

	// Insert the fetch qualifier immediately after the offset clause.
	if loc := reOffsetN.FindStringIndex(stripped); loc != nil {
		return stripped[:loc[1]] + fmt.Sprintf(" FETCH NEXT %d ROWS ONLY", n) + stripped[loc[1]:], nil
	}

	// The offset clause could not be parsed (e.g. a parameterized offset).
	// Fall back to appending a fresh pagination qualifier after the
	// ordering clause, creating a no-op ordering if the statement has none;
	// OFFSET requires one.
	return paginate(stripped, n), nil
}

// paginate appends "OFFSET 0 ROWS FETCH NEXT n ROWS ONLY", creating the
// no-op ordering clause SQL Server requires when the statement has none.
func paginate(text string, n int) string {
	trimmed := strings.TrimRight(strings.TrimSpace(text), ";")
	if !reOrderBy.MatchString(trimmed) {
		trimmed += " ORDER BY (SELECT NULL)"
	}
	return fmt.Sprintf("%s OFFSET 0 ROWS FETCH NEXT %d ROWS ONLY", trimmed, n)
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
