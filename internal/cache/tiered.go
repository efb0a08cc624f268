package cache

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/koustreak/DatFlow/internal/database"
)

// Tiered bundles the three independently keyed caches the execution layer
// consults: materialized query results, per-table schemas and the table
// inventory.
type Tiered struct {
	Results Store
	Schemas Store
	Tables  Store
}

// NewTiered returns live TTL stores when enabled, Nop stores otherwise.
// Both variants satisfy the same contract, so callers never branch.
func NewTiered(enabled bool) *Tiered {
	if !enabled {
		return &Tiered{Results: NewNop(), Schemas: NewNop(), Tables: NewNop()}
	}
	return &Tiered{Results: NewTTL(), Schemas: NewTTL(), Tables: NewTTL()}
}

// InvalidateTables forces the next inventory read to refetch from the
// backend. Called after any structural change (table created or deleted).
func (t *Tiered) InvalidateTables() {
	t.Tables.InvalidateAll()
}

// ResultKey derives the result-cache key from normalized statement text plus
// the limit hint. Normalization collapses whitespace and strips the trailing
// semicolon so formatting differences do not fragment the cache; the digest
// keeps keys bounded regardless of statement size.
func ResultKey(text string, hint database.LimitHint) string {
	norm := strings.Join(strings.Fields(text), " ")
	norm = strings.TrimRight(norm, "; ")
	return fmt.Sprintf("%x:%s", xxhash.Sum64String(norm), hint.Key())
}

// SchemaKey keys the schema cache by table name.
func SchemaKey(table string) string {
	return strings.ToLower(strings.TrimSpace(table))
}

// TablesKey keys the inventory cache by enumeration scope.
func TablesKey(includeBackend bool) string {
	if includeBackend {
		return "tables:full"
	}
	return "tables:local"
}
