// Package metadata answers "what can I query" questions: the merged table
// catalog across the backend and the local store, per-table schemas, and
// small previews. Catalog answers are cached; a backend that is down
// degrades the catalog to uploaded tables instead of failing it.
package metadata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/koustreak/DatFlow/internal/cache"
	"github.com/koustreak/DatFlow/internal/database"
	"github.com/koustreak/DatFlow/internal/localstore"
	"github.com/koustreak/DatFlow/internal/logger"
	"github.com/koustreak/DatFlow/internal/telemetry"
)

// Source values for TableEntry.
const (
	SourceBackend  = "backend"
	SourceUploaded = "uploaded"
)

// TableEntry is one row of the merged catalog.
type TableEntry struct {
	Name        string `json:"name"`
	FullName    string `json:"full_name"`
	Description string `json:"description,omitempty"`
	Source      string `json:"source"`
}

// ColumnInfo describes one column of a table, from either source.
type ColumnInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	Default  string `json:"default,omitempty"`
}

// Preview is a small sample of a table.
type Preview struct {
	Columns   []string          `json:"columns"`
	Rows      []database.Record `json:"rows"`
	TotalRows int               `json:"total_rows"`
}

// Executor runs guarded statements against the backend.
type Executor interface {
	Execute(ctx context.Context, q database.Query) (*database.Result, error)
	Dialect() database.Dialect
}

// Config tunes one Service.
type Config struct {
	// DefaultSchema qualifies bare table names in catalog lookups.
	DefaultSchema string

	// Timeout bounds each catalog statement.
	Timeout time.Duration

	SchemaTTL    time.Duration
	TableListTTL time.Duration

	Logger  *logger.Logger
	Metrics *telemetry.Metrics
}

func (c *Config) withDefaults() {
	if c.DefaultSchema == "" {
		c.DefaultSchema = "dbo"
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.SchemaTTL <= 0 {
		c.SchemaTTL = 900 * time.Second
	}
	if c.TableListTTL <= 0 {
		c.TableListTTL = 600 * time.Second
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}
	if c.Metrics == nil {
		c.Metrics = telemetry.NewNop()
	}
}

// Service serves catalog and schema questions.
type Service struct {
	exec   Executor
	store  *localstore.Store
	caches *cache.Tiered
	cfg    Config
	log    *logger.Logger
	met    *telemetry.Metrics

	schemaFlight singleflight.Group
}

// New builds a Service. caches may be nil for an uncached service.
func New(exec Executor, store *localstore.Store, caches *cache.Tiered, cfg Config) *Service {
	cfg.withDefaults()
	if caches == nil {
		caches = cache.NewTiered(false)
	}
	return &Service{
		exec:   exec,
		store:  store,
		caches: caches,
		cfg:    cfg,
		log:    cfg.Logger.With().Str("component", "metadata").Logger(),
		met:    cfg.Metrics,
	}
}

// ListTables returns the merged catalog. With includeBackend the backend
// catalog and the local store are queried concurrently; a backend failure
// is logged and the catalog degrades to uploaded tables only.
func (s *Service) ListTables(ctx context.Context, includeBackend bool) ([]TableEntry, error) {
	key := cache.TablesKey(includeBackend)
	if v, ok := s.caches.Tables.Get(key); ok {
		s.met.CacheHits.WithLabelValues(telemetry.TierTables).Inc()
		return v.([]TableEntry), nil
	}
	s.met.CacheMisses.WithLabelValues(telemetry.TierTables).Inc()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	var backend, uploaded []TableEntry
	g, gctx := errgroup.WithContext(ctx)

	if includeBackend {
		g.Go(func() error {
			entries, err := s.backendTables(gctx)
			if err != nil {
				// Uploaded tables stay usable while the backend is down.
				s.log.ErrorWith("backend catalog unavailable", err, nil)
				return nil
			}
			backend = entries
			return nil
		})
	}
	g.Go(func() error {
		tables, err := s.store.UploadedTables(gctx)
		if err != nil {
			return err
		}
		uploaded = lo.Map(tables, func(t localstore.UploadedTable, _ int) TableEntry {
			desc := ""
			if t.OriginalFilename != "" {
				desc = fmt.Sprintf("uploaded from %s (%d rows)", t.OriginalFilename, t.RowCount)
			}
			return TableEntry{Name: t.Name, FullName: t.Name, Description: desc, Source: SourceUploaded}
		})
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := lo.UniqBy(append(uploaded, backend...), func(e TableEntry) string {
		return strings.ToLower(e.FullName)
	})

	s.caches.Tables.Put(key, merged, s.cfg.TableListTTL)
	return merged, nil
}

func (s *Service) backendTables(ctx context.Context) ([]TableEntry, error) {
	q := database.NewQuery(tableListQuery(s.exec.Dialect()))
	q.Timeout = s.cfg.Timeout

	res, err := s.exec.Execute(ctx, q)
	if err != nil {
		return nil, err
	}

	fullCol, _ := database.ResolveColumn(res.Columns, "full_name", "fullName", "name")
	nameCol, _ := database.ResolveColumn(res.Columns, "table_name", "tableName", "name")
	descCol, _ := database.ResolveColumn(res.Columns, "description", "table_comment", "comment")

	entries := make([]TableEntry, 0, len(res.Rows))
	for _, rec := range res.Rows {
		e := TableEntry{Source: SourceBackend}
		e.FullName = asString(rec[fullCol])
		e.Name = asString(rec[nameCol])
		if descCol != "" {
			e.Description = asString(rec[descCol])
		}
		if e.Name == "" {
			continue
		}
		if e.FullName == "" {
			e.FullName = e.Name
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// GetSchema describes one table. Uploaded tables resolve locally; anything
// else goes to the backend catalog. Concurrent lookups for the same table
// share one fetch.
func (s *Service) GetSchema(ctx context.Context, table string) ([]ColumnInfo, error) {
	key := cache.SchemaKey(table)
	if v, ok := s.caches.Schemas.Get(key); ok {
		s.met.CacheHits.WithLabelValues(telemetry.TierSchemas).Inc()
		return v.([]ColumnInfo), nil
	}
	s.met.CacheMisses.WithLabelValues(telemetry.TierSchemas).Inc()

	v, err, _ := s.schemaFlight.Do(key, func() (any, error) {
		cols, err := s.fetchSchema(ctx, table)
		if err != nil {
			return nil, err
		}
		s.caches.Schemas.Put(key, cols, s.cfg.SchemaTTL)
		return cols, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]ColumnInfo), nil
}

func (s *Service) fetchSchema(ctx context.Context, table string) ([]ColumnInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	if strings.HasPrefix(strings.ToLower(table), localstore.TablePrefix) {
		defs, err := s.store.TableColumns(ctx, table)
		if err != nil {
			return nil, err
		}
		return lo.Map(defs, func(d localstore.ColumnDef, _ int) ColumnInfo {
			return ColumnInfo{Name: d.Name, Type: d.Type, Nullable: true}
		}), nil
	}

	schema, name := splitQualified(table, s.cfg.DefaultSchema)
	q := database.NewQuery(columnListQuery(s.exec.Dialect(), schema, name))
	q.Timeout = s.cfg.Timeout

	res, err := s.exec.Execute(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return nil, database.NewError(database.ErrKindNotFound,
			fmt.Sprintf("table %s not found", table))
	}

	nameCol, _ := database.ResolveColumn(res.Columns, "column_name", "columnName", "name")
	typeCol, _ := database.ResolveColumn(res.Columns, "data_type", "dataType", "type")
	nullCol, _ := database.ResolveColumn(res.Columns, "is_nullable", "isNullable", "nullable")
	defCol, _ := database.ResolveColumn(res.Columns, "column_default", "columnDefault", "default")

	cols := make([]ColumnInfo, 0, len(res.Rows))
	for _, rec := range res.Rows {
		c := ColumnInfo{
			Name: asString(rec[nameCol]),
			Type: asString(rec[typeCol]),
		}
		if nullCol != "" {
			c.Nullable = strings.EqualFold(asString(rec[nullCol]), "YES")
		}
		if defCol != "" {
			c.Default = asString(rec[defCol])
		}
		cols = append(cols, c)
	}
	return cols, nil
}

// PreviewTable returns up to limit rows of a table along with its total row
// count. The count is best effort; if it fails the preview size stands in.
func (s *Service) PreviewTable(ctx context.Context, table string, limit int) (*Preview, error) {
	if limit <= 0 {
		limit = 5
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	if strings.HasPrefix(strings.ToLower(table), localstore.TablePrefix) {
		return s.previewLocal(ctx, table, limit)
	}

	d := s.exec.Dialect()
	sample, _, err := database.Select(table, d).Limit(limit).Build()
	if err != nil {
		return nil, err
	}
	res, err := s.exec.Execute(ctx, database.NewQuery(sample))
	if err != nil {
		return nil, err
	}

	p := &Preview{Columns: res.Columns, Rows: res.Rows, TotalRows: res.RowCount}
	if total, ok := s.countRows(ctx, table); ok {
		p.TotalRows = total
	}
	return p, nil
}

func (s *Service) previewLocal(ctx context.Context, table string, limit int) (*Preview, error) {
	sample, args, err := database.Select(table, database.DialectSQLite).Limit(limit).Build()
	if err != nil {
		return nil, err
	}
	res, err := s.store.Query(ctx, sample, args...)
	if err != nil {
		return nil, err
	}

	p := &Preview{Columns: res.Columns, Rows: res.Rows, TotalRows: res.RowCount}
	count, err := s.store.Query(ctx,
		fmt.Sprintf("SELECT COUNT(*) AS total FROM %s", database.QuoteIdent(table)))
	if err == nil && len(count.Rows) == 1 {
		if v, ok := database.ResolveValue(count.Rows[0], count.Columns, "total"); ok {
			if n, ok := asInt(v); ok {
				p.TotalRows = n
			}
		}
	}
	return p, nil
}

func (s *Service) countRows(ctx context.Context, table string) (int, bool) {
	res, err := s.exec.Execute(ctx, database.NewQuery(
		fmt.Sprintf("SELECT COUNT(*) AS total FROM %s", table)))
	if err != nil || len(res.Rows) != 1 {
		return 0, false
	}
	v, ok := database.ResolveValue(res.Rows[0], res.Columns, "total")
	if !ok {
		return 0, false
	}
	return asInt(v)
}

// MaterializeUpload stores parsed rows as an uploaded table and drops the
// stale catalog entries.
func (s *Service) MaterializeUpload(ctx context.Context, table string, columns []string, rows [][]any, meta localstore.UploadMeta) error {
	if err := s.store.Materialize(ctx, table, columns, rows, meta); err != nil {
		return err
	}
	s.caches.InvalidateTables()
	s.caches.Schemas.Invalidate(cache.SchemaKey(table))
	return nil
}

// DeleteUpload removes an uploaded table and drops the stale catalog
// entries.
func (s *Service) DeleteUpload(ctx context.Context, table string) error {
	if err := s.store.DeleteTable(ctx, table); err != nil {
		return err
	}
	s.caches.InvalidateTables()
	s.caches.Schemas.Invalidate(cache.SchemaKey(table))
	return nil
}

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int64:
		return int(x), true
	case int32:
		return int(x), true
	case int:
		return x, true
	case float64:
		return int(x), true
	case []byte:
		var n int
		if _, err := fmt.Sscanf(string(x), "%d", &n); err == nil {
			return n, true
		}
	}
	return 0, false
}
