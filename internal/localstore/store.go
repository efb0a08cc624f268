// Package localstore is the SQLite-backed home of locally managed data:
// uploaded tables materialized by the ingestion collaborator, their upload
// metadata, and the query history. Everything here speaks the SQLite
// dialect, which is why statements targeting uploaded tables may carry
// LIMIT even when the primary backend is SQL Server.
package localstore

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // register "sqlite3" driver

	"github.com/koustreak/DatFlow/internal/database"
	"github.com/koustreak/DatFlow/internal/logger"
)

// TablePrefix marks every uploaded table. MetadataService and DialectGuard
// key off the same prefix.
const TablePrefix = "uploaded_"

var validTableName = regexp.MustCompile(`^` + TablePrefix + `[A-Za-z0-9_]+$`)

// ColumnDef describes one column of an uploaded table.
type ColumnDef struct {
	Name string
	Type string
}

// UploadedTable describes one locally materialized table.
type UploadedTable struct {
	Name             string
	Columns          []ColumnDef
	RowCount         int
	OriginalFilename string
}

// HistoryEntry is one remembered query.
type HistoryEntry struct {
	Text      string
	CreatedAt time.Time
}

// UploadMeta records where an uploaded table came from.
type UploadMeta struct {
	OriginalFilename string
	FileExtension    string
}

// Store wraps the local SQLite database.
type Store struct {
	db  *sql.DB
	log *logger.Logger
}

// Open creates (or opens) the store at path and ensures the bookkeeping
// tables exist. SQLite allows one writer; the handle is capped accordingly,
// which also makes ":memory:" stores behave across calls.
func Open(path string, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Nop()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, database.WrapError(database.ErrKindConnectionFailed, "failed to open local store", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, log: log.With().Str("component", "localstore").Logger()}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS recent_queries (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			query_text TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS table_metadata (
			table_name        TEXT PRIMARY KEY,
			original_filename TEXT,
			file_extension    TEXT,
			upload_date       TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`

	if _, err := s.db.Exec(ddl); err != nil {
		return database.WrapError(database.ErrKindBackend, "failed to initialize local store", err)
	}
	return nil
}

// Close releases the underlying handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Materialize creates (or replaces) an uploaded table from already-parsed
// rows. Parsing files into rows is the ingestion collaborator's job; callers
// must invalidate the table-list cache afterwards so the new table shows up.
func (s *Store) Materialize(ctx context.Context, table string, columns []string, rows [][]any, meta UploadMeta) error {
	if !validTableName.MatchString(table) {
		return database.NewError(database.ErrKindInvalidInput,
			fmt.Sprintf("table name must match %s", validTableName))
	}
	if len(columns) == 0 {
		return database.NewError(database.ErrKindInvalidInput, "at least one column is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return database.WrapError(database.ErrKindBackend, "failed to begin upload transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", database.QuoteIdent(table))); err != nil {
		return database.WrapError(database.ErrKindBackend, "failed to replace existing table", err)
	}

	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = fmt.Sprintf("%s %s", database.QuoteIdent(col), affinityFor(rows, i))
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", database.QuoteIdent(table), strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return database.WrapError(database.ErrKindBackend, "failed to create uploaded table", err)
	}

	placeholders := strings.TrimRight(strings.Repeat("?,", len(columns)), ",")
	insert := fmt.Sprintf("INSERT INTO %s VALUES (%s)", database.QuoteIdent(table), placeholders)
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return database.WrapError(database.ErrKindBackend, "failed to prepare insert", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if len(row) != len(columns) {
			return database.NewError(database.ErrKindInvalidInput, "row width does not match column count")
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return database.WrapError(database.ErrKindBackend, "failed to insert row", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO table_metadata (table_name, original_filename, file_extension) VALUES (?, ?, ?)`,
		table, meta.OriginalFilename, meta.FileExtension); err != nil {
		return database.WrapError(database.ErrKindBackend, "failed to record upload metadata", err)
	}

	if err := tx.Commit(); err != nil {
		return database.WrapError(database.ErrKindBackend, "failed to commit upload", err)
	}

	s.log.Infof("materialized %s with %d rows", table, len(rows))
	return nil
}

// Query runs a read statement against the local store and materializes the
// result. Used for statements that target uploaded tables.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*database.Result, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, database.WrapError(database.ErrKindBackend, "local query failed", err)
	}

	recs, cols, err := database.ScanRows(&sqliteRows{rows: rows})
	if err != nil {
		return nil, err
	}
	return &database.Result{
		Columns:  cols,
		Rows:     recs,
		RowCount: len(recs),
		Complete: true,
	}, nil
}

// UploadedTables lists every locally materialized table with its columns,
// row count and upload origin.
func (s *Store) UploadedTables(ctx context.Context) ([]UploadedTable, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table'
		  AND name LIKE ? || '%'
		  AND name NOT LIKE 'sqlite_%'
		ORDER BY name`, TablePrefix)
	if err != nil {
		return nil, database.WrapError(database.ErrKindBackend, "failed to list uploaded tables", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, database.WrapError(database.ErrKindBackend, "failed to scan table name", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, database.WrapError(database.ErrKindBackend, "error iterating tables", err)
	}

	tables := make([]UploadedTable, 0, len(names))
	for _, name := range names {
		t := UploadedTable{Name: name}

		cols, err := s.TableColumns(ctx, name)
		if err != nil {
			return nil, err
		}
		t.Columns = cols

		if err := s.db.QueryRowContext(ctx,
			fmt.Sprintf("SELECT COUNT(*) FROM %s", database.QuoteIdent(name))).Scan(&t.RowCount); err != nil {
			return nil, database.WrapError(database.ErrKindBackend, "failed to count rows", err)
		}

		var filename sql.NullString
		err = s.db.QueryRowContext(ctx,
			`SELECT original_filename FROM table_metadata WHERE table_name = ?`, name).Scan(&filename)
		if err != nil && err != sql.ErrNoRows {
			return nil, database.WrapError(database.ErrKindBackend, "failed to read upload metadata", err)
		}
		t.OriginalFilename = filename.String

		tables = append(tables, t)
	}
	return tables, nil
}

// TableColumns resolves the schema of one uploaded table.
func (s *Store) TableColumns(ctx context.Context, table string) ([]ColumnDef, error) {
	if !validTableName.MatchString(table) {
		return nil, database.NewError(database.ErrKindInvalidInput, "not an uploaded table")
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", database.QuoteIdent(table)))
	if err != nil {
		return nil, database.WrapError(database.ErrKindBackend, "failed to read table info", err)
	}
	defer rows.Close()

	var cols []ColumnDef
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return nil, database.WrapError(database.ErrKindBackend, "failed to scan column info", err)
		}
		cols = append(cols, ColumnDef{Name: name, Type: typ})
	}
	if err := rows.Err(); err != nil {
		return nil, database.WrapError(database.ErrKindBackend, "error iterating columns", err)
	}
	if len(cols) == 0 {
		return nil, database.NewError(database.ErrKindNotFound,
			fmt.Sprintf("table %s not found", table))
	}
	return cols, nil
}

// DeleteTable drops an uploaded table and its metadata. Callers must
// invalidate the table-list cache afterwards.
func (s *Store) DeleteTable(ctx context.Context, table string) error {
	if !validTableName.MatchString(table) {
		return database.NewError(database.ErrKindInvalidInput, "not an uploaded table")
	}

	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&one)
	if err == sql.ErrNoRows {
		return database.NewError(database.ErrKindNotFound,
			fmt.Sprintf("table %s not found", table))
	}
	if err != nil {
		return database.WrapError(database.ErrKindBackend, "failed to check table existence", err)
	}

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", database.QuoteIdent(table))); err != nil {
		return database.WrapError(database.ErrKindBackend, "failed to drop table", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM table_metadata WHERE table_name = ?`, table); err != nil {
		return database.WrapError(database.ErrKindBackend, "failed to delete upload metadata", err)
	}

	s.log.Infof("deleted uploaded table %s", table)
	return nil
}

// SaveQuery appends a statement to the history.
func (s *Store) SaveQuery(ctx context.Context, text string) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO recent_queries (query_text) VALUES (?)`, strings.TrimSpace(text)); err != nil {
		return database.WrapError(database.ErrKindBackend, "failed to save query history", err)
	}
	return nil
}

// RecentQueries returns the newest entries, most recent first.
func (s *Store) RecentQueries(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT query_text, created_at
		FROM recent_queries
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, database.WrapError(database.ErrKindBackend, "failed to read query history", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.Text, &e.CreatedAt); err != nil {
			return nil, database.WrapError(database.ErrKindBackend, "failed to scan history entry", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, database.WrapError(database.ErrKindBackend, "error iterating history", err)
	}
	return entries, nil
}

// affinityFor derives a column affinity from the first non-nil value in the
// column. Everything else stores fine under TEXT affinity.
func affinityFor(rows [][]any, col int) string {
	for _, row := range rows {
		if col >= len(row) || row[col] == nil {
			continue
		}
		switch row[col].(type) {
		case int, int32, int64, bool:
			return "INTEGER"
		case float32, float64:
			return "REAL"
		default:
			return "TEXT"
		}
	}
	return "TEXT"
}

// --- sqliteRows adapts *sql.Rows to database.Rows ---

type sqliteRows struct {
	rows *sql.Rows
}

func (r *sqliteRows) Next() bool                 { return r.rows.Next() }
func (r *sqliteRows) Scan(dest ...any) error     { return r.rows.Scan(dest...) }
func (r *sqliteRows) Columns() ([]string, error) { return r.rows.Columns() }
func (r *sqliteRows) Close()                     { _ = r.rows.Close() }
func (r *sqliteRows) Err() error                 { return r.rows.Err() }
