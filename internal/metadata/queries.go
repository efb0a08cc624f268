package metadata

import (
	"fmt"
	"strings"

	"github.com/koustreak/DatFlow/internal/database"
)

// tableListQuery returns the catalog statement that enumerates user tables
// for the backend dialect, with any table-level description the catalog
// keeps. The statement is a plain read so it flows through the executor
// like any other query.
func tableListQuery(d database.Dialect) string {
	switch d {
	case database.DialectSQLServer:
		return `
			SELECT s.name + '.' + t.name AS full_name,
			       t.name AS table_name,
			       CAST(ep.value AS NVARCHAR(500)) AS description
			FROM sys.tables t
			JOIN sys.schemas s ON t.schema_id = s.schema_id
			LEFT JOIN sys.extended_properties ep
			  ON ep.major_id = t.object_id
			 AND ep.minor_id = 0
			 AND ep.name = 'MS_Description'
			ORDER BY s.name, t.name`
	case database.DialectPostgres:
		return `
			SELECT table_schema || '.' || table_name AS full_name,
			       table_name,
			       obj_description((table_schema || '.' || table_name)::regclass) AS description
			FROM information_schema.tables
			WHERE table_type = 'BASE TABLE'
			  AND table_schema NOT IN ('pg_catalog', 'information_schema')
			ORDER BY table_schema, table_name`
	default:
		return `
			SELECT CONCAT(table_schema, '.', table_name) AS full_name,
			       table_name,
			       table_comment AS description
			FROM information_schema.tables
			WHERE table_type = 'BASE TABLE'
			  AND table_schema = DATABASE()
			ORDER BY table_name`
	}
}

// columnListQuery returns the statement that describes one backend table.
// The executor accepts only statement text, so the table name is embedded
// as an escaped literal rather than a bind parameter.
func columnListQuery(d database.Dialect, schema, table string) string {
	switch d {
	case database.DialectSQLServer, database.DialectPostgres:
		return fmt.Sprintf(`
			SELECT column_name, data_type, is_nullable, column_default
			FROM information_schema.columns
			WHERE table_schema = %s AND table_name = %s
			ORDER BY ordinal_position`,
			quoteLiteral(schema), quoteLiteral(table))
	default:
		return fmt.Sprintf(`
			SELECT column_name, data_type, is_nullable, column_default
			FROM information_schema.columns
			WHERE table_schema = DATABASE() AND table_name = %s
			ORDER BY ordinal_position`,
			quoteLiteral(table))
	}
}

// quoteLiteral wraps a string as a SQL literal, doubling embedded quotes.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// splitQualified separates an optionally schema-qualified table name.
func splitQualified(name, defaultSchema string) (schema, table string) {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[:i], name[i+1:]
	}
	return defaultSchema, name
}
