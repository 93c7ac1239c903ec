package introspection

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"relgraph/internal/naming"
	"relgraph/internal/sqltype"
)

// Queryer provides query access for schema introspection.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// foreignKeyColumn is one KEY_COLUMN_USAGE row.
type foreignKeyColumn struct {
	ColumnName       string
	ReferencedTable  string
	ReferencedColumn string
	ConstraintName   string
}

// tableMeta is the raw metadata of one table before relations are derived.
type tableMeta struct {
	Name        string
	Comment     string
	IsView      bool
	Columns     []Column
	ForeignKeys []foreignKeyColumn
	// UniqueColumns holds columns covered by a single-column unique index.
	UniqueColumns map[string]bool
}

// IntrospectDatabaseContext reads MySQL/TiDB INFORMATION_SCHEMA and builds a
// registry. Views get columns only; base tables also get primary keys,
// foreign keys and single-column unique indexes.
func IntrospectDatabaseContext(ctx context.Context, db Queryer, databaseName string, namer *naming.Namer) (reg *Registry, err error) {
	ctx, span := startSpan(ctx, "introspection.build_registry", attribute.String("db.name", databaseName))
	defer func() {
		recordSpanError(span, err)
		span.End()
	}()
	if namer == nil {
		namer = naming.Default()
	}

	s := schemaReader{db: db, schema: databaseName}
	tables, err := s.tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get tables: %w", err)
	}
	for i := range tables {
		if err := s.fill(ctx, &tables[i]); err != nil {
			return nil, err
		}
	}

	entities := buildEntities(ctx, tables, namer)
	if reg, err = NewRegistry(entities, namer); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("registry.entities", len(entities)))
	return reg, nil
}

// schemaReader runs the INFORMATION_SCHEMA queries for one schema.
type schemaReader struct {
	db     Queryer
	schema string
}

func (s schemaReader) fill(ctx context.Context, table *tableMeta) error {
	var err error
	if table.Columns, err = s.columns(ctx, table.Name); err != nil {
		return fmt.Errorf("failed to get columns for %s: %w", table.Name, err)
	}
	if table.IsView {
		return nil
	}

	primaryKeys, err := s.primaryKeys(ctx, table.Name)
	if err != nil {
		return fmt.Errorf("failed to get primary keys for table %s: %w", table.Name, err)
	}
	for c := range table.Columns {
		table.Columns[c].IsPrimaryKey = slices.Contains(primaryKeys, table.Columns[c].Name)
	}
	if table.ForeignKeys, err = s.foreignKeys(ctx, table.Name); err != nil {
		return fmt.Errorf("failed to get foreign keys for table %s: %w", table.Name, err)
	}
	if table.UniqueColumns, err = s.uniqueColumns(ctx, table.Name); err != nil {
		return fmt.Errorf("failed to get unique indexes for table %s: %w", table.Name, err)
	}
	return nil
}

// scanAll runs query inside a span named after what and scans every row
// with scan.
func scanAll[T any](ctx context.Context, s schemaReader, what, table, query string, scan func(*sql.Rows) (T, error), args ...any) (out []T, err error) {
	attrs := []attribute.KeyValue{attribute.String("db.name", s.schema)}
	if table != "" {
		attrs = append(attrs, attribute.String("db.table", table))
	}
	ctx, span := startSpan(ctx, "introspection.get_"+what, attrs...)
	defer func() {
		recordSpanError(span, err)
		span.End()
	}()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s schemaReader) tables(ctx context.Context) ([]tableMeta, error) {
	const query = `
		SELECT TABLE_NAME, TABLE_TYPE, TABLE_COMMENT
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ?
		AND TABLE_TYPE IN ('BASE TABLE', 'VIEW')
		ORDER BY TABLE_NAME
	`
	return scanAll(ctx, s, "tables", "", query, func(rows *sql.Rows) (tableMeta, error) {
		var t tableMeta
		var tableType string
		var comment sql.NullString
		err := rows.Scan(&t.Name, &tableType, &comment)
		t.IsView = strings.EqualFold(tableType, "VIEW")
		t.Comment = strings.TrimSpace(comment.String)
		return t, err
	}, s.schema)
}

func (s schemaReader) columns(ctx context.Context, table string) ([]Column, error) {
	const query = `
		SELECT COLUMN_NAME, DATA_TYPE, COLUMN_TYPE, COLUMN_COMMENT, IS_NULLABLE
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`
	return scanAll(ctx, s, "columns", table, query, func(rows *sql.Rows) (Column, error) {
		var col Column
		var columnType, isNullable string
		var comment sql.NullString
		if err := rows.Scan(&col.Name, &col.DataType, &columnType, &comment, &isNullable); err != nil {
			return col, err
		}
		col.Comment = strings.TrimSpace(comment.String)
		col.IsNullable = strings.EqualFold(isNullable, "YES")
		col.Kind = columnKind(table, &col, columnType)
		return col, nil
	}, s.schema, table)
}

// columnKind maps the column type and fills EnumValues. tinyint(1) is
// MySQL's boolean; an enum whose values cannot be parsed becomes a string.
func columnKind(table string, col *Column, columnType string) sqltype.Kind {
	if strings.EqualFold(columnType, "tinyint(1)") {
		return sqltype.KindBool
	}
	kind := sqltype.MapToKind(col.DataType)
	if kind != sqltype.KindEnum {
		return kind
	}
	values, err := parseEnumValues(columnType)
	if err != nil {
		slog.Default().Warn("failed to parse enum values; treating column as string",
			slog.String("table", table),
			slog.String("column", col.Name),
			slog.String("type", columnType),
			slog.String("error", err.Error()),
		)
		return sqltype.KindString
	}
	col.EnumValues = values
	return kind
}

func (s schemaReader) primaryKeys(ctx context.Context, table string) ([]string, error) {
	const query = `
		SELECT COLUMN_NAME
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ?
		AND TABLE_NAME = ?
		AND CONSTRAINT_NAME = 'PRIMARY'
		ORDER BY ORDINAL_POSITION
	`
	return scanAll(ctx, s, "primary_keys", table, query, func(rows *sql.Rows) (string, error) {
		var name string
		return name, rows.Scan(&name)
	}, s.schema, table)
}

func (s schemaReader) foreignKeys(ctx context.Context, table string) ([]foreignKeyColumn, error) {
	const query = `
		SELECT COLUMN_NAME, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME, CONSTRAINT_NAME
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ?
			AND TABLE_NAME = ?
			AND REFERENCED_TABLE_NAME IS NOT NULL
		ORDER BY CONSTRAINT_NAME, ORDINAL_POSITION
	`
	return scanAll(ctx, s, "foreign_keys", table, query, func(rows *sql.Rows) (foreignKeyColumn, error) {
		var fk foreignKeyColumn
		return fk, rows.Scan(&fk.ColumnName, &fk.ReferencedTable, &fk.ReferencedColumn, &fk.ConstraintName)
	}, s.schema, table)
}

// uniqueColumns returns the columns covered by a single-column unique index.
func (s schemaReader) uniqueColumns(ctx context.Context, table string) (map[string]bool, error) {
	const query = `
		SELECT INDEX_NAME, COLUMN_NAME
		FROM INFORMATION_SCHEMA.STATISTICS
		WHERE TABLE_SCHEMA = ?
			AND TABLE_NAME = ?
			AND NON_UNIQUE = 0
		ORDER BY INDEX_NAME, SEQ_IN_INDEX
	`
	pairs, err := scanAll(ctx, s, "unique_indexes", table, query, func(rows *sql.Rows) ([2]string, error) {
		var pair [2]string
		return pair, rows.Scan(&pair[0], &pair[1])
	}, s.schema, table)
	if err != nil {
		return nil, err
	}

	byIndex := make(map[string][]string)
	for _, p := range pairs {
		byIndex[p[0]] = append(byIndex[p[0]], p[1])
	}
	unique := make(map[string]bool)
	for _, cols := range byIndex {
		if len(cols) == 1 {
			unique[cols[0]] = true
		}
	}
	return unique, nil
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer("relgraph/introspection").Start(ctx, name, trace.WithAttributes(attrs...))
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
