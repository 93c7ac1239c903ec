package resolver

import (
	"fmt"
	"strings"
	"time"

	"relgraph/internal/dbexec"
	"relgraph/internal/introspection"
	"relgraph/internal/planner"
)

// KeyFunc returns the canonical key of a row, or "" when the row has none.
type KeyFunc func(row dbexec.Row) string

// TupleKey encodes one or more key values canonically, so int64(1), 1 and
// "1" produce the same key. Composite keys join their parts in order.
func TupleKey(values ...interface{}) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = canonicalValue(v)
	}
	return strings.Join(parts, "\x1f")
}

func canonicalValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "\x00"
	case []byte:
		return string(val)
	case string:
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case planner.ParentTuple:
		return TupleKey(val.Values...)
	default:
		return fmt.Sprint(val)
	}
}

// ColumnKey keys rows by the given columns.
func ColumnKey(columns ...string) KeyFunc {
	return func(row dbexec.Row) string {
		values := make([]interface{}, len(columns))
		for i, col := range columns {
			v, ok := row[col]
			if !ok || v == nil {
				return ""
			}
			values[i] = v
		}
		return TupleKey(values...)
	}
}

// PrimaryKeyFunc keys rows by the entity's primary key columns. It returns
// nil for entities without a primary key.
func PrimaryKeyFunc(entity *introspection.Entity) KeyFunc {
	cols := entity.PrimaryKeyColumnNames()
	if len(cols) == 0 {
		return nil
	}
	return ColumnKey(cols...)
}

// OrderRows aligns rows to the requested keys: the result has one entry per
// requested key, holding the matching row or nil. The same algorithm serves
// single and composite keys; composite requests are planner.ParentTuple.
func OrderRows(requested []interface{}, rows []dbexec.Row, key KeyFunc) []dbexec.Row {
	byKey := make(map[string]dbexec.Row, len(rows))
	for _, row := range rows {
		k := key(row)
		if k == "" {
			continue
		}
		if _, seen := byKey[k]; !seen {
			byKey[k] = row
		}
	}
	out := make([]dbexec.Row, len(requested))
	for i, req := range requested {
		out[i] = byKey[TupleKey(req)]
	}
	return out
}
