// Package sqltype maps SQL data types to the scalar kinds understood by the
// filter grammar and validates filter values against them.
package sqltype

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind is the scalar category of a column.
type Kind int

const (
	// KindString is the default for text and unknown SQL types.
	KindString Kind = iota
	// KindInt represents integer numeric types.
	KindInt
	// KindFloat represents floating-point and fixed-point numeric types.
	KindFloat
	// KindBool represents boolean types.
	KindBool
	// KindEnum represents enumerated string types with a closed value set.
	KindEnum
	// KindDate represents date and time types.
	KindDate
	// KindJSON represents JSON documents. JSON columns are neither filterable nor sortable.
	KindJSON
)

// MapToKind converts a SQL data type string to its scalar kind.
// The input is case-insensitive. Size specifiers like (10,2) or (255) are stripped before matching.
func MapToKind(sqlType string) Kind {
	if idx := strings.Index(sqlType, "("); idx != -1 {
		sqlType = sqlType[:idx]
	}
	switch strings.ToUpper(strings.TrimSpace(sqlType)) {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INT2", "INT4", "INT8",
		"INTEGER", "BIGINT", "SERIAL", "BIGSERIAL", "BIT":
		return KindInt
	case "FLOAT", "FLOAT4", "FLOAT8", "DOUBLE", "REAL", "DOUBLE PRECISION",
		"DECIMAL", "NUMERIC":
		return KindFloat
	case "BOOL", "BOOLEAN":
		return KindBool
	case "ENUM":
		return KindEnum
	case "DATE", "DATETIME", "TIMESTAMP", "TIMESTAMPTZ", "TIME", "YEAR":
		return KindDate
	case "JSON", "JSONB":
		return KindJSON
	default:
		return KindString
	}
}

// ParseKind parses a kind name as written in registry files.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "string", "text", "":
		return KindString, nil
	case "int", "integer":
		return KindInt, nil
	case "float", "number":
		return KindFloat, nil
	case "bool", "boolean":
		return KindBool, nil
	case "enum":
		return KindEnum, nil
	case "date", "datetime", "timestamp":
		return KindDate, nil
	case "json":
		return KindJSON, nil
	default:
		return KindString, fmt.Errorf("unknown scalar kind %q", name)
	}
}

// String returns the lower-case kind name.
func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindEnum:
		return "enum"
	case KindDate:
		return "date"
	case KindJSON:
		return "json"
	default:
		return "string"
	}
}

// IsNumeric reports whether the kind is an integer or float.
func (k Kind) IsNumeric() bool {
	return k == KindInt || k == KindFloat
}

// IsOrdered reports whether gt/lt comparisons and ORDER BY make sense.
func (k Kind) IsOrdered() bool {
	switch k {
	case KindInt, KindFloat, KindString, KindDate, KindEnum:
		return true
	default:
		return false
	}
}

// IsTextual reports whether pattern matching applies.
func (k Kind) IsTextual() bool {
	return k == KindString || k == KindEnum
}

// Filterable reports whether the kind may appear in a where filter.
func (k Kind) Filterable() bool {
	return k != KindJSON
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"15:04:05",
}

// Coerce validates value against the kind and returns the value to bind.
// Integers arrive from JSON as float64 and from GraphQL literals as int, both
// are normalized to int64. A non-nil error means the value cannot be bound.
func (k Kind) Coerce(value interface{}) (interface{}, error) {
	switch k {
	case KindInt:
		return coerceInt(value)
	case KindFloat:
		return coerceFloat(value)
	case KindBool:
		if b, ok := value.(bool); ok {
			return b, nil
		}
	case KindString, KindEnum:
		if s, ok := value.(string); ok {
			return s, nil
		}
	case KindDate:
		switch v := value.(type) {
		case time.Time:
			return v, nil
		case string:
			for _, layout := range dateLayouts {
				if _, err := time.Parse(layout, v); err == nil {
					return v, nil
				}
			}
			return nil, fmt.Errorf("value %q is not a recognised date", v)
		}
	}
	return nil, fmt.Errorf("expected %s value, got %T", k, value)
}

func coerceInt(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("expected int value, got %v", v)
		}
		return int64(v), nil
	case json.Number:
		n, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("expected int value, got %s", v)
		}
		return n, nil
	}
	return nil, fmt.Errorf("expected int value, got %T", value)
}

func coerceFloat(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("expected float value, got %s", v)
		}
		return f, nil
	}
	return nil, fmt.Errorf("expected float value, got %T", value)
}
