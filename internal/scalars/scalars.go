// Package scalars holds the custom GraphQL scalars used by the generated schema.
package scalars

import (
	"encoding/json"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
)

// coercer converts one representation; ok=false maps to GraphQL null.
type coercer func(value interface{}) (out interface{}, ok bool)

func newScalar(name, description string, serialize, parse coercer, literal func(ast.Value) (interface{}, bool)) *graphql.Scalar {
	nullable := func(c coercer) func(interface{}) interface{} {
		return func(value interface{}) interface{} {
			if out, ok := c(value); ok {
				return out
			}
			return nil
		}
	}
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        name,
		Description: description,
		Serialize:   nullable(serialize),
		ParseValue:  nullable(parse),
		ParseLiteral: func(valueAST ast.Value) interface{} {
			if out, ok := literal(valueAST); ok {
				return out
			}
			return nil
		},
	})
}

// NonNegativeInt backs the first and skip paging arguments.
func NonNegativeInt() *graphql.Scalar {
	return newScalar("NonNegativeInt", "An integer greater than or equal to zero.",
		toNonNegativeInt, toNonNegativeInt,
		func(v ast.Value) (interface{}, bool) {
			lit, ok := v.(*ast.IntValue)
			if !ok {
				return nil, false
			}
			return toNonNegativeInt(lit.Value)
		},
	)
}

// JSON exposes JSON columns as their serialized text.
func JSON() *graphql.Scalar {
	return newScalar("JSON", "Arbitrary JSON value serialized as a string.",
		func(value interface{}) (interface{}, bool) {
			switch v := value.(type) {
			case nil:
				return nil, false
			case []byte:
				return string(v), true
			case string:
				return v, true
			}
			encoded, err := json.Marshal(value)
			if err != nil {
				slog.Default().Warn("failed to serialize JSON scalar", slog.String("error", err.Error()))
				return nil, false
			}
			return string(encoded), true
		},
		stringOnly(nil),
		stringLiteral(nil),
	)
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"15:04:05",
}

// DateTime exposes date and time columns. time.Time values serialize as
// RFC 3339 in UTC, driver text passes through. Inputs must match one of
// dateTimeLayouts and are bound unchanged so the database converts them.
func DateTime() *graphql.Scalar {
	return newScalar("DateTime",
		"Date or timestamp. Accepts RFC 3339, `YYYY-MM-DD HH:MM:SS`, `YYYY-MM-DD` or `HH:MM:SS`.",
		func(value interface{}) (interface{}, bool) {
			switch v := value.(type) {
			case time.Time:
				return v.UTC().Format(time.RFC3339Nano), true
			case *time.Time:
				if v == nil {
					return nil, false
				}
				return v.UTC().Format(time.RFC3339Nano), true
			case []byte:
				return string(v), true
			case string:
				return v, true
			}
			return nil, false
		},
		stringOnly(isDateTime),
		stringLiteral(isDateTime),
	)
}

func isDateTime(s string) bool {
	for _, layout := range dateTimeLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// stringOnly accepts string inputs that pass check; a nil check accepts all.
func stringOnly(check func(string) bool) coercer {
	return func(value interface{}) (interface{}, bool) {
		s, ok := value.(string)
		if !ok || (check != nil && !check(s)) {
			return nil, false
		}
		return s, true
	}
}

func stringLiteral(check func(string) bool) func(ast.Value) (interface{}, bool) {
	accept := stringOnly(check)
	return func(v ast.Value) (interface{}, bool) {
		lit, ok := v.(*ast.StringValue)
		if !ok {
			return nil, false
		}
		return accept(lit.Value)
	}
}

func toNonNegativeInt(value interface{}) (interface{}, bool) {
	var n int64
	switch v := value.(type) {
	case int:
		n = int64(v)
	case int32:
		n = int64(v)
	case int64:
		n = v
	case float64:
		if v != math.Trunc(v) || v > math.MaxInt64 {
			return nil, false
		}
		n = int64(v)
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, false
		}
		n = parsed
	default:
		return nil, false
	}
	if n < 0 || n > math.MaxInt {
		return nil, false
	}
	return int(n), true
}
