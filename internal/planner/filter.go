package planner

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/dolmen-go/jsonmap"

	"relgraph/internal/introspection"
	"relgraph/internal/sqltype"
)

// Operator is a comparison applied by a Compare leaf.
type Operator string

const (
	OpEq         Operator = "eq"
	OpGt         Operator = "gt"
	OpLt         Operator = "lt"
	OpGte        Operator = "gte"
	OpLte        Operator = "lte"
	OpIn         Operator = "in"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "startsWith"
	OpEndsWith   Operator = "endsWith"
	OpIsNull     Operator = "isNull"
)

// Operators lists the key suffixes accepted by filters, in schema order.
var Operators = []Operator{OpEq, OpGt, OpGte, OpLt, OpLte, OpIn, OpContains, OpStartsWith, OpEndsWith, OpIsNull}

func lookupOperator(suffix string) (Operator, bool) {
	for _, op := range Operators {
		if string(op) == suffix {
			return op, true
		}
	}
	return "", false
}

// Combinator keys of the filter grammar.
const (
	KeyAnd = "AND"
	KeyOr  = "OR"
	KeyNot = "NOT"
)

// FilterNode is a parsed, validated filter expression.
type FilterNode interface {
	filterNode()
}

// And matches when every child matches. An empty And matches everything.
type And struct{ Children []FilterNode }

// Or matches when any child matches. An empty Or matches nothing.
type Or struct{ Children []FilterNode }

// Not negates its child.
type Not struct{ Child FilterNode }

// Compare is a leaf comparison. Value has already been coerced to the column
// kind; it is nil for an IS NULL test and a []interface{} for OpIn.
type Compare struct {
	Column   *introspection.Column
	Operator Operator
	Value    interface{}
}

func (And) filterNode()     {}
func (Or) filterNode()      {}
func (Not) filterNode()     {}
func (Compare) filterNode() {}

// entry is one key/value pair of a filter object in traversal order.
type entry struct {
	key   string
	value interface{}
}

// objectEntries returns the pairs of a filter object. Ordered inputs keep
// their insertion order; plain maps are walked in sorted key order.
func objectEntries(v interface{}) ([]entry, bool) {
	switch obj := v.(type) {
	case jsonmap.Ordered:
		return orderedEntries(obj), true
	case *jsonmap.Ordered:
		if obj == nil {
			return nil, true
		}
		return orderedEntries(*obj), true
	case map[string]interface{}:
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]entry, len(keys))
		for i, k := range keys {
			out[i] = entry{key: k, value: obj[k]}
		}
		return out, true
	default:
		return nil, false
	}
}

func orderedEntries(obj jsonmap.Ordered) []entry {
	out := make([]entry, 0, len(obj.Order))
	for _, k := range obj.Order {
		out = append(out, entry{key: k, value: obj.Data[k]})
	}
	return out
}

// ParseFilter validates a filter object against an entity and returns its
// expression tree. A nil or empty filter yields a nil node.
func ParseFilter(entity *introspection.Entity, filter interface{}) (FilterNode, error) {
	if filter == nil {
		return nil, nil
	}
	p := filterParser{entity: entity}
	node, err := p.parseObject(filter, "where")
	if err != nil {
		return nil, err
	}
	if and, ok := node.(And); ok && len(and.Children) == 0 {
		return nil, nil
	}
	return node, nil
}

type filterParser struct {
	entity *introspection.Entity
}

func (p filterParser) parseObject(v interface{}, path string) (FilterNode, error) {
	entries, ok := objectEntries(v)
	if !ok {
		return nil, &TypeMismatchError{Entity: p.entity.Name, Field: path, Reason: fmt.Sprintf("expected a filter object, got %T", v)}
	}
	children := make([]FilterNode, 0, len(entries))
	for _, e := range entries {
		node, err := p.parseEntry(e)
		if err != nil {
			return nil, err
		}
		if node != nil {
			children = append(children, node)
		}
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return And{Children: children}, nil
}

func (p filterParser) parseEntry(e entry) (FilterNode, error) {
	switch e.key {
	case KeyAnd:
		children, err := p.parseList(e.key, e.value)
		if err != nil {
			return nil, err
		}
		if len(children) == 0 {
			return nil, nil
		}
		return And{Children: children}, nil
	case KeyOr:
		children, err := p.parseList(e.key, e.value)
		if err != nil {
			return nil, err
		}
		return Or{Children: children}, nil
	case KeyNot:
		if list, ok := asList(e.value); ok {
			children, err := p.parseList(e.key, list)
			if err != nil {
				return nil, err
			}
			return Not{Child: And{Children: children}}, nil
		}
		child, err := p.parseObject(e.value, e.key)
		if err != nil {
			return nil, err
		}
		return Not{Child: child}, nil
	}
	return p.parseField(e.key, e.value)
}

// parseList accepts a list of filter objects or, like GraphQL list input
// coercion, a single object.
func (p filterParser) parseList(key string, v interface{}) ([]FilterNode, error) {
	items, ok := asList(v)
	if !ok {
		items = []interface{}{v}
	}
	children := make([]FilterNode, 0, len(items))
	for _, item := range items {
		node, err := p.parseObject(item, key)
		if err != nil {
			return nil, err
		}
		children = append(children, node)
	}
	return children, nil
}

func (p filterParser) parseField(key string, value interface{}) (FilterNode, error) {
	col, op, err := p.resolveKey(key)
	if err != nil {
		return nil, err
	}
	if !col.Kind.Filterable() {
		return nil, p.mismatch(col, fmt.Sprintf("%s columns cannot be filtered", col.Kind))
	}

	switch op {
	case OpEq:
		if value == nil {
			if !col.IsNullable {
				return nil, p.mismatch(col, "null is only allowed for nullable columns")
			}
			return Compare{Column: col, Operator: op}, nil
		}
		coerced, err := p.coerce(col, value)
		if err != nil {
			return nil, err
		}
		return Compare{Column: col, Operator: op, Value: coerced}, nil

	case OpIsNull:
		if !col.IsNullable {
			return nil, p.mismatch(col, fmt.Sprintf("%s_isNull is only allowed for nullable columns", col.FieldName()))
		}
		isNull, ok := value.(bool)
		if !ok {
			return nil, p.mismatch(col, fmt.Sprintf("%s_isNull expects a boolean, got %T", col.FieldName(), value))
		}
		return Compare{Column: col, Operator: op, Value: isNull}, nil

	case OpGt, OpGte, OpLt, OpLte:
		if !col.Kind.IsOrdered() {
			return nil, p.mismatch(col, fmt.Sprintf("operator %s is not supported for %s columns", op, col.Kind))
		}
		coerced, err := p.coerce(col, value)
		if err != nil {
			return nil, err
		}
		return Compare{Column: col, Operator: op, Value: coerced}, nil

	case OpIn:
		items, ok := asList(value)
		if !ok {
			return nil, p.mismatch(col, fmt.Sprintf("%s_in expects a list, got %T", col.FieldName(), value))
		}
		values := make([]interface{}, 0, len(items))
		for _, item := range items {
			coerced, err := p.coerce(col, item)
			if err != nil {
				return nil, err
			}
			values = append(values, coerced)
		}
		return Compare{Column: col, Operator: op, Value: values}, nil

	default:
		if !col.Kind.IsTextual() {
			return nil, p.mismatch(col, fmt.Sprintf("operator %s is only supported for string columns", op))
		}
		s, ok := value.(string)
		if !ok {
			return nil, p.mismatch(col, fmt.Sprintf("operator %s expects a string, got %T", op, value))
		}
		return Compare{Column: col, Operator: op, Value: s}, nil
	}
}

// resolveKey splits a filter key into column and operator. A key naming a
// column exactly is an equality test, so columns whose names contain an
// operator-like suffix stay addressable.
func (p filterParser) resolveKey(key string) (*introspection.Column, Operator, error) {
	if col, ok := p.entity.ColumnByField(key); ok {
		return col, OpEq, nil
	}
	idx := strings.LastIndex(key, "_")
	if idx <= 0 || idx == len(key)-1 {
		return nil, "", &UnknownFieldError{Entity: p.entity.Name, Field: key}
	}
	field, suffix := key[:idx], key[idx+1:]
	col, ok := p.entity.ColumnByField(field)
	if !ok {
		if _, known := lookupOperator(suffix); known {
			return nil, "", &UnknownFieldError{Entity: p.entity.Name, Field: field}
		}
		return nil, "", &UnknownFieldError{Entity: p.entity.Name, Field: key}
	}
	op, ok := lookupOperator(suffix)
	if !ok {
		return nil, "", &UnknownOperatorError{Entity: p.entity.Name, Key: key, Operator: suffix}
	}
	return col, op, nil
}

func (p filterParser) coerce(col *introspection.Column, value interface{}) (interface{}, error) {
	if value == nil {
		return nil, p.mismatch(col, "null is only allowed with equality")
	}
	coerced, err := col.Kind.Coerce(value)
	if err != nil {
		return nil, p.mismatch(col, err.Error())
	}
	if col.Kind == sqltype.KindEnum && len(col.EnumValues) > 0 {
		s := coerced.(string)
		for _, allowed := range col.EnumValues {
			if allowed == s {
				return s, nil
			}
		}
		return nil, p.mismatch(col, fmt.Sprintf("%q is not one of %s", s, strings.Join(col.EnumValues, ", ")))
	}
	return coerced, nil
}

func (p filterParser) mismatch(col *introspection.Column, reason string) error {
	return &TypeMismatchError{Entity: p.entity.Name, Field: col.FieldName(), Reason: reason}
}

func asList(v interface{}) ([]interface{}, bool) {
	switch list := v.(type) {
	case []interface{}:
		return list, true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
