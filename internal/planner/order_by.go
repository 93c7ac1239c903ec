package planner

import (
	"strings"

	"relgraph/internal/introspection"
)

// Direction is a sort direction of an order directive.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// OrderTerm is one parsed {field}_ASC or {field}_DESC directive.
type OrderTerm struct {
	Column    *introspection.Column
	Direction Direction
}

// Field returns the GraphQL field name of the ordered column.
func (t OrderTerm) Field() string {
	return t.Column.FieldName()
}

// Directive renders the term back into its wire form.
func (t OrderTerm) Directive() string {
	return t.Field() + "_" + string(t.Direction)
}

// SortableColumns returns the columns an entity can be ordered by.
func SortableColumns(entity *introspection.Entity) []*introspection.Column {
	var out []*introspection.Column
	for i := range entity.Columns {
		if entity.Columns[i].Kind.Filterable() {
			out = append(out, &entity.Columns[i])
		}
	}
	return out
}

// OrderDirectives lists every valid directive for an entity, ASC before DESC
// for each sortable column.
func OrderDirectives(entity *introspection.Entity) []string {
	cols := SortableColumns(entity)
	out := make([]string, 0, len(cols)*2)
	for _, col := range cols {
		out = append(out, col.FieldName()+"_"+string(Asc), col.FieldName()+"_"+string(Desc))
	}
	return out
}

// ParseOrder validates order directives against an entity. The first term is
// the primary sort key.
func ParseOrder(entity *introspection.Entity, directives []string) ([]OrderTerm, error) {
	if len(directives) == 0 {
		return nil, nil
	}
	terms := make([]OrderTerm, 0, len(directives))
	for _, directive := range directives {
		term, err := parseDirective(entity, directive)
		if err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}
	return terms, nil
}

func parseDirective(entity *introspection.Entity, directive string) (OrderTerm, error) {
	idx := strings.LastIndex(directive, "_")
	if idx <= 0 {
		return OrderTerm{}, &InvalidOrderDirectiveError{Directive: directive}
	}
	field, suffix := directive[:idx], directive[idx+1:]

	var dir Direction
	switch suffix {
	case string(Asc):
		dir = Asc
	case string(Desc):
		dir = Desc
	default:
		return OrderTerm{}, &InvalidOrderDirectiveError{Directive: directive}
	}

	col, ok := entity.ColumnByField(field)
	if !ok {
		return OrderTerm{}, &UnknownFieldError{Entity: entity.Name, Field: field}
	}
	if !col.Kind.Filterable() {
		return OrderTerm{}, &InvalidOrderDirectiveError{Directive: directive, Reason: col.Kind.String() + " columns cannot be ordered"}
	}
	return OrderTerm{Column: col, Direction: dir}, nil
}

// OrderClauses renders terms as ORDER BY expressions qualified by alias, then
// appends the primary key columns ascending so results are deterministic.
func (p *Planner) OrderClauses(entity *introspection.Entity, alias string, terms []OrderTerm) []string {
	out := make([]string, 0, len(terms)+1)
	used := make(map[string]bool, len(terms))
	for _, term := range terms {
		out = append(out, p.dialect.QuoteQualified(alias, term.Column.Name)+" "+string(term.Direction))
		used[term.Column.Name] = true
	}
	for _, pk := range entity.PrimaryKeyColumnNames() {
		if !used[pk] {
			out = append(out, p.dialect.QuoteQualified(alias, pk)+" "+string(Asc))
		}
	}
	return out
}
