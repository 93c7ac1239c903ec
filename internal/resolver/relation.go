package resolver

import (
	"context"
	"fmt"

	"relgraph/internal/dbexec"
	"relgraph/internal/introspection"
	"relgraph/internal/planner"
)

// MissingForeignKeyError is returned when a to-one relation is resolved on a
// parent row that does not carry the foreign key column at all. A column that
// is present but NULL is not an error; the relation resolves to nil.
type MissingForeignKeyError struct {
	Entity   string
	Relation string
	Column   string
}

func (e *MissingForeignKeyError) Error() string {
	return fmt.Sprintf("cannot resolve %s.%s: parent row has no %s column", e.Entity, e.Relation, e.Column)
}

// RelationOptions carry caller arguments of a relation field. Where must be
// rendered against the target's table.
type RelationOptions struct {
	Where *planner.WhereClause
	Order []planner.OrderTerm
	First *int
	Skip  int
}

// ResolveRelation resolves rel for one parent row. The result is either an
// immediate value (an eager value already present on the parent, or nil) or a
// Thunk that completes once the batch for this level has been dispatched.
// To-many relations yield []dbexec.Row and to-one relations a dbexec.Row.
func (r *Resolver) ResolveRelation(ctx context.Context, parent dbexec.Row, entity *introspection.Entity, rel *introspection.Relation, opts RelationOptions) (interface{}, error) {
	if parent == nil {
		return nil, nil
	}
	if eager, ok := parent[rel.FieldName]; ok && opts.Where.IsEmpty() {
		return eager, nil
	}

	target, err := r.provider.Describe(rel.Target)
	if err != nil {
		return nil, err
	}

	switch {
	case rel.Cardinality.IsToMany():
		return r.resolveToMany(ctx, parent, target, rel, opts), nil
	case rel.Cardinality.IsOwner():
		return r.resolveOwner(ctx, parent, entity, target, rel)
	default:
		key := BatchKey{
			Entity: target.Name,
			Column: rel.ForeignKey,
			Value:  parent[rel.References],
			Label:  relationLabel(rel.Cardinality),
		}
		return rowThunk(r.loader.LoadOne(ctx, key)), nil
	}
}

func (r *Resolver) resolveToMany(ctx context.Context, parent dbexec.Row, target *introspection.Entity, rel *introspection.Relation, opts RelationOptions) Thunk {
	key := BatchKey{
		Entity: target.Name,
		Filter: opts.Where,
		Order:  opts.Order,
		Value:  parent[rel.References],
		Label:  relationLabel(rel.Cardinality),
	}
	if rel.Cardinality == introspection.ManyToMany {
		key.Junction = rel.Junction
	} else {
		key.Column = rel.ForeignKey
	}

	rows := r.loader.LoadRows(ctx, key)
	return func() (interface{}, error) {
		result, err := rows()
		if err != nil {
			return nil, err
		}
		return pageRows(result, opts.Skip, opts.First), nil
	}
}

func (r *Resolver) resolveOwner(ctx context.Context, parent dbexec.Row, entity, target *introspection.Entity, rel *introspection.Relation) (interface{}, error) {
	fk, ok := parent[rel.ForeignKey]
	if !ok {
		suppressed := SuppressErrors(ctx)
		if metrics := graphQLMetricsFromContext(ctx); metrics != nil {
			metrics.RecordRelationError(ctx, entity.Name+"."+rel.FieldName, suppressed)
		}
		if suppressed {
			return nil, nil
		}
		return nil, &MissingForeignKeyError{Entity: entity.Name, Relation: rel.FieldName, Column: rel.ForeignKey}
	}
	if fk == nil {
		return nil, nil
	}

	if pk, err := target.SinglePrimaryKey(); err == nil && pk.Name == rel.References {
		return rowThunk(r.loader.LoadByPrimaryKey(ctx, target, fk)), nil
	}
	key := BatchKey{
		Entity: target.Name,
		Column: rel.References,
		Value:  fk,
		Label:  relationLabel(rel.Cardinality),
	}
	return rowThunk(r.loader.LoadOne(ctx, key)), nil
}

// rowThunk adapts a typed row thunk so a missing row surfaces as an untyped
// nil rather than a nil map.
func rowThunk(load func() (dbexec.Row, error)) Thunk {
	return func() (interface{}, error) {
		row, err := load()
		if err != nil || row == nil {
			return nil, err
		}
		return row, nil
	}
}

func pageRows(rows []dbexec.Row, skip int, first *int) []dbexec.Row {
	if skip > 0 {
		if skip >= len(rows) {
			return []dbexec.Row{}
		}
		rows = rows[skip:]
	}
	if first != nil && *first >= 0 && *first < len(rows) {
		rows = rows[:*first]
	}
	if rows == nil {
		return []dbexec.Row{}
	}
	return rows
}
