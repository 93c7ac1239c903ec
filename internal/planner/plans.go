package planner

import (
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"relgraph/internal/introspection"
	"relgraph/internal/sqlutil"
)

// ErrNoPrimaryKey indicates a required primary key is missing for a plan.
var ErrNoPrimaryKey = errors.New("no primary key")

// BatchParentAlias is the column alias used to return parent keys in junction batch queries.
const BatchParentAlias = "__batch_parent_id"

// SQLQuery represents a planned SQL statement with bound args.
type SQLQuery struct {
	SQL  string
	Args []interface{}
}

// IsEmpty reports whether planning produced no statement, which happens when
// a batch has no keys to fetch.
func (q SQLQuery) IsEmpty() bool {
	return q.SQL == ""
}

// ParentTuple represents an ordered composite key value.
type ParentTuple struct {
	Values []interface{}
}

// Planner builds dialect-specific read statements.
type Planner struct {
	dialect sqlutil.Dialect
}

// New creates a planner for a dialect.
func New(dialect sqlutil.Dialect) *Planner {
	return &Planner{dialect: dialect}
}

// Dialect returns the planner's dialect.
func (p *Planner) Dialect() sqlutil.Dialect {
	return p.dialect
}

// ListOptions shape a root list query.
type ListOptions struct {
	Where  *WhereClause
	Order  []OrderTerm
	Limit  int
	Offset int
}

// PlanList builds SELECT * for an entity with optional filter, order and paging.
func (p *Planner) PlanList(entity *introspection.Entity, opts ListOptions) (SQLQuery, error) {
	if err := validateLimitOffset(opts.Limit, opts.Offset); err != nil {
		return SQLQuery{}, err
	}
	builder := sq.Select("*").From(p.dialect.Quote(entity.Table))
	if !opts.Where.IsEmpty() {
		builder = builder.Where(opts.Where)
	}
	if order := p.OrderClauses(entity, entity.Table, opts.Order); len(order) > 0 {
		builder = builder.OrderBy(order...)
	}
	if opts.Limit > 0 {
		builder = builder.Limit(uint64(opts.Limit))
		if opts.Offset > 0 {
			builder = builder.Offset(uint64(opts.Offset))
		}
	}
	return p.finish(builder)
}

// PlanBatchByColumn builds the grouped lookup
// SELECT * FROM table WHERE column IN (...) used by the batch loader. The
// caller filter is AND-ed and the order terms come before the primary key
// tie-breaker.
func (p *Planner) PlanBatchByColumn(entity *introspection.Entity, column string, values []interface{}, where *WhereClause, order []OrderTerm) (SQLQuery, error) {
	if len(values) == 0 {
		return SQLQuery{}, nil
	}
	if _, ok := entity.ColumnByName(column); !ok {
		return SQLQuery{}, fmt.Errorf("entity %s has no column %s", entity.Name, column)
	}
	builder := sq.Select("*").
		From(p.dialect.Quote(entity.Table)).
		Where(sq.Eq{p.dialect.QuoteQualified(entity.Table, column): values})
	if !where.IsEmpty() {
		builder = builder.Where(where)
	}
	if clauses := p.OrderClauses(entity, entity.Table, order); len(clauses) > 0 {
		builder = builder.OrderBy(clauses...)
	}
	return p.finish(builder)
}

// PlanManyToManyBatch builds a grouped lookup through a junction table. Each
// row carries the junction's local key under BatchParentAlias so results can
// be partitioned per parent.
func (p *Planner) PlanManyToManyBatch(target *introspection.Entity, junction introspection.Junction, values []interface{}, where *WhereClause, order []OrderTerm) (SQLQuery, error) {
	if len(values) == 0 {
		return SQLQuery{}, nil
	}
	if junction.Table == "" || junction.LocalColumn == "" || junction.RemoteColumn == "" {
		return SQLQuery{}, fmt.Errorf("many-to-many batch requires junction key columns")
	}
	remoteRef := junction.RemoteReferences
	if remoteRef == "" {
		pk, err := target.SinglePrimaryKey()
		if err != nil {
			return SQLQuery{}, fmt.Errorf("%w: %v", ErrNoPrimaryKey, err)
		}
		remoteRef = pk.Name
	}

	local := p.dialect.QuoteQualified(junction.Table, junction.LocalColumn)
	join := fmt.Sprintf("%s ON %s = %s",
		p.dialect.Quote(junction.Table),
		p.dialect.QuoteQualified(junction.Table, junction.RemoteColumn),
		p.dialect.QuoteQualified(target.Table, remoteRef),
	)
	builder := sq.Select(p.dialect.Quote(target.Table)+".*", fmt.Sprintf("%s AS %s", local, BatchParentAlias)).
		From(p.dialect.Quote(target.Table)).
		Join(join).
		Where(sq.Eq{local: values})
	if !where.IsEmpty() {
		builder = builder.Where(where)
	}
	clauses := []string{local}
	clauses = append(clauses, p.OrderClauses(target, target.Table, order)...)
	builder = builder.OrderBy(clauses...)
	return p.finish(builder)
}

// PlanByPrimaryKeys builds a lookup for a set of primary key values. Single
// column keys take plain values; composite keys take ParentTuple values in
// primary key column order.
func (p *Planner) PlanByPrimaryKeys(entity *introspection.Entity, keys []interface{}) (SQLQuery, error) {
	pkCols := entity.PrimaryKeyColumnNames()
	if len(pkCols) == 0 {
		return SQLQuery{}, fmt.Errorf("%w: entity %s", ErrNoPrimaryKey, entity.Name)
	}
	if len(keys) == 0 {
		return SQLQuery{}, nil
	}
	if len(pkCols) == 1 {
		return p.PlanBatchByColumn(entity, pkCols[0], keys, nil, nil)
	}

	tuples := make([]ParentTuple, len(keys))
	for i, key := range keys {
		tuple, ok := key.(ParentTuple)
		if !ok {
			return SQLQuery{}, fmt.Errorf("entity %s has a composite primary key; expected ParentTuple, got %T", entity.Name, key)
		}
		tuples[i] = tuple
	}
	quoted := make([]string, len(pkCols))
	for i, col := range pkCols {
		quoted[i] = p.dialect.QuoteQualified(entity.Table, col)
	}
	condSQL, condArgs, err := buildTupleInCondition(quoted, tuples)
	if err != nil {
		return SQLQuery{}, err
	}
	builder := sq.Select("*").
		From(p.dialect.Quote(entity.Table)).
		Where(sq.Expr(condSQL, condArgs...)).
		OrderBy(p.OrderClauses(entity, entity.Table, nil)...)
	return p.finish(builder)
}

func (p *Planner) finish(builder sq.SelectBuilder) (SQLQuery, error) {
	query, args, err := builder.PlaceholderFormat(p.dialect.Placeholder()).ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

func buildTupleInCondition(quotedColumns []string, tuples []ParentTuple) (string, []interface{}, error) {
	width := len(quotedColumns)
	if width == 0 {
		return "", nil, fmt.Errorf("tuple IN requires at least one column")
	}

	args := make([]interface{}, 0, len(tuples)*width)
	rowPlaceholders := make([]string, 0, len(tuples))
	valuePlaceholders := "(" + sq.Placeholders(width) + ")"
	for _, tuple := range tuples {
		if len(tuple.Values) != width {
			return "", nil, fmt.Errorf("tuple width mismatch: expected %d values", width)
		}
		rowPlaceholders = append(rowPlaceholders, valuePlaceholders)
		args = append(args, tuple.Values...)
	}

	return fmt.Sprintf("(%s) IN (%s)", strings.Join(quotedColumns, ", "), strings.Join(rowPlaceholders, ", ")), args, nil
}

func validateLimitOffset(limit, offset int) error {
	if limit < 0 {
		return fmt.Errorf("limit must be non-negative")
	}
	if offset < 0 {
		return fmt.Errorf("offset must be non-negative")
	}
	return nil
}
