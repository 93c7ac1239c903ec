package resolver

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"relgraph/internal/dbexec"
	"relgraph/internal/introspection"
	"relgraph/internal/planner"
)

// Thunk is graphql-go's deferred resolver contract. A resolver returning a
// Thunk is forced only after its sibling fields have resolved, which is the
// point where pending load groups are dispatched.
type Thunk = func() (interface{}, error)

// RowRunner executes a read statement. *dbexec.Runner satisfies it.
type RowRunner interface {
	Run(ctx context.Context, query string, args ...any) ([]dbexec.Row, error)
}

// BatchKey identifies one load: rows of Entity whose Column equals Value,
// optionally restricted by a caller filter and ordered. Many-to-many loads
// set Junction instead of Column and match the junction's local column.
type BatchKey struct {
	Entity   string
	Column   string
	Junction *introspection.Junction
	Filter   *planner.WhereClause
	Order    []planner.OrderTerm
	Value    interface{}
	// Label tags batch metrics, e.g. one_to_many.
	Label string
}

// FilterSignature is empty for plain foreign key lookups and a stable digest
// of the caller filter otherwise.
func (k BatchKey) FilterSignature() string {
	return k.Filter.Signature()
}

// groupKey identifies the load group: keys sharing it are fetched by one statement.
func (k BatchKey) groupKey() string {
	var b strings.Builder
	b.WriteString(k.Entity)
	b.WriteByte('|')
	if k.Junction != nil {
		b.WriteString(k.Junction.Table)
		b.WriteByte('.')
		b.WriteString(k.Junction.LocalColumn)
	} else {
		b.WriteString(k.Column)
	}
	b.WriteByte('|')
	b.WriteString(k.FilterSignature())
	b.WriteByte('|')
	for _, term := range k.Order {
		b.WriteString(term.Directive())
		b.WriteByte(',')
	}
	return b.String()
}

type loadGroup struct {
	key        string
	proto      BatchKey
	values     []interface{}
	results    []*loadResult
	dispatched bool
	done       chan struct{}
}

type loadResult struct {
	group *loadGroup
	value interface{}
	rows  []dbexec.Row
	err   error
}

// Loader batches relation lookups per request. Keys registered while a level
// of the query resolves are fetched with one IN query per load group when the
// first of their thunks is forced.
type Loader struct {
	provider introspection.Provider
	planner  *planner.Planner
	runner   RowRunner
	maxIn    int
	logger   *slog.Logger
}

// NewLoader creates a loader. maxIn caps the keys bound into one statement;
// wider groups are split into several statements.
func NewLoader(provider introspection.Provider, p *planner.Planner, runner RowRunner, maxIn int, logger *slog.Logger) *Loader {
	if maxIn <= 0 {
		maxIn = planner.DefaultBatchInLimit
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{provider: provider, planner: p, runner: runner, maxIn: maxIn, logger: logger}
}

// Load registers key and returns a thunk yielding []dbexec.Row.
func (l *Loader) Load(ctx context.Context, key BatchKey) Thunk {
	rows := l.LoadRows(ctx, key)
	return func() (interface{}, error) {
		result, err := rows()
		if err != nil {
			return nil, err
		}
		return result, nil
	}
}

// LoadRows registers key and returns a typed thunk over its matching rows.
// Without a scope in ctx the lookup runs immediately on its own.
func (l *Loader) LoadRows(ctx context.Context, key BatchKey) func() ([]dbexec.Row, error) {
	if key.Value == nil {
		if metrics := graphQLMetricsFromContext(ctx); metrics != nil {
			metrics.RecordBatchSkipped(ctx, "nil_key", labelOf(key))
		}
		return func() ([]dbexec.Row, error) { return nil, nil }
	}

	scope, ok := ScopeFromContext(ctx)
	if !ok {
		grouped, err := l.fetch(ctx, nil, key, []interface{}{key.Value})
		return func() ([]dbexec.Row, error) {
			if err != nil {
				return nil, err
			}
			return grouped[TupleKey(key.Value)], nil
		}
	}

	gk := key.groupKey()
	id := gk + "\x1e" + TupleKey(key.Value)
	metrics := graphQLMetricsFromContext(ctx)

	scope.mu.Lock()
	if res, cached := scope.results[id]; cached {
		scope.mu.Unlock()
		scope.cacheHits.Add(1)
		if metrics != nil {
			metrics.RecordBatchCacheHit(ctx, labelOf(key))
		}
		return l.await(ctx, scope, res)
	}
	group := scope.pending[gk]
	if group == nil {
		proto := key
		proto.Value = nil
		group = &loadGroup{key: gk, proto: proto, done: make(chan struct{})}
		scope.pending[gk] = group
	}
	res := &loadResult{group: group, value: key.Value}
	group.values = append(group.values, key.Value)
	group.results = append(group.results, res)
	scope.results[id] = res
	scope.mu.Unlock()

	scope.cacheMisses.Add(1)
	if metrics != nil {
		metrics.RecordBatchCacheMiss(ctx, labelOf(key))
	}
	return l.await(ctx, scope, res)
}

// LoadOne resolves key to its first matching row, which is the row with the
// lowest primary key unless the key carries an order.
func (l *Loader) LoadOne(ctx context.Context, key BatchKey) func() (dbexec.Row, error) {
	rows := l.LoadRows(ctx, key)
	return func() (dbexec.Row, error) {
		result, err := rows()
		if err != nil || len(result) == 0 {
			return nil, err
		}
		return result[0], nil
	}
}

// LoadByPrimaryKey resolves one row by primary key. Rows already fetched in
// this request by any load are served from the scope without a query.
func (l *Loader) LoadByPrimaryKey(ctx context.Context, entity *introspection.Entity, value interface{}) func() (dbexec.Row, error) {
	pk, err := entity.SinglePrimaryKey()
	if err != nil {
		return func() (dbexec.Row, error) { return nil, err }
	}
	if scope, ok := ScopeFromContext(ctx); ok && value != nil {
		if row, hit := scope.cachedRow(entity.Name, TupleKey(value)); hit {
			scope.cacheHits.Add(1)
			if metrics := graphQLMetricsFromContext(ctx); metrics != nil {
				metrics.RecordBatchCacheHit(ctx, relationLookup)
			}
			return func() (dbexec.Row, error) { return row, nil }
		}
	}
	return l.LoadOne(ctx, BatchKey{Entity: entity.Name, Column: pk.Name, Value: value, Label: relationLookup})
}

func (l *Loader) await(ctx context.Context, scope *Scope, res *loadResult) func() ([]dbexec.Row, error) {
	return func() ([]dbexec.Row, error) {
		l.dispatch(ctx, scope, res.group)
		return res.rows, res.err
	}
}

// dispatch runs a load group once. Later callers wait for the first one.
func (l *Loader) dispatch(ctx context.Context, scope *Scope, group *loadGroup) {
	scope.mu.Lock()
	if group.dispatched {
		scope.mu.Unlock()
		<-group.done
		return
	}
	group.dispatched = true
	if scope.pending[group.key] == group {
		delete(scope.pending, group.key)
	}
	values := group.values
	results := group.results
	scope.mu.Unlock()
	defer close(group.done)

	grouped, err := l.fetch(ctx, scope, group.proto, values)
	for _, res := range results {
		if err != nil {
			res.err = err
			continue
		}
		res.rows = grouped[TupleKey(res.value)]
	}
}

// fetch runs the grouped statement(s) for values and partitions the rows by
// the matched column. Every caller of a failed statement gets the same error.
func (l *Loader) fetch(ctx context.Context, scope *Scope, key BatchKey, values []interface{}) (map[string][]dbexec.Row, error) {
	entity, err := l.provider.Describe(key.Entity)
	if err != nil {
		return nil, err
	}
	values = uniqueValues(values)
	chunks := chunkValues(values, l.maxIn)
	label := labelOf(key)

	ctx, span := startDispatchSpan(ctx, entity.Name, label, len(values), len(chunks))

	partition := key.Column
	if key.Junction != nil {
		partition = planner.BatchParentAlias
	}

	grouped := make(map[string][]dbexec.Row, len(values))
	var fetched []dbexec.Row
	for _, chunk := range chunks {
		query, err := l.plan(entity, key, chunk)
		if err != nil {
			span.end(0, err)
			return nil, err
		}
		if query.IsEmpty() {
			continue
		}
		if scope != nil {
			scope.dispatches.Add(1)
		}
		rows, err := l.runner.Run(ctx, query.SQL, query.Args...)
		if err != nil {
			var execErr *dbexec.ExecutionError
			if !errors.As(err, &execErr) {
				err = &dbexec.ExecutionError{SQL: query.SQL, Err: err}
			}
			l.logger.Warn("batch load failed",
				slog.String("entity", entity.Name),
				slog.String("relation", label),
				slog.Int("keys", len(chunk)),
				slog.String("error", err.Error()),
			)
			span.end(0, err)
			return nil, err
		}
		for _, row := range rows {
			k := TupleKey(row[partition])
			row = withoutParentAlias(row)
			grouped[k] = append(grouped[k], row)
			fetched = append(fetched, row)
		}
	}

	if scope != nil {
		scope.cacheRows(entity.Name, fetched, PrimaryKeyFunc(entity))
	}
	if metrics := graphQLMetricsFromContext(ctx); metrics != nil {
		metrics.RecordBatchParentCount(ctx, int64(len(values)), label)
		metrics.RecordBatchResultRows(ctx, int64(len(fetched)), label)
		metrics.RecordBatchQueriesSaved(ctx, listBatchQueriesSaved(len(values), len(chunks)), label)
	}
	span.end(len(fetched), nil)
	return grouped, nil
}

func (l *Loader) plan(entity *introspection.Entity, key BatchKey, values []interface{}) (planner.SQLQuery, error) {
	if key.Junction != nil {
		return l.planner.PlanManyToManyBatch(entity, *key.Junction, values, key.Filter, key.Order)
	}
	return l.planner.PlanBatchByColumn(entity, key.Column, values, key.Filter, key.Order)
}

func labelOf(key BatchKey) string {
	if key.Label != "" {
		return key.Label
	}
	if key.Junction != nil {
		return relationManyToMany
	}
	return relationLookup
}
