// Package resolver builds and executes GraphQL schemas over the entity registry.
// It generates object types, where inputs and orderBy enums per entity, and
// resolves relations through a request-scoped batch loader so each level of a
// query costs one grouped statement per relation instead of one per row.
package resolver

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"

	"relgraph/internal/dbexec"
	"relgraph/internal/introspection"
	"relgraph/internal/planner"
	"relgraph/internal/sqltype"
)

// Catalog is the entity source a schema is built from.
type Catalog interface {
	introspection.Provider
	Entities() []*introspection.Entity
}

// Options tune a Resolver. Zero values select defaults.
type Options struct {
	Limits *planner.PlanLimits
	// DefaultLimit applies to list fields called without first.
	DefaultLimit int
	// MaxLimit caps first on list fields; zero disables the cap.
	MaxLimit     int
	BatchInLimit int
	Logger       *slog.Logger
}

// Resolver handles GraphQL query execution against a database.
// It maintains caches for GraphQL types and input objects to avoid redundant construction.
type Resolver struct {
	provider     Catalog
	planner      *planner.Planner
	runner       RowRunner
	loader       *Loader
	limits       *planner.PlanLimits
	defaultLimit int
	maxLimit     int
	logger       *slog.Logger

	typeCache    map[string]*graphql.Object
	whereCache   map[string]*graphql.InputObject
	orderByCache map[string]*graphql.Enum
	enumCache    map[string]*graphql.Enum

	nonNegativeInt *graphql.Scalar
	jsonType       *graphql.Scalar
	dateTimeType   *graphql.Scalar
	mu             sync.RWMutex
}

// NewResolver creates a resolver over catalog. Statements are planned for the
// planner's dialect and executed by runner.
func NewResolver(catalog Catalog, p *planner.Planner, runner RowRunner, opts Options) *Resolver {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = planner.DefaultListLimit
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{
		provider:     catalog,
		planner:      p,
		runner:       runner,
		loader:       NewLoader(catalog, p, runner, opts.BatchInLimit, opts.Logger),
		limits:       opts.Limits,
		defaultLimit: opts.DefaultLimit,
		maxLimit:     opts.MaxLimit,
		logger:       opts.Logger,
		typeCache:    make(map[string]*graphql.Object),
		whereCache:   make(map[string]*graphql.InputObject),
		orderByCache: make(map[string]*graphql.Enum),
		enumCache:    make(map[string]*graphql.Enum),
	}
}

// Loader returns the resolver's batch loader.
func (r *Resolver) Loader() *Loader {
	return r.loader
}

// BuildGraphQLSchema constructs an executable GraphQL schema from the catalog.
// Every entity that is not a pure junction gets a list query, a first-match
// query and, when it has a single-column primary key, a by-ids query.
func (r *Resolver) BuildGraphQLSchema() (graphql.Schema, error) {
	queryFields := graphql.Fields{}
	for _, entity := range r.provider.Entities() {
		if entity.IsJunction {
			continue
		}
		r.addEntityQueries(queryFields, entity)
	}

	// If no entities exist, add a placeholder query to satisfy GraphQL requirements
	if len(queryFields) == 0 {
		queryFields["_schema"] = &graphql.Field{
			Type: graphql.String,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return "No entities registered", nil
			},
			Description: "Placeholder field when the registry is empty",
		}
	}

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Query",
			Fields: queryFields,
		}),
	})
}

func (r *Resolver) makeListResolver(entity *introspection.Entity) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		if err := r.checkLimits(p); err != nil {
			return nil, err
		}
		opts, err := r.listOptions(p, entity)
		if err != nil {
			return nil, err
		}
		if opts.Limit == 0 {
			return []dbexec.Row{}, nil
		}
		return r.runList(p, entity, opts)
	}
}

func (r *Resolver) makeSingleRowResolver(entity *introspection.Entity) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		if err := r.checkLimits(p); err != nil {
			return nil, err
		}
		where, err := r.whereFromParams(p, entity)
		if err != nil {
			return nil, err
		}
		rows, err := r.runList(p, entity, planner.ListOptions{Where: where, Limit: 1})
		if err != nil || len(rows) == 0 {
			return nil, err
		}
		return rows[0], nil
	}
}

func (r *Resolver) makeByIDsResolver(entity *introspection.Entity, pk *introspection.Column) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		if err := r.checkLimits(p); err != nil {
			return nil, err
		}
		raw, _ := p.Args["ids"].([]interface{})
		ids := make([]interface{}, len(raw))
		for i, id := range raw {
			coerced, err := coerceID(pk, id)
			if err != nil {
				return nil, err
			}
			ids[i] = coerced
		}

		query, err := r.planner.PlanByPrimaryKeys(entity, uniqueValues(ids))
		if err != nil {
			return nil, err
		}
		var rows []dbexec.Row
		if !query.IsEmpty() {
			rows, err = r.runner.Run(p.Context, query.SQL, query.Args...)
			if err != nil {
				return nil, err
			}
		}
		keyFn := PrimaryKeyFunc(entity)
		if scope, ok := ScopeFromContext(p.Context); ok {
			scope.cacheRows(entity.Name, rows, keyFn)
		}

		ordered := OrderRows(ids, rows, keyFn)
		out := make([]interface{}, len(ordered))
		for i, row := range ordered {
			if row != nil {
				out[i] = row
			}
		}
		return out, nil
	}
}

func (r *Resolver) runList(p graphql.ResolveParams, entity *introspection.Entity, opts planner.ListOptions) ([]dbexec.Row, error) {
	query, err := r.planner.PlanList(entity, opts)
	if err != nil {
		return nil, err
	}
	rows, err := r.runner.Run(p.Context, query.SQL, query.Args...)
	if err != nil {
		return nil, err
	}
	if scope, ok := ScopeFromContext(p.Context); ok {
		scope.cacheRows(entity.Name, rows, PrimaryKeyFunc(entity))
	}
	if metrics := graphQLMetricsFromContext(p.Context); metrics != nil {
		metrics.RecordResultsCount(p.Context, int64(len(rows)), "query")
	}
	if rows == nil {
		rows = []dbexec.Row{}
	}
	return rows, nil
}

func (r *Resolver) listOptions(p graphql.ResolveParams, entity *introspection.Entity) (planner.ListOptions, error) {
	where, err := r.whereFromParams(p, entity)
	if err != nil {
		return planner.ListOptions{}, err
	}
	order, err := orderFromParams(p, entity)
	if err != nil {
		return planner.ListOptions{}, err
	}
	first, _ := optionalIntArg(p.Args, "first")
	skip, _ := optionalIntArg(p.Args, "skip")
	return planner.ListOptions{
		Where:  where,
		Order:  order,
		Limit:  planner.ClampLimit(first, r.defaultLimit, r.maxLimit),
		Offset: derefInt(skip),
	}, nil
}

func (r *Resolver) makeRelationResolver(entity *introspection.Entity, rel introspection.Relation) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		parent := asRow(p.Source)
		var opts RelationOptions
		if rel.Cardinality.IsToMany() {
			target, err := r.provider.Describe(rel.Target)
			if err != nil {
				return nil, err
			}
			if opts.Where, err = r.whereFromParams(p, target); err != nil {
				return nil, err
			}
			if opts.Order, err = orderFromParams(p, target); err != nil {
				return nil, err
			}
			opts.First, _ = optionalIntArg(p.Args, "first")
			skip, _ := optionalIntArg(p.Args, "skip")
			opts.Skip = derefInt(skip)
		}
		return r.ResolveRelation(p.Context, parent, entity, &rel, opts)
	}
}

func (r *Resolver) whereFromParams(p graphql.ResolveParams, entity *introspection.Entity) (*planner.WhereClause, error) {
	raw, ok := p.Args["where"]
	if !ok || raw == nil {
		return nil, nil
	}
	filter := orderedArg(firstFieldAST(p.Info.FieldASTs), "where", raw)
	clause, err := planner.TranslateFilter(entity, r.planner.Dialect(), filter)
	if err != nil {
		return nil, err
	}
	if clause.IsEmpty() {
		return nil, nil
	}
	return clause, nil
}

func orderFromParams(p graphql.ResolveParams, entity *introspection.Entity) ([]planner.OrderTerm, error) {
	raw, ok := p.Args["orderBy"].([]interface{})
	if !ok || len(raw) == 0 {
		return nil, nil
	}
	directives := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, &planner.InvalidOrderDirectiveError{Directive: fmt.Sprint(item)}
		}
		directives = append(directives, s)
	}
	return planner.ParseOrder(entity, directives)
}

func (r *Resolver) checkLimits(p graphql.ResolveParams) error {
	if r.limits == nil {
		return nil
	}
	cost := planner.EstimateCost(firstFieldAST(p.Info.FieldASTs), p.Args, r.defaultLimit)
	return planner.ValidateLimits(cost, *r.limits)
}

func firstFieldAST(fields []*ast.Field) *ast.Field {
	if len(fields) == 0 {
		return nil
	}
	return fields[0]
}

func optionalIntArg(args map[string]interface{}, key string) (*int, bool) {
	value, ok := args[key]
	if !ok || value == nil {
		return nil, false
	}
	switch v := value.(type) {
	case int:
		return &v, true
	case int64:
		n := int(v)
		return &n, true
	case float64:
		n := int(v)
		return &n, true
	}
	return nil, false
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

// coerceID converts a GraphQL ID argument to the primary key's Go type.
func coerceID(pk *introspection.Column, id interface{}) (interface{}, error) {
	s, ok := id.(string)
	if !ok {
		return pk.Kind.Coerce(id)
	}
	switch pk.Kind {
	case sqltype.KindInt:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q for %s: expected an integer", s, pk.Name)
		}
		return n, nil
	case sqltype.KindFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q for %s: expected a number", s, pk.Name)
		}
		return f, nil
	}
	return s, nil
}

// columnValue converts a scanned value to what the column's GraphQL type serializes.
func columnValue(col *introspection.Column, value interface{}) interface{} {
	if value == nil {
		return nil
	}
	if col.Kind == sqltype.KindBool {
		switch v := value.(type) {
		case bool:
			return v
		case int64:
			return v != 0
		case int:
			return v != 0
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil
			}
			return b
		}
	}
	return value
}
