package resolver

import (
	"github.com/graphql-go/graphql"

	"relgraph/internal/dbexec"
	"relgraph/internal/introspection"
)

func (r *Resolver) addEntityQueries(fields graphql.Fields, entity *introspection.Entity) {
	entityType := r.buildGraphQLType(entity)
	where := r.whereInput(entity)

	listArgs := r.listFieldArgs(entity)
	fields[entity.GraphQLQueryName] = &graphql.Field{
		Type:        graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(entityType))),
		Description: "Rows of " + entity.Name + " matching where, ordered by orderBy then primary key.",
		Args:        listArgs,
		Resolve:     r.makeListResolver(entity),
	}

	fields[entity.GraphQLSingleQueryName] = &graphql.Field{
		Type:        entityType,
		Description: "First row of " + entity.Name + " matching where, by primary key.",
		Args: graphql.FieldConfigArgument{
			"where": &graphql.ArgumentConfig{Type: where},
		},
		Resolve: r.makeSingleRowResolver(entity),
	}

	pk, err := entity.SinglePrimaryKey()
	if err != nil {
		return
	}
	fields[entity.GraphQLByIDsQueryName] = &graphql.Field{
		Type:        graphql.NewNonNull(graphql.NewList(entityType)),
		Description: "Rows of " + entity.Name + " in the order of ids; null where an id has no row.",
		Args: graphql.FieldConfigArgument{
			"ids": &graphql.ArgumentConfig{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(graphql.ID))),
			},
		},
		Resolve: r.makeByIDsResolver(entity, pk),
	}
}

func (r *Resolver) buildGraphQLType(entity *introspection.Entity) *graphql.Object {
	typeName := entity.GraphQLTypeName

	// Check cache first
	r.mu.RLock()
	cached, ok := r.typeCache[typeName]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	// Fields are built lazily so relation cycles resolve through the cache.
	objType := graphql.NewObject(graphql.ObjectConfig{
		Name:        typeName,
		Description: entity.Comment,
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return r.buildFieldsForEntity(entity)
		}),
	})

	r.mu.Lock()
	if cached, ok := r.typeCache[typeName]; ok {
		r.mu.Unlock()
		return cached
	}
	r.typeCache[typeName] = objType
	r.mu.Unlock()

	return objType
}

// buildFieldsForEntity builds the GraphQL fields for an entity (called lazily by FieldsThunk)
func (r *Resolver) buildFieldsForEntity(entity *introspection.Entity) graphql.Fields {
	fields := graphql.Fields{}

	for i := range entity.Columns {
		col := &entity.Columns[i]
		fieldType := r.mapColumnTypeToGraphQL(entity, col)
		if !col.IsNullable {
			fieldType = graphql.NewNonNull(fieldType)
		}
		fields[col.FieldName()] = &graphql.Field{
			Type:        fieldType,
			Description: col.Comment,
			Resolve:     columnResolver(col),
		}
	}

	for _, rel := range entity.Relations {
		target, err := r.provider.Describe(rel.Target)
		if err != nil {
			r.logger.Warn("skipping relation with unknown target",
				"entity", entity.Name,
				"relation", rel.FieldName,
				"target", rel.Target,
			)
			continue
		}
		targetType := r.buildGraphQLType(target)

		if rel.Cardinality.IsToMany() {
			fields[rel.FieldName] = &graphql.Field{
				Type:    graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(targetType))),
				Args:    r.listFieldArgs(target),
				Resolve: r.makeRelationResolver(entity, rel),
			}
			continue
		}
		// To-one fields stay nullable even for NOT NULL foreign keys: a
		// dangling key or a suppressed error resolves to null.
		fields[rel.FieldName] = &graphql.Field{
			Type:    targetType,
			Resolve: r.makeRelationResolver(entity, rel),
		}
	}

	return fields
}

func (r *Resolver) listFieldArgs(entity *introspection.Entity) graphql.FieldConfigArgument {
	args := graphql.FieldConfigArgument{
		"where": &graphql.ArgumentConfig{Type: r.whereInput(entity)},
		"first": &graphql.ArgumentConfig{
			Type:        r.nonNegativeIntScalar(),
			Description: "Maximum number of rows to return.",
		},
		"skip": &graphql.ArgumentConfig{
			Type:        r.nonNegativeIntScalar(),
			Description: "Number of rows to skip.",
		},
	}
	if orderBy := r.orderByEnum(entity); orderBy != nil {
		args["orderBy"] = &graphql.ArgumentConfig{
			Type:        graphql.NewList(graphql.NewNonNull(orderBy)),
			Description: "Sort keys, most significant first. The primary key breaks ties.",
		}
	}
	return args
}

func columnResolver(col *introspection.Column) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		row := asRow(p.Source)
		if row == nil {
			return nil, nil
		}
		return columnValue(col, row[col.Name]), nil
	}
}

// asRow accepts rows from the runner and plain maps from eager values.
func asRow(source interface{}) dbexec.Row {
	switch v := source.(type) {
	case dbexec.Row:
		return v
	case map[string]interface{}:
		return v
	}
	return nil
}
