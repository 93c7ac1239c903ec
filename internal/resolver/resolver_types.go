package resolver

import (
	"strings"

	"github.com/graphql-go/graphql"

	"relgraph/internal/introspection"
	"relgraph/internal/planner"
	"relgraph/internal/scalars"
	"relgraph/internal/sqltype"
)

func (r *Resolver) mapColumnTypeToGraphQL(entity *introspection.Entity, col *introspection.Column) graphql.Output {
	switch col.Kind {
	case sqltype.KindInt:
		return graphql.Int
	case sqltype.KindFloat:
		return graphql.Float
	case sqltype.KindBool:
		return graphql.Boolean
	case sqltype.KindDate:
		return r.dateTimeScalar()
	case sqltype.KindJSON:
		return r.jsonScalar()
	case sqltype.KindEnum:
		if enum := r.columnEnum(entity, col); enum != nil {
			return enum
		}
	}
	return graphql.String
}

// mapColumnTypeToGraphQLInput is the input type used for a column's filter values.
func (r *Resolver) mapColumnTypeToGraphQLInput(entity *introspection.Entity, col *introspection.Column) graphql.Input {
	switch col.Kind {
	case sqltype.KindInt:
		return graphql.Int
	case sqltype.KindFloat:
		return graphql.Float
	case sqltype.KindBool:
		return graphql.Boolean
	case sqltype.KindDate:
		return r.dateTimeScalar()
	case sqltype.KindEnum:
		if enum := r.columnEnum(entity, col); enum != nil {
			return enum
		}
	}
	return graphql.String
}

// columnEnum returns the GraphQL enum of an enum column, or nil when a value
// cannot be expressed as a GraphQL enum name; such columns fall back to String.
func (r *Resolver) columnEnum(entity *introspection.Entity, col *introspection.Column) *graphql.Enum {
	typeName := entity.GraphQLTypeName + upperFirst(col.FieldName())
	r.mu.RLock()
	cached, ok := r.enumCache[typeName]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	values := graphql.EnumValueConfigMap{}
	valid := len(col.EnumValues) > 0
	for _, v := range col.EnumValues {
		name := enumValueName(v)
		if _, dup := values[name]; dup || name == "" {
			valid = false
			break
		}
		values[name] = &graphql.EnumValueConfig{Value: v}
	}
	var enum *graphql.Enum
	if valid {
		enum = graphql.NewEnum(graphql.EnumConfig{
			Name:   typeName,
			Values: values,
		})
	}

	r.mu.Lock()
	if cached, ok := r.enumCache[typeName]; ok {
		r.mu.Unlock()
		return cached
	}
	r.enumCache[typeName] = enum
	r.mu.Unlock()
	return enum
}

// enumValueName maps a stored enum value onto the GraphQL name grammar.
func enumValueName(v string) string {
	var sb strings.Builder
	for i, ch := range v {
		switch {
		case ch == '_' || (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z'):
			sb.WriteRune(ch)
		case ch >= '0' && ch <= '9':
			if i == 0 {
				sb.WriteByte('_')
			}
			sb.WriteRune(ch)
		default:
			sb.WriteByte('_')
		}
	}
	name := sb.String()
	switch name {
	case "true", "false", "null":
		return ""
	}
	return name
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// whereInput builds {Type}Where: one field per filterable column and
// operator plus the AND, OR and NOT combinators.
func (r *Resolver) whereInput(entity *introspection.Entity) *graphql.InputObject {
	typeName := entity.GraphQLTypeName + "Where"
	r.mu.RLock()
	cached, ok := r.whereCache[typeName]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	fields := graphql.InputObjectConfigFieldMap{}
	for i := range entity.Columns {
		col := &entity.Columns[i]
		if !col.Kind.Filterable() {
			continue
		}
		name := col.FieldName()
		valueType := r.mapColumnTypeToGraphQLInput(entity, col)

		fields[name] = &graphql.InputObjectFieldConfig{
			Type:        valueType,
			Description: "Equals.",
		}
		if col.IsNullable {
			fields[name+"_"+string(planner.OpIsNull)] = &graphql.InputObjectFieldConfig{
				Type:        graphql.Boolean,
				Description: "True matches NULL, false matches any non-NULL value.",
			}
		}
		if col.Kind.IsOrdered() {
			for _, op := range []planner.Operator{planner.OpGt, planner.OpGte, planner.OpLt, planner.OpLte} {
				fields[name+"_"+string(op)] = &graphql.InputObjectFieldConfig{Type: valueType}
			}
		}
		fields[name+"_"+string(planner.OpIn)] = &graphql.InputObjectFieldConfig{
			Type: graphql.NewList(graphql.NewNonNull(valueType)),
		}
		if col.Kind.IsTextual() {
			for _, op := range []planner.Operator{planner.OpContains, planner.OpStartsWith, planner.OpEndsWith} {
				fields[name+"_"+string(op)] = &graphql.InputObjectFieldConfig{Type: graphql.String}
			}
		}
	}

	// Create a lazy-initialized input object to handle recursive reference
	var inputObj *graphql.InputObject
	inputObj = graphql.NewInputObject(graphql.InputObjectConfig{
		Name: typeName,
		Fields: graphql.InputObjectConfigFieldMapThunk(func() graphql.InputObjectConfigFieldMap {
			fields[planner.KeyAnd] = &graphql.InputObjectFieldConfig{
				Type: graphql.NewList(graphql.NewNonNull(inputObj)),
			}
			fields[planner.KeyOr] = &graphql.InputObjectFieldConfig{
				Type: graphql.NewList(graphql.NewNonNull(inputObj)),
			}
			fields[planner.KeyNot] = &graphql.InputObjectFieldConfig{
				Type: inputObj,
			}
			return fields
		}),
	})

	r.mu.Lock()
	if cached, ok := r.whereCache[typeName]; ok {
		r.mu.Unlock()
		return cached
	}
	r.whereCache[typeName] = inputObj
	r.mu.Unlock()
	return inputObj
}

// orderByEnum builds {Type}OrderBy with a _ASC and a _DESC value per sortable
// column. Entities without sortable columns get no orderBy argument.
func (r *Resolver) orderByEnum(entity *introspection.Entity) *graphql.Enum {
	directives := planner.OrderDirectives(entity)
	if len(directives) == 0 {
		return nil
	}
	typeName := entity.GraphQLTypeName + "OrderBy"
	r.mu.RLock()
	cached, ok := r.orderByCache[typeName]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	values := graphql.EnumValueConfigMap{}
	for _, directive := range directives {
		values[directive] = &graphql.EnumValueConfig{Value: directive}
	}
	enum := graphql.NewEnum(graphql.EnumConfig{
		Name:   typeName,
		Values: values,
	})

	r.mu.Lock()
	if cached, ok := r.orderByCache[typeName]; ok {
		r.mu.Unlock()
		return cached
	}
	r.orderByCache[typeName] = enum
	r.mu.Unlock()
	return enum
}

func (r *Resolver) nonNegativeIntScalar() *graphql.Scalar {
	r.mu.RLock()
	cached := r.nonNegativeInt
	r.mu.RUnlock()
	if cached != nil {
		return cached
	}

	scalar := scalars.NonNegativeInt()

	r.mu.Lock()
	if r.nonNegativeInt == nil {
		r.nonNegativeInt = scalar
	}
	cached = r.nonNegativeInt
	r.mu.Unlock()

	return cached
}

func (r *Resolver) jsonScalar() *graphql.Scalar {
	r.mu.RLock()
	cached := r.jsonType
	r.mu.RUnlock()
	if cached != nil {
		return cached
	}

	scalar := scalars.JSON()

	r.mu.Lock()
	if r.jsonType == nil {
		r.jsonType = scalar
	}
	cached = r.jsonType
	r.mu.Unlock()

	return cached
}

func (r *Resolver) dateTimeScalar() *graphql.Scalar {
	r.mu.RLock()
	cached := r.dateTimeType
	r.mu.RUnlock()
	if cached != nil {
		return cached
	}

	scalar := scalars.DateTime()

	r.mu.Lock()
	if r.dateTimeType == nil {
		r.dateTimeType = scalar
	}
	cached = r.dateTimeType
	r.mu.Unlock()

	return cached
}
