package introspection

import (
	"errors"
	"fmt"
	"sort"

	"relgraph/internal/naming"
)

// ErrUnknownEntity is returned when an entity name is not registered.
var ErrUnknownEntity = errors.New("unknown entity")

// Provider answers entity metadata lookups.
type Provider interface {
	Describe(name string) (*Entity, error)
}

// Registry is an index-based, name-keyed entity store. It is built once and
// never mutated afterwards, so it can be shared across requests without locking.
type Registry struct {
	entities []Entity
	byName   map[string]int
	byTable  map[string]int
}

// NewRegistry validates the entities, fills defaulted relation columns and
// resolves GraphQL names with the given namer.
func NewRegistry(entities []Entity, namer *naming.Namer) (*Registry, error) {
	if namer == nil {
		namer = naming.Default()
	}
	r := &Registry{
		entities: make([]Entity, len(entities)),
		byName:   make(map[string]int, len(entities)),
		byTable:  make(map[string]int, len(entities)),
	}
	for i := range entities {
		r.entities[i] = cloneEntity(entities[i])
	}

	for i := range r.entities {
		entity := &r.entities[i]
		if entity.Name == "" {
			return nil, fmt.Errorf("entity at position %d has no name", i)
		}
		if entity.Table == "" {
			entity.Table = entity.Name
		}
		if _, dup := r.byName[entity.Name]; dup {
			return nil, fmt.Errorf("duplicate entity %s", entity.Name)
		}
		r.byName[entity.Name] = i
		r.byTable[entity.Table] = i
	}

	for i := range r.entities {
		if err := r.resolveRelations(&r.entities[i]); err != nil {
			return nil, err
		}
	}
	applyNames(r.entities, namer)
	return r, nil
}

// Describe returns the entity registered under name.
func (r *Registry) Describe(name string) (*Entity, error) {
	idx, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, name)
	}
	return &r.entities[idx], nil
}

// DescribeTable returns the entity mapped to a table.
func (r *Registry) DescribeTable(table string) (*Entity, error) {
	idx, ok := r.byTable[table]
	if !ok {
		return nil, fmt.Errorf("%w: table %s", ErrUnknownEntity, table)
	}
	return &r.entities[idx], nil
}

// Entities returns every registered entity in registration order.
func (r *Registry) Entities() []*Entity {
	out := make([]*Entity, len(r.entities))
	for i := range r.entities {
		out[i] = &r.entities[i]
	}
	return out
}

// Names returns the sorted entity names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) resolveRelations(entity *Entity) error {
	for j := range entity.Relations {
		rel := &entity.Relations[j]
		if rel.FieldName == "" {
			return fmt.Errorf("relation %d on %s has no field name", j, entity.Name)
		}
		idx, ok := r.byName[rel.Target]
		if !ok {
			return fmt.Errorf("relation %s.%s targets %w %s", entity.Name, rel.FieldName, ErrUnknownEntity, rel.Target)
		}
		target := &r.entities[idx]

		switch {
		case rel.Cardinality.IsOwner():
			if _, ok := entity.ColumnByName(rel.ForeignKey); !ok {
				return fmt.Errorf("relation %s.%s: foreign key column %s not found on %s", entity.Name, rel.FieldName, rel.ForeignKey, entity.Name)
			}
			if rel.References == "" {
				rel.References = firstPrimaryKey(target)
			}
			if _, ok := target.ColumnByName(rel.References); !ok {
				return fmt.Errorf("relation %s.%s: referenced column %s not found on %s", entity.Name, rel.FieldName, rel.References, target.Name)
			}
		case rel.Cardinality == ManyToMany:
			if rel.Junction == nil || rel.Junction.Table == "" {
				return fmt.Errorf("relation %s.%s: many-to-many relation requires a junction", entity.Name, rel.FieldName)
			}
			if rel.References == "" {
				rel.References = firstPrimaryKey(entity)
			}
			if rel.Junction.RemoteReferences == "" {
				rel.Junction.RemoteReferences = firstPrimaryKey(target)
			}
		default:
			if _, ok := target.ColumnByName(rel.ForeignKey); !ok {
				return fmt.Errorf("relation %s.%s: foreign key column %s not found on %s", entity.Name, rel.FieldName, rel.ForeignKey, target.Name)
			}
			if rel.References == "" {
				rel.References = firstPrimaryKey(entity)
			}
		}
		if rel.References == "" {
			return fmt.Errorf("relation %s.%s: cannot infer referenced column without a primary key", entity.Name, rel.FieldName)
		}
	}
	return nil
}

func cloneEntity(e Entity) Entity {
	e.Columns = append([]Column(nil), e.Columns...)
	e.Relations = append([]Relation(nil), e.Relations...)
	for i := range e.Relations {
		if j := e.Relations[i].Junction; j != nil {
			copied := *j
			e.Relations[i].Junction = &copied
		}
	}
	return e
}

func firstPrimaryKey(entity *Entity) string {
	for _, col := range entity.Columns {
		if col.IsPrimaryKey {
			return col.Name
		}
	}
	return ""
}

func applyNames(entities []Entity, namer *naming.Namer) {
	namer.Reset()
	for i := range entities {
		entity := &entities[i]
		if entity.GraphQLTypeName == "" {
			entity.GraphQLTypeName = namer.TypeName(entity.Name)
		}
		if entity.GraphQLQueryName == "" {
			entity.GraphQLQueryName = namer.ListQueryName(entity.Name)
		}
		if entity.GraphQLSingleQueryName == "" {
			entity.GraphQLSingleQueryName = namer.SingleQueryName(entity.Name)
		}
		if entity.GraphQLByIDsQueryName == "" {
			entity.GraphQLByIDsQueryName = namer.ByIDsQueryName(entity.Name)
		}
		for j := range entity.Columns {
			col := &entity.Columns[j]
			if col.GraphQLFieldName == "" {
				col.GraphQLFieldName = namer.FieldName(col.Name)
			}
			col.GraphQLFieldName = namer.RegisterField(entity.GraphQLTypeName, col.GraphQLFieldName, "column:"+col.Name)
		}
		for j := range entity.Relations {
			rel := &entity.Relations[j]
			rel.FieldName = namer.RegisterField(entity.GraphQLTypeName, rel.FieldName, "relation:"+rel.Target)
		}
	}
}
