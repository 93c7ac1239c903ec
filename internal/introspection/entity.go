// Package introspection builds the entity registry the query core resolves
// against: entities, their columns and their relations. A registry is built
// once at startup, either from a live database's INFORMATION_SCHEMA or from a
// YAML descriptor file, and is shared read-only by every request.
package introspection

import (
	"fmt"
	"strings"

	"relgraph/internal/sqltype"
)

// Column describes one column of an entity.
type Column struct {
	Name         string
	DataType     string
	Kind         sqltype.Kind
	IsNullable   bool
	IsPrimaryKey bool
	EnumValues   []string
	Comment      string
	// GraphQLFieldName is the resolved GraphQL field and filter key for this column.
	GraphQLFieldName string
}

// Cardinality classifies a relation from the point of view of its source entity.
type Cardinality int

const (
	// ManyToOne: the source carries the foreign key, many sources share a target.
	ManyToOne Cardinality = iota
	// OneToOneOwner: the source carries a unique foreign key.
	OneToOneOwner
	// OneToOneInverse: the target carries a unique foreign key to the source.
	OneToOneInverse
	// OneToMany: the target carries a foreign key to the source.
	OneToMany
	// ManyToMany: a junction table carries foreign keys to both sides.
	ManyToMany
)

var cardinalityNames = map[Cardinality]string{
	ManyToOne:       "many-to-one",
	OneToOneOwner:   "one-to-one-owner",
	OneToOneInverse: "one-to-one-inverse",
	OneToMany:       "one-to-many",
	ManyToMany:      "many-to-many",
}

func (c Cardinality) String() string {
	if name, ok := cardinalityNames[c]; ok {
		return name
	}
	return fmt.Sprintf("cardinality(%d)", int(c))
}

// ParseCardinality parses the names produced by Cardinality.String.
func ParseCardinality(name string) (Cardinality, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
	for c, n := range cardinalityNames {
		if n == normalized {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown relation cardinality %q", name)
}

// IsToMany reports whether the relation resolves to a list.
func (c Cardinality) IsToMany() bool {
	return c == OneToMany || c == ManyToMany
}

// IsOwner reports whether the source entity carries the foreign key.
func (c Cardinality) IsOwner() bool {
	return c == ManyToOne || c == OneToOneOwner
}

// Junction describes the link table of a many-to-many relation.
type Junction struct {
	Table string
	// LocalColumn references the source entity's References column.
	LocalColumn string
	// RemoteColumn references the target entity's RemoteReferences column.
	RemoteColumn     string
	RemoteReferences string
}

// Relation describes a navigable relation from one entity to another.
// The target is referenced by name and resolved through the registry.
type Relation struct {
	FieldName   string
	Target      string
	Cardinality Cardinality
	// ForeignKey is the FK column on the owning side: the source for owner
	// relations, the target for inverse and to-many relations. Unused for
	// many-to-many relations, which go through Junction.
	ForeignKey string
	// References is the column the foreign key points at: a target column for
	// owner relations, a source column otherwise.
	References string
	IsNullable bool
	Junction   *Junction
}

// Entity is the immutable description of one relational entity.
type Entity struct {
	Name    string
	Table   string
	Comment string
	Columns []Column
	// Relations are ordered by declaration.
	Relations []Relation
	// IsJunction marks pure link tables that are not exposed as root queries.
	IsJunction bool

	GraphQLTypeName        string
	GraphQLQueryName       string
	GraphQLSingleQueryName string
	GraphQLByIDsQueryName  string
}

// PrimaryKeyColumns returns the primary key columns in declaration order.
func (e *Entity) PrimaryKeyColumns() []Column {
	var cols []Column
	for _, col := range e.Columns {
		if col.IsPrimaryKey {
			cols = append(cols, col)
		}
	}
	return cols
}

// PrimaryKeyColumnNames returns the primary key column names.
func (e *Entity) PrimaryKeyColumnNames() []string {
	cols := e.PrimaryKeyColumns()
	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.Name
	}
	return names
}

// SinglePrimaryKey returns the primary key column when the key has exactly one column.
func (e *Entity) SinglePrimaryKey() (*Column, error) {
	for i := range e.Columns {
		if !e.Columns[i].IsPrimaryKey {
			continue
		}
		if len(e.PrimaryKeyColumns()) != 1 {
			return nil, fmt.Errorf("entity %s has a composite primary key", e.Name)
		}
		return &e.Columns[i], nil
	}
	return nil, fmt.Errorf("entity %s has no primary key", e.Name)
}

// ColumnByName finds a column by its SQL name.
func (e *Entity) ColumnByName(name string) (*Column, bool) {
	for i := range e.Columns {
		if e.Columns[i].Name == name {
			return &e.Columns[i], true
		}
	}
	return nil, false
}

// ColumnByField finds a column by its GraphQL field name, falling back to the SQL name.
func (e *Entity) ColumnByField(field string) (*Column, bool) {
	for i := range e.Columns {
		if e.Columns[i].GraphQLFieldName == field {
			return &e.Columns[i], true
		}
	}
	return e.ColumnByName(field)
}

// RelationByField finds a relation by its field name.
func (e *Entity) RelationByField(field string) (*Relation, bool) {
	for i := range e.Relations {
		if e.Relations[i].FieldName == field {
			return &e.Relations[i], true
		}
	}
	return nil, false
}

// FieldName returns the GraphQL field name of a column, falling back to the SQL name.
func (c Column) FieldName() string {
	if c.GraphQLFieldName != "" {
		return c.GraphQLFieldName
	}
	return c.Name
}
