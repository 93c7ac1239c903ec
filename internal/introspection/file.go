package introspection

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"relgraph/internal/naming"
	"relgraph/internal/sqltype"
)

// registryFile is the on-disk YAML layout of an entity registry.
type registryFile struct {
	Entities []entityFile `yaml:"entities"`
}

type entityFile struct {
	Name      string         `yaml:"name"`
	Table     string         `yaml:"table"`
	Comment   string         `yaml:"comment,omitempty"`
	Junction  bool           `yaml:"junction,omitempty"`
	Columns   []columnFile   `yaml:"columns"`
	Relations []relationFile `yaml:"relations,omitempty"`
}

type columnFile struct {
	Name       string   `yaml:"name"`
	Field      string   `yaml:"field,omitempty"`
	Type       string   `yaml:"type"`
	SQLType    string   `yaml:"sql_type,omitempty"`
	Nullable   bool     `yaml:"nullable,omitempty"`
	PrimaryKey bool     `yaml:"primary_key,omitempty"`
	Values     []string `yaml:"values,omitempty"`
	Comment    string   `yaml:"comment,omitempty"`
}

type relationFile struct {
	Field       string        `yaml:"field,omitempty"`
	Target      string        `yaml:"target"`
	Cardinality string        `yaml:"cardinality"`
	ForeignKey  string        `yaml:"foreign_key,omitempty"`
	References  string        `yaml:"references,omitempty"`
	Nullable    bool          `yaml:"nullable,omitempty"`
	Junction    *junctionFile `yaml:"junction,omitempty"`
}

type junctionFile struct {
	Table            string `yaml:"table"`
	LocalColumn      string `yaml:"local_column"`
	RemoteColumn     string `yaml:"remote_column"`
	RemoteReferences string `yaml:"remote_references,omitempty"`
}

// LoadRegistryFile reads a YAML entity descriptor file and builds a registry.
func LoadRegistryFile(path string, namer *naming.Namer) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry file: %w", err)
	}
	registry, err := LoadRegistry(bytes.NewReader(data), namer)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return registry, nil
}

// LoadRegistry decodes a YAML entity descriptor document and builds a registry.
// Unknown keys are rejected so typos surface at startup.
func LoadRegistry(r io.Reader, namer *naming.Namer) (*Registry, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var doc registryFile
	if err := decoder.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("registry document is empty")
		}
		return nil, fmt.Errorf("decode registry: %w", err)
	}

	entities := make([]Entity, 0, len(doc.Entities))
	for _, ef := range doc.Entities {
		entity, err := ef.toEntity()
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return NewRegistry(entities, namer)
}

func (ef entityFile) toEntity() (Entity, error) {
	entity := Entity{
		Name:       ef.Name,
		Table:      ef.Table,
		Comment:    ef.Comment,
		IsJunction: ef.Junction,
	}
	for _, cf := range ef.Columns {
		kind, err := sqltype.ParseKind(cf.Type)
		if err != nil {
			return Entity{}, fmt.Errorf("entity %s column %s: %w", ef.Name, cf.Name, err)
		}
		if cf.Type == "" && cf.SQLType != "" {
			kind = sqltype.MapToKind(cf.SQLType)
		}
		if kind == sqltype.KindEnum && len(cf.Values) == 0 {
			return Entity{}, fmt.Errorf("entity %s column %s: enum column requires values", ef.Name, cf.Name)
		}
		entity.Columns = append(entity.Columns, Column{
			Name:             cf.Name,
			DataType:         cf.SQLType,
			Kind:             kind,
			IsNullable:       cf.Nullable,
			IsPrimaryKey:     cf.PrimaryKey,
			EnumValues:       cf.Values,
			Comment:          cf.Comment,
			GraphQLFieldName: cf.Field,
		})
	}
	for _, rf := range ef.Relations {
		cardinality, err := ParseCardinality(rf.Cardinality)
		if err != nil {
			return Entity{}, fmt.Errorf("entity %s relation %s: %w", ef.Name, rf.Field, err)
		}
		rel := Relation{
			FieldName:   rf.Field,
			Target:      rf.Target,
			Cardinality: cardinality,
			ForeignKey:  rf.ForeignKey,
			References:  rf.References,
			IsNullable:  rf.Nullable,
		}
		if rf.Junction != nil {
			rel.Junction = &Junction{
				Table:            rf.Junction.Table,
				LocalColumn:      rf.Junction.LocalColumn,
				RemoteColumn:     rf.Junction.RemoteColumn,
				RemoteReferences: rf.Junction.RemoteReferences,
			}
		}
		entity.Relations = append(entity.Relations, rel)
	}
	return entity, nil
}

// MarshalRegistry renders a registry back into the YAML descriptor layout.
func MarshalRegistry(registry *Registry) ([]byte, error) {
	var doc registryFile
	for _, entity := range registry.Entities() {
		ef := entityFile{
			Name:     entity.Name,
			Table:    entity.Table,
			Comment:  entity.Comment,
			Junction: entity.IsJunction,
		}
		for _, col := range entity.Columns {
			ef.Columns = append(ef.Columns, columnFile{
				Name:       col.Name,
				Field:      col.GraphQLFieldName,
				Type:       col.Kind.String(),
				SQLType:    col.DataType,
				Nullable:   col.IsNullable,
				PrimaryKey: col.IsPrimaryKey,
				Values:     col.EnumValues,
				Comment:    col.Comment,
			})
		}
		for _, rel := range entity.Relations {
			rf := relationFile{
				Field:       rel.FieldName,
				Target:      rel.Target,
				Cardinality: rel.Cardinality.String(),
				ForeignKey:  rel.ForeignKey,
				References:  rel.References,
				Nullable:    rel.IsNullable,
			}
			if rel.Junction != nil {
				rf.Junction = &junctionFile{
					Table:            rel.Junction.Table,
					LocalColumn:      rel.Junction.LocalColumn,
					RemoteColumn:     rel.Junction.RemoteColumn,
					RemoteReferences: rel.Junction.RemoteReferences,
				}
			}
			ef.Relations = append(ef.Relations, rf)
		}
		doc.Entities = append(doc.Entities, ef)
	}
	return yaml.Marshal(doc)
}
