package introspection

import (
	"context"
	"log/slog"

	"relgraph/internal/naming"
)

// foreignKeyConstraint groups KEY_COLUMN_USAGE rows by constraint.
type foreignKeyConstraint struct {
	ConstraintName    string
	ReferencedTable   string
	ColumnNames       []string
	ReferencedColumns []string
}

func groupForeignKeys(table tableMeta) []foreignKeyConstraint {
	var out []foreignKeyConstraint
	index := make(map[string]int)
	for _, fk := range table.ForeignKeys {
		key := fk.ConstraintName + "|" + fk.ReferencedTable
		idx, ok := index[key]
		if !ok || fk.ConstraintName == "" {
			idx = len(out)
			index[key] = idx
			out = append(out, foreignKeyConstraint{
				ConstraintName:  fk.ConstraintName,
				ReferencedTable: fk.ReferencedTable,
			})
		}
		out[idx].ColumnNames = append(out[idx].ColumnNames, fk.ColumnName)
		out[idx].ReferencedColumns = append(out[idx].ReferencedColumns, fk.ReferencedColumn)
	}
	return out
}

// isPureJunction reports whether a table only links two other tables: it has
// exactly two single-column foreign keys and no other columns.
func isPureJunction(table tableMeta, fks []foreignKeyConstraint) bool {
	if table.IsView || len(fks) != 2 || len(table.Columns) != 2 {
		return false
	}
	for _, fk := range fks {
		if len(fk.ColumnNames) != 1 {
			return false
		}
	}
	return fks[0].ColumnNames[0] != fks[1].ColumnNames[0]
}

// buildEntities derives entities and both directions of every single-column
// foreign key. A foreign key covered by a unique index becomes a one-to-one
// pair; pure junction tables become many-to-many pairs.
func buildEntities(ctx context.Context, tables []tableMeta, namer *naming.Namer) []Entity {
	_, span := startSpan(ctx, "introspection.build_relations")
	defer span.End()

	entities := make([]Entity, len(tables))
	entityIndex := make(map[string]int, len(tables))
	for i, table := range tables {
		entities[i] = Entity{
			Name:    namer.TypeName(namer.Singularize(table.Name)),
			Table:   table.Name,
			Comment: table.Comment,
			Columns: append([]Column(nil), table.Columns...),
		}
		entityIndex[table.Name] = i
	}

	for i, table := range tables {
		if table.IsView {
			continue
		}
		fks := groupForeignKeys(table)

		if isPureJunction(table, fks) {
			left, lok := entityIndex[fks[0].ReferencedTable]
			right, rok := entityIndex[fks[1].ReferencedTable]
			if !lok || !rok {
				continue
			}
			entities[i].IsJunction = true
			entities[left].Relations = append(entities[left].Relations, Relation{
				FieldName:   namer.ManyToManyFieldName(entities[right].Name),
				Target:      entities[right].Name,
				Cardinality: ManyToMany,
				References:  fks[0].ReferencedColumns[0],
				Junction: &Junction{
					Table:            table.Name,
					LocalColumn:      fks[0].ColumnNames[0],
					RemoteColumn:     fks[1].ColumnNames[0],
					RemoteReferences: fks[1].ReferencedColumns[0],
				},
			})
			entities[right].Relations = append(entities[right].Relations, Relation{
				FieldName:   namer.ManyToManyFieldName(entities[left].Name),
				Target:      entities[left].Name,
				Cardinality: ManyToMany,
				References:  fks[1].ReferencedColumns[0],
				Junction: &Junction{
					Table:            table.Name,
					LocalColumn:      fks[1].ColumnNames[0],
					RemoteColumn:     fks[0].ColumnNames[0],
					RemoteReferences: fks[0].ReferencedColumns[0],
				},
			})
			continue
		}

		perTarget := make(map[string]int)
		for _, fk := range fks {
			perTarget[fk.ReferencedTable]++
		}

		for _, fk := range fks {
			if len(fk.ColumnNames) != 1 {
				slog.Default().Warn("skipping composite foreign key",
					slog.String("table", table.Name),
					slog.String("constraint", fk.ConstraintName),
					slog.Any("columns", fk.ColumnNames),
				)
				continue
			}
			target, ok := entityIndex[fk.ReferencedTable]
			if !ok {
				continue
			}
			fkColumn := fk.ColumnNames[0]
			nullable := false
			if col, ok := entities[i].ColumnByName(fkColumn); ok {
				nullable = col.IsNullable
			}

			owner := Relation{
				FieldName:   namer.ManyToOneFieldName(fkColumn),
				Target:      entities[target].Name,
				Cardinality: ManyToOne,
				ForeignKey:  fkColumn,
				References:  fk.ReferencedColumns[0],
				IsNullable:  nullable,
			}
			inverse := Relation{
				FieldName:   namer.OneToManyFieldName(entities[i].Name, fkColumn, perTarget[fk.ReferencedTable] == 1),
				Target:      entities[i].Name,
				Cardinality: OneToMany,
				ForeignKey:  fkColumn,
				References:  fk.ReferencedColumns[0],
				IsNullable:  true,
			}
			if table.UniqueColumns[fkColumn] {
				owner.Cardinality = OneToOneOwner
				inverse.Cardinality = OneToOneInverse
				inverse.FieldName = namer.OneToOneInverseFieldName(entities[i].Name)
			}
			entities[i].Relations = append(entities[i].Relations, owner)
			entities[target].Relations = append(entities[target].Relations, inverse)
		}
	}

	return entities
}
