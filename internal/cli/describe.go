package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"relgraph/internal/introspection"
)

// NewDescribeCommand creates the describe command.
func NewDescribeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "describe [entity]",
		Short: "Print the entity registry",
		Long: `Print every entity, or one entity, with its columns, relations and the
GraphQL names relgraph derives for them. With --format yaml the output is a
registry file that the server and relquery accept; use it to snapshot an
introspected database. YAML output always covers the whole registry.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := rootOpts.loadRegistry(cmd.Context())
			if err != nil {
				return err
			}
			entities := registry.Entities()
			if len(args) == 1 {
				target, err := entity(registry, args[0])
				if err != nil {
					return err
				}
				entities = []*introspection.Entity{target}
			}

			out := cmd.OutOrStdout()
			switch rootOpts.Format {
			case "yaml":
				// Relations need their targets, so the whole registry is written.
				data, err := introspection.MarshalRegistry(registry)
				if err != nil {
					return err
				}
				_, err = out.Write(data)
				return err
			case "json":
				views := make([]entityView, len(entities))
				for i, e := range entities {
					views[i] = newEntityView(e)
				}
				_, err := writeStructured(out, "json", views)
				return err
			}
			for _, e := range entities {
				describeEntity(out, e)
			}
			return nil
		},
	}
}

type entityView struct {
	Name      string         `json:"name"`
	Table     string         `json:"table"`
	TypeName  string         `json:"type_name"`
	Junction  bool           `json:"junction,omitempty"`
	Columns   []columnView   `json:"columns"`
	Relations []relationView `json:"relations,omitempty"`
}

type columnView struct {
	Name       string   `json:"name"`
	Field      string   `json:"field"`
	Kind       string   `json:"kind"`
	PrimaryKey bool     `json:"primary_key,omitempty"`
	Nullable   bool     `json:"nullable,omitempty"`
	Values     []string `json:"values,omitempty"`
}

type relationView struct {
	Field       string `json:"field"`
	Target      string `json:"target"`
	Cardinality string `json:"cardinality"`
}

func newEntityView(e *introspection.Entity) entityView {
	v := entityView{Name: e.Name, Table: e.Table, TypeName: e.GraphQLTypeName, Junction: e.IsJunction}
	for _, col := range e.Columns {
		v.Columns = append(v.Columns, columnView{
			Name:       col.Name,
			Field:      col.FieldName(),
			Kind:       col.Kind.String(),
			PrimaryKey: col.IsPrimaryKey,
			Nullable:   col.IsNullable,
			Values:     col.EnumValues,
		})
	}
	for _, rel := range e.Relations {
		v.Relations = append(v.Relations, relationView{Field: rel.FieldName, Target: rel.Target, Cardinality: rel.Cardinality.String()})
	}
	return v
}

func describeEntity(w io.Writer, e *introspection.Entity) {
	kind := ""
	if e.IsJunction {
		kind = dimColor.Sprint(" (junction)")
	}
	headerColor.Fprintf(w, "%s", e.Name)
	fmt.Fprintf(w, " table=%s%s\n", e.Table, kind)
	if !e.IsJunction {
		fmt.Fprintf(w, "  queries: %s, %s", e.GraphQLQueryName, e.GraphQLSingleQueryName)
		if e.GraphQLByIDsQueryName != "" {
			fmt.Fprintf(w, ", %s", e.GraphQLByIDsQueryName)
		}
		fmt.Fprintln(w)
	}
	for _, col := range e.Columns {
		var flags []string
		if col.IsPrimaryKey {
			flags = append(flags, "pk")
		}
		if col.IsNullable {
			flags = append(flags, "nullable")
		}
		if len(col.EnumValues) > 0 {
			flags = append(flags, "values="+strings.Join(col.EnumValues, "|"))
		}
		fmt.Fprintf(w, "  %s %s %s", nameColor.Sprint(col.FieldName()), col.Name, col.Kind)
		if len(flags) > 0 {
			dimColor.Fprintf(w, " [%s]", strings.Join(flags, ", "))
		}
		fmt.Fprintln(w)
	}
	for _, rel := range e.Relations {
		fmt.Fprintf(w, "  -> %s %s %s\n", nameColor.Sprint(rel.FieldName), rel.Cardinality, rel.Target)
	}
}
