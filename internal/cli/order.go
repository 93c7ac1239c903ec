package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"relgraph/internal/planner"
)

// OrderResult is the structured output of order.
type OrderResult struct {
	Entity  string      `json:"entity" yaml:"entity"`
	Terms   []OrderItem `json:"terms" yaml:"terms"`
	OrderBy string      `json:"order_by" yaml:"order_by"`
}

// OrderItem is one validated directive.
type OrderItem struct {
	Directive string `json:"directive" yaml:"directive"`
	Column    string `json:"column" yaml:"column"`
	Direction string `json:"direction" yaml:"direction"`
}

// NewOrderCommand creates the order command.
func NewOrderCommand(rootOpts *RootOptions) *cobra.Command {
	var alias string
	var list bool
	cmd := &cobra.Command{
		Use:   "order <entity> [directive...]",
		Short: "Validate orderBy directives and render the ORDER BY clause",
		Long: `Validate {field}_ASC / {field}_DESC directives against an entity and
print the ORDER BY clause relgraph generates, including the primary key
tie-breakers. With --list, print every directive the entity accepts.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := rootOpts.loadRegistry(cmd.Context())
			if err != nil {
				return err
			}
			target, err := entity(registry, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if list {
				directives := planner.OrderDirectives(target)
				if ok, err := writeStructured(out, rootOpts.Format, directives); ok || err != nil {
					return err
				}
				headerColor.Fprintf(out, "%s\n", target.Name)
				for _, d := range directives {
					nameColor.Fprintf(out, "  %s\n", d)
				}
				return nil
			}

			terms, err := planner.ParseOrder(target, args[1:])
			if err != nil {
				return err
			}
			clauses := planner.New(rootOpts.dialect()).OrderClauses(target, alias, terms)
			result := OrderResult{
				Entity:  target.Name,
				Terms:   make([]OrderItem, 0, len(terms)),
				OrderBy: strings.Join(clauses, ", "),
			}
			for _, term := range terms {
				result.Terms = append(result.Terms, OrderItem{
					Directive: term.Directive(),
					Column:    term.Column.Name,
					Direction: string(term.Direction),
				})
			}

			if ok, err := writeStructured(out, rootOpts.Format, result); ok || err != nil {
				return err
			}
			headerColor.Fprintf(out, "%s\n", result.Entity)
			sqlColor.Fprintf(out, "  ORDER BY %s\n", result.OrderBy)
			return nil
		},
	}
	cmd.Flags().StringVar(&alias, "alias", "", "qualify columns with this table alias")
	cmd.Flags().BoolVar(&list, "list", false, "list the directives the entity accepts")
	return cmd
}
