package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"relgraph/internal/planner"
)

// TranslateResult is the structured output of translate.
type TranslateResult struct {
	Entity     string        `json:"entity" yaml:"entity"`
	Expression string        `json:"expression" yaml:"expression"`
	Params     []NamedParam  `json:"params" yaml:"params"`
	Columns    []string      `json:"columns" yaml:"columns"`
	Positional []interface{} `json:"positional,omitempty" yaml:"positional,omitempty"`
}

// NamedParam is one bound parameter, in allocation order.
type NamedParam struct {
	Name  string      `json:"name" yaml:"name"`
	Value interface{} `json:"value" yaml:"value"`
}

type translateOptions struct {
	file    string
	alias   string
	explain bool
}

// NewTranslateCommand creates the translate command.
func NewTranslateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &translateOptions{}
	cmd := &cobra.Command{
		Use:   "translate <entity> [filter-json]",
		Short: "Translate a filter document into a SQL boolean expression",
		Long: `Translate a where filter document into the parameterized boolean
expression relgraph embeds in its statements. The filter is read from the
second argument, from --file, or from stdin with --file -.

Example:
  relquery translate User '{"age_gte": 30, "OR": [{"name": "foo"}, {"role": "ADMIN"}]}' -r registry.yaml`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(cmd, rootOpts, opts, args)
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "read the filter from a file (- for stdin)")
	cmd.Flags().StringVar(&opts.alias, "alias", "", "qualify columns with this table alias")
	cmd.Flags().BoolVar(&opts.explain, "positional", false, "also show the statement form with positional placeholders")
	return cmd
}

func readFilter(cmd *cobra.Command, opts *translateOptions, args []string) ([]byte, error) {
	switch {
	case len(args) == 2 && opts.file != "":
		return nil, fmt.Errorf("pass the filter as an argument or with --file, not both")
	case len(args) == 2:
		return []byte(args[1]), nil
	case opts.file == "-":
		return io.ReadAll(cmd.InOrStdin())
	case opts.file != "":
		return os.ReadFile(opts.file)
	}
	return nil, fmt.Errorf("no filter given")
}

func runTranslate(cmd *cobra.Command, rootOpts *RootOptions, opts *translateOptions, args []string) error {
	raw, err := readFilter(cmd, opts, args)
	if err != nil {
		return err
	}
	filter, err := planner.DecodeFilterJSON(raw)
	if err != nil {
		return err
	}

	registry, err := rootOpts.loadRegistry(cmd.Context())
	if err != nil {
		return err
	}
	target, err := entity(registry, args[0])
	if err != nil {
		return err
	}

	clause, err := planner.TranslateFilterQualified(target, rootOpts.dialect(), opts.alias, filter)
	if err != nil {
		return err
	}

	result := TranslateResult{
		Entity:     target.Name,
		Expression: clause.Expression,
		Params:     []NamedParam{},
		Columns:    append([]string{}, clause.UsedColumns...),
	}
	for _, name := range clause.Params.Names() {
		value, _ := clause.Params.Value(name)
		result.Params = append(result.Params, NamedParam{Name: name, Value: value})
	}
	var positional string
	if opts.explain && !clause.IsEmpty() {
		positional, result.Positional, err = clause.ToSql()
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if ok, err := writeStructured(out, rootOpts.Format, result); ok || err != nil {
		return err
	}

	headerColor.Fprintf(out, "%s\n", result.Entity)
	if clause.IsEmpty() {
		dimColor.Fprintln(out, "  (no restriction)")
		return nil
	}
	sqlColor.Fprintf(out, "  %s\n", result.Expression)
	for _, p := range result.Params {
		fmt.Fprintf(out, "  %s = %#v\n", nameColor.Sprint(":"+p.Name), p.Value)
	}
	if positional != "" {
		dimColor.Fprintf(out, "  positional: %s %v\n", positional, result.Positional)
	}
	return nil
}
