// Package cli implements relquery, an offline companion to the server that
// runs the filter translator and order translator against an entity registry
// and prints what the server would generate.
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/fatih/color"
	_ "github.com/go-sql-driver/mysql"
	"github.com/spf13/cobra"

	"relgraph/internal/config"
	"relgraph/internal/introspection"
	"relgraph/internal/naming"
	"relgraph/internal/sqlutil"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Registry string
	DSN      string
	Dialect  string
	Format   string // "text" | "json" | "yaml"
	NoColor  bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the relquery root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "relquery",
		Short: "Inspect how relgraph translates filters and orderings",
		Long: `relquery loads an entity registry from a YAML file, or introspects a
MySQL database, and shows the SQL fragments relgraph generates for filter
documents and orderBy directives.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if _, err := sqlutil.ParseDialect(opts.Dialect); err != nil {
				return err
			}
			if opts.Registry == "" && opts.DSN == "" {
				return fmt.Errorf("one of --registry or --dsn is required")
			}
			if opts.NoColor {
				color.NoColor = true
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.Registry, "registry", "r", "", "entity registry YAML file")
	cmd.PersistentFlags().StringVar(&opts.DSN, "dsn", "", "MySQL DSN to introspect instead of a registry file")
	cmd.PersistentFlags().StringVarP(&opts.Dialect, "dialect", "d", "mysql", "SQL dialect to render: mysql, postgres or sqlite")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().BoolVar(&opts.NoColor, "no-color", false, "disable colored output")

	cmd.AddCommand(NewTranslateCommand(opts))
	cmd.AddCommand(NewOrderCommand(opts))
	cmd.AddCommand(NewDescribeCommand(opts))

	return cmd
}

func (o *RootOptions) dialect() sqlutil.Dialect {
	d, _ := sqlutil.ParseDialect(o.Dialect)
	return d
}

// loadRegistry reads the registry file, or introspects the DSN's database.
func (o *RootOptions) loadRegistry(ctx context.Context) (*introspection.Registry, error) {
	namer := naming.Default()
	if o.Registry != "" {
		return introspection.LoadRegistryFile(o.Registry, namer)
	}

	dbCfg := config.DatabaseConfig{Dialect: "mysql", ConnectionString: o.DSN}
	databaseName, err := dbCfg.EffectiveDatabaseName()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(sqlutil.MySQL.DriverName, o.DSN)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return introspection.IntrospectDatabaseContext(ctx, db, databaseName, namer)
}

// entity resolves an entity by name, GraphQL type name or table.
func entity(registry *introspection.Registry, name string) (*introspection.Entity, error) {
	if e, err := registry.Describe(name); err == nil {
		return e, nil
	}
	for _, e := range registry.Entities() {
		if e.GraphQLTypeName == name {
			return e, nil
		}
	}
	if e, err := registry.DescribeTable(name); err == nil {
		return e, nil
	}
	return nil, fmt.Errorf("unknown entity %q; known entities: %v", name, registry.Names())
}
