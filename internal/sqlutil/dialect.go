package sqlutil

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Dialect captures the SQL syntax differences between supported stores.
type Dialect struct {
	Name string
	// DriverName is the database/sql driver registered for the dialect.
	DriverName  string
	quote       func(string) string
	placeholder sq.PlaceholderFormat
	likeEscape  string
}

var (
	// MySQL covers MySQL and TiDB.
	MySQL = Dialect{
		Name:        "mysql",
		DriverName:  "mysql",
		quote:       QuoteIdentifier,
		placeholder: sq.Question,
		likeEscape:  `ESCAPE '\\'`,
	}
	// Postgres uses ANSI quoting and numbered placeholders.
	Postgres = Dialect{
		Name:        "postgres",
		DriverName:  "pgx",
		quote:       QuoteANSIIdentifier,
		placeholder: sq.Dollar,
		likeEscape:  `ESCAPE '\'`,
	}
	// SQLite uses ANSI quoting and question mark placeholders.
	SQLite = Dialect{
		Name:        "sqlite",
		DriverName:  "sqlite3",
		quote:       QuoteANSIIdentifier,
		placeholder: sq.Question,
		likeEscape:  `ESCAPE '\'`,
	}
)

// ParseDialect resolves a configured dialect name.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "mysql", "tidb":
		return MySQL, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported dialect %q", name)
	}
}

// Quote quotes a single identifier.
func (d Dialect) Quote(name string) string {
	if d.quote == nil {
		return QuoteIdentifier(name)
	}
	return d.quote(name)
}

// QuoteQualified quotes table.column.
func (d Dialect) QuoteQualified(table, column string) string {
	if table == "" {
		return d.Quote(column)
	}
	return d.Quote(table) + "." + d.Quote(column)
}

// Placeholder returns the squirrel placeholder format for the dialect.
func (d Dialect) Placeholder() sq.PlaceholderFormat {
	if d.placeholder == nil {
		return sq.Question
	}
	return d.placeholder
}

// LikeEscapeClause returns the ESCAPE clause matching EscapeLike.
func (d Dialect) LikeEscapeClause() string {
	if d.likeEscape == "" {
		return `ESCAPE '\'`
	}
	return d.likeEscape
}
