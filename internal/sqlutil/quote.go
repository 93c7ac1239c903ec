// Package sqlutil provides SQL dialect helpers: identifier quoting,
// placeholder formats and LIKE pattern escaping.
package sqlutil

import "strings"

// QuoteIdentifier quotes a SQL identifier with backticks (MySQL/TiDB style)
// and escapes any backticks within the identifier.
func QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, "`", "``")
	return "`" + escaped + "`"
}

// QuoteANSIIdentifier quotes a SQL identifier with double quotes and escapes
// embedded double quotes.
func QuoteANSIIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, `"`, `""`)
	return `"` + escaped + `"`
}

// QuoteString quotes a SQL string literal with single quotes and escapes
// any single quotes within the string by doubling them.
func QuoteString(s string) string {
	escaped := strings.ReplaceAll(s, "'", "''")
	return "'" + escaped + "'"
}

// LikeEscapeChar is the escape character used in generated LIKE patterns.
const LikeEscapeChar = `\`

var likeEscaper = strings.NewReplacer(
	`\`, `\\`,
	`%`, `\%`,
	`_`, `\_`,
)

// EscapeLike escapes LIKE wildcards in user input so the value matches literally.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}
