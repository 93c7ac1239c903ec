package introspection

import (
	"fmt"
	"strings"
)

// parseEnumValues reads the value list out of a COLUMN_TYPE such as
// enum('a','it''s','b\'c'). Both doubled quotes and backslash escapes are honoured.
func parseEnumValues(columnType string) ([]string, error) {
	trimmed := strings.TrimSpace(columnType)
	lower := strings.ToLower(trimmed)
	if !strings.HasPrefix(lower, "enum(") || !strings.HasSuffix(lower, ")") {
		return nil, fmt.Errorf("invalid enum definition %q", columnType)
	}
	body := trimmed[len("enum(") : len(trimmed)-1]

	var values []string
	var current strings.Builder
	inQuote := false
	expectValue := true
	for i := 0; i < len(body); i++ {
		ch := body[i]
		if !inQuote {
			switch {
			case ch == ' ':
			case ch == ',' && !expectValue:
				expectValue = true
			case ch == '\'' && expectValue:
				inQuote = true
				current.Reset()
			default:
				return nil, fmt.Errorf("unexpected %q at position %d", ch, i)
			}
			continue
		}
		switch {
		case ch == '\\':
			if i+1 >= len(body) {
				return nil, fmt.Errorf("unterminated escape")
			}
			i++
			current.WriteByte(body[i])
		case ch == '\'' && i+1 < len(body) && body[i+1] == '\'':
			i++
			current.WriteByte('\'')
		case ch == '\'':
			inQuote = false
			expectValue = false
			values = append(values, current.String())
		default:
			current.WriteByte(ch)
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated enum value")
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("no enum values parsed")
	}
	return values, nil
}
