package introspection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnumValues(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"simple", "enum('a','b','c')", []string{"a", "b", "c"}},
		{"escapes", "ENUM('in\\'progress','it''s','back\\\\slash','a,b')", []string{"in'progress", "it's", "back\\slash", "a,b"}},
		{"empty value", "ENUM('')", []string{""}},
		{"whitespace", "ENUM( 'a' , 'b' )", []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := parseEnumValues(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, values)
		})
	}
}

func TestParseEnumValuesInvalid(t *testing.T) {
	for _, input := range []string{"varchar(10)", "enum()", "enum('a'", "enum(a)", "enum('a' 'b')"} {
		t.Run(input, func(t *testing.T) {
			_, err := parseEnumValues(input)
			assert.Error(t, err)
		})
	}
}
