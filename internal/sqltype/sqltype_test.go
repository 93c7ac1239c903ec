package sqltype

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapToKind(t *testing.T) {
	testCases := []struct {
		sqlType  string
		expected Kind
	}{
		{"int", KindInt},
		{"INT(11)", KindInt},
		{"bigint", KindInt},
		{"integer", KindInt},
		{"decimal(10,2)", KindFloat},
		{"double precision", KindFloat},
		{"boolean", KindBool},
		{"enum('a','b')", KindEnum},
		{"datetime", KindDate},
		{"timestamptz", KindDate},
		{"jsonb", KindJSON},
		{"varchar(255)", KindString},
		{"POINT", KindString},
		{"", KindString},
	}

	for _, tc := range testCases {
		t.Run(tc.sqlType, func(t *testing.T) {
			assert.Equal(t, tc.expected, MapToKind(tc.sqlType))
		})
	}
}

func TestParseKind(t *testing.T) {
	kind, err := ParseKind("Integer")
	require.NoError(t, err)
	assert.Equal(t, KindInt, kind)

	kind, err = ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, KindString, kind)

	_, err = ParseKind("uuid")
	require.Error(t, err)
}

func TestKindCapabilities(t *testing.T) {
	assert.True(t, KindInt.IsNumeric())
	assert.False(t, KindString.IsNumeric())
	assert.True(t, KindDate.IsOrdered())
	assert.False(t, KindBool.IsOrdered())
	assert.True(t, KindEnum.IsTextual())
	assert.False(t, KindInt.IsTextual())
	assert.False(t, KindJSON.Filterable())
	assert.Equal(t, "enum", KindEnum.String())
}

func TestCoerce(t *testing.T) {
	testCases := []struct {
		name     string
		kind     Kind
		value    interface{}
		expected interface{}
		wantErr  bool
	}{
		{"int from int", KindInt, 32, int64(32), false},
		{"int from whole float", KindInt, float64(20), int64(20), false},
		{"int from fractional float", KindInt, 2.5, nil, true},
		{"int from json number", KindInt, json.Number("7"), int64(7), false},
		{"int from string", KindInt, "32", nil, true},
		{"float from int", KindFloat, 3, float64(3), false},
		{"float from string", KindFloat, "3", nil, true},
		{"bool", KindBool, true, true, false},
		{"bool from int", KindBool, 1, nil, true},
		{"string", KindString, "bar", "bar", false},
		{"string from int", KindString, 1, nil, true},
		{"enum", KindEnum, "ADMIN", "ADMIN", false},
		{"date", KindDate, "2024-01-02", "2024-01-02", false},
		{"datetime", KindDate, "2024-01-02 10:11:12", "2024-01-02 10:11:12", false},
		{"bad date", KindDate, "yesterday", nil, true},
		{"json", KindJSON, "{}", nil, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.kind.Coerce(tc.value)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}
