package scalars

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONScalar(t *testing.T) {
	scalar := JSON()

	input := map[string]interface{}{"name": "ava", "active": true}
	serialized := scalar.Serialize(input)
	require.IsType(t, "", serialized)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(serialized.(string)), &decoded))
	assert.Equal(t, "ava", decoded["name"])
	assert.Equal(t, true, decoded["active"])

	assert.Equal(t, `{"ok":true}`, scalar.Serialize([]byte(`{"ok":true}`)))
	assert.Equal(t, `{"ok":true}`, scalar.ParseValue(`{"ok":true}`))
	assert.Nil(t, scalar.ParseValue(12))
}

func TestNonNegativeIntScalar(t *testing.T) {
	scalar := NonNegativeInt()

	assert.Equal(t, 3, scalar.Serialize(3))
	assert.Nil(t, scalar.Serialize(-1))

	assert.Equal(t, 4, scalar.ParseValue("4"))
	assert.Equal(t, 5, scalar.ParseValue(float64(5)))
	assert.Nil(t, scalar.ParseValue("-2"))
	assert.Nil(t, scalar.ParseValue(1.5))

	assert.Equal(t, 7, scalar.ParseLiteral(&ast.IntValue{Value: "7"}))
	assert.Nil(t, scalar.ParseLiteral(&ast.IntValue{Value: "-7"}))
	assert.Nil(t, scalar.ParseLiteral(&ast.StringValue{Value: "7"}))
}

func TestDateTimeScalar(t *testing.T) {
	scalar := DateTime()

	input := time.Date(2024, 1, 15, 10, 30, 0, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, "2024-01-15T09:30:00Z", scalar.Serialize(input))
	assert.Equal(t, "2024-01-15 10:30:00", scalar.Serialize([]byte("2024-01-15 10:30:00")))
	assert.Nil(t, scalar.Serialize(42))

	for _, valid := range []string{"2024-01-02", "2024-01-02 11:12:13", "2024-01-02T11:12:13Z", "11:12:13"} {
		assert.Equal(t, valid, scalar.ParseValue(valid), valid)
	}
	assert.Nil(t, scalar.ParseValue("yesterday"))
	assert.Nil(t, scalar.ParseValue("2024-13-01"))

	assert.Equal(t, "2024-01-02", scalar.ParseLiteral(&ast.StringValue{Value: "2024-01-02"}))
	assert.Nil(t, scalar.ParseLiteral(&ast.IntValue{Value: "2024"}))
}
