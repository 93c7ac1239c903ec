package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relgraph/internal/dbexec"
)

func TestScopeContext(t *testing.T) {
	_, ok := ScopeFromContext(context.Background())
	assert.False(t, ok)
	_, ok = ScopeFromContext(nil) //nolint:staticcheck // nil context is tolerated
	assert.False(t, ok)

	ctx := NewRequestContext(context.Background())
	scope, ok := ScopeFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, ScopeStats{}, scope.Stats())

	other, _ := ScopeFromContext(NewRequestContext(context.Background()))
	assert.NotSame(t, scope, other, "every request gets its own scope")
}

func TestSuppressErrors(t *testing.T) {
	assert.False(t, SuppressErrors(context.Background()))
	assert.True(t, SuppressErrors(WithSuppressErrors(context.Background())))
}

func TestScopeRowCache(t *testing.T) {
	scope := NewScope()
	rows := []dbexec.Row{
		{"id": int64(1), "name": "a"},
		{"id": nil, "name": "no key"},
	}
	scope.cacheRows("User", rows, ColumnKey("id"))

	row, ok := scope.cachedRow("User", TupleKey("1"))
	require.True(t, ok)
	assert.Equal(t, "a", row["name"])

	_, ok = scope.cachedRow("Post", TupleKey(1))
	assert.False(t, ok, "rows are cached per entity")

	scope.cacheRows("Post", rows, nil)
	_, ok = scope.cachedRow("Post", TupleKey(1))
	assert.False(t, ok, "entities without a key are not cached")
}
