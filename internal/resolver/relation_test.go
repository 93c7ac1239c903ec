package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relgraph/internal/dbexec"
	"relgraph/internal/planner"
	"relgraph/internal/sqlutil"
)

func TestResolveOwnerMissingForeignKey(t *testing.T) {
	env := newTestEnv(t, Options{})
	post := env.entity(t, "Post")
	author := env.relation(t, "Post", "author")

	ctx := NewRequestContext(context.Background())
	_, err := env.resolver.ResolveRelation(ctx, dbexec.Row{"id": int64(1)}, post, author, RelationOptions{})
	var missing *MissingForeignKeyError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "Post", missing.Entity)
	assert.Equal(t, "author", missing.Relation)
	assert.Equal(t, "author_id", missing.Column)

	// A sibling parent in the same request is unaffected.
	value, err := force(env.resolver.ResolveRelation(ctx, dbexec.Row{"id": int64(3), "author_id": int64(2)}, post, author, RelationOptions{}))
	require.NoError(t, err)
	assert.Equal(t, "bar", value.(dbexec.Row)["name"])

	value, err = env.resolver.ResolveRelation(WithSuppressErrors(ctx), dbexec.Row{"id": int64(1)}, post, author, RelationOptions{})
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestResolveOwnerNullForeignKey(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := NewRequestContext(context.Background())

	value, err := env.resolver.ResolveRelation(ctx, dbexec.Row{"id": int64(4), "author_id": nil},
		env.entity(t, "Post"), env.relation(t, "Post", "author"), RelationOptions{})
	require.NoError(t, err)
	assert.Nil(t, value)
	assert.Empty(t, env.runner.Calls())
}

func TestResolveOwnerBatchesParents(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := NewRequestContext(context.Background())
	post := env.entity(t, "Post")
	author := env.relation(t, "Post", "author")

	var thunks []interface{}
	for _, parent := range []dbexec.Row{
		{"id": int64(1), "author_id": int64(1)},
		{"id": int64(2), "author_id": int64(1)},
		{"id": int64(3), "author_id": int64(2)},
		{"id": int64(5), "author_id": int64(9)},
	} {
		value, err := env.resolver.ResolveRelation(ctx, parent, post, author, RelationOptions{})
		require.NoError(t, err)
		thunks = append(thunks, value)
	}

	var names []interface{}
	for _, thunk := range thunks {
		value, err := force(thunk, nil)
		require.NoError(t, err)
		if value == nil {
			names = append(names, nil)
			continue
		}
		names = append(names, value.(dbexec.Row)["name"])
	}
	assert.Equal(t, []interface{}{"foo", "foo", "bar", nil}, names)

	calls := env.runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, `SELECT * FROM "users" WHERE "users"."id" IN (?,?,?) ORDER BY "users"."id" ASC`, calls[0].SQL)
}

func TestResolveInverseOneToOne(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := NewRequestContext(context.Background())
	profile := env.entity(t, "Profile")
	user := env.relation(t, "Profile", "user")

	first, err := env.resolver.ResolveRelation(ctx, dbexec.Row{"id": int64(2), "bio": "second"}, profile, user, RelationOptions{})
	require.NoError(t, err)
	orphan, err := env.resolver.ResolveRelation(ctx, dbexec.Row{"id": int64(7), "bio": "none"}, profile, user, RelationOptions{})
	require.NoError(t, err)

	value, err := force(first, nil)
	require.NoError(t, err)
	assert.Equal(t, "bar", value.(dbexec.Row)["name"])

	value, err = force(orphan, nil)
	require.NoError(t, err)
	assert.Nil(t, value)
	assert.Len(t, env.runner.Calls(), 1)
}

func TestResolveInverseOneToOnePicksLowestKey(t *testing.T) {
	env := newTestEnv(t, Options{})
	// A second user pointing at profile 1 violates the one-to-one shape; the
	// lookup is ordered by primary key so the lowest one wins.
	env.runner.tables["users"] = append([]dbexec.Row{
		{"id": int64(0), "name": "zero", "age": nil, "role": "MEMBER", "profile_id": int64(1)},
	}, env.runner.tables["users"]...)
	ctx := NewRequestContext(context.Background())

	value, err := force(env.resolver.ResolveRelation(ctx, dbexec.Row{"id": int64(1)},
		env.entity(t, "Profile"), env.relation(t, "Profile", "user"), RelationOptions{}))
	require.NoError(t, err)
	assert.Equal(t, "zero", value.(dbexec.Row)["name"])
	calls := env.runner.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].SQL, `ORDER BY "users"."id" ASC`)
}

func TestResolveToManyPaging(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := NewRequestContext(context.Background())
	user := env.entity(t, "User")
	posts := env.relation(t, "User", "posts")
	one := 1

	tests := []struct {
		name string
		opts RelationOptions
		want []interface{}
	}{
		{name: "all", want: []interface{}{int64(1), int64(2)}},
		{name: "first", opts: RelationOptions{First: &one}, want: []interface{}{int64(1)}},
		{name: "skip", opts: RelationOptions{Skip: 1}, want: []interface{}{int64(2)}},
		{name: "skip past end", opts: RelationOptions{Skip: 5}, want: []interface{}{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, err := force(env.resolver.ResolveRelation(ctx, dbexec.Row{"id": int64(1)}, user, posts, tt.opts))
			require.NoError(t, err)
			rows, ok := value.([]dbexec.Row)
			require.True(t, ok)
			assert.Equal(t, tt.want, ids(rows))
		})
	}
	assert.Len(t, env.runner.Calls(), 1, "paging is applied after the shared lookup")
}

func TestResolveToManyWithoutChildren(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := NewRequestContext(context.Background())

	value, err := force(env.resolver.ResolveRelation(ctx, dbexec.Row{"id": int64(3)},
		env.entity(t, "User"), env.relation(t, "User", "posts"), RelationOptions{}))
	require.NoError(t, err)
	rows, ok := value.([]dbexec.Row)
	require.True(t, ok)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestResolveManyToMany(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := NewRequestContext(context.Background())

	value, err := force(env.resolver.ResolveRelation(ctx, dbexec.Row{"id": int64(2)},
		env.entity(t, "Tag"), env.relation(t, "Tag", "users"), RelationOptions{}))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(1), int64(2)}, ids(value.([]dbexec.Row)))
}

func TestResolveEagerValue(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := NewRequestContext(context.Background())
	user := env.entity(t, "User")
	posts := env.relation(t, "User", "posts")
	eager := []dbexec.Row{{"id": int64(99), "title": "preloaded"}}

	value, err := env.resolver.ResolveRelation(ctx, dbexec.Row{"id": int64(1), "posts": eager}, user, posts, RelationOptions{})
	require.NoError(t, err)
	assert.Equal(t, eager, value)
	assert.Empty(t, env.runner.Calls())

	where, err := planner.TranslateFilter(env.entity(t, "Post"), sqlutil.SQLite, map[string]interface{}{"published": true})
	require.NoError(t, err)
	value, err = force(env.resolver.ResolveRelation(ctx, dbexec.Row{"id": int64(1), "posts": eager}, user, posts, RelationOptions{Where: where}))
	require.NoError(t, err)
	assert.NotEqual(t, eager, value, "a caller filter bypasses the eager value")
	assert.Len(t, env.runner.Calls(), 1)
}

func TestResolveRelationNilParent(t *testing.T) {
	env := newTestEnv(t, Options{})
	value, err := env.resolver.ResolveRelation(context.Background(), nil,
		env.entity(t, "Post"), env.relation(t, "Post", "author"), RelationOptions{})
	require.NoError(t, err)
	assert.Nil(t, value)
}
