package introspection

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relgraph/internal/naming"
	"relgraph/internal/sqltype"
)

func usersAndPosts() []Entity {
	return []Entity{
		{
			Name:  "User",
			Table: "users",
			Columns: []Column{
				{Name: "id", Kind: sqltype.KindInt, IsPrimaryKey: true},
				{Name: "first_name", Kind: sqltype.KindString},
			},
			Relations: []Relation{
				{FieldName: "posts", Target: "Post", Cardinality: OneToMany, ForeignKey: "author_id"},
			},
		},
		{
			Name:  "Post",
			Table: "posts",
			Columns: []Column{
				{Name: "id", Kind: sqltype.KindInt, IsPrimaryKey: true},
				{Name: "author_id", Kind: sqltype.KindInt, IsNullable: true},
			},
			Relations: []Relation{
				{FieldName: "author", Target: "User", Cardinality: ManyToOne, ForeignKey: "author_id", IsNullable: true},
			},
		},
	}
}

func TestNewRegistry(t *testing.T) {
	input := usersAndPosts()
	registry, err := NewRegistry(input, naming.Default())
	require.NoError(t, err)

	user, err := registry.Describe("User")
	require.NoError(t, err)
	assert.Equal(t, "users", user.GraphQLQueryName)
	assert.Equal(t, "user", user.GraphQLSingleQueryName)
	assert.Equal(t, "usersByIds", user.GraphQLByIDsQueryName)
	assert.Equal(t, "User", user.GraphQLTypeName)

	col, ok := user.ColumnByField("firstName")
	require.True(t, ok)
	assert.Equal(t, "first_name", col.Name)

	posts, ok := user.RelationByField("posts")
	require.True(t, ok)
	assert.Equal(t, "id", posts.References, "inverse relation defaults to the source primary key")

	post, err := registry.DescribeTable("posts")
	require.NoError(t, err)
	author, ok := post.RelationByField("author")
	require.True(t, ok)
	assert.Equal(t, "id", author.References, "owner relation defaults to the target primary key")

	assert.Equal(t, []string{"Post", "User"}, registry.Names())
	assert.Len(t, registry.Entities(), 2)

	assert.Empty(t, input[0].Relations[0].References, "input descriptors are not mutated")
}

func TestNewRegistryErrors(t *testing.T) {
	t.Run("unknown entity lookup", func(t *testing.T) {
		registry, err := NewRegistry(usersAndPosts(), nil)
		require.NoError(t, err)
		_, err = registry.Describe("Comment")
		assert.True(t, errors.Is(err, ErrUnknownEntity))
	})

	t.Run("unknown relation target", func(t *testing.T) {
		entities := usersAndPosts()
		entities[1].Relations[0].Target = "Account"
		_, err := NewRegistry(entities, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnknownEntity))
	})

	t.Run("missing foreign key column", func(t *testing.T) {
		entities := usersAndPosts()
		entities[0].Relations[0].ForeignKey = "writer_id"
		_, err := NewRegistry(entities, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "writer_id")
	})

	t.Run("duplicate entity", func(t *testing.T) {
		entities := append(usersAndPosts(), Entity{Name: "User"})
		_, err := NewRegistry(entities, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate entity")
	})

	t.Run("many to many without junction", func(t *testing.T) {
		entities := usersAndPosts()
		entities[0].Relations = append(entities[0].Relations, Relation{FieldName: "tags", Target: "Post", Cardinality: ManyToMany})
		_, err := NewRegistry(entities, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "junction")
	})
}

func TestEntityPrimaryKeys(t *testing.T) {
	entity := Entity{
		Name: "UserTag",
		Columns: []Column{
			{Name: "user_id", IsPrimaryKey: true},
			{Name: "tag_id", IsPrimaryKey: true},
		},
	}
	assert.Equal(t, []string{"user_id", "tag_id"}, entity.PrimaryKeyColumnNames())
	_, err := entity.SinglePrimaryKey()
	assert.Error(t, err)

	empty := Entity{Name: "Log", Columns: []Column{{Name: "line"}}}
	_, err = empty.SinglePrimaryKey()
	assert.Error(t, err)
}

func TestCardinality(t *testing.T) {
	for _, c := range []Cardinality{ManyToOne, OneToOneOwner, OneToOneInverse, OneToMany, ManyToMany} {
		parsed, err := ParseCardinality(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
	}
	parsed, err := ParseCardinality("ONE_TO_MANY")
	require.NoError(t, err)
	assert.Equal(t, OneToMany, parsed)

	_, err = ParseCardinality("some-to-some")
	assert.Error(t, err)

	assert.True(t, ManyToMany.IsToMany())
	assert.True(t, OneToOneOwner.IsOwner())
	assert.False(t, OneToOneInverse.IsOwner())
}

func TestLoadRegistry(t *testing.T) {
	doc := `
entities:
  - name: User
    table: users
    columns:
      - {name: id, type: int, primary_key: true}
      - {name: status, type: enum, values: [ACTIVE, BANNED]}
      - {name: score, sql_type: "decimal(10,2)"}
    relations:
      - {field: posts, target: Post, cardinality: one-to-many, foreign_key: user_id}
  - name: Post
    table: posts
    columns:
      - {name: id, type: int, primary_key: true}
      - {name: user_id, type: int}
`
	registry, err := LoadRegistry(strings.NewReader(doc), nil)
	require.NoError(t, err)

	user, err := registry.Describe("User")
	require.NoError(t, err)
	status, ok := user.ColumnByName("status")
	require.True(t, ok)
	assert.Equal(t, sqltype.KindEnum, status.Kind)
	assert.Equal(t, []string{"ACTIVE", "BANNED"}, status.EnumValues)
	score, ok := user.ColumnByName("score")
	require.True(t, ok)
	assert.Equal(t, sqltype.KindFloat, score.Kind)

	out, err := MarshalRegistry(registry)
	require.NoError(t, err)
	assert.Contains(t, string(out), "cardinality: one-to-many")
}

func TestLoadRegistryErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"empty", "", "empty"},
		{"unknown key", "entities:\n  - name: A\n    tabel: a\n", "tabel"},
		{"bad kind", "entities:\n  - name: A\n    columns:\n      - {name: id, type: uuid}\n", "uuid"},
		{"enum without values", "entities:\n  - name: A\n    columns:\n      - {name: s, type: enum}\n", "requires values"},
		{"bad cardinality", "entities:\n  - name: A\n    columns: [{name: id, type: int}]\n    relations:\n      - {field: b, target: A, cardinality: lots}\n", "lots"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRegistry(strings.NewReader(tt.doc), nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
