package naming

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeName(t *testing.T) {
	namer := Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"User", "User"},
		{"user_profile", "UserProfile"},
		{"order_items", "OrderItems"},
		{"query", "Query_"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.TypeName(tt.input))
		})
	}
}

func TestFieldName(t *testing.T) {
	namer := Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"user_name", "userName"},
		{"created_at", "createdAt"},
		{"id", "id"},
		{"AND", "AND_"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.FieldName(tt.input))
		})
	}
}

func TestRootQueryNames(t *testing.T) {
	namer := Default()

	assert.Equal(t, "users", namer.ListQueryName("User"))
	assert.Equal(t, "user", namer.SingleQueryName("User"))
	assert.Equal(t, "usersByIds", namer.ByIDsQueryName("User"))
	assert.Equal(t, "userProfiles", namer.ListQueryName("user_profile"))
	assert.Equal(t, "categories", namer.ListQueryName("Category"))
}

func TestPluralOverrides(t *testing.T) {
	namer := New(Config{
		PluralOverrides:   map[string]string{"Person": "Folks"},
		SingularOverrides: map[string]string{"Folks": "Person"},
	}, nil)

	assert.Equal(t, "folks", namer.ListQueryName("Person"))
	assert.Equal(t, "person", namer.SingleQueryName("Folks"))
}

func TestRelationFieldNames(t *testing.T) {
	namer := Default()

	t.Run("many to one strips id suffix", func(t *testing.T) {
		assert.Equal(t, "author", namer.ManyToOneFieldName("author_id"))
		assert.Equal(t, "createdByUser", namer.ManyToOneFieldName("created_by_user_id"))
		assert.Equal(t, "owner", namer.ManyToOneFieldName("ownerId"))
		assert.Equal(t, "id", namer.ManyToOneFieldName("id"))
	})

	t.Run("one to many", func(t *testing.T) {
		assert.Equal(t, "posts", namer.OneToManyFieldName("Post", "author_id", true))
		assert.Equal(t, "authorPosts", namer.OneToManyFieldName("Post", "author_id", false))
	})

	t.Run("inverse one to one and many to many", func(t *testing.T) {
		assert.Equal(t, "profile", namer.OneToOneInverseFieldName("Profile"))
		assert.Equal(t, "tags", namer.ManyToManyFieldName("Tag"))
	})
}

func TestRegisterFieldCollision(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	namer := New(DefaultConfig(), logger)

	assert.Equal(t, "author", namer.RegisterField("Post", "author", "column:author"))
	assert.Equal(t, "author2", namer.RegisterField("Post", "author", "relation:author_id"))
	assert.True(t, namer.FieldExists("Post", "author2"))
	assert.False(t, namer.FieldExists("User", "author"))
	assert.Contains(t, buf.String(), "naming collision detected")

	namer.Reset()
	assert.False(t, namer.FieldExists("Post", "author"))
}
