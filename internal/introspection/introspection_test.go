package introspection

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relgraph/internal/naming"
	"relgraph/internal/sqltype"
)

var columnHeaders = []string{"COLUMN_NAME", "DATA_TYPE", "COLUMN_TYPE", "COLUMN_COMMENT", "IS_NULLABLE"}

func expectTable(mock sqlmock.Sqlmock, columns *sqlmock.Rows, pks []string, fks *sqlmock.Rows, unique *sqlmock.Rows) {
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.COLUMNS").WillReturnRows(columns)
	pkRows := sqlmock.NewRows([]string{"COLUMN_NAME"})
	for _, pk := range pks {
		pkRows.AddRow(pk)
	}
	mock.ExpectQuery("CONSTRAINT_NAME = 'PRIMARY'").WillReturnRows(pkRows)
	mock.ExpectQuery("REFERENCED_TABLE_NAME IS NOT NULL").WillReturnRows(fks)
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.STATISTICS").WillReturnRows(unique)
}

func fkHeaders() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"COLUMN_NAME", "REFERENCED_TABLE_NAME", "REFERENCED_COLUMN_NAME", "CONSTRAINT_NAME"})
}

func uniqueHeaders() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"INDEX_NAME", "COLUMN_NAME"})
}

func TestIntrospectDatabaseContext(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM INFORMATION_SCHEMA.TABLES").
		WithArgs("blog").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME", "TABLE_TYPE", "TABLE_COMMENT"}).
			AddRow("posts", "BASE TABLE", nil).
			AddRow("profiles", "BASE TABLE", "user bios").
			AddRow("users", "BASE TABLE", nil))

	expectTable(mock,
		sqlmock.NewRows(columnHeaders).
			AddRow("id", "int", "int(11)", nil, "NO").
			AddRow("title", "varchar", "varchar(255)", nil, "NO").
			AddRow("author_id", "int", "int(11)", nil, "YES"),
		[]string{"id"},
		fkHeaders().AddRow("author_id", "users", "id", "posts_ibfk_1"),
		uniqueHeaders().AddRow("PRIMARY", "id"),
	)
	expectTable(mock,
		sqlmock.NewRows(columnHeaders).
			AddRow("id", "int", "int(11)", nil, "NO").
			AddRow("user_id", "int", "int(11)", nil, "NO").
			AddRow("visible", "tinyint", "tinyint(1)", nil, "NO"),
		[]string{"id"},
		fkHeaders().AddRow("user_id", "users", "id", "profiles_ibfk_1"),
		uniqueHeaders().AddRow("PRIMARY", "id").AddRow("uniq_user", "user_id"),
	)
	expectTable(mock,
		sqlmock.NewRows(columnHeaders).
			AddRow("id", "int", "int(11)", nil, "NO").
			AddRow("role", "enum", "enum('admin','member')", "access level", "NO"),
		[]string{"id"},
		fkHeaders(),
		uniqueHeaders().AddRow("PRIMARY", "id"),
	)

	registry, err := IntrospectDatabaseContext(context.Background(), db, "blog", naming.Default())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	post, err := registry.DescribeTable("posts")
	require.NoError(t, err)
	assert.Equal(t, "Post", post.Name)
	author, ok := post.RelationByField("author")
	require.True(t, ok)
	assert.Equal(t, ManyToOne, author.Cardinality)
	assert.Equal(t, "User", author.Target)
	assert.True(t, author.IsNullable)

	profile, err := registry.Describe("Profile")
	require.NoError(t, err)
	assert.Equal(t, "user bios", profile.Comment)
	owner, ok := profile.RelationByField("user")
	require.True(t, ok)
	assert.Equal(t, OneToOneOwner, owner.Cardinality)
	visible, ok := profile.ColumnByName("visible")
	require.True(t, ok)
	assert.Equal(t, sqltype.KindBool, visible.Kind)

	user, err := registry.Describe("User")
	require.NoError(t, err)
	require.Len(t, user.Relations, 2)
	assert.Equal(t, "posts", user.Relations[0].FieldName)
	assert.Equal(t, OneToMany, user.Relations[0].Cardinality)
	assert.Equal(t, "author_id", user.Relations[0].ForeignKey)
	assert.Equal(t, "profile", user.Relations[1].FieldName)
	assert.Equal(t, OneToOneInverse, user.Relations[1].Cardinality)

	role, ok := user.ColumnByName("role")
	require.True(t, ok)
	assert.Equal(t, sqltype.KindEnum, role.Kind)
	assert.Equal(t, []string{"admin", "member"}, role.EnumValues)
	assert.Equal(t, "access level", role.Comment)
}

func TestIntrospectDatabaseContextJunction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM INFORMATION_SCHEMA.TABLES").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME", "TABLE_TYPE", "TABLE_COMMENT"}).
			AddRow("tags", "BASE TABLE", nil).
			AddRow("user_tags", "BASE TABLE", nil).
			AddRow("users", "BASE TABLE", nil).
			AddRow("active_users", "VIEW", nil))

	idOnly := func() *sqlmock.Rows {
		return sqlmock.NewRows(columnHeaders).AddRow("id", "bigint", "bigint(20)", nil, "NO")
	}
	expectTable(mock, idOnly(), []string{"id"}, fkHeaders(), uniqueHeaders())
	expectTable(mock,
		sqlmock.NewRows(columnHeaders).
			AddRow("user_id", "bigint", "bigint(20)", nil, "NO").
			AddRow("tag_id", "bigint", "bigint(20)", nil, "NO"),
		[]string{"user_id", "tag_id"},
		fkHeaders().
			AddRow("tag_id", "tags", "id", "fk_tag").
			AddRow("user_id", "users", "id", "fk_user"),
		uniqueHeaders(),
	)
	expectTable(mock, idOnly(), []string{"id"}, fkHeaders(), uniqueHeaders())
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.COLUMNS").WillReturnRows(idOnly())

	registry, err := IntrospectDatabaseContext(context.Background(), db, "blog", nil)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	junction, err := registry.DescribeTable("user_tags")
	require.NoError(t, err)
	assert.True(t, junction.IsJunction)

	tag, err := registry.Describe("Tag")
	require.NoError(t, err)
	users, ok := tag.RelationByField("users")
	require.True(t, ok)
	assert.Equal(t, ManyToMany, users.Cardinality)
	assert.Equal(t, "tag_id", users.Junction.LocalColumn)
	assert.Equal(t, "user_id", users.Junction.RemoteColumn)

	user, err := registry.Describe("User")
	require.NoError(t, err)
	tags, ok := user.RelationByField("tags")
	require.True(t, ok)
	assert.Equal(t, "user_id", tags.Junction.LocalColumn)

	view, err := registry.DescribeTable("active_users")
	require.NoError(t, err)
	assert.Empty(t, view.PrimaryKeyColumns())
}

func TestIntrospectDatabaseContextError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM INFORMATION_SCHEMA.TABLES").WillReturnError(errors.New("access denied"))

	_, err = IntrospectDatabaseContext(context.Background(), db, "blog", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get tables")
	assert.Contains(t, err.Error(), "access denied")
}
