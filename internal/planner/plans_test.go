package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relgraph/internal/sqlutil"
	"relgraph/internal/testutil/fixtures"
)

func TestPlanList(t *testing.T) {
	user := fixtures.BlogEntity(t, "User")
	where := translateUser(t, sqlutil.Postgres, mustDecode(t, `{"OR":[{"age":20},{"name":"bar"}]}`))
	order, err := ParseOrder(user, []string{"age_DESC"})
	require.NoError(t, err)

	planned, err := New(sqlutil.Postgres).PlanList(user, ListOptions{Where: where, Order: order, Limit: 10, Offset: 5})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT * FROM "users" WHERE ("users"."age" = $1 OR "users"."name" = $2) ORDER BY "users"."age" DESC, "users"."id" ASC LIMIT 10 OFFSET 5`,
		planned.SQL)
	assert.Equal(t, []interface{}{int64(20), "bar"}, planned.Args)
}

func TestPlanListWithoutFilter(t *testing.T) {
	user := fixtures.BlogEntity(t, "User")
	planned, err := New(sqlutil.MySQL).PlanList(user, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM `users` ORDER BY `users`.`id` ASC", planned.SQL)
	assert.Empty(t, planned.Args)

	_, err = New(sqlutil.MySQL).PlanList(user, ListOptions{Limit: -1})
	assert.Error(t, err)
}

func TestPlanBatchByColumn(t *testing.T) {
	post := fixtures.BlogEntity(t, "Post")
	p := New(sqlutil.MySQL)

	planned, err := p.PlanBatchByColumn(post, "author_id", []interface{}{1, 2}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM `posts` WHERE `posts`.`author_id` IN (?,?) ORDER BY `posts`.`id` ASC", planned.SQL)
	assert.Equal(t, []interface{}{1, 2}, planned.Args)

	where, err := TranslateFilter(post, sqlutil.MySQL, ordered("published", true))
	require.NoError(t, err)
	planned, err = p.PlanBatchByColumn(post, "author_id", []interface{}{1}, where, nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM `posts` WHERE `posts`.`author_id` IN (?) AND `posts`.`published` = ? ORDER BY `posts`.`id` ASC", planned.SQL)
	assert.Equal(t, []interface{}{1, true}, planned.Args)

	planned, err = p.PlanBatchByColumn(post, "author_id", nil, nil, nil)
	require.NoError(t, err)
	assert.True(t, planned.IsEmpty())

	_, err = p.PlanBatchByColumn(post, "writer_id", []interface{}{1}, nil, nil)
	assert.Error(t, err)
}

func TestPlanManyToManyBatch(t *testing.T) {
	user := fixtures.BlogEntity(t, "User")
	tag := fixtures.BlogEntity(t, "Tag")
	rel, ok := user.RelationByField("tags")
	require.True(t, ok)

	planned, err := New(sqlutil.SQLite).PlanManyToManyBatch(tag, *rel.Junction, []interface{}{1, 2}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "tags".*, "user_tags"."user_id" AS __batch_parent_id FROM "tags" JOIN "user_tags" ON "user_tags"."tag_id" = "tags"."id" WHERE "user_tags"."user_id" IN (?,?) ORDER BY "user_tags"."user_id", "tags"."id" ASC`,
		planned.SQL)
	assert.Equal(t, []interface{}{1, 2}, planned.Args)
}

func TestPlanByPrimaryKeys(t *testing.T) {
	p := New(sqlutil.MySQL)

	user := fixtures.BlogEntity(t, "User")
	planned, err := p.PlanByPrimaryKeys(user, []interface{}{3, 1})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM `users` WHERE `users`.`id` IN (?,?) ORDER BY `users`.`id` ASC", planned.SQL)

	link := fixtures.BlogEntity(t, "UserTag")
	planned, err = p.PlanByPrimaryKeys(link, []interface{}{
		ParentTuple{Values: []interface{}{1, 2}},
		ParentTuple{Values: []interface{}{2, 2}},
	})
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT * FROM `user_tags` WHERE (`user_tags`.`user_id`, `user_tags`.`tag_id`) IN ((?,?), (?,?)) ORDER BY `user_tags`.`user_id` ASC, `user_tags`.`tag_id` ASC",
		planned.SQL)
	assert.Equal(t, []interface{}{1, 2, 2, 2}, planned.Args)

	_, err = p.PlanByPrimaryKeys(link, []interface{}{1})
	assert.Error(t, err)
	_, err = p.PlanByPrimaryKeys(link, []interface{}{ParentTuple{Values: []interface{}{1}}})
	assert.Error(t, err)
}
