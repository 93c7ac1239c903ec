package planner

import (
	"testing"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func firstField(t *testing.T, query string) *ast.Field {
	t.Helper()
	doc, err := parser.Parse(parser.ParseParams{Source: query})
	require.NoError(t, err)
	op := doc.Definitions[0].(*ast.OperationDefinition)
	return op.SelectionSet.Selections[0].(*ast.Field)
}

func TestClampLimit(t *testing.T) {
	five, huge, negative := 5, 5000, -3
	assert.Equal(t, 100, ClampLimit(nil, 100, 500))
	assert.Equal(t, 5, ClampLimit(&five, 100, 500))
	assert.Equal(t, 500, ClampLimit(&huge, 100, 500))
	assert.Equal(t, 5000, ClampLimit(&huge, 100, 0))
	assert.Equal(t, 0, ClampLimit(&negative, 100, 500))
}

func TestEstimateCost(t *testing.T) {
	field := firstField(t, `{ users(first: 10) { id posts(orderBy: [id_ASC]) { id author { name } } } }`)
	cost := EstimateCost(field, map[string]interface{}{"first": 10}, 20)
	assert.Equal(t, 4, cost.Depth)
	// users: 10 rows, each with 20 posts, each with one author.
	assert.Equal(t, 10+10*(20+20*1), cost.Rows)

	require.NoError(t, ValidateLimits(cost, PlanLimits{MaxDepth: 4}))
	assert.Error(t, ValidateLimits(cost, PlanLimits{MaxDepth: 3}))
	assert.Error(t, ValidateLimits(cost, PlanLimits{MaxRows: 100}))
	assert.Error(t, ValidateLimits(cost, PlanLimits{MaxComplexity: 1}))
	assert.Equal(t, PlanCost{}, EstimateCost(nil, nil, 20))
}

func TestEstimateCostReadsFirstFromAST(t *testing.T) {
	field := firstField(t, `{ users(first: 3) { id } }`)
	cost := EstimateCost(field, nil, 100)
	assert.Equal(t, 3, cost.Rows)
	assert.Equal(t, 2, cost.Depth)
}
