package planner

import (
	"fmt"
	"strconv"

	"github.com/graphql-go/graphql/language/ast"
)

const (
	DefaultListLimit = 100
	// DefaultBatchInLimit caps the keys bound into one IN list.
	DefaultBatchInLimit = 1000
)

// PlanLimits defines cost limits applied before a request is executed.
type PlanLimits struct {
	MaxDepth      int
	MaxComplexity int
	MaxRows       int
}

// PlanCost captures estimated cost for a query.
type PlanCost struct {
	Depth      int
	Complexity int
	Rows       int
}

// ClampLimit applies the default and maximum page size to a requested
// `first` value. A zero maximum disables the ceiling.
func ClampLimit(first *int, defaultLimit, maxLimit int) int {
	limit := defaultLimit
	if first != nil {
		limit = *first
	}
	if limit < 0 {
		limit = 0
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	return limit
}

// EstimateCost estimates cost based on the field selection and arguments.
func EstimateCost(field *ast.Field, args map[string]interface{}, fallbackLimit int) PlanCost {
	if field == nil {
		return PlanCost{}
	}
	return PlanCost{
		Depth:      selectionDepth(field, 1),
		Complexity: estimateComplexityRecursive(field, args, fallbackLimit),
		Rows:       estimateRowsRecursive(field, args, fallbackLimit),
	}
}

// ValidateLimits rejects a cost that exceeds any configured limit.
func ValidateLimits(cost PlanCost, limits PlanLimits) error {
	if limits.MaxDepth > 0 && cost.Depth > limits.MaxDepth {
		return fmt.Errorf("query exceeds maximum depth of %d (depth: %d)", limits.MaxDepth, cost.Depth)
	}
	if limits.MaxComplexity > 0 && cost.Complexity > limits.MaxComplexity {
		return fmt.Errorf("query exceeds maximum complexity of %d (complexity: %d)", limits.MaxComplexity, cost.Complexity)
	}
	if limits.MaxRows > 0 && cost.Rows > limits.MaxRows {
		return fmt.Errorf("query exceeds maximum rows of %d (estimated: %d)", limits.MaxRows, cost.Rows)
	}
	return nil
}

func selectionDepth(field *ast.Field, current int) int {
	if field.SelectionSet == nil || len(field.SelectionSet.Selections) == 0 {
		return current
	}
	maxDepth := current
	for _, selection := range field.SelectionSet.Selections {
		sub, ok := selection.(*ast.Field)
		if !ok {
			continue
		}
		if depth := selectionDepth(sub, current+1); depth > maxDepth {
			maxDepth = depth
		}
	}
	return maxDepth
}

func estimateRowsRecursive(field *ast.Field, args map[string]interface{}, fallbackLimit int) int {
	limit := listLimitForField(field, args, fallbackLimit)
	rows := limit
	if field.SelectionSet == nil {
		return rows
	}
	for _, selection := range field.SelectionSet.Selections {
		sub, ok := selection.(*ast.Field)
		if !ok || sub.SelectionSet == nil {
			continue
		}
		rows += limit * estimateRowsRecursive(sub, nil, fallbackLimit)
	}
	return rows
}

func estimateComplexityRecursive(field *ast.Field, args map[string]interface{}, fallbackLimit int) int {
	limit := listLimitForField(field, args, fallbackLimit)
	if field.SelectionSet == nil || len(field.SelectionSet.Selections) == 0 {
		return limit
	}
	complexity := 1
	for _, selection := range field.SelectionSet.Selections {
		sub, ok := selection.(*ast.Field)
		if !ok {
			continue
		}
		complexity += limit * estimateComplexityRecursive(sub, nil, fallbackLimit)
	}
	return complexity
}

// listLimitForField counts scalar and to-one fields as one row. List fields
// are recognised by a `first` argument or by carrying a selection set with
// list arguments (where, orderBy, skip).
func listLimitForField(field *ast.Field, args map[string]interface{}, fallback int) int {
	if first, ok := argInt(args, "first"); ok {
		return first
	}
	if first, ok := intFromAST(field, "first"); ok {
		return first
	}
	if hasArgNamed(field, "orderBy") || hasArgNamed(field, "skip") {
		return fallback
	}
	return 1
}

func argInt(args map[string]interface{}, key string) (int, bool) {
	if args == nil {
		return 0, false
	}
	intVal, ok := args[key].(int)
	if !ok || intVal < 0 {
		return 0, false
	}
	return intVal, true
}

func intFromAST(field *ast.Field, name string) (int, bool) {
	for _, arg := range field.Arguments {
		if arg == nil || arg.Name == nil || arg.Value == nil || arg.Name.Value != name {
			continue
		}
		if intVal, ok := arg.Value.(*ast.IntValue); ok {
			if parsed, err := strconv.Atoi(intVal.Value); err == nil && parsed >= 0 {
				return parsed, true
			}
		}
	}
	return 0, false
}

func hasArgNamed(field *ast.Field, name string) bool {
	for _, arg := range field.Arguments {
		if arg != nil && arg.Name != nil && arg.Name.Value == name {
			return true
		}
	}
	return false
}
