package planner

import "fmt"

// UnknownFieldError reports a filter key or order directive naming a field
// the entity does not declare.
type UnknownFieldError struct {
	Entity string
	Field  string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown field %q on %s", e.Field, e.Entity)
}

// UnknownOperatorError reports a filter key with an unsupported operator suffix.
type UnknownOperatorError struct {
	Entity   string
	Key      string
	Operator string
}

func (e *UnknownOperatorError) Error() string {
	return fmt.Sprintf("unknown operator %q in filter key %q on %s", e.Operator, e.Key, e.Entity)
}

// TypeMismatchError reports a filter value that does not fit the column.
type TypeMismatchError struct {
	Entity string
	Field  string
	Reason string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("invalid value for %s.%s: %s", e.Entity, e.Field, e.Reason)
}

// InvalidOrderDirectiveError reports an order directive that is not {field}_ASC or {field}_DESC.
type InvalidOrderDirectiveError struct {
	Directive string
	Reason    string
}

func (e *InvalidOrderDirectiveError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid order directive %q: expected {field}_ASC or {field}_DESC", e.Directive)
	}
	return fmt.Sprintf("invalid order directive %q: %s", e.Directive, e.Reason)
}
