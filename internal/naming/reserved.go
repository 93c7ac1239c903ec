package naming

import "strings"

// Type names may not shadow GraphQL keywords, built-in scalars or literals.
// Comparison is case-insensitive.
var reservedTypeNames = wordSet(
	"query mutation subscription type schema scalar enum input interface union fragment directive",
	"int float string boolean id",
	"true false null",
)

// Field names may not collide with the where combinators. Comparison is
// case-sensitive because the combinators are upper case.
var reservedFieldNames = wordSet("AND OR NOT")

func wordSet(groups ...string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, group := range groups {
		for _, word := range strings.Fields(group) {
			set[word] = struct{}{}
		}
	}
	return set
}

func isReservedTypeName(name string) bool {
	_, reserved := reservedTypeNames[strings.ToLower(name)]
	return reserved || strings.HasPrefix(name, "__")
}

func isReservedFieldName(name string) bool {
	_, reserved := reservedFieldNames[name]
	return reserved || strings.HasPrefix(name, "__")
}
