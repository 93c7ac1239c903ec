package naming

import (
	"log/slog"
	"strings"

	"github.com/jinzhu/inflection"
)

// Namer provides the name transformations used while building the registry
// and the GraphQL schema.
type Namer struct {
	config Config
	logger *slog.Logger
	fields *FieldSet
}

// New creates a Namer with the given configuration
func New(cfg Config, logger *slog.Logger) *Namer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Namer{
		config: cfg,
		logger: logger,
		fields: NewFieldSet(logger),
	}
}

// Default returns a Namer with default configuration
func Default() *Namer {
	return New(DefaultConfig(), nil)
}

// Reset clears the registered field names so the namer can be reused for a
// new registry build.
func (n *Namer) Reset() {
	n.fields = NewFieldSet(n.logger)
}

// Pluralize converts a singular word to its plural form.
// Custom overrides win over the inflection rules.
func (n *Namer) Pluralize(word string) string {
	if override, ok := n.config.PluralOverrides[word]; ok {
		return override
	}
	return inflection.Plural(word)
}

// Singularize converts a plural word to its singular form.
func (n *Namer) Singularize(word string) string {
	if override, ok := n.config.SingularOverrides[word]; ok {
		return override
	}
	return inflection.Singular(word)
}

// TypeName converts an entity name to a GraphQL object type name.
// Example: "user_profile" -> "UserProfile"
func (n *Namer) TypeName(entityName string) string {
	name := toPascalCase(entityName)
	if isReservedTypeName(name) {
		n.logger.Warn("GraphQL type name conflicts with reserved word, auto-suffixed",
			slog.String("original", name),
			slog.String("renamed", name+"_"),
		)
		return name + "_"
	}
	return name
}

// FieldName converts a column or property name to a GraphQL field (camelCase).
// Example: "user_name" -> "userName"
func (n *Namer) FieldName(columnName string) string {
	name := toCamelCase(columnName)
	if isReservedFieldName(name) {
		n.logger.Warn("GraphQL field name conflicts with filter keyword, auto-suffixed",
			slog.String("original", name),
			slog.String("renamed", name+"_"),
		)
		return name + "_"
	}
	return name
}

// ListQueryName returns the root list field for an entity.
// Example: "User" -> "users"
func (n *Namer) ListQueryName(entityName string) string {
	return lowerFirst(n.Pluralize(toPascalCase(entityName)))
}

// SingleQueryName returns the root first-match field for an entity.
// Example: "Users" -> "user"
func (n *Namer) SingleQueryName(entityName string) string {
	return lowerFirst(n.Singularize(toPascalCase(entityName)))
}

// ByIDsQueryName returns the root field that loads rows by primary key.
// Example: "User" -> "usersByIds"
func (n *Namer) ByIDsQueryName(entityName string) string {
	return n.ListQueryName(entityName) + "ByIds"
}

// ManyToOneFieldName derives the owning-side relation field from the FK column.
// Example: "author_id" -> "author", "created_by_user_id" -> "createdByUser"
func (n *Namer) ManyToOneFieldName(fkColumn string) string {
	name := fkColumn
	for _, suffix := range []string{"_id", "_fk", "Id"} {
		if strings.HasSuffix(name, suffix) && len(name) > len(suffix) {
			name = name[:len(name)-len(suffix)]
			break
		}
	}
	return n.FieldName(name)
}

// OneToManyFieldName derives the inverse to-many relation field.
// When the source entity references the target through more than one FK the
// FK name is used as a prefix.
// Example: isOnlyFK=true: "Comment" -> "comments"
// Example: isOnlyFK=false, fkColumn="author_id": "Post" -> "authorPosts"
func (n *Namer) OneToManyFieldName(sourceEntity, fkColumn string, isOnlyFK bool) string {
	plural := n.ListQueryName(sourceEntity)
	if isOnlyFK {
		return plural
	}
	return n.ManyToOneFieldName(fkColumn) + upperFirst(plural)
}

// OneToOneInverseFieldName derives the inverse side of a one-to-one relation.
// Example: "Profile" -> "profile"
func (n *Namer) OneToOneInverseFieldName(sourceEntity string) string {
	return n.SingleQueryName(sourceEntity)
}

// ManyToManyFieldName returns the pluralized target name.
// Example: "Tag" -> "tags"
func (n *Namer) ManyToManyFieldName(targetEntity string) string {
	return n.ListQueryName(targetEntity)
}

// RegisterField records a field on a type and returns a collision-free name.
func (n *Namer) RegisterField(typeName, fieldName, source string) string {
	return n.fields.Register(typeName, fieldName, source)
}

// FieldExists reports whether the field is already registered on the type.
func (n *Namer) FieldExists(typeName, fieldName string) bool {
	return n.fields.Exists(typeName, fieldName)
}

// toPascalCase converts snake_case to PascalCase
func toPascalCase(s string) string {
	parts := strings.Split(s, "_")
	for i, part := range parts {
		parts[i] = upperFirst(part)
	}
	return strings.Join(parts, "")
}

// toCamelCase converts snake_case to camelCase
func toCamelCase(s string) string {
	parts := strings.Split(s, "_")
	for i := 1; i < len(parts); i++ {
		parts[i] = upperFirst(parts[i])
	}
	return strings.Join(parts, "")
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
