package naming

import (
	"fmt"
	"log/slog"
)

// FieldSet tracks field names per GraphQL type and resolves collisions
// by applying numeric suffixes.
type FieldSet struct {
	seen   map[string]map[string]string // type name → field name → source
	logger *slog.Logger
}

// NewFieldSet creates an empty field set.
func NewFieldSet(logger *slog.Logger) *FieldSet {
	if logger == nil {
		logger = slog.Default()
	}
	return &FieldSet{
		seen:   make(map[string]map[string]string),
		logger: logger,
	}
}

// Register records fieldName on typeName and returns the resolved name.
func (s *FieldSet) Register(typeName, fieldName, source string) string {
	fields := s.seen[typeName]
	if fields == nil {
		fields = make(map[string]string)
		s.seen[typeName] = fields
	}
	if _, exists := fields[fieldName]; !exists {
		fields[fieldName] = source
		return fieldName
	}

	s.logger.Warn("naming collision detected, applying suffix",
		slog.String("type", typeName),
		slog.String("name", fieldName),
		slog.String("existing_source", fields[fieldName]),
		slog.String("new_source", source),
	)
	for i := 2; ; i++ {
		suffixed := fmt.Sprintf("%s%d", fieldName, i)
		if _, exists := fields[suffixed]; !exists {
			fields[suffixed] = source
			return suffixed
		}
	}
}

// Exists reports whether a field name is already registered for a type.
func (s *FieldSet) Exists(typeName, fieldName string) bool {
	_, ok := s.seen[typeName][fieldName]
	return ok
}
