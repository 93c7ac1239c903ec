package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RequestSummary describes one executed GraphQL request.
type RequestSummary struct {
	OperationName string
	OperationType string
	DocumentBytes int
	ErrorCount    int
	// Batch counters of the request scope.
	Dispatches  int
	CacheHits   int
	CacheMisses int
}

// GraphQLSpanAttributes builds span attributes from a request summary.
func GraphQLSpanAttributes(s RequestSummary) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 8)
	if s.OperationName != "" {
		attrs = append(attrs, attribute.String("graphql.operation.name", s.OperationName))
	}
	if s.OperationType != "" {
		attrs = append(attrs, attribute.String("graphql.operation.type", s.OperationType))
	}
	if s.DocumentBytes > 0 {
		attrs = append(attrs, attribute.Int("graphql.document.size_bytes", s.DocumentBytes))
	}
	return append(attrs,
		attribute.Int("graphql.errors.count", s.ErrorCount),
		attribute.Int("relgraph.batch.dispatches", s.Dispatches),
		attribute.Int("relgraph.batch.cache_hits", s.CacheHits),
		attribute.Int("relgraph.batch.cache_misses", s.CacheMisses),
	)
}

// GraphQLLogFields builds structured log fields from a request summary.
func GraphQLLogFields(ctx context.Context, s RequestSummary) []any {
	fields := make([]any, 0, 8)
	if s.OperationName != "" {
		fields = append(fields, slog.String("operation_name", s.OperationName))
	}
	if s.OperationType != "" {
		fields = append(fields, slog.String("operation_type", s.OperationType))
	}
	fields = append(fields,
		slog.Int("error_count", s.ErrorCount),
		slog.Int("batch_dispatches", s.Dispatches),
		slog.Int("batch_cache_hits", s.CacheHits),
	)
	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		fields = append(fields, slog.String("trace_id", spanCtx.TraceID().String()))
	}
	return fields
}
