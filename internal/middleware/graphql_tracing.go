package middleware

import (
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"relgraph/internal/logging"
	"relgraph/internal/observability"
	"relgraph/internal/resolver"
)

// GraphQLTracingMiddleware wraps GraphQL execution in a span. It runs inside
// RequestScopeMiddleware so the span can report the request's batch counters.
func GraphQLTracingMiddleware() func(http.Handler) http.Handler {
	tracer := otel.Tracer("relgraph/graphql")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, ok := RequestInfoFromContext(r.Context())
			if !ok || info.DocumentBytes == 0 {
				next.ServeHTTP(w, r)
				return
			}

			ctx, span := tracer.Start(r.Context(), "graphql.execute")
			defer span.End()
			if spanCtx := span.SpanContext(); spanCtx.IsValid() {
				ctx = logging.WithLogger(ctx, logging.FromContext(ctx).WithFields(
					slog.String("trace_id", spanCtx.TraceID().String()),
					slog.String("span_id", spanCtx.SpanID().String()),
				))
			}

			rec := newBodyRecorder(w)
			next.ServeHTTP(rec, r.WithContext(ctx))
			if !span.IsRecording() {
				return
			}

			summary := observability.RequestSummary{
				OperationName: info.OperationName,
				OperationType: info.OperationType,
				DocumentBytes: info.DocumentBytes,
				ErrorCount:    graphQLErrorCount(rec.body.Bytes()),
			}
			if scope, ok := resolver.ScopeFromContext(ctx); ok {
				stats := scope.Stats()
				summary.Dispatches = stats.Dispatches
				summary.CacheHits = stats.CacheHits
				summary.CacheMisses = stats.CacheMisses
				if total := stats.CacheHits + stats.CacheMisses; total > 0 {
					span.SetAttributes(attribute.Float64("relgraph.batch.cache_hit_ratio", float64(stats.CacheHits)/float64(total)))
				}
			}
			span.SetAttributes(observability.GraphQLSpanAttributes(summary)...)
			span.SetAttributes(
				attribute.Int("graphql.query.field_count", info.FieldCount),
				attribute.Int("graphql.query.depth", info.SelectionDepth),
			)
			if summary.ErrorCount > 0 || rec.statusCode >= 500 {
				span.SetStatus(codes.Error, "graphql request returned errors")
			}
		})
	}
}
