package middleware

import (
	"log/slog"
	"net/http"
	"strconv"

	"relgraph/internal/logging"
	"relgraph/internal/resolver"
)

// IgnoreErrorsHeader lets a caller ask for missing foreign keys to resolve
// to null for one request.
const IgnoreErrorsHeader = "X-Relgraph-Ignore-Errors"

// ScopeConfig configures RequestScopeMiddleware.
type ScopeConfig struct {
	// IgnoreRelationErrors suppresses relation errors for every request.
	IgnoreRelationErrors bool
}

// RequestScopeMiddleware gives every GraphQL request a fresh batch scope and
// records what the payload asks for. The scope is dropped with the request.
func RequestScopeMiddleware(cfg ScopeConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := analyzeRequest(r)
			ctx := withRequestInfo(r.Context(), info)
			ctx = resolver.NewRequestContext(ctx)
			if cfg.IgnoreRelationErrors || headerTrue(r.Header.Get(IgnoreErrorsHeader)) {
				ctx = resolver.WithSuppressErrors(ctx)
			}

			logger := logging.FromContext(ctx)
			if info.OperationName != "" {
				logger = logger.WithFields(slog.String("operation_name", info.OperationName))
				ctx = logging.WithLogger(ctx, logger)
			}

			next.ServeHTTP(w, r.WithContext(ctx))

			if scope, ok := resolver.ScopeFromContext(ctx); ok {
				stats := scope.Stats()
				logger.Debug("graphql request finished",
					slog.String("operation_type", info.OperationType),
					slog.Int("field_count", info.FieldCount),
					slog.Int("batch_dispatches", stats.Dispatches),
					slog.Int("batch_cache_hits", stats.CacheHits),
					slog.Int("batch_cache_misses", stats.CacheMisses),
				)
			}
		})
	}
}

func headerTrue(value string) bool {
	b, err := strconv.ParseBool(value)
	return err == nil && b
}
