package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"relgraph/internal/observability"
)

func TestGraphQLMetricsMiddlewareRecordsOperationType(t *testing.T) {
	var fromContext *observability.GraphQLMetrics
	handler, reader, metrics := setupGraphQLMetricsMiddleware(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromContext = observability.GraphQLMetricsFromContext(r.Context())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"users":[]}}`))
	}))

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{"query":"query Users { users { id } }","operationName":"Users"}`))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Same(t, metrics, fromContext, "resolvers find the metrics in the request context")
	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(1), sumInt64Value(rm, "relgraph.requests.total", "query", boolPtr(false)))
	assert.Equal(t, int64(0), sumInt64Value(rm, "relgraph.errors.total", "query", nil))
}

func TestGraphQLMetricsMiddlewareUsesRequestInfo(t *testing.T) {
	inner, reader, _ := setupGraphQLMetricsMiddleware(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	handler := RequestScopeMiddleware(ScopeConfig{})(inner)

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{ tags { id } }`))
	req.Header.Set("Content-Type", "application/graphql")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, int64(1), sumInt64Value(collectMetrics(t, reader), "relgraph.requests.total", "query", boolPtr(false)))
}

func TestGraphQLMetricsMiddlewareCountsErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "graphql errors with 200", status: http.StatusOK, body: `{"errors":[{"message":"boom"}]}`},
		{name: "http failure", status: http.StatusBadRequest, body: `{"data":null}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, reader, _ := setupGraphQLMetricsMiddleware(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))

			req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{"query":"{ users { id } }"}`))
			handler.ServeHTTP(httptest.NewRecorder(), req)

			rm := collectMetrics(t, reader)
			assert.Equal(t, int64(1), sumInt64Value(rm, "relgraph.requests.total", "query", boolPtr(true)))
			assert.Equal(t, int64(1), sumInt64Value(rm, "relgraph.errors.total", "query", nil))
		})
	}
}

func TestGraphQLMetricsMiddlewareUnknownOperationType(t *testing.T) {
	handler, reader, _ := setupGraphQLMetricsMiddleware(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"ok":true}}`))
	}))

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{"query":`))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, int64(1), sumInt64Value(collectMetrics(t, reader), "relgraph.requests.total", "unknown", boolPtr(false)))
}

func TestGraphQLMetricsMiddlewareIgnoresGET(t *testing.T) {
	handler, reader, _ := setupGraphQLMetricsMiddleware(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Nil(t, observability.GraphQLMetricsFromContext(r.Context()))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/graphql", nil))

	assert.Equal(t, int64(0), sumInt64Value(collectMetrics(t, reader), "relgraph.requests.total", "unknown", nil))
}

func TestGraphQLErrorCount(t *testing.T) {
	assert.Equal(t, 0, graphQLErrorCount(nil))
	assert.Equal(t, 0, graphQLErrorCount([]byte(`{"errors":null}`)))
	assert.Equal(t, 0, graphQLErrorCount([]byte(`not json`)))
	assert.Equal(t, 2, graphQLErrorCount([]byte(` {"errors":[{},{}]} `)))
}

func setupGraphQLMetricsMiddleware(t *testing.T, next http.Handler) (http.Handler, *sdkmetric.ManualReader, *observability.GraphQLMetrics) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	oldProvider := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
		otel.SetMeterProvider(oldProvider)
	})

	metrics, err := observability.InitGraphQLMetrics()
	require.NoError(t, err)
	return GraphQLMetricsMiddleware(metrics)(next), reader, metrics
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func sumInt64Value(rm metricdata.ResourceMetrics, metricName, operationType string, hasErrors *bool) int64 {
	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, metric := range scope.Metrics {
			if metric.Name != metricName {
				continue
			}
			sum, ok := metric.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, point := range sum.DataPoints {
				if !matchOperation(point.Attributes, operationType) {
					continue
				}
				if hasErrors != nil && !matchHasErrors(point.Attributes, *hasErrors) {
					continue
				}
				total += point.Value
			}
		}
	}
	return total
}

func matchOperation(attrs attribute.Set, operationType string) bool {
	v, ok := attrs.Value("operation_type")
	return ok && v.AsString() == operationType
}

func matchHasErrors(attrs attribute.Set, hasErrors bool) bool {
	v, ok := attrs.Value("has_errors")
	return ok && v.AsBool() == hasErrors
}

func boolPtr(v bool) *bool {
	return &v
}
