package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"relgraph/internal/observability"
)

// GraphQLMetricsMiddleware records request counts, durations and errors, and
// hands the metrics to the resolver through the request context.
func GraphQLMetricsMiddleware(metrics *observability.GraphQLMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// GraphiQL page loads are not GraphQL requests.
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			ctx := observability.ContextWithGraphQLMetrics(r.Context(), metrics)
			metrics.IncrementActiveRequests(ctx)
			defer metrics.DecrementActiveRequests(ctx)

			info, ok := RequestInfoFromContext(ctx)
			if !ok {
				info = analyzeRequest(r)
			}

			start := time.Now()
			rec := newBodyRecorder(w)
			next.ServeHTTP(rec, r.WithContext(ctx))

			hasErrors := rec.statusCode >= 400 || graphQLErrorCount(rec.body.Bytes()) > 0
			metrics.RecordRequest(ctx, time.Since(start), hasErrors, info.OperationType)
		})
	}
}

// bodyRecorder copies the response status and body as they are written.
type bodyRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
	body       bytes.Buffer
}

func newBodyRecorder(w http.ResponseWriter) *bodyRecorder {
	return &bodyRecorder{ResponseWriter: w, statusCode: http.StatusOK}
}

func (w *bodyRecorder) WriteHeader(statusCode int) {
	if !w.written {
		w.statusCode = statusCode
		w.written = true
		w.ResponseWriter.WriteHeader(statusCode)
	}
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	_, _ = w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// graphQLErrorCount returns the length of the response's errors array.
func graphQLErrorCount(body []byte) int {
	var payload struct {
		Errors []json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(body), &payload); err != nil {
		return 0
	}
	return len(payload.Errors)
}
