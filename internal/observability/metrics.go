package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of every relgraph metric.
const MeterName = "relgraph"

// GraphQLMetrics records request and batch loading metrics.
type GraphQLMetrics struct {
	requestDuration   metric.Float64Histogram
	requestCounter    metric.Int64Counter
	errorCounter      metric.Int64Counter
	activeRequests    metric.Int64UpDownCounter
	resultsCount      metric.Int64Histogram
	batchParentCount  metric.Int64Histogram
	batchResultRows   metric.Int64Histogram
	batchCacheHits    metric.Int64Counter
	batchCacheMisses  metric.Int64Counter
	batchQueriesSaved metric.Int64Counter
	batchSkipped      metric.Int64Counter
	relationErrors    metric.Int64Counter
}

// InitGraphQLMetrics creates the metrics on the global meter provider.
func InitGraphQLMetrics() (*GraphQLMetrics, error) {
	return NewGraphQLMetrics(otel.Meter(MeterName))
}

// NewGraphQLMetrics creates the metrics on meter.
func NewGraphQLMetrics(meter metric.Meter) (*GraphQLMetrics, error) {
	var (
		m   GraphQLMetrics
		err error
	)
	histogram := func(name, desc string) metric.Int64Histogram {
		if err != nil {
			return nil
		}
		var h metric.Int64Histogram
		if h, err = meter.Int64Histogram(name, metric.WithDescription(desc)); err != nil {
			err = fmt.Errorf("failed to create %s: %w", name, err)
		}
		return h
	}
	counter := func(name, desc string) metric.Int64Counter {
		if err != nil {
			return nil
		}
		var c metric.Int64Counter
		if c, err = meter.Int64Counter(name, metric.WithDescription(desc)); err != nil {
			err = fmt.Errorf("failed to create %s: %w", name, err)
		}
		return c
	}

	m.requestCounter = counter("relgraph.requests.total", "Total number of GraphQL requests")
	m.errorCounter = counter("relgraph.errors.total", "Total number of GraphQL requests with errors")
	m.resultsCount = histogram("relgraph.results.count", "Rows returned by root list fields")
	m.batchParentCount = histogram("relgraph.batch.parent_count", "Distinct keys bound into one grouped lookup")
	m.batchResultRows = histogram("relgraph.batch.result_rows", "Rows returned by one grouped lookup")
	m.batchCacheHits = counter("relgraph.batch.cache_hits", "Loads answered from the request scope")
	m.batchCacheMisses = counter("relgraph.batch.cache_misses", "Loads that joined a pending group")
	m.batchQueriesSaved = counter("relgraph.batch.queries_saved", "Statements avoided by grouping keys")
	m.batchSkipped = counter("relgraph.batch.skipped", "Loads answered without a statement")
	m.relationErrors = counter("relgraph.relation.errors", "To-one relations whose parent row lacked the foreign key")
	if err != nil {
		return nil, err
	}

	if m.requestDuration, err = meter.Float64Histogram(
		"relgraph.request.duration",
		metric.WithDescription("Duration of GraphQL requests in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}
	if m.activeRequests, err = meter.Int64UpDownCounter(
		"relgraph.requests.active",
		metric.WithDescription("Number of in-flight GraphQL requests"),
	); err != nil {
		return nil, fmt.Errorf("failed to create active requests counter: %w", err)
	}
	return &m, nil
}

// RecordRequest records a GraphQL request with its duration and outcome
func (m *GraphQLMetrics) RecordRequest(ctx context.Context, duration time.Duration, hasErrors bool, operationType string) {
	attrs := metric.WithAttributes(
		attribute.String("operation_type", operationType),
		attribute.Bool("has_errors", hasErrors),
	)
	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	m.requestCounter.Add(ctx, 1, attrs)
	if hasErrors {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("operation_type", operationType)))
	}
}

// RecordResultsCount records the number of rows a root field returned.
func (m *GraphQLMetrics) RecordResultsCount(ctx context.Context, count int64, operationType string) {
	m.resultsCount.Record(ctx, count, metric.WithAttributes(attribute.String("operation_type", operationType)))
}

func relationAttr(relationType string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("relation_type", relationType))
}

func (m *GraphQLMetrics) RecordBatchParentCount(ctx context.Context, count int64, relationType string) {
	m.batchParentCount.Record(ctx, count, relationAttr(relationType))
}

func (m *GraphQLMetrics) RecordBatchResultRows(ctx context.Context, count int64, relationType string) {
	m.batchResultRows.Record(ctx, count, relationAttr(relationType))
}

func (m *GraphQLMetrics) RecordBatchCacheHit(ctx context.Context, relationType string) {
	m.batchCacheHits.Add(ctx, 1, relationAttr(relationType))
}

func (m *GraphQLMetrics) RecordBatchCacheMiss(ctx context.Context, relationType string) {
	m.batchCacheMisses.Add(ctx, 1, relationAttr(relationType))
}

func (m *GraphQLMetrics) RecordBatchQueriesSaved(ctx context.Context, count int64, relationType string) {
	if count <= 0 {
		return
	}
	m.batchQueriesSaved.Add(ctx, count, relationAttr(relationType))
}

// RecordBatchSkipped counts a load that needed no statement, such as a nil key.
func (m *GraphQLMetrics) RecordBatchSkipped(ctx context.Context, reason, relationType string) {
	m.batchSkipped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
		attribute.String("relation_type", relationType),
	))
}

// RecordRelationError counts a missing foreign key, suppressed or not.
func (m *GraphQLMetrics) RecordRelationError(ctx context.Context, relation string, suppressed bool) {
	m.relationErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("relation", relation),
		attribute.Bool("suppressed", suppressed),
	))
}

func (m *GraphQLMetrics) IncrementActiveRequests(ctx context.Context) {
	m.activeRequests.Add(ctx, 1)
}

func (m *GraphQLMetrics) DecrementActiveRequests(ctx context.Context) {
	m.activeRequests.Add(ctx, -1)
}

// InitMetrics initializes the GraphQL metrics on the global provider.
func InitMetrics(logger *slog.Logger) (*GraphQLMetrics, error) {
	metrics, err := InitGraphQLMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GraphQL metrics: %w", err)
	}
	logger.Info("graphql metrics initialized")
	return metrics, nil
}

type graphQLMetricsContextKey struct{}

// ContextWithGraphQLMetrics stores GraphQL metrics in the provided context.
func ContextWithGraphQLMetrics(ctx context.Context, metrics *GraphQLMetrics) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, graphQLMetricsContextKey{}, metrics)
}

// GraphQLMetricsFromContext retrieves GraphQL metrics from the context.
func GraphQLMetricsFromContext(ctx context.Context) *GraphQLMetrics {
	if ctx == nil {
		return nil
	}
	metrics, _ := ctx.Value(graphQLMetricsContextKey{}).(*GraphQLMetrics)
	return metrics
}
