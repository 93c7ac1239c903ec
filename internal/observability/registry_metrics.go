package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RegistryMetrics records how the entity registry was loaded at startup.
type RegistryMetrics struct {
	loads    metric.Int64Counter
	duration metric.Float64Histogram
	entities metric.Int64Gauge
}

// InitRegistryMetrics creates the registry metrics on the global meter provider.
func InitRegistryMetrics() (*RegistryMetrics, error) {
	return NewRegistryMetrics(otel.Meter(MeterName))
}

// NewRegistryMetrics creates the registry metrics on meter.
func NewRegistryMetrics(meter metric.Meter) (*RegistryMetrics, error) {
	loads, err := meter.Int64Counter(
		"relgraph.registry.loads.total",
		metric.WithDescription("Registry load attempts by source and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create registry load counter: %w", err)
	}
	duration, err := meter.Float64Histogram(
		"relgraph.registry.load.duration",
		metric.WithDescription("Time spent loading the registry"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create registry duration histogram: %w", err)
	}
	entities, err := meter.Int64Gauge(
		"relgraph.registry.entities",
		metric.WithDescription("Entities in the loaded registry"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create registry entity gauge: %w", err)
	}
	return &RegistryMetrics{loads: loads, duration: duration, entities: entities}, nil
}

// RecordLoad records one registry load. source is "file" or "database".
func (m *RegistryMetrics) RecordLoad(ctx context.Context, source string, elapsed time.Duration, entityCount int, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("outcome", outcome),
	)
	m.loads.Add(ctx, 1, attrs)
	m.duration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
	if err == nil {
		m.entities.Record(ctx, int64(entityCount), metric.WithAttributes(attribute.String("source", source)))
	}
}
