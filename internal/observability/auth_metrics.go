package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AuthMetrics counts bearer token checks on the GraphQL endpoint.
type AuthMetrics struct {
	attempts         metric.Int64Counter
	failures         metric.Int64Counter
	successes        metric.Int64Counter
	validationErrors metric.Int64Counter
}

// InitAuthMetrics creates the auth metrics on the global meter provider.
func InitAuthMetrics() (*AuthMetrics, error) {
	return NewAuthMetrics(otel.Meter(MeterName + "/auth"))
}

// NewAuthMetrics creates the auth metrics on meter.
func NewAuthMetrics(meter metric.Meter) (*AuthMetrics, error) {
	var m AuthMetrics
	for _, c := range []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.attempts, "relgraph.auth.attempts.total", "Total number of authentication attempts"},
		{&m.failures, "relgraph.auth.failures.total", "Total number of rejected requests"},
		{&m.successes, "relgraph.auth.successes.total", "Total number of authenticated requests"},
		{&m.validationErrors, "relgraph.auth.token_errors.total", "Total number of token validation errors"},
	} {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", c.name, err)
		}
		*c.dst = counter
	}
	return &m, nil
}

func (m *AuthMetrics) RecordAuthAttempt(ctx context.Context, endpoint string) {
	m.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

func (m *AuthMetrics) RecordAuthFailure(ctx context.Context, endpoint, reason string) {
	m.failures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("reason", reason),
	))
}

func (m *AuthMetrics) RecordAuthSuccess(ctx context.Context, endpoint, issuer string) {
	m.successes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("issuer", issuer),
	))
}

// RecordTokenValidationError counts a token the verifier rejected, by error class.
func (m *AuthMetrics) RecordTokenValidationError(ctx context.Context, errorType string) {
	m.validationErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("error_type", errorType)))
}
