// Package observability provides OpenTelemetry integration for metrics, tracing, and logging.
// Traces and logs are exported over OTLP (gRPC or HTTP); metrics are served to Prometheus.
package observability

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc/credentials"
)

const shutdownTimeout = 5 * time.Second

// Config holds OpenTelemetry configuration
type Config struct {
	ServiceName      string
	ServiceVersion   string
	Environment      string
	TraceSampleRatio float64
	Traces           OTLPExporterConfig
	Logs             OTLPExporterConfig
}

// OTLPExporterConfig holds the settings of one OTLP exporter.
type OTLPExporterConfig struct {
	Endpoint    string
	Protocol    string
	Insecure    bool
	Headers     map[string]string
	Timeout     time.Duration
	Compression string
}

func (cfg Config) resource() (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// MeterProvider wraps the OpenTelemetry meter provider
type MeterProvider struct {
	provider *metric.MeterProvider
	exporter *prometheus.Exporter
}

// InitMeterProvider installs a global meter provider backed by a Prometheus
// exporter.
func InitMeterProvider(cfg Config) (*MeterProvider, error) {
	res, err := cfg.resource()
	if err != nil {
		return nil, err
	}
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	provider := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)

	return &MeterProvider{provider: provider, exporter: exporter}, nil
}

// Shutdown flushes and stops the meter provider.
func (mp *MeterProvider) Shutdown(ctx context.Context, logger *slog.Logger) error {
	return shutdown(ctx, logger, "meter", mp.provider.Shutdown)
}

// Exporter returns the Prometheus exporter for metrics HTTP handler
func (mp *MeterProvider) Exporter() *prometheus.Exporter {
	return mp.exporter
}

// TracerProvider wraps the OpenTelemetry tracer provider
type TracerProvider struct {
	provider *sdktrace.TracerProvider
}

type otlpProtocol string

const (
	otlpProtocolGRPC otlpProtocol = "grpc"
	otlpProtocolHTTP otlpProtocol = "http/protobuf"
)

func parseOTLPProtocol(value string) (otlpProtocol, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(otlpProtocolGRPC):
		return otlpProtocolGRPC, nil
	case "http", string(otlpProtocolHTTP):
		return otlpProtocolHTTP, nil
	default:
		return "", fmt.Errorf("unsupported OTLP protocol %q (use grpc or http/protobuf)", value)
	}
}

// exporterOptions maps OTLPExporterConfig onto one exporter package's
// option constructors. endpointURL is nil for the gRPC exporters, which take
// host:port only.
type exporterOptions[O any] struct {
	endpoint    func(string) O
	endpointURL func(string) O
	insecure    func() O
	tls         func(*tls.Config) O
	headers     func(map[string]string) O
	timeout     func(time.Duration) O
	gzip        O
}

func (e exporterOptions[O]) build(cfg OTLPExporterConfig) []O {
	opts := make([]O, 0, 5)
	if e.endpointURL != nil && isHTTPEndpointURL(cfg.Endpoint) {
		opts = append(opts, e.endpointURL(cfg.Endpoint))
	} else {
		opts = append(opts, e.endpoint(cfg.Endpoint))
	}
	if cfg.Insecure {
		opts = append(opts, e.insecure())
	} else {
		// Secure exporters verify the collector against the system roots.
		opts = append(opts, e.tls(&tls.Config{MinVersion: tls.VersionTLS12}))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, e.headers(cfg.Headers))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, e.timeout(cfg.Timeout))
	}
	if strings.EqualFold(cfg.Compression, "gzip") {
		opts = append(opts, e.gzip)
	}
	return opts
}

func grpcTLS[O any](fn func(credentials.TransportCredentials) O) func(*tls.Config) O {
	return func(c *tls.Config) O { return fn(credentials.NewTLS(c)) }
}

var (
	grpcTraceExporter = exporterOptions[otlptracegrpc.Option]{
		endpoint: otlptracegrpc.WithEndpoint,
		insecure: otlptracegrpc.WithInsecure,
		tls:      grpcTLS(otlptracegrpc.WithTLSCredentials),
		headers:  otlptracegrpc.WithHeaders,
		timeout:  otlptracegrpc.WithTimeout,
		gzip:     otlptracegrpc.WithCompressor("gzip"),
	}
	httpTraceExporter = exporterOptions[otlptracehttp.Option]{
		endpoint:    otlptracehttp.WithEndpoint,
		endpointURL: otlptracehttp.WithEndpointURL,
		insecure:    otlptracehttp.WithInsecure,
		tls:         otlptracehttp.WithTLSClientConfig,
		headers:     otlptracehttp.WithHeaders,
		timeout:     otlptracehttp.WithTimeout,
		gzip:        otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
	}
	grpcLogExporter = exporterOptions[otlploggrpc.Option]{
		endpoint: otlploggrpc.WithEndpoint,
		insecure: otlploggrpc.WithInsecure,
		tls:      grpcTLS(otlploggrpc.WithTLSCredentials),
		headers:  otlploggrpc.WithHeaders,
		timeout:  otlploggrpc.WithTimeout,
		gzip:     otlploggrpc.WithCompressor("gzip"),
	}
	httpLogExporter = exporterOptions[otlploghttp.Option]{
		endpoint:    otlploghttp.WithEndpoint,
		endpointURL: otlploghttp.WithEndpointURL,
		insecure:    otlploghttp.WithInsecure,
		tls:         otlploghttp.WithTLSClientConfig,
		headers:     otlploghttp.WithHeaders,
		timeout:     otlploghttp.WithTimeout,
		gzip:        otlploghttp.WithCompression(otlploghttp.GzipCompression),
	}
)

func isHTTPEndpointURL(endpoint string) bool {
	return strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://")
}

// InitTracerProvider installs a global tracer provider exporting over OTLP.
func InitTracerProvider(cfg Config) (*TracerProvider, error) {
	res, err := cfg.resource()
	if err != nil {
		return nil, err
	}
	protocol, err := parseOTLPProtocol(cfg.Traces.Protocol)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	var exporter sdktrace.SpanExporter
	switch protocol {
	case otlpProtocolHTTP:
		exporter, err = otlptracehttp.New(ctx, httpTraceExporter.build(cfg.Traces)...)
	default:
		exporter, err = otlptracegrpc.New(ctx, grpcTraceExporter.build(cfg.Traces)...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(traceSamplerForRatio(cfg.TraceSampleRatio)),
	)
	otel.SetTracerProvider(provider)

	return &TracerProvider{provider: provider}, nil
}

func traceSamplerForRatio(ratio float64) sdktrace.Sampler {
	switch {
	case ratio <= 0:
		return sdktrace.NeverSample()
	case ratio >= 1:
		return sdktrace.AlwaysSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

// Shutdown flushes and stops the tracer provider.
func (tp *TracerProvider) Shutdown(ctx context.Context, logger *slog.Logger) error {
	return shutdown(ctx, logger, "tracer", tp.provider.Shutdown)
}

// LoggerProvider wraps the OpenTelemetry logger provider
type LoggerProvider struct {
	provider *log.LoggerProvider
}

// InitLoggerProvider builds a logger provider exporting records over OTLP.
// It is not installed globally; pass Provider to the logging package.
func InitLoggerProvider(cfg Config) (*LoggerProvider, error) {
	res, err := cfg.resource()
	if err != nil {
		return nil, err
	}
	protocol, err := parseOTLPProtocol(cfg.Logs.Protocol)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	var exporter log.Exporter
	switch protocol {
	case otlpProtocolHTTP:
		exporter, err = otlploghttp.New(ctx, httpLogExporter.build(cfg.Logs)...)
	default:
		exporter, err = otlploggrpc.New(ctx, grpcLogExporter.build(cfg.Logs)...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP log exporter: %w", err)
	}

	provider := log.NewLoggerProvider(
		log.WithResource(res),
		log.WithProcessor(log.NewBatchProcessor(exporter)),
	)
	return &LoggerProvider{provider: provider}, nil
}

// Shutdown flushes and stops the logger provider.
func (lp *LoggerProvider) Shutdown(ctx context.Context, logger *slog.Logger) error {
	return shutdown(ctx, logger, "logger", lp.provider.Shutdown)
}

// Provider returns the underlying logger provider
func (lp *LoggerProvider) Provider() *log.LoggerProvider {
	return lp.provider
}

func shutdown(ctx context.Context, logger *slog.Logger, name string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		logger.Error("failed to shutdown "+name+" provider", slog.String("error", err.Error()))
		return err
	}
	logger.Info(name + " provider shutdown successfully")
	return nil
}
