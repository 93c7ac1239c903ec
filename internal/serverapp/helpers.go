package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"relgraph/internal/config"
	"relgraph/internal/introspection"
	"relgraph/internal/logging"
	"relgraph/internal/middleware"
	"relgraph/internal/naming"
	"relgraph/internal/observability"
	"relgraph/internal/planner"
	"relgraph/internal/resolver"
	"relgraph/internal/sqlutil"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	"github.com/graphql-go/handler"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// appMetrics groups the instruments created when metrics are enabled. Every
// field is nil otherwise.
type appMetrics struct {
	graphql  *observability.GraphQLMetrics
	auth     *observability.AuthMetrics
	registry *observability.RegistryMetrics
}

func exporterConfig(o config.OTLPConfig) observability.OTLPExporterConfig {
	return observability.OTLPExporterConfig{
		Endpoint:    o.Endpoint,
		Protocol:    o.Protocol,
		Insecure:    o.Insecure,
		Headers:     o.Headers,
		Timeout:     o.Timeout,
		Compression: o.Compression,
	}
}

func observabilityConfig(cfg *config.Config) observability.Config {
	return observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		Traces:           exporterConfig(cfg.Observability.TracesOTLP()),
		Logs:             exporterConfig(cfg.Observability.LogsOTLP()),
	}
}

// InitLogger builds the process logger and, when log export is enabled, the
// OTLP logger provider it also writes to.
func InitLogger(cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	loggerCfg := logging.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Observability.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	logsConfig := cfg.Observability.LogsOTLP()
	logger.Info("initializing OpenTelemetry logging",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("otlp_endpoint", logsConfig.Endpoint),
		slog.String("otlp_protocol", logsConfig.Protocol),
		slog.Bool("insecure", logsConfig.Insecure),
	)

	loggerProvider, err := observability.InitLoggerProvider(observabilityConfig(cfg))
	if err != nil {
		return nil, nil, err
	}

	loggerCfg.LoggerProvider = loggerProvider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)
	logger.Info("OpenTelemetry logging initialized")

	return logger, loggerProvider, nil
}

func initMetrics(cfg *config.Config, logger *logging.Logger) (*observability.MeterProvider, appMetrics, error) {
	if !cfg.Observability.MetricsEnabled {
		return nil, appMetrics{}, nil
	}

	meterProvider, err := observability.InitMeterProvider(observabilityConfig(cfg))
	if err != nil {
		return nil, appMetrics{}, err
	}

	var metrics appMetrics
	if metrics.graphql, err = observability.InitMetrics(logger.Logger); err != nil {
		return nil, appMetrics{}, err
	}
	if metrics.auth, err = observability.InitAuthMetrics(); err != nil {
		return nil, appMetrics{}, err
	}
	if metrics.registry, err = observability.InitRegistryMetrics(); err != nil {
		return nil, appMetrics{}, err
	}

	logger.Info("OpenTelemetry metrics initialized",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("environment", cfg.Observability.Environment),
	)
	return meterProvider, metrics, nil
}

func initTracing(cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Observability.TracingEnabled {
		return nil, nil
	}

	tracesConfig := cfg.Observability.TracesOTLP()
	tracerProvider, err := observability.InitTracerProvider(observabilityConfig(cfg))
	if err != nil {
		return nil, err
	}

	logger.Info("OpenTelemetry tracing initialized",
		slog.String("otlp_endpoint", tracesConfig.Endpoint),
		slog.String("otlp_protocol", tracesConfig.Protocol),
		slog.Float64("sample_ratio", cfg.Observability.TraceSampleRatio),
	)
	return tracerProvider, nil
}

func dbSystemAttribute(dialect sqlutil.Dialect) attribute.KeyValue {
	switch dialect.Name {
	case sqlutil.Postgres.Name:
		return semconv.DBSystemPostgreSQL
	case sqlutil.SQLite.Name:
		return semconv.DBSystemSqlite
	default:
		return semconv.DBSystemMySQL
	}
}

func connectDB(cfg *config.Config, dialect sqlutil.Dialect, logger *logging.Logger) (*sql.DB, interface{ Unregister() error }, error) {
	dsn, err := cfg.Database.DSN()
	if err != nil {
		return nil, nil, err
	}

	if !cfg.Observability.MetricsEnabled && !cfg.Observability.TracingEnabled {
		db, err := sql.Open(dialect.DriverName, dsn)
		if err != nil {
			return nil, nil, err
		}
		return db, nil, nil
	}

	system := dbSystemAttribute(dialect)
	opts := []otelsql.Option{otelsql.WithAttributes(system)}
	if cfg.Observability.TracingEnabled {
		opts = append(opts, otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}))
	}

	db, err := otelsql.Open(dialect.DriverName, dsn, opts...)
	if err != nil {
		return nil, nil, err
	}

	var dbStatsReg interface{ Unregister() error }
	if cfg.Observability.MetricsEnabled {
		reg, err := otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(system))
		if err != nil {
			logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
		} else {
			dbStatsReg = reg
		}
	}

	logger.Info("database instrumentation enabled",
		slog.String("driver", dialect.DriverName),
		slog.Bool("metrics", cfg.Observability.MetricsEnabled),
		slog.Bool("tracing", cfg.Observability.TracingEnabled),
	)
	return db, dbStatsReg, nil
}

func configureDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB, effectiveDatabase string, dsnPresent bool) error {
	db.SetMaxOpenConns(cfg.Database.Pool.MaxOpen)
	db.SetMaxIdleConns(cfg.Database.Pool.MaxIdle)
	db.SetConnMaxLifetime(cfg.Database.Pool.MaxLifetime)

	if err := waitForDatabase(ctx, cfg, logger, db); err != nil {
		return err
	}

	logger.Info("connected to database",
		slog.String("database_effective", effectiveDatabase),
		slog.Bool("dsn_present", dsnPresent),
		slog.Int("pool_max_open", cfg.Database.Pool.MaxOpen),
		slog.Int("pool_max_idle", cfg.Database.Pool.MaxIdle),
		slog.Duration("pool_max_lifetime", cfg.Database.Pool.MaxLifetime),
	)
	return nil
}

func waitForDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB) error {
	timeout := cfg.Database.ConnectionTimeout
	interval := cfg.Database.ConnectionRetryInterval
	if interval <= 0 {
		interval = time.Second
	}

	// A zero timeout means one attempt.
	if timeout == 0 {
		return db.PingContext(ctx)
	}

	deadline := time.Now().Add(timeout)
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		attempt++
		err := db.PingContext(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("database connection established", slog.Int("attempts", attempt))
			}
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("database not available after %v: %w", timeout, err)
		}

		logger.Warn("database not ready, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", interval),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}

		interval = min(interval*2, 30*time.Second)
	}
}

// loadRegistry reads entity metadata from the configured registry file, or
// introspects the MySQL catalog when none is set.
func loadRegistry(ctx context.Context, cfg *config.Config, dialect sqlutil.Dialect, logger *logging.Logger, db *sql.DB, databaseName string, metrics *observability.RegistryMetrics) (*introspection.Registry, error) {
	namer := naming.New(cfg.Naming, logger.Logger)
	start := time.Now()

	var (
		registry *introspection.Registry
		source   string
		err      error
	)
	switch {
	case cfg.Registry.File != "":
		source = "file"
		registry, err = introspection.LoadRegistryFile(cfg.Registry.File, namer)
	case dialect.Name == sqlutil.MySQL.Name:
		source = "database"
		registry, err = introspection.IntrospectDatabaseContext(ctx, db, databaseName, namer)
	default:
		return nil, fmt.Errorf("%s databases cannot be introspected; set registry.file", dialect.Name)
	}

	entityCount := 0
	if registry != nil {
		entityCount = len(registry.Names())
	}
	if metrics != nil {
		metrics.RecordLoad(ctx, source, time.Since(start), entityCount, err)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("entity registry loaded",
		slog.String("source", source),
		slog.Int("entities", entityCount),
		slog.Duration("duration", time.Since(start)),
	)
	return registry, nil
}

func buildPlanLimits(cfg *config.Config) *planner.PlanLimits {
	if cfg.Server.GraphQLMaxDepth <= 0 && cfg.Server.GraphQLMaxComplexity <= 0 && cfg.Server.GraphQLMaxRows <= 0 {
		return nil
	}
	return &planner.PlanLimits{
		MaxDepth:      cfg.Server.GraphQLMaxDepth,
		MaxComplexity: cfg.Server.GraphQLMaxComplexity,
		MaxRows:       cfg.Server.GraphQLMaxRows,
	}
}

func oidcAuthConfig(cfg *config.Config) middleware.OIDCAuthConfig {
	return middleware.OIDCAuthConfig{
		Enabled:       cfg.Server.Auth.OIDCEnabled,
		IssuerURL:     cfg.Server.Auth.OIDCIssuerURL,
		Audience:      cfg.Server.Auth.OIDCAudience,
		ClockSkew:     cfg.Server.Auth.OIDCClockSkew,
		SkipTLSVerify: cfg.Server.Auth.OIDCSkipTLSVerify,
	}
}

// buildGraphQLHandler serves the resolver's schema. The chain is:
//
//	logging -> OIDC auth -> request scope -> tracing -> metrics -> graphql
func buildGraphQLHandler(cfg *config.Config, logger *logging.Logger, rs *resolver.Resolver, metrics appMetrics) (http.Handler, error) {
	schema, err := rs.BuildGraphQLSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to build GraphQL schema: %w", err)
	}

	var next http.Handler = handler.New(&handler.Config{
		Schema:   &schema,
		Pretty:   true,
		GraphiQL: cfg.Server.GraphiQLEnabled,
	})

	if metrics.graphql != nil {
		next = middleware.GraphQLMetricsMiddleware(metrics.graphql)(next)
		logger.Info("GraphQL metrics middleware enabled")
	}
	next = middleware.GraphQLTracingMiddleware()(next)
	next = middleware.RequestScopeMiddleware(middleware.ScopeConfig{
		IgnoreRelationErrors: cfg.Server.IgnoreRelationErrors,
	})(next)

	if cfg.Server.Auth.OIDCEnabled {
		authMiddleware, err := middleware.OIDCAuthMiddleware(oidcAuthConfig(cfg), logger, metrics.auth)
		if err != nil {
			return nil, err
		}
		next = authMiddleware(next)
		logger.Info("OIDC auth middleware enabled", slog.String("issuer", cfg.Server.Auth.OIDCIssuerURL))
	}

	return middleware.LoggingMiddleware(logger)(next), nil
}

func buildRouter(cfg *config.Config, logger *logging.Logger, db *sql.DB, graphqlHandler http.Handler, meterProvider *observability.MeterProvider) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/graphql", graphqlHandler)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/graphql", http.StatusFound)
			return
		}
		http.NotFound(w, r)
	})

	mux.HandleFunc("/health", healthHandler(db, cfg.Server.HealthCheckTimeout))

	if meterProvider != nil {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("metrics endpoint enabled", slog.String("path", "/metrics"))
	}

	return mux
}

func wrapHTTPHandler(cfg *config.Config, logger *logging.Logger, handler http.Handler) http.Handler {
	if cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled {
		handler = otelhttp.NewHandler(handler, "http.server",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return httpSpanName(r)
			}),
			otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents),
		)
		logger.Info("HTTP instrumentation enabled")
	}

	if cfg.Server.CORSEnabled {
		handler = middleware.CORSMiddleware(middleware.CORSConfig{
			Enabled:          cfg.Server.CORSEnabled,
			AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
			AllowedMethods:   cfg.Server.CORSAllowedMethods,
			AllowedHeaders:   cfg.Server.CORSAllowedHeaders,
			ExposeHeaders:    cfg.Server.CORSExposeHeaders,
			AllowCredentials: cfg.Server.CORSAllowCredentials,
			MaxAge:           cfg.Server.CORSMaxAge,
		})(handler)
	}

	return handler
}

// spanRoutes are the paths that keep their own span name; anything else is
// reported as /* to keep span names low-cardinality.
var spanRoutes = map[string]bool{"/": true, "/graphql": true, "/health": true, "/metrics": true}

func httpSpanName(r *http.Request) string {
	method, route := "HTTP", "/*"
	if r == nil {
		return method + " " + route
	}
	if m := strings.TrimSpace(r.Method); m != "" {
		method = m
	}
	if r.URL != nil && spanRoutes[r.URL.Path] {
		route = r.URL.Path
	}
	return method + " " + route
}

func buildServer(cfg *config.Config, handler http.Handler, serverAddr string) *http.Server {
	return &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func startServer(cfg *config.Config, logger *logging.Logger, srv *http.Server) chan error {
	serverErrors := make(chan error, 1)
	go func() {
		logAttrs := []any{
			slog.String("address", srv.Addr),
			slog.String("graphql_endpoint", "/graphql"),
			slog.String("health_endpoint", "/health"),
			slog.Int("graphql_max_depth", cfg.Server.GraphQLMaxDepth),
			slog.Int("batch_in_limit", cfg.Server.BatchInLimit),
			slog.Bool("graphiql", cfg.Server.GraphiQLEnabled),
		}
		if cfg.Observability.MetricsEnabled {
			logAttrs = append(logAttrs, slog.String("metrics_endpoint", "/metrics"))
		}
		logger.Info("server starting", logAttrs...)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("server failed: %w", err)
		}
	}()
	return serverErrors
}

// healthHandler returns an HTTP handler for health checks
func healthHandler(db *sql.DB, timeout time.Duration) http.HandlerFunc {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())
		w.Header().Set("Content-Type", "application/json")

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			reqLogger.Error("health check failed",
				slog.String("error", err.Error()),
				slog.String("check", "database"),
			)
			w.WriteHeader(http.StatusServiceUnavailable)
			// Generic body; the cause is only logged.
			_, _ = fmt.Fprint(w, `{"status":"unhealthy","database":"failed"}`)
			return
		}

		reqLogger.Debug("health check passed")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, `{"status":"healthy","database":"ok"}`)
	}
}
