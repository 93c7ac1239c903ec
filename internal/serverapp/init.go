package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"relgraph/internal/dbexec"
	"relgraph/internal/logging"
	"relgraph/internal/planner"
	"relgraph/internal/resolver"
)

// Init acquires telemetry, the database, the entity registry and the HTTP
// server, in that order. A failure releases whatever was acquired. Calling
// Init again after success is a no-op.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	done := a.initialized
	a.stateMu.Unlock()
	if done {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var cleanup cleanupStack
	phases := []struct {
		name string
		run  func(context.Context, *cleanupStack) error
	}{
		{"telemetry", a.initTelemetry},
		{"database", a.initData},
		{"HTTP server", a.initHTTP},
	}
	for _, phase := range phases {
		if err := phase.run(ctx, &cleanup); err != nil {
			_ = cleanup.run(context.Background(), a.logger)
			return err
		}
		a.logger.Debug("init phase complete", slog.String("phase", phase.name))
	}

	a.stateMu.Lock()
	a.cleanup = cleanup
	a.initialized = true
	a.stateMu.Unlock()
	return nil
}

func (a *App) initTelemetry(_ context.Context, cleanup *cleanupStack) error {
	if a.loggerProvider != nil {
		lp := a.loggerProvider
		cleanup.push("logger provider", func(ctx context.Context) error {
			return lp.Shutdown(ctx, a.logger.Logger)
		})
	}

	meterProvider, metrics, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if meterProvider != nil {
		cleanup.push("meter provider", func(ctx context.Context) error {
			return meterProvider.Shutdown(ctx, a.logger.Logger)
		})
	}

	tracerProvider, err := initTracing(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tracerProvider != nil {
		cleanup.push("tracer provider", func(ctx context.Context) error {
			return tracerProvider.Shutdown(ctx, a.logger.Logger)
		})
	}

	a.meterProvider, a.tracerProvider, a.metrics = meterProvider, tracerProvider, metrics
	return nil
}

func (a *App) initData(ctx context.Context, cleanup *cleanupStack) error {
	a.logger.Info("connecting to database",
		slog.String("dialect", a.dialect.Name),
		slog.String("host", a.cfg.Database.Host),
		slog.Int("port", a.cfg.Database.Port),
		slog.String("database_effective", a.effectiveDatabase),
		slog.Bool("dsn_present", a.dsnPresent),
	)
	db, statsReg, err := connectDB(a.cfg, a.dialect, a.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	cleanup.push("database", func(context.Context) error {
		return closeDB(a.logger, db, statsReg)
	})

	if err := configureDatabase(ctx, a.cfg, a.logger, db, a.effectiveDatabase, a.dsnPresent); err != nil {
		return fmt.Errorf("failed to verify database connection: %w", err)
	}
	registry, err := loadRegistry(ctx, a.cfg, a.dialect, a.logger, db, a.effectiveDatabase, a.metrics.registry)
	if err != nil {
		return fmt.Errorf("failed to load entity registry: %w", err)
	}

	a.db, a.dbStatsReg, a.registry = db, statsReg, registry
	a.resolver = resolver.NewResolver(
		registry,
		planner.New(a.dialect),
		dbexec.NewRunner(dbexec.NewStandardExecutor(db), a.logger.Logger),
		resolver.Options{
			Limits:       buildPlanLimits(a.cfg),
			DefaultLimit: a.cfg.Server.GraphQLDefaultLimit,
			MaxLimit:     a.cfg.Server.GraphQLMaxLimit,
			BatchInLimit: a.cfg.Server.BatchInLimit,
			Logger:       a.logger.Logger,
		},
	)
	return nil
}

func closeDB(logger *logging.Logger, db *sql.DB, statsReg interface{ Unregister() error }) error {
	if statsReg != nil {
		if err := statsReg.Unregister(); err != nil {
			logger.Warn("failed to unregister DB stats metrics", slog.String("error", err.Error()))
		}
	}
	return db.Close()
}

func (a *App) initHTTP(_ context.Context, cleanup *cleanupStack) error {
	graphqlHandler, err := buildGraphQLHandler(a.cfg, a.logger, a.resolver, a.metrics)
	if err != nil {
		return fmt.Errorf("failed to initialize GraphQL handler: %w", err)
	}
	mux := buildRouter(a.cfg, a.logger, a.db, graphqlHandler, a.meterProvider)

	a.graphqlHandler = graphqlHandler
	a.handler = wrapHTTPHandler(a.cfg, a.logger, mux)
	a.serverAddr = fmt.Sprintf(":%d", a.cfg.Server.Port)
	a.srv = buildServer(a.cfg, a.handler, a.serverAddr)

	srv := a.srv
	cleanup.push("HTTP server", func(ctx context.Context) error {
		return srv.Shutdown(ctx)
	})
	return nil
}
