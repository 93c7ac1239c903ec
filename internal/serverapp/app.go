// Package serverapp assembles the relgraph HTTP server from configuration and
// owns the lifecycle of everything it acquires.
package serverapp

import (
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"relgraph/internal/config"
	"relgraph/internal/introspection"
	"relgraph/internal/logging"
	"relgraph/internal/observability"
	"relgraph/internal/resolver"
	"relgraph/internal/sqlutil"
)

// App owns runtime resources for the relgraph server lifecycle.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider

	dialect           sqlutil.Dialect
	effectiveDatabase string
	dsnPresent        bool

	meterProvider  *observability.MeterProvider
	tracerProvider *observability.TracerProvider
	metrics        appMetrics

	db         *sql.DB
	dbStatsReg interface{ Unregister() error }

	registry *introspection.Registry
	resolver *resolver.Resolver

	graphqlHandler http.Handler
	handler        http.Handler

	serverAddr string
	srv        *http.Server

	cleanup cleanupStack

	stateMu      sync.Mutex
	initialized  bool
	started      bool
	serverErrors chan error

	shutdownOnce sync.Once
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	dialect, err := cfg.Database.SQLDialect()
	if err != nil {
		return nil, err
	}
	effectiveDatabase, err := cfg.Database.EffectiveDatabaseName()
	if err != nil && dialect.Name == sqlutil.MySQL.Name && cfg.Registry.File == "" {
		return nil, fmt.Errorf("failed to resolve effective database configuration: %w", err)
	}

	return &App{
		cfg:               cfg,
		logger:            logger,
		dialect:           dialect,
		effectiveDatabase: effectiveDatabase,
		dsnPresent:        strings.TrimSpace(cfg.Database.ConnectionString) != "",
	}, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// Handler returns the fully wrapped HTTP handler. It is nil before Init.
func (a *App) Handler() http.Handler {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.handler
}
