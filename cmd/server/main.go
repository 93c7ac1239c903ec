// Command relgraph-server serves a read-only GraphQL API over a relational
// database described by an entity registry.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"relgraph/internal/config"
	"relgraph/internal/serverapp"
)

var (
	// Version and Commit are set with -ldflags "-X main.Version=...".
	Version = "dev"
	Commit  = "none"
)

var errVersionPrinted = errors.New("version printed")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		slog.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	cfg, err := configure(args, stdout)
	if errors.Is(err, errVersionPrinted) {
		return nil
	}
	if err != nil {
		return err
	}
	return serve(cfg)
}

// configure parses flags, environment and files, then validates the result.
func configure(args []string, stdout io.Writer) (*config.Config, error) {
	fs := pflag.NewFlagSet("relgraph-server", pflag.ContinueOnError)
	config.DefineFlags(fs)
	fs.Bool("version", false, "Print version and exit")

	cfg, err := config.Load(fs, args)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if showVersion, _ := fs.GetBool("version"); showVersion {
		_, _ = fmt.Fprintf(stdout, "relgraph %s (%s)\n", Version, Commit)
		return nil, errVersionPrinted
	}
	if cfg.Observability.ServiceVersion == "" {
		cfg.Observability.ServiceVersion = Version
	}

	result := cfg.Validate()
	for _, issue := range result.Warnings {
		slog.Warn("configuration warning", issueAttrs(config.ValidationError(issue))...)
	}
	if result.HasErrors() {
		for _, issue := range result.Errors {
			slog.Error("configuration error", issueAttrs(issue)...)
		}
		return nil, fmt.Errorf("configuration validation failed: %s", result.Error())
	}
	return cfg, nil
}

func issueAttrs(issue config.ValidationError) []any {
	return []any{
		slog.String("field", issue.Field),
		slog.String("message", issue.Message),
		slog.String("hint", issue.Hint),
	}
}

// serve runs the server until SIGINT or SIGTERM, then drains it within the
// configured shutdown timeout.
func serve(cfg *config.Config) error {
	logger, loggerProvider, err := serverapp.InitLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	app, err := serverapp.New(cfg, logger)
	if err != nil {
		if loggerProvider != nil {
			_ = loggerProvider.Shutdown(context.Background(), logger.Logger)
		}
		return err
	}
	app.AttachLoggerProvider(loggerProvider)

	shutdown := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return app.Shutdown(ctx)
	}

	if err := app.Init(context.Background()); err != nil {
		return err
	}
	serverErrors, err := app.Start()
	if err != nil {
		_ = shutdown()
		return err
	}
	logger.Info("relgraph started",
		slog.String("version", Version),
		slog.String("dialect", cfg.Database.Dialect),
	)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	reason, waitErr := app.WaitForStop(stop, serverErrors)
	logger.Info("shutting down server gracefully", slog.String("reason", string(reason)))
	if err := errors.Join(waitErr, shutdown()); err != nil {
		return err
	}
	logger.Info("server stopped gracefully")
	return nil
}
