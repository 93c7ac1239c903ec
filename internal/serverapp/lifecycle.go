package serverapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"relgraph/internal/logging"
)

// StopReason says why WaitForStop returned.
type StopReason string

const (
	StopSignal      StopReason = "signal"
	StopServerError StopReason = "server_error"
)

// Start launches the HTTP server goroutine. Init must have completed; a
// second call returns the channel of the first.
func (a *App) Start() (<-chan error, error) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	switch {
	case !a.initialized:
		return nil, fmt.Errorf("app is not initialized")
	case !a.started:
		a.serverErrors = startServer(a.cfg, a.logger, a.srv)
		a.started = true
	}
	return a.serverErrors, nil
}

// WaitForStop blocks until a signal arrives on stop or the server fails. A
// nil serverErrors falls back to the channel returned by Start.
func (a *App) WaitForStop(stop <-chan os.Signal, serverErrors <-chan error) (StopReason, error) {
	if serverErrors == nil {
		a.stateMu.Lock()
		serverErrors = a.serverErrors
		a.stateMu.Unlock()
	}
	if stop == nil && serverErrors == nil {
		return "", fmt.Errorf("nothing to wait for: stop and serverErrors are both nil")
	}

	// Receiving from a nil channel blocks, so a missing source never wins.
	select {
	case sig := <-stop:
		if a.logger != nil {
			a.logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		}
		return StopSignal, nil
	case err := <-serverErrors:
		if err == nil {
			err = errors.New("server stopped unexpectedly")
		} else {
			err = fmt.Errorf("server failed: %w", err)
		}
		return StopServerError, err
	}
}

// Shutdown releases everything Init acquired, newest first. Only the first
// call does work; later calls return nil.
func (a *App) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var err error
	a.shutdownOnce.Do(func() {
		a.stateMu.Lock()
		cleanup := a.cleanup
		a.started = false
		a.stateMu.Unlock()

		err = cleanup.run(ctx, a.logger)
	})
	return err
}

type cleanupStack struct {
	names []string
	fns   []func(context.Context) error
}

func (s *cleanupStack) push(name string, fn func(context.Context) error) {
	s.names = append(s.names, name)
	s.fns = append(s.fns, fn)
}

// run calls every function even when an earlier one fails and returns the
// failures joined.
func (s *cleanupStack) run(ctx context.Context, logger *logging.Logger) error {
	var errs []error
	for i := len(s.fns) - 1; i >= 0; i-- {
		if logger != nil {
			logger.Info("shutting down", slog.String("component", s.names[i]))
		}
		if err := s.fns[i](ctx); err != nil {
			if logger != nil {
				logger.Warn("cleanup error", slog.String("component", s.names[i]), slog.String("error", err.Error()))
			}
			errs = append(errs, fmt.Errorf("%s: %w", s.names[i], err))
		}
	}
	return errors.Join(errs...)
}
