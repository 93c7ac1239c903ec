package dbexec

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Row is one result row keyed by column name.
type Row map[string]interface{}

// ExecutionError reports a failed statement. Every caller waiting on the
// statement receives the same error value.
type ExecutionError struct {
	SQL string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("query execution failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Runner executes read statements and materialises their rows.
type Runner struct {
	executor   QueryExecutor
	logger     *slog.Logger
	statements atomic.Int64
}

// NewRunner wraps an executor. A nil logger discards statement logs.
func NewRunner(executor QueryExecutor, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{executor: executor, logger: logger}
}

// Statements returns the number of statements issued through the runner.
func (r *Runner) Statements() int64 {
	return r.statements.Load()
}

// Run executes query and returns its rows. Byte slices are converted to
// strings so rows are safe to cache and serialise. Failures are returned as
// *ExecutionError; the statement is never retried.
func (r *Runner) Run(ctx context.Context, query string, args ...any) ([]Row, error) {
	r.statements.Add(1)
	ctx, span := otel.Tracer("relgraph/dbexec").Start(ctx, "dbexec.run")
	span.SetAttributes(
		attribute.String("db.statement", query),
		attribute.Int("db.args", len(args)),
	)
	defer span.End()

	start := time.Now()
	rows, err := r.run(ctx, query, args)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Error("query failed",
			slog.String("sql", query),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return nil, &ExecutionError{SQL: query, Err: err}
	}
	span.SetAttributes(attribute.Int("db.rows", len(rows)))
	r.logger.Debug("query executed",
		slog.String("sql", query),
		slog.Int("args", len(args)),
		slog.Int("rows", len(rows)),
		slog.Duration("duration", time.Since(start)),
	)
	return rows, nil
}

func (r *Runner) run(ctx context.Context, query string, args []any) ([]Row, error) {
	rows, err := r.executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var out []Row
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(Row, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
