// Package dbexec runs read statements against a database/sql handle.
package dbexec

import (
	"context"
	"database/sql"
)

// Rows is the cursor surface the runner consumes.
type Rows interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// QueryExecutor issues one statement. Tests substitute fakes; the server
// wraps a pooled handle.
type QueryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
}

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// StandardExecutor adapts a Querier to QueryExecutor.
type StandardExecutor struct {
	q Querier
}

// NewStandardExecutor wraps q. A nil q fails every statement with
// sql.ErrConnDone.
func NewStandardExecutor(q Querier) *StandardExecutor {
	return &StandardExecutor{q: q}
}

// QueryContext implements QueryExecutor.
func (e *StandardExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if e.q == nil {
		return nil, sql.ErrConnDone
	}
	rows, err := e.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
