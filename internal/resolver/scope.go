package resolver

import (
	"context"
	"sync"
	"sync/atomic"

	"relgraph/internal/dbexec"
)

// Scope is the request-scoped batching arena: pending load groups, the
// key to result cache and the per-entity primary key row cache. A scope is
// created when a request starts and dropped when it ends; it is never shared
// between requests.
type Scope struct {
	mu       sync.Mutex
	pending  map[string]*loadGroup
	results  map[string]*loadResult
	rowsByPK map[string]map[string]dbexec.Row

	dispatches  atomic.Int32
	cacheHits   atomic.Int32
	cacheMisses atomic.Int32
}

// ScopeStats is a snapshot of a scope's counters.
type ScopeStats struct {
	Dispatches  int
	CacheHits   int
	CacheMisses int
}

type scopeKey struct{}

type suppressKey struct{}

// NewScope creates an empty scope.
func NewScope() *Scope {
	return &Scope{
		pending:  make(map[string]*loadGroup),
		results:  make(map[string]*loadResult),
		rowsByPK: make(map[string]map[string]dbexec.Row),
	}
}

// NewRequestContext injects a fresh scope for one request.
func NewRequestContext(ctx context.Context) context.Context {
	return WithScope(ctx, NewScope())
}

// WithScope attaches scope to ctx.
func WithScope(ctx context.Context, scope *Scope) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFromContext retrieves the request scope.
func ScopeFromContext(ctx context.Context) (*Scope, bool) {
	if ctx == nil {
		return nil, false
	}
	scope, ok := ctx.Value(scopeKey{}).(*Scope)
	return scope, ok && scope != nil
}

// WithSuppressErrors makes relation resolution return nil instead of a
// MissingForeignKeyError for the rest of the request.
func WithSuppressErrors(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, suppressKey{}, true)
}

// SuppressErrors reports whether relation errors are suppressed for ctx.
func SuppressErrors(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	suppress, _ := ctx.Value(suppressKey{}).(bool)
	return suppress
}

// Stats returns the scope counters.
func (s *Scope) Stats() ScopeStats {
	return ScopeStats{
		Dispatches:  int(s.dispatches.Load()),
		CacheHits:   int(s.cacheHits.Load()),
		CacheMisses: int(s.cacheMisses.Load()),
	}
}

func (s *Scope) cachedRow(entity, pk string) (dbexec.Row, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rowsByPK[entity][pk]
	return row, ok
}

func (s *Scope) cacheRows(entity string, rows []dbexec.Row, key KeyFunc) {
	if key == nil || len(rows) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byPK := s.rowsByPK[entity]
	if byPK == nil {
		byPK = make(map[string]dbexec.Row, len(rows))
		s.rowsByPK[entity] = byPK
	}
	for _, row := range rows {
		if pk := key(row); pk != "" {
			byPK[pk] = row
		}
	}
}
