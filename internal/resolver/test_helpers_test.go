package resolver

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"

	"relgraph/internal/dbexec"
	"relgraph/internal/introspection"
	"relgraph/internal/planner"
	"relgraph/internal/sqlutil"
	"relgraph/internal/testutil/fixtures"
)

var (
	fromPattern = regexp.MustCompile(`FROM "(\w+)"`)
	inPattern   = regexp.MustCompile(`"(\w+)"\."(\w+)" IN \(([?,]+)\)`)
	joinPattern = regexp.MustCompile(`JOIN "(\w+)" ON "\w+"\."(\w+)" = "\w+"\."(\w+)"`)
)

type fakeCall struct {
	SQL  string
	Args []any
}

// fakeRunner answers the statements the planner produces for SQLite from
// in-memory tables. It evaluates the IN list of grouped lookups and the
// junction join; any other predicate is ignored and every row is returned.
type fakeRunner struct {
	mu     sync.Mutex
	tables map[string][]dbexec.Row
	calls  []fakeCall
	err    error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{tables: blogRows()}
}

func (f *fakeRunner) Run(_ context.Context, query string, args ...any) ([]dbexec.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fakeCall{SQL: query, Args: append([]any(nil), args...)})
	if f.err != nil {
		return nil, &dbexec.ExecutionError{SQL: query, Err: f.err}
	}

	from := fromPattern.FindStringSubmatch(query)
	if from == nil {
		return nil, fmt.Errorf("fake runner cannot evaluate %q", query)
	}
	rows := f.tables[from[1]]

	in := inPattern.FindStringSubmatch(query)
	if in == nil {
		return copyRows(rows), nil
	}
	wanted := make(map[string]bool)
	for _, arg := range args[:strings.Count(in[3], "?")] {
		wanted[TupleKey(arg)] = true
	}

	join := joinPattern.FindStringSubmatch(query)
	if join == nil {
		var out []dbexec.Row
		for _, row := range rows {
			if wanted[TupleKey(row[in[2]])] {
				out = append(out, copyRow(row))
			}
		}
		return out, nil
	}

	// Junction lookup: in names the junction's local column, join the remote
	// column and the referenced target column.
	var out []dbexec.Row
	for _, link := range f.tables[join[1]] {
		if !wanted[TupleKey(link[in[2]])] {
			continue
		}
		for _, row := range rows {
			if TupleKey(row[join[3]]) == TupleKey(link[join[2]]) {
				joined := copyRow(row)
				joined[planner.BatchParentAlias] = link[in[2]]
				out = append(out, joined)
			}
		}
	}
	return out, nil
}

func (f *fakeRunner) Calls() []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakeCall(nil), f.calls...)
}

func copyRow(row dbexec.Row) dbexec.Row {
	out := make(dbexec.Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func copyRows(rows []dbexec.Row) []dbexec.Row {
	out := make([]dbexec.Row, len(rows))
	for i, row := range rows {
		out[i] = copyRow(row)
	}
	return out
}

// blogRows mirrors fixtures.BlogSeedSQL as scanned rows, in primary key order.
func blogRows() map[string][]dbexec.Row {
	return map[string][]dbexec.Row{
		"profiles": {
			{"id": int64(1), "bio": "first"},
			{"id": int64(2), "bio": "second"},
		},
		"emails": {
			{"id": int64(1), "address": "foo@example.com"},
		},
		"users": {
			{"id": int64(1), "name": "foo", "age": int64(20), "role": "ADMIN", "created_at": "2024-01-01", "profile_id": int64(1), "email_id": int64(1), "settings": nil},
			{"id": int64(2), "name": "bar", "age": int64(30), "role": "MEMBER", "created_at": "2024-02-01", "profile_id": int64(2), "email_id": nil, "settings": nil},
			{"id": int64(3), "name": "baz", "age": int64(40), "role": "MEMBER", "created_at": "2024-03-01", "profile_id": nil, "email_id": nil, "settings": nil},
			{"id": int64(4), "name": "qux_100%", "age": int64(50), "role": "ADMIN", "created_at": nil, "profile_id": nil, "email_id": nil, "settings": nil},
		},
		"posts": {
			{"id": int64(1), "title": "hello", "rating": 4.5, "published": int64(1), "author_id": int64(1)},
			{"id": int64(2), "title": "world", "rating": 3.0, "published": int64(0), "author_id": int64(1)},
			{"id": int64(3), "title": "again", "rating": nil, "published": int64(1), "author_id": int64(2)},
			{"id": int64(4), "title": "orphan", "rating": 1.0, "published": int64(1), "author_id": nil},
		},
		"tags": {
			{"id": int64(1), "label": "go"},
			{"id": int64(2), "label": "sql"},
		},
		"user_tags": {
			{"user_id": int64(1), "tag_id": int64(1)},
			{"user_id": int64(1), "tag_id": int64(2)},
			{"user_id": int64(2), "tag_id": int64(2)},
		},
	}
}

type testEnv struct {
	registry *introspection.Registry
	runner   *fakeRunner
	resolver *Resolver
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	registry := fixtures.BlogRegistry(t)
	runner := newFakeRunner()
	return &testEnv{
		registry: registry,
		runner:   runner,
		resolver: NewResolver(registry, planner.New(sqlutil.SQLite), runner, opts),
	}
}

func (e *testEnv) entity(t *testing.T, name string) *introspection.Entity {
	t.Helper()
	entity, err := e.registry.Describe(name)
	if err != nil {
		t.Fatalf("describe %s: %v", name, err)
	}
	return entity
}

func (e *testEnv) relation(t *testing.T, entity, field string) *introspection.Relation {
	t.Helper()
	rel, ok := e.entity(t, entity).RelationByField(field)
	if !ok {
		t.Fatalf("%s has no relation %s", entity, field)
	}
	return rel
}

// force completes a resolver result the way graphql-go does.
func force(value interface{}, err error) (interface{}, error) {
	if err != nil {
		return nil, err
	}
	if thunk, ok := value.(func() (interface{}, error)); ok {
		return thunk()
	}
	return value, nil
}
