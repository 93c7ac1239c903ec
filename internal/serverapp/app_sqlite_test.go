//go:build cgo

package serverapp

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relgraph/internal/config"
	"relgraph/internal/middleware"
	"relgraph/internal/naming"
	"relgraph/internal/testutil/fixtures"
)

// sqliteApp initializes an App over a seeded sqlite file and the blog registry.
func sqliteApp(t *testing.T, mutate func(*config.Config)) *App {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "blog.db")

	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	for _, stmt := range append(append([]string{}, fixtures.BlogSchemaSQL...), fixtures.BlogSeedSQL...) {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	require.NoError(t, db.Close())

	registryPath := filepath.Join(dir, "registry.yaml")
	require.NoError(t, os.WriteFile(registryPath, []byte(fixtures.BlogRegistryYAML), 0o600))

	cfg := &config.Config{
		Database: config.DatabaseConfig{
			Dialect:          "sqlite",
			ConnectionString: dbPath,
			Pool:             config.PoolConfig{MaxOpen: 1, MaxIdle: 1},
		},
		Registry: config.RegistryConfig{File: registryPath},
		Server: config.ServerConfig{
			Port:                18090,
			GraphQLDefaultLimit: 100,
			BatchInLimit:        1000,
			HealthCheckTimeout:  time.Second,
		},
		Observability: config.ObservabilityConfig{ServiceName: "relgraph"},
		Naming:        naming.DefaultConfig(),
	}
	if mutate != nil {
		mutate(cfg)
	}

	app, err := New(cfg, testLogger())
	require.NoError(t, err)
	require.NoError(t, app.Init(context.Background()))
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })
	return app
}

func postGraphQL(t *testing.T, handler http.Handler, query string, header http.Header) map[string]interface{} {
	t.Helper()
	body, err := json.Marshal(map[string]string{"query": query})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestInit_ServesGraphQLOverSQLite(t *testing.T) {
	app := sqliteApp(t, nil)

	out := postGraphQL(t, app.Handler(), `{
		users(where: {age_lt: 35}, orderBy: [age_ASC]) {
			name
			posts { title }
		}
	}`, nil)
	assert.Nil(t, out["errors"])

	data, err := json.Marshal(out["data"])
	require.NoError(t, err)
	assert.JSONEq(t, `{"users":[
		{"name":"foo","posts":[{"title":"hello"},{"title":"world"}]},
		{"name":"bar","posts":[{"title":"again"}]}
	]}`, string(data))
}

func TestInit_NullForeignKeyResolvesNull(t *testing.T) {
	app := sqliteApp(t, nil)

	header := http.Header{}
	header.Set(middleware.IgnoreErrorsHeader, "true")
	out := postGraphQL(t, app.Handler(), `{ posts(where: {id: 4}) { title author { name } } }`, header)
	assert.Nil(t, out["errors"])

	data, err := json.Marshal(out["data"])
	require.NoError(t, err)
	assert.JSONEq(t, `{"posts":[{"title":"orphan","author":null}]}`, string(data))
}

func TestInit_HealthAndRoutes(t *testing.T) {
	app := sqliteApp(t, nil)

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","database":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/graphql", rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "metrics are disabled")
}

func TestInit_IsIdempotent(t *testing.T) {
	app := sqliteApp(t, nil)
	handler := app.Handler()
	require.NoError(t, app.Init(context.Background()))
	assert.Equal(t, handler, app.Handler())
}

func TestLoadRegistry_RequiresFileOutsideMySQL(t *testing.T) {
	cfg := &config.Config{Naming: naming.DefaultConfig()}
	dialect, err := (&config.DatabaseConfig{Dialect: "postgres"}).SQLDialect()
	require.NoError(t, err)

	_, err = loadRegistry(context.Background(), cfg, dialect, testLogger(), nil, "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry.file")
}
