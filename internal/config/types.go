package config

import (
	"time"

	"relgraph/internal/naming"
)

// Config holds the application configuration.
type Config struct {
	Database      DatabaseConfig      `mapstructure:"database"`
	Registry      RegistryConfig      `mapstructure:"registry"`
	Server        ServerConfig        `mapstructure:"server"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Naming        naming.Config       `mapstructure:"naming"`
}

// PoolConfig holds connection pool parameters.
type PoolConfig struct {
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

// DatabaseConfig holds database connection parameters.
type DatabaseConfig struct {
	// Dialect selects SQL syntax and driver: mysql (also TiDB), postgres or sqlite.
	Dialect string `mapstructure:"dialect"`

	// ConnectionString is a complete driver DSN. When set, it overrides the
	// discrete fields below. For sqlite it is the database file path.
	ConnectionString string `mapstructure:"dsn"`
	// ConnectionStringFile is a path to a file containing the DSN.
	ConnectionStringFile string `mapstructure:"dsn_file"`

	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	PasswordFile   string `mapstructure:"password_file"`
	PasswordPrompt bool   `mapstructure:"password_prompt"`
	Database       string `mapstructure:"database"`

	Pool PoolConfig `mapstructure:"pool"`

	// ConnectionTimeout is the max time to wait for the database on startup.
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
	// ConnectionRetryInterval is the initial interval between connection retries.
	ConnectionRetryInterval time.Duration `mapstructure:"connection_retry_interval"`
}

// RegistryConfig selects where entity metadata comes from. With File unset the
// registry is introspected from the database catalog.
type RegistryConfig struct {
	File string `mapstructure:"file"`
}

// AuthConfig holds authentication parameters.
type AuthConfig struct {
	OIDCEnabled       bool          `mapstructure:"oidc_enabled"`
	OIDCIssuerURL     string        `mapstructure:"oidc_issuer_url"`
	OIDCAudience      string        `mapstructure:"oidc_audience"`
	OIDCClockSkew     time.Duration `mapstructure:"oidc_clock_skew"`
	OIDCSkipTLSVerify bool          `mapstructure:"oidc_skip_tls_verify"`
}

// ServerConfig holds HTTP server and query execution parameters.
type ServerConfig struct {
	Port int `mapstructure:"port"`

	GraphQLMaxDepth      int `mapstructure:"graphql_max_depth"`
	GraphQLMaxComplexity int `mapstructure:"graphql_max_complexity"`
	GraphQLMaxRows       int `mapstructure:"graphql_max_rows"`
	GraphQLDefaultLimit  int `mapstructure:"graphql_default_limit"`
	GraphQLMaxLimit      int `mapstructure:"graphql_max_limit"`
	// BatchInLimit caps the keys bound into one grouped IN list.
	BatchInLimit int `mapstructure:"batch_in_limit"`
	// IgnoreRelationErrors resolves to-one relations with a missing foreign key
	// column to null instead of failing the field.
	IgnoreRelationErrors bool `mapstructure:"ignore_relation_errors"`
	GraphiQLEnabled      bool `mapstructure:"graphiql_enabled"`

	Auth AuthConfig `mapstructure:"auth"`

	CORSEnabled          bool     `mapstructure:"cors_enabled"`
	CORSAllowedOrigins   []string `mapstructure:"cors_allowed_origins"`
	CORSAllowedMethods   []string `mapstructure:"cors_allowed_methods"`
	CORSAllowedHeaders   []string `mapstructure:"cors_allowed_headers"`
	CORSExposeHeaders    []string `mapstructure:"cors_expose_headers"`
	CORSAllowCredentials bool     `mapstructure:"cors_allow_credentials"`
	CORSMaxAge           int      `mapstructure:"cors_max_age"`

	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	HealthCheckTimeout time.Duration `mapstructure:"health_check_timeout"`
}

// LoggingConfig holds logging parameters.
type LoggingConfig struct {
	Level          string `mapstructure:"level"`           // debug, info, warn, error
	Format         string `mapstructure:"format"`          // json, text
	ExportsEnabled bool   `mapstructure:"exports_enabled"` // Enable OTLP log export
}

// ObservabilityConfig holds observability parameters.
type ObservabilityConfig struct {
	ServiceName      string        `mapstructure:"service_name"`
	ServiceVersion   string        `mapstructure:"service_version"`
	Environment      string        `mapstructure:"environment"`
	MetricsEnabled   bool          `mapstructure:"metrics_enabled"`
	TracingEnabled   bool          `mapstructure:"tracing_enabled"`
	TraceSampleRatio float64       `mapstructure:"trace_sample_ratio"`
	Logging          LoggingConfig `mapstructure:"logging"`

	// OTLP holds the defaults for every signal.
	OTLP OTLPConfig `mapstructure:"otlp"`

	Traces *OTLPConfig `mapstructure:"traces,omitempty"`
	Logs   *OTLPConfig `mapstructure:"logs,omitempty"`
}

// OTLPConfig holds OTLP exporter configuration
type OTLPConfig struct {
	Endpoint    string            `mapstructure:"endpoint"`
	Protocol    string            `mapstructure:"protocol"` // "grpc", "http/protobuf"
	Insecure    bool              `mapstructure:"insecure"`
	Headers     map[string]string `mapstructure:"headers"`
	Timeout     time.Duration     `mapstructure:"timeout"`
	Compression string            `mapstructure:"compression"` // "none", "gzip"
}

// TracesOTLP returns the effective exporter settings for traces.
func (c *ObservabilityConfig) TracesOTLP() OTLPConfig {
	return c.OTLP.merge(c.Traces)
}

// LogsOTLP returns the effective exporter settings for logs.
func (c *ObservabilityConfig) LogsOTLP() OTLPConfig {
	return c.OTLP.merge(c.Logs)
}

// merge lays non-empty override values over o. Insecure is taken from the
// override whenever the override section exists.
func (o OTLPConfig) merge(override *OTLPConfig) OTLPConfig {
	if override == nil {
		return o
	}
	result := o
	if override.Endpoint != "" {
		result.Endpoint = override.Endpoint
	}
	if override.Protocol != "" {
		result.Protocol = override.Protocol
	}
	result.Insecure = override.Insecure
	if override.Headers != nil {
		result.Headers = make(map[string]string, len(o.Headers)+len(override.Headers))
		for k, v := range o.Headers {
			result.Headers[k] = v
		}
		for k, v := range override.Headers {
			result.Headers[k] = v
		}
	}
	if override.Timeout != 0 {
		result.Timeout = override.Timeout
	}
	if override.Compression != "" {
		result.Compression = override.Compression
	}
	return result
}
