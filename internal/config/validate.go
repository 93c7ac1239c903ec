package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"strings"

	"relgraph/internal/sqlutil"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) fail(field, message, hint string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Hint: hint})
}

func (r *ValidationResult) warn(field, message, hint string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message, Hint: hint})
}

// Validate checks the configuration and returns errors (fatal) and warnings.
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}
	c.Database.validate(result)
	c.Registry.validate(result)
	if dialect, err := c.Database.SQLDialect(); err == nil && dialect.Name != sqlutil.MySQL.Name && c.Registry.File == "" {
		result.fail("registry.file", fmt.Sprintf("%s databases cannot be introspected", dialect.Name), "export a registry file and set registry.file")
	}
	c.Server.validate(result)
	c.Observability.validate(result)
	validateNaming(result, c.Naming.PluralOverrides, "naming.plural_overrides")
	validateNaming(result, c.Naming.SingularOverrides, "naming.singular_overrides")
	return result
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	dialect, err := d.SQLDialect()
	if err != nil {
		result.fail("database.dialect", err.Error(), "valid values are: mysql, postgres, sqlite")
		return
	}
	if d.Port < 0 || d.Port > 65535 {
		result.fail("database.port", fmt.Sprintf("port %d is out of valid range (0-65535)", d.Port), "")
	}
	if dialect.Name != sqlutil.SQLite.Name && d.ConnectionString == "" {
		if strings.TrimSpace(d.Host) == "" {
			result.fail("database.host", "host is required when no dsn is configured", "set database.host or database.dsn")
		}
		if strings.TrimSpace(d.Database) == "" {
			result.fail("database.database", "database name is required when no dsn is configured", "")
		}
	}
	if d.ConnectionString != "" && (d.Host != "" && d.Host != "localhost") {
		result.warn("database.dsn", "dsn overrides the discrete connection fields", "remove database.host when using a dsn")
	}
	if d.Pool.MaxOpen < 0 || d.Pool.MaxIdle < 0 {
		result.fail("database.pool", "pool sizes cannot be negative", "")
	}
	if d.Pool.MaxOpen > 0 && d.Pool.MaxIdle > d.Pool.MaxOpen {
		result.warn("database.pool.max_idle", "max_idle exceeds max_open", "the driver caps idle connections at max_open")
	}
	if d.ConnectionTimeout < 0 || d.ConnectionRetryInterval < 0 {
		result.fail("database.connection_timeout", "connection timeouts cannot be negative", "")
	}
}

func (r *RegistryConfig) validate(result *ValidationResult) {
	if r.File == "" {
		return
	}
	if _, err := os.Stat(r.File); err != nil {
		result.fail("registry.file", fmt.Sprintf("cannot read registry file: %v", err), "")
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	if s.Port < 1 || s.Port > 65535 {
		result.fail("server.port", fmt.Sprintf("port %d is out of valid range (1-65535)", s.Port), "")
	}
	for field, value := range map[string]int{
		"server.graphql_max_depth":      s.GraphQLMaxDepth,
		"server.graphql_max_complexity": s.GraphQLMaxComplexity,
		"server.graphql_max_rows":       s.GraphQLMaxRows,
		"server.graphql_default_limit":  s.GraphQLDefaultLimit,
		"server.graphql_max_limit":      s.GraphQLMaxLimit,
		"server.batch_in_limit":         s.BatchInLimit,
	} {
		if value < 0 {
			result.fail(field, "value cannot be negative", "")
		}
	}
	if s.GraphQLMaxLimit > 0 && s.GraphQLDefaultLimit > s.GraphQLMaxLimit {
		result.warn("server.graphql_default_limit", "default limit exceeds max limit", "list fields are capped at graphql_max_limit")
	}
	if s.IgnoreRelationErrors {
		result.warn("server.ignore_relation_errors", "relation errors are suppressed for every request", "prefer the X-Relgraph-Ignore-Errors header per request")
	}

	if s.CORSEnabled {
		if len(s.CORSAllowedOrigins) == 0 {
			result.fail("server.cors_allowed_origins", "CORS enabled but no allowed origins configured", "set cors_allowed_origins or disable CORS")
		}
		hasWildcard := false
		for _, origin := range s.CORSAllowedOrigins {
			if strings.TrimSpace(origin) == "*" {
				hasWildcard = true
				break
			}
		}
		if hasWildcard && s.CORSAllowCredentials {
			result.fail("server.cors_allowed_origins", "wildcard origin (*) cannot be used with credentials", "use specific origins with credentials, or wildcard without credentials")
		}
		if hasWildcard {
			result.warn("server.cors_allowed_origins", "CORS wildcard origin enabled", "use specific origins in production for better security")
		}
	}

	if s.Auth.OIDCEnabled {
		if s.Auth.OIDCIssuerURL == "" {
			result.fail("server.auth.oidc_issuer_url", "issuer URL is required when OIDC is enabled", "")
		} else if u, err := url.Parse(s.Auth.OIDCIssuerURL); err != nil || u.Scheme != "https" {
			result.fail("server.auth.oidc_issuer_url", "issuer URL must be an https URL", "")
		}
		if s.Auth.OIDCAudience == "" {
			result.fail("server.auth.oidc_audience", "audience is required when OIDC is enabled", "")
		}
		if s.Auth.OIDCSkipTLSVerify {
			result.warn("server.auth.oidc_skip_tls_verify", "TLS verification for the OIDC provider is disabled", "use only in development")
		}
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.fail("observability.logging.level", fmt.Sprintf("invalid log level %q", o.Logging.Level), "valid values are: debug, info, warn, error")
	}
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.fail("observability.logging.format", fmt.Sprintf("invalid log format %q", o.Logging.Format), "valid values are: json, text")
	}
	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.fail("observability.trace_sample_ratio", "sample ratio must be between 0 and 1", "")
	}

	o.OTLP.validate("observability.otlp", result)
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.fail(prefix+".protocol", fmt.Sprintf("invalid OTLP protocol %q", o.Protocol), "valid values are: grpc, http/protobuf")
	}
	if o.Endpoint != "" && !validOTLPEndpoint(o.Endpoint) {
		result.fail(prefix+".endpoint", fmt.Sprintf("invalid OTLP endpoint %q", o.Endpoint), "use host:port or a full URL")
	}
	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.fail(prefix+".compression", fmt.Sprintf("invalid OTLP compression %q", o.Compression), "valid values are: none, gzip")
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		return err == nil && parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validateNaming(result *ValidationResult, overrides map[string]string, field string) {
	for from, to := range overrides {
		if !identifierPattern.MatchString(strings.TrimSpace(from)) || !identifierPattern.MatchString(strings.TrimSpace(to)) {
			result.fail(field, fmt.Sprintf("override %q -> %q must map identifiers", from, to), "")
		}
	}
}
