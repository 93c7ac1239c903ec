package middleware

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"relgraph/internal/logging"
	"relgraph/internal/observability"
)

const defaultClockSkew = 2 * time.Minute

// OIDCAuthConfig controls OIDC/JWKS validation behavior.
type OIDCAuthConfig struct {
	Enabled       bool
	IssuerURL     string
	Audience      string
	ClockSkew     time.Duration
	SkipTLSVerify bool
}

type authContextKey struct{}

// AuthContext carries validated JWT claims.
type AuthContext struct {
	Subject  string
	Issuer   string
	Audience []string
	Claims   map[string]interface{}
}

// AuthFromContext returns the auth context from a request context.
func AuthFromContext(ctx context.Context) (AuthContext, bool) {
	auth, ok := ctx.Value(authContextKey{}).(AuthContext)
	return auth, ok
}

// claimsVerifier checks a raw bearer token and returns its claims.
type claimsVerifier func(ctx context.Context, rawToken string) (map[string]interface{}, error)

// authFailure is a rejected token with the label it is counted under.
type authFailure struct {
	reason string
	err    error
}

func (f *authFailure) Error() string { return f.err.Error() }

func newOIDCHTTPClient(cfg OIDCAuthConfig) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion:         tls.VersionTLS12,
				InsecureSkipVerify: cfg.SkipTLSVerify, //nolint:gosec // opt-in for local issuers
			},
		},
		Timeout: 10 * time.Second,
	}
}

// OIDCAuthMiddleware validates Bearer tokens against the issuer's JWKS when
// enabled. metrics may be nil.
func OIDCAuthMiddleware(cfg OIDCAuthConfig, logger *logging.Logger, metrics *observability.AuthMetrics) (func(http.Handler) http.Handler, error) {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }, nil
	}
	if cfg.IssuerURL == "" || cfg.Audience == "" {
		return nil, errors.New("oidc auth enabled but issuer/audience not configured")
	}
	issuerURL, err := url.Parse(cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid oidc issuer url: %w", err)
	}
	if issuerURL.Scheme != "https" {
		return nil, errors.New("oidc issuer url must use https")
	}
	if cfg.SkipTLSVerify && logger != nil {
		logger.Warn("oidc tls verification is disabled; enable only for local development",
			slog.String("issuer", cfg.IssuerURL),
		)
	}

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, newOIDCHTTPClient(cfg))
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize oidc provider: %w", err)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.Audience})

	verify := func(ctx context.Context, raw string) (map[string]interface{}, error) {
		idToken, err := verifier.Verify(ctx, raw)
		if err != nil {
			return nil, &authFailure{reason: "verification_failed", err: err}
		}
		claims := map[string]interface{}{}
		if err := idToken.Claims(&claims); err != nil {
			return nil, &authFailure{reason: "claims_parse_failed", err: err}
		}
		return claims, nil
	}
	return bearerAuth(cfg, verify, metrics), nil
}

// bearerAuth rejects requests whose bearer token does not pass verify or
// the clock skew check, and stores the claims of accepted ones.
func bearerAuth(cfg OIDCAuthConfig, verify claimsVerifier, metrics *observability.AuthMetrics) func(http.Handler) http.Handler {
	if cfg.ClockSkew == 0 {
		cfg.ClockSkew = defaultClockSkew
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			endpoint := r.URL.Path
			reqLogger := logging.FromContext(ctx)
			if metrics != nil {
				metrics.RecordAuthAttempt(ctx, endpoint)
			}

			reject := func(reason, message string, err error) {
				if metrics != nil {
					metrics.RecordAuthFailure(ctx, endpoint, reason)
					if err != nil {
						metrics.RecordTokenValidationError(ctx, reason)
					}
				}
				attrs := []any{
					slog.String("reason", reason),
					slog.String("endpoint", endpoint),
					slog.String("remote_addr", r.RemoteAddr),
				}
				if err != nil {
					attrs = append(attrs, slog.String("error", err.Error()))
				}
				reqLogger.Warn("authentication failed", attrs...)
				writeUnauthorized(w, message)
			}

			raw := bearerToken(r.Header.Get("Authorization"))
			if raw == "" {
				reject("missing_token", "missing bearer token", nil)
				return
			}
			claims, err := verify(ctx, raw)
			if err != nil {
				reason := "verification_failed"
				var failure *authFailure
				if errors.As(err, &failure) {
					reason = failure.reason
				}
				reject(reason, "invalid token", err)
				return
			}
			if err := validateTimeClaims(claims, cfg.ClockSkew); err != nil {
				reject("time_validation_failed", "invalid token", err)
				return
			}

			subject, _ := claims["sub"].(string)
			aud := extractAudience(claims)
			if metrics != nil {
				metrics.RecordAuthSuccess(ctx, endpoint, cfg.IssuerURL)
			}
			reqLogger.Debug("authentication successful",
				slog.String("subject", subject),
				slog.String("endpoint", endpoint),
			)
			if span := trace.SpanFromContext(ctx); span.IsRecording() {
				span.SetAttributes(
					attribute.String("auth.subject", subject),
					attribute.String("auth.issuer", cfg.IssuerURL),
				)
				if len(aud) > 0 {
					span.SetAttributes(attribute.StringSlice("auth.audience", aud))
				}
			}

			ctx = context.WithValue(ctx, authContextKey{}, AuthContext{
				Subject:  subject,
				Issuer:   cfg.IssuerURL,
				Audience: aud,
				Claims:   claims,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) string {
	scheme, token, ok := strings.Cut(value, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func validateTimeClaims(claims map[string]interface{}, skew time.Duration) error {
	if skew <= 0 {
		return nil
	}
	now := time.Now()
	if exp, ok := numericDate(claims["exp"]); ok && now.After(exp.Add(skew)) {
		return errors.New("token expired")
	}
	if nbf, ok := numericDate(claims["nbf"]); ok && now.Add(skew).Before(nbf) {
		return errors.New("token not valid yet")
	}
	return nil
}

func numericDate(value interface{}) (time.Time, bool) {
	var seconds int64
	switch v := value.(type) {
	case float64:
		seconds = int64(v)
	case int64:
		seconds = v
	case int:
		seconds = int64(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return time.Time{}, false
		}
		seconds = n
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		seconds = n
	default:
		return time.Time{}, false
	}
	return time.Unix(seconds, 0), true
}

func extractAudience(claims map[string]interface{}) []string {
	switch val := claims["aud"].(type) {
	case string:
		return []string{val}
	case []string:
		return val
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
