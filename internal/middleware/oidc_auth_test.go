package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOIDCAuthMiddlewareDisabledPassesThrough(t *testing.T) {
	mw, err := OIDCAuthMiddleware(OIDCAuthConfig{}, nil, nil)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/graphql", nil))
	assert.Equal(t, http.StatusTeapot, rr.Code)
}

func TestOIDCAuthMiddlewareRejectsBadConfig(t *testing.T) {
	_, err := OIDCAuthMiddleware(OIDCAuthConfig{Enabled: true, IssuerURL: "https://issuer.example"}, nil, nil)
	assert.ErrorContains(t, err, "issuer/audience")

	_, err = OIDCAuthMiddleware(OIDCAuthConfig{Enabled: true, IssuerURL: "http://issuer.example", Audience: "relgraph"}, nil, nil)
	assert.ErrorContains(t, err, "must use https")
}

func TestBearerAuth(t *testing.T) {
	now := time.Now().Unix()
	verify := func(_ context.Context, raw string) (map[string]interface{}, error) {
		switch raw {
		case "good":
			return map[string]interface{}{"sub": "alice", "aud": []interface{}{"relgraph"}, "exp": float64(now + 60)}, nil
		case "stale":
			return map[string]interface{}{"sub": "bob", "exp": float64(now - 3600)}, nil
		case "garbled":
			return nil, &authFailure{reason: "claims_parse_failed", err: errors.New("bad claims")}
		}
		return nil, errors.New("signature mismatch")
	}

	tests := []struct {
		name   string
		header string
		want   int
		reason string
	}{
		{name: "missing", header: "", want: http.StatusUnauthorized, reason: "missing bearer token"},
		{name: "wrong scheme", header: "Basic good", want: http.StatusUnauthorized, reason: "missing bearer token"},
		{name: "bad signature", header: "Bearer forged", want: http.StatusUnauthorized, reason: "invalid token"},
		{name: "bad claims", header: "Bearer garbled", want: http.StatusUnauthorized, reason: "invalid token"},
		{name: "expired", header: "Bearer stale", want: http.StatusUnauthorized, reason: "invalid token"},
		{name: "valid", header: "bearer good", want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got AuthContext
			handler := bearerAuth(OIDCAuthConfig{IssuerURL: "https://issuer.example"}, verify, nil)(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					got, _ = AuthFromContext(r.Context())
					w.WriteHeader(http.StatusOK)
				}))

			req := httptest.NewRequest(http.MethodPost, "/graphql", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			require.Equal(t, tt.want, rr.Code)
			if tt.want != http.StatusOK {
				assert.Equal(t, "Bearer", rr.Header().Get("WWW-Authenticate"))
				var body map[string]string
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
				assert.Equal(t, tt.reason, body["error"])
				return
			}
			assert.Equal(t, "alice", got.Subject)
			assert.Equal(t, []string{"relgraph"}, got.Audience)
		})
	}
}

func TestValidateTimeClaims(t *testing.T) {
	now := time.Now().Unix()
	skew := time.Minute

	assert.NoError(t, validateTimeClaims(map[string]interface{}{"exp": float64(now - 30)}, skew), "within skew")
	assert.ErrorContains(t, validateTimeClaims(map[string]interface{}{"exp": json.Number("1")}, skew), "expired")
	assert.ErrorContains(t, validateTimeClaims(map[string]interface{}{"nbf": now + 3600}, skew), "not valid yet")
	assert.NoError(t, validateTimeClaims(map[string]interface{}{"exp": "not a number"}, skew))
	assert.NoError(t, validateTimeClaims(map[string]interface{}{"exp": float64(1)}, 0), "zero skew disables the check")
}

func TestExtractAudience(t *testing.T) {
	assert.Equal(t, []string{"a"}, extractAudience(map[string]interface{}{"aud": "a"}))
	assert.Equal(t, []string{"a", "b"}, extractAudience(map[string]interface{}{"aud": []interface{}{"a", 7, "b"}}))
	assert.Nil(t, extractAudience(map[string]interface{}{}))
}
