package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"example.com/userstate/internal/identity"
)

var testConfig = Config{Secret: "test-secret", Issuer: "userstate.identity"}

func sign(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestParseAcceptsValidToken(t *testing.T) {
	token := sign(t, jwt.MapClaims{
		"sub":    "7d3c9a1e-2b4f-4e6a-8c1d-9f0e2a3b4c5d",
		"iss":    "userstate.identity",
		"exp":    time.Now().Add(time.Hour).Unix(),
		"scopes": "state:read state:write",
	}, testConfig.Secret)

	claims, err := Parse(token, testConfig)
	require.NoError(t, err)
	require.True(t, claims.HasScope("state:write"))
	require.Equal(t, identity.Durable, claims.Identity().Kind)
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"wrong secret": sign(t, jwt.MapClaims{"sub": "u", "iss": "userstate.identity"}, "other"),
		"wrong issuer": sign(t, jwt.MapClaims{"sub": "u", "iss": "someone-else"}, testConfig.Secret),
		"no subject":   sign(t, jwt.MapClaims{"iss": "userstate.identity"}, testConfig.Secret),
		"expired": sign(t, jwt.MapClaims{
			"sub": "u",
			"iss": "userstate.identity",
			"exp": time.Now().Add(-time.Hour).Unix(),
		}, testConfig.Secret),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(token, testConfig)
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	_, err := Parse("  ", testConfig)
	require.ErrorIs(t, err, ErrMissingToken)
}

func TestMiddleware(t *testing.T) {
	var seen *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := NewMiddleware(testConfig, PublicPaths).Wrap(next)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/tutorial", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Nil(t, seen)

	req := httptest.NewRequest(http.MethodGet, "/v1/tutorial", nil)
	req.Header.Set("Authorization", "Bearer "+sign(t, jwt.MapClaims{"sub": "guest", "iss": "userstate.identity"}, testConfig.Secret))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	require.Equal(t, identity.Ephemeral, seen.Identity().Kind)
}
