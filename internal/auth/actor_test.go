package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func protectedHandler(t *testing.T, cfg Config, captured **Actor) http.Handler {
	return RequirePrivileged(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
}

func TestPrivilegedTokenPasses(t *testing.T) {
	var actor *Actor
	handler := protectedHandler(t, Config{JWTSecret: testSecret}, &actor)

	req := httptest.NewRequest(http.MethodPost, "/promotions", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.MapClaims{
		"sub":        "release-bot",
		"privileged": true,
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, actor)
	assert.Equal(t, "release-bot", actor.Subject)
	assert.True(t, actor.Privileged)
}

func TestUnprivilegedTokenForbidden(t *testing.T) {
	var actor *Actor
	handler := protectedHandler(t, Config{JWTSecret: testSecret}, &actor)

	req := httptest.NewRequest(http.MethodPost, "/promotions", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.MapClaims{"sub": "viewer"}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Nil(t, actor)
}

func TestMissingTokenUnauthorized(t *testing.T) {
	var actor *Actor
	handler := protectedHandler(t, Config{JWTSecret: testSecret}, &actor)

	req := httptest.NewRequest(http.MethodPost, "/promotions", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBadSignatureUnauthorized(t *testing.T) {
	var actor *Actor
	handler := protectedHandler(t, Config{JWTSecret: "other-secret"}, &actor)

	req := httptest.NewRequest(http.MethodPost, "/promotions", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.MapClaims{
		"sub":        "release-bot",
		"privileged": true,
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDebugTokenPath(t *testing.T) {
	var actor *Actor
	handler := protectedHandler(t, Config{AllowDebugToken: true, DebugToken: "dev"}, &actor)

	req := httptest.NewRequest(http.MethodPost, "/promotions", nil)
	req.Header.Set("X-Debug-Token", "dev")
	req.Header.Set("X-Actor", "local-dev")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, actor)
	assert.Equal(t, "local-dev", actor.Subject)
}

func TestDebugModeRejectsWrongToken(t *testing.T) {
	var actor *Actor
	handler := protectedHandler(t, Config{AllowDebugToken: true, DebugToken: "dev"}, &actor)

	req := httptest.NewRequest(http.MethodPost, "/promotions", nil)
	req.Header.Set("X-Debug-Token", "wrong")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
