package mcpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fugue-ai/rhema/internal/config"
)

func TestNewAuthenticator_RequiredWithoutKeyFails(t *testing.T) {
	_, err := NewAuthenticator(config.SecurityConfig{AuthRequired: true})
	require.Error(t, err)
}

func TestAuthenticator_AnonymousWhenNotRequired(t *testing.T) {
	a, err := NewAuthenticator(config.SecurityConfig{})
	require.NoError(t, err)

	principal, err := a.Authenticate("")
	require.NoError(t, err)
	assert.Equal(t, "anonymous", principal)
}

func TestAuthenticator_APIKeyRoundTrip(t *testing.T) {
	a, err := NewAuthenticator(config.SecurityConfig{AuthRequired: true, APIKey: "s3cret"})
	require.NoError(t, err)

	principal, err := a.Authenticate("Bearer s3cret")
	require.NoError(t, err)
	assert.Equal(t, "api-key", principal)

	_, err = a.Authenticate("Bearer wrong")
	assert.Error(t, err)
}

func TestAuthenticator_MissingCredentialWhenRequired(t *testing.T) {
	a, err := NewAuthenticator(config.SecurityConfig{AuthRequired: true, APIKey: "s3cret"})
	require.NoError(t, err)

	_, err = a.Authenticate("")
	assert.Error(t, err)
}

func TestLooksLikeJWT(t *testing.T) {
	assert.True(t, looksLikeJWT("a.b.c"))
	assert.False(t, looksLikeJWT("not-a-jwt"))
	assert.False(t, looksLikeJWT("s3cret"))
}

func TestConstantTimeEqual(t *testing.T) {
	assert.True(t, constantTimeEqual("abc", "abc"))
	assert.False(t, constantTimeEqual("abc", "abd"))
	assert.False(t, constantTimeEqual("abc", "abcd"))
}

func TestMetricsAuthMiddleware_NoKeyConfigured(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	handler := MetricsAuthMiddleware("", next)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsAuthMiddleware_RejectsWrongToken(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next should not be called on auth failure")
	})

	handler := MetricsAuthMiddleware("s3cret", next)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMetricsAuthMiddleware_AcceptsCorrectToken(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	handler := MetricsAuthMiddleware("s3cret", next)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.True(t, called)
}
