package mcpserver

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fugue-ai/rhema/internal/rerrors"
)

func TestPrincipalContext_RoundTrip(t *testing.T) {
	assert.Equal(t, "", principalFromContext(context.Background()))

	ctx := withPrincipal(context.Background(), "api-key")
	assert.Equal(t, "api-key", principalFromContext(ctx))
}

func TestClientIP_PrefersForwardedHeader(t *testing.T) {
	req := httptest.NewRequest("GET", "/rpc", nil)
	req.RemoteAddr = "10.0.0.5:54321"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	assert.Equal(t, "203.0.113.9", clientIP(req))
}

func TestClientIP_FallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest("GET", "/rpc", nil)
	req.RemoteAddr = "10.0.0.5:54321"

	assert.Equal(t, "10.0.0.5", clientIP(req))
}

func TestWriteTransportError(t *testing.T) {
	rec := httptest.NewRecorder()
	err := rerrors.New(rerrors.CodeRateLimited, "rate limit exceeded").WithDetails("limit", 10)

	writeTransportError(rec, 429, err)

	require.Equal(t, 429, rec.Code)
	var body transportErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, -32042, body.Error.Code)
	assert.Equal(t, "rate limit exceeded", body.Error.Message)
}
