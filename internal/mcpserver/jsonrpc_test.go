package mcpserver

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fugue-ai/rhema/internal/rerrors"
)

func TestRequest_IsNotification(t *testing.T) {
	withID := Request{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: "ping"}
	withoutID := Request{JSONRPC: "2.0", Method: "ping"}

	assert.False(t, withID.IsNotification())
	assert.True(t, withoutID.IsNotification())
}

func TestNewResponse(t *testing.T) {
	id := json.RawMessage(`"req-1"`)
	resp := NewResponse(id, map[string]string{"ok": "true"})

	assert.Equal(t, "2.0", resp.JSONRPC)
	assert.Equal(t, id, resp.ID)
	assert.Nil(t, resp.Error)
}

func TestNewErrorResponse_RhemaError(t *testing.T) {
	err := rerrors.New(rerrors.CodeAuthFailed, "missing bearer credential")
	resp := NewErrorResponse(nil, err)

	assert.Nil(t, resp.Result)
	assert.NotNil(t, resp.Error)
	assert.Equal(t, -32041, resp.Error.Code)
	assert.Equal(t, "missing bearer credential", resp.Error.Message)
}

func TestNewErrorResponse_PlainErrorFallsBackToInternal(t *testing.T) {
	inner := rerrors.New(rerrors.CodeInternal, "boom")
	wrapped := errors.New("context: " + inner.Error())
	resp := NewErrorResponse(nil, wrapped)

	// A plain error with no *rerrors.Error in its Unwrap chain falls back to
	// a generic internal-error envelope rather than guessing at a code.
	assert.Equal(t, -32603, resp.Error.Code)
	assert.Equal(t, wrapped.Error(), resp.Error.Message)
}

func TestAsRhemaError_ReturnsOutermostRhemaError(t *testing.T) {
	inner := rerrors.New(rerrors.CodeCrashedAgent, "agent-1 crashed")
	outer := rerrors.Wrap(rerrors.CodeInternal, "recovering", inner)

	var target *rerrors.Error
	found := asRhemaError(outer, &target)

	assert.True(t, found)
	assert.Equal(t, rerrors.CodeInternal, target.Code)
	assert.Same(t, outer, target)
}

func TestParseErrorResponse(t *testing.T) {
	resp := parseErrorResponse()
	assert.Equal(t, -32700, resp.Error.Code)
	assert.Nil(t, resp.ID)
}
