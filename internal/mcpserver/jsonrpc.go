package mcpserver

import (
	"encoding/json"

	"github.com/fugue-ai/rhema/internal/rerrors"
)

// ProtocolVersion is the MCP wire protocol version this server advertises
// during the initialize handshake (§6).
const ProtocolVersion = "2025-06-18"

// Request is one JSON-RPC 2.0 request or notification. A notification omits
// ID.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether this request carries no ID and therefore
// expects no response.
func (r Request) IsNotification() bool { return len(r.ID) == 0 }

// Response is one JSON-RPC 2.0 response. Exactly one of Result/Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// ErrorObject is a JSON-RPC 2.0 error object: a stable numeric code (§7's
// taxonomy, one code per error kind), a short message, and optional
// remediation details.
type ErrorObject struct {
	Code    int            `json:"code"`
	Message string          `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// NewResponse builds a successful response for id.
func NewResponse(id json.RawMessage, result any) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}

// NewErrorResponse builds an error response for id from any error, mapping
// a *rerrors.Error through its stable RPCCode/Message/Details and falling
// back to an internal-error envelope for anything else (a bug, not a
// client-visible taxonomy miss).
func NewErrorResponse(id json.RawMessage, err error) Response {
	return Response{JSONRPC: "2.0", ID: id, Error: toErrorObject(err)}
}

func toErrorObject(err error) *ErrorObject {
	var re *rerrors.Error
	if asRhemaError(err, &re) {
		return &ErrorObject{Code: re.RPCCode(), Message: re.Message, Data: re.Details}
	}
	return &ErrorObject{Code: -32603, Message: err.Error()}
}

func asRhemaError(err error, target **rerrors.Error) bool {
	type unwrapper interface{ Unwrap() error }
	for e := err; e != nil; {
		if re, ok := e.(*rerrors.Error); ok {
			*target = re
			return true
		}
		u, ok := e.(unwrapper)
		if !ok {
			return false
		}
		e = u.Unwrap()
	}
	return false
}

// parseError builds the standard JSON-RPC "invalid JSON" error response,
// used when Request itself fails to unmarshal (no ID is recoverable then).
func parseErrorResponse() Response {
	return Response{
		JSONRPC: "2.0",
		Error:   &ErrorObject{Code: -32700, Message: "parse error: malformed JSON-RPC request"},
	}
}

// InitializeResult is the handshake response named in §6:
// `{protocol_version, capabilities, server_info}`.
type InitializeResult struct {
	ProtocolVersion string       `json:"protocol_version"`
	Capabilities    Capabilities `json:"capabilities"`
	ServerInfo      ServerInfo   `json:"server_info"`
}

// Capabilities are the declared capability groups negotiated at
// initialize; a client only calls methods in groups it sees here.
type Capabilities struct {
	Tools       bool `json:"tools"`
	Resources   bool `json:"resources"`
	Prompts     bool `json:"prompts"`
	Completions bool `json:"completions"`
}

// ServerInfo identifies this server implementation and which transports it
// has enabled.
type ServerInfo struct {
	Name       string   `json:"name"`
	Version    string   `json:"version"`
	Transports []string `json:"transports"`
}
