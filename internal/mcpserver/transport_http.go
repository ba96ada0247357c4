package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/fugue-ai/rhema/internal/rerrors"
)

// requestTimeout bounds how long a single JSON-RPC call may run before the
// HTTP transport gives up (§4.G failure model: "every transport
// independently bounded").
const requestTimeout = 30 * time.Second

// HTTPTransport serves JSON-RPC request/response pairs over plain HTTP
// (§4.G): one short-lived session per call, keyed by the caller's
// authenticated principal (or IP, if anonymous) so rate limiting stays
// per-client across calls.
type HTTPTransport struct {
	server *Server
}

// NewHTTPTransport builds the HTTP transport's router, wrapping the
// JSON-RPC endpoint in the shared middleware chain (security headers,
// CORS, body limit, timeout, auth, rate limit, logging, metrics, recovery).
// The /healthz route on the same router is served without that chain.
func NewHTTPTransport(s *Server, cors *CORSMiddleware, bodyLimit *BodyLimitMiddleware, timeout *TimeoutMiddleware) *mux.Router {
	t := &HTTPTransport{server: s}
	r := mux.NewRouter()

	rpc := http.Handler(http.HandlerFunc(t.handleRPC))
	rpc = NewSecurityHeadersMiddleware(nil).Handler(rpc)
	if bodyLimit != nil {
		rpc = bodyLimit.Handler(rpc)
	}
	if timeout != nil {
		rpc = timeout.Handler(rpc)
	}
	rpc = t.authenticate(rpc)
	if s.limiter != nil {
		rpc = s.limiter.Handler(rpc)
	}
	rpc = MetricsMiddleware(s.metrics)(rpc)
	rpc = LoggingMiddleware(s.log)(rpc)
	rpc = NewRecoveryMiddleware(s.log).Handler(rpc)
	if cors != nil {
		rpc = cors.Handler(rpc)
	}

	r.Handle("/rpc", rpc).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/healthz", LivenessHandler()).Methods(http.MethodGet)
	return r
}

// authenticate resolves the caller's principal via the Authorization
// header and stashes it in the request context for downstream middleware
// (rate limiting) and the handler (session RemoteKey) to read.
func (t *HTTPTransport) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := t.server.auth.Authenticate(r.Header.Get("Authorization"))
		if err != nil {
			rerr, ok := err.(*rerrors.Error)
			if !ok {
				rerr = rerrors.Wrap(rerrors.CodeAuthFailed, "authentication failed", err)
			}
			writeTransportError(w, http.StatusUnauthorized, rerr)
			return
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), principal)))
	})
}

func (t *HTTPTransport) handleRPC(w http.ResponseWriter, r *http.Request) {
	principal := principalFromContext(r.Context())
	remoteKey := principal
	if remoteKey == "" || remoteKey == "anonymous" {
		remoteKey = clientIP(r)
	}

	sess := t.server.sessions.Open("http", remoteKey)
	defer t.server.sessions.Close(sess)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONRPC(w, parseErrorResponse())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	resp := t.server.Dispatch(ctx, sess, req)
	if req.IsNotification() {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSONRPC(w, resp)
}

func writeJSONRPC(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
