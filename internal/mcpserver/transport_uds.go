package mcpserver

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
)

// UnixSocketTransport serves the same JSON-RPC framing as the HTTP
// transport but over a local domain socket (§4.G): no network exposure,
// no CORS or bearer auth surface, trusted entirely by filesystem
// permissions on the socket path.
type UnixSocketTransport struct {
	server *Server
}

// NewUnixSocketRouter builds the chi router the UDS listener serves.
func NewUnixSocketRouter(s *Server) http.Handler {
	t := &UnixSocketTransport{server: s}
	r := chi.NewRouter()
	r.Post("/rpc", t.handleRPC)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		LivenessHandler()(w, r)
	})
	return r
}

// Listen removes any stale socket file at path and binds a new Unix
// domain socket listener for it.
func Listen(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return net.Listen("unix", path)
}

func (t *UnixSocketTransport) handleRPC(w http.ResponseWriter, r *http.Request) {
	sess := t.server.sessions.Open("unix_socket", "local")
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
