package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
)

// wsReadLimit bounds a single incoming WebSocket frame (§4.G's body-limit
// concern, carried to the streaming transport since gorilla/mux's
// BodyLimitMiddleware never sees this connection).
const wsReadLimit = 8 << 20

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true }, // CORS is enforced below, before the upgrade
}

// WebSocketTransport upgrades HTTP connections to a bidirectional
// streaming JSON-RPC channel (§4.G): one Session per connection, its
// outbound queue drained by a dedicated writer goroutine so a slow reader
// never blocks the dispatch goroutine.
type WebSocketTransport struct {
	server *Server
	cors   *CORSMiddleware
}

// NewWebSocketTransport builds the WebSocket upgrade handler.
func NewWebSocketTransport(s *Server, cors *CORSMiddleware) http.Handler {
	t := &WebSocketTransport{server: s, cors: cors}
	h := http.Handler(http.HandlerFunc(t.handleUpgrade))
	if cors != nil {
		h = cors.Handler(h)
	}
	return h
}

func (t *WebSocketTransport) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	principal, err := t.server.auth.Authenticate(r.Header.Get("Authorization"))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	remoteKey := principal
	if remoteKey == "" || remoteKey == "anonymous" {
		remoteKey = clientIP(r)
	}
	if t.server.limiter != nil && !t.server.limiter.Allow(remoteKey) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(wsReadLimit)

	sess := t.server.sessions.Open("websocket", remoteKey)
	defer t.server.sessions.Close(sess)
	defer conn.Close()

	go t.writeLoop(conn, sess)
	t.readLoop(r.Context(), conn, sess)
}

// writeLoop drains the session's bounded outbound queue to the socket
// until the connection closes, independent of the read loop's goroutine so
// backpressure on one direction never stalls the other.
func (t *WebSocketTransport) writeLoop(conn *websocket.Conn, sess *Session) {
	for {
		select {
		case frame, ok := <-sess.Outbound():
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-sess.Done():
			return
		}
	}
}

// readLoop decodes one JSON-RPC request per frame and enqueues its
// response for writeLoop, so a single slow tool call never blocks reading
// the next request from this connection's backlog.
func (t *WebSocketTransport) readLoop(ctx context.Context, conn *websocket.Conn, sess *Session) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			t.respond(sess, parseErrorResponse())
			continue
		}

		go func(req Request) {
			resp := t.server.Dispatch(ctx, sess, req)
			if !req.IsNotification() {
				t.respond(sess, resp)
			}
		}(req)
	}
}

func (t *WebSocketTransport) respond(sess *Session, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	sess.Enqueue(data, t.server.metrics)
}
