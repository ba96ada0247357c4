package mcpserver

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fugue-ai/rhema/internal/metrics"
)

// QueueDepth is the bounded per-connection outbound queue size (§4.G
// "backpressure is applied by per-connection bounded queues with
// drop-oldest-on-overflow"). A streaming transport (WebSocket) uses it
// directly; the request/response transports (HTTP, UDS) have no queue to
// bound since each request blocks for exactly one response.
const QueueDepth = 64

// Session is one MCP transport-bound client connection (§ GLOSSARY "MCP
// Session"): its negotiated capabilities, its identity for rate-limiting
// and auth, and — for streaming transports — its outbound message queue.
// Sessions never share mutable state with each other (§5 "isolated per
// connection").
type Session struct {
	ID           string
	Transport    string // "http", "websocket", "unix_socket"
	RemoteKey    string // client IP or authenticated principal, for rate limiting
	Capabilities Capabilities
	CreatedAt    time.Time

	mu          sync.Mutex
	initialized bool

	outbound chan []byte
	closed   chan struct{}
	once     sync.Once
}

// NewSession creates a session for transport, identified for rate-limiting
// purposes by remoteKey (IP address, or bearer principal once authorized).
func NewSession(transport, remoteKey string) *Session {
	return &Session{
		ID:        uuid.New().String(),
		Transport: transport,
		RemoteKey: remoteKey,
		CreatedAt: time.Now().UTC(),
		outbound:  make(chan []byte, QueueDepth),
		closed:    make(chan struct{}),
	}
}

// MarkInitialized records that this session completed the initialize
// handshake. Dispatch consults it only for methods it does not recognise,
// answering "session not initialized" instead of "unknown method" while it
// is false; known methods run on an uninitialized session too.
func (s *Session) MarkInitialized(caps Capabilities) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = true
	s.Capabilities = caps
}

// Initialized reports whether the handshake has completed.
func (s *Session) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Enqueue pushes an outbound frame onto the session's bounded queue for a
// streaming transport. On overflow the oldest queued frame is dropped to
// make room (never the newest), and m.MCPQueueDrops is incremented — a slow
// consumer loses old updates rather than stalling the producer.
func (s *Session) Enqueue(frame []byte, m *metrics.Metrics) {
	select {
	case s.outbound <- frame:
		return
	default:
	}
	select {
	case <-s.outbound:
		if m != nil {
			m.MCPQueueDrops.WithLabelValues(s.Transport).Inc()
		}
	default:
	}
	select {
	case s.outbound <- frame:
	default:
	}
}

// Outbound returns the channel a transport's writer goroutine drains.
func (s *Session) Outbound() <-chan []byte { return s.outbound }

// Close closes the session's Done channel exactly once; the outbound queue
// channel itself is left open.
func (s *Session) Close() {
	s.once.Do(func() { close(s.closed) })
}

// Done reports closure for a transport's writer-goroutine select loop.
func (s *Session) Done() <-chan struct{} { return s.closed }

// SessionManager tracks every live session for MCPConnectionsOpen and for
// admin introspection; it holds no per-session business state itself.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	metrics  *metrics.Metrics
}

// NewSessionManager builds an empty registry.
func NewSessionManager(m *metrics.Metrics) *SessionManager {
	return &SessionManager{sessions: make(map[string]*Session), metrics: m}
}

// Open registers a new session and returns it.
func (sm *SessionManager) Open(transport, remoteKey string) *Session {
	s := NewSession(transport, remoteKey)
	sm.mu.Lock()
	sm.sessions[s.ID] = s
	sm.mu.Unlock()
	if sm.metrics != nil {
		sm.metrics.MCPConnectionsOpen.WithLabelValues(transport).Inc()
	}
	return s
}

// Close unregisters a session and releases its resources.
func (sm *SessionManager) Close(s *Session) {
	sm.mu.Lock()
	_, existed := sm.sessions[s.ID]
	delete(sm.sessions, s.ID)
	sm.mu.Unlock()
	s.Close()
	if existed && sm.metrics != nil {
		sm.metrics.MCPConnectionsOpen.WithLabelValues(s.Transport).Dec()
	}
}

// Count returns the number of currently open sessions.
func (sm *SessionManager) Count() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}
