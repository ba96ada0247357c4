// Package mcpserver implements the MCP Context Server (§4.G): the
// JSON-RPC 2.0 endpoint over HTTP, WebSocket and a local domain socket,
// its transport middleware chain, session lifecycle, tool/resource
// registry and the daemon's graceful shutdown coordination.
package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/fugue-ai/rhema/internal/cql"
	"github.com/fugue-ai/rhema/internal/kernel"
	"github.com/fugue-ai/rhema/internal/logging"
	"github.com/fugue-ai/rhema/internal/metrics"
	"github.com/fugue-ai/rhema/internal/rerrors"
	"github.com/fugue-ai/rhema/internal/scopegraph"
	"github.com/fugue-ai/rhema/internal/store"
)

// lockFilePath is the repository-relative path of the generated dependency
// lock file (§6), read the same way the Context Store reads a document:
// through the Git operation layer, on the current ref.
const lockFilePath = "rhema.lock"

// lockReader is the subset of *gitlayer.Layer the server needs to read the
// lock file.
type lockReader interface {
	Read(ctx context.Context, path, ref string) ([]byte, error)
}

// Server wires the kernel, context store, query executor and lock
// generator to the MCP wire protocol: one Server instance is shared by
// every transport and every Session.
type Server struct {
	kernel    *kernel.Kernel
	store     *store.Store
	executor  *cql.Executor
	generator *scopegraph.Generator
	git       lockReader
	repoRoot  string

	sessions *SessionManager
	auth     *Authenticator
	limiter  *RateLimiter
	health   *HealthReporter

	metrics *metrics.Metrics
	log     *logging.Logger

	serverName    string
	serverVersion string
}

// Deps bundles the domain objects Dispatch operates on; cmd/rhemad builds
// one once the rest of the daemon is wired.
type Deps struct {
	Kernel    *kernel.Kernel
	Store     *store.Store
	Executor  *cql.Executor
	Generator *scopegraph.Generator
	Git       lockReader
	RepoRoot  string
	Sessions  *SessionManager
	Auth      *Authenticator
	Limiter   *RateLimiter
	Health    *HealthReporter
	Metrics   *metrics.Metrics
	Log       *logging.Logger
	Name      string
	Version   string
}

// NewServer builds a Server from deps, defaulting ServerInfo.Name/Version
// when left empty.
func NewServer(deps Deps) *Server {
	name := deps.Name
	if name == "" {
		name = "rhemad"
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	return &Server{
		kernel:        deps.Kernel,
		store:         deps.Store,
		executor:      deps.Executor,
		generator:     deps.Generator,
		git:           deps.Git,
		repoRoot:      deps.RepoRoot,
		sessions:      deps.Sessions,
		auth:          deps.Auth,
		limiter:       deps.Limiter,
		health:        deps.Health,
		metrics:       deps.Metrics,
		log:           deps.Log,
		serverName:    name,
		serverVersion: version,
	}
}

// readLockFile reads and unmarshals the current lock file. A missing lock
// file is reported as CodeNotFound rather than synthesized, since an
// unlocked repository has no meaningful answer for rhema.lock.status or
// the "lock" target of rhema.validate.
func (s *Server) readLockFile(ctx context.Context) (scopegraph.LockFile, error) {
	data, err := s.git.Read(ctx, lockFilePath, "")
	if err != nil {
		return scopegraph.LockFile{}, err
	}
	return scopegraph.Unmarshal(data)
}

// Dispatch routes one JSON-RPC request to its handler and builds the
// matching Response. Notifications (requests with no ID) still execute
// their side effect but the caller should not write the returned Response
// back to the transport.
func (s *Server) Dispatch(ctx context.Context, sess *Session, req Request) Response {
	switch req.Method {
	case "initialize":
		return s.dispatchInitialize(sess, req)
	case "ping":
		return NewResponse(req.ID, map[string]string{"status": "ok"})
	case "tools/list":
		return NewResponse(req.ID, map[string]any{"tools": ToolDescriptors()})
	case "tools/call":
		return s.dispatchToolCall(ctx, req)
	case "resources/list":
		return s.dispatchResourcesList(ctx, req)
	case "resources/read":
		return s.dispatchResourcesRead(ctx, req)
	default:
		if !sess.Initialized() && req.Method != "initialize" {
			return NewErrorResponse(req.ID, rerrors.New(rerrors.CodeUnsupportedProtoVersion, "session not initialized"))
		}
		return NewErrorResponse(req.ID, rerrors.New(rerrors.CodeUnknownEntity, "unknown method").WithDetails("method", req.Method))
	}
}

func (s *Server) dispatchInitialize(sess *Session, req Request) Response {
	caps := Capabilities{Tools: true, Resources: true, Prompts: false, Completions: false}
	sess.MarkInitialized(caps)
	return NewResponse(req.ID, InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    caps,
		ServerInfo: ServerInfo{
			Name:       s.serverName,
			Version:    s.serverVersion,
			Transports: []string{"http", "websocket", "unix"},
		},
	})
}

type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (s *Server) dispatchToolCall(ctx context.Context, req Request) Response {
	var p toolCallParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return NewErrorResponse(req.ID, rerrors.Wrap(rerrors.CodeSchemaViolation, "invalid tools/call params", err))
	}
	result, err := s.CallTool(ctx, p.Name, p.Arguments)
	if err != nil {
		return NewErrorResponse(req.ID, err)
	}
	return NewResponse(req.ID, map[string]any{"content": result})
}

type resourcesListParams struct {
	Scope string `json:"scope"`
}

func (s *Server) dispatchResourcesList(ctx context.Context, req Request) Response {
	var p resourcesListParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return NewErrorResponse(req.ID, rerrors.Wrap(rerrors.CodeSchemaViolation, "invalid resources/list params", err))
		}
	}
	resources, err := s.ListResources(ctx, p.Scope)
	if err != nil {
		return NewErrorResponse(req.ID, err)
	}
	return NewResponse(req.ID, map[string]any{"resources": resources})
}

type resourcesReadParams struct {
	URI string `json:"uri"`
}

func (s *Server) dispatchResourcesRead(ctx context.Context, req Request) Response {
	var p resourcesReadParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return NewErrorResponse(req.ID, rerrors.Wrap(rerrors.CodeSchemaViolation, "invalid resources/read params", err))
	}
	content, err := s.ReadResource(ctx, p.URI)
	if err != nil {
		return NewErrorResponse(req.ID, err)
	}
	return NewResponse(req.ID, map[string]any{"contents": []ResourceContent{content}})
}
