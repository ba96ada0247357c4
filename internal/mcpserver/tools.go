package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/fugue-ai/rhema/internal/rerrors"
	"github.com/fugue-ai/rhema/internal/scopegraph"
	"github.com/fugue-ai/rhema/internal/store"
)

// ToolDescriptor is one entry in tools/list: the tool's name, a short
// description and its JSON Schema input shape.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// toolHandler executes one tool's params against the server's domain
// objects and returns the raw result to embed in tools/call's response.
type toolHandler func(ctx context.Context, s *Server, params json.RawMessage) (any, error)

var toolRegistry = map[string]toolHandler{
	"rhema.query":      handleQuery,
	"rhema.validate":    handleValidate,
	"rhema.lock.status": handleLockStatus,
	"rhema.health":      handleHealth,
}

// ToolDescriptors lists every tool this server exposes, for the
// initialize handshake's capabilities.tools and for tools/list.
func ToolDescriptors() []ToolDescriptor {
	return []ToolDescriptor{
		{
			Name:        "rhema.query",
			Description: "Run a Context Query Language expression against one or more scopes.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string"},
					"scopes": {"type": "array", "items": {"type": "string"}}
				},
				"required": ["query"]
			}`),
		},
		{
			Name:        "rhema.validate",
			Description: "Validate a scope's context documents, or the repository's lock file, at a given thoroughness level.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"scope": {"type": "string"},
					"target": {"type": "string", "enum": ["scope", "lock"]},
					"level": {"type": "string"}
				}
			}`),
		},
		{
			Name:        "rhema.lock.status",
			Description: "Read and summarize the repository's current dependency lock file.",
			InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
		},
		{
			Name:        "rhema.health",
			Description: "Report the daemon's process, host and session health.",
			InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
		},
	}
}

// CallTool dispatches tools/call's {name, arguments} to the matching
// handler, or CodeUnknownEntity if no such tool is registered.
func (s *Server) CallTool(ctx context.Context, name string, params json.RawMessage) (any, error) {
	handler, ok := toolRegistry[name]
	if !ok {
		return nil, rerrors.New(rerrors.CodeUnknownEntity, "unknown tool").WithDetails("tool", name)
	}
	return handler(ctx, s, params)
}

type queryParams struct {
	Query  string   `json:"query"`
	Scopes []string `json:"scopes"`
}

func handleQuery(ctx context.Context, s *Server, raw json.RawMessage) (any, error) {
	var p queryParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, rerrors.Wrap(rerrors.CodeSchemaViolation, "invalid rhema.query params", err)
	}
	if p.Query == "" {
		return nil, rerrors.New(rerrors.CodeSchemaViolation, "query is required")
	}

	scopes := p.Scopes
	if len(scopes) == 0 {
		all, err := s.store.ListAllScopes(ctx, s.knownScopes())
		if err != nil {
			return nil, err
		}
		scopes = all
	}

	return s.executor.Execute(ctx, p.Query, scopes)
}

type validateParams struct {
	Scope  string `json:"scope"`
	Target string `json:"target"`
	Level  string `json:"level"`
}

func handleValidate(ctx context.Context, s *Server, raw json.RawMessage) (any, error) {
	var p validateParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, rerrors.Wrap(rerrors.CodeSchemaViolation, "invalid rhema.validate params", err)
	}

	if p.Target == "lock" {
		lock, err := s.readLockFile(ctx)
		if err != nil {
			return nil, err
		}
		level := scopegraph.ValidationLevel(p.Level)
		if level == "" {
			level = scopegraph.ValidationBusiness
		}
		return s.generator.ValidateLock(ctx, lock, s.repoRoot, level)
	}

	if p.Scope == "" {
		return nil, rerrors.New(rerrors.CodeSchemaViolation, "scope is required unless target is lock")
	}
	level := store.Level(p.Level)
	if level == "" {
		level = store.LevelCrossRef
	}
	return s.store.Validate(ctx, p.Scope, level)
}

func handleLockStatus(ctx context.Context, s *Server, _ json.RawMessage) (any, error) {
	lock, err := s.readLockFile(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"version":      lock.Metadata.Version,
		"generated_at": lock.Metadata.GeneratedAt,
		"branch":       lock.Metadata.RepositoryInfo.Branch,
		"commit_hash":  lock.Metadata.RepositoryInfo.CommitHash,
		"scope_count":  len(lock.Scopes),
		"checksum":     lock.Checksum,
	}, nil
}

func handleHealth(ctx context.Context, s *Server, _ json.RawMessage) (any, error) {
	if s.health == nil {
		return nil, rerrors.New(rerrors.CodeInternal, "health reporter not configured")
	}
	return s.health.Report(ctx, s.sessions.Count()), nil
}

// knownScopes returns the distinct scopes currently locked by some agent,
// the universe rhema.query and resources/list search when no explicit
// scopes are given. Scopes registered with the kernel but not locked at
// that moment are not included.
func (s *Server) knownScopes() []string {
	agents := s.kernel.ListAgents()
	seen := make(map[string]struct{}, len(agents))
	var names []string
	for _, a := range agents {
		if a.HeldScope == "" {
			continue
		}
		if _, ok := seen[a.HeldScope]; ok {
			continue
		}
		seen[a.HeldScope] = struct{}{}
		names = append(names, a.HeldScope)
	}
	return names
}
