// Package logging provides the structured logger every Rhema component
// constructs explicitly and passes down, rather than reaching for a
// package-level global (see §9's design note on daemon-wide mutable state).
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey is the type for values this package stores on a context.Context.
type ContextKey string

const (
	// SessionIDKey is the context key for an MCP/query session ID.
	SessionIDKey ContextKey = "session_id"
	// AgentIDKey is the context key for the acting agent's ID.
	AgentIDKey ContextKey = "agent_id"
	// ScopeKey is the context key for the scope a log line concerns.
	ScopeKey ContextKey = "scope"
	// ComponentKey is the context key for the component name (kernel, cache, …).
	ComponentKey ContextKey = "component"
)

// Logger wraps logrus.Logger with Rhema's structured fields.
type Logger struct {
	*logrus.Logger
	component string
}

// New creates a Logger for the given component ("kernel", "scopegraph",
// "cache", "mcp", …), the level/format pair from daemon.log_level /
// daemon.log_format.
func New(component, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if strings.EqualFold(format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	logger.SetOutput(os.Stdout)

	return &Logger{Logger: logger, component: component}
}

// NewFromEnv constructs a logger using RHEMA_DAEMON_LOG_LEVEL /
// RHEMA_DAEMON_LOG_FORMAT, defaulting to info/text when unset. Used by
// entry points and tests that don't go through the full config loader.
func NewFromEnv(component string) *Logger {
	level := strings.TrimSpace(os.Getenv("RHEMA_DAEMON_LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("RHEMA_DAEMON_LOG_FORMAT"))
	if format == "" {
		format = "text"
	}
	return New(component, level, format)
}

// WithContext builds a log entry carrying whatever session/agent/scope
// values are attached to ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("component", l.component)

	if v := ctx.Value(SessionIDKey); v != nil {
		entry = entry.WithField("session_id", v)
	}
	if v := ctx.Value(AgentIDKey); v != nil {
		entry = entry.WithField("agent_id", v)
	}
	if v := ctx.Value(ScopeKey); v != nil {
		entry = entry.WithField("scope", v)
	}
	return entry
}

// WithScope builds a log entry tagged with a scope name directly, for call
// sites that don't carry a context (e.g. background sweeps).
func (l *Logger) WithScope(scope string) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{"component": l.component, "scope": scope})
}

// WithAgent builds a log entry tagged with an agent ID.
func (l *Logger) WithAgent(agentID string) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{"component": l.component, "agent_id": agentID})
}

// WithFields builds a log entry with the component tag plus custom fields.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	if fields == nil {
		fields = logrus.Fields{}
	}
	fields["component"] = l.component
	return l.Logger.WithFields(fields)
}

// WithError builds a log entry carrying err's message.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{"component": l.component, "error": err.Error()})
}

// NewSessionID generates a new MCP/query session identifier.
func NewSessionID() string { return uuid.New().String() }

// WithSessionID attaches a session ID to ctx.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SessionIDKey, id)
}

// WithAgentID attaches an agent ID to ctx.
func WithAgentID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, AgentIDKey, id)
}

// WithScopeName attaches a scope name to ctx.
func WithScopeName(ctx context.Context, scope string) context.Context {
	return context.WithValue(ctx, ScopeKey, scope)
}
