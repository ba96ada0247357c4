package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_LevelAndFormat(t *testing.T) {
	l := New("kernel", "debug", "json")
	assert.Equal(t, logrus.DebugLevel, l.Logger.Level)
	_, isJSON := l.Logger.Formatter.(*logrus.JSONFormatter)
	assert.True(t, isJSON)
}

func TestNew_InvalidLevelDefaultsToInfo(t *testing.T) {
	l := New("kernel", "not-a-level", "text")
	assert.Equal(t, logrus.InfoLevel, l.Logger.Level)
}

func TestWithContext_CarriesFields(t *testing.T) {
	var buf bytes.Buffer
	l := New("kernel", "info", "json")
	l.Logger.SetOutput(&buf)

	ctx := WithSessionID(context.Background(), "sess-1")
	ctx = WithAgentID(ctx, "agent-1")
	ctx = WithScopeName(ctx, "services/api")

	l.WithContext(ctx).Info("acquired lock")

	out := buf.String()
	assert.Contains(t, out, `"session_id":"sess-1"`)
	assert.Contains(t, out, `"agent_id":"agent-1"`)
	assert.Contains(t, out, `"scope":"services/api"`)
	assert.Contains(t, out, `"component":"kernel"`)
}

func TestNewSessionID_Unique(t *testing.T) {
	a := NewSessionID()
	b := NewSessionID()
	require.NotEqual(t, a, b)
}
