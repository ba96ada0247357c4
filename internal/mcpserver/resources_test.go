package mcpserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fugue-ai/rhema/internal/rerrors"
	"github.com/fugue-ai/rhema/internal/store"
)

func TestResourceURI_RoundTrips(t *testing.T) {
	uri := resourceURI("billing", store.Kind("knowledge"))
	assert.Equal(t, "rhema://scope/billing/knowledge", uri)

	scope, kind, err := parseResourceURI(uri)
	require.NoError(t, err)
	assert.Equal(t, "billing", scope)
	assert.Equal(t, store.Kind("knowledge"), kind)
}

func TestParseResourceURI_WrongScheme(t *testing.T) {
	_, _, err := parseResourceURI("file:///etc/passwd")
	require.Error(t, err)
	assert.Equal(t, rerrors.CodeSchemaViolation, rerrors.CodeOf(err))
}

func TestParseResourceURI_MissingDocument(t *testing.T) {
	_, _, err := parseResourceURI("rhema://scope/billing/")
	require.Error(t, err)
	assert.Equal(t, rerrors.CodeSchemaViolation, rerrors.CodeOf(err))
}

func TestParseResourceURI_MissingScope(t *testing.T) {
	_, _, err := parseResourceURI("rhema://scope//knowledge")
	require.Error(t, err)
}
