package cql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fugue-ai/rhema/internal/rerrors"
)

func TestParse_EntityOnly(t *testing.T) {
	q, err := Parse("todos")
	require.NoError(t, err)
	assert.Equal(t, EntityTodos, q.Entity)
	assert.Nil(t, q.Where)
}

func TestParse_UnknownEntityFails(t *testing.T) {
	_, err := Parse("gremlins")
	require.Error(t, err)
	assert.Equal(t, rerrors.CodeUnknownEntity, rerrors.CodeOf(err))
}

func TestParse_WhereAndOrderByAndLimit(t *testing.T) {
	q, err := Parse(`todos WHERE status = "pending" AND priority = "high" ORDER BY title DESC LIMIT 10`)
	require.NoError(t, err)
	assert.Equal(t, EntityTodos, q.Entity)
	require.NotNil(t, q.Where)
	assert.Equal(t, "status", q.Where.First.Field)
	assert.Equal(t, OpEq, q.Where.First.Op)
	assert.Equal(t, "pending", q.Where.First.Value)
	require.Len(t, q.Where.Rest, 1)
	assert.Equal(t, "AND", q.Where.Rest[0].Conjunction)
	assert.Equal(t, "title", q.OrderBy)
	assert.Equal(t, Descending, q.Direction)
	require.NotNil(t, q.Limit)
	assert.Equal(t, 10, *q.Limit)
}

func TestParse_NotTerm(t *testing.T) {
	q, err := Parse(`todos WHERE NOT status = "completed"`)
	require.NoError(t, err)
	assert.True(t, q.Where.First.Not)
}

func TestParse_InList(t *testing.T) {
	q, err := Parse(`todos WHERE status IN ("pending", "blocked")`)
	require.NoError(t, err)
	assert.Equal(t, OpIn, q.Where.First.Op)
	assert.Equal(t, []any{"pending", "blocked"}, q.Where.First.Values)
}

func TestParse_ContainsAndMatches(t *testing.T) {
	q, err := Parse(`todos WHERE tags CONTAINS "urgent"`)
	require.NoError(t, err)
	assert.Equal(t, OpContains, q.Where.First.Op)

	q2, err := Parse(`todos WHERE title MATCHES "fix.*bug"`)
	require.NoError(t, err)
	assert.Equal(t, OpMatches, q2.Where.First.Op)
}

func TestParse_TrailingGarbageFails(t *testing.T) {
	_, err := Parse(`todos LIMIT 5 extra`)
	require.Error(t, err)
	assert.Equal(t, rerrors.CodeParseError, rerrors.CodeOf(err))
}

func TestParse_NumericComparison(t *testing.T) {
	q, err := Parse(`todos WHERE score > 3`)
	require.NoError(t, err)
	assert.Equal(t, OpGt, q.Where.First.Op)
	assert.Equal(t, 3.0, q.Where.First.Value)
}
