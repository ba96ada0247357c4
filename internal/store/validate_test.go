package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedScope(t *testing.T, s *Store, locks *fakeLocks, agentID, scope string) {
	t.Helper()
	locks.held[agentID] = scope
	require.NoError(t, s.Store(context.Background(), agentID, scope, KindTodos, &TodosDocument{
		Todos: []Todo{{ID: "t1", Title: "first", Status: TodoPending, Priority: PriorityLow, Related: []string{"t2"}}},
	}))
	require.NoError(t, s.Store(context.Background(), agentID, scope, KindInsights, &InsightsDocument{
		Insights: []Insight{{ID: "i1", Title: "found it", Confidence: ConfidenceHigh, RecordedAt: time.Now()}},
	}))
	delete(locks.held, agentID)
}

func TestValidate_SchemaCatchesInvalidEnum(t *testing.T) {
	locks := &fakeLocks{held: map[string]string{"agent-1": "svc-a"}}
	s := New(newFakeGit(), locks)
	require.NoError(t, s.Store(context.Background(), "agent-1", "svc-a", KindTodos, &TodosDocument{
		Todos: []Todo{{ID: "t1", Status: TodoStatus("bogus"), Priority: PriorityLow}},
	}))
	delete(locks.held, "agent-1")

	report, err := s.Validate(context.Background(), "svc-a", LevelSchema)
	require.NoError(t, err)
	assert.False(t, report.OK())
}

func TestValidate_CrossRefCatchesDanglingReference(t *testing.T) {
	locks := &fakeLocks{held: map[string]string{}}
	s := New(newFakeGit(), locks)
	seedScope(t, s, locks, "agent-1", "svc-a")

	report, err := s.Validate(context.Background(), "svc-a", LevelCrossRef)
	require.NoError(t, err)
	assert.False(t, report.OK(), "t1 references nonexistent t2")
}

func TestValidate_FullCatchesDuplicateID(t *testing.T) {
	locks := &fakeLocks{held: map[string]string{"agent-1": "svc-a"}}
	s := New(newFakeGit(), locks)
	require.NoError(t, s.Store(context.Background(), "agent-1", "svc-a", KindTodos, &TodosDocument{
		Todos: []Todo{{ID: "dup", Status: TodoPending, Priority: PriorityLow}},
	}))
	require.NoError(t, s.Store(context.Background(), "agent-1", "svc-a", KindInsights, &InsightsDocument{
		Insights: []Insight{{ID: "dup", Confidence: ConfidenceLow, RecordedAt: time.Now()}},
	}))

	report, err := s.Validate(context.Background(), "svc-a", LevelFull)
	require.NoError(t, err)
	assert.False(t, report.OK())
}

func TestValidate_CleanScopePasses(t *testing.T) {
	locks := &fakeLocks{held: map[string]string{"agent-1": "svc-a"}}
	s := New(newFakeGit(), locks)
	require.NoError(t, s.Store(context.Background(), "agent-1", "svc-a", KindTodos, &TodosDocument{
		Todos: []Todo{{ID: "t1", Status: TodoPending, Priority: PriorityLow}},
	}))

	report, err := s.Validate(context.Background(), "svc-a", LevelFull)
	require.NoError(t, err)
	assert.True(t, report.OK())
}
