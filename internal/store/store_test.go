package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fugue-ai/rhema/internal/gitlayer"
	"github.com/fugue-ai/rhema/internal/rerrors"
)

type fakeGit struct {
	files map[string][]byte
}

func newFakeGit() *fakeGit { return &fakeGit{files: make(map[string][]byte)} }

func (f *fakeGit) Read(_ context.Context, path, _ string) ([]byte, error) {
	data, ok := f.files[path]
	if !ok {
		return nil, rerrors.New(rerrors.CodeNotFound, "not found").WithDetails("path", path)
	}
	return data, nil
}

func (f *fakeGit) Write(_ context.Context, path string, data []byte, _ gitlayer.Intent) (gitlayer.CommitID, error) {
	f.files[path] = data
	return "", nil
}

func (f *fakeGit) Flush(_ context.Context) (gitlayer.CommitID, error) { return "deadbeef", nil }

type fakeLocks struct {
	held map[string]string
}

func (f *fakeLocks) HeldScope(agentID string) (string, bool) {
	s, ok := f.held[agentID]
	return s, ok
}

func TestStore_LoadMissingReturnsZeroValue(t *testing.T) {
	s := New(newFakeGit(), &fakeLocks{held: map[string]string{}})
	doc, err := s.Load(context.Background(), "svc-a", KindTodos)
	require.NoError(t, err)
	td, ok := doc.(*TodosDocument)
	require.True(t, ok)
	assert.Empty(t, td.Todos)
}

func TestStore_StoreRequiresLock(t *testing.T) {
	s := New(newFakeGit(), &fakeLocks{held: map[string]string{}})
	err := s.Store(context.Background(), "agent-1", "svc-a", KindTodos, &TodosDocument{})
	assert.Error(t, err)
}

func TestStore_StoreAndLoadRoundTrip(t *testing.T) {
	locks := &fakeLocks{held: map[string]string{"agent-1": "svc-a"}}
	s := New(newFakeGit(), locks)

	doc := &TodosDocument{Todos: []Todo{{ID: "t1", Title: "write tests", Status: TodoPending, Priority: PriorityHigh}}}
	require.NoError(t, s.Store(context.Background(), "agent-1", "svc-a", KindTodos, doc))

	loaded, err := s.Load(context.Background(), "svc-a", KindTodos)
	require.NoError(t, err)
	td := loaded.(*TodosDocument)
	require.Len(t, td.Todos, 1)
	assert.Equal(t, "t1", td.Todos[0].ID)
}

func TestStore_StoreWrongScopeLockRejected(t *testing.T) {
	locks := &fakeLocks{held: map[string]string{"agent-1": "svc-b"}}
	s := New(newFakeGit(), locks)

	err := s.Store(context.Background(), "agent-1", "svc-a", KindTodos, &TodosDocument{})
	assert.Error(t, err)
}

func TestStore_ListAllScopes(t *testing.T) {
	git := newFakeGit()
	git.files["scopes/svc-a/scope.yaml"] = []byte("name: svc-a\n")
	s := New(git, &fakeLocks{held: map[string]string{}})

	scopes, err := s.ListAllScopes(context.Background(), []string{"svc-a", "svc-b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"svc-a"}, scopes)
}
