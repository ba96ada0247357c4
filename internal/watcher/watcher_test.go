package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fugue-ai/rhema/internal/config"
	"github.com/fugue-ai/rhema/internal/logging"
)

type recordingInvalidator struct {
	patterns chan string
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, pattern string) error {
	r.patterns <- pattern
	return nil
}

func TestScopeOf(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{filepath.Join("repo", "scopes", "billing", "knowledge.yaml"), "billing"},
		{filepath.Join("repo", "scopes", "checkout", "decisions.yaml"), "checkout"},
		{filepath.Join("repo", "docs", "readme.md"), ""},
		{"scopes", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, scopeOf(c.path), c.path)
	}
}

func TestWatcher_DetectsAndInvalidates(t *testing.T) {
	dir := t.TempDir()
	scopeDir := filepath.Join(dir, "scopes", "billing")
	require.NoError(t, os.MkdirAll(scopeDir, 0o755))

	inv := &recordingInvalidator{patterns: make(chan string, 4)}
	log := logging.New("test", "error", "text")

	cfg := config.WatcherConfig{
		Enabled:    true,
		WatchDirs:  []string{scopeDir},
		DebounceMs: 10,
	}
	w, err := New(cfg, inv, log)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	go w.InvalidateLoop(ctx)

	target := filepath.Join(scopeDir, "knowledge.yaml")
	require.NoError(t, os.WriteFile(target, []byte("version: 1\n"), 0o644))

	select {
	case pattern := <-inv.patterns:
		assert.Equal(t, "billing", pattern)
	case <-time.After(2 * time.Second):
		t.Fatal("expected an invalidation after a watched file write")
	}
}

func TestWatcher_DebouncesRepeatedWrites(t *testing.T) {
	dir := t.TempDir()
	scopeDir := filepath.Join(dir, "scopes", "checkout")
	require.NoError(t, os.MkdirAll(scopeDir, 0o755))

	inv := &recordingInvalidator{patterns: make(chan string, 16)}
	log := logging.New("test", "error", "text")

	cfg := config.WatcherConfig{
		Enabled:    true,
		WatchDirs:  []string{scopeDir},
		DebounceMs: 100,
	}
	w, err := New(cfg, inv, log)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	go w.InvalidateLoop(ctx)

	target := filepath.Join(scopeDir, "decisions.yaml")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(target, []byte("version: 1\n"), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-inv.patterns:
	case <-time.After(2 * time.Second):
		t.Fatal("expected at least one invalidation")
	}

	select {
	case extra := <-inv.patterns:
		t.Fatalf("expected writes within the debounce window to coalesce, got extra invalidation for %q", extra)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestEnqueue_DropsOldestOnOverflow(t *testing.T) {
	w := &Watcher{events: make(chan Event, 2)}

	w.enqueue(Event{Path: "a", At: time.Unix(1, 0)})
	w.enqueue(Event{Path: "b", At: time.Unix(2, 0)})
	w.enqueue(Event{Path: "c", At: time.Unix(3, 0)})

	first := <-w.events
	second := <-w.events

	assert.Equal(t, "b", first.Path)
	assert.Equal(t, "c", second.Path)
}
