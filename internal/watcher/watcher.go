// Package watcher implements the filesystem watcher named by the
// daemon's watcher.* configuration (§6): it observes the directories a
// scope's context documents live under for changes made outside the
// daemon itself (a human editing a YAML file directly, another process's
// git checkout) and invalidates the cache entries those changes make
// stale.
package watcher

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fugue-ai/rhema/internal/config"
	"github.com/fugue-ai/rhema/internal/logging"
)

// eventQueueDepth bounds the watcher's internal event channel; a debounce
// window collapsing a burst of writes can still momentarily outpace the
// consumer, and overflow drops the oldest pending event rather than
// blocking fsnotify's own delivery goroutine (§ REDESIGN FLAGS: "model
// callback/listener patterns as a bounded event channel... drop-oldest on
// overflow; never unbounded").
const eventQueueDepth = 256

// Invalidator is the subset of *cache.MultiTier the watcher needs.
type Invalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

// Event is one coalesced filesystem change, already debounced: a burst of
// writes to the same path within the debounce window produces one Event.
type Event struct {
	Path string
	Op   fsnotify.Op
	At   time.Time
}

// Watcher watches cfg.WatchDirs for changes and invalidates the cache's
// entries for each changed path's scope.
type Watcher struct {
	fsw      *fsnotify.Watcher
	cfg      config.WatcherConfig
	invalid  Invalidator
	log      *logging.Logger
	events   chan Event
	debounce time.Duration

	pending map[string]*time.Timer
}

// New builds a Watcher over cfg. It does not start watching; call Start.
// A nil invalid is accepted for daemon runs without a cache configured.
func New(cfg config.WatcherConfig, invalid Invalidator, log *logging.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	debounce := time.Duration(cfg.DebounceMs) * time.Millisecond
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}

	w := &Watcher{
		fsw:      fsw,
		cfg:      cfg,
		invalid:  invalid,
		log:      log,
		events:   make(chan Event, eventQueueDepth),
		debounce: debounce,
		pending:  make(map[string]*time.Timer),
	}

	for _, dir := range cfg.WatchDirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, err
		}
	}

	return w, nil
}

// Start launches the watch loop in the background. Stop via ctx
// cancellation.
func (w *Watcher) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *Watcher) run(ctx context.Context) {
	defer w.fsw.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.debounced(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if w.log != nil {
				w.log.WithError(err).Warn("filesystem watcher error")
			}
		}
	}
}

// debounced schedules one coalesced Event per path, resetting any
// already-pending timer for the same path rather than emitting a fresh
// event per fsnotify callback.
func (w *Watcher) debounced(ev fsnotify.Event) {
	path := ev.Name
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.enqueue(Event{Path: path, Op: ev.Op, At: time.Now()})
		delete(w.pending, path)
	})
}

// enqueue pushes e onto the bounded event channel, dropping the oldest
// queued event on overflow.
func (w *Watcher) enqueue(e Event) {
	select {
	case w.events <- e:
		return
	default:
	}
	select {
	case <-w.events:
	default:
	}
	select {
	case w.events <- e:
	default:
	}
}

// Events returns the channel of debounced, coalesced filesystem changes.
func (w *Watcher) Events() <-chan Event { return w.events }

// InvalidateLoop drains Events and invalidates the cache entry for each
// changed path's scope until ctx is cancelled; the daemon runs this as one
// of its background goroutines alongside cache.Sweeper.
func (w *Watcher) InvalidateLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.events:
			if !ok {
				return
			}
			if w.invalid == nil {
				continue
			}
			scope := scopeOf(ev.Path)
			if scope == "" {
				continue
			}
			if err := w.invalid.Invalidate(ctx, scope); err != nil && w.log != nil {
				w.log.WithError(err).Warn("cache invalidation after filesystem change failed")
			}
		}
	}
}

// scopeOf extracts the scope name from a changed path of the form
// .../scopes/<name>/<doc>.yaml, the only paths the daemon's cache keys are
// derived from.
func scopeOf(path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(dir)
	parent := filepath.Base(filepath.Dir(dir))
	if parent != "scopes" {
		return ""
	}
	return base
}
