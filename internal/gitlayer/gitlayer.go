package gitlayer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fugue-ai/rhema/internal/logging"
	"github.com/fugue-ai/rhema/internal/metrics"
)

// Invalidator is the subset of the multi-tier cache the Git layer needs:
// switching branches or completing a write must purge every cached value
// keyed off the old content (§4.F coherency contract).
type Invalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

// Intent carries the author/message metadata for a write; the actual
// commit may be batched and deferred (§4.C).
type Intent struct {
	Author  string
	Email   string
	Message string
}

// CommitID is a git commit SHA.
type CommitID string

// Layer is the Git Operation Layer: every file read/write in the daemon
// goes through it. It shells out to the `git` binary rather than linking a
// Go git implementation, so its view of the repository is always exactly
// what a human operator or another git client would see.
type Layer struct {
	mu      sync.RWMutex
	repoDir string
	breaker *circuitBreaker
	log     *logging.Logger
	metrics *metrics.Metrics
	invalid Invalidator

	// pendingWrites batches writes into one commit per branch until Flush,
	// keyed by relative path -> bytes, so a burst of store() calls across
	// one scope doesn't produce a commit per document.
	pendingWrites map[string][]byte
	pendingIntent Intent
}

// New opens the Git Operation Layer over an existing repository checkout
// at repoDir. invalid may be nil (tests, or a daemon run without a cache).
func New(repoDir string, log *logging.Logger, m *metrics.Metrics, invalid Invalidator) (*Layer, error) {
	abs, err := filepath.Abs(repoDir)
	if err != nil {
		return nil, errIO("open", err)
	}
	l := &Layer{
		repoDir:       abs,
		breaker:       newCircuitBreaker(defaultBreakerConfig()),
		log:           log,
		metrics:       m,
		invalid:       invalid,
		pendingWrites: make(map[string][]byte),
	}
	if _, err := l.runGit(context.Background(), "rev-parse", "--is-inside-work-tree"); err != nil {
		return nil, errIO("open", err)
	}
	return l, nil
}

// runGit executes `git <args...>` in repoDir under circuit breaker
// protection, returning stdout on success.
func (l *Layer) runGit(ctx context.Context, args ...string) ([]byte, error) {
	var out []byte
	op := "git"
	if len(args) > 0 {
		op = args[0]
	}
	start := time.Now()
	err := l.breaker.Execute(ctx, func() error {
		cmd := exec.CommandContext(ctx, "git", args...)
		cmd.Dir = l.repoDir
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if runErr := cmd.Run(); runErr != nil {
			return fmt.Errorf("%s: %w (%s)", strings.Join(args, " "), runErr, strings.TrimSpace(stderr.String()))
		}
		out = stdout.Bytes()
		return nil
	})
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	if l.metrics != nil {
		l.metrics.RecordGitOperation(op, outcome, time.Since(start))
	}
	if err != nil {
		if l.log != nil {
			l.log.WithError(err).WithFields(map[string]any{"op": op}).Warn("git subprocess failed")
		}
		return nil, errIO(op, err)
	}
	return out, nil
}

// Read reads path as of ref (a branch, tag or commit; "" means the current
// worktree, including writes not yet flushed). Returns NotFound if the path
// doesn't exist at ref. For a non-empty ref it returns Corrupted if the
// blob's checksum doesn't match git's own object hash (detected via a
// failed `git cat-file`, which only fails this way on local object-store
// corruption since git's own integrity check already ran).
func (l *Layer) Read(ctx context.Context, path, ref string) ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if ref == "" {
		data, err := os.ReadFile(filepath.Join(l.repoDir, path))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errNotFound(path)
			}
			return nil, errIO("read", err)
		}
		return data, nil
	}
	out, err := l.runGit(ctx, "cat-file", "-p", ref+":"+path)
	if err != nil {
		if isMissingObject(err) {
			return nil, errNotFound(path)
		}
		return nil, errCorrupted(path, err)
	}
	return out, nil
}

// isMissingObject distinguishes a simple not-found from a deeper
// corruption in the wrapped git stderr text.
func isMissingObject(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "Not a valid object name") ||
		strings.Contains(msg, "fatal: path")
}

// Write stages bytes at path in the current worktree and records intent
// for the batch commit; the write is visible to Read(path, "") immediately
// but not committed until Flush. Returns a provisional CommitID of "" until
// flushed.
func (l *Layer) Write(ctx context.Context, path string, data []byte, intent Intent) (CommitID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	full := filepath.Join(l.repoDir, path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", errIO("write", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", errIO("write", err)
	}
	l.pendingWrites[path] = data
	l.pendingIntent = intent

	if l.invalid != nil {
		_ = l.invalid.Invalidate(ctx, "doc:"+path+"*")
	}
	return "", nil
}

// Flush commits every path written since the last Flush as one commit.
// No-op (returns "", nil) if nothing is pending.
func (l *Layer) Flush(ctx context.Context) (CommitID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.pendingWrites) == 0 {
		return "", nil
	}

	args := []string{"add", "--"}
	for path := range l.pendingWrites {
		args = append(args, path)
	}
	if _, err := l.runGit(ctx, args...); err != nil {
		return "", err
	}

	intent := l.pendingIntent
	if intent.Message == "" {
		intent.Message = fmt.Sprintf("rhema: update %d document(s)", len(l.pendingWrites))
	}
	author := fmt.Sprintf("%s <%s>", orDefault(intent.Author, "rhema-daemon"), orDefault(intent.Email, "rhema@localhost"))
	out, err := l.runGit(ctx, "-c", "user.name="+orDefault(intent.Author, "rhema-daemon"),
		"-c", "user.email="+orDefault(intent.Email, "rhema@localhost"),
		"commit", "-m", intent.Message, "--author", author)
	if err != nil {
		if strings.Contains(err.Error(), "nothing to commit") {
			l.pendingWrites = make(map[string][]byte)
			return "", nil
		}
		return "", err
	}
	_ = out

	sha, err := l.runGit(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	l.pendingWrites = make(map[string][]byte)
	return CommitID(strings.TrimSpace(string(sha))), nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// BranchCurrent returns the checked-out branch name.
func (l *Layer) BranchCurrent(ctx context.Context) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out, err := l.runGit(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// SwitchBranch checks out name and invalidates every cache entry, since
// the kernel maintains a distinct context view per branch (§4.C) and a
// stale L1/L2 entry from the prior branch must never leak across.
func (l *Layer) SwitchBranch(ctx context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.pendingWrites) > 0 {
		return errConflict(name, "cannot switch branch with unflushed writes pending")
	}
	if _, err := l.runGit(ctx, "checkout", name); err != nil {
		return err
	}
	if l.invalid != nil {
		if err := l.invalid.Invalidate(ctx, "*"); err != nil && l.log != nil {
			l.log.WithError(err).Warn("cache invalidation after branch switch failed")
		}
	}
	if l.log != nil {
		l.log.WithFields(map[string]any{"branch": name}).Info("switched branch")
	}
	return nil
}

// Status is an advisory read: the porcelain status lines for the worktree.
func (l *Layer) Status(ctx context.Context) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out, err := l.runGit(ctx, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil, nil
	}
	return lines, nil
}

// ConflictsIn is an advisory read: whether path currently has unresolved
// merge conflict markers in the worktree.
func (l *Layer) ConflictsIn(ctx context.Context, path string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out, err := l.runGit(ctx, "diff", "--name-only", "--diff-filter=U", "--", path)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(string(out)) != "", nil
}

// Checksum is the SHA-256 hex digest the context store uses to detect disk
// corruption independent of git's own object integrity (§4.D/§6).
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
