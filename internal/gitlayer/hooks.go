package gitlayer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// HookKind is one of the four hook points the Git layer can install.
type HookKind string

const (
	HookPreCommit  HookKind = "pre-commit"
	HookPostCommit HookKind = "post-commit"
	HookPrePush    HookKind = "pre-push"
	HookPostMerge  HookKind = "post-merge"
)

func (k HookKind) valid() bool {
	switch k {
	case HookPreCommit, HookPostCommit, HookPrePush, HookPostMerge:
		return true
	default:
		return false
	}
}

// rhemaMarker delimits the block this layer owns inside a hook script, so
// re-installing is idempotent and installing alongside a user's own hook
// content never clobbers it.
const rhemaMarker = "# rhema:managed-block"

// InstallHook appends script to the named hook, wrapped in a marked block
// so a second install with the same script is a no-op and a different
// script replaces only that block. Hooks run out-of-band from the kernel
// (a separate git-invoked process), so they can never deadlock on a scope
// lock the kernel holds.
func (l *Layer) InstallHook(ctx context.Context, kind HookKind, script string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !kind.valid() {
		return errHookRejected(string(kind), fmt.Errorf("unknown hook kind"))
	}

	hookPath := filepath.Join(l.repoDir, ".git", "hooks", string(kind))
	existing, err := os.ReadFile(hookPath)
	if err != nil && !os.IsNotExist(err) {
		return errHookRejected(string(kind), err)
	}

	block := fmt.Sprintf("%s\n%s\n%s\n", rhemaMarker, script, rhemaMarker)
	content := stripManagedBlock(string(existing))
	if content == "" {
		content = "#!/bin/sh\n"
	}
	content += block

	if err := os.WriteFile(hookPath, []byte(content), 0o755); err != nil {
		return errHookRejected(string(kind), err)
	}
	if l.log != nil {
		l.log.WithFields(map[string]any{"hook": string(kind)}).Info("installed hook")
	}
	return nil
}

// stripManagedBlock removes a previously-installed rhema block so
// re-installing doesn't accumulate duplicates.
func stripManagedBlock(content string) string {
	start := strings.Index(content, rhemaMarker)
	if start == -1 {
		return content
	}
	rest := content[start+len(rhemaMarker):]
	end := strings.Index(rest, rhemaMarker)
	if end == -1 {
		return content[:start]
	}
	return content[:start] + rest[end+len(rhemaMarker):]
}
