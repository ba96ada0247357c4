package scopegraph

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/fugue-ai/rhema/internal/gitlayer"
	"github.com/fugue-ai/rhema/internal/rerrors"
)

// canonicalize renders lock with its Checksum field zeroed, sorted map
// keys (Go's encoding/json already sorts map[string]T keys) and sorted
// dependency-name arrays inside each scope, per §6's canonical on-disk
// format: "any deviation from this canonical form is a SchemaViolation".
func canonicalize(lock LockFile) (LockFile, []byte, error) {
	clone := lock
	clone.Checksum = ""

	scopes := make(map[string]LockedScope, len(lock.Scopes))
	for name, sc := range lock.Scopes {
		deps := append([]string(nil), sc.Dependencies...)
		sort.Strings(deps)
		sc.Dependencies = deps
		scopes[name] = sc
	}
	clone.Scopes = scopes

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(clone); err != nil {
		return LockFile{}, nil, rerrors.Wrap(rerrors.CodeIOError, "failed to canonicalize lock file", err)
	}
	return clone, bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Marshal serializes lock into its canonical on-disk bytes, computing and
// stamping Checksum over the content with that field zeroed (§6).
func Marshal(lock LockFile) ([]byte, error) {
	canonical, canonicalBytes, err := canonicalize(lock)
	if err != nil {
		return nil, err
	}
	canonical.Checksum = gitlayer.Checksum(canonicalBytes)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(canonical); err != nil {
		return nil, rerrors.Wrap(rerrors.CodeIOError, "failed to marshal lock file", err)
	}
	return append(bytes.TrimRight(buf.Bytes(), "\n"), '\n'), nil
}

// Unmarshal parses raw lock file bytes and verifies the embedded checksum
// matches the canonicalized content, per §6's self-check requirement.
func Unmarshal(data []byte) (LockFile, error) {
	var lock LockFile
	if err := json.Unmarshal(data, &lock); err != nil {
		return LockFile{}, rerrors.Wrap(rerrors.CodeParseError, "malformed lock file", err)
	}
	if err := VerifyChecksum(lock); err != nil {
		return LockFile{}, err
	}
	return lock, nil
}

// VerifyChecksum recomputes lock's checksum over its canonical form and
// compares it against the stored value (§8's lock-file self-check
// round-trip property).
func VerifyChecksum(lock LockFile) error {
	_, canonicalBytes, err := canonicalize(lock)
	if err != nil {
		return err
	}
	want := gitlayer.Checksum(canonicalBytes)
	if lock.Checksum != want {
		return rerrors.New(rerrors.CodeChecksumMismatch, "lock file checksum does not match its content").
			WithDetails("expected", want).WithDetails("actual", lock.Checksum)
	}
	return nil
}
