package store

import (
	"context"
	"fmt"
	"path"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/fugue-ai/rhema/internal/gitlayer"
	"github.com/fugue-ai/rhema/internal/rerrors"
)

// Reader is the subset of the Git operation layer the store needs to read
// documents; satisfied by *gitlayer.Layer.
type Reader interface {
	Read(ctx context.Context, path, ref string) ([]byte, error)
}

// Writer is the subset needed to write documents.
type Writer interface {
	Reader
	Write(ctx context.Context, path string, data []byte, intent gitlayer.Intent) (gitlayer.CommitID, error)
	Flush(ctx context.Context) (gitlayer.CommitID, error)
}

// LockChecker reports whether an agent currently holds a scope's lock;
// satisfied by *kernel.LockManager. store() requires it (§4.D).
type LockChecker interface {
	HeldScope(agentID string) (string, bool)
}

// Store is the Context Store & Validator (§4.D): typed, schema-validated
// access to the context documents of every scope, all reads/writes routed
// through the Git operation layer.
type Store struct {
	git   Writer
	locks LockChecker
}

// New builds a Store over git (the repository's operation layer) and locks
// (the kernel's lock manager, consulted before any store() call).
func New(git Writer, locks LockChecker) *Store {
	return &Store{git: git, locks: locks}
}

func docPath(scope string, kind Kind) string {
	return path.Join("scopes", scope, kind.filename())
}

// Load reads one document for scope. A document that doesn't exist yet is
// not an error: it returns the kind's zero value, since a newly created
// scope owns all seven documents conceptually before any have content.
func (s *Store) Load(ctx context.Context, scope string, kind Kind) (any, error) {
	doc := newDocument(kind)
	if doc == nil {
		return nil, rerrors.New(rerrors.CodeUnknownEntity, "unknown document kind").WithDetails("kind", string(kind))
	}

	data, err := s.git.Read(ctx, docPath(scope, kind), "")
	if err != nil {
		if rerrors.Is(err, rerrors.CodeNotFound) {
			return doc, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, rerrors.Wrap(rerrors.CodeParseError, "malformed document", err).
			WithDetails("scope", scope).WithDetails("kind", string(kind))
	}
	return doc, nil
}

// Store writes value as scope's kind document. Requires agentID currently
// hold scope's lock (§4.D: "requires holding the scope lock"); the write
// itself goes through the Git layer, which invalidates every dependent
// cache entry before returning (§4.F coherency contract).
func (s *Store) Store(ctx context.Context, agentID, scope string, kind Kind, value any) error {
	held, ok := s.locks.HeldScope(agentID)
	if !ok || held != scope {
		return rerrors.New(rerrors.CodeLockHeldByOther, "store requires holding the scope lock").
			WithDetails("agent", agentID).WithDetails("scope", scope)
	}

	data, err := yaml.Marshal(value)
	if err != nil {
		return rerrors.Wrap(rerrors.CodeParseError, "failed to marshal document", err).
			WithDetails("scope", scope).WithDetails("kind", string(kind))
	}

	_, err = s.git.Write(ctx, docPath(scope, kind), data, gitlayer.Intent{
		Author:  agentID,
		Message: fmt.Sprintf("rhema: update %s/%s", scope, kind),
	})
	if err != nil {
		return err
	}
	_, err = s.git.Flush(ctx)
	return err
}

// List returns the document kinds that currently exist on disk for scope.
func (s *Store) List(ctx context.Context, scope string) ([]Kind, error) {
	var present []Kind
	for _, k := range Kinds {
		if _, err := s.git.Read(ctx, docPath(scope, k), ""); err == nil {
			present = append(present, k)
		} else if !rerrors.Is(err, rerrors.CodeNotFound) {
			return nil, err
		}
	}
	return present, nil
}

// ListAllScopes returns, sorted, those of scopeNames whose scope.yaml is
// readable through the Git layer, so it always agrees with what Read/Write
// see. It does not search the scopes/ root for names beyond scopeNames.
func (s *Store) ListAllScopes(ctx context.Context, scopeNames []string) ([]string, error) {
	var out []string
	for _, name := range scopeNames {
		if _, err := s.git.Read(ctx, docPath(name, KindScope), ""); err == nil {
			out = append(out, name)
		} else if !rerrors.Is(err, rerrors.CodeNotFound) {
			return nil, err
		}
	}
	sort.Strings(out)
	return out, nil
}
