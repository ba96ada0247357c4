package scopegraph

import (
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/fugue-ai/rhema/internal/gitlayer"
	"github.com/fugue-ai/rhema/internal/rerrors"
	"github.com/fugue-ai/rhema/internal/store"
)

// Discover reads scopes/<name>/scope.yaml for each directory directly
// under repoRoot's scopes/ (one level deep; nested directories are not
// searched), parsing every scope.yaml found and computing its checksum
// over the canonical file bytes. Returned in lexicographic order by scope name for deterministic
// downstream processing.
func Discover(repoRoot string) ([]ScopeDescriptor, error) {
	scopesDir := filepath.Join(repoRoot, "scopes")
	entries, err := os.ReadDir(scopesDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, rerrors.Wrap(rerrors.CodeIOError, "failed to list scopes directory", err)
	}

	var out []ScopeDescriptor
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		descPath := filepath.Join(scopesDir, e.Name(), "scope.yaml")
		data, err := os.ReadFile(descPath)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, rerrors.Wrap(rerrors.CodeIOError, "failed to read scope descriptor", err).
				WithDetails("path", descPath)
		}

		var doc store.ScopeDocument
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, rerrors.Wrap(rerrors.CodeParseError, "malformed scope.yaml", err).
				WithDetails("path", descPath)
		}

		name := doc.Name
		if name == "" {
			name = e.Name()
		}

		deps := make([]DependencyConstraint, 0, len(doc.Dependencies))
		for _, d := range doc.Dependencies {
			constraint := d.Constraint
			if constraint == "" {
				constraint = d.Version
			}
			deps = append(deps, DependencyConstraint{
				Target:     d.Target,
				Constraint: constraint,
				Type:       string(d.Type),
			})
		}

		out = append(out, ScopeDescriptor{
			Name:         name,
			Dir:          filepath.Join("scopes", e.Name()),
			Type:         string(doc.Type),
			Version:      doc.Version,
			Metadata:     doc.Metadata,
			Dependencies: deps,
			Checksum:     gitlayer.Checksum(data),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
