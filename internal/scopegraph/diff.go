package scopegraph

import "sort"

// ScopeDiff describes how one scope changed between two lock files.
type ScopeDiff struct {
	Name        string
	Added       bool
	Removed     bool
	VersionFrom string
	VersionTo   string
	DepsAdded   []string
	DepsRemoved []string
}

// DependencyDiff describes how one resolved dependency changed.
type DependencyDiff struct {
	Name        string
	Added       bool
	Removed     bool
	VersionFrom string
	VersionTo   string
	StrategyFrom Strategy
	StrategyTo   Strategy
}

// DiffReport is diff(lock_a, lock_b)'s return value (§4.A).
type DiffReport struct {
	Scopes       []ScopeDiff
	Dependencies []DependencyDiff
}

// Diff implements diff(lock_a, lock_b) -> DiffReport: a structural
// comparison over scopes and resolved dependencies, independent of
// metadata (generated_at, repository_info) which always differs.
func Diff(a, b LockFile) DiffReport {
	var report DiffReport

	names := unionKeys(a.Scopes, b.Scopes)
	for _, name := range names {
		sa, inA := a.Scopes[name]
		sb, inB := b.Scopes[name]
		switch {
		case inA && !inB:
			report.Scopes = append(report.Scopes, ScopeDiff{Name: name, Removed: true, VersionFrom: sa.Version})
		case !inA && inB:
			report.Scopes = append(report.Scopes, ScopeDiff{Name: name, Added: true, VersionTo: sb.Version})
		default:
			added, removed := diffStrings(sa.Dependencies, sb.Dependencies)
			if sa.Version != sb.Version || len(added) > 0 || len(removed) > 0 {
				report.Scopes = append(report.Scopes, ScopeDiff{
					Name: name, VersionFrom: sa.Version, VersionTo: sb.Version,
					DepsAdded: added, DepsRemoved: removed,
				})
			}
		}
	}

	depNames := unionKeys(a.Dependencies, b.Dependencies)
	for _, name := range depNames {
		da, inA := a.Dependencies[name]
		db, inB := b.Dependencies[name]
		switch {
		case inA && !inB:
			report.Dependencies = append(report.Dependencies, DependencyDiff{Name: name, Removed: true, VersionFrom: da.ResolvedVersion})
		case !inA && inB:
			report.Dependencies = append(report.Dependencies, DependencyDiff{Name: name, Added: true, VersionTo: db.ResolvedVersion})
		default:
			if da.ResolvedVersion != db.ResolvedVersion || da.ResolutionStrategy != db.ResolutionStrategy {
				report.Dependencies = append(report.Dependencies, DependencyDiff{
					Name: name, VersionFrom: da.ResolvedVersion, VersionTo: db.ResolvedVersion,
					StrategyFrom: da.ResolutionStrategy, StrategyTo: db.ResolutionStrategy,
				})
			}
		}
	}

	return report
}

func unionKeys[V any](a, b map[string]V) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for k := range a {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	for k := range b {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func diffStrings(from, to []string) (added, removed []string) {
	fromSet := make(map[string]bool, len(from))
	for _, s := range from {
		fromSet[s] = true
	}
	toSet := make(map[string]bool, len(to))
	for _, s := range to {
		toSet[s] = true
	}
	for _, s := range to {
		if !fromSet[s] {
			added = append(added, s)
		}
	}
	for _, s := range from {
		if !toSet[s] {
			removed = append(removed, s)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}
