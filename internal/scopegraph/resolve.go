package scopegraph

import (
	"sort"
	"sync"

	"github.com/Masterminds/semver"

	"github.com/fugue-ai/rhema/internal/rerrors"
)

// Resolution is the outcome of resolve_conflicts for one dependency name.
type Resolution struct {
	Name      string
	Version   string
	Strategy  Strategy
	Conflict  *Conflict // non-nil when constraints disagreed and a tie-break was needed
	Manual    bool      // true if ManualResolution was reached: caller must decide
}

// resolutionCache memoizes resolve_conflicts per §4.A's performance policy.
// GenerateLock keys it by dependency name, constraint set, candidate
// versions and strategy list, so a changed scope version or constraint
// misses the cache instead of returning a stale resolution; entries are
// never evicted.
type resolutionCache struct {
	mu    sync.Mutex
	cache map[string]Resolution
}

func newResolutionCache() *resolutionCache {
	return &resolutionCache{cache: make(map[string]Resolution)}
}

func (c *resolutionCache) lookup(key string) (Resolution, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.cache[key]
	return res, ok
}

func (c *resolutionCache) store(key string, res Resolution) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = res
}

// ResolveConflicts picks one version for dependency name, satisfying the
// union of every constraint collected across scopes, trying cfg.Strategies
// in order until one succeeds (§4.A ordered strategy set).
func ResolveConflicts(name string, constraintsByScope map[string]string, candidates []string, cfg GeneratorConfig) (Resolution, error) {
	if len(candidates) == 0 {
		return Resolution{}, rerrors.New(rerrors.CodeUnresolvedConstraint, "no candidate versions available").
			WithDetails("dependency", name)
	}

	strategies := cfg.Strategies
	if len(strategies) == 0 {
		strategies = DefaultGeneratorConfig().Strategies
	}

	var lastErr error
	for _, strat := range strategies {
		res, err := applyStrategy(strat, name, constraintsByScope, candidates, cfg)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if strat == ManualResolution {
			return Resolution{Name: name, Strategy: ManualResolution, Manual: true}, nil
		}
	}
	return Resolution{}, rerrors.Wrap(rerrors.CodeVersionConflictUnresolved, "no strategy resolved dependency", lastErr).
		WithDetails("dependency", name)
}

// applyStrategy filters candidates against every constraint (the union
// satisfaction set) and then tie-breaks per strategy.
func applyStrategy(strat Strategy, name string, constraintsByScope map[string]string, candidates []string, cfg GeneratorConfig) (Resolution, error) {
	satisfying, err := satisfyingVersions(constraintsByScope, candidates, cfg.AllowPrereleases)
	if err != nil {
		return Resolution{}, err
	}
	if len(satisfying) == 0 {
		return Resolution{}, rerrors.New(rerrors.CodeUnresolvedConstraint, "no candidate version satisfies every constraint").
			WithDetails("dependency", name)
	}

	var chosen string
	switch strat {
	case LatestCompatible, Aggressive:
		chosen = highest(satisfying)
	case Conservative:
		chosen = highestStable(satisfying)
	case PinnedVersion:
		// A pin is only meaningful if every scope agreed on the exact
		// same constraint string; otherwise this strategy can't apply.
		pinned, ok := allEqual(constraintsByScope)
		if !ok {
			return Resolution{}, rerrors.New(rerrors.CodeUnresolvedConstraint, "no single pinned version agreed upon").
				WithDetails("dependency", name)
		}
		chosen = pinned
	case SmartSelection:
		chosen, err = scoreAndSelect(name, satisfying, cfg)
		if err != nil {
			return Resolution{}, err
		}
	case ManualResolution:
		return Resolution{}, rerrors.New(rerrors.CodeUnresolvedConstraint, "deferred to manual resolution").
			WithDetails("dependency", name)
	case Hybrid:
		return Resolution{}, rerrors.New(rerrors.CodeInternal, "Hybrid must be expanded into a strategy list, not applied directly")
	default:
		return Resolution{}, rerrors.New(rerrors.CodeInternal, "unknown resolution strategy").WithDetails("strategy", string(strat))
	}

	var conflict *Conflict
	if len(distinctConstraints(constraintsByScope)) > 1 {
		conflict = &Conflict{
			DependencyName:      name,
			ConflictingVersions: distinctConstraints(constraintsByScope),
			AffectedScopes:      scopeNames(constraintsByScope),
			ResolutionStrategy:  strat,
			ResolvedVersion:     chosen,
			Rationale:           "constraints differed across scopes; resolved via " + string(strat),
		}
	}

	if cfg.scores != nil {
		cfg.scores.observe(name, chosen, conflict == nil)
	}

	return Resolution{Name: name, Version: chosen, Strategy: strat, Conflict: conflict}, nil
}

// satisfyingVersions returns every candidate that satisfies every
// constraint in constraintsByScope (the union satisfaction set, §4.A
// step 2-3).
func satisfyingVersions(constraintsByScope map[string]string, candidates []string, allowPrerelease bool) ([]string, error) {
	constraints := make([]*semver.Constraints, 0, len(constraintsByScope))
	for _, raw := range constraintsByScope {
		if raw == "" {
			continue
		}
		c, err := semver.NewConstraint(raw)
		if err != nil {
			return nil, rerrors.Wrap(rerrors.CodeParseError, "invalid version constraint", err).WithDetails("constraint", raw)
		}
		constraints = append(constraints, c)
	}

	var out []string
	for _, cand := range candidates {
		v, err := semver.NewVersion(cand)
		if err != nil {
			continue
		}
		if !allowPrerelease && v.Prerelease() != "" {
			continue
		}
		ok := true
		for _, c := range constraints {
			if !c.Check(v) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, cand)
		}
	}
	return out, nil
}

func highest(versions []string) string {
	best := versions[0]
	bestV, _ := semver.NewVersion(best)
	for _, v := range versions[1:] {
		sv, err := semver.NewVersion(v)
		if err != nil {
			continue
		}
		if bestV == nil || sv.GreaterThan(bestV) {
			best, bestV = v, sv
		}
	}
	return best
}

// highestStable picks the most recent stable (non-prerelease) version,
// per §4.A's Conservative tie-break ("most-recent stable under
// Conservative"). satisfyingVersions already drops prereleases unless
// AllowPrereleases is set, but when it is, Conservative still prefers a
// stable candidate over a newer prerelease; only if every candidate is
// a prerelease does it fall back to the plain highest.
func highestStable(versions []string) string {
	var stable []string
	for _, v := range versions {
		sv, err := semver.NewVersion(v)
		if err != nil {
			continue
		}
		if sv.Prerelease() == "" {
			stable = append(stable, v)
		}
	}
	if len(stable) > 0 {
		return highest(stable)
	}
	return highest(versions)
}

func allEqual(m map[string]string) (string, bool) {
	var first string
	for _, v := range m {
		if first == "" {
			first = v
			continue
		}
		if v != first {
			return "", false
		}
	}
	return first, first != ""
}

func distinctConstraints(m map[string]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range m {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

func scopeNames(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
