package scopegraph

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fugue-ai/rhema/internal/rerrors"
)

// BranchInfo supplies the provenance fields generate_lock stamps into
// Metadata.RepositoryInfo; callers obtain these from the Git Operation
// Layer rather than scopegraph shelling out to git itself (§2's layering:
// the Scope Graph depends on C, never duplicates it).
type BranchInfo struct {
	CommitHash string
	Branch     string
}

// Generator is generate_lock/validate_lock/diff/migrate's stateful host:
// it owns the resolution cache so repeated generations against an
// unchanged scope set are cheap (§4.A performance policy).
type Generator struct {
	cache  *resolutionCache
	scores *scoreCache // SmartSelection's per-dependency history, persists across GenerateLock calls
}

// NewGenerator constructs a Generator with a fresh resolution cache.
func NewGenerator() *Generator {
	return &Generator{cache: newResolutionCache(), scores: newScoreCache()}
}

// GenerateLock implements generate_lock(repo_root, config) -> LockFile
// (§4.A): discover every scope, union and resolve dependency constraints,
// reject cycles, and assemble the canonical, checksummed LockFile.
func (g *Generator) GenerateLock(ctx context.Context, repoRoot string, cfg GeneratorConfig, branch BranchInfo) (LockFile, error) {
	scopes, err := Discover(repoRoot)
	if err != nil {
		return LockFile{}, err
	}

	maxDepth := cfg.MaxScopeDepth
	if maxDepth <= 0 {
		maxDepth = DefaultGeneratorConfig().MaxScopeDepth
	}

	scopeByName := make(map[string]ScopeDescriptor, len(scopes))
	edges := make(map[string][]string, len(scopes))
	for _, s := range scopes {
		scopeByName[s.Name] = s
		edges[s.Name] = nil
	}
	for _, s := range scopes {
		for _, d := range s.Dependencies {
			edges[s.Name] = append(edges[s.Name], d.Target)
		}
	}

	if err := checkAcyclic(edges); err != nil {
		return LockFile{}, err
	}
	if depth := maxDepthOf(edges); depth > maxDepth {
		return LockFile{}, rerrors.New(rerrors.CodeDepthExceeded, fmt.Sprintf("scope dependency depth %d exceeds configured maximum %d", depth, maxDepth)).
			WithDetails("depth", depth).WithDetails("max", maxDepth)
	}

	select {
	case <-ctx.Done():
		return LockFile{}, rerrors.Wrap(rerrors.CodeCancelled, "generate_lock cancelled", ctx.Err())
	default:
	}

	// Union every scope's constraint on a given dependency name, keyed by
	// the declaring scope (§4.A step 1-2).
	constraintsByDep := make(map[string]map[string]string)
	targetIsScope := make(map[string]bool)
	for _, s := range scopes {
		for _, d := range s.Dependencies {
			if _, ok := constraintsByDep[d.Target]; !ok {
				constraintsByDep[d.Target] = make(map[string]string)
			}
			constraintsByDep[d.Target][s.Name] = d.Constraint
			if _, isScope := scopeByName[d.Target]; isScope {
				targetIsScope[d.Target] = true
			}
		}
	}

	lockedDeps := make(map[string]LockedDependency, len(constraintsByDep))
	depNames := make([]string, 0, len(constraintsByDep))
	for name := range constraintsByDep {
		depNames = append(depNames, name)
	}
	sort.Strings(depNames)

	for _, depName := range depNames {
		byScope := constraintsByDep[depName]

		var candidates []string
		if targetIsScope[depName] {
			candidates = []string{scopeByName[depName].Version}
		} else {
			candidates = cfg.AvailableVersions[depName]
		}

		cacheKey := cacheKeyFor(depName, byScope, cfg.Strategies) + fmt.Sprintf("|candidates=%v", candidates)
		if cached, ok := g.cache.lookup(cacheKey); ok {
			lockedDeps[depName] = lockedFromResolution(depName, byScope, cached)
			continue
		}

		resolveCfg := cfg
		resolveCfg.scores = g.scores
		res, err := ResolveConflicts(depName, byScope, candidates, resolveCfg)
		if err != nil {
			return LockFile{}, err
		}
		g.cache.store(cacheKey, res)
		lockedDeps[depName] = lockedFromResolution(depName, byScope, res)
	}

	lockedScopes := make(map[string]LockedScope, len(scopes))
	for _, s := range scopes {
		deps := make([]string, 0, len(s.Dependencies))
		for _, d := range s.Dependencies {
			deps = append(deps, d.Target)
		}
		sort.Strings(deps)
		lockedScopes[s.Name] = LockedScope{
			Name:         s.Name,
			Type:         s.Type,
			Version:      s.Version,
			Checksum:     s.Checksum,
			Dependencies: deps,
		}
	}

	lock := LockFile{
		Metadata: Metadata{
			Version:     LockSchemaVersion,
			GeneratedAt: timeFromContext(ctx),
			GeneratorConf: generatorConfigJSON{
				Strategies:       orDefaultStrategies(cfg.Strategies),
				AllowPrereleases: cfg.AllowPrereleases,
				Strict:           cfg.Strict,
			},
			RepositoryInfo: RepositoryInfo{
				CommitHash: branch.CommitHash,
				Branch:     branch.Branch,
			},
		},
		Scopes:       lockedScopes,
		Dependencies: lockedDeps,
	}

	marshaled, err := Marshal(lock)
	if err != nil {
		return LockFile{}, err
	}
	final, err := Unmarshal(marshaled)
	if err != nil {
		return LockFile{}, err
	}
	return final, nil
}

func lockedFromResolution(name string, byScope map[string]string, res Resolution) LockedDependency {
	dependents := scopeNames(byScope)
	ld := LockedDependency{
		Name:               name,
		ResolvedVersion:    res.Version,
		PerScopeConstraint: byScope,
		DependentScopes:    dependents,
		ResolutionStrategy: res.Strategy,
	}
	if res.Conflict != nil {
		ld.Conflicts = []Conflict{*res.Conflict}
	}
	return ld
}

func orDefaultStrategies(s []Strategy) []Strategy {
	if len(s) == 0 {
		return DefaultGeneratorConfig().Strategies
	}
	return s
}

// maxDepthOf computes the longest dependency chain length starting from
// any scope, used to enforce MaxScopeDepth (§8 boundary behavior).
func maxDepthOf(edges map[string][]string) int {
	memo := make(map[string]int)
	var depth func(string, map[string]bool) int
	depth = func(n string, onPath map[string]bool) int {
		if onPath[n] {
			return 0 // cycles are already rejected separately
		}
		if d, ok := memo[n]; ok {
			return d
		}
		onPath[n] = true
		best := 0
		for _, t := range edges[n] {
			if d := depth(t, onPath) + 1; d > best {
				best = d
			}
		}
		onPath[n] = false
		memo[n] = best
		return best
	}

	best := 0
	for n := range edges {
		if d := depth(n, map[string]bool{}); d > best {
			best = d
		}
	}
	return best
}

// timeFromContext lets tests inject a deterministic GeneratedAt via
// context (avoiding time.Now(), which would make generation output
// non-reproducible across runs in the way §8's round-trip law forbids
// only if two runs must be byte-identical regardless of wall-clock time;
// callers that do want wall-clock time store it under generationTimeKey
// before calling GenerateLock, or leave it unset for time.Now()).
type generationTimeKeyType struct{}

var generationTimeKey = generationTimeKeyType{}

// WithGenerationTime returns a context carrying a fixed GeneratedAt value,
// letting tests assert byte-identical repeated generation output.
func WithGenerationTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, generationTimeKey, t)
}

func timeFromContext(ctx context.Context) time.Time {
	if t, ok := ctx.Value(generationTimeKey).(time.Time); ok {
		return t
	}
	return time.Now().UTC()
}

// cacheKeyFor builds the resolution cache key from the constraint set and
// strategy list (§4.A performance policy: "cacheable by (constraint-set,
// strategy)").
func cacheKeyFor(depName string, byScope map[string]string, strategies []Strategy) string {
	names := scopeNames(byScope)
	key := depName
	for _, n := range names {
		key += "|" + n + "=" + byScope[n]
	}
	for _, s := range orDefaultStrategies(strategies) {
		key += "|" + string(s)
	}
	return key
}
