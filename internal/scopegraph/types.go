// Package scopegraph is the Scope Graph & Lock Engine (§4.A): discovers
// every scope in the repository, resolves a deterministic dependency
// graph, detects conflicts and cycles, and emits/validates the canonical
// LockFile.
package scopegraph

import "time"

// Strategy is one of the ordered resolution strategies §4.A names.
// ResolveConflicts always tries the configured list in order until one
// resolves every constraint; Hybrid as an entry of that list resolves
// nothing (it is rejected and the next entry is tried).
type Strategy string

const (
	LatestCompatible Strategy = "LatestCompatible"
	PinnedVersion    Strategy = "PinnedVersion"
	SmartSelection   Strategy = "SmartSelection"
	Conservative     Strategy = "Conservative"
	Aggressive       Strategy = "Aggressive"
	ManualResolution Strategy = "ManualResolution"
	Hybrid           Strategy = "Hybrid"
)

// GeneratorConfig controls generate_lock/resolve_conflicts (§4.A, §6
// "generator_config").
type GeneratorConfig struct {
	Strategies       []Strategy // tried in order; a Hybrid entry is skipped
	AllowPrereleases bool
	Strict           bool
	MaxScopeDepth    int
	ScoreExpression  string // optional goja expression for SmartSelection

	// AvailableVersions supplies the candidate version set for a dependency
	// name, for dependencies that name an external library rather than
	// another discovered scope (§8 S1's "serde" example); dependencies
	// that do name a sibling scope use that scope's own declared version
	// as their sole candidate regardless of this map.
	AvailableVersions map[string][]string

	// scores is the per-dependency version-history cache SmartSelection
	// scores against (§4.A "cached per dependency"). Generator sets this
	// to its own persistent cache before calling ResolveConflicts so
	// history survives across generate_lock invocations; left nil it
	// behaves as it always did for direct ResolveConflicts callers
	// (a fresh, empty-history cache scoped to that one call).
	scores *scoreCache
}

// DefaultGeneratorConfig mirrors config.Defaults()'s kernel-style finite
// defaults: a primary strategy plus safe fallbacks, never an empty list.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Strategies:    []Strategy{LatestCompatible, Conservative, ManualResolution},
		MaxScopeDepth: 64,
	}
}

// ScopeDescriptor is one scope as discovered on disk, before resolution.
type ScopeDescriptor struct {
	Name         string
	Dir          string // repository-relative directory
	Type         string
	Version      string
	Metadata     map[string]any
	Dependencies []DependencyConstraint
	Checksum     string
}

// DependencyConstraint is one dependency edge as declared (unresolved).
type DependencyConstraint struct {
	Target     string
	Constraint string // e.g. "^1.0"
	Type       string // parent, child, peer, dev, optional
}

// LockedDependency is one resolved dependency edge: §3's "dependency_name
// -> LockedDependency" mapping entry.
type LockedDependency struct {
	Name              string   `json:"name"`
	ResolvedVersion   string   `json:"resolved_version"`
	PerScopeConstraint map[string]string `json:"per_scope_constraint"`
	DependentScopes   []string `json:"dependent_scopes"`
	Conflicts         []Conflict `json:"conflicts,omitempty"`
	ResolutionStrategy Strategy `json:"resolution_strategy"`
}

// Conflict is a detected dependency-version disagreement (§3).
type Conflict struct {
	DependencyName      string   `json:"dependency_name"`
	ConflictingVersions []string `json:"conflicting_versions"`
	AffectedScopes      []string `json:"affected_scopes"`
	ResolutionStrategy  Strategy `json:"resolution_strategy"`
	ResolvedVersion     string   `json:"resolved_version"`
	Rationale           string   `json:"rationale"`
}

// LockedScope is one scope's entry in the lock file.
type LockedScope struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Version      string   `json:"version"`
	Checksum     string   `json:"checksum"`
	Dependencies []string `json:"dependencies"` // resolved dependency names, sorted
}

// RepositoryInfo is the lock file's provenance stamp.
type RepositoryInfo struct {
	CommitHash string `json:"commit_hash"`
	Branch     string `json:"branch"`
}

// Metadata is the lock file's root metadata block (§6).
type Metadata struct {
	Version        string          `json:"version"`
	GeneratedAt    time.Time       `json:"generated_at"`
	GeneratorConf  generatorConfigJSON `json:"generator_config"`
	RepositoryInfo RepositoryInfo  `json:"repository_info"`
}

// generatorConfigJSON is GeneratorConfig's canonical on-disk projection
// (strategy names as strings, no func/expression internals).
type generatorConfigJSON struct {
	Strategies       []Strategy `json:"strategies"`
	AllowPrereleases bool       `json:"allow_prereleases"`
	Strict           bool       `json:"strict"`
}

// LockFile is the deterministic snapshot of the resolved scope graph
// (§3, §6). LockSchemaVersion is the current schema version migrate()
// upgrades toward.
const LockSchemaVersion = "1.0.0"

type LockFile struct {
	Metadata     Metadata                    `json:"metadata"`
	Scopes       map[string]LockedScope      `json:"scopes"`
	Dependencies map[string]LockedDependency `json:"dependencies"`
	Checksum     string                      `json:"checksum"`
}
