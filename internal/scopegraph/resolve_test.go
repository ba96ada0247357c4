package scopegraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestResolveConflicts_S1 exercises the §8 S1 scenario: two scopes
// constrain serde to ^1.0, candidates {1.0.195, 1.0.200}, LatestCompatible
// resolves to 1.0.200.
func TestResolveConflicts_S1(t *testing.T) {
	cfg := GeneratorConfig{Strategies: []Strategy{LatestCompatible}}
	byScope := map[string]string{"api": "^1.0", "worker": "^1.0"}
	candidates := []string{"1.0.195", "1.0.200"}

	res, err := ResolveConflicts("serde", byScope, candidates, cfg)
	require.NoError(t, err)
	assert.Equal(t, "1.0.200", res.Version)
	assert.Equal(t, LatestCompatible, res.Strategy)
	assert.Nil(t, res.Conflict, "identical constraints across scopes should not record a conflict")
}

func TestResolveConflicts_RecordsConflictOnDisagreement(t *testing.T) {
	cfg := GeneratorConfig{Strategies: []Strategy{LatestCompatible}}
	byScope := map[string]string{"api": "^1.0", "worker": "^1.1"}
	candidates := []string{"1.0.5", "1.1.0", "1.2.0"}

	res, err := ResolveConflicts("serde", byScope, candidates, cfg)
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", res.Version)
	require.NotNil(t, res.Conflict)
	assert.ElementsMatch(t, []string{"^1.0", "^1.1"}, res.Conflict.ConflictingVersions)
	assert.ElementsMatch(t, []string{"api", "worker"}, res.Conflict.AffectedScopes)
}

func TestResolveConflicts_Conservative(t *testing.T) {
	cfg := GeneratorConfig{Strategies: []Strategy{Conservative}}
	byScope := map[string]string{"api": ">=1.0.0"}
	candidates := []string{"1.0.0", "1.5.0", "2.0.0"}

	res, err := ResolveConflicts("lib", byScope, candidates, cfg)
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", res.Version, "Conservative picks the most-recent stable satisfying version, not the oldest")
}

func TestResolveConflicts_ConservativePrefersStableOverNewerPrerelease(t *testing.T) {
	cfg := GeneratorConfig{Strategies: []Strategy{Conservative}, AllowPrereleases: true}
	byScope := map[string]string{"api": ">=1.0.0-0"}
	candidates := []string{"1.0.0", "1.5.0", "2.0.0-beta.1"}

	res, err := ResolveConflicts("lib", byScope, candidates, cfg)
	require.NoError(t, err)
	assert.Equal(t, "1.5.0", res.Version, "a stable candidate must win over a newer prerelease")
}

func TestResolveConflicts_PinnedVersionRequiresAgreement(t *testing.T) {
	cfg := GeneratorConfig{Strategies: []Strategy{PinnedVersion, LatestCompatible}}
	byScope := map[string]string{"api": ">=1.0.0", "worker": "1.5.0"}
	candidates := []string{"1.0.0", "1.5.0"}

	res, err := ResolveConflicts("lib", byScope, candidates, cfg)
	require.NoError(t, err)
	// PinnedVersion can't apply (disagreement), falls through to LatestCompatible.
	assert.Equal(t, LatestCompatible, res.Strategy)
	assert.Equal(t, "1.5.0", res.Version)
}

func TestResolveConflicts_NoCandidatesFails(t *testing.T) {
	cfg := GeneratorConfig{Strategies: []Strategy{LatestCompatible}}
	_, err := ResolveConflicts("missing", map[string]string{"api": "^1.0"}, nil, cfg)
	assert.Error(t, err)
}

func TestResolveConflicts_UnsatisfiableFallsThroughToManual(t *testing.T) {
	cfg := GeneratorConfig{Strategies: []Strategy{LatestCompatible, ManualResolution}}
	byScope := map[string]string{"api": "^1.0", "worker": "^2.0"}
	candidates := []string{"1.5.0", "2.5.0"}

	res, err := ResolveConflicts("lib", byScope, candidates, cfg)
	require.NoError(t, err)
	assert.True(t, res.Manual)
}

func TestResolveConflicts_SmartSelectionUsesBuiltinScorer(t *testing.T) {
	cfg := GeneratorConfig{Strategies: []Strategy{SmartSelection}}
	byScope := map[string]string{"api": ">=1.0.0"}
	candidates := []string{"1.0.0", "1.1.0"}

	res, err := ResolveConflicts("lib", byScope, candidates, cfg)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Version)
}
