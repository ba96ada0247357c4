package scopegraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore_BuiltinWeightedSum(t *testing.T) {
	h := versionHistory{SuccessRate: 1.0, Recency: 0.0}
	s, err := score(h, "")
	require.NoError(t, err)
	assert.InDelta(t, 0.7, s, 0.0001)
}

func TestScore_CustomExpression(t *testing.T) {
	h := versionHistory{SuccessRate: 0.5, Recency: 0.5}
	s, err := score(h, "history.successRate + history.recency")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, s, 0.0001)
}

func TestScore_InvalidExpressionErrors(t *testing.T) {
	h := versionHistory{SuccessRate: 1, Recency: 1}
	_, err := score(h, "this is not valid javascript (")
	assert.Error(t, err)
}

func TestScoreAndSelect_PicksHighestScore(t *testing.T) {
	cfg := GeneratorConfig{ScoreExpression: "history.successRate"}
	winner, err := scoreAndSelect("dep", []string{"1.0.0", "1.1.0"}, cfg)
	require.NoError(t, err)
	assert.NotEmpty(t, winner)
}

func TestScoreCache_ObservePersistsAcrossCalls(t *testing.T) {
	cache := newScoreCache()
	cfg := GeneratorConfig{ScoreExpression: "history.successRate", scores: cache}

	// 1.0.0 repeatedly resolves conflict-free; 1.1.0 never does. A cache
	// scoped to one scoreAndSelect call would see neutral priors for both
	// and couldn't tell them apart.
	for i := 0; i < 5; i++ {
		cache.observe("dep", "1.0.0", true)
		cache.observe("dep", "1.1.0", false)
	}

	winner, err := scoreAndSelect("dep", []string{"1.0.0", "1.1.0"}, cfg)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", winner, "history of successful resolutions should favor 1.0.0 over repeatedly-conflicting 1.1.0")
}

func TestScoreCache_ObserveDecaysSiblingRecency(t *testing.T) {
	cache := newScoreCache()
	cache.observe("dep", "1.0.0", true)
	before := cache.historyFor("dep", "1.0.0").Recency
	assert.Equal(t, 1.0, before)

	cache.observe("dep", "1.1.0", true)
	after := cache.historyFor("dep", "1.0.0").Recency
	assert.Less(t, after, before, "resolving a sibling version should decay this version's recency")
	assert.Equal(t, 1.0, cache.historyFor("dep", "1.1.0").Recency, "the just-resolved version's own recency stays fresh")
}

func TestScoreCache_ObserveUpdatesSuccessRateAsEMA(t *testing.T) {
	cache := newScoreCache()
	cache.observe("dep", "1.0.0", false)
	h := cache.historyFor("dep", "1.0.0")
	assert.Less(t, h.SuccessRate, 1.0, "a conflicting resolution should pull success rate down from the neutral prior")

	cache.observe("dep", "1.0.0", true)
	h2 := cache.historyFor("dep", "1.0.0")
	assert.Greater(t, h2.SuccessRate, h.SuccessRate, "a subsequent conflict-free resolution should pull success rate back up")
}

func TestGenerator_SmartSelectionHistoryPersistsAcrossGenerateLockCalls(t *testing.T) {
	g := NewGenerator()
	// Seed history directly: "lib" has consistently resolved conflict-free
	// at 1.0.0 and conflicted at 1.1.0, across prior generate_lock runs.
	for i := 0; i < 5; i++ {
		g.scores.observe("lib", "1.0.0", true)
		g.scores.observe("lib", "1.1.0", false)
	}

	cfg := GeneratorConfig{Strategies: []Strategy{SmartSelection}}
	byScope := map[string]string{"api": ">=1.0.0"}
	res, err := ResolveConflicts("lib", byScope, []string{"1.0.0", "1.1.0"}, cfg)
	require.NoError(t, err)
	assert.Equal(t, "lib", res.Name)

	cfg.scores = g.scores
	res2, err := ResolveConflicts("lib", byScope, []string{"1.0.0", "1.1.0"}, cfg)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", res2.Version, "Generator's persistent history should steer SmartSelection toward the historically conflict-free version")
}
