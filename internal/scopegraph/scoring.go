package scopegraph

import (
	"sort"
	"sync"

	"github.com/dop251/goja"

	"github.com/fugue-ai/rhema/internal/rerrors"
)

// versionHistory is the per-candidate input to SmartSelection's scorer:
// a cached, history-derived aggregate compatibility score (§4.A "most
// aggregate compatibility score, history-derived, cached per dependency").
type versionHistory struct {
	SuccessRate float64 // fraction of past resolutions against this version that stayed conflict-free
	Recency     float64 // 0..1, higher is newer
}

// scoreCache memoizes per-dependency version histories between runs of the
// generator; a process-lifetime cache is sufficient since history only
// grows monotonically across generate_lock invocations. Generator holds
// one instance for its own lifetime so history accumulates across calls
// to GenerateLock, not just within one.
type scoreCache struct {
	mu           sync.Mutex
	byDependency map[string]map[string]versionHistory
}

func newScoreCache() *scoreCache {
	return &scoreCache{byDependency: make(map[string]map[string]versionHistory)}
}

func (c *scoreCache) historyFor(dependency, version string) versionHistory {
	c.mu.Lock()
	defer c.mu.Unlock()
	if byVersion, ok := c.byDependency[dependency]; ok {
		if h, ok := byVersion[version]; ok {
			return h
		}
	}
	// No history yet: neutral priors, equivalent to never having conflicted
	// and being the median-aged candidate.
	return versionHistory{SuccessRate: 1.0, Recency: 0.5}
}

func (c *scoreCache) record(dependency, version string, h versionHistory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byVersion, ok := c.byDependency[dependency]
	if !ok {
		byVersion = make(map[string]versionHistory)
		c.byDependency[dependency] = byVersion
	}
	byVersion[version] = h
}

// historySmoothing is the exponential-moving-average weight a single new
// observation carries against a version's prior success rate.
const historySmoothing = 0.3

// recencyDecay shrinks every other candidate's recency each time one
// version of a dependency is freshly resolved, so recency tracks "how
// long ago was this version last chosen" rather than staying pinned once
// touched.
const recencyDecay = 0.9

// observe records the outcome of a resolve_conflicts call against
// (dependency, version): conflictFree true when the resolution needed no
// tie-break across disagreeing scope constraints. Called after every
// successful resolution, not only ones SmartSelection itself produced,
// so a later SmartSelection pick benefits from history generated under
// any strategy (§4.A "scores derive from history of successful
// resolutions").
func (c *scoreCache) observe(dependency, version string, conflictFree bool) {
	h := c.historyFor(dependency, version)
	outcome := 0.0
	if conflictFree {
		outcome = 1.0
	}
	h.SuccessRate = h.SuccessRate*(1-historySmoothing) + outcome*historySmoothing
	h.Recency = 1.0
	c.record(dependency, version, h)

	c.mu.Lock()
	defer c.mu.Unlock()
	if byVersion, ok := c.byDependency[dependency]; ok {
		for v, vh := range byVersion {
			if v == version {
				continue
			}
			vh.Recency *= recencyDecay
			byVersion[v] = vh
		}
	}
}

// scoreAndSelect implements the SmartSelection strategy: score every
// satisfying candidate and return the highest-scoring one. When cfg
// carries a ScoreExpression, it is evaluated as a sandboxed JS expression
// per candidate (bindings: history.successRate, history.recency); the
// runtime is recreated per call so a misbehaving expression from one
// dependency cannot carry state into the next. Falls back to a builtin
// weighted-sum scorer when no expression is configured.
func scoreAndSelect(name string, candidates []string, cfg GeneratorConfig) (string, error) {
	cache := cfg.scores
	if cache == nil {
		// Direct callers that never set cfg.scores (including every
		// pre-existing test) get the old behavior: a fresh, empty-history
		// cache scoped to this one call.
		cache = newScoreCache()
	}

	type scored struct {
		version string
		score   float64
	}
	results := make([]scored, 0, len(candidates))

	for _, v := range candidates {
		h := cache.historyFor(name, v)
		score, err := score(h, cfg.ScoreExpression)
		if err != nil {
			return "", rerrors.Wrap(rerrors.CodeInternal, "SmartSelection score expression failed", err).
				WithDetails("dependency", name).WithDetails("version", v)
		}
		results = append(results, scored{version: v, score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].version > results[j].version
	})
	return results[0].version, nil
}

func score(h versionHistory, expression string) (float64, error) {
	if expression == "" {
		return h.SuccessRate*0.7 + h.Recency*0.3, nil
	}

	vm := goja.New()
	historyObj := vm.NewObject()
	_ = historyObj.Set("successRate", h.SuccessRate)
	_ = historyObj.Set("recency", h.Recency)
	_ = vm.Set("history", historyObj)

	v, err := vm.RunString(expression)
	if err != nil {
		return 0, err
	}
	return v.ToFloat(), nil
}
