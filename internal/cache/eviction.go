package cache

import (
	"math"
	"sync"
	"time"
)

// evictionPolicy scores entries for the weighted LRU/LFU hybrid described
// in §4.F: priority = alpha*access_count + beta*idle_seconds. The entry
// with the LOWEST priority is evicted first — an entry that is both rarely
// accessed and was inserted/touched most recently (so idle_seconds is still
// small) has nothing keeping it around. (alpha, beta) self-tune toward the
// observed hit rate: a low hit rate pushes weight onto recency (beta), a
// high and stable hit rate pushes weight onto frequency (alpha).
type evictionPolicy struct {
	mu    sync.Mutex
	alpha float64
	beta  float64
}

func newEvictionPolicy() *evictionPolicy {
	return &evictionPolicy{alpha: 0.5, beta: 0.5}
}

func (p *evictionPolicy) weights() (alpha, beta float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alpha, p.beta
}

func (p *evictionPolicy) priority(e *entry, now time.Time) float64 {
	alpha, beta := p.weights()
	idleSeconds := now.Sub(e.lastAccess).Seconds()
	return alpha*float64(e.accessCount) + beta*idleSeconds
}

// adapt nudges (alpha, beta) by a fixed step toward recency when hitRate is
// below 0.5 and toward frequency otherwise, clamped to [0.1, 0.9] so neither
// term is ever fully zeroed out.
func (p *evictionPolicy) adapt(hitRate float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	const step = 0.02
	if hitRate < 0.5 {
		p.beta = math.Min(0.9, p.beta+step)
	} else {
		p.beta = math.Max(0.1, p.beta-step)
	}
	p.alpha = 1 - p.beta
}
