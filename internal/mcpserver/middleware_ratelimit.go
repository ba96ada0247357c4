package mcpserver

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/fugue-ai/rhema/internal/logging"
	"github.com/fugue-ai/rhema/internal/rerrors"
)

// RateLimiter enforces the per-client sliding-window limit of §4.G
// Security ("N requests per W seconds"), approximated with one
// golang.org/x/time/rate token bucket per client key (IP address, or
// authenticated principal once auth resolves one). Buckets for clients
// that go idle past limiterTTL are dropped so memory doesn't grow
// unbounded over a long-lived daemon process.
type RateLimiter struct {
	limiters   map[string]*limiterEntry
	mu         sync.RWMutex
	rate       rate.Limit
	burst      int
	limit      int
	window     time.Duration
	maxSize    int
	limiterTTL time.Duration
	logger     *logging.Logger
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// LimiterCount returns the number of active per-client buckets.
func (rl *RateLimiter) LimiterCount() int {
	if rl == nil {
		return 0
	}
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.limiters)
}

// NewRateLimiter creates a rate limiter admitting requestsPerSecond
// sustained, burst peak, per client key.
func NewRateLimiter(requestsPerSecond, burst int, logger *logging.Logger) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		limit:    requestsPerSecond,
		window:   time.Second,
		maxSize:  10000,
		logger:   logger,
	}
}

// NewRateLimiterWithWindow creates a rate limiter configured by a fixed
// request budget over an arbitrary window, e.g. 100 requests per 60s — the
// shape §6's `security.rate_limit_requests`/`rate_limit_window_s` pair
// actually configures.
func NewRateLimiterWithWindow(limit int, window time.Duration, burst int, logger *logging.Logger) *RateLimiter {
	if window <= 0 {
		window = time.Second
	}
	requestsPerSecond := float64(limit) / window.Seconds()
	if requestsPerSecond < 0 {
		requestsPerSecond = 0
	}

	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		limit:    limit,
		window:   window,
		maxSize:  10000,
		logger:   logger,
	}
}

// SetMaxSize bounds how many distinct client buckets are kept before
// Cleanup resets the whole map.
func (rl *RateLimiter) SetMaxSize(n int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.maxSize = n
}

// SetLimiterTTL sets how long an idle client's bucket survives before
// Cleanup evicts it.
func (rl *RateLimiter) SetLimiterTTL(ttl time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limiterTTL = ttl
}

// getLimiter returns the bucket for key (e.g. client IP or principal),
// creating it on first use.
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	e, exists := rl.limiters[key]
	if !exists {
		e = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = e
	}
	e.lastAccess = time.Now()
	return e.limiter
}

// Allow reports whether key may proceed right now; used outside the HTTP
// middleware chain by the WebSocket and UDS transports, which have no
// http.Handler to wrap.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.getLimiter(key).Allow()
}

// Handler returns an HTTP middleware enforcing the per-client limit, keyed
// by the authenticated principal (set by the auth middleware) or, absent
// one, the client's remote address.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := principalFromContext(r.Context())
		if key == "" {
			key = clientIP(r)
		}
		if key == "" {
			key = "unknown"
		}

		if !rl.getLimiter(key).Allow() {
			if rl.logger != nil {
				rl.logger.WithFields(map[string]any{
					"key":    key,
					"path":   r.URL.Path,
					"method": r.Method,
				}).Warn("mcp rate limit exceeded")
			}

			window := rl.window
			if window <= 0 {
				window = time.Second
			}
			rerr := rerrors.New(rerrors.CodeRateLimited, "rate limit exceeded").
				WithDetails("limit", rl.limit).WithDetails("window", window.String())
			if seconds := int(math.Ceil(window.Seconds())); seconds > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
			}
			writeTransportError(w, http.StatusTooManyRequests, rerr)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Cleanup drops idle buckets past limiterTTL (when one is set), then
// resets the whole map if it still holds more than maxSize buckets.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.limiterTTL > 0 {
		cutoff := time.Now().Add(-rl.limiterTTL)
		for key, e := range rl.limiters {
			if e.lastAccess.Before(cutoff) {
				delete(rl.limiters, key)
			}
		}
	}
	if rl.maxSize > 0 && len(rl.limiters) > rl.maxSize {
		rl.limiters = make(map[string]*limiterEntry)
	}
}

// StartCleanup starts a background goroutine that runs Cleanup on
// interval, returning a stop function for graceful shutdown.
func (rl *RateLimiter) StartCleanup(interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-done:
				return
			}
		}
	}()

	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}
