package http

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// Per-account token bucket. Admins are exempt.
// ══════════════════════════════════════════════════════════════════════════════

// RateLimitConfig holds configuration for the rate limiter.
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained rate per account. Zero disables limiting.
	RequestsPerMinute int

	// BurstSize is the number of tokens in a fresh bucket.
	BurstSize int

	// IdleTTL is how long an unused bucket is kept.
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns sensible defaults for rate limiting.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 120,
		BurstSize:         20,
		IdleTTL:           10 * time.Minute,
	}
}

// RateLimiter implements per-account rate limiting using the token bucket algorithm.
type RateLimiter struct {
	config    RateLimitConfig
	buckets   sync.Map // map[string]*tokenBucket
	now       func() time.Time
	mu        sync.Mutex
	lastSweep time.Time
}

type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	refillRate float64 // tokens per second
	maxTokens  float64
}

// NewRateLimiter creates a limiter. now may be nil.
func NewRateLimiter(config RateLimitConfig, now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	if config.BurstSize <= 0 {
		config.BurstSize = 1
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = DefaultRateLimitConfig().IdleTTL
	}
	return &RateLimiter{config: config, now: now, lastSweep: now()}
}

// Allow consumes a token for accountID. When refused it returns how long to wait.
func (rl *RateLimiter) Allow(accountID string) (bool, time.Duration) {
	now := rl.now()
	rl.maybeSweep(now)

	b := rl.getBucket(accountID, now)
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(now)
	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	wait := time.Duration((1 - b.tokens) / b.refillRate * float64(time.Second))
	return false, wait
}

func (rl *RateLimiter) getBucket(accountID string, now time.Time) *tokenBucket {
	if val, ok := rl.buckets.Load(accountID); ok {
		return val.(*tokenBucket)
	}
	bucket := &tokenBucket{
		tokens:     float64(rl.config.BurstSize),
		lastRefill: now,
		refillRate: float64(rl.config.RequestsPerMinute) / 60.0,
		maxTokens:  float64(rl.config.BurstSize),
	}
	actual, _ := rl.buckets.LoadOrStore(accountID, bucket)
	return actual.(*tokenBucket)
}

func (b *tokenBucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens = math.Min(b.maxTokens, b.tokens+elapsed*b.refillRate)
	b.lastRefill = now
}

// maybeSweep drops buckets idle for longer than IdleTTL, at most once per IdleTTL.
func (rl *RateLimiter) maybeSweep(now time.Time) {
	rl.mu.Lock()
	if now.Sub(rl.lastSweep) < rl.config.IdleTTL {
		rl.mu.Unlock()
		return
	}
	rl.lastSweep = now
	rl.mu.Unlock()

	rl.buckets.Range(func(key, val any) bool {
		b := val.(*tokenBucket)
		b.mu.Lock()
		idle := now.Sub(b.lastRefill) > rl.config.IdleTTL
		b.mu.Unlock()
		if idle {
			rl.buckets.Delete(key)
		}
		return true
	})
}

// Len returns the number of tracked accounts.
func (rl *RateLimiter) Len() int {
	n := 0
	rl.buckets.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// rateLimitMiddleware runs behind requireAccount.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		actor := mustActor(r)
		if actor.IsAdmin() {
			next.ServeHTTP(w, r)
			return
		}
		if ok, wait := s.limiter.Allow(actor.AccountID); !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			writeJSONError(w, r, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
