package resilience

import (
	"sync"
	"time"
)

// LimiterOpts configures the token bucket rate limiter.
type LimiterOpts struct {
	// Rate is the number of tokens added per second.
	Rate float64
	// Burst is the maximum number of tokens (bucket capacity).
	Burst int
}

// Limiter implements a token bucket rate limiter.
type Limiter struct {
	mu     sync.Mutex
	opts   LimiterOpts
	tokens float64
	last   time.Time
	now    func() time.Time
}

// NewLimiter creates a token bucket rate limiter with a full bucket.
func NewLimiter(opts LimiterOpts) *Limiter {
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &Limiter{
		opts:   opts,
		tokens: float64(opts.Burst),
		now:    time.Now,
	}
}

// Allow checks if a request is allowed (non-blocking).
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill()
	if l.tokens >= 1 {
		l.tokens--
		return true
	}
	return false
}

// refill adds tokens based on elapsed time. Must hold mu.
func (l *Limiter) refill() {
	now := l.now()
	if l.last.IsZero() {
		l.last = now
		return
	}
	l.tokens += now.Sub(l.last).Seconds() * l.opts.Rate
	if l.tokens > float64(l.opts.Burst) {
		l.tokens = float64(l.opts.Burst)
	}
	l.last = now
}

// idle reports whether the bucket is full, i.e. the key has been quiet long
// enough that dropping the limiter loses nothing. Must not hold mu.
func (l *Limiter) idle() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill()
	return l.tokens >= float64(l.opts.Burst)
}

// KeyedLimiter keeps one token bucket per key, e.g. per client address.
type KeyedLimiter struct {
	mu       sync.Mutex
	opts     LimiterOpts
	limiters map[string]*Limiter
	now      func() time.Time
}

// NewKeyedLimiter creates a KeyedLimiter whose buckets share opts.
func NewKeyedLimiter(opts LimiterOpts) *KeyedLimiter {
	return &KeyedLimiter{opts: opts, limiters: make(map[string]*Limiter), now: time.Now}
}

// Allow takes a token from key's bucket.
func (k *KeyedLimiter) Allow(key string) bool {
	k.mu.Lock()
	l, ok := k.limiters[key]
	if !ok {
		l = NewLimiter(k.opts)
		l.now = k.now
		k.limiters[key] = l
	}
	k.mu.Unlock()
	return l.Allow()
}

// Prune drops buckets that have refilled completely and returns how many
// remain.
func (k *KeyedLimiter) Prune() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	for key, l := range k.limiters {
		if l.idle() {
			delete(k.limiters, key)
		}
	}
	return len(k.limiters)
}
