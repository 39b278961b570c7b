// Package ratelimit provides token-bucket limits for checking-point
// fetches and outbound calls to target systems. Limits are expressed in
// calls per minute; an exhausted bucket defers work to the next
// scheduler tick rather than blocking.
package ratelimit

import (
	"sync"
	"time"
)

// Config configures a limiter.
type Config struct {
	// CallsPerMinute is the sustained allowance per key.
	CallsPerMinute float64 `yaml:"calls_per_minute"`

	// Burst is the maximum allowance accumulated while idle. Zero
	// defaults to CallsPerMinute.
	Burst int `yaml:"burst"`

	// Enabled controls whether limiting is active.
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns the default limiter configuration.
func DefaultConfig() Config {
	return Config{
		CallsPerMinute: 60,
		Burst:          0,
		Enabled:        true,
	}
}

// Bucket is a token bucket refilled continuously at the configured
// per-minute rate.
type Bucket struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	now        func() time.Time
}

// NewBucket creates a bucket from config.
func NewBucket(config Config) *Bucket {
	return newBucket(config, time.Now)
}

func newBucket(config Config, now func() time.Time) *Bucket {
	if config.CallsPerMinute <= 0 {
		config.CallsPerMinute = 60
	}
	burst := float64(config.Burst)
	if burst <= 0 {
		burst = config.CallsPerMinute
	}
	return &Bucket{
		tokens:     burst,
		maxTokens:  burst,
		refillRate: config.CallsPerMinute / 60,
		lastRefill: now(),
		now:        now,
	}
}

// Allow consumes one token if available.
func (b *Bucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// refill adds tokens for the elapsed time. Caller holds b.mu.
func (b *Bucket) refill() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.lastRefill = now

	b.tokens += elapsed * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
}

// Limiter manages buckets for multiple keys (checking points, target
// systems).
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*Bucket
	config  Config
	now     func() time.Time
}

// NewLimiter creates a keyed limiter with a shared default config.
func NewLimiter(config Config) *Limiter {
	return &Limiter{
		buckets: make(map[string]*Bucket),
		config:  config,
		now:     time.Now,
	}
}

// SetNow overrides the clock for tests; affects buckets created after
// the call.
func (l *Limiter) SetNow(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now != nil {
		l.now = now
	}
}

// Allow consumes one token for the key.
func (l *Limiter) Allow(key string) bool {
	if !l.config.Enabled {
		return true
	}
	return l.bucket(key, l.config).Allow()
}

// AllowWith consumes one token for the key using a key-specific config,
// creating the bucket on first use.
func (l *Limiter) AllowWith(key string, config Config) bool {
	if !config.Enabled {
		return true
	}
	return l.bucket(key, config).Allow()
}

func (l *Limiter) bucket(key string, config Config) *Bucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = newBucket(config, l.now)
		l.buckets[key] = b
	}
	return b
}

// Reset forgets the key's bucket so the next call starts a fresh burst.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}
