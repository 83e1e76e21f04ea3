// Package ratelimit provides in-process token-bucket rate limiting.
//
// The limiter is per-process request hygiene only; a horizontally scaled
// deployment that needs exact global limits would back this with a shared,
// TTL'd counter store, which is outside this service.
package ratelimit

import (
	"os"
	"strconv"
	"sync"
	"time"
)

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	Limit           int           // bucket capacity (burst)
	Window          time.Duration // time to refill a full bucket
	CleanupInterval time.Duration // idle-bucket eviction cadence
}

// LoadConfig reads rate limit settings from the environment:
// RATE_LIMIT_ENABLED (default true), RATE_LIMIT (default 120 requests),
// RATE_LIMIT_WINDOW (default 1m).
func LoadConfig() *Config {
	cfg := &Config{
		Enabled:         true,
		Limit:           120,
		Window:          time.Minute,
		CleanupInterval: 10 * time.Minute,
	}
	if v := os.Getenv("RATE_LIMIT_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Enabled = enabled
		}
	}
	if v := os.Getenv("RATE_LIMIT"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil && limit > 0 {
			cfg.Limit = limit
		}
	}
	if v := os.Getenv("RATE_LIMIT_WINDOW"); v != "" {
		if window, err := time.ParseDuration(v); err == nil && window > 0 {
			cfg.Window = window
		}
	}
	return cfg
}

// Info reports the limit state returned alongside each decision.
type Info struct {
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
	lastAccess time.Time
}

// Limiter manages per-client token buckets.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	config  *Config
	stop    chan struct{}
	once    sync.Once
}

// NewLimiter creates a limiter and starts its idle-bucket cleanup loop.
func NewLimiter(config *Config) *Limiter {
	if config == nil {
		config = LoadConfig()
	}
	l := &Limiter{
		buckets: make(map[string]*bucket),
		config:  config,
		stop:    make(chan struct{}),
	}
	if config.Enabled {
		go l.cleanupLoop()
	}
	return l
}

// Allow consumes one token for the client if available.
func (l *Limiter) Allow(clientID string) (bool, Info) {
	if !l.config.Enabled {
		return true, Info{}
	}

	refillRate := float64(l.config.Limit) / l.config.Window.Seconds()
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[clientID]
	if !ok {
		b = &bucket{tokens: float64(l.config.Limit), lastRefill: now}
		l.buckets[clientID] = b
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens = min(float64(l.config.Limit), b.tokens+elapsed*refillRate)
	b.lastRefill = now
	b.lastAccess = now

	info := Info{Limit: l.config.Limit}
	if b.tokens >= 1.0 {
		b.tokens--
		info.Remaining = int(b.tokens)
		info.ResetTime = now.Add(time.Duration((float64(l.config.Limit) - b.tokens) / refillRate * float64(time.Second)))
		return true, info
	}

	info.Remaining = 0
	wait := (1.0 - b.tokens) / refillRate
	info.RetryAfter = time.Duration(wait * float64(time.Second))
	info.ResetTime = now.Add(info.RetryAfter)
	return false, info
}

// Stop terminates the cleanup goroutine.
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-l.config.CleanupInterval)
			l.mu.Lock()
			for id, b := range l.buckets {
				if b.lastAccess.Before(cutoff) {
					delete(l.buckets, id)
				}
			}
			l.mu.Unlock()
		}
	}
}
