package auth

import (
	"context"
	"sync"
	"time"
)

// RateLimiter provides rate limiting functionality
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Reset(ctx context.Context, key string) error
}

// TokenBucketLimiter implements token bucket rate limiting
type TokenBucketLimiter struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	maxTokens  int
	refillRate time.Duration
	cleanupInt time.Duration
	stopCh     chan struct{}
	stopOnce   sync.Once
}

type bucket struct {
	tokens     int
	lastRefill time.Time
	mu         sync.Mutex
}

// NewTokenBucketLimiter creates a limiter allowing bursts of maxTokens and
// adding one token every refillRate
func NewTokenBucketLimiter(maxTokens int, refillRate time.Duration) *TokenBucketLimiter {
	limiter := &TokenBucketLimiter{
		buckets:    make(map[string]*bucket),
		maxTokens:  maxTokens,
		refillRate: refillRate,
		cleanupInt: 5 * time.Minute,
		stopCh:     make(chan struct{}),
	}

	go limiter.cleanup()

	return limiter
}

// NewPerMinuteLimiter allows requestsPerMinute per key
func NewPerMinuteLimiter(requestsPerMinute int) *TokenBucketLimiter {
	return NewTokenBucketLimiter(requestsPerMinute, time.Minute/time.Duration(requestsPerMinute))
}

// Allow checks if a request is allowed
func (l *TokenBucketLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	b, exists := l.buckets[key]
	if !exists {
		b = &bucket{
			tokens:     l.maxTokens,
			lastRefill: time.Now(),
		}
		l.buckets[key] = b
	}
	l.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if tokensToAdd := int(now.Sub(b.lastRefill) / l.refillRate); tokensToAdd > 0 {
		b.tokens = min(b.tokens+tokensToAdd, l.maxTokens)
		b.lastRefill = b.lastRefill.Add(time.Duration(tokensToAdd) * l.refillRate)
	}

	if b.tokens > 0 {
		b.tokens--
		return true, nil
	}
	return false, nil
}

// Reset resets the rate limit for a key
func (l *TokenBucketLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
	return nil
}

// Stop ends the cleanup goroutine
func (l *TokenBucketLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// cleanup removes idle buckets periodically
func (l *TokenBucketLimiter) cleanup() {
	ticker := time.NewTicker(l.cleanupInt)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.mu.Lock()
			now := time.Now()
			for key, b := range l.buckets {
				b.mu.Lock()
				if now.Sub(b.lastRefill) > time.Hour {
					delete(l.buckets, key)
				}
				b.mu.Unlock()
			}
			l.mu.Unlock()
		}
	}
}
