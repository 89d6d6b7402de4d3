// Package ratelimit limits how many alerts a single channel may send in a
// window, so that an error storm does not flood a chat or webhook.
package ratelimit

import (
	"sync"
	"time"

	"github.com/kart-io/errica/pkg/errica/config"
)

// Limiter decides whether one more send is allowed right now.
type Limiter interface {
	Allow() bool
}

// Bucket is a token bucket refilled in whole intervals.
type Bucket struct {
	mu         sync.Mutex
	capacity   int
	tokens     int
	refillRate int
	interval   time.Duration
	lastRefill time.Time
	now        func() time.Time
}

// NewBucket returns a full bucket of capacity tokens gaining refillRate
// tokens every interval.
func NewBucket(capacity, refillRate int, interval time.Duration) *Bucket {
	return newBucket(capacity, refillRate, interval, time.Now)
}

func newBucket(capacity, refillRate int, interval time.Duration, now func() time.Time) *Bucket {
	return &Bucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		interval:   interval,
		lastRefill: now(),
		now:        now,
	}
}

// Allow takes one token if available.
func (b *Bucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

// Available returns the tokens left.
func (b *Bucket) Available() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	return b.tokens
}

// refill must be called with mu held.
func (b *Bucket) refill() {
	elapsed := b.now().Sub(b.lastRefill)
	if elapsed < b.interval {
		return
	}
	intervals := int(elapsed / b.interval)
	b.tokens = min(b.tokens+intervals*b.refillRate, b.capacity)
	b.lastRefill = b.lastRefill.Add(time.Duration(intervals) * b.interval)
}

// FromSettings builds the limiter configured by rate_limit (sends per
// rate_interval, default one minute) and rate_burst (default rate_limit).
// It returns nil when rate_limit is unset or not positive.
func FromSettings(s config.ChannelSettings) Limiter {
	rate := s.Int("rate_limit", 0)
	if rate <= 0 {
		return nil
	}
	interval := s.Duration("rate_interval", time.Minute)
	if interval <= 0 {
		interval = time.Minute
	}
	burst := s.Int("rate_burst", rate)
	if burst <= 0 {
		burst = rate
	}
	return NewBucket(burst, rate, interval)
}
