package crawler

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"sitecrawler/internal/config"
)

// DomainLimiter enforces per-host politeness on top of the robots crawl
// delay: a fixed minimum gap between requests and an optional token bucket.
//
// The gap is implemented as a reservation: each Wait books the host's next
// free slot under the lock, then sleeps outside it until the slot arrives.
type DomainLimiter struct {
	gap time.Duration

	mu      sync.Mutex
	next    map[string]time.Time
	buckets map[string]*rate.Limiter

	// newBucket is nil when token-bucket limiting is disabled.
	newBucket func() *rate.Limiter
}

// NewDomainLimiter creates a limiter with a per-host minimum gap and an
// optional per-host rate limit.
func NewDomainLimiter(gap time.Duration, rateCfg config.RateLimitConfig) *DomainLimiter {
	d := &DomainLimiter{gap: gap}
	if gap > 0 {
		d.next = make(map[string]time.Time)
	}
	if rateCfg.Enabled() {
		interval := rateCfg.Window.Duration / time.Duration(rateCfg.Requests)
		if interval <= 0 {
			interval = time.Millisecond
		}
		burst := rateCfg.Requests
		d.buckets = make(map[string]*rate.Limiter)
		d.newBucket = func() *rate.Limiter {
			return rate.NewLimiter(rate.Every(interval), burst)
		}
	}
	return d
}

// Wait blocks until politeness constraints for the host are satisfied.
func (d *DomainLimiter) Wait(ctx context.Context, host string) error {
	if d == nil || host == "" || (d.gap <= 0 && d.newBucket == nil) {
		return nil
	}
	host = strings.ToLower(host)

	var until time.Time
	var bucket *rate.Limiter

	d.mu.Lock()
	if d.gap > 0 {
		now := time.Now()
		slot := d.next[host]
		if slot.Before(now) {
			slot = now
		}
		until = slot
		d.next[host] = slot.Add(d.gap)
	}
	if d.newBucket != nil {
		bucket = d.buckets[host]
		if bucket == nil {
			bucket = d.newBucket()
			d.buckets[host] = bucket
		}
	}
	d.mu.Unlock()

	if rest := time.Until(until); rest > 0 {
		if err := sleepContext(ctx, rest); err != nil {
			return err
		}
	}
	if bucket != nil {
		return bucket.Wait(ctx)
	}
	return nil
}
