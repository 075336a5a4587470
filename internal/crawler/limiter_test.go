package crawler

import (
	"context"
	"testing"
	"time"

	"sitecrawler/internal/config"
)

func TestDomainLimiterEnforcesDelay(t *testing.T) {
	limiter := NewDomainLimiter(50*time.Millisecond, config.RateLimitConfig{})
	ctx := context.Background()

	if err := limiter.Wait(ctx, "example.com"); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	start := time.Now()
	if err := limiter.Wait(ctx, "example.com"); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("second wait returned after %v, want >= ~50ms", elapsed)
	}
}

func TestDomainLimiterIndependentHosts(t *testing.T) {
	limiter := NewDomainLimiter(200*time.Millisecond, config.RateLimitConfig{})
	ctx := context.Background()

	if err := limiter.Wait(ctx, "a.example.com"); err != nil {
		t.Fatalf("wait a: %v", err)
	}
	start := time.Now()
	if err := limiter.Wait(ctx, "b.example.com"); err != nil {
		t.Fatalf("wait b: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("different host waited %v", elapsed)
	}
}

func TestDomainLimiterDisabled(t *testing.T) {
	limiter := NewDomainLimiter(0, config.RateLimitConfig{})
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := limiter.Wait(ctx, "example.com"); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Fatalf("disabled limiter waited %v", elapsed)
	}
}

func TestDomainLimiterCancelled(t *testing.T) {
	limiter := NewDomainLimiter(5*time.Second, config.RateLimitConfig{})
	ctx := context.Background()
	if err := limiter.Wait(ctx, "example.com"); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	cancelCtx, cancel := context.WithCancel(ctx)
	cancel()
	if err := limiter.Wait(cancelCtx, "example.com"); err == nil {
		t.Fatal("cancelled wait should error")
	}
}

func TestDomainLimiterNilSafe(t *testing.T) {
	var limiter *DomainLimiter
	if err := limiter.Wait(context.Background(), "example.com"); err != nil {
		t.Fatalf("nil limiter: %v", err)
	}
}
