package robots

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"sitecrawler/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, server *httptest.Server) *Engine {
	t.Helper()
	cfg := config.RobotsConfig{
		Respect:   true,
		UserAgent: "testbot",
		Timeout:   config.DurationFrom(5 * time.Second),
	}
	return NewEngine(cfg, server.Client(), testLogger())
}

func TestCanFetchHonoursDisallow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			io.WriteString(w, "User-agent: *\nDisallow: /private/\n")
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	engine := newTestEngine(t, server)
	ctx := context.Background()

	if !engine.CanFetch(ctx, server.URL+"/public/page") {
		t.Fatal("allowed path reported as disallowed")
	}
	if engine.CanFetch(ctx, server.URL+"/private/page") {
		t.Fatal("disallowed path reported as allowed")
	}
}

func TestCanFetchFailsOpenOnMissingRobots(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	engine := newTestEngine(t, server)
	if !engine.CanFetch(context.Background(), server.URL+"/anything") {
		t.Fatal("missing robots.txt should fail open")
	}
}

func TestCanFetchFailsOpenOnNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client := server.Client()
	server.Close()

	cfg := config.RobotsConfig{
		Respect:   true,
		UserAgent: "testbot",
		Timeout:   config.DurationFrom(2 * time.Second),
	}
	engine := NewEngine(cfg, client, testLogger())
	if !engine.CanFetch(context.Background(), server.URL+"/page") {
		t.Fatal("unreachable robots.txt should fail open")
	}
}

func TestRobotsFetchedOncePerDomain(t *testing.T) {
	var fetches atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			fetches.Add(1)
			io.WriteString(w, "User-agent: *\nDisallow:\n")
		}
	}))
	defer server.Close()

	engine := newTestEngine(t, server)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		engine.CanFetch(ctx, server.URL+"/page")
	}
	if got := fetches.Load(); got != 1 {
		t.Fatalf("robots.txt fetched %d times, want 1", got)
	}
}

func TestFailedLoadIsTerminal(t *testing.T) {
	var fetches atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	engine := newTestEngine(t, server)
	ctx := context.Background()
	engine.CanFetch(ctx, server.URL+"/a")
	engine.CanFetch(ctx, server.URL+"/b")
	if got := fetches.Load(); got != 1 {
		t.Fatalf("failed robots.txt fetched %d times, want 1", got)
	}
	if engine.LastError(hostFromURL(t, server.URL)) == "" {
		t.Fatal("expected LastError to be recorded")
	}
}

func TestCrawlDelayParsed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			io.WriteString(w, "User-agent: *\nCrawl-delay: 2\n")
		}
	}))
	defer server.Close()

	engine := newTestEngine(t, server)
	engine.CanFetch(context.Background(), server.URL+"/page")

	domain := hostFromURL(t, server.URL)
	if got := engine.CrawlDelay(domain); got != 2*time.Second {
		t.Fatalf("CrawlDelay = %v, want 2s", got)
	}
}

func TestRespectDisabledSkipsFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("robots.txt should not be fetched when respect is disabled")
	}))
	defer server.Close()

	cfg := config.RobotsConfig{Respect: false, UserAgent: "testbot"}
	engine := NewEngine(cfg, server.Client(), testLogger())
	if !engine.CanFetch(context.Background(), server.URL+"/page") {
		t.Fatal("CanFetch should return true with respect disabled")
	}
}

func TestWaitForDomainEnforcesDelay(t *testing.T) {
	engine := NewEngine(config.RobotsConfig{Respect: true, UserAgent: "testbot"}, nil, testLogger())
	engine.mu.Lock()
	engine.records["example.com"] = &record{state: stateLoaded, crawlDelay: 50 * time.Millisecond}
	engine.mu.Unlock()

	ctx := context.Background()
	if err := engine.WaitForDomain(ctx, "example.com"); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	start := time.Now()
	if err := engine.WaitForDomain(ctx, "example.com"); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("second wait returned after %v, want >= ~50ms", elapsed)
	}
}

func TestWaitForDomainNoDelayReturnsImmediately(t *testing.T) {
	engine := NewEngine(config.RobotsConfig{Respect: true, UserAgent: "testbot"}, nil, testLogger())
	start := time.Now()
	if err := engine.WaitForDomain(context.Background(), "example.com"); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Fatalf("wait with no delay took %v", elapsed)
	}
}

func TestWaitForDomainCancelled(t *testing.T) {
	engine := NewEngine(config.RobotsConfig{Respect: true, UserAgent: "testbot"}, nil, testLogger())
	engine.mu.Lock()
	engine.records["example.com"] = &record{state: stateLoaded, crawlDelay: 5 * time.Second}
	engine.mu.Unlock()

	ctx := context.Background()
	if err := engine.WaitForDomain(ctx, "example.com"); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	cancelCtx, cancel := context.WithCancel(ctx)
	cancel()
	if err := engine.WaitForDomain(cancelCtx, "example.com"); err == nil {
		t.Fatal("cancelled wait should return an error")
	}
}

func hostFromURL(t *testing.T, rawURL string) string {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	return req.URL.Host
}
