// Package robots fetches and caches robots.txt policy per domain and paces
// requests according to the declared crawl delay.
package robots

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"sitecrawler/internal/config"
)

type state int

const (
	stateUnchecked state = iota
	stateLoading
	stateLoaded
	stateLoadFailed
)

// record is the cached robots state for one domain. Loaded and LoadFailed
// are terminal for the lifetime of the engine; there is no TTL or refresh.
type record struct {
	state      state
	data       *robotstxt.RobotsData
	crawlDelay time.Duration
	lastErr    string
}

// Engine evaluates robots.txt rules and enforces per-domain politeness.
// State is owned by one engine instance; callers decide whether to share it
// across crawl sessions.
type Engine struct {
	client    *http.Client
	userAgent string
	respect   bool
	timeout   time.Duration
	logger    *slog.Logger

	mu          sync.Mutex
	records     map[string]*record
	lastRequest map[string]time.Time
}

// NewEngine constructs a robots engine from configuration. The HTTP client
// is shared with the page fetcher when available.
func NewEngine(cfg config.RobotsConfig, client *http.Client, logger *slog.Logger) *Engine {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Engine{
		client:      client,
		userAgent:   cfg.UserAgent,
		respect:     cfg.Respect,
		timeout:     timeout,
		logger:      logger,
		records:     make(map[string]*record),
		lastRequest: make(map[string]time.Time),
	}
}

// CanFetch reports whether the target URL is permitted for the configured
// user agent. Robots fetch failures are never fatal: the engine fails open
// and treats the domain as unrestricted.
func (e *Engine) CanFetch(ctx context.Context, rawURL string) bool {
	if !e.respect {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true
	}
	domain := strings.ToLower(u.Host)

	rec := e.ensure(ctx, domain, u.Scheme)
	if rec.state != stateLoaded || rec.data == nil {
		return true
	}
	group := rec.data.FindGroup(e.userAgent)
	if group == nil {
		return true
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return group.Test(path)
}

// CrawlDelay returns the robots-declared delay for a domain, or zero when
// none was declared or robots.txt was unavailable.
func (e *Engine) CrawlDelay(domain string) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rec, ok := e.records[strings.ToLower(domain)]; ok {
		return rec.crawlDelay
	}
	return 0
}

// WaitForDomain sleeps until the domain's crawl delay has elapsed since the
// previous request, then records the request timestamp. The timestamp is
// updated whether or not a wait was needed.
func (e *Engine) WaitForDomain(ctx context.Context, domain string) error {
	domain = strings.ToLower(domain)

	if delay := e.CrawlDelay(domain); delay > 0 {
		e.mu.Lock()
		last, ok := e.lastRequest[domain]
		e.mu.Unlock()
		if ok {
			if rest := delay - time.Since(last); rest > 0 {
				if err := sleepContext(ctx, rest); err != nil {
					e.touch(domain)
					return err
				}
			}
		}
	}
	e.touch(domain)
	return ctx.Err()
}

func (e *Engine) touch(domain string) {
	e.mu.Lock()
	e.lastRequest[domain] = time.Now()
	e.mu.Unlock()
}

// LastError returns the most recent robots fetch error for a domain, if any.
func (e *Engine) LastError(domain string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rec, ok := e.records[strings.ToLower(domain)]; ok {
		return rec.lastErr
	}
	return ""
}

// ensure returns the terminal record for a domain, loading robots.txt on
// first contact. The lock is released during the network fetch.
func (e *Engine) ensure(ctx context.Context, domain, scheme string) *record {
	e.mu.Lock()
	if rec, ok := e.records[domain]; ok && rec.state != stateUnchecked {
		e.mu.Unlock()
		return rec
	}
	rec := &record{state: stateLoading}
	e.records[domain] = rec
	e.mu.Unlock()

	data, err := e.load(ctx, domain, scheme)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		rec.state = stateLoadFailed
		rec.lastErr = err.Error()
		e.logger.Debug("robots.txt unavailable, failing open", "domain", domain, "error", err)
		return rec
	}
	rec.state = stateLoaded
	rec.data = data
	if group := data.FindGroup(e.userAgent); group != nil {
		rec.crawlDelay = group.CrawlDelay
	}
	return rec
}

func (e *Engine) load(ctx context.Context, domain, scheme string) (*robotstxt.RobotsData, error) {
	if scheme != "http" && scheme != "https" {
		scheme = "https"
	}
	robotsURL := scheme + "://" + domain + "/robots.txt"

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build robots request: %w", err)
	}
	if e.userAgent != "" {
		req.Header.Set("User-Agent", e.userAgent)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("robots.txt returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil, fmt.Errorf("read robots.txt: %w", err)
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}
	return data, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
