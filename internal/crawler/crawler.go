// Package crawler runs the breadth-first crawl session: a single worker
// drains the frontier, honouring robots policy, politeness delays, budgets,
// and scoping rules.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"sitecrawler/internal/config"
	"sitecrawler/internal/fetcher"
	"sitecrawler/internal/frontier"
	"sitecrawler/internal/pathfilter"
	"sitecrawler/internal/processor"
	"sitecrawler/internal/robots"
	"sitecrawler/pkg/types"
)

// Store receives crawl results as they are produced. A nil Store disables
// persistence.
type Store interface {
	Persist(ctx context.Context, result types.CrawlResult) error
	Close() error
}

// Engine orchestrates one crawl session. It owns the frontier and drives
// the fetch pipeline; collaborators are injected so tests can substitute
// fakes.
type Engine struct {
	cfg     *config.Config
	fetch   fetcher.Fetcher
	robots  *robots.Engine
	filter  *pathfilter.Filter
	limiter *DomainLimiter
	store   Store
	logger  *slog.Logger

	// sleep implements the global inter-request delay; swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine wires a crawl engine from configuration: HTTP fetcher, optional
// Chrome renderer, retry controller, robots engine, path filter, and domain
// limiter.
func NewEngine(cfg *config.Config, store Store) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := buildLogger(cfg.Logging)

	proc := processor.New(cfg.Preprocess)
	httpFetcher, err := fetcher.NewHTTPFetcher(fetcher.Options{
		UserAgent:       cfg.Crawl.UserAgent,
		Headers:         cfg.Crawl.Headers,
		ProxyURL:        cfg.Crawl.ProxyURL,
		MaxBodyBytes:    cfg.Crawl.MaxBodyBytes,
		MaxLinksPerPage: cfg.Crawl.MaxLinksPerPage,
	}, proc)
	if err != nil {
		return nil, fmt.Errorf("build fetcher: %w", err)
	}

	var renderer fetcher.Renderer
	if cfg.Rendering.Enabled {
		renderer = fetcher.NewChromedpRenderer(fetcher.RenderOptions{
			Timeout:            cfg.Rendering.Timeout.Duration,
			WaitForSelector:    cfg.Rendering.WaitForSelector,
			UserAgent:          cfg.Crawl.UserAgent,
			MaxBodyBytes:       cfg.Crawl.MaxBodyBytes,
			DisableHeadless:    cfg.Rendering.DisableHeadless,
			ConcurrentSessions: cfg.Rendering.ConcurrentSessions,
		}, logger)
	}

	composite := fetcher.NewComposite(httpFetcher, renderer)
	retrier := NewRetryController(composite,
		cfg.Retry.MaxRetries, cfg.Retry.InitialDelay.Duration, logger)

	return &Engine{
		cfg:     cfg,
		fetch:   retrier,
		robots:  robots.NewEngine(cfg.Robots, httpFetcher.Client(), logger),
		filter:  pathfilter.New(cfg.Crawl.AllowedPathPatterns, cfg.Crawl.ExcludedPathPatterns, logger),
		limiter: NewDomainLimiter(cfg.Crawl.PerDomainDelay.Duration, cfg.Crawl.RateLimitPerDomain),
		store:   store,
		logger:  logger,
		sleep:   sleepContext,
	}, nil
}

// Logger exposes the engine's logger for the caller.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// Crawl runs the session to completion: the frontier is seeded from
// configuration and drained breadth-first until empty, the page budget is
// reached, or the context is cancelled. Only successful pages are returned;
// per-page failures are counted and logged and never abort the session.
func (e *Engine) Crawl(ctx context.Context) ([]types.CrawlResult, types.CrawlStats, error) {
	var (
		results []types.CrawlResult
		stats   types.CrawlStats
	)

	baseDomain := e.cfg.Crawl.BaseDomain
	if e.cfg.Crawl.SameDomainOnly && baseDomain == "" {
		if u, err := url.Parse(e.cfg.Crawl.Seeds[0]); err == nil {
			baseDomain = strings.ToLower(u.Host)
		}
	}

	front := frontier.New()
	for _, seed := range e.cfg.Crawl.Seeds {
		front.Push(seed, 0, map[string]string{"is_seed": "true"})
	}

	e.logger.Info("crawl session starting",
		"seeds", len(e.cfg.Crawl.Seeds),
		"max_depth", e.cfg.Crawl.MaxDepth,
		"max_pages", e.cfg.Crawl.MaxPages,
		"base_domain", baseDomain,
	)

	for stats.PagesCrawled < e.cfg.Crawl.MaxPages {
		if err := ctx.Err(); err != nil {
			stats.URLsSeen = front.SeenCount()
			return results, stats, err
		}
		item, ok := front.Pop()
		if !ok {
			break
		}

		if !e.robots.CanFetch(ctx, item.URL) {
			stats.PagesSkipped++
			e.logger.Info("skipping URL disallowed by robots.txt", "url", item.URL)
			continue
		}

		host := hostOf(item.URL)
		if err := e.robots.WaitForDomain(ctx, host); err != nil {
			stats.URLsSeen = front.SeenCount()
			return results, stats, err
		}
		if err := e.limiter.Wait(ctx, host); err != nil {
			stats.URLsSeen = front.SeenCount()
			return results, stats, err
		}
		if delay := e.cfg.Crawl.RequestDelay.Duration; delay > 0 && stats.PagesCrawled > 0 {
			if err := e.sleep(ctx, delay); err != nil {
				stats.URLsSeen = front.SeenCount()
				return results, stats, err
			}
		}

		fetched, err := e.fetch.Fetch(ctx, item.URL, e.cfg.Crawl.RequestTimeout.Duration)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				stats.URLsSeen = front.SeenCount()
				return results, stats, ctxErr
			}
			stats.PagesFailed++
			e.logger.Warn("page fetch failed", "url", item.URL, "depth", item.Depth, "error", err)
			continue
		}

		stats.PagesCrawled++
		result := types.CrawlResult{
			URL:      item.URL,
			Depth:    item.Depth,
			Title:    fetched.Title,
			Content:  fetched.Content,
			RawHTML:  fetched.RawHTML,
			Links:    fetched.Links,
			Metadata: mergeMetadata(item.Metadata, fetched.Metadata),
		}
		results = append(results, result)
		e.logger.Info("page crawled",
			"url", item.URL,
			"depth", item.Depth,
			"links", len(fetched.Links),
			"pages_crawled", stats.PagesCrawled,
		)

		if e.store != nil {
			if perr := e.store.Persist(ctx, result); perr != nil {
				e.logger.Error("persist failed", "url", item.URL, "error", perr)
			}
		}

		if item.Depth < e.cfg.Crawl.MaxDepth {
			e.expand(front, item, fetched.Links, baseDomain)
		}
	}

	stats.URLsSeen = front.SeenCount()
	e.logger.Info("crawl session finished",
		"pages_crawled", stats.PagesCrawled,
		"pages_failed", stats.PagesFailed,
		"pages_skipped", stats.PagesSkipped,
		"urls_seen", stats.URLsSeen,
	)
	return results, stats, nil
}

// expand enqueues a page's outbound links, applying domain scoping and path
// filtering. Filters apply to discovered children only, never to seeds.
func (e *Engine) expand(front *frontier.Frontier, parent types.FrontierItem, links []string, baseDomain string) {
	for _, link := range links {
		u, err := url.Parse(link)
		if err != nil {
			continue
		}
		if e.cfg.Crawl.SameDomainOnly && baseDomain != "" && !strings.EqualFold(u.Host, baseDomain) {
			continue
		}
		if !e.filter.Allowed(u.Path) {
			continue
		}
		front.Push(link, parent.Depth+1, map[string]string{"parent_url": parent.URL})
	}
}

// Close releases the persistence sink, if any.
func (e *Engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

func mergeMetadata(base, extra map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

// buildLogger constructs the session logger from configuration.
func buildLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Structured {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
