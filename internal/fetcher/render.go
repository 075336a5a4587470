package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// Renderer produces the final DOM of a page after JavaScript execution.
type Renderer interface {
	Render(ctx context.Context, rawURL string, timeout time.Duration) (html, finalURL string, err error)
}

// RenderOptions configures the JavaScript rendering pipeline.
type RenderOptions struct {
	Timeout            time.Duration
	WaitForSelector    string
	UserAgent          string
	MaxBodyBytes       int64
	DisableHeadless    bool
	ConcurrentSessions int
	CaptureDelay       time.Duration
}

// ChromedpRenderer executes headless Chrome sessions using chromedp.
type ChromedpRenderer struct {
	opts      RenderOptions
	semaphore chan struct{}
	logger    *slog.Logger
}

// NewChromedpRenderer constructs a renderer with bounded concurrency.
func NewChromedpRenderer(opts RenderOptions, logger *slog.Logger) *ChromedpRenderer {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 5 * 1024 * 1024
	}
	if opts.ConcurrentSessions <= 0 {
		opts.ConcurrentSessions = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChromedpRenderer{
		opts:      opts,
		semaphore: make(chan struct{}, opts.ConcurrentSessions),
		logger:    logger,
	}
}

// Render navigates to the target URL and exports the final DOM outer HTML.
func (r *ChromedpRenderer) Render(parentCtx context.Context, rawURL string, timeout time.Duration) (string, string, error) {
	if timeout <= 0 {
		timeout = r.opts.Timeout
	}

	logger := r.logger.With("url", rawURL, "timeout", timeout.String())

	select {
	case r.semaphore <- struct{}{}:
		defer func() { <-r.semaphore }()
	case <-parentCtx.Done():
		return "", "", parentCtx.Err()
	}

	ctx, cancel := context.WithTimeout(parentCtx, timeout)
	defer cancel()

	execOpts := []chromedp.ExecAllocatorOption{
		chromedp.Flag("headless", !r.opts.DisableHeadless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
	}
	if ua := strings.TrimSpace(r.opts.UserAgent); ua != "" {
		execOpts = append(execOpts, chromedp.UserAgent(ua))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, execOpts...)
	defer allocCancel()

	chromeCtx, chromeCancel := chromedp.NewContext(allocCtx)
	defer chromeCancel()

	start := time.Now()
	var html string
	var finalURL string

	actions := []chromedp.Action{chromedp.Navigate(rawURL)}
	if sel := strings.TrimSpace(r.opts.WaitForSelector); sel != "" {
		actions = append(actions,
			chromedp.WaitReady(sel, chromedp.ByQuery),
			chromedp.Sleep(250*time.Millisecond),
		)
	} else {
		delay := r.opts.CaptureDelay
		if delay <= 0 {
			delay = 1500 * time.Millisecond
		}
		actions = append(actions, chromedp.Sleep(delay))
	}
	actions = append(actions,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&finalURL),
	)

	if err := chromedp.Run(chromeCtx, actions...); err != nil {
		logger.Debug("chromedp run failed", "error", err)
		return "", "", fmt.Errorf("chromedp run: %w", err)
	}

	if int64(len(html)) > r.opts.MaxBodyBytes {
		html = html[:r.opts.MaxBodyBytes]
	}
	if finalURL == "" {
		finalURL = rawURL
	}
	logger.Debug("chromedp render complete",
		"latency_ms", time.Since(start).Milliseconds(),
		"final_url", finalURL,
		"html_bytes", len(html),
	)
	return html, finalURL, nil
}
