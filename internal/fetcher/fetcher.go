// Package fetcher implements the fetch collaborator used by the crawl
// engine: plain HTTP retrieval with content extraction, and an optional
// headless-Chrome rendering path.
package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"sitecrawler/internal/processor"
	"sitecrawler/pkg/types"
)

// Fetcher retrieves one page. A non-nil error is always a *types.FetchError
// so callers can branch on the classified kind.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, timeout time.Duration) (*types.FetchResult, error)
}

// Options controls HTTP fetching behaviour.
type Options struct {
	UserAgent       string
	Headers         map[string]string
	ProxyURL        string
	MaxBodyBytes    int64
	MaxLinksPerPage int
}

// HTTPFetcher implements Fetcher via the Go http.Client.
type HTTPFetcher struct {
	client       *http.Client
	processor    *processor.HTMLProcessor
	userAgent    string
	extraHeaders map[string]string
	maxBodyBytes int64
	maxLinks     int
}

// NewHTTPFetcher constructs an HTTP fetcher using the provided options.
// The timeout is applied per request, not on the client, so each retry
// attempt gets its own budget.
func NewHTTPFetcher(opts Options, proc *processor.HTMLProcessor) (*HTTPFetcher, error) {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 5 * 1024 * 1024
	}
	if opts.MaxLinksPerPage <= 0 {
		opts.MaxLinksPerPage = 200
	}

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if strings.TrimSpace(opts.ProxyURL) != "" {
		proxyURL, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}

	return &HTTPFetcher{
		client:       &http.Client{Transport: transport},
		processor:    proc,
		userAgent:    opts.UserAgent,
		extraHeaders: headers,
		maxBodyBytes: opts.MaxBodyBytes,
		maxLinks:     opts.MaxLinksPerPage,
	}, nil
}

// Client exposes the underlying HTTP client for reuse (eg. robots.txt).
func (f *HTTPFetcher) Client() *http.Client {
	if f == nil {
		return nil
	}
	return f.client
}

// Fetch downloads a single URL and extracts its content and links.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, timeout time.Duration) (*types.FetchResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &types.FetchError{Kind: types.ErrorInvalidURL, Message: "build request", Cause: err}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	for k, v := range f.extraHeaders {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, Classify(err)
	}

	if resp.StatusCode >= 400 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &types.FetchError{
			Kind:       types.ErrorHTTP,
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
		}
	}

	body, err := f.readBody(resp)
	if err != nil {
		return nil, Classify(err)
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return f.resultFromPage(rawURL, finalURL, resp.StatusCode,
		resp.Header.Get("Content-Type"), body, false, time.Since(start))
}

// resultFromPage assembles a FetchResult from a retrieved body, extracting
// title, markdown content, and outbound links for HTML pages.
func (f *HTTPFetcher) resultFromPage(rawURL, finalURL string, status int, contentType string, body []byte, rendered bool, latency time.Duration) (*types.FetchResult, error) {
	result := &types.FetchResult{
		URL:         rawURL,
		FinalURL:    finalURL,
		StatusCode:  status,
		ContentType: contentType,
		RawHTML:     string(body),
		FetchedAt:   time.Now(),
		Latency:     latency,
		Rendered:    rendered,
		Metadata: map[string]string{
			"content_type": contentType,
			"status_code":  strconv.Itoa(status),
			"final_url":    finalURL,
			"source_type":  "web",
		},
	}

	if !isHTML(contentType) {
		return result, nil
	}

	content, err := f.processor.Process(body)
	if err != nil {
		return nil, &types.FetchError{Kind: types.ErrorParser, Message: "process html", Cause: err}
	}
	result.Title = content.Title
	result.Content = content.Markdown
	result.Links = ExtractLinks(body, finalURL, f.maxLinks)
	return result, nil
}

func (f *HTTPFetcher) readBody(resp *http.Response) ([]byte, error) {
	if resp == nil || resp.Body == nil {
		return nil, errors.New("empty response body")
	}

	reader := io.Reader(resp.Body)
	closers := []io.Closer{resp.Body}

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		reader = fl
		closers = append(closers, fl)
	}

	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i].Close()
		}
	}()

	body, err := io.ReadAll(io.LimitReader(reader, f.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, fmt.Errorf("response body exceeds limit of %d bytes", f.maxBodyBytes)
	}
	return body, nil
}

func isHTML(contentType string) bool {
	ct := strings.ToLower(contentType)
	return ct == "" || strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

// Classify maps a transport-level error into the crawl error taxonomy.
// Already-classified errors pass through unchanged.
func Classify(err error) *types.FetchError {
	if err == nil {
		return nil
	}
	var fe *types.FetchError
	if errors.As(err, &fe) {
		return fe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &types.FetchError{Kind: types.ErrorTimeout, Message: "request timed out", Cause: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &types.FetchError{Kind: types.ErrorTimeout, Message: "request timed out", Cause: err}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &types.FetchError{Kind: types.ErrorNetwork, Message: urlErr.Err.Error(), Cause: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &types.FetchError{Kind: types.ErrorNetwork, Message: opErr.Error(), Cause: err}
	}
	return &types.FetchError{Kind: types.ErrorUnknown, Message: err.Error(), Cause: err}
}

// Composite validates requests and chooses between the rendering and plain
// HTTP paths. It is the Fetcher handed to the crawl orchestrator.
type Composite struct {
	httpFetcher *HTTPFetcher
	renderer    Renderer
}

// NewComposite builds a composite fetcher from HTTP and optional renderer
// components.
func NewComposite(httpFetcher *HTTPFetcher, renderer Renderer) *Composite {
	return &Composite{httpFetcher: httpFetcher, renderer: renderer}
}

// Fetch guards the URL, then delegates to the renderer when configured,
// falling back to plain HTTP on renderer errors.
func (c *Composite) Fetch(ctx context.Context, rawURL string, timeout time.Duration) (*types.FetchResult, error) {
	if ferr := ValidateURL(rawURL); ferr != nil {
		return nil, ferr
	}
	if c.renderer != nil {
		html, finalURL, err := c.renderer.Render(ctx, rawURL, timeout)
		if err == nil {
			return c.httpFetcher.resultFromPage(rawURL, finalURL, http.StatusOK,
				"text/html; charset=utf-8", []byte(html), true, 0)
		}
		// fall back to plain HTTP on renderer errors
	}
	return c.httpFetcher.Fetch(ctx, rawURL, timeout)
}
