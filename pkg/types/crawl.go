package types

import "time"

// FrontierItem is a single pending fetch task. Items are immutable after
// creation and owned by the frontier until popped.
type FrontierItem struct {
	URL      string
	Depth    int
	Metadata map[string]string
}

// FetchResult is the fetch collaborator's answer for one URL.
type FetchResult struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	Title       string
	// Content is a markdown rendition of the page's main content.
	Content   string
	RawHTML   string
	Links     []string
	Metadata  map[string]string
	FetchedAt time.Time
	Latency   time.Duration
	Rendered  bool
}

// CrawlResult is one successfully crawled page as seen by callers of the
// orchestrator. Failed fetches are counted in CrawlStats and logged, never
// returned as results.
type CrawlResult struct {
	URL      string
	Depth    int
	Title    string
	Content  string
	RawHTML  string
	Links    []string
	Metadata map[string]string
}

// CrawlStats aggregates counters for one crawl session.
type CrawlStats struct {
	PagesCrawled int
	PagesFailed  int
	PagesSkipped int
	URLsSeen     int
}
