package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the full configuration required to run a crawl session.
type Config struct {
	Crawl      CrawlConfig      `yaml:"crawl"`
	Retry      RetryConfig      `yaml:"retry"`
	Robots     RobotsConfig     `yaml:"robots"`
	Rendering  RenderingConfig  `yaml:"rendering"`
	Preprocess PreprocessConfig `yaml:"preprocess"`
	DB         SQLConfig        `yaml:"db"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// CrawlConfig controls seeds, budgets, scoping, and throttling.
type CrawlConfig struct {
	Seeds     []string          `yaml:"seeds"`
	MaxDepth  int               `yaml:"max_depth"`
	MaxPages  int               `yaml:"max_pages"`
	UserAgent string            `yaml:"user_agent"`
	Headers   map[string]string `yaml:"headers"`
	ProxyURL  string            `yaml:"proxy_url"`

	RequestTimeout Duration `yaml:"request_timeout"`
	// RequestDelay is the global politeness pause between any two page
	// fetches, regardless of domain.
	RequestDelay Duration `yaml:"request_delay"`
	// PerDomainDelay is an additional minimum gap between requests to the
	// same host, on top of any robots.txt crawl-delay.
	PerDomainDelay     Duration        `yaml:"per_domain_delay"`
	RateLimitPerDomain RateLimitConfig `yaml:"rate_limit_per_domain"`

	SameDomainOnly       bool     `yaml:"same_domain_only"`
	BaseDomain           string   `yaml:"base_domain"`
	AllowedPathPatterns  []string `yaml:"allowed_path_patterns"`
	ExcludedPathPatterns []string `yaml:"excluded_path_patterns"`

	MaxBodyBytes    int64 `yaml:"max_body_bytes"`
	MaxLinksPerPage int   `yaml:"max_links_per_page"`
}

// RetryConfig bounds retries of transient fetch failures.
type RetryConfig struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries   int      `yaml:"max_retries"`
	InitialDelay Duration `yaml:"initial_delay"`
}

// RobotsConfig configures robots.txt handling.
type RobotsConfig struct {
	Respect   bool     `yaml:"respect"`
	UserAgent string   `yaml:"user_agent"`
	Timeout   Duration `yaml:"timeout"`
}

// RateLimitConfig applies a token bucket per domain.
type RateLimitConfig struct {
	Requests int      `yaml:"requests"`
	Window   Duration `yaml:"window"`
}

// RenderingConfig controls optional JavaScript rendering.
type RenderingConfig struct {
	Enabled            bool     `yaml:"enabled"`
	Timeout            Duration `yaml:"timeout"`
	WaitForSelector    string   `yaml:"wait_for_selector"`
	ConcurrentSessions int      `yaml:"concurrent_sessions"`
	DisableHeadless    bool     `yaml:"disable_headless"`
}

// PreprocessConfig configures HTML sanitisation before content extraction.
type PreprocessConfig struct {
	RemoveScripts bool     `yaml:"remove_scripts"`
	RemoveStyles  bool     `yaml:"remove_styles"`
	RemoveAds     bool     `yaml:"remove_ads"`
	AdSelectors   []string `yaml:"ad_selectors"`
}

// SQLConfig describes the optional relational persistence sink.
type SQLConfig struct {
	Driver          string   `yaml:"driver"`
	DSN             string   `yaml:"dsn"`
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
	AutoMigrate     bool     `yaml:"auto_migrate"`
}

// LoggingConfig selects log verbosity and format.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Structured bool   `yaml:"structured"`
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		Crawl: CrawlConfig{
			MaxDepth:        1,
			MaxPages:        30,
			UserAgent:       "sitecrawler/1.0",
			Headers:         map[string]string{},
			RequestTimeout:  DurationFrom(15 * time.Second),
			RequestDelay:    DurationFrom(1 * time.Second),
			SameDomainOnly:  true,
			MaxBodyBytes:    6 * 1024 * 1024,
			MaxLinksPerPage: 200,
		},
		Retry: RetryConfig{
			MaxRetries:   2,
			InitialDelay: DurationFrom(1 * time.Second),
		},
		Robots: RobotsConfig{
			Respect:   true,
			UserAgent: "sitecrawler/1.0",
			Timeout:   DurationFrom(10 * time.Second),
		},
		Rendering: RenderingConfig{
			Enabled:            false,
			Timeout:            DurationFrom(15 * time.Second),
			ConcurrentSessions: 2,
		},
		Preprocess: PreprocessConfig{
			RemoveScripts: true,
			RemoveStyles:  false,
			RemoveAds:     true,
			AdSelectors: []string{
				"[class*='advert']",
				"[class*='ad-']",
				"iframe[src*='ads']",
			},
		},
		DB: SQLConfig{
			AutoMigrate: true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Structured: true,
		},
	}
}

// Load reads, merges, and validates configuration from a YAML file.
func Load(path string) (*Config, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close()
	return LoadFromReader(fh)
}

// LoadFromReader decodes configuration from an arbitrary reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces required invariants for the crawler configuration.
func (c Config) Validate() error {
	if len(c.Crawl.Seeds) == 0 {
		return errors.New("at least one crawl seed must be configured")
	}
	for i, seed := range c.Crawl.Seeds {
		if seed == "" {
			return fmt.Errorf("seed %d is empty", i)
		}
	}
	if c.Crawl.MaxDepth < 0 {
		return fmt.Errorf("crawl.max_depth must be >= 0 (got %d)", c.Crawl.MaxDepth)
	}
	if c.Crawl.MaxPages < 1 {
		return fmt.Errorf("crawl.max_pages must be >= 1 (got %d)", c.Crawl.MaxPages)
	}
	if c.Crawl.RequestTimeout.Duration <= 0 {
		return errors.New("crawl.request_timeout must be positive")
	}
	if c.Crawl.MaxBodyBytes <= 0 {
		return fmt.Errorf("crawl.max_body_bytes must be > 0 (got %d)", c.Crawl.MaxBodyBytes)
	}
	if strings.TrimSpace(c.Crawl.UserAgent) == "" {
		return errors.New("crawl.user_agent must be set")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be >= 0 (got %d)", c.Retry.MaxRetries)
	}
	if c.Retry.InitialDelay.Duration < 0 {
		return errors.New("retry.initial_delay must not be negative")
	}
	if c.Robots.Respect && strings.TrimSpace(c.Robots.UserAgent) == "" {
		return errors.New("robots.user_agent must be set when robots.respect is true")
	}
	if rl := c.Crawl.RateLimitPerDomain; rl.Requests < 0 {
		return fmt.Errorf("crawl.rate_limit_per_domain.requests must be >= 0 (got %d)", rl.Requests)
	}
	return nil
}

func (c *Config) normalise() {
	seeds := make([]string, 0, len(c.Crawl.Seeds))
	for _, seed := range c.Crawl.Seeds {
		seed = strings.TrimSpace(seed)
		if seed != "" {
			seeds = append(seeds, seed)
		}
	}
	c.Crawl.Seeds = seeds

	c.Crawl.UserAgent = strings.TrimSpace(c.Crawl.UserAgent)
	c.Robots.UserAgent = strings.TrimSpace(c.Robots.UserAgent)
	c.Crawl.BaseDomain = strings.ToLower(strings.TrimSpace(c.Crawl.BaseDomain))

	c.Crawl.AllowedPathPatterns = dropBlank(c.Crawl.AllowedPathPatterns)
	c.Crawl.ExcludedPathPatterns = dropBlank(c.Crawl.ExcludedPathPatterns)
	if c.Crawl.Headers == nil {
		c.Crawl.Headers = map[string]string{}
	}
}

func dropBlank(values []string) []string {
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			cleaned = append(cleaned, v)
		}
	}
	return cleaned
}

// Enabled reports whether per-domain rate limiting is active.
func (r RateLimitConfig) Enabled() bool {
	return r.Requests > 0 && !r.Window.IsZero()
}
