// Package pathfilter applies allow/deny regular expressions to URL paths.
package pathfilter

import (
	"log/slog"
	"regexp"
)

// Filter evaluates deny patterns before allow patterns. An empty allow list
// admits everything. Malformed patterns are logged and never match: a broken
// deny pattern never blocks, a broken allow pattern never admits.
type Filter struct {
	allow []*regexp.Regexp
	deny  []*regexp.Regexp
	// allowConfigured tracks whether any allow pattern was supplied,
	// including ones that failed to compile.
	allowConfigured bool
}

// New compiles the given allow and deny patterns into a Filter.
func New(allowPatterns, denyPatterns []string, logger *slog.Logger) *Filter {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Filter{allowConfigured: len(allowPatterns) > 0}
	for _, raw := range allowPatterns {
		pat, err := regexp.Compile(raw)
		if err != nil {
			logger.Warn("ignoring invalid allow pattern", "pattern", raw, "error", err)
			continue
		}
		f.allow = append(f.allow, pat)
	}
	for _, raw := range denyPatterns {
		pat, err := regexp.Compile(raw)
		if err != nil {
			logger.Warn("ignoring invalid deny pattern", "pattern", raw, "error", err)
			continue
		}
		f.deny = append(f.deny, pat)
	}
	return f
}

// Allowed reports whether the URL path passes the filter.
func (f *Filter) Allowed(urlPath string) bool {
	if f == nil {
		return true
	}
	if urlPath == "" {
		urlPath = "/"
	}
	for _, pat := range f.deny {
		if pat.MatchString(urlPath) {
			return false
		}
	}
	if !f.allowConfigured {
		return true
	}
	for _, pat := range f.allow {
		if pat.MatchString(urlPath) {
			return true
		}
	}
	return false
}
