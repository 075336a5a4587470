package fetcher

import (
	"net"
	"net/url"
	"strings"

	"sitecrawler/pkg/types"
)

// ValidateURL enforces the scheme and SSRF constraints the crawl engine
// applies before delegating to any fetch backend: only http(s) URLs with a
// public-looking host are accepted. Loopback, unspecified, private, and
// link-local IP literals are rejected.
func ValidateURL(raw string) *types.FetchError {
	u, err := url.Parse(raw)
	if err != nil {
		return &types.FetchError{
			Kind:    types.ErrorInvalidURL,
			Message: "unparseable URL",
			Cause:   err,
		}
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return &types.FetchError{
			Kind:    types.ErrorInvalidURL,
			Message: "only http and https URLs are allowed",
		}
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return &types.FetchError{
			Kind:    types.ErrorInvalidURL,
			Message: "URL has no host",
		}
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return &types.FetchError{
			Kind:    types.ErrorInvalidURL,
			Message: "local URLs are not allowed",
		}
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsUnspecified() || ip.IsPrivate() ||
			ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
			return &types.FetchError{
				Kind:    types.ErrorInvalidURL,
				Message: "private or loopback addresses are not allowed",
			}
		}
	}
	return nil
}
