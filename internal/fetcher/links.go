package fetcher

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractLinks pulls outbound anchor hrefs from an HTML body, resolved
// against the page URL. Fragments are stripped, non-http(s) schemes are
// skipped, and order-preserving deduplication caps the result at maxLinks.
func ExtractLinks(body []byte, pageURL string, maxLinks int) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Attr("href")
		if !ok {
			return true
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return true
		}
		lower := strings.ToLower(href)
		for _, prefix := range []string{"javascript:", "mailto:", "tel:", "data:"} {
			if strings.HasPrefix(lower, prefix) {
				return true
			}
		}
		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return true
		}
		if abs.Host == "" {
			return true
		}
		abs.Fragment = ""
		abs.RawFragment = ""
		link := abs.String()
		if _, dup := seen[link]; dup {
			return true
		}
		seen[link] = struct{}{}
		links = append(links, link)
		return maxLinks <= 0 || len(links) < maxLinks
	})
	return links
}
