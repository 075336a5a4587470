package frontier

import (
	"net/url"
	"strings"
)

// trackingParams are query parameters stripped during canonicalisation.
// Parameters prefixed with "utm_" are stripped as well.
var trackingParams = map[string]struct{}{
	"ref":    {},
	"source": {},
	"fbclid": {},
	"gclid":  {},
	"gclsrc": {},
	"dclid":  {},
	"wbraid": {},
	"gbraid": {},
	"_ga":    {},
	"_gid":   {},
	"mc_cid": {},
	"mc_eid": {},
}

// Canonicalize normalises a URL into a stable deduplication key: scheme and
// host are lower-cased, the fragment is dropped, tracking query parameters
// are removed, and trailing slashes are trimmed except for the root path.
// It never fails; on a parse error the original string is returned as a
// degraded-but-stable key.
func Canonicalize(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			lower := strings.ToLower(key)
			if _, drop := trackingParams[lower]; drop || strings.HasPrefix(lower, "utm_") {
				q.Del(key)
			}
		}
		// Encode sorts keys, which also makes parameter order irrelevant.
		u.RawQuery = q.Encode()
	}

	switch {
	case u.Path == "" && u.Host != "":
		u.Path = "/"
	case len(u.Path) > 1 && strings.HasSuffix(u.Path, "/"):
		u.Path = strings.TrimRight(u.Path, "/")
		if u.Path == "" {
			u.Path = "/"
		}
	}

	return u.String()
}
