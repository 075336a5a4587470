package frontier

import "testing"

func TestCanonicalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases scheme and host", "HTTPS://Example.COM/Path", "https://example.com/Path"},
		{"strips fragment", "https://example.com/page#section", "https://example.com/page"},
		{"strips trailing slash", "https://example.com/path/", "https://example.com/path"},
		{"keeps root slash", "https://example.com/", "https://example.com/"},
		{"adds root slash for bare host", "https://example.com", "https://example.com/"},
		{"removes utm params", "https://example.com/p?utm_source=x&utm_medium=y&id=1", "https://example.com/p?id=1"},
		{"removes tracking params", "https://example.com/p?fbclid=abc&gclid=def", "https://example.com/p"},
		{"sorts query params", "https://example.com/p?b=2&a=1", "https://example.com/p?a=1&b=2"},
		{"preserves path case", "https://example.com/About/Team", "https://example.com/About/Team"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Canonicalize(tc.in); got != tc.want {
				t.Fatalf("Canonicalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	inputs := []string{
		"HTTPS://Example.COM/Path/?utm_source=x&b=2&a=1#frag",
		"http://example.com",
		"https://example.com/a/b/c/",
	}
	for _, in := range inputs {
		once := Canonicalize(in)
		twice := Canonicalize(once)
		if once != twice {
			t.Errorf("Canonicalize not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestCanonicalizeInvalidURL(t *testing.T) {
	raw := "http://exa mple.com/%zz"
	if got := Canonicalize(raw); got != raw {
		t.Fatalf("invalid URL should pass through unchanged, got %q", got)
	}
}
