package fetcher

import (
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sitecrawler/internal/config"
	"sitecrawler/internal/processor"
	"sitecrawler/pkg/types"
)

func newTestFetcher(t *testing.T) *HTTPFetcher {
	t.Helper()
	proc := processor.New(config.PreprocessConfig{RemoveScripts: true})
	f, err := NewHTTPFetcher(Options{UserAgent: "testbot", MaxLinksPerPage: 50}, proc)
	if err != nil {
		t.Fatalf("NewHTTPFetcher: %v", err)
	}
	return f
}

func TestValidateURL(t *testing.T) {
	cases := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"public http", "http://example.com/page", false},
		{"public https", "https://example.com/", false},
		{"ftp scheme", "ftp://example.com/file", true},
		{"file scheme", "file:///etc/passwd", true},
		{"no host", "https:///path", true},
		{"localhost", "http://localhost:8080/", true},
		{"localhost subdomain", "http://svc.localhost/", true},
		{"loopback ip", "http://127.0.0.1/", true},
		{"unspecified ip", "http://0.0.0.0/", true},
		{"private 10", "http://10.1.2.3/", true},
		{"private 192.168", "http://192.168.1.1/admin", true},
		{"link local", "http://169.254.169.254/latest/meta-data", true},
		{"ipv6 loopback", "http://[::1]/", true},
		{"public ip", "http://93.184.216.34/", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateURL(tc.url)
			if tc.wantErr && err == nil {
				t.Fatalf("ValidateURL(%q) = nil, want error", tc.url)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("ValidateURL(%q) = %v, want nil", tc.url, err)
			}
			if err != nil && err.Kind != types.ErrorInvalidURL {
				t.Fatalf("error kind = %q, want %q", err.Kind, types.ErrorInvalidURL)
			}
		})
	}
}

func TestFetchExtractsTitleAndLinks(t *testing.T) {
	const page = `<html><head><title>Test Page</title></head><body>
		<a href="/about">About</a>
		<a href="https://other.example.org/x">External</a>
		<a href="mailto:hi@example.com">Mail</a>
		<a href="#section">Anchor</a>
		<a href="/about">Duplicate</a>
	</body></html>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, page)
	}))
	defer server.Close()

	f := newTestFetcher(t)
	f.client = server.Client()

	result, err := f.Fetch(context.Background(), server.URL+"/", 5*time.Second)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if result.Title != "Test Page" {
		t.Errorf("Title = %q, want %q", result.Title, "Test Page")
	}
	if result.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", result.StatusCode)
	}
	want := []string{server.URL + "/about", "https://other.example.org/x"}
	if len(result.Links) != len(want) {
		t.Fatalf("Links = %v, want %v", result.Links, want)
	}
	for i := range want {
		if result.Links[i] != want[i] {
			t.Errorf("Links[%d] = %q, want %q", i, result.Links[i], want[i])
		}
	}
	if result.Metadata["status_code"] != "200" {
		t.Errorf("metadata status_code = %q", result.Metadata["status_code"])
	}
}

func TestFetchGzipBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		io.WriteString(gz, "<html><head><title>Zipped</title></head><body>hi</body></html>")
		gz.Close()
	}))
	defer server.Close()

	f := newTestFetcher(t)
	f.client = server.Client()

	result, err := f.Fetch(context.Background(), server.URL, 5*time.Second)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if result.Title != "Zipped" {
		t.Errorf("Title = %q, want %q", result.Title, "Zipped")
	}
}

func TestFetchClientErrorNotRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	f := newTestFetcher(t)
	f.client = server.Client()

	_, err := f.Fetch(context.Background(), server.URL, 5*time.Second)
	var fe *types.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error %T is not *types.FetchError", err)
	}
	if fe.Kind != types.ErrorHTTP || fe.StatusCode != http.StatusNotFound {
		t.Fatalf("got kind=%q status=%d", fe.Kind, fe.StatusCode)
	}
	if fe.Retryable() {
		t.Fatal("404 should not be retryable")
	}
}

func TestFetchServerErrorRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	f := newTestFetcher(t)
	f.client = server.Client()

	_, err := f.Fetch(context.Background(), server.URL, 5*time.Second)
	var fe *types.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error %T is not *types.FetchError", err)
	}
	if !fe.Retryable() {
		t.Fatal("502 should be retryable")
	}
}

func TestFetchTimeoutClassified(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	f := newTestFetcher(t)
	f.client = server.Client()

	_, err := f.Fetch(context.Background(), server.URL, 50*time.Millisecond)
	var fe *types.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error %T is not *types.FetchError", err)
	}
	if fe.Kind != types.ErrorTimeout {
		t.Fatalf("kind = %q, want %q", fe.Kind, types.ErrorTimeout)
	}
	if !fe.Retryable() {
		t.Fatal("timeout should be retryable")
	}
}

func TestFetchConnectionRefusedClassifiedNetwork(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	client := server.Client()
	server.Close()

	f := newTestFetcher(t)
	f.client = client

	_, err := f.Fetch(context.Background(), url, 2*time.Second)
	var fe *types.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error %T is not *types.FetchError", err)
	}
	if fe.Kind != types.ErrorNetwork {
		t.Fatalf("kind = %q, want %q", fe.Kind, types.ErrorNetwork)
	}
}

func TestFetchBodyLimitEnforced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<html><body>"+strings.Repeat("x", 4096)+"</body></html>")
	}))
	defer server.Close()

	proc := processor.New(config.PreprocessConfig{})
	f, err := NewHTTPFetcher(Options{UserAgent: "testbot", MaxBodyBytes: 1024}, proc)
	if err != nil {
		t.Fatalf("NewHTTPFetcher: %v", err)
	}
	f.client = server.Client()

	if _, err := f.Fetch(context.Background(), server.URL, 5*time.Second); err == nil {
		t.Fatal("oversized body should fail")
	}
}

func TestExtractLinksCap(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("<html><body>")
	for i := 0; i < 20; i++ {
		sb.WriteString(`<a href="/p` + strings.Repeat("x", i+1) + `">l</a>`)
	}
	sb.WriteString("</body></html>")

	links := ExtractLinks([]byte(sb.String()), "https://example.com/", 5)
	if len(links) != 5 {
		t.Fatalf("got %d links, want 5", len(links))
	}
}

func TestCompositeRejectsPrivateTargets(t *testing.T) {
	f := newTestFetcher(t)
	composite := NewComposite(f, nil)

	_, err := composite.Fetch(context.Background(), "http://127.0.0.1:9/x", time.Second)
	var fe *types.FetchError
	if !errors.As(err, &fe) || fe.Kind != types.ErrorInvalidURL {
		t.Fatalf("expected invalid URL error, got %v", err)
	}
}

type fakeRenderer struct {
	html string
	err  error
}

func (r fakeRenderer) Render(ctx context.Context, rawURL string, timeout time.Duration) (string, string, error) {
	if r.err != nil {
		return "", "", r.err
	}
	return r.html, rawURL, nil
}

func TestCompositeUsesRenderer(t *testing.T) {
	f := newTestFetcher(t)
	composite := NewComposite(f, fakeRenderer{html: "<html><head><title>Rendered</title></head><body></body></html>"})

	result, err := composite.Fetch(context.Background(), "https://example.com/app", time.Second)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !result.Rendered {
		t.Fatal("result should be marked rendered")
	}
	if result.Title != "Rendered" {
		t.Errorf("Title = %q, want %q", result.Title, "Rendered")
	}
}

// rewriteTransport redirects every request to the test server so composite
// fetches of public-looking hostnames stay local.
type rewriteTransport struct {
	target *httptest.Server
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	targetURL := *req.URL
	parsed, err := req.URL.Parse(rt.target.URL)
	if err != nil {
		return nil, err
	}
	targetURL.Scheme = parsed.Scheme
	targetURL.Host = parsed.Host
	clone := req.Clone(req.Context())
	clone.URL = &targetURL
	return rt.target.Client().Transport.RoundTrip(clone)
}

func TestCompositeFallsBackOnRenderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<html><head><title>Plain</title></head><body></body></html>")
	}))
	defer server.Close()

	f := newTestFetcher(t)
	f.client = &http.Client{Transport: rewriteTransport{target: server}}
	composite := NewComposite(f, fakeRenderer{err: errors.New("chrome unavailable")})

	result, err := composite.Fetch(context.Background(), "http://example.com/page", 5*time.Second)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if result.Rendered {
		t.Fatal("fallback result should not be marked rendered")
	}
	if result.Title != "Plain" {
		t.Errorf("Title = %q, want %q", result.Title, "Plain")
	}
}
