package fetch

import (
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ubglab/ruleharvest/internal/cache"
	"github.com/ubglab/ruleharvest/internal/fault"
	"github.com/ubglab/ruleharvest/internal/governor"
)

func newTestFetcher(t *testing.T, now time.Time) (*Fetcher, *cache.Pages) {
	t.Helper()
	pages := &cache.Pages{Dir: t.TempDir()}
	f := &Fetcher{
		Cache:    pages,
		Governor: governor.New(time.Millisecond),
		Policy:   PermitAll,
		Now:      func() time.Time { return now },
	}
	return f, pages
}

func TestFetchHTML_FreshEntryIsHitWithoutNetwork(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte("live"))
	}))
	defer srv.Close()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f, pages := newTestFetcher(t, now)
	u := srv.URL + "/rules"
	if err := pages.Put(u, cache.Entry{URL: u, Body: "cached", Status: 200, FetchedAt: now.Add(-12 * time.Hour)}); err != nil {
		t.Fatal(err)
	}

	res, err := f.FetchHTML(context.Background(), u)
	if err != nil {
		t.Fatalf("FetchHTML: %v", err)
	}
	if res.Outcome != Hit {
		t.Fatalf("outcome = %s, want %s", res.Outcome, Hit)
	}
	if string(res.Body) != "cached" {
		t.Fatalf("body = %q, want cached copy", res.Body)
	}
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Fatalf("server saw %d requests, want 0", n)
	}
}

func TestFetchHTML_StaleEntryRevalidatedBy304(t *testing.T) {
	var heads int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("unexpected %s request", r.Method)
		}
		atomic.AddInt32(&heads, 1)
		if r.Header.Get("If-Modified-Since") == "" {
			t.Error("missing If-Modified-Since header")
		}
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f, pages := newTestFetcher(t, now)
	u := srv.URL + "/rules"
	fetchedAt := now.Add(-48 * time.Hour)
	if err := pages.Put(u, cache.Entry{URL: u, Body: "cached", Status: 200, FetchedAt: fetchedAt}); err != nil {
		t.Fatal(err)
	}

	res, err := f.FetchHTML(context.Background(), u)
	if err != nil {
		t.Fatalf("FetchHTML: %v", err)
	}
	if res.Outcome != Revalidated {
		t.Fatalf("outcome = %s, want %s", res.Outcome, Revalidated)
	}
	if string(res.Body) != "cached" {
		t.Fatalf("body = %q, want cached copy", res.Body)
	}
	if n := atomic.LoadInt32(&heads); n != 1 {
		t.Fatalf("server saw %d HEAD requests, want 1", n)
	}
	e, ok := pages.Get(u)
	if !ok {
		t.Fatal("entry missing after revalidation")
	}
	if !e.FetchedAt.After(fetchedAt) {
		t.Fatalf("fetchedAt not refreshed: %v", e.FetchedAt)
	}
}

func TestFetchHTML_ExpiredEntryForcesMiss(t *testing.T) {
	var gets int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			atomic.AddInt32(&gets, 1)
		}
		_, _ = w.Write([]byte("fresh body"))
	}))
	defer srv.Close()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f, pages := newTestFetcher(t, now)
	u := srv.URL + "/rules"
	if err := pages.Put(u, cache.Entry{URL: u, Body: "ancient", Status: 200, FetchedAt: now.Add(-8 * 24 * time.Hour)}); err != nil {
		t.Fatal(err)
	}

	res, err := f.FetchHTML(context.Background(), u)
	if err != nil {
		t.Fatalf("FetchHTML: %v", err)
	}
	if res.Outcome != Miss {
		t.Fatalf("outcome = %s, want %s", res.Outcome, Miss)
	}
	if string(res.Body) != "fresh body" {
		t.Fatalf("body = %q, want refetched body", res.Body)
	}
	if n := atomic.LoadInt32(&gets); n != 1 {
		t.Fatalf("server saw %d GET requests, want 1", n)
	}
	e, ok := pages.Get(u)
	if !ok || e.Body != "fresh body" {
		t.Fatal("cache not updated with refetched body")
	}
}

func TestFetchHTML_FailedRevalidationRefetches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// HEAD answered 200, so the entry cannot be kept.
		_, _ = w.Write([]byte("changed"))
	}))
	defer srv.Close()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f, pages := newTestFetcher(t, now)
	u := srv.URL + "/rules"
	if err := pages.Put(u, cache.Entry{URL: u, Body: "cached", Status: 200, FetchedAt: now.Add(-48 * time.Hour)}); err != nil {
		t.Fatal(err)
	}

	res, err := f.FetchHTML(context.Background(), u)
	if err != nil {
		t.Fatalf("FetchHTML: %v", err)
	}
	if res.Outcome != Miss {
		t.Fatalf("outcome = %s, want %s", res.Outcome, Miss)
	}
	if string(res.Body) != "changed" {
		t.Fatalf("body = %q, want refetched body", res.Body)
	}
}

func TestFetchHTML_FallbackServesStaleOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f, pages := newTestFetcher(t, now)
	f.MaxRetries = 1
	u := srv.URL + "/rules"
	if err := pages.Put(u, cache.Entry{URL: u, Body: "stale copy", Status: 200, FetchedAt: now.Add(-8 * 24 * time.Hour)}); err != nil {
		t.Fatal(err)
	}

	res, err := f.FetchHTML(context.Background(), u)
	if err != nil {
		t.Fatalf("fallback must not return an error, got %v", err)
	}
	if res.Outcome != Fallback {
		t.Fatalf("outcome = %s, want %s", res.Outcome, Fallback)
	}
	if string(res.Body) != "stale copy" {
		t.Fatalf("body = %q, want stale copy", res.Body)
	}
}

func TestFetchHTML_FailWithoutCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f, pages := newTestFetcher(t, now)
	u := srv.URL + "/missing"

	res, err := f.FetchHTML(context.Background(), u)
	if err == nil {
		t.Fatal("expected error for 404 with empty cache")
	}
	if res.Outcome != Fail {
		t.Fatalf("outcome = %s, want %s", res.Outcome, Fail)
	}
	if !fault.IsKind(err, fault.FetchNon2xx) {
		t.Fatalf("error kind = %v, want %s", err, fault.FetchNon2xx)
	}
	if _, ok := pages.Get(u); ok {
		t.Fatal("non-2xx response must not be cached")
	}
}

func TestFetchHTML_PolicyRejectionIsFail(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f, _ := newTestFetcher(t, now)
	f.Policy = DefaultPolicy

	res, err := f.FetchHTML(context.Background(), "http://127.0.0.1:9/rules")
	if err == nil {
		t.Fatal("expected policy rejection")
	}
	if res.Outcome != Fail {
		t.Fatalf("outcome = %s, want %s", res.Outcome, Fail)
	}
	if !fault.IsKind(err, fault.FetchPolicyDenied) {
		t.Fatalf("error kind = %v, want %s", err, fault.FetchPolicyDenied)
	}
}

func TestFetchHTML_CancellationIsFailNotFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("live"))
	}))
	defer srv.Close()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f, pages := newTestFetcher(t, now)
	u := srv.URL + "/rules"
	if err := pages.Put(u, cache.Entry{URL: u, Body: "stale copy", Status: 200, FetchedAt: now.Add(-8 * 24 * time.Hour)}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := f.FetchHTML(ctx, u)
	if err == nil {
		t.Fatal("expected error for canceled context")
	}
	if res.Outcome != Fail {
		t.Fatalf("outcome = %s, want %s", res.Outcome, Fail)
	}
	e, ok := pages.Get(u)
	if !ok || e.Body != "stale copy" {
		t.Fatal("cancellation must leave the cache untouched")
	}
}

func TestFetchHTML_GzipBodyDecompressed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept-Encoding") != "gzip" {
			t.Errorf("Accept-Encoding = %q, want gzip", r.Header.Get("Accept-Encoding"))
		}
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		_, _ = gz.Write([]byte("<html>compressed rules</html>"))
		gz.Close()
	}))
	defer srv.Close()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f, _ := newTestFetcher(t, now)

	res, err := f.FetchHTML(context.Background(), srv.URL+"/rules")
	if err != nil {
		t.Fatalf("FetchHTML: %v", err)
	}
	if string(res.Body) != "<html>compressed rules</html>" {
		t.Fatalf("body = %q, want decompressed html", res.Body)
	}
}

func TestFetchHTML_TransientServerErrorRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "hiccup", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("second try"))
	}))
	defer srv.Close()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f, _ := newTestFetcher(t, now)

	res, err := f.FetchHTML(context.Background(), srv.URL+"/rules")
	if err != nil {
		t.Fatalf("FetchHTML: %v", err)
	}
	if res.Outcome != Miss {
		t.Fatalf("outcome = %s, want %s", res.Outcome, Miss)
	}
	if string(res.Body) != "second try" {
		t.Fatalf("body = %q, want retried body", res.Body)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("server saw %d requests, want 2", n)
	}
}

func TestFetchHTML_BrowserHeadersSent(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f, _ := newTestFetcher(t, now)
	f.Governor.SetUserAgents([]string{"test-agent/9"})

	if _, err := f.FetchHTML(context.Background(), srv.URL+"/rules"); err != nil {
		t.Fatalf("FetchHTML: %v", err)
	}
	if ua := got.Get("User-Agent"); ua != "test-agent/9" {
		t.Fatalf("User-Agent = %q", ua)
	}
	if got.Get("Accept") == "" || got.Get("Accept-Language") == "" {
		t.Fatal("missing Accept headers")
	}
	if got.Get("Upgrade-Insecure-Requests") != "1" {
		t.Fatal("missing Upgrade-Insecure-Requests header")
	}
}

func TestProbeHead_ReturnsHeadersAndFinalURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/img/widget.png", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/cdn/widget.png", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/cdn/widget.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f, _ := newTestFetcher(t, now)

	final, hdr, err := f.ProbeHead(context.Background(), srv.URL+"/img/widget.png")
	if err != nil {
		t.Fatalf("ProbeHead: %v", err)
	}
	if final != srv.URL+"/cdn/widget.png" {
		t.Fatalf("final URL = %q", final)
	}
	if hdr.Get("Content-Type") != "image/png" {
		t.Fatalf("Content-Type = %q", hdr.Get("Content-Type"))
	}
}

func TestDefaultPolicy(t *testing.T) {
	cases := []struct {
		raw  string
		deny bool
	}{
		{"https://www.ultraboardgames.com/catan/game-rules.php", false},
		{"http://example.org/page", false},
		{"ftp://example.org/file", true},
		{"http://localhost/admin", true},
		{"http://127.0.0.1:8080/", true},
		{"http://10.0.0.5/", true},
		{"http://192.168.1.1/", true},
		{"http://[::1]/", true},
	}
	for _, tc := range cases {
		u, err := url.Parse(tc.raw)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.raw, err)
		}
		err = DefaultPolicy(u)
		if tc.deny && err == nil {
			t.Errorf("DefaultPolicy(%q) = nil, want error", tc.raw)
		}
		if !tc.deny && err != nil {
			t.Errorf("DefaultPolicy(%q) = %v, want nil", tc.raw, err)
		}
	}
}
