// Package fetch combines the disk cache, the politeness governor, and an
// http.Client into an outcome-typed page fetcher. Every call resolves to
// exactly one Outcome; staleness decisions follow the fresh-window /
// hard-TTL ladder.
package fetch

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/ubglab/ruleharvest/internal/cache"
	"github.com/ubglab/ruleharvest/internal/fault"
	"github.com/ubglab/ruleharvest/internal/governor"
)

// Outcome classifies how a fetch was satisfied.
type Outcome string

const (
	Hit         Outcome = "HIT"
	Revalidated Outcome = "REVALIDATED"
	Miss        Outcome = "MISS"
	Fallback    Outcome = "FALLBACK"
	Fail        Outcome = "FAIL"
)

const (
	// DefaultFreshWindow is how long a cache entry is served without any
	// network traffic.
	DefaultFreshWindow = 24 * time.Hour
	// DefaultHardTTL is the age past which an entry is refetched rather
	// than revalidated.
	DefaultHardTTL = 7 * 24 * time.Hour

	defaultTimeout   = 15 * time.Second
	defaultBodyLimit = 8 << 20
	redirectCap      = 10
)

// Result carries the body and provenance of one fetch. Body is nil only for
// Fail.
type Result struct {
	Outcome  Outcome
	Body     []byte
	FinalURL string
	Status   int
}

// Fetcher is safe for concurrent use. Zero-value durations mean defaults.
type Fetcher struct {
	Client   *http.Client
	Cache    *cache.Pages
	Governor *governor.Governor
	Policy   Policy

	FreshWindow       time.Duration
	HardTTL           time.Duration
	PerRequestTimeout time.Duration
	// MaxRetries bounds retries of transient failures on top of the first
	// attempt. Zero means the default of 2.
	MaxRetries   int
	MaxBodyBytes int64

	// Accept and AcceptLanguage override the default header values; used by
	// the BGG client to request XML through the same machinery.
	Accept         string
	AcceptLanguage string

	Now func() time.Time
}

// FetchHTML resolves url against the cache and, when needed, the network.
// The returned error is non-nil only for the Fail outcome.
func (f *Fetcher) FetchHTML(ctx context.Context, rawURL string) (*Result, error) {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return &Result{Outcome: Fail, FinalURL: rawURL}, fault.Wrap(fault.FetchNetwork, "unparseable url", err)
	}
	if err := f.policy()(u); err != nil {
		return &Result{Outcome: Fail, FinalURL: rawURL}, fault.Wrap(fault.FetchPolicyDenied, rawURL, err)
	}

	now := f.now()
	var stale *cache.Entry
	if f.Cache != nil {
		if e, ok := f.Cache.Get(rawURL); ok {
			age := cache.Age(e, now)
			switch {
			case age < f.freshWindow():
				return &Result{Outcome: Hit, Body: []byte(e.Body), FinalURL: e.URL, Status: e.Status}, nil
			case age < f.hardTTL():
				if f.revalidate(ctx, u, e) {
					refreshed := *e
					refreshed.FetchedAt = f.now()
					if err := f.Cache.Put(rawURL, refreshed); err != nil {
						log.Warn().Err(err).Str("kind", string(fault.CacheWrite)).Str("url", rawURL).Msg("cache refresh failed")
					}
					return &Result{Outcome: Revalidated, Body: []byte(e.Body), FinalURL: e.URL, Status: e.Status}, nil
				}
			}
			stale = e
		}
	}
	if err := ctx.Err(); err != nil {
		// A canceled fetch leaves the cache untouched and does not fall
		// back to stale content; cancellation is caller intent.
		return &Result{Outcome: Fail, FinalURL: rawURL}, fault.Wrap(fault.FetchNetwork, "fetch canceled", err)
	}

	body, finalURL, status, err := f.refetch(ctx, u)
	if err != nil {
		if stale != nil && ctx.Err() == nil {
			log.Warn().Err(err).Str("url", rawURL).Msg("fetch failed, serving stale cache entry")
			return &Result{Outcome: Fallback, Body: []byte(stale.Body), FinalURL: stale.URL, Status: stale.Status}, nil
		}
		return &Result{Outcome: Fail, FinalURL: rawURL}, err
	}
	if f.Cache != nil {
		entry := cache.Entry{URL: rawURL, Body: string(body), Status: status, FetchedAt: f.now()}
		if err := f.Cache.Put(rawURL, entry); err != nil {
			log.Warn().Err(err).Str("kind", string(fault.CacheWrite)).Str("url", rawURL).Msg("cache write failed")
		}
	}
	return &Result{Outcome: Miss, Body: body, FinalURL: finalURL, Status: status}, nil
}

// revalidate issues a conditional HEAD. Only a 304 keeps the entry; any
// other answer, including transport errors, forces a refetch.
func (f *Fetcher) revalidate(ctx context.Context, u *url.URL, e *cache.Entry) bool {
	if _, err := f.acquire(ctx, u.Hostname()); err != nil {
		return false
	}
	reqCtx, cancel := context.WithTimeout(ctx, f.timeout())
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, u.String(), nil)
	if err != nil {
		return false
	}
	f.setHeaders(req)
	req.Header.Set("If-Modified-Since", e.FetchedAt.UTC().Format(http.TimeFormat))
	resp, err := f.client().Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusNotModified
}

// refetch performs the network GET with governor spacing and bounded retry
// of transient failures.
func (f *Fetcher) refetch(ctx context.Context, u *url.URL) (body []byte, finalURL string, status int, err error) {
	op := func() error {
		body, finalURL, status, err = f.once(ctx, u)
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(f.newBackOff(), uint64(f.maxRetries())), ctx)
	if rerr := backoff.Retry(op, policy); rerr != nil {
		return nil, "", status, rerr
	}
	return body, finalURL, status, nil
}

func (f *Fetcher) once(ctx context.Context, u *url.URL) ([]byte, string, int, error) {
	if _, err := f.acquire(ctx, u.Hostname()); err != nil {
		return nil, "", 0, backoff.Permanent(fault.Wrap(fault.FetchNetwork, "governor wait canceled", err))
	}
	reqCtx, cancel := context.WithTimeout(ctx, f.timeout())
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", 0, backoff.Permanent(fault.Wrap(fault.FetchNetwork, "new request", err))
	}
	f.setHeaders(req)

	resp, err := f.client().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", 0, backoff.Permanent(fault.Wrap(fault.FetchNetwork, "fetch canceled", ctx.Err()))
		}
		return nil, "", 0, fault.Wrap(fault.FetchNetwork, u.String(), err)
	}
	defer resp.Body.Close()

	final := u.String()
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	switch {
	case resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return nil, final, resp.StatusCode, fault.Newf(fault.FetchNon2xx, "server error %d for %s", resp.StatusCode, final)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		io.Copy(io.Discard, resp.Body)
		return nil, final, resp.StatusCode, backoff.Permanent(fault.Newf(fault.FetchNon2xx, "status %d for %s", resp.StatusCode, final))
	}

	reader := io.Reader(resp.Body)
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, final, resp.StatusCode, backoff.Permanent(fault.Wrap(fault.FetchNetwork, "gzip body", err))
		}
		defer gz.Close()
		reader = gz
	}
	b, err := io.ReadAll(io.LimitReader(reader, f.bodyLimit()))
	if err != nil {
		if ctx.Err() != nil {
			return nil, final, resp.StatusCode, backoff.Permanent(fault.Wrap(fault.FetchNetwork, "read canceled", ctx.Err()))
		}
		return nil, final, resp.StatusCode, fault.Wrap(fault.FetchNetwork, "read body", err)
	}
	return b, final, resp.StatusCode, nil
}

// ProbeHead issues a governed HEAD request and returns the final URL after
// redirects plus the response headers. Used for optional remote image
// dimension probing.
func (f *Fetcher) ProbeHead(ctx context.Context, rawURL string) (string, http.Header, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return "", nil, fault.Wrap(fault.FetchNetwork, "unparseable url", err)
	}
	if err := f.policy()(u); err != nil {
		return "", nil, fault.Wrap(fault.FetchPolicyDenied, rawURL, err)
	}
	if _, err := f.acquire(ctx, u.Hostname()); err != nil {
		return "", nil, fault.Wrap(fault.FetchNetwork, "governor wait canceled", err)
	}
	reqCtx, cancel := context.WithTimeout(ctx, f.timeout())
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, u.String(), nil)
	if err != nil {
		return "", nil, fault.Wrap(fault.FetchNetwork, "new request", err)
	}
	f.setHeaders(req)
	resp, err := f.client().Do(req)
	if err != nil {
		return "", nil, fault.Wrap(fault.FetchNetwork, rawURL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	final := u.String()
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return final, resp.Header, fault.Newf(fault.FetchNon2xx, "status %d for %s", resp.StatusCode, final)
	}
	return final, resp.Header, nil
}

func (f *Fetcher) setHeaders(req *http.Request) {
	ua := "ruleharvest/1.0"
	if f.Governor != nil {
		ua = f.Governor.UserAgent()
	}
	req.Header.Set("User-Agent", ua)
	accept := f.Accept
	if accept == "" {
		accept = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	}
	req.Header.Set("Accept", accept)
	lang := f.AcceptLanguage
	if lang == "" {
		lang = "en-US,en;q=0.9,de;q=0.7,fr;q=0.6"
	}
	req.Header.Set("Accept-Language", lang)
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}

func (f *Fetcher) acquire(ctx context.Context, host string) (time.Duration, error) {
	if f.Governor == nil {
		return 0, ctx.Err()
	}
	return f.Governor.Acquire(ctx, host)
}

func (f *Fetcher) client() *http.Client {
	if f.Client != nil {
		// Clone to attach the redirect cap without mutating the caller's
		// client.
		c := *f.Client
		c.CheckRedirect = checkRedirect
		return &c
	}
	return &http.Client{CheckRedirect: checkRedirect}
}

func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= redirectCap {
		return errors.New("too many redirects")
	}
	if req.URL == nil || (req.URL.Scheme != "http" && req.URL.Scheme != "https") {
		return fmt.Errorf("redirect to unsupported scheme %q", req.URL.Scheme)
	}
	return nil
}

func (f *Fetcher) newBackOff() backoff.BackOff {
	if f.Governor != nil {
		return f.Governor.NewBackOff()
	}
	return backoff.NewExponentialBackOff()
}

func (f *Fetcher) policy() Policy {
	if f.Policy != nil {
		return f.Policy
	}
	return DefaultPolicy
}

func (f *Fetcher) freshWindow() time.Duration {
	if f.FreshWindow > 0 {
		return f.FreshWindow
	}
	return DefaultFreshWindow
}

func (f *Fetcher) hardTTL() time.Duration {
	if f.HardTTL > 0 {
		return f.HardTTL
	}
	return DefaultHardTTL
}

func (f *Fetcher) timeout() time.Duration {
	if f.PerRequestTimeout > 0 {
		return f.PerRequestTimeout
	}
	return defaultTimeout
}

func (f *Fetcher) maxRetries() int {
	if f.MaxRetries > 0 {
		return f.MaxRetries
	}
	return 2
}

func (f *Fetcher) bodyLimit() int64 {
	if f.MaxBodyBytes > 0 {
		return f.MaxBodyBytes
	}
	return defaultBodyLimit
}

func (f *Fetcher) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}
