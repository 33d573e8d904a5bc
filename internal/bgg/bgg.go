// Package bgg fetches and normalizes BoardGameGeek XML API v2 thing
// records, with a TTL cache and per-host QPS throttling.
package bgg

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/ubglab/ruleharvest/internal/cache"
	"github.com/ubglab/ruleharvest/internal/fault"
	"github.com/ubglab/ruleharvest/internal/governor"
)

const (
	// DefaultBaseURL is the XML API v2 root.
	DefaultBaseURL = "https://boardgamegeek.com/xmlapi2"
	// DefaultCacheTTL is how long a thing record is served from disk.
	DefaultCacheTTL = 24 * time.Hour
	// DefaultQPS is the per-host request ceiling.
	DefaultQPS = 2.0
	// DefaultTimeout bounds one API request.
	DefaultTimeout = 5 * time.Second

	maxBodyBytes = 4 << 20
)

// Link is one flattened taxonomy entry from the API.
type Link struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

// Stats carries the community rating snapshot.
type Stats struct {
	Average    float64 `json:"average,omitempty"`
	UsersRated int     `json:"usersRated,omitempty"`
	Rank       int     `json:"rank,omitempty"`
}

// Metadata is the normalized thing record. On failure only ID, Error and
// FetchedAt are populated, so callers can proceed with partial data.
type Metadata struct {
	ID          string    `json:"id"`
	Title       string    `json:"title,omitempty"`
	Year        int       `json:"year,omitempty"`
	MinPlayers  int       `json:"minPlayers,omitempty"`
	MaxPlayers  int       `json:"maxPlayers,omitempty"`
	PlayingTime int       `json:"playingTime,omitempty"`
	MinAge      int       `json:"minAge,omitempty"`
	Description string    `json:"description,omitempty"`
	Image       string    `json:"image,omitempty"`
	Thumbnail   string    `json:"thumbnail,omitempty"`
	Categories  []Link    `json:"categories,omitempty"`
	Mechanics   []Link    `json:"mechanics,omitempty"`
	Designers   []Link    `json:"designers,omitempty"`
	Artists     []Link    `json:"artists,omitempty"`
	Publishers  []Link    `json:"publishers,omitempty"`
	Expansions  []Link    `json:"expansions,omitempty"`
	Families    []Link    `json:"families,omitempty"`
	Stats       Stats     `json:"stats"`
	Error       string    `json:"error,omitempty"`
	FetchedAt   time.Time `json:"fetchedAt"`
}

var (
	numericID  = regexp.MustCompile(`^\d+$`)
	idFromPath = regexp.MustCompile(`/boardgame/(\d+)`)
)

// ExtractID accepts a bare numeric ID or a BGG game URL.
func ExtractID(idOrURL string) (string, error) {
	s := strings.TrimSpace(idOrURL)
	if numericID.MatchString(s) {
		return s, nil
	}
	if m := idFromPath.FindStringSubmatch(s); m != nil {
		return m[1], nil
	}
	return "", fault.Newf(fault.BGGInvalidID, "no numeric BGG id in %q", idOrURL)
}

// Client is safe for concurrent use. Zero-value fields mean defaults;
// CacheTTL and QPS additionally honor BGG_CACHE_TTL_MS and
// BGG_RATE_LIMIT_QPS when unset.
type Client struct {
	HTTP     *http.Client
	Cache    *cache.Pages
	Governor *governor.Governor

	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
	QPS      float64
	// MaxRetries bounds retries of transient failures. Zero means the
	// default of 2; negative disables retrying.
	MaxRetries int

	Now func() time.Time

	initOnce sync.Once
	host     string
}

func (c *Client) init() {
	c.initOnce.Do(func() {
		base := c.baseURL()
		if u, err := url.Parse(base); err == nil {
			c.host = u.Hostname()
		}
		if c.Governor != nil && c.host != "" {
			c.Governor.SetHostQPS(c.host, c.qps())
		}
	})
}

// Fetch resolves idOrURL and returns the normalized record. Every failure
// past ID extraction yields a sentinel Metadata alongside a BGG_PARTIAL
// error, so pipelines can continue with what they have.
func (c *Client) Fetch(ctx context.Context, idOrURL string) (*Metadata, error) {
	id, err := ExtractID(idOrURL)
	if err != nil {
		return nil, err
	}
	c.init()

	key := fmt.Sprintf("%s/thing?id=%s&stats=1", strings.TrimRight(c.baseURL(), "/"), id)
	now := c.now()
	if c.Cache != nil {
		if e, ok := c.Cache.Get(key); ok && cache.IsFresh(e, c.cacheTTL(), now) {
			if md, perr := normalize([]byte(e.Body), id); perr == nil {
				md.FetchedAt = e.FetchedAt
				return md, nil
			}
		}
	}

	body, status, err := c.request(ctx, key)
	if err != nil {
		return c.partial(id, err.Error(), now)
	}
	if status < 200 || status > 299 {
		return c.partial(id, fmt.Sprintf("BGG API request failed with status %d", status), now)
	}
	md, err := normalize(body, id)
	if err != nil {
		return c.partial(id, err.Error(), now)
	}
	if c.Cache != nil {
		if err := c.Cache.Put(key, cache.Entry{URL: key, Body: string(body), Status: status, FetchedAt: now}); err != nil {
			log.Warn().Err(err).Str("kind", string(fault.CacheWrite)).Str("key", key).Msg("bgg cache write failed")
		}
	}
	md.FetchedAt = now
	return md, nil
}

func (c *Client) partial(id, msg string, now time.Time) (*Metadata, error) {
	md := &Metadata{ID: id, Error: msg, FetchedAt: now}
	return md, fault.Newf(fault.BGGPartial, "bgg id %s: %s", id, msg)
}

// request performs the governed GET with bounded retry of 5xx and
// transport errors.
func (c *Client) request(ctx context.Context, rawURL string) (body []byte, status int, err error) {
	op := func() error {
		body, status, err = c.once(ctx, rawURL)
		return err
	}
	bo := backoff.BackOff(backoff.NewExponentialBackOff())
	if c.Governor != nil {
		bo = c.Governor.NewBackOff()
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.retries()), ctx)
	if rerr := backoff.Retry(op, policy); rerr != nil {
		return nil, status, rerr
	}
	return body, status, nil
}

func (c *Client) once(ctx context.Context, rawURL string) ([]byte, int, error) {
	if c.Governor != nil {
		if _, err := c.Governor.Acquire(ctx, c.host); err != nil {
			return nil, 0, backoff.Permanent(err)
		}
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, backoff.Permanent(err)
	}
	if c.Governor != nil {
		req.Header.Set("User-Agent", c.Governor.UserAgent())
	}
	req.Header.Set("Accept", "application/xml, text/xml")

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, backoff.Permanent(ctx.Err())
		}
		return nil, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, fmt.Errorf("BGG API request failed with status %d", resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, backoff.Permanent(err)
	}
	return b, resp.StatusCode, nil
}

func (c *Client) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return DefaultBaseURL
}

func (c *Client) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

func (c *Client) cacheTTL() time.Duration {
	if c.CacheTTL > 0 {
		return c.CacheTTL
	}
	if v := os.Getenv("BGG_CACHE_TTL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return DefaultCacheTTL
}

func (c *Client) qps() float64 {
	if c.QPS > 0 {
		return c.QPS
	}
	if v := os.Getenv("BGG_RATE_LIMIT_QPS"); v != "" {
		if qps, err := strconv.ParseFloat(v, 64); err == nil && qps > 0 {
			return qps
		}
	}
	return DefaultQPS
}

func (c *Client) retries() uint64 {
	switch {
	case c.MaxRetries > 0:
		return uint64(c.MaxRetries)
	case c.MaxRetries < 0:
		return 0
	}
	return 2
}

func (c *Client) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
