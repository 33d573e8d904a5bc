// Package cache is the persistent, content-addressed store for fetched
// responses and model replies. The cache is advisory: readers treat any
// malformed entry as absent and writers log failures instead of surfacing
// them.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Entry is the on-disk record of one fetched response. The JSON layout is a
// wire contract: {url, body, status, fetchedAt}.
type Entry struct {
	URL       string    `json:"url"`
	Body      string    `json:"body"`
	Status    int       `json:"status"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Pages stores entries as <Dir>/<host>/<safeKey>.json, keyed by request URL.
// Writes are atomic (temp file + rename); readers never observe a partial
// entry. There is no eviction besides the explicit TTL sweep.
type Pages struct {
	Dir string
}

// Get returns the entry stored under key, or ok=false when the key is
// absent, the file is malformed, or the stored URL does not match the key
// (a path collision counts as a miss).
func (p *Pages) Get(key string) (*Entry, bool) {
	if p == nil || p.Dir == "" {
		return nil, false
	}
	b, err := os.ReadFile(p.entryPath(key))
	if err != nil {
		return nil, false
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, false
	}
	if e.URL != key {
		return nil, false
	}
	return &e, true
}

// Put writes the entry under key, creating the host directory lazily. The
// write is temp+rename so concurrent readers see either the old or the new
// entry, never a torn one.
func (p *Pages) Put(key string, e Entry) error {
	if p == nil || p.Dir == "" {
		return errors.New("cache dir not configured")
	}
	if e.URL == "" {
		e.URL = key
	}
	path := p.entryPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(&e)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".entry-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Delete removes the entry under key. Missing entries are not an error.
func (p *Pages) Delete(key string) error {
	if p == nil || p.Dir == "" {
		return nil
	}
	err := os.Remove(p.entryPath(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Age returns the wall time elapsed since the entry was fetched.
func Age(e *Entry, now time.Time) time.Duration {
	return now.Sub(e.FetchedAt)
}

// IsFresh reports whether the entry is younger than ttl at the given time.
func IsFresh(e *Entry, ttl time.Duration, now time.Time) bool {
	return Age(e, now) < ttl
}

func (p *Pages) entryPath(key string) string {
	host := "misc"
	if u, err := url.Parse(key); err == nil && u.Host != "" {
		host = strings.ToLower(u.Host)
	}
	return filepath.Join(p.Dir, sanitizeSegment(host), SafeKey(key)+".json")
}

// SafeKey derives the file-name-safe slug for a URL: the scheme is dropped,
// the remainder is lowercased with non [a-z0-9._-] runs collapsed to single
// hyphens, the result is length-capped, and a short content hash is appended
// so distinct URLs never share a file name by accident.
func SafeKey(rawURL string) string {
	tail := rawURL
	if i := strings.Index(tail, "://"); i >= 0 {
		tail = tail[i+3:]
	}
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		tail = strings.TrimPrefix(tail, u.Host)
	}
	slug := sanitizeSegment(tail)
	if slug == "" {
		slug = "root"
	}
	if len(slug) > 80 {
		slug = slug[:80]
		slug = strings.TrimRight(slug, "-")
	}
	sum := sha256.Sum256([]byte(rawURL))
	return slug + "-" + hex.EncodeToString(sum[:5])
}

func sanitizeSegment(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	lastHyphen := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
