package cache

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Sweep removes page entries whose age at now is ttl or older. It is
// idempotent and safe to run concurrently with readers: removal of an entry
// a reader has already opened does not disturb the read. Malformed files are
// left alone; Get already treats them as absent.
func (p *Pages) Sweep(ttl time.Duration, now time.Time) (int, error) {
	if p == nil || p.Dir == "" || ttl <= 0 {
		return 0, nil
	}
	removed := 0
	err := filepath.WalkDir(p.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		var e Entry
		if err := json.Unmarshal(b, &e); err != nil {
			return nil
		}
		if now.Sub(e.FetchedAt) < ttl {
			return nil
		}
		if os.Remove(path) == nil {
			removed++
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		err = nil
	}
	return removed, err
}

// Clear removes the cache directory and recreates it empty.
func (p *Pages) Clear() error {
	if p == nil || strings.TrimSpace(p.Dir) == "" {
		return errors.New("cache dir not configured")
	}
	if err := os.RemoveAll(p.Dir); err != nil {
		return err
	}
	return os.MkdirAll(p.Dir, 0o755)
}
