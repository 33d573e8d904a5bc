package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
)

// Replies stores narration model responses keyed by a digest of model name
// and prompt. Replays of the same prompt against the same model are served
// from disk, which keeps enriched storyboards reproducible.
type Replies struct {
	Dir string
}

// ReplyKey builds the cache key from model and prompt.
func ReplyKey(model, prompt string) string {
	h := sha256.Sum256([]byte(model + "\n\n" + prompt))
	return hex.EncodeToString(h[:])
}

func (r *Replies) pathFor(key string) string {
	return filepath.Join(r.Dir, "replies", key+".json")
}

// Get returns the cached reply, if any.
func (r *Replies) Get(key string) ([]byte, bool) {
	if r == nil || r.Dir == "" {
		return nil, false
	}
	b, err := os.ReadFile(r.pathFor(key))
	if err != nil {
		return nil, false
	}
	return b, true
}

// Save writes a reply. Like all cache writes this is advisory; callers log
// and continue on error.
func (r *Replies) Save(key string, data []byte) error {
	if r == nil || r.Dir == "" {
		return errors.New("cache dir not configured")
	}
	p := r.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}
