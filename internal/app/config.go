package app

import (
	"os"
	"path/filepath"
	"time"

	"github.com/ubglab/ruleharvest/internal/fetch"
)

// Config holds the runtime configuration of one harvester run. Hosts fill it
// from flags, a YAML file, and the environment; zero values mean defaults.
type Config struct {
	// Inputs. At least one of Title, BGGIDOrURL, PDFPath must be set.
	Title      string
	BGGIDOrURL string
	PDFPath    string

	// OutDir receives manifest.json, storyboard.json and the optional
	// proof sheet.
	OutDir string

	// DataDir roots the disk caches. Empty falls back to DATA_DIR, then
	// ./data.
	DataDir string

	// Rules-site harvest.
	RulesBaseURL    string
	DisableWeb      bool
	AlsoOverview    bool
	MaxImages       int
	ProbeRemoteSize bool

	// Politeness and freshness.
	MinGap      time.Duration
	GlobalGap   time.Duration
	FreshWindow time.Duration
	HardTTL     time.Duration
	// Ceiling bounds the whole pipeline run; zero disables it.
	Ceiling time.Duration

	// BGG client. Zero values defer to the client's env-aware defaults.
	BGGTimeout  time.Duration
	BGGQPS      float64
	BGGCacheTTL time.Duration

	// PDF ingestion.
	OCRThreshold  float64
	RasterizerBin string
	OCRBin        string

	// Narration. Empty LLMModel keeps the deterministic templates.
	LLMBaseURL string
	LLMModel   string
	LLMAPIKey  string
	Language   string

	// Storyboard target.
	Width  int
	Height int
	FPS    int

	ProofSheet       bool
	DeterministicIDs bool
	Verbose          bool

	// FetchPolicy is the pluggable hook every outbound fetch passes
	// through. Nil means the default public-hosts-only policy.
	FetchPolicy fetch.Policy
}

// dataDir resolves the cache root: explicit config, DATA_DIR, then ./data.
func (c *Config) dataDir() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		return v
	}
	return "data"
}

func (c *Config) pageCacheDir() string {
	return filepath.Join(c.dataDir(), "pages")
}

func (c *Config) replyCacheDir() string {
	return filepath.Join(c.dataDir(), "replies")
}

func (c *Config) outDir() string {
	if c.OutDir != "" {
		return c.OutDir
	}
	return "out"
}
