// Package app wires the harvester subsystems together for hosts: one shared
// governor and page cache, the pipeline runner, and artifact writing.
package app

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ubglab/ruleharvest/internal/bgg"
	"github.com/ubglab/ruleharvest/internal/cache"
	"github.com/ubglab/ruleharvest/internal/fetch"
	"github.com/ubglab/ruleharvest/internal/governor"
	"github.com/ubglab/ruleharvest/internal/harvest"
	"github.com/ubglab/ruleharvest/internal/llm"
	"github.com/ubglab/ruleharvest/internal/manifest"
	"github.com/ubglab/ruleharvest/internal/narrate"
	"github.com/ubglab/ruleharvest/internal/pdfingest"
	"github.com/ubglab/ruleharvest/internal/pipeline"
	"github.com/ubglab/ruleharvest/internal/proofsheet"
	"github.com/ubglab/ruleharvest/internal/slug"
	"github.com/ubglab/ruleharvest/internal/storyboard"
)

// App owns the wired subsystems for one configuration.
type App struct {
	cfg      Config
	pages    *cache.Pages
	runner   *pipeline.Runner
	narrator pipeline.Narrator
}

// New wires an App from cfg. The same governor spaces every outbound
// request; the page cache is shared between the rules fetcher and the BGG
// client.
func New(cfg Config) *App {
	gov := governor.New(cfg.MinGap)
	if cfg.GlobalGap > 0 {
		gov.SetGlobalGap(cfg.GlobalGap)
	}
	pages := &cache.Pages{Dir: cfg.pageCacheDir()}

	fetcher := &fetch.Fetcher{
		Client:      http.DefaultClient,
		Cache:       pages,
		Governor:    gov,
		Policy:      cfg.FetchPolicy,
		FreshWindow: cfg.FreshWindow,
		HardTTL:     cfg.HardTTL,
	}

	runner := &pipeline.Runner{
		BGG: &bgg.Client{
			Cache:    pages,
			Governor: gov,
			Timeout:  cfg.BGGTimeout,
			CacheTTL: cfg.BGGCacheTTL,
			QPS:      cfg.BGGQPS,
		},
		Harvester: &harvest.Harvester{
			Resolver: &slug.Resolver{Fetcher: fetcher, BaseURL: cfg.RulesBaseURL},
		},
		PDFOptions: pdfingest.Options{
			OCRThreshold: cfg.OCRThreshold,
			Rasterizer:   cfg.RasterizerBin,
			OCRBinary:    cfg.OCRBin,
		},
		HarvestOptions: harvest.Options{
			AlsoOverview:    cfg.AlsoOverview,
			MaxImages:       cfg.MaxImages,
			ProbeRemoteSize: cfg.ProbeRemoteSize,
		},
		DisableWeb:       cfg.DisableWeb,
		Ceiling:          cfg.Ceiling,
		DeterministicIDs: cfg.DeterministicIDs,
	}

	a := &App{cfg: cfg, pages: pages, runner: runner}
	template := &narrate.TemplateNarrator{Lang: cfg.Language}
	if cfg.LLMModel != "" {
		a.narrator = &narrate.LLMNarrator{
			Client:   llm.New(cfg.LLMBaseURL, cfg.LLMAPIKey),
			Model:    cfg.LLMModel,
			Cache:    &cache.Replies{Dir: cfg.replyCacheDir()},
			Template: template,
		}
	} else {
		a.narrator = &pipeline.TemplateNarrator{Inner: *template}
	}
	return a
}

// Runner exposes the wired pipeline for hosts that drive it directly.
func (a *App) Runner() *pipeline.Runner { return a.runner }

// Run executes the pipeline for the configured inputs and writes
// manifest.json, storyboard.json, and the optional proof sheet under the
// output directory.
func (a *App) Run(ctx context.Context) (*manifest.IngestionManifest, *storyboard.Storyboard, error) {
	m, err := a.runner.Run(ctx, pipeline.Request{
		Title:      a.cfg.Title,
		BGGIDOrURL: a.cfg.BGGIDOrURL,
		PDFPath:    a.cfg.PDFPath,
	})
	if err != nil {
		return nil, nil, err
	}
	for _, reason := range m.Partial {
		log.Warn().Str("reason", reason).Msg("pipeline stage degraded")
	}

	sb, err := a.runner.Storyboard(ctx, m, a.narrator, storyboard.Options{
		Width:  a.cfg.Width,
		Height: a.cfg.Height,
		FPS:    a.cfg.FPS,
	})
	if err != nil {
		return m, nil, err
	}

	if err := a.writeArtifacts(m, sb); err != nil {
		return m, sb, err
	}
	return m, sb, nil
}

func (a *App) writeArtifacts(m *manifest.IngestionManifest, sb *storyboard.Storyboard) error {
	outDir := a.cfg.outDir()
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	mData, err := m.Encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(outDir, "manifest.json"), mData, 0o644); err != nil {
		return err
	}
	sbData, err := sb.Encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(outDir, "storyboard.json"), sbData, 0o644); err != nil {
		return err
	}
	if a.cfg.ProofSheet {
		// Advisory artifact: log and continue on failure.
		path := filepath.Join(outDir, "proofsheet.pdf")
		if err := proofsheet.Write(sb, m, path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("proof sheet render failed")
		}
	}
	log.Info().Str("dir", outDir).Int("scenes", len(sb.Scenes)).Int("images", len(m.Assets.Images)).Msg("artifacts written")
	return nil
}

// SweepCache removes page-cache entries older than ttl. Idempotent;
// failures are advisory.
func (a *App) SweepCache(ttl time.Duration) {
	removed, err := a.pages.Sweep(ttl, time.Now())
	if err != nil {
		log.Warn().Err(err).Msg("cache sweep failed")
		return
	}
	if removed > 0 {
		log.Debug().Int("removed", removed).Msg("cache sweep")
	}
}
