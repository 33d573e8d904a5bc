// Command ruleharvest is a thin CLI host over the ingestion core: it turns a
// game title, a BGG id, and/or a rulebook PDF into manifest.json and
// storyboard.json.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ubglab/ruleharvest/internal/app"
	"github.com/ubglab/ruleharvest/internal/fault"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var (
		cfg        app.Config
		configPath string
		envFile    string
		sweepTTL   time.Duration
	)

	flag.StringVar(&cfg.Title, "title", "", "Game title to resolve against the rules site")
	flag.StringVar(&cfg.BGGIDOrURL, "bgg", "", "BGG numeric id or boardgame URL")
	flag.StringVar(&cfg.PDFPath, "pdf", "", "Path to a rulebook PDF")
	flag.StringVar(&cfg.OutDir, "out", "out", "Directory for manifest.json and storyboard.json")
	flag.StringVar(&cfg.DataDir, "data", os.Getenv("DATA_DIR"), "Root directory for disk caches")
	flag.StringVar(&cfg.RulesBaseURL, "rules.base", "", "Rules site base URL (default ultraboardgames.com)")
	flag.BoolVar(&cfg.DisableWeb, "rules.disable", false, "Skip the external component harvest")
	flag.BoolVar(&cfg.AlsoOverview, "rules.overview", false, "Also harvest the game overview page")
	flag.IntVar(&cfg.MaxImages, "rules.maxImages", 0, "Cap on harvested images (default 10)")
	flag.BoolVar(&cfg.ProbeRemoteSize, "rules.probeSize", os.Getenv("UBG_PROBE_SIZE") == "1", "HEAD-probe unknown image dimensions")
	flag.DurationVar(&cfg.MinGap, "politeness.minGap", 0, "Minimum gap between requests to one host (default 1s)")
	flag.DurationVar(&cfg.GlobalGap, "politeness.globalGap", 0, "Minimum gap across all hosts (0 disables)")
	flag.DurationVar(&cfg.FreshWindow, "cache.freshWindow", 0, "Serve cached pages without network below this age (default 24h)")
	flag.DurationVar(&cfg.HardTTL, "cache.hardTTL", 0, "Refetch cached pages past this age (default 168h)")
	flag.DurationVar(&sweepTTL, "cache.sweep", 0, "Remove cache entries older than this before running (0 disables)")
	flag.DurationVar(&cfg.Ceiling, "ceiling", 0, "Global time ceiling for one run (0 disables)")
	flag.DurationVar(&cfg.BGGTimeout, "bgg.timeout", 0, "Per-request BGG timeout (default 5s)")
	flag.Float64Var(&cfg.BGGQPS, "bgg.qps", 0, "BGG request ceiling in queries per second (default 2)")
	flag.DurationVar(&cfg.BGGCacheTTL, "bgg.cacheTTL", 0, "BGG cache freshness window (default 24h)")
	flag.Float64Var(&cfg.OCRThreshold, "ocr.threshold", 0, "Page confidence below which OCR runs (default 0.5)")
	flag.StringVar(&cfg.RasterizerBin, "ocr.rasterizer", "", "Rasterizer binary (default pdftoppm)")
	flag.StringVar(&cfg.OCRBin, "ocr.binary", "", "OCR binary (default tesseract)")
	flag.StringVar(&cfg.LLMBaseURL, "llm.base", os.Getenv("LLM_BASE_URL"), "OpenAI-compatible base URL for narration polish")
	flag.StringVar(&cfg.LLMModel, "llm.model", os.Getenv("LLM_MODEL"), "Narration model; empty keeps deterministic templates")
	flag.StringVar(&cfg.LLMAPIKey, "llm.key", os.Getenv("LLM_API_KEY"), "API key for the narration model")
	flag.StringVar(&cfg.Language, "lang", "", "Narration language: en, de, fr or es")
	flag.IntVar(&cfg.Width, "video.width", 0, "Storyboard width (default 1920)")
	flag.IntVar(&cfg.Height, "video.height", 0, "Storyboard height (default 1080)")
	flag.IntVar(&cfg.FPS, "video.fps", 0, "Storyboard frame rate (default 30)")
	flag.BoolVar(&cfg.ProofSheet, "proofsheet", false, "Also render a PDF proof sheet")
	flag.BoolVar(&cfg.DeterministicIDs, "deterministicIDs", false, "Derive manifest ids from the game slug instead of random UUIDs")
	flag.BoolVar(&cfg.Verbose, "v", false, "Enable debug logging")
	flag.StringVar(&configPath, "config", "", "Optional YAML config file")
	flag.StringVar(&envFile, "env", ".env", "Optional dotenv file")
	flag.Parse()

	if err := app.LoadEnvFiles(envFile); err != nil {
		log.Error().Err(err).Msg("loading env file")
		os.Exit(1)
	}
	if err := app.ApplyConfigFile(&cfg, configPath); err != nil {
		log.Error().Err(err).Msg("loading config file")
		os.Exit(1)
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := app.New(cfg)
	if sweepTTL > 0 {
		a.SweepCache(sweepTTL)
	}
	if _, _, err := a.Run(ctx); err != nil {
		log.Error().Err(err).Msg("run failed")
		if fault.IsKind(err, fault.IngestBadInput) || fault.IsKind(err, fault.ContractViolation) {
			fmt.Fprintln(os.Stderr, "usage: ruleharvest -title <game> [-bgg id] [-pdf rules.pdf]")
			os.Exit(2)
		}
		os.Exit(1)
	}
}
