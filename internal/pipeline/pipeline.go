// Package pipeline orchestrates PDF ingestion, BGG metadata, and the
// component harvest into one ingestion manifest. Every stage is optional
// and degrades gracefully; the reasons land in the manifest's partial list.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ubglab/ruleharvest/internal/bgg"
	"github.com/ubglab/ruleharvest/internal/fault"
	"github.com/ubglab/ruleharvest/internal/harvest"
	"github.com/ubglab/ruleharvest/internal/manifest"
	"github.com/ubglab/ruleharvest/internal/pdfingest"
	"github.com/ubglab/ruleharvest/internal/slug"
)

// Request names the inputs of one ingestion run. At least one field must be
// set.
type Request struct {
	Title      string
	BGGIDOrURL string
	PDFPath    string
}

// Runner wires the subsystems together. Nil collaborators skip their stage.
type Runner struct {
	BGG       *bgg.Client
	Harvester *harvest.Harvester

	PDFOptions     pdfingest.Options
	HarvestOptions harvest.Options

	// DisableWeb turns the external component harvest off even when a title
	// is present.
	DisableWeb bool
	// Ceiling bounds one whole run; zero means no ceiling. An exceeded
	// ceiling yields a partial manifest with the reason recorded.
	Ceiling time.Duration
	// DeterministicIDs derives the manifest ID from the game slug instead
	// of a random UUID. Tests and replay tooling set this.
	DeterministicIDs bool

	Now func() time.Time
}

// Run executes the pipeline for req and emits a validated manifest.
func (r *Runner) Run(ctx context.Context, req Request) (*manifest.IngestionManifest, error) {
	if strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.BGGIDOrURL) == "" && strings.TrimSpace(req.PDFPath) == "" {
		return nil, fault.New(fault.IngestBadInput, "request needs a title, a BGG id, or a PDF path")
	}
	if r.Ceiling > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Ceiling)
		defer cancel()
	}

	m := &manifest.IngestionManifest{
		ContractVersion: manifest.ContractVersion,
		GeneratedAt:     r.now(),
		Outline:         []string{},
		Components:      []harvest.Component{},
		Assets:          manifest.Assets{Pages: []pdfingest.Page{}, Images: []harvest.Image{}},
	}

	pdfRes := r.runPDF(ctx, req, m)
	bggMeta := r.runBGG(ctx, req, m)
	harvestRes := r.runHarvest(ctx, req, m)

	r.merge(m, req, pdfRes, bggMeta, harvestRes)

	if err := manifest.Validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *Runner) runPDF(ctx context.Context, req Request, m *manifest.IngestionManifest) *pdfingest.Result {
	if strings.TrimSpace(req.PDFPath) == "" || r.exceeded(ctx, m, "pdf") {
		return nil
	}
	res, err := pdfingest.Ingest(ctx, req.PDFPath, r.PDFOptions)
	if err != nil {
		log.Warn().Err(err).Str("pdf", req.PDFPath).Msg("pdf ingestion skipped")
		m.Partial = append(m.Partial, fmt.Sprintf("pdf: %v", err))
		return nil
	}
	if res.OCRUnavailable {
		m.Partial = append(m.Partial, "pdf: ocr unavailable for unreadable pages")
	}
	return res
}

func (r *Runner) runBGG(ctx context.Context, req Request, m *manifest.IngestionManifest) *bgg.Metadata {
	if strings.TrimSpace(req.BGGIDOrURL) == "" || r.BGG == nil || r.exceeded(ctx, m, "bgg") {
		return nil
	}
	md, err := r.BGG.Fetch(ctx, req.BGGIDOrURL)
	if err != nil {
		m.Partial = append(m.Partial, fmt.Sprintf("bgg: %v", err))
	}
	// A BGG_PARTIAL failure still carries the sentinel record; keep it so
	// downstream consumers can see the id and the error.
	return md
}

func (r *Runner) runHarvest(ctx context.Context, req Request, m *manifest.IngestionManifest) *harvest.Result {
	if strings.TrimSpace(req.Title) == "" || r.DisableWeb || r.Harvester == nil || r.exceeded(ctx, m, "harvest") {
		return nil
	}
	res, err := r.Harvester.Components(ctx, req.Title, r.HarvestOptions)
	if err != nil {
		m.Partial = append(m.Partial, fmt.Sprintf("harvest: %v", err))
	}
	return res
}

// merge folds the stage outputs into the manifest with deterministic
// ordering: outline by detected heading order, components by harvest order,
// pages by page number, images by rank.
func (r *Runner) merge(m *manifest.IngestionManifest, req Request, pdfRes *pdfingest.Result, bggMeta *bgg.Metadata, harvestRes *harvest.Result) {
	title := strings.TrimSpace(req.Title)
	if title == "" && bggMeta != nil && bggMeta.Title != "" {
		title = bggMeta.Title
	}
	gameSlug := ""
	if harvestRes != nil && harvestRes.Slug != "" {
		gameSlug = harvestRes.Slug
	} else if title != "" {
		gameSlug = slug.Normalize(title)
	}
	if bggMeta != nil {
		m.Game.BGGID = bggMeta.ID
		if gameSlug == "" {
			gameSlug = "bgg-" + bggMeta.ID
		}
		if title == "" {
			title = "BGG #" + bggMeta.ID
		}
	}
	if gameSlug == "" && req.PDFPath != "" {
		gameSlug = slug.Normalize(strings.TrimSuffix(pathBase(req.PDFPath), ".pdf"))
		if title == "" {
			title = strings.TrimSuffix(pathBase(req.PDFPath), ".pdf")
		}
	}
	m.Game.Slug = gameSlug
	m.Game.Title = title
	m.ID = r.manifestID(gameSlug)
	m.BGG = bggMeta

	if pdfRes != nil {
		m.Outline = append(m.Outline, pdfRes.Headings...)
		m.Assets.Pages = append(m.Assets.Pages, pdfRes.Pages...)
		m.OCR = manifest.OCRUsage{Pages: pdfRes.OCRPages, Unavailable: pdfRes.OCRUnavailable}
	}
	if harvestRes != nil {
		m.Harvest = &manifest.HarvestInfo{
			RulesURL:    harvestRes.RulesURL,
			Slug:        harvestRes.Slug,
			Heading:     harvestRes.Heading,
			TriedURLs:   harvestRes.TriedURLs,
			CacheStatus: harvestRes.CacheStatus,
		}
		m.Components = append(m.Components, harvestRes.Components...)
		m.Assets.Images = append(m.Assets.Images, harvestRes.Images...)
		if len(m.Outline) == 0 && harvestRes.Heading != "" {
			m.Outline = append(m.Outline, harvestRes.Heading)
		}
	}
}

// exceeded records an expired context once per remaining stage and reports
// it. A deadline is the run ceiling; anything else is caller cancellation.
func (r *Runner) exceeded(ctx context.Context, m *manifest.IngestionManifest, stage string) bool {
	err := ctx.Err()
	if err == nil {
		return false
	}
	reason := "canceled"
	if errors.Is(err, context.DeadlineExceeded) {
		reason = "ceiling exceeded"
	}
	m.Partial = append(m.Partial, fmt.Sprintf("%s: %s: %v", stage, reason, err))
	return true
}

func (r *Runner) manifestID(gameSlug string) string {
	if r.DeterministicIDs {
		if gameSlug == "" {
			gameSlug = "unknown"
		}
		return gameSlug + "-manifest"
	}
	return uuid.NewString()
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func pathBase(p string) string {
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		return p[i+1:]
	}
	return p
}
