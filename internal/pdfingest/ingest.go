// Package pdfingest turns rulebook PDFs into ordered text pages. Primary
// extraction goes through a text extractor; pages it cannot read fall back
// to OCR when an engine is available.
package pdfingest

import (
	"context"
	"os"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ubglab/ruleharvest/internal/fault"
)

const (
	// DefaultOCRThreshold is the page confidence below which OCR kicks in.
	DefaultOCRThreshold = 0.5
	// DefaultLowTextChars is the page length below which a page counts as
	// low-text for the heuristics.
	DefaultLowTextChars = 200

	tocExcerptChars = 500
)

// Page sources.
const (
	SourceParser = "parser"
	SourceOCR    = "ocr"
)

// Options tune one ingest call. Zero values mean defaults.
type Options struct {
	// Extractor overrides the primary text extractor (default pdftotext).
	Extractor Extractor
	// OCRThreshold is the per-page confidence below which OCR runs.
	OCRThreshold float64
	// Rasterizer names the page-to-PNG binary (default pdftoppm).
	Rasterizer string
	// Rasterize overrides binary rasterization entirely; used by tests.
	Rasterize RasterizeFunc
	// OCRBinary names the OCR binary (default tesseract).
	OCRBinary string
	// Worker is the in-process OCR fallback when no binary is installed.
	// Nil disables the worker.
	Worker OCREngine
	// LowTextChars tunes the low-text page heuristic.
	LowTextChars int
}

// Page is one parsed rulebook page.
type Page struct {
	Number     int     `json:"number"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// TOCHit records where a table of contents was detected.
type TOCHit struct {
	Page    int    `json:"page"`
	Excerpt string `json:"excerpt"`
}

// Result is the outcome of one ingest.
type Result struct {
	Pages                 []Page   `json:"pages"`
	Headings              []string `json:"headings,omitempty"`
	OCRPages              []int    `json:"ocrPages,omitempty"`
	OCRUnavailable        bool     `json:"ocrUnavailable,omitempty"`
	PagesWithLowTextRatio []int    `json:"pagesWithLowTextRatio,omitempty"`
	ComponentsDetected    bool     `json:"componentsDetected"`
	TOC                   *TOCHit  `json:"toc,omitempty"`
}

var (
	componentsRe = regexp.MustCompile(`(?i)components|contents of the box`)
	tocRe        = regexp.MustCompile(`(?i)table of contents|inhaltsverzeichnis|sommaire|índice|indice`)
	// headingRe matches the section names rulebooks actually use, so the
	// outline stays short and ordered. A line qualifies when it is short and
	// opens with one of the names or a numeric section marker.
	headingRe = regexp.MustCompile(`(?i)^(\d+[.)]\s+\S|overview|introduction|object of the game|game components|components|contents|setup|set[- ]up|gameplay|game play|how to play|on your turn|turn overview|turn order|actions|phases|scoring|end of the game|game end|winning|variants?|spielmaterial|spielaufbau|spielablauf|spielende|mat[ée]riel|mise en place|d[ée]roulement|componentes|preparaci[óo]n)`)
)

// Ingest extracts the text pages of the PDF at path, running OCR on pages
// the primary extractor could not read.
func Ingest(ctx context.Context, path string, opts Options) (*Result, error) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, fault.Wrap(fault.IngestPDFUnreadable, path, err)
	}

	extractor := opts.Extractor
	if extractor == nil {
		extractor = &PopplerExtractor{}
	}
	blob, err := extractor.Extract(ctx, path)
	if err != nil {
		log.Warn().Err(err).Str("pdf", path).Msg("primary text extraction failed, trying ocr")
		blob = ""
	}

	res := &Result{}
	for i, text := range splitPages(blob) {
		p := Page{Number: i + 1, Text: text, Source: SourceParser}
		if strings.TrimSpace(text) != "" {
			p.Confidence = 1.0
		}
		res.Pages = append(res.Pages, p)
	}

	runner := newOCRRunner(opts)
	if allEmpty(res.Pages) {
		ingestWholeDocumentOCR(ctx, path, runner, res)
	} else {
		ingestPerPageOCR(ctx, path, runner, res, threshold(opts))
	}

	finishHeuristics(res, opts)
	return res, nil
}

// ingestWholeDocumentOCR replaces an unreadable document with OCR pages.
func ingestWholeDocumentOCR(ctx context.Context, path string, runner *ocrRunner, res *Result) {
	if !runner.available() {
		res.OCRUnavailable = true
		log.Warn().Str("kind", string(fault.IngestOCRUnavailable)).Str("pdf", path).Msg("no text extracted and no ocr engine available")
		return
	}
	text, err := runner.page(ctx, path, 0)
	if err != nil {
		res.OCRUnavailable = true
		log.Warn().Err(err).Str("pdf", path).Msg("whole-document ocr failed")
		return
	}
	res.Pages = nil
	for i, pageText := range splitOCRPages(text) {
		p := Page{Number: i + 1, Text: pageText, Source: SourceOCR}
		if strings.TrimSpace(pageText) != "" {
			p.Confidence = 1.0
		}
		res.Pages = append(res.Pages, p)
		res.OCRPages = append(res.OCRPages, p.Number)
	}
}

// ingestPerPageOCR re-reads only the pages whose confidence is below the
// threshold.
func ingestPerPageOCR(ctx context.Context, path string, runner *ocrRunner, res *Result, thresh float64) {
	for i := range res.Pages {
		if res.Pages[i].Confidence >= thresh {
			continue
		}
		if !runner.available() {
			res.OCRUnavailable = true
			return
		}
		text, err := runner.page(ctx, path, res.Pages[i].Number)
		if err != nil {
			log.Warn().Err(err).Int("page", res.Pages[i].Number).Msg("page ocr failed, keeping parser text")
			continue
		}
		res.Pages[i].Text = text
		res.Pages[i].Source = SourceOCR
		if strings.TrimSpace(text) != "" {
			res.Pages[i].Confidence = 1.0
		}
		res.OCRPages = append(res.OCRPages, res.Pages[i].Number)
	}
}

// finishHeuristics computes the downstream signals over the final page set.
func finishHeuristics(res *Result, opts Options) {
	low := opts.LowTextChars
	if low <= 0 {
		low = DefaultLowTextChars
	}
	var full strings.Builder
	for _, p := range res.Pages {
		if len(strings.TrimSpace(p.Text)) < low {
			res.PagesWithLowTextRatio = append(res.PagesWithLowTextRatio, p.Number)
		}
		if res.TOC == nil && tocRe.MatchString(p.Text) {
			res.TOC = &TOCHit{Page: p.Number, Excerpt: excerpt(p.Text, tocExcerptChars)}
		}
		res.Headings = appendHeadings(res.Headings, p.Text)
		full.WriteString(p.Text)
		full.WriteByte('\n')
	}
	res.ComponentsDetected = componentsRe.MatchString(full.String())
}

// appendHeadings scans page text for section-heading lines, preserving
// document order and dropping adjacent duplicates.
func appendHeadings(headings []string, text string) []string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || len(line) > 60 {
			continue
		}
		if !headingRe.MatchString(line) {
			continue
		}
		if n := len(headings); n > 0 && strings.EqualFold(headings[n-1], line) {
			continue
		}
		headings = append(headings, line)
	}
	return headings
}

// splitOCRPages separates whole-document OCR output. OCR engines join pages
// with form feeds; a single blob stays one page.
func splitOCRPages(text string) []string {
	if strings.Contains(text, "\f") {
		return splitPages(text)
	}
	return []string{text}
}

func allEmpty(pages []Page) bool {
	for _, p := range pages {
		if strings.TrimSpace(p.Text) != "" {
			return false
		}
	}
	return true
}

func threshold(opts Options) float64 {
	if opts.OCRThreshold > 0 {
		return opts.OCRThreshold
	}
	return DefaultOCRThreshold
}

func excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
