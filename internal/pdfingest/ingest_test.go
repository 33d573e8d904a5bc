package pdfingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ubglab/ruleharvest/internal/fault"
)

type fakeExtractor struct {
	blob string
	err  error
}

func (f *fakeExtractor) Extract(ctx context.Context, path string) (string, error) {
	return f.blob, f.err
}

type fakeEngine struct {
	text string
	err  error
}

func (f *fakeEngine) Recognize(ctx context.Context, png []byte) (string, error) {
	return f.text, f.err
}

// fakeRasterize writes one PNG per requested page without touching poppler.
func fakeRasterize(pages int) RasterizeFunc {
	return func(ctx context.Context, pdfPath, dir string, page int) ([]string, error) {
		n := 1
		if page == 0 {
			n = pages
		}
		var out []string
		for i := 0; i < n; i++ {
			p := filepath.Join(dir, "page-"+string(rune('a'+i))+".png")
			if err := os.WriteFile(p, []byte("png"), 0o644); err != nil {
				return nil, err
			}
			out = append(out, p)
		}
		return out, nil
	}
}

func writePDF(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4 stub"), 0o644); err != nil {
		t.Fatalf("write pdf: %v", err)
	}
	return path
}

func TestIngest_FormFeedSplitAndConfidence(t *testing.T) {
	t.Parallel()
	blob := "Page one text about setup.\f\fPage three."
	res, err := Ingest(context.Background(), writePDF(t), Options{
		Extractor: &fakeExtractor{blob: blob},
		// No OCR path configured; the blank middle page stays blank.
		Rasterizer: "definitely-not-installed-rasterizer",
		OCRBinary:  "definitely-not-installed-ocr",
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(res.Pages) != 3 {
		t.Fatalf("pages = %d, want 3", len(res.Pages))
	}
	for i, p := range res.Pages {
		if p.Number != i+1 {
			t.Fatalf("page %d numbered %d", i, p.Number)
		}
		if p.Source != SourceParser {
			t.Fatalf("page %d source %q", p.Number, p.Source)
		}
	}
	if res.Pages[0].Confidence != 1.0 || res.Pages[1].Confidence != 0.0 || res.Pages[2].Confidence != 1.0 {
		t.Fatalf("confidence run: %v %v %v", res.Pages[0].Confidence, res.Pages[1].Confidence, res.Pages[2].Confidence)
	}
}

func TestIngest_TrailingPageHandling(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		blob  string
		pages int
	}{
		{"terminator form feed dropped", "Page one.\fPage two.\f", 2},
		{"whitespace-only final page kept", "Page one.\f   \n", 2},
		{"single page no form feed", "Only page.", 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Ingest(context.Background(), writePDF(t), Options{
				Extractor:  &fakeExtractor{blob: tc.blob},
				Rasterizer: "definitely-not-installed-rasterizer",
				OCRBinary:  "definitely-not-installed-ocr",
			})
			if err != nil {
				t.Fatalf("ingest: %v", err)
			}
			if len(res.Pages) != tc.pages {
				t.Fatalf("pages = %d, want %d", len(res.Pages), tc.pages)
			}
		})
	}
}

func TestIngest_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := Ingest(context.Background(), filepath.Join(t.TempDir(), "absent.pdf"), Options{})
	if !fault.IsKind(err, fault.IngestPDFUnreadable) {
		t.Fatalf("want INGEST_PDF_UNREADABLE, got %v", err)
	}
}

func TestIngest_LowConfidencePageTriggersOCR(t *testing.T) {
	t.Parallel()
	res, err := Ingest(context.Background(), writePDF(t), Options{
		Extractor: &fakeExtractor{blob: "Readable page.\f   "},
		Worker:    &fakeEngine{text: "Recovered by ocr."},
		Rasterize: fakeRasterize(2),
		// Force the binary lookup to miss so the worker path runs.
		OCRBinary:  "definitely-not-installed-ocr",
		Rasterizer: "unused",
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(res.Pages) != 2 {
		t.Fatalf("pages = %d, want 2", len(res.Pages))
	}
	if res.Pages[0].Source != SourceParser {
		t.Fatalf("readable page must keep parser text")
	}
	if res.Pages[1].Source != SourceOCR || res.Pages[1].Text != "Recovered by ocr." {
		t.Fatalf("ocr page: %+v", res.Pages[1])
	}
	if res.Pages[1].Confidence != 1.0 {
		t.Fatalf("ocr confidence: %v", res.Pages[1].Confidence)
	}
	if len(res.OCRPages) != 1 || res.OCRPages[0] != 2 {
		t.Fatalf("ocr usage record: %v", res.OCRPages)
	}
}

func TestIngest_WholeDocumentOCR(t *testing.T) {
	t.Parallel()
	res, err := Ingest(context.Background(), writePDF(t), Options{
		Extractor:  &fakeExtractor{blob: ""},
		Worker:     &fakeEngine{text: "Seite per ocr."},
		Rasterize:  fakeRasterize(2),
		OCRBinary:  "definitely-not-installed-ocr",
		Rasterizer: "unused",
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.OCRUnavailable {
		t.Fatalf("ocr was available")
	}
	if len(res.Pages) != 2 {
		t.Fatalf("pages = %d, want 2", len(res.Pages))
	}
	for _, p := range res.Pages {
		if p.Source != SourceOCR || p.Text != "Seite per ocr." {
			t.Fatalf("page %+v", p)
		}
	}
	if len(res.OCRPages) != 2 {
		t.Fatalf("ocr usage: %v", res.OCRPages)
	}
}

func TestIngest_OCRUnavailableFlag(t *testing.T) {
	t.Parallel()
	res, err := Ingest(context.Background(), writePDF(t), Options{
		Extractor:  &fakeExtractor{blob: "\f"},
		Rasterizer: "definitely-not-installed-rasterizer",
		OCRBinary:  "definitely-not-installed-ocr",
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !res.OCRUnavailable {
		t.Fatalf("unavailability flag must be set")
	}
	for _, p := range res.Pages {
		if strings.TrimSpace(p.Text) != "" {
			t.Fatalf("pages must stay empty: %+v", p)
		}
	}
}

func TestIngest_Heuristics(t *testing.T) {
	t.Parallel()
	page1 := "CATAN\n\nTable of Contents\n1. Setup\n2. Gameplay\n3. Scoring\n" + strings.Repeat("filler text ", 30)
	page2 := "Components\n\n19 terrain hexes and 95 resource cards fill the box.\n" + strings.Repeat("more rules ", 30)
	page3 := "tiny"
	res, err := Ingest(context.Background(), writePDF(t), Options{
		Extractor:    &fakeExtractor{blob: page1 + "\f" + page2 + "\f" + page3},
		OCRThreshold: 0.01,
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !res.ComponentsDetected {
		t.Fatalf("components heuristic missed")
	}
	if res.TOC == nil || res.TOC.Page != 1 {
		t.Fatalf("toc heuristic: %+v", res.TOC)
	}
	if len(res.TOC.Excerpt) > 500 {
		t.Fatalf("toc excerpt too long: %d", len(res.TOC.Excerpt))
	}
	if len(res.PagesWithLowTextRatio) != 1 || res.PagesWithLowTextRatio[0] != 3 {
		t.Fatalf("low text pages: %v", res.PagesWithLowTextRatio)
	}
	joined := strings.Join(res.Headings, "|")
	for _, want := range []string{"1. Setup", "Components"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("headings missing %q: %v", want, res.Headings)
		}
	}
}

func TestIngest_ExtractorErrorFallsToOCR(t *testing.T) {
	t.Parallel()
	res, err := Ingest(context.Background(), writePDF(t), Options{
		Extractor:  &fakeExtractor{err: errors.New("pdftotext exploded")},
		Worker:     &fakeEngine{text: "ocr text"},
		Rasterize:  fakeRasterize(1),
		OCRBinary:  "definitely-not-installed-ocr",
		Rasterizer: "unused",
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(res.Pages) != 1 || res.Pages[0].Source != SourceOCR {
		t.Fatalf("pages: %+v", res.Pages)
	}
}
