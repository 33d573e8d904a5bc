package pdfingest

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Extractor produces the raw text of a PDF. Implementations return one blob
// with form-feed page separators, or per-page text joined by form-feeds.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// PopplerExtractor shells out to pdftotext. The empty Binary means the
// default name resolved from PATH.
type PopplerExtractor struct {
	Binary string
}

func (p *PopplerExtractor) Extract(ctx context.Context, path string) (string, error) {
	bin := p.Binary
	if bin == "" {
		bin = "pdftotext"
	}
	cmd := exec.CommandContext(ctx, bin, "-enc", "UTF-8", path, "-")
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s %s: %w (%s)", bin, path, err, strings.TrimSpace(errOut.String()))
	}
	return out.String(), nil
}

// splitPages cuts extracted text on form-feed boundaries. pdftotext ends the
// final page with a trailing form-feed; only the exactly-empty tail it
// produces is dropped. A whitespace-only tail is a real page with no text
// layer and must survive so the OCR fallback can see it.
func splitPages(blob string) []string {
	pages := strings.Split(blob, "\f")
	if n := len(pages); n > 1 && pages[n-1] == "" {
		pages = pages[:n-1]
	}
	return pages
}
