package pdfingest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// OCREngine is the in-process fallback used when no OCR binary is installed.
type OCREngine interface {
	Recognize(ctx context.Context, png []byte) (string, error)
}

// RasterizeFunc renders the given 1-based page of a PDF into PNG files under
// dir and returns their paths in page order. page 0 means the whole document.
type RasterizeFunc func(ctx context.Context, pdfPath, dir string, page int) ([]string, error)

// popplerRasterize shells out to pdftoppm. The uuid-named parent directory is
// created and removed by the caller.
func popplerRasterize(binary string) RasterizeFunc {
	if binary == "" {
		binary = "pdftoppm"
	}
	return func(ctx context.Context, pdfPath, dir string, page int) ([]string, error) {
		args := []string{"-png", "-r", "150"}
		if page > 0 {
			args = append(args, "-f", strconv.Itoa(page), "-l", strconv.Itoa(page))
		}
		args = append(args, pdfPath, filepath.Join(dir, "page"))
		cmd := exec.CommandContext(ctx, binary, args...)
		var errOut bytes.Buffer
		cmd.Stderr = &errOut
		if err := cmd.Run(); err != nil {
			return nil, fmt.Errorf("%s: %w (%s)", binary, err, strings.TrimSpace(errOut.String()))
		}
		matches, err := filepath.Glob(filepath.Join(dir, "page*.png"))
		if err != nil {
			return nil, err
		}
		sort.Strings(matches)
		return matches, nil
	}
}

// ocrRunner resolves the configured OCR chain once per ingest call.
type ocrRunner struct {
	rasterize RasterizeFunc
	binary    string // OCR binary; "" after resolution means not installed
	worker    OCREngine
}

func newOCRRunner(opts Options) *ocrRunner {
	r := &ocrRunner{worker: opts.Worker}
	if opts.Rasterize != nil {
		r.rasterize = opts.Rasterize
	} else {
		bin := opts.Rasterizer
		if bin == "" {
			bin = "pdftoppm"
		}
		if _, err := exec.LookPath(bin); err == nil {
			r.rasterize = popplerRasterize(bin)
		}
	}
	bin := opts.OCRBinary
	if bin == "" {
		bin = "tesseract"
	}
	if _, err := exec.LookPath(bin); err == nil {
		r.binary = bin
	}
	return r
}

// available reports whether any complete OCR path exists: a rasterizer plus
// either the OCR binary or the in-process worker.
func (r *ocrRunner) available() bool {
	return r.rasterize != nil && (r.binary != "" || r.worker != nil)
}

// page OCRs one 1-based page of the PDF. Temp files live in a uuid-named
// directory removed on every exit path.
func (r *ocrRunner) page(ctx context.Context, pdfPath string, page int) (string, error) {
	dir, err := os.MkdirTemp("", "ruleharvest-ocr-"+uuid.NewString())
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	pngs, err := r.rasterize(ctx, pdfPath, dir, page)
	if err != nil {
		return "", fmt.Errorf("rasterize page %d: %w", page, err)
	}
	var parts []string
	for _, png := range pngs {
		text, err := r.recognize(ctx, png)
		if err != nil {
			return "", err
		}
		parts = append(parts, text)
	}
	// One PNG per page; keep the page boundaries as form feeds so whole
	// document runs split the same way parser output does.
	return strings.Join(parts, "\f"), nil
}

func (r *ocrRunner) recognize(ctx context.Context, pngPath string) (string, error) {
	if r.binary != "" {
		cmd := exec.CommandContext(ctx, r.binary, pngPath, "stdout")
		var out, errOut bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = &errOut
		if err := cmd.Run(); err != nil {
			return "", fmt.Errorf("%s %s: %w (%s)", r.binary, pngPath, err, strings.TrimSpace(errOut.String()))
		}
		return out.String(), nil
	}
	b, err := os.ReadFile(pngPath)
	if err != nil {
		return "", err
	}
	text, err := r.worker.Recognize(ctx, b)
	if err != nil {
		log.Warn().Err(err).Str("png", filepath.Base(pngPath)).Msg("in-process ocr failed")
		return "", err
	}
	return text, nil
}
