// Package proofsheet renders a reviewer-facing PDF summary of a storyboard:
// the scene table with quantized durations plus the harvested images and
// their scores. The sheet is advisory; hosts log render failures and move on.
package proofsheet

import (
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/ubglab/ruleharvest/internal/manifest"
	"github.com/ubglab/ruleharvest/internal/storyboard"
)

// Write renders the proof sheet for sb and its source manifest to outPath.
func Write(sb *storyboard.Storyboard, m *manifest.IngestionManifest, outPath string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	title := sb.Game.Name
	if title == "" {
		title = sb.Game.Slug
	}
	pdf.CellFormat(0, 10, title+" — storyboard proof sheet", "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 5, fmt.Sprintf("contract %s · %dx%d @ %d fps · %d scenes",
		sb.ContractVersion, sb.Resolution.Width, sb.Resolution.Height, sb.Resolution.FPS, len(sb.Scenes)), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	writeSceneTable(pdf, sb)
	writeComponentList(pdf, m)
	writeImageList(pdf, m)

	return pdf.OutputFileAndClose(outPath)
}

func writeSceneTable(pdf *gofpdf.Fpdf, sb *storyboard.Storyboard) {
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 7, "Scenes", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "B", 9)
	pdf.CellFormat(22, 6, "id", "B", 0, "L", false, 0, "")
	pdf.CellFormat(22, 6, "type", "B", 0, "L", false, 0, "")
	pdf.CellFormat(20, 6, "duration", "B", 0, "R", false, 0, "")
	pdf.CellFormat(0, 6, "narration", "B", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	for _, s := range sb.Scenes {
		pdf.CellFormat(22, 6, s.ID, "", 0, "L", false, 0, "")
		pdf.CellFormat(22, 6, s.Type, "", 0, "L", false, 0, "")
		pdf.CellFormat(20, 6, fmt.Sprintf("%.2fs", s.DurationSec), "", 0, "R", false, 0, "")
		pdf.CellFormat(0, 6, truncate(s.Narration, 90), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func writeComponentList(pdf *gofpdf.Fpdf, m *manifest.IngestionManifest) {
	if len(m.Components) == 0 {
		return
	}
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 7, "Components", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	for _, c := range m.Components {
		pdf.CellFormat(0, 5, "- "+truncate(c.Text, 100), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func writeImageList(pdf *gofpdf.Fpdf, m *manifest.IngestionManifest) {
	if len(m.Assets.Images) == 0 {
		return
	}
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 7, "Harvested images", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 8)
	for _, img := range m.Assets.Images {
		line := fmt.Sprintf("%.0f  %dx%d  %s", img.Score, img.Width, img.Height, truncate(img.URL, 95))
		pdf.CellFormat(0, 5, line, "", 1, "L", false, 0, "")
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
