package storyboard

const (
	gridMarginX      = 0.10
	gridMarginBottom = 0.05
	gridSpanX        = 0.80
	gridCellH        = 0.2 * 0.8
	gridMaxPerRow    = 3

	overlayMargin = 0.08
	overlayHeight = 0.25
)

// GridPlacements lays n component cells in up to three columns, rows
// stacking upward from the bottom margin. Coordinates are normalized.
func GridPlacements(n int) []Rect {
	if n <= 0 {
		return nil
	}
	perRow := n
	if perRow > gridMaxPerRow {
		perRow = gridMaxPerRow
	}
	cellW := gridSpanX / float64(perRow)
	out := make([]Rect, 0, n)
	for i := 0; i < n; i++ {
		row := i / perRow
		col := i % perRow
		out = append(out, Rect{
			X: gridMarginX + float64(col)*cellW,
			Y: 1 - gridMarginBottom - float64(row+1)*gridCellH,
			W: cellW,
			H: gridCellH,
		})
	}
	return out
}

// overlayPlacement is the top text panel: 8% margins, 25% of frame height.
func overlayPlacement() Rect {
	return Rect{
		X: overlayMargin,
		Y: overlayMargin,
		W: 1 - 2*overlayMargin,
		H: overlayHeight,
	}
}

// defaultFade is the entrance motion every grid cell gets.
func defaultFade() Motion {
	return Motion{
		Kind:        "fade",
		StartSec:    0,
		EndSec:      0.5,
		FromOpacity: 0,
		ToOpacity:   1,
		Easing:      EasingInOutCubic,
	}
}
