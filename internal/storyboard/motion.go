package storyboard

import "errors"

const (
	macroMinSec = 0.5
	macroMaxSec = 4.0
)

// FocusZoom zooms the camera toward target over [startSec, endSec]. The
// target rect is required; the duration is clamped to [0.5, 4] seconds.
func FocusZoom(target *Rect, startSec, endSec float64) (Motion, error) {
	if target == nil {
		return Motion{}, errors.New("focus_zoom requires a target rect")
	}
	start, end := macroRange(startSec, endSec)
	t := *target
	return Motion{Kind: "focus_zoom", StartSec: start, EndSec: end, Easing: EasingInOutCubic, Target: &t}, nil
}

// PanToComponent slides toward the center of a placed component.
func PanToComponent(placement *Rect, startSec, endSec float64) (Motion, error) {
	if placement == nil {
		return Motion{}, errors.New("pan_to_component requires a placement")
	}
	start, end := macroRange(startSec, endSec)
	center := Rect{
		X: placement.X + placement.W/2,
		Y: placement.Y + placement.H/2,
	}
	return Motion{Kind: "pan_to_component", StartSec: start, EndSec: end, Easing: EasingInOutSine, Target: &center}, nil
}

// HighlightPulse draws attention without moving the camera.
func HighlightPulse(startSec, endSec float64) Motion {
	start, end := macroRange(startSec, endSec)
	return Motion{Kind: "highlight_pulse", StartSec: start, EndSec: end, FromOpacity: 1, ToOpacity: 1, Easing: EasingInOutSine}
}

// macroRange snaps the endpoints to the frame grid and clamps the span to
// the macro bounds.
func macroRange(startSec, endSec float64) (float64, float64) {
	start := startSec
	if start < 0 {
		start = 0
	}
	start = Snap(start)
	dur := Clamp(endSec-startSec, macroMinSec, macroMaxSec)
	end := Snap(start + dur)
	return start, end
}
