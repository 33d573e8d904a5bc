package storyboard

// Easing names accepted by the renderer contract.
const (
	EasingLinear        = "linear"
	EasingInQuad        = "easeInQuad"
	EasingOutQuad       = "easeOutQuad"
	EasingInOutCubic    = "easeInOutCubic"
	EasingInOutSine     = "easeInOutSine"
)

// Bezier returns the canonical cubic-bezier constants for an easing name.
// Unknown names report ok=false; callers fall back to linear.
func Bezier(name string) (curve [4]float64, ok bool) {
	switch name {
	case EasingLinear:
		return [4]float64{0, 0, 1, 1}, true
	case EasingInQuad:
		return [4]float64{0.55, 0.085, 0.68, 0.53}, true
	case EasingOutQuad:
		return [4]float64{0.25, 0.46, 0.45, 0.94}, true
	case EasingInOutCubic:
		return [4]float64{0.645, 0.045, 0.355, 1}, true
	case EasingInOutSine:
		return [4]float64{0.445, 0.05, 0.55, 0.95}, true
	}
	return [4]float64{}, false
}
