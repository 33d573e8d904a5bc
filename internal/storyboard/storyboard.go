// Package storyboard turns an ingestion manifest into a frame-quantized
// scene plan. Building is pure: identical manifests and options yield
// byte-identical JSON.
package storyboard

import (
	"encoding/json"
	"math"
)

// ContractVersion is the SemVer of the storyboard wire format.
const ContractVersion = "1.4.0"

// Quantum is the frame grid every duration snaps to: one sixth of a second.
const Quantum = 1.0 / 6.0

// Scene types.
const (
	TypeIntro   = "intro"
	TypeSetup   = "setup"
	TypePhase   = "phase"
	TypeTurn    = "turn"
	TypeEndCard = "end_card"
)

// Rect is a placement normalized to [0,1] in both axes.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Motion animates a visual over a snapped time range.
type Motion struct {
	Kind        string  `json:"kind"`
	StartSec    float64 `json:"startSec"`
	EndSec      float64 `json:"endSec"`
	FromOpacity float64 `json:"fromOpacity,omitempty"`
	ToOpacity   float64 `json:"toOpacity,omitempty"`
	Easing      string  `json:"easing"`
	Target      *Rect   `json:"target,omitempty"`
}

// Visual is one image placed in a scene.
type Visual struct {
	ImageURL  string `json:"imageUrl"`
	Alt       string `json:"alt,omitempty"`
	Placement Rect   `json:"placement"`
	Motion    Motion `json:"motion"`
}

// Overlay is a text panel spanning part of a scene.
type Overlay struct {
	Text      string  `json:"text"`
	Placement Rect    `json:"placement"`
	StartSec  float64 `json:"startSec"`
	EndSec    float64 `json:"endSec"`
	Easing    string  `json:"easing"`
}

// Scene is one storyboard entry. Durations are seconds on the Quantum grid.
type Scene struct {
	ID            string    `json:"id"`
	Index         int       `json:"index"`
	SegmentID     string    `json:"segmentId"`
	Type          string    `json:"type"`
	DurationSec   float64   `json:"durationSec"`
	TransitionSec float64   `json:"transitionSec"`
	Narration     string    `json:"narration"`
	Visuals       []Visual  `json:"visuals"`
	Overlays      []Overlay `json:"overlays"`
}

// GameRef names the game inside the storyboard artifact.
type GameRef struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// Resolution is the render target.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	FPS    int `json:"fps"`
}

// Storyboard is the renderer-facing artifact.
type Storyboard struct {
	ContractVersion string     `json:"storyboardContractVersion"`
	Game            GameRef    `json:"game"`
	Resolution      Resolution `json:"resolution"`
	Scenes          []Scene    `json:"scenes"`
}

// Encode serializes the storyboard canonically.
func (s *Storyboard) Encode() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// Snap rounds d to the nearest frame-quantum multiple.
func Snap(d float64) float64 {
	return math.Round(d/Quantum) * Quantum
}

// Clamp bounds d to [lo, hi].
func Clamp(d, lo, hi float64) float64 {
	switch {
	case d < lo:
		return lo
	case d > hi:
		return hi
	}
	return d
}
