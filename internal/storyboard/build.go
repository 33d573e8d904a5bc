package storyboard

import (
	"fmt"
	"strings"

	"github.com/ubglab/ruleharvest/internal/manifest"
	"github.com/ubglab/ruleharvest/internal/slug"
)

// Duration defaults, seconds.
const (
	DefaultBaseStep = 4.0
	DefaultPerWord  = 0.15

	minSceneSec = 2.0
	maxSceneSec = 15.0

	defaultTransition = 1.5
	minTransition     = 1.0
	maxTransition     = 3.0
)

// Default render target.
const (
	DefaultWidth  = 1920
	DefaultHeight = 1080
	DefaultFPS    = 30
)

// maxGridImages caps the component grid: three columns by three rows.
const maxGridImages = 9

// SceneSeed describes a scene about to be narrated.
type SceneSeed struct {
	Type    string
	Heading string
	Index   int
}

// Options tune one build. Zero values mean defaults.
type Options struct {
	Width  int
	Height int
	FPS    int
	// BaseStepSec and PerWordSec drive the narration-length duration model.
	BaseStepSec float64
	PerWordSec  float64
	// Narrate supplies narration text per scene. Nil uses the built-in
	// English default. The callback must be pure: Build performs no I/O.
	Narrate func(SceneSeed) string
}

// Build plans scenes from a validated manifest. Identical manifests and
// options produce byte-identical encoded storyboards.
func Build(m *manifest.IngestionManifest, opts Options) (*Storyboard, error) {
	if err := manifest.Validate(m); err != nil {
		return nil, err
	}

	sb := &Storyboard{
		ContractVersion: ContractVersion,
		Game:            GameRef{Slug: m.Game.Slug, Name: m.Game.Title},
		Resolution: Resolution{
			Width:  intOr(opts.Width, DefaultWidth),
			Height: intOr(opts.Height, DefaultHeight),
			FPS:    intOr(opts.FPS, DefaultFPS),
		},
	}

	b := builder{m: m, opts: opts}
	sb.Scenes = append(sb.Scenes, b.scene(TypeIntro, "", len(sb.Scenes)))
	// Every outline heading plays as one setup scene. The phase and turn
	// types stay in the data model for producers that plan them directly.
	for _, heading := range m.Outline {
		sb.Scenes = append(sb.Scenes, b.scene(TypeSetup, heading, len(sb.Scenes)))
	}
	sb.Scenes = append(sb.Scenes, b.scene(TypeEndCard, "", len(sb.Scenes)))
	return sb, nil
}

type builder struct {
	m    *manifest.IngestionManifest
	opts Options
}

func (b *builder) scene(sceneType, heading string, index int) Scene {
	seed := SceneSeed{Type: sceneType, Heading: heading, Index: index}
	narration := b.narration(seed)
	dur := b.duration(sceneType, narration)

	s := Scene{
		ID:            fmt.Sprintf("scene-%d", index),
		Index:         index,
		SegmentID:     segmentID(sceneType, heading),
		Type:          sceneType,
		DurationSec:   dur,
		TransitionSec: Snap(Clamp(defaultTransition, minTransition, maxTransition)),
		Narration:     narration,
		Visuals:       b.visuals(sceneType, heading),
		Overlays: []Overlay{{
			Text:      overlayText(sceneType, heading, b.m.Game.Title),
			Placement: overlayPlacement(),
			StartSec:  0,
			EndSec:    dur,
			Easing:    EasingInOutCubic,
		}},
	}
	if s.Visuals == nil {
		s.Visuals = []Visual{}
	}
	return s
}

func (b *builder) narration(seed SceneSeed) string {
	if b.opts.Narrate != nil {
		if text := strings.TrimSpace(b.opts.Narrate(seed)); text != "" {
			return text
		}
	}
	return defaultNarration(seed, b.m.Game.Title)
}

// duration applies the word-count model, clamps, and snaps to the frame
// quantum.
func (b *builder) duration(sceneType, narration string) float64 {
	base := b.opts.BaseStepSec
	if base <= 0 {
		base = DefaultBaseStep
	}
	perWord := b.opts.PerWordSec
	if perWord <= 0 {
		perWord = DefaultPerWord
	}
	words := float64(len(strings.Fields(narration)))
	raw := base + words*perWord*complexityWeight(sceneType)
	return Snap(Clamp(raw, minSceneSec, maxSceneSec))
}

// complexityWeight slows narration-dense scene types down and keeps
// bookends brisk.
func complexityWeight(sceneType string) float64 {
	switch sceneType {
	case TypePhase, TypeTurn:
		return 1.2
	case TypeIntro, TypeEndCard:
		return 0.8
	}
	return 1.0
}

// visuals assigns images: the intro shows the box art, a components scene
// shows the harvested grid, and other scenes get the top-ranked image as a
// hero shot.
func (b *builder) visuals(sceneType, heading string) []Visual {
	switch {
	case sceneType == TypeIntro:
		if b.m.BGG != nil && b.m.BGG.Image != "" {
			return []Visual{{
				ImageURL:  b.m.BGG.Image,
				Placement: Rect{X: 0.2, Y: 0.3, W: 0.6, H: 0.6},
				Motion:    defaultFade(),
			}}
		}
	case sceneType == TypeEndCard:
		return nil
	case isComponentsHeading(heading):
		imgs := b.m.Assets.Images
		if len(imgs) > maxGridImages {
			imgs = imgs[:maxGridImages]
		}
		cells := GridPlacements(len(imgs))
		out := make([]Visual, 0, len(imgs))
		for i, img := range imgs {
			out = append(out, Visual{
				ImageURL:  img.URL,
				Alt:       img.Alt,
				Placement: cells[i],
				Motion:    defaultFade(),
			})
		}
		return out
	case len(b.m.Assets.Images) > 0:
		top := b.m.Assets.Images[0]
		return []Visual{{
			ImageURL:  top.URL,
			Alt:       top.Alt,
			Placement: Rect{X: 0.25, Y: 0.35, W: 0.5, H: 0.5},
			Motion:    defaultFade(),
		}}
	}
	return nil
}

func isComponentsHeading(heading string) bool {
	h := strings.ToLower(strings.TrimSpace(heading))
	for _, anchor := range []string{"component", "contents", "spielmaterial", "contenu", "matériel", "materiel", "componentes", "componenti", "material"} {
		if strings.Contains(h, anchor) {
			return true
		}
	}
	return false
}

func segmentID(sceneType, heading string) string {
	if heading == "" {
		return sceneType
	}
	if s := slug.Normalize(heading); s != "" {
		return s
	}
	return sceneType
}

func overlayText(sceneType, heading, title string) string {
	switch sceneType {
	case TypeIntro:
		return title
	case TypeEndCard:
		return "Thanks for watching"
	}
	return heading
}

// defaultNarration is the built-in English fallback used when no narrator
// is plugged in.
func defaultNarration(seed SceneSeed, title string) string {
	switch seed.Type {
	case TypeIntro:
		if title == "" {
			return "Welcome. Let's learn how to play."
		}
		return fmt.Sprintf("Welcome to %s. In the next few minutes we will learn everything needed for a first game.", title)
	case TypeEndCard:
		return fmt.Sprintf("That is how you play %s. Set it up and enjoy your first game.", title)
	}
	return fmt.Sprintf("%s.", strings.TrimSuffix(seed.Heading, "."))
}

func intOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
