package pipeline

import (
	"context"

	"github.com/ubglab/ruleharvest/internal/manifest"
	"github.com/ubglab/ruleharvest/internal/narrate"
	"github.com/ubglab/ruleharvest/internal/storyboard"
)

// Narrator is the pluggable narration seam. The template narrator wrapped
// here is the default; hosts swap in the LLM-backed one.
type Narrator interface {
	Narrate(ctx context.Context, seed narrate.Seed) string
}

// TemplateNarrator adapts the pure template narrator to the Narrator seam.
type TemplateNarrator struct {
	Inner narrate.TemplateNarrator
}

func (t *TemplateNarrator) Narrate(ctx context.Context, seed narrate.Seed) string {
	return t.Inner.Narrate(seed)
}

// Storyboard plans scenes for a manifest, running narration enrichment up
// front so the build itself stays pure.
func (r *Runner) Storyboard(ctx context.Context, m *manifest.IngestionManifest, n Narrator, opts storyboard.Options) (*storyboard.Storyboard, error) {
	if n == nil {
		n = &TemplateNarrator{}
	}
	components := make([]string, 0, len(m.Components))
	for _, c := range m.Components {
		components = append(components, c.Text)
	}
	opts.Narrate = func(seed storyboard.SceneSeed) string {
		return n.Narrate(ctx, narrate.Seed{
			SceneType:  seed.Type,
			Heading:    seed.Heading,
			GameTitle:  m.Game.Title,
			Components: components,
			Meta:       m.BGG,
		})
	}
	return storyboard.Build(m, opts)
}
