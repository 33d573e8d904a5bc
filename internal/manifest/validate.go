package manifest

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ubglab/ruleharvest/internal/fault"
)

var semverRe = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// Validate checks the wire contract and returns a STORYBOARD_CONTRACT_VIOLATION
// error enumerating every offending field path. Storyboard generation never
// proceeds past a failed validation.
func Validate(m *IngestionManifest) error {
	if m == nil {
		return fault.New(fault.ContractViolation, "manifest is nil")
	}
	var bad []string
	if !semverRe.MatchString(m.ContractVersion) {
		bad = append(bad, "contractVersion")
	}
	if strings.TrimSpace(m.ID) == "" {
		bad = append(bad, "id")
	}
	if strings.TrimSpace(m.Game.Slug) == "" {
		bad = append(bad, "game.slug")
	}
	if strings.TrimSpace(m.Game.Title) == "" {
		bad = append(bad, "game.title")
	}
	if m.GeneratedAt.IsZero() {
		bad = append(bad, "generatedAt")
	}
	if m.Outline == nil {
		bad = append(bad, "outline")
	}
	if m.Components == nil {
		bad = append(bad, "components")
	}
	if m.Assets.Pages == nil {
		bad = append(bad, "assets.pages")
	}
	if m.Assets.Images == nil {
		bad = append(bad, "assets.images")
	}
	if !sort.SliceIsSorted(m.Assets.Pages, func(i, j int) bool {
		return m.Assets.Pages[i].Number < m.Assets.Pages[j].Number
	}) {
		bad = append(bad, "assets.pages[].number")
	}
	for i, img := range m.Assets.Images {
		if img.Width < 0 || img.Height < 0 {
			bad = append(bad, fmt.Sprintf("assets.images[%d]", i))
		}
	}
	if len(bad) > 0 {
		return fault.Newf(fault.ContractViolation, "invalid manifest: %s", strings.Join(bad, ", "))
	}
	return nil
}
