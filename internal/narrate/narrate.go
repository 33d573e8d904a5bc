// Package narrate composes the spoken text for storyboard scenes. The
// template narrator is deterministic and covers the languages the harvester
// anchors on; the LLM narrator enriches it when a model is configured and
// falls back to the template on any failure.
package narrate

import (
	"fmt"
	"strings"

	"github.com/ubglab/ruleharvest/internal/bgg"
)

// Seed is everything a narrator may draw on for one scene.
type Seed struct {
	SceneType  string
	Heading    string
	GameTitle  string
	Components []string
	Meta       *bgg.Metadata
}

// TemplateNarrator renders scene narration from fixed localized templates.
// It is pure: identical seeds yield identical text.
type TemplateNarrator struct {
	// Lang selects the template language: en, de, fr or es. Anything else
	// falls back to en.
	Lang string
}

type templateSet struct {
	intro        string // game title
	introPlayers string // min, max players
	section      string // heading
	components   string // joined component list
	endCard      string // game title
	fallbackGame string
}

func (t *TemplateNarrator) templates() templateSet {
	switch t.Lang {
	case "de":
		return templateSet{
			intro:        "Willkommen zu %s. In den nächsten Minuten lernen wir alles für die erste Partie.",
			introPlayers: " Das Spiel ist für %d bis %d Personen.",
			section:      "Weiter geht es mit: %s.",
			components:   "In der Schachtel finden sich: %s.",
			endCard:      "So spielt man %s. Viel Spaß bei der ersten Partie.",
			fallbackGame: "dieses Spiel",
		}
	case "fr":
		return templateSet{
			intro:        "Bienvenue dans %s. Dans les minutes qui suivent, nous apprendrons tout pour une première partie.",
			introPlayers: " Le jeu se joue de %d à %d joueurs.",
			section:      "Passons à la suite : %s.",
			components:   "La boîte contient : %s.",
			endCard:      "Voilà comment jouer à %s. Bonne première partie.",
			fallbackGame: "ce jeu",
		}
	case "es":
		return templateSet{
			intro:        "Bienvenidos a %s. En los próximos minutos aprenderemos todo para la primera partida.",
			introPlayers: " El juego es para %d a %d jugadores.",
			section:      "Continuamos con: %s.",
			components:   "La caja contiene: %s.",
			endCard:      "Así se juega %s. Que disfrutes tu primera partida.",
			fallbackGame: "este juego",
		}
	}
	return templateSet{
		intro:        "Welcome to %s. In the next few minutes we will learn everything needed for a first game.",
		introPlayers: " The game plays %d to %d players.",
		section:      "Next up: %s.",
		components:   "Inside the box you will find: %s.",
		endCard:      "And that is how you play %s. Set it up and enjoy your first game.",
		fallbackGame: "this game",
	}
}

// Narrate renders the template for one scene seed.
func (t *TemplateNarrator) Narrate(seed Seed) string {
	ts := t.templates()
	title := strings.TrimSpace(seed.GameTitle)
	if title == "" {
		title = ts.fallbackGame
	}
	switch seed.SceneType {
	case "intro":
		text := fmt.Sprintf(ts.intro, title)
		if m := seed.Meta; m != nil && m.MinPlayers > 0 && m.MaxPlayers >= m.MinPlayers {
			text += fmt.Sprintf(ts.introPlayers, m.MinPlayers, m.MaxPlayers)
		}
		return text
	case "end_card":
		return fmt.Sprintf(ts.endCard, title)
	}
	if isComponentsHeading(seed.Heading) && len(seed.Components) > 0 {
		return fmt.Sprintf(ts.components, joinListCapped(seed.Components, 8))
	}
	heading := strings.TrimSpace(seed.Heading)
	if heading == "" {
		heading = title
	}
	return fmt.Sprintf(ts.section, heading)
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

// joinListCapped joins up to max items with commas; longer lists end in an
// ellipsis so narration stays speakable.
func joinListCapped(items []string, max int) string {
	if len(items) <= max {
		return strings.Join(items, ", ")
	}
	return strings.Join(items[:max], ", ") + ", …"
}
