// Package slug turns game titles into ordered URL slug candidates and
// probes a rules host until one resolves.
package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var deaccenter = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize produces the slug form of a title fragment: diacritics
// stripped, lowercased, every run of non-alphanumerics folded into a single
// hyphen, edge hyphens trimmed.
func Normalize(s string) string {
	if out, _, err := transform.String(deaccenter, s); err == nil {
		s = out
	}
	s = strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(s))
	pendingHyphen := false
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		default:
			pendingHyphen = true
		}
	}
	return b.String()
}

var parenthetical = regexp.MustCompile(`\s*\([^)]*\)`)

func dropLeadingThe(s string) string {
	t := strings.TrimSpace(s)
	if len(t) > 4 && strings.EqualFold(t[:4], "the ") {
		return strings.TrimSpace(t[4:])
	}
	return s
}

func dropParentheticals(s string) string {
	return strings.TrimSpace(parenthetical.ReplaceAllString(s, " "))
}

func dropSubtitle(s string) string {
	if i := strings.Index(s, ":"); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

func spellOutAmpersand(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}
	return strings.TrimSpace(strings.ReplaceAll(s, "&", " and "))
}

// Candidates expands a title into slug candidates ordered from most to
// least specific. Each simplifying pass is applied to every variant
// produced so far, so combined simplifications such as dropping both the
// article and the subtitle are reachable. The bare-suffix variants
// (trailing "-board-game" or "-card-game" removed) come last. The result
// is deduplicated and deterministic for a given title.
func Candidates(title string) []string {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil
	}
	texts := []string{title}
	passes := []func(string) string{
		dropLeadingThe,
		dropParentheticals,
		dropSubtitle,
		spellOutAmpersand,
	}
	for _, pass := range passes {
		// Ranging over texts visits only the variants present before this
		// pass; additions land behind them.
		for _, t := range texts {
			v := pass(t)
			if v == "" || v == t || containsText(texts, v) {
				continue
			}
			texts = append(texts, v)
		}
	}

	slugs := make([]string, 0, len(texts)+2)
	seen := make(map[string]struct{}, len(texts)+2)
	add := func(s string) {
		if s == "" {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		slugs = append(slugs, s)
	}
	for _, t := range texts {
		add(Normalize(t))
	}
	for _, s := range slugs {
		for _, suffix := range []string{"-board-game", "-card-game"} {
			if trimmed := strings.TrimSuffix(s, suffix); trimmed != s && trimmed != "" {
				add(trimmed)
			}
		}
	}
	return slugs
}

func containsText(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
