package slug

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"

	"github.com/ubglab/ruleharvest/internal/fault"
	"github.com/ubglab/ruleharvest/internal/fetch"
)

// DefaultBaseURL is the rules host probed when none is configured.
const DefaultBaseURL = "https://www.ultraboardgames.com"

// Resolver probes slug candidates against a rules host until one answers.
type Resolver struct {
	Fetcher *fetch.Fetcher
	BaseURL string
}

// Resolution is the outcome of a successful probe. Tried lists every URL
// attempted, in order, including the winner.
type Resolution struct {
	Slug     string
	RulesURL string
	Body     []byte
	Outcome  fetch.Outcome
	Tried    []string
}

// Resolve walks the candidate slugs for title, trying the direct rules page
// first and the game overview page second. An overview page that links to
// its rules page is followed one hop. On exhaustion the returned Resolution
// is non-nil and still carries the probe trail for diagnostics.
func (r *Resolver) Resolve(ctx context.Context, title string) (*Resolution, error) {
	base := strings.TrimRight(r.baseURL(), "/")
	tried := make([]string, 0, 8)
	for _, s := range Candidates(title) {
		if err := ctx.Err(); err != nil {
			return &Resolution{Tried: tried}, fault.Wrap(fault.FetchNetwork, "slug probing canceled", err)
		}

		direct := fmt.Sprintf("%s/%s/game-rules.php", base, s)
		tried = append(tried, direct)
		if res, err := r.Fetcher.FetchHTML(ctx, direct); err == nil {
			return &Resolution{Slug: s, RulesURL: res.FinalURL, Body: res.Body, Outcome: res.Outcome, Tried: tried}, nil
		}

		overview := fmt.Sprintf("%s/%s/index.php", base, s)
		tried = append(tried, overview)
		res, err := r.Fetcher.FetchHTML(ctx, overview)
		if err != nil {
			continue
		}
		if link := findRulesLink(res.Body, res.FinalURL); link != "" {
			tried = append(tried, link)
			if linked, lerr := r.Fetcher.FetchHTML(ctx, link); lerr == nil {
				return &Resolution{Slug: s, RulesURL: linked.FinalURL, Body: linked.Body, Outcome: linked.Outcome, Tried: tried}, nil
			}
			log.Warn().Str("url", link).Msg("rules link from overview page did not resolve, keeping overview")
		}
		return &Resolution{Slug: s, RulesURL: res.FinalURL, Body: res.Body, Outcome: res.Outcome, Tried: tried}, nil
	}
	return &Resolution{Tried: tried}, fault.Newf(fault.HarvestNotFound, "no rules page for %q after %d probes", title, len(tried))
}

func (r *Resolver) baseURL() string {
	if r.BaseURL != "" {
		return r.BaseURL
	}
	return DefaultBaseURL
}

// findRulesLink returns the absolute target of the first anchor whose text
// reads "game rules" or "basic game rules", or "" when the page has none.
func findRulesLink(body []byte, pageURL string) string {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return ""
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	var found string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if found != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			text := strings.ToLower(collapseText(n))
			if text == "game rules" || text == "basic game rules" {
				for _, a := range n.Attr {
					if a.Key != "href" || strings.TrimSpace(a.Val) == "" {
						continue
					}
					if ref, err := url.Parse(strings.TrimSpace(a.Val)); err == nil {
						found = base.ResolveReference(ref).String()
						return
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return found
}

// collapseText flattens the text content beneath n to single-spaced words.
func collapseText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}
