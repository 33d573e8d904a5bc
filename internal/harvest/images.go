package harvest

import (
	"bytes"
	"fmt"
	"math"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Context tags carried by harvested images.
const (
	ContextComponents = "components-nearby"
	ContextPage       = "page"
)

const (
	baseScoreSection = 50
	baseScorePage    = 10
	altBonus         = 10
	pathBonus        = 2
	proximityDecay   = 4.0
	minDimensionPx   = 120

	// DefaultMaxImages is the result cap when the caller does not set one.
	DefaultMaxImages = 10

	// DefaultFocus is attached when no analyzer is plugged in.
	DefaultFocus = 0.5
)

// Image is one harvested, scored image.
type Image struct {
	URL       string  `json:"url"`
	Alt       string  `json:"alt,omitempty"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Context   string  `json:"context"`
	Score     float64 `json:"score"`
	Proximity float64 `json:"proximity"`
	Focus     float64 `json:"focus"`
	Distance  int     `json:"distance"`
	// SizeSource records which heuristic produced Width/Height.
	SizeSource string `json:"sizeSource"`
}

// Component is one line harvested from the components section.
type Component struct {
	Text     string `json:"text"`
	Quantity int    `json:"quantity"`
}

// ProbeFunc reports remote image dimensions, when discoverable. ok is false
// when the probe learned nothing.
type ProbeFunc func(rawURL string) (width, height int, ok bool)

// ExtractOptions tune a single extraction pass.
type ExtractOptions struct {
	// MaxImages caps the ranked result. Zero means DefaultMaxImages.
	MaxImages int
	// Focus scores visual quality per image. Nil attaches DefaultFocus.
	Focus func(Image) float64
	// Probe fills unknown dimensions from the network. Nil skips probing,
	// keeping the extraction pure.
	Probe ProbeFunc
}

// Extraction is the outcome of one pass over a rules page.
type Extraction struct {
	AnchorFound bool
	AnchorText  string
	Components  []Component
	Images      []Image
}

// ExtractImagesFromRulesPage harvests component lines and scored images
// from one HTML document. With a nil Probe the function is pure: identical
// bytes and base URL produce an identical result.
func ExtractImagesFromRulesPage(pageHTML []byte, baseURL string, opts ExtractOptions) (*Extraction, error) {
	doc, err := html.Parse(bytes.NewReader(pageHTML))
	if err != nil {
		return nil, fmt.Errorf("parse rules page: %w", err)
	}

	out := &Extraction{}
	seen := make(map[*html.Node]bool)
	var raw []Image

	anchor, rank := findAnchor(doc)
	if anchor != nil {
		out.AnchorFound = true
		out.AnchorText = nodeText(anchor)
		blocks := section(anchor, rank)
		out.Components = componentLines(anchor, blocks)
		for _, b := range blocks {
			collectImages(b.node, b.distance, ContextComponents, baseURL, seen, &raw, opts)
		}
	}
	// Images outside the section still surface, at page rank.
	collectImages(doc, 0, ContextPage, baseURL, seen, &raw, opts)

	out.Images = rankImages(dedupe(raw), maxImages(opts))
	return out, nil
}

func maxImages(opts ExtractOptions) int {
	if opts.MaxImages > 0 {
		return opts.MaxImages
	}
	return DefaultMaxImages
}

// collectImages walks the subtree under root, skipping chrome, and appends
// one scored candidate per acceptable img element.
func collectImages(root *html.Node, distance int, context, baseURL string, seen map[*html.Node]bool, out *[]Image, opts ExtractOptions) {
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && isChrome(n) {
			return
		}
		if n.Type == html.ElementNode && n.Data == "img" && !seen[n] {
			seen[n] = true
			if img, ok := buildImage(n, distance, context, baseURL, opts); ok {
				*out = append(*out, img)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
}

var altPattern = regexp.MustCompile(`(?i)component|setup|cards?|board|tokens?|tiles?`)

var imagePathHints = []string{"/img/", "/images/", "/pics/"}

func buildImage(n *html.Node, distance int, context, baseURL string, opts ExtractOptions) (Image, bool) {
	attrs := attrMap(n)
	rawURL, srcsetWidth := bestImageURL(attrs)
	if rawURL == "" {
		return Image{}, false
	}
	canonical := CanonicalURL(rawURL, baseURL)
	if canonical == "" {
		return Image{}, false
	}
	if ext := strings.ToLower(path.Ext(pathOf(canonical))); ext == ".svg" || ext == ".gif" {
		return Image{}, false
	}

	width, height, sizeSource := resolveDims(attrs, canonical, srcsetWidth, opts.Probe, context == ContextComponents)
	if width < minDimensionPx && height < minDimensionPx {
		return Image{}, false
	}

	score := float64(baseScorePage)
	if context == ContextComponents {
		score = baseScoreSection
	}
	alt := strings.TrimSpace(attrs["alt"])
	if alt != "" && altPattern.MatchString(alt) {
		score += altBonus
	}
	p := pathOf(canonical)
	for _, hint := range imagePathHints {
		if strings.Contains(p, hint) {
			score += pathBonus
			break
		}
	}

	img := Image{
		URL:        canonical,
		Alt:        alt,
		Width:      width,
		Height:     height,
		Context:    context,
		Score:      score,
		Proximity:  math.Exp(-float64(distance) / proximityDecay),
		Distance:   distance,
		SizeSource: sizeSource,
	}
	if opts.Focus != nil {
		img.Focus = opts.Focus(img)
	} else {
		img.Focus = DefaultFocus
	}
	return img, true
}

func attrMap(n *html.Node) map[string]string {
	m := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		if _, dup := m[a.Key]; !dup {
			m[a.Key] = a.Val
		}
	}
	return m
}

// bestImageURL picks the image source by preference: src, data-src, then
// the largest candidate in srcset/data-srcset. Inline data URIs from lazy
// loaders are skipped so the real source wins.
func bestImageURL(attrs map[string]string) (string, int) {
	if v := strings.TrimSpace(attrs["src"]); v != "" && !strings.HasPrefix(v, "data:") {
		return v, 0
	}
	if v := strings.TrimSpace(attrs["data-src"]); v != "" {
		return v, 0
	}
	for _, key := range []string{"srcset", "data-srcset"} {
		if u, w := largestFromSrcset(attrs[key]); u != "" {
			return u, w
		}
	}
	return "", 0
}

// largestFromSrcset returns the candidate with the greatest width. Width
// descriptors win; a candidate with no descriptor falls back to a WxH token
// in its URL; density descriptors break remaining ties.
func largestFromSrcset(srcset string) (string, int) {
	bestURL := ""
	bestW := -1
	bestX := -1.0
	for _, part := range strings.Split(srcset, ",") {
		fields := strings.Fields(strings.TrimSpace(part))
		if len(fields) == 0 {
			continue
		}
		u := fields[0]
		w := 0
		x := 1.0
		if len(fields) > 1 {
			d := fields[len(fields)-1]
			switch {
			case strings.HasSuffix(d, "w"):
				w, _ = strconv.Atoi(strings.TrimSuffix(d, "w"))
			case strings.HasSuffix(d, "x"):
				x, _ = strconv.ParseFloat(strings.TrimSuffix(d, "x"), 64)
			}
		}
		if w == 0 {
			if uw, _ := urlDims(u); uw > 0 {
				w = uw
			}
		}
		if w > bestW || (w == bestW && x > bestX) {
			bestURL, bestW, bestX = u, w, x
		}
	}
	if bestURL == "" {
		return "", 0
	}
	if bestW < 0 {
		bestW = 0
	}
	return bestURL, bestW
}

// CanonicalURL resolves raw against base, strips tracking parameters and
// fragments, and normalizes percent-encoding. Non-HTTP targets map to "".
func CanonicalURL(raw, base string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	if base != "" {
		if b, err := url.Parse(base); err == nil {
			u = b.ResolveReference(u)
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	q := u.Query()
	for key := range q {
		lk := strings.ToLower(key)
		if strings.HasPrefix(lk, "utm_") || lk == "gclid" || lk == "fbclid" {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()
	u.Fragment = ""
	return u.String()
}

func pathOf(canonical string) string {
	if u, err := url.Parse(canonical); err == nil {
		return u.Path
	}
	return canonical
}

// dedupe collapses candidates sharing a canonical URL sans query, keeping
// the first-encountered instance. Section candidates are collected before
// the page-wide walk, so the nearest copy wins.
func dedupe(imgs []Image) []Image {
	kept := make([]Image, 0, len(imgs))
	seen := make(map[string]bool, len(imgs))
	for _, img := range imgs {
		key := img.URL
		if i := strings.IndexByte(key, '?'); i >= 0 {
			key = key[:i]
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, img)
	}
	return kept
}

// rankImages orders by score descending, then pixel area descending,
// keeping document order for full ties, and truncates to max.
func rankImages(imgs []Image, max int) []Image {
	sort.SliceStable(imgs, func(i, j int) bool {
		if imgs[i].Score != imgs[j].Score {
			return imgs[i].Score > imgs[j].Score
		}
		return imgs[i].Width*imgs[i].Height > imgs[j].Width*imgs[j].Height
	})
	if len(imgs) > max {
		imgs = imgs[:max]
	}
	return imgs
}

var leadingQuantity = regexp.MustCompile(`^(\d{1,3})\s*[x×]?\s+\S`)

// componentLines gathers list items and short paragraphs inside the
// section. A leading count like "6 dice" or "2x custom dice" becomes the
// component quantity.
func componentLines(anchor *html.Node, blocks []block) []Component {
	const maxParagraphLen = 200
	var out []Component
	add := func(text string) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		c := Component{Text: text, Quantity: 1}
		if m := leadingQuantity.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				c.Quantity = n
			}
		}
		out = append(out, c)
	}
	for _, b := range blocks {
		if b.node == anchor {
			continue
		}
		var walk func(*html.Node)
		walk = func(n *html.Node) {
			if n.Type == html.ElementNode {
				if isChrome(n) {
					return
				}
				switch n.Data {
				case "li":
					add(nodeText(n))
					return
				case "p":
					if t := nodeText(n); len(t) <= maxParagraphLen {
						add(t)
					}
					return
				}
			}
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
		}
		walk(b.node)
	}
	return out
}
