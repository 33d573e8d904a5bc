// Package harvest locates the components section of a rules page and
// collects component lines and scored images from it.
package harvest

import (
	"strings"

	"golang.org/x/net/html"
)

// anchorTexts are the recognized components-section headings across the
// languages the rules host publishes in. A heading qualifies when its
// trimmed, case-folded text equals an entry or starts with one.
var anchorTexts = []string{
	"components",
	"game components",
	"contents",
	"spielmaterial",
	"contenu",
	"componentes",
	"componenti",
	"matériel",
	"composants",
	"contenidos",
	"materiale",
	"material",
}

// nonHeadingRank orders strong/b/p anchors below every real heading, so any
// h1..h6 sibling closes the section.
const nonHeadingRank = 7

// maxSectionSpan bounds the sibling walk on pathological pages.
const maxSectionSpan = 200

var chromeMarkers = []string{"sidebar", "footer", "advert", "comments"}

func isChrome(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, a := range n.Attr {
		if a.Key != "class" && a.Key != "id" {
			continue
		}
		v := strings.ToLower(a.Val)
		for _, m := range chromeMarkers {
			if strings.Contains(v, m) {
				return true
			}
		}
	}
	return false
}

func headingRank(n *html.Node) int {
	if n.Type != html.ElementNode || len(n.Data) != 2 || n.Data[0] != 'h' {
		return 0
	}
	if c := n.Data[1]; c >= '1' && c <= '6' {
		return int(c - '0')
	}
	return 0
}

func matchesAnchor(text string) bool {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return false
	}
	for _, a := range anchorTexts {
		if text == a || strings.HasPrefix(text, a) {
			return true
		}
	}
	return false
}

// findAnchor returns the components anchor node and its rank. Headings
// h1..h4 win over strong/b/p; within each tier the first match in document
// order wins.
func findAnchor(doc *html.Node) (*html.Node, int) {
	var heading, inline *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if heading != nil {
			return
		}
		if n.Type == html.ElementNode {
			if isChrome(n) {
				return
			}
			if r := headingRank(n); r >= 1 && r <= 4 {
				if matchesAnchor(nodeText(n)) {
					heading = n
					return
				}
			} else if inline == nil && (n.Data == "strong" || n.Data == "b" || n.Data == "p") {
				if matchesAnchor(nodeText(n)) {
					inline = n
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if heading != nil {
		return heading, headingRank(heading)
	}
	if inline != nil {
		return inline, nonHeadingRank
	}
	return nil, 0
}

// block is one sibling of the section, tagged with how many element
// siblings separate it from the anchor.
type block struct {
	node     *html.Node
	distance int
}

// section walks forward from the anchor, climbing out of exhausted parents
// without re-entering them, and stops at the first heading of equal or
// higher rank than the anchor. The anchor itself is the distance-0 block.
func section(anchor *html.Node, anchorRank int) []block {
	blocks := []block{{node: anchor, distance: 0}}
	cur := anchor
	distance := 0
	for visited := 0; visited < maxSectionSpan; {
		next := cur.NextSibling
		for next == nil {
			p := cur.Parent
			if p == nil || p.Type != html.ElementNode || p.Data == "body" || p.Data == "html" {
				break
			}
			cur = p
			next = cur.NextSibling
		}
		if next == nil {
			break
		}
		cur = next
		if cur.Type != html.ElementNode {
			continue
		}
		visited++
		if r := headingRank(cur); r > 0 && r <= anchorRank {
			break
		}
		distance++
		if isChrome(cur) {
			continue
		}
		blocks = append(blocks, block{node: cur, distance: distance})
	}
	return blocks
}

// nodeText flattens the text beneath n to single-spaced words.
func nodeText(n *html.Node) string {
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
