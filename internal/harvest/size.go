package harvest

import (
	"regexp"
	"strconv"
	"strings"
)

// Dimension defaults when nothing else is known. Section images are
// assumed to be content illustrations, page images smaller inline figures.
const (
	defaultSectionWidth  = 320
	defaultSectionHeight = 240
	defaultPageWidth     = 200
	defaultPageHeight    = 150
)

var urlDimsPattern = regexp.MustCompile(`(\d{2,4})[xX](\d{2,4})`)

// urlDims parses a WxH token such as "card-640x480.jpg" out of a path.
func urlDims(p string) (int, int) {
	m := urlDimsPattern.FindStringSubmatch(p)
	if m == nil {
		return 0, 0
	}
	w, _ := strconv.Atoi(m[1])
	h, _ := strconv.Atoi(m[2])
	return w, h
}

func parsePixels(v string) int {
	v = strings.TrimSpace(v)
	v = strings.TrimSuffix(v, "px")
	if v == "" || strings.HasSuffix(v, "%") {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// The SizeSource values an Image can carry: the highest-preference
// heuristic that contributed a dimension.
const (
	SizeSourceAttr    = "attr"
	SizeSourceURL     = "url"
	SizeSourceSrcset  = "srcset"
	SizeSourceProbe   = "probe"
	SizeSourceDefault = "default"
)

// resolveDims settles image dimensions by source preference: width/height
// attributes, a WxH token in the URL path, the srcset width, an optional
// network probe, then context-sized defaults. The returned source names the
// first heuristic in that order that contributed a dimension.
func resolveDims(attrs map[string]string, canonical string, srcsetWidth int, probe ProbeFunc, inSection bool) (int, int, string) {
	source := SizeSourceDefault
	w := parsePixels(attrs["width"])
	h := parsePixels(attrs["height"])
	if w > 0 || h > 0 {
		source = SizeSourceAttr
	}
	if w == 0 || h == 0 {
		if uw, uh := urlDims(pathOf(canonical)); uw > 0 {
			if source == SizeSourceDefault {
				source = SizeSourceURL
			}
			if w == 0 {
				w = uw
			}
			if h == 0 {
				h = uh
			}
		}
	}
	if w == 0 && srcsetWidth > 0 {
		w = srcsetWidth
		if source == SizeSourceDefault {
			source = SizeSourceSrcset
		}
	}
	if (w == 0 || h == 0) && probe != nil {
		if pw, ph, ok := probe(canonical); ok && (pw > 0 || ph > 0) {
			if source == SizeSourceDefault {
				source = SizeSourceProbe
			}
			if w == 0 && pw > 0 {
				w = pw
			}
			if h == 0 && ph > 0 {
				h = ph
			}
		}
	}
	if w == 0 {
		w = defaultPageWidth
		if inSection {
			w = defaultSectionWidth
		}
	}
	if h == 0 {
		h = defaultPageHeight
		if inSection {
			h = defaultSectionHeight
		}
	}
	return w, h, source
}
