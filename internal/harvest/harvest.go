package harvest

import (
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ubglab/ruleharvest/internal/slug"
)

// tinyImageBytes marks HEAD-probed files small enough to be decorative.
const tinyImageBytes = 2048

// Options control one harvest call.
type Options struct {
	// AlsoOverview harvests the game overview page in addition to the
	// rules page and merges the image sets.
	AlsoOverview bool
	// MaxImages caps the ranked image list. Zero means DefaultMaxImages.
	MaxImages int
	// ProbeRemoteSize enables HEAD probing of unknown image dimensions.
	// Setting UBG_PROBE_SIZE=1 in the environment enables it too.
	ProbeRemoteSize bool
	// Focus plugs in a visual quality analyzer for harvested images.
	Focus func(Image) float64
}

// Result is the outcome of one harvest. On resolver exhaustion Components
// is empty and TriedURLs still carries the probe trail.
type Result struct {
	RulesURL    string      `json:"rulesUrl"`
	Slug        string      `json:"slug"`
	Heading     string      `json:"heading,omitempty"`
	Components  []Component `json:"components"`
	Images      []Image     `json:"images"`
	TriedURLs   []string    `json:"triedUrls"`
	CacheStatus string      `json:"cacheStatus,omitempty"`
}

// Harvester resolves a title to its rules page and extracts component
// lines and scored images from it.
type Harvester struct {
	Resolver *slug.Resolver
}

// Components harvests the components section for title. The error is
// non-nil when no rules page resolved; the returned Result is non-nil
// either way.
func (h *Harvester) Components(ctx context.Context, title string, opts Options) (*Result, error) {
	res, err := h.Resolver.Resolve(ctx, title)
	if err != nil {
		out := &Result{Components: []Component{}, Images: []Image{}}
		if res != nil {
			out.TriedURLs = res.Tried
		}
		return out, err
	}

	var probe ProbeFunc
	if opts.ProbeRemoteSize || os.Getenv("UBG_PROBE_SIZE") == "1" {
		probe = h.headProbe(ctx)
	}
	eopts := ExtractOptions{MaxImages: opts.MaxImages, Focus: opts.Focus, Probe: probe}

	extraction, err := ExtractImagesFromRulesPage(res.Body, res.RulesURL, eopts)
	if err != nil {
		return &Result{Slug: res.Slug, RulesURL: res.RulesURL, TriedURLs: res.Tried, Components: []Component{}, Images: []Image{}}, err
	}

	result := &Result{
		RulesURL:    res.RulesURL,
		Slug:        res.Slug,
		Heading:     extraction.AnchorText,
		Components:  extraction.Components,
		Images:      extraction.Images,
		TriedURLs:   res.Tried,
		CacheStatus: string(res.Outcome),
	}
	if result.Components == nil {
		result.Components = []Component{}
	}
	if opts.AlsoOverview {
		h.mergeOverview(ctx, result, eopts)
	}
	return result, nil
}

// mergeOverview folds images from the game overview page into the result.
// The overview never displaces rules-page components, only fills gaps.
func (h *Harvester) mergeOverview(ctx context.Context, result *Result, eopts ExtractOptions) {
	base := h.Resolver.BaseURL
	if base == "" {
		base = slug.DefaultBaseURL
	}
	u := strings.TrimRight(base, "/") + "/" + result.Slug + "/index.php"
	if u == result.RulesURL {
		return
	}
	fres, err := h.Resolver.Fetcher.FetchHTML(ctx, u)
	if err != nil {
		log.Debug().Err(err).Str("url", u).Msg("overview page not harvested")
		return
	}
	result.TriedURLs = append(result.TriedURLs, u)
	over, err := ExtractImagesFromRulesPage(fres.Body, fres.FinalURL, eopts)
	if err != nil {
		return
	}
	if len(result.Components) == 0 {
		result.Components = over.Components
	}
	if result.Heading == "" {
		result.Heading = over.AnchorText
	}
	result.Images = rankImages(dedupe(append(result.Images, over.Images...)), maxImages(eopts))
}

// headProbe inspects response headers for a size signal. Pixel dimensions
// rarely travel in headers, so the probe settles for flagging byte-tiny
// files, which the dimension floor then rejects.
func (h *Harvester) headProbe(ctx context.Context) ProbeFunc {
	return func(raw string) (int, int, bool) {
		_, hdr, err := h.Resolver.Fetcher.ProbeHead(ctx, raw)
		if err != nil {
			return 0, 0, false
		}
		if cl, cerr := strconv.Atoi(hdr.Get("Content-Length")); cerr == nil && cl > 0 && cl < tinyImageBytes {
			return 1, 1, true
		}
		return 0, 0, false
	}
}
