// Package manifest defines the ingestion manifest: the immutable JSON
// artifact the pipeline emits and every downstream renderer consumes. The
// field layout is a wire contract; ordering inside every slice is
// deterministic for identical inputs.
package manifest

import (
	"encoding/json"
	"time"

	"github.com/ubglab/ruleharvest/internal/bgg"
	"github.com/ubglab/ruleharvest/internal/harvest"
	"github.com/ubglab/ruleharvest/internal/pdfingest"
)

// ContractVersion is the SemVer of the manifest wire format.
const ContractVersion = "1.2.0"

// GameIdentity names the game a manifest describes. Slug is the canonical
// lowercase hyphenated form and is stable for identical titles.
type GameIdentity struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
	BGGID string `json:"bggId,omitempty"`
}

// HarvestInfo records where and how the component harvest ran.
type HarvestInfo struct {
	RulesURL    string   `json:"rulesUrl,omitempty"`
	Slug        string   `json:"slug,omitempty"`
	Heading     string   `json:"heading,omitempty"`
	TriedURLs   []string `json:"triedUrls,omitempty"`
	CacheStatus string   `json:"cacheStatus,omitempty"`
}

// Assets groups the raw material collected for the renderer: text pages by
// page number and images by rank.
type Assets struct {
	Pages  []pdfingest.Page `json:"pages"`
	Images []harvest.Image  `json:"images"`
}

// OCRUsage records which pages needed OCR and whether an engine was missing.
type OCRUsage struct {
	Pages       []int `json:"pages,omitempty"`
	Unavailable bool  `json:"unavailable,omitempty"`
}

// IngestionManifest is the pipeline's output. Once emitted it is never
// mutated; rebuilds produce a fresh document.
type IngestionManifest struct {
	ContractVersion string              `json:"contractVersion"`
	ID              string              `json:"id"`
	Game            GameIdentity        `json:"game"`
	GeneratedAt     time.Time           `json:"generatedAt"`
	Outline         []string            `json:"outline"`
	Components      []harvest.Component `json:"components"`
	Assets          Assets              `json:"assets"`
	OCR             OCRUsage            `json:"ocr"`
	BGG             *bgg.Metadata       `json:"bgg,omitempty"`
	Harvest         *HarvestInfo        `json:"harvest,omitempty"`
	// Partial lists the reasons any stage degraded; empty means a full run.
	Partial []string `json:"partial,omitempty"`
}

// Encode serializes the manifest canonically. Identical manifests encode to
// identical bytes: struct order is fixed and no maps are involved.
func (m *IngestionManifest) Encode() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// Parse decodes a manifest produced by Encode.
func Parse(data []byte) (*IngestionManifest, error) {
	var m IngestionManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
