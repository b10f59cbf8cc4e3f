// Package enrich joins classifier predictions with the reference catalogue
// and ranks them for display.
package enrich

import (
	"math"
	"sort"

	"github.com/himanishpuri/HearBird/pkg/hearbird/model"
	"github.com/himanishpuri/HearBird/pkg/hearbird/reference"
)

const (
	// PlaceholderImage stands in for both images of an uncatalogued species.
	PlaceholderImage = "https://images.unsplash.com/photo-1552728089-57bdde30beb8?q=80&w=1000&auto=format&fit=crop"
	NoDescription    = "No description available."
)

// Enricher joins classifier predictions with the reference catalogue.
type Enricher struct {
	store reference.Store
}

// New creates an enricher backed by store.
func New(store reference.Store) *Enricher {
	return &Enricher{store: store}
}

// Enrich returns one result per prediction, sorted by match percentage
// (highest first). Equal percentages keep their response order.
func (e *Enricher) Enrich(resp *model.Response) []model.EnrichedResult {
	if resp == nil || len(resp.Results) == 0 {
		return []model.EnrichedResult{}
	}

	out := make([]model.EnrichedResult, len(resp.Results))
	for i, p := range resp.Results {
		out[i] = e.enrichOne(p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MatchPercentage > out[j].MatchPercentage
	})
	return out
}

func (e *Enricher) enrichOne(p model.Prediction) model.EnrichedResult {
	r := model.EnrichedResult{
		Prediction:      p,
		MatchPercentage: MatchPercentage(p.Confidence),
	}

	var (
		entry model.ReferenceEntry
		ok    bool
	)
	if e.store != nil {
		entry, ok = e.store.Lookup(p.ScientificName)
	}
	if !ok {
		r.Image = PlaceholderImage
		r.CoverImage = PlaceholderImage
		r.Description = NoDescription
		r.CoverImageCenterX = model.DefaultFocalPoint
		return r
	}

	r.Catalogued = true
	r.Image = entry.Image
	r.CoverImage = entry.CoverImage
	r.Description = entry.Description
	r.CoverImageCenterX = entry.FocalPoint()
	if entry.WikiLink != "" {
		link := entry.WikiLink
		r.WikiLink = &link
	}
	return r
}

// MatchPercentage converts a confidence in [0,1] to a whole percentage,
// rounding half up and clamping to [0,100].
func MatchPercentage(confidence float64) int {
	if math.IsNaN(confidence) {
		return 0
	}
	pct := math.Round(confidence * 100)
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return int(pct)
}

// Split separates the primary match from the alternate possibilities.
// primary is nil for an empty list.
func Split(results []model.EnrichedResult) (primary *model.EnrichedResult, alternates []model.EnrichedResult) {
	if len(results) == 0 {
		return nil, nil
	}
	first := results[0]
	return &first, results[1:]
}
