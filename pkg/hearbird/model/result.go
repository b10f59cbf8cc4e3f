package model

// DefaultFocalPoint is the horizontal cover-image focus used when a reference
// entry does not specify one.
const DefaultFocalPoint = 0.5

// ReferenceEntry is the catalogued description of a species, keyed by its
// scientific name.
type ReferenceEntry struct {
	ScientificName    string   `json:"scientificName"`
	CommonName        string   `json:"commonName"`
	Description       string   `json:"description"`
	Image             string   `json:"image"`
	CoverImage        string   `json:"coverImage"`
	CoverImageCenterX *float64 `json:"coverImageCenterX,omitempty"`
	WikiLink          string   `json:"wikiLink,omitempty"`
}

// FocalPoint returns the cover image centre in [0,1].
func (e ReferenceEntry) FocalPoint() float64 {
	if e.CoverImageCenterX == nil {
		return DefaultFocalPoint
	}
	return *e.CoverImageCenterX
}

// EnrichedResult is a prediction joined with its reference entry, or with
// placeholder data when the species is not catalogued.
type EnrichedResult struct {
	Prediction
	Image             string  `json:"image"`
	CoverImage        string  `json:"coverImage"`
	Description       string  `json:"description"`
	CoverImageCenterX float64 `json:"coverImageCenterX"`
	WikiLink          *string `json:"wikiLink"`
	MatchPercentage   int     `json:"matchPercentage"`
	Catalogued        bool    `json:"catalogued"`
}
