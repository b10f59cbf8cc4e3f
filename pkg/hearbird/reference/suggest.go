package reference

import (
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"github.com/himanishpuri/HearBird/pkg/hearbird/model"
)

// DefaultSuggestThreshold is the Jaro-Winkler similarity below which no
// suggestion is made.
const DefaultSuggestThreshold = 0.85

// Closest finds the catalogued species whose scientific name is most similar
// to name. It is a display hint only; lookups stay exact.
func Closest(s Store, name string, threshold float64) (model.ReferenceEntry, float64, bool) {
	query := strings.ToLower(strings.TrimSpace(name))
	if query == "" || s == nil {
		return model.ReferenceEntry{}, 0, false
	}

	jw := metrics.NewJaroWinkler()
	var (
		best      model.ReferenceEntry
		bestScore float64
		found     bool
	)
	for _, e := range s.Entries() {
		score := strutil.Similarity(query, strings.ToLower(e.ScientificName), jw)
		if score >= threshold && score > bestScore {
			best, bestScore, found = e, score, true
		}
	}
	return best, bestScore, found
}
