package reference

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/himanishpuri/HearBird/pkg/hearbird/model"
)

// Store is a read-only species catalogue keyed by scientific name.
type Store interface {
	// Lookup matches the scientific name exactly (case-sensitive).
	Lookup(scientificName string) (model.ReferenceEntry, bool)
	// Entries returns every entry sorted by scientific name.
	Entries() []model.ReferenceEntry
	Len() int
}

// MemoryStore is an immutable in-memory Store. It is safe for concurrent use
// because nothing mutates it after construction.
type MemoryStore struct {
	entries map[string]model.ReferenceEntry
	names   []string
}

// NewMemoryStore copies entries into a new store. Blank or duplicate
// scientific names are rejected.
func NewMemoryStore(entries []model.ReferenceEntry) (*MemoryStore, error) {
	s := &MemoryStore{
		entries: make(map[string]model.ReferenceEntry, len(entries)),
		names:   make([]string, 0, len(entries)),
	}
	for i, e := range entries {
		if strings.TrimSpace(e.ScientificName) == "" {
			return nil, fmt.Errorf("entry %d: scientific name is required", i)
		}
		if _, dup := s.entries[e.ScientificName]; dup {
			return nil, fmt.Errorf("entry %d: duplicate scientific name %q", i, e.ScientificName)
		}
		if cx := e.CoverImageCenterX; cx != nil {
			if *cx < 0 || *cx > 1 {
				return nil, fmt.Errorf("entry %q: coverImageCenterX %v outside [0,1]", e.ScientificName, *cx)
			}
			v := *cx
			e.CoverImageCenterX = &v
		}
		s.entries[e.ScientificName] = e
		s.names = append(s.names, e.ScientificName)
	}
	sort.Strings(s.names)
	return s, nil
}

func (s *MemoryStore) Lookup(scientificName string) (model.ReferenceEntry, bool) {
	e, ok := s.entries[scientificName]
	if !ok {
		return model.ReferenceEntry{}, false
	}
	return cloneEntry(e), true
}

func (s *MemoryStore) Entries() []model.ReferenceEntry {
	out := make([]model.ReferenceEntry, 0, len(s.names))
	for _, name := range s.names {
		out = append(out, cloneEntry(s.entries[name]))
	}
	return out
}

func (s *MemoryStore) Len() int { return len(s.names) }

func cloneEntry(e model.ReferenceEntry) model.ReferenceEntry {
	if e.CoverImageCenterX != nil {
		v := *e.CoverImageCenterX
		e.CoverImageCenterX = &v
	}
	return e
}

// DecodeJSON reads a JSON array of reference entries.
func DecodeJSON(r io.Reader) ([]model.ReferenceEntry, error) {
	var entries []model.ReferenceEntry
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&entries); err != nil {
		return nil, fmt.Errorf("decoding reference catalogue: %w", err)
	}
	return entries, nil
}

// EncodeJSON writes entries as an indented JSON array.
func EncodeJSON(w io.Writer, entries []model.ReferenceEntry) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(entries)
}
