package model

// Prediction is one species detection returned by the classifier.
// Start and End are offsets in seconds within the submitted clip.
type Prediction struct {
	Start          float64 `json:"start"`
	End            float64 `json:"end"`
	ScientificName string  `json:"scientificName"`
	CommonName     string  `json:"commonName"`
	Confidence     float64 `json:"confidence"` // 0-1
}

// Response is a validated classifier answer. Results may be empty when
// nothing was detected.
type Response struct {
	Msg     string       `json:"msg"`
	Results []Prediction `json:"results"`
}

// Clone returns a deep copy so shared responses (e.g. canned fallback data)
// cannot be mutated by callers.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	out := &Response{Msg: r.Msg, Results: make([]Prediction, len(r.Results))}
	copy(out.Results, r.Results)
	return out
}
