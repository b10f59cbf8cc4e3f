package classifier

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/himanishpuri/HearBird/pkg/hearbird/model"
)

// Shape selects the wire contract for start, end and confidence.
type Shape int

const (
	// ShapeNumeric encodes the three values as JSON numbers.
	ShapeNumeric Shape = iota
	// ShapeString encodes them as decimal strings ("0.9823"), as emitted by
	// the original BirdNET wrapper.
	ShapeString
)

func (s Shape) String() string {
	if s == ShapeString {
		return "string"
	}
	return "numeric"
}

// ParseShape maps "numeric" or "string" to a Shape. Empty means numeric.
func ParseShape(name string) (Shape, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "numeric", "number":
		return ShapeNumeric, nil
	case "string", "legacy":
		return ShapeString, nil
	}
	return ShapeNumeric, fmt.Errorf("unknown wire shape %q (want numeric or string)", name)
}

var predictionFields = []string{"start", "end", "scientificName", "commonName", "confidence"}

// Decode parses a classifier response body and checks it against the
// contract selected by shape. Unknown fields are ignored.
func Decode(body []byte, shape Shape) (*model.Response, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	if top == nil {
		return nil, errors.New("response is not a JSON object")
	}

	rawMsg, ok := top["msg"]
	if !ok {
		return nil, errors.New(`missing field "msg"`)
	}
	msg, err := decodeString(rawMsg)
	if err != nil {
		return nil, fmt.Errorf("msg: %w", err)
	}

	rawResults, ok := top["results"]
	if !ok {
		return nil, errors.New(`missing field "results"`)
	}
	if kind(rawResults) != '[' {
		return nil, errors.New("results: expected an array")
	}
	var items []json.RawMessage
	if err := json.Unmarshal(rawResults, &items); err != nil {
		return nil, fmt.Errorf("results: %w", err)
	}

	resp := &model.Response{Msg: msg, Results: make([]model.Prediction, 0, len(items))}
	for i, item := range items {
		p, err := decodePrediction(item, shape)
		if err != nil {
			return nil, fmt.Errorf("results[%d].%w", i, err)
		}
		resp.Results = append(resp.Results, p)
	}
	return resp, nil
}

type fieldError struct {
	field string
	err   error
}

func (e *fieldError) Error() string { return e.field + ": " + e.err.Error() }
func (e *fieldError) Unwrap() error { return e.err }

func decodePrediction(raw json.RawMessage, shape Shape) (model.Prediction, error) {
	var p model.Prediction
	if kind(raw) != '{' {
		return p, &fieldError{"item", errors.New("expected an object")}
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return p, &fieldError{"item", err}
	}
	for _, name := range predictionFields {
		if _, ok := fields[name]; !ok {
			return p, &fieldError{name, errors.New("missing")}
		}
	}

	var err error
	if p.ScientificName, err = decodeName(fields["scientificName"]); err != nil {
		return p, &fieldError{"scientificName", err}
	}
	if p.CommonName, err = decodeName(fields["commonName"]); err != nil {
		return p, &fieldError{"commonName", err}
	}
	if p.Start, err = decodeNumber(fields["start"], shape); err != nil {
		return p, &fieldError{"start", err}
	}
	if p.End, err = decodeNumber(fields["end"], shape); err != nil {
		return p, &fieldError{"end", err}
	}
	if p.Confidence, err = decodeNumber(fields["confidence"], shape); err != nil {
		return p, &fieldError{"confidence", err}
	}

	switch {
	case p.Confidence < 0 || p.Confidence > 1:
		return p, &fieldError{"confidence", fmt.Errorf("%v outside [0,1]", p.Confidence)}
	case p.Start < 0:
		return p, &fieldError{"start", fmt.Errorf("negative offset %v", p.Start)}
	case p.End < p.Start:
		return p, &fieldError{"end", fmt.Errorf("%v before start %v", p.End, p.Start)}
	}
	return p, nil
}

// kind returns the first significant byte of a JSON value.
func kind(raw json.RawMessage) byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}

func decodeString(raw json.RawMessage) (string, error) {
	if kind(raw) != '"' {
		return "", errors.New("expected a string")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	return s, nil
}

func decodeName(raw json.RawMessage) (string, error) {
	s, err := decodeString(raw)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(s) == "" {
		return "", errors.New("empty")
	}
	return s, nil
}

func decodeNumber(raw json.RawMessage, shape Shape) (float64, error) {
	var v float64
	switch shape {
	case ShapeString:
		s, err := decodeString(raw)
		if err != nil {
			return 0, errors.New("expected a numeric string")
		}
		v, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("not numeric: %q", s)
		}
	default:
		c := kind(raw)
		if c != '-' && (c < '0' || c > '9') {
			return 0, errors.New("expected a number")
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return 0, err
		}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("not finite")
	}
	return v, nil
}
