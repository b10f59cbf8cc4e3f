package analyzer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/himanishpuri/HearBird/pkg/hearbird/model"
)

var (
	secondsSuffix = regexp.MustCompile(`(?i)\s*\(s\)\s*`)
	wordSplit     = regexp.MustCompile(`[^0-9a-zA-Z]+`)
)

// NormalizeHeader turns a BirdNET column title into a camelCase key:
// "Start (s)" -> "start", "Scientific name" -> "scientificName".
func NormalizeHeader(header string) string {
	cleaned := strings.TrimSpace(secondsSuffix.ReplaceAllString(header, " "))
	var parts []string
	for _, p := range wordSplit.Split(cleaned, -1) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(strings.ToLower(parts[0]))
	for _, p := range parts[1:] {
		lower := []rune(strings.ToLower(p))
		lower[0] = unicode.ToUpper(lower[0])
		b.WriteString(string(lower))
	}
	return b.String()
}

// ParseCSV reads a BirdNET result table into predictions. The file column is
// dropped; columns other than the five prediction fields are ignored.
func ParseCSV(r io.Reader) ([]model.Prediction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return []model.Prediction{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), "file") {
			continue
		}
		if key := NormalizeHeader(h); key != "" {
			index[key] = i
		}
	}
	for _, required := range []string{"start", "end", "scientificName", "commonName", "confidence"} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	preds := []model.Prediction{}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		field := func(key string) string {
			if i := index[key]; i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}

		var p model.Prediction
		p.ScientificName = field("scientificName")
		p.CommonName = field("commonName")
		if p.Start, err = strconv.ParseFloat(field("start"), 64); err != nil {
			return nil, fmt.Errorf("line %d: start: %w", line, err)
		}
		if p.End, err = strconv.ParseFloat(field("end"), 64); err != nil {
			return nil, fmt.Errorf("line %d: end: %w", line, err)
		}
		if p.Confidence, err = strconv.ParseFloat(field("confidence"), 64); err != nil {
			return nil, fmt.Errorf("line %d: confidence: %w", line, err)
		}
		preds = append(preds, p)
	}
	return preds, nil
}
