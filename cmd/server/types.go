package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/himanishpuri/HearBird/internal/analyzer"
	"github.com/himanishpuri/HearBird/pkg/hearbird/model"
)

const Version = "1.0.0"

// AnalyzeResponse is the body of a successful POST /analyze.
type AnalyzeResponse struct {
	Msg     string             `json:"msg"`
	Results []model.Prediction `json:"results"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// parseLocation reads the optional lat/lon form fields. Both must be present
// for a location to be used.
func parseLocation(lat, lon string) (*analyzer.Location, error) {
	lat, lon = strings.TrimSpace(lat), strings.TrimSpace(lon)
	if lat == "" || lon == "" {
		return nil, nil
	}
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil || la < -90 || la > 90 {
		return nil, fmt.Errorf("invalid latitude: %s", lat)
	}
	lo, err := strconv.ParseFloat(lon, 64)
	if err != nil || lo < -180 || lo > 180 {
		return nil, fmt.Errorf("invalid longitude: %s", lon)
	}
	return &analyzer.Location{Lat: la, Lon: lo}, nil
}
