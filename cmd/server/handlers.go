package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/himanishpuri/HearBird/internal/analyzer"
	"github.com/himanishpuri/HearBird/internal/audio"
	"github.com/himanishpuri/HearBird/pkg/hearbird/classifier"
	"github.com/himanishpuri/HearBird/pkg/hearbird/model"
	"github.com/himanishpuri/HearBird/pkg/logger"
	"github.com/himanishpuri/HearBird/pkg/utils"
)

// Analyzer identifies birds in an audio file on disk.
type Analyzer interface {
	Analyze(ctx context.Context, audioPath, outputDir string, loc *analyzer.Location) ([]model.Prediction, error)
}

// Converter prepares an upload for analysis and returns the new path.
type Converter func(ctx context.Context, inputPath, outputDir string) (string, error)

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	analyzer Analyzer
	convert  Converter
	config   *ServerConfig
	limiter  *ipLimiter
	log      classifier.Logger
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	TempDir        string
	AllowedOrigins []string
	// RateLimit is the number of analyze requests per client per minute.
	RateLimit int
	// FFprobePath enables logging of clip metadata before analysis.
	FFprobePath string
}

// NewServer creates a new server instance. A nil converter analyzes uploads
// as received.
func NewServer(a Analyzer, convert Converter, config *ServerConfig) *Server {
	if config.TempDir == "" {
		config.TempDir = os.TempDir()
	}
	return &Server{
		analyzer: a,
		convert:  convert,
		config:   config,
		limiter:  newIPLimiter(config.RateLimit),
		log:      logger.GetLogger().Named("server"),
	}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.respondError(w, http.StatusNotFound, "Not found")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"service": "HearBird analysis API",
		"version": Version,
		"endpoints": map[string]string{
			"health":  "GET /health",
			"analyze": "POST /analyze",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.respondJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Version: Version})
}

// handleAnalyze handles POST /analyze
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	// Leave room for the multipart envelope around the largest clip.
	r.Body = http.MaxBytesReader(w, r.Body, audio.MaxUploadSize+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("File too large. Maximum size: %dMB", audio.MaxUploadSize>>20))
			return
		}
		s.log.Warnf("Failed to parse form: %v", err)
		s.respondError(w, http.StatusBadRequest, "Failed to parse form data")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(classifier.FileField)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	upload := audio.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
	}
	if err := audio.ValidateUpload(upload, file); err != nil {
		s.log.Warnf("Rejected upload %q: %v", header.Filename, err)
		s.respondError(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), audio.ErrInvalidUpload.Error()+": "))
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		s.respondError(w, http.StatusInternalServerError, "Failed to process upload")
		return
	}

	loc, err := parseLocation(r.FormValue("lat"), r.FormValue("lon"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	workDir, err := os.MkdirTemp(s.config.TempDir, "birdnet_")
	if err != nil {
		s.log.Errorf("Failed to create work dir: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to process upload")
		return
	}
	defer func() {
		if err := utils.DeleteDir(workDir); err != nil {
			s.log.Warnf("Failed to clean up %s: %v", workDir, err)
		}
	}()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	audioPath := filepath.Join(workDir, "audio_"+strings.ReplaceAll(uuid.NewString(), "-", "")+ext)
	if err := saveUpload(file, audioPath); err != nil {
		s.log.Errorf("Failed to save upload: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to save uploaded file")
		return
	}

	if s.convert != nil {
		converted, err := s.convert(r.Context(), audioPath, filepath.Join(workDir, "wav"))
		if err != nil {
			s.log.Warnf("Conversion of %s failed, analyzing original: %v", filepath.Base(audioPath), err)
		} else {
			audioPath = converted
		}
	}

	if s.config.FFprobePath != "" {
		if meta, err := audio.Probe(r.Context(), s.config.FFprobePath, audioPath); err != nil {
			s.log.Warnf("Probe of %s failed: %v", filepath.Base(audioPath), err)
		} else {
			s.log.Debugf("Clip %s: %.1fs, %d Hz, %d ch, %s", meta.Filename, meta.DurationSec, meta.SampleRate, meta.Channels, meta.Format)
		}
	}

	s.log.Infof("Analyzing %s (%d bytes)", header.Filename, header.Size)
	preds, err := s.analyzer.Analyze(r.Context(), audioPath, workDir, loc)
	if err != nil {
		s.log.Errorf("Analysis failed: %v", err)
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if preds == nil {
		preds = []model.Prediction{}
	}

	s.respondJSON(w, http.StatusOK, AnalyzeResponse{Msg: "success", Results: preds})
}

func saveUpload(src io.Reader, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
