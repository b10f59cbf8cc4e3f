package main

import (
	"context"
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/himanishpuri/HearBird/internal/analyzer"
	"github.com/himanishpuri/HearBird/internal/audio"
	"github.com/himanishpuri/HearBird/pkg/logger"
)

var (
	port           int
	tempDir        string
	allowedOrigins string
	python         string
	timeout        time.Duration
	rateLimit      int
	convert        bool
	ffmpegPath     string
	ffprobePath    string
)

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func registerFlags() {
	flag.IntVar(&port, "port", getEnvInt("PORT", 8000), "HTTP server port")
	flag.StringVar(&tempDir, "temp", getEnvOrDefault("HEARBIRD_TEMP_DIR", os.TempDir()), "Directory for per-request work dirs")
	flag.StringVar(&allowedOrigins, "origins", getEnvOrDefault("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173"), "Comma-separated list of allowed CORS origins (use * for all)")
	flag.StringVar(&python, "python", getEnvOrDefault("BIRDNET_PYTHON", analyzer.DefaultPython), "Python interpreter with birdnet_analyzer installed")
	flag.DurationVar(&timeout, "timeout", analyzer.DefaultTimeout, "Analysis time limit per request")
	flag.IntVar(&rateLimit, "rate-limit", getEnvInt("RATE_LIMIT", 5), "Analyze requests per client per minute (0 disables)")
	flag.BoolVar(&convert, "convert", true, "Convert uploads to mono WAV with ffmpeg before analysis")
	flag.StringVar(&ffmpegPath, "ffmpeg", getEnvOrDefault("FFMPEG_PATH", "ffmpeg"), "ffmpeg binary")
	flag.StringVar(&ffprobePath, "ffprobe", os.Getenv("FFPROBE_PATH"), "ffprobe binary for logging clip metadata (empty disables)")
}

func main() {
	// .env is optional
	_ = godotenv.Load()
	registerFlags()
	flag.Parse()

	log := logger.GetLogger()

	origins := validateOrigins(strings.Split(allowedOrigins, ","))
	if len(origins) == 0 {
		log.Warnf("No valid CORS origins configured; cross-origin requests will be refused")
	}

	a := analyzer.New()
	a.Python = python
	a.Timeout = timeout

	var conv Converter
	if convert {
		conv = func(ctx context.Context, in, outDir string) (string, error) {
			return audio.ConvertToMonoWAV(ctx, in, outDir, audio.ConvertWAVConfig{FFmpegPath: ffmpegPath})
		}
	}

	server := NewServer(a, conv, &ServerConfig{
		Port:           port,
		TempDir:        tempDir,
		AllowedOrigins: origins,
		RateLimit:      rateLimit,
		FFprobePath:    ffprobePath,
	})
	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
