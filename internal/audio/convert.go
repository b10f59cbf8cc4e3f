package audio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/himanishpuri/HearBird/pkg/utils"
)

// BirdNET models expect 48 kHz input.
const DefaultAnalysisSampleRate = 48000

type ConvertWAVConfig struct {
	SampleRate int
	FFmpegPath string
}

// ConvertToMonoWAV converts an audio file to mono 16-bit PCM WAV in outputDir.
// The output keeps the input's base name with a .wav extension.
func ConvertToMonoWAV(ctx context.Context, inputPath, outputDir string, cfg ConvertWAVConfig) (string, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = DefaultAnalysisSampleRate
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}

	if err := utils.MakeDir(outputDir); err != nil {
		return "", err
	}

	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	outputPath := filepath.Join(outputDir, base+".wav")
	tmpPath := outputPath + ".tmp.wav"
	defer utils.DeleteFile(tmpPath)

	cmd := exec.CommandContext(ctx, cfg.FFmpegPath,
		"-y",
		"-v", "quiet",
		"-i", inputPath,
		"-ac", "1",
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-c:a", "pcm_s16le",
		tmpPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("ffmpeg failed: %v (%s)", err, strings.TrimSpace(string(out)))
	}

	if err := utils.MoveFile(tmpPath, outputPath); err != nil {
		return "", err
	}
	return outputPath, nil
}

// Metadata is what ffprobe reports about a clip.
type Metadata struct {
	Filename    string
	DurationSec float64
	SampleRate  int
	Channels    int
	Format      string
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
		Format   string `json:"format_name"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
	} `json:"streams"`
}

// Probe reads clip metadata with ffprobe.
func Probe(ctx context.Context, ffprobePath, path string) (*Metadata, error) {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}

	out, err := exec.CommandContext(ctx, ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	).Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}
	return parseProbe(path, out)
}

func parseProbe(path string, out []byte) (*Metadata, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, fmt.Errorf("decoding ffprobe output: %w", err)
	}

	for _, s := range probe.Streams {
		if s.CodecType != "audio" {
			continue
		}
		duration, _ := strconv.ParseFloat(probe.Format.Duration, 64)
		sampleRate, _ := strconv.Atoi(s.SampleRate)
		return &Metadata{
			Filename:    filepath.Base(path),
			DurationSec: duration,
			SampleRate:  sampleRate,
			Channels:    s.Channels,
			Format:      probe.Format.Format,
		}, nil
	}
	return nil, errors.New("no audio stream found")
}
