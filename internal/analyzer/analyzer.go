package analyzer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/himanishpuri/HearBird/pkg/hearbird/model"
	"github.com/himanishpuri/HearBird/pkg/logger"
)

const (
	DefaultPython  = "python3"
	DefaultModule  = "birdnet_analyzer.analyze"
	DefaultTimeout = 300 * time.Second
)

// ErrTimeout is returned when the analyzer process exceeds its time limit.
var ErrTimeout = errors.New("BirdNET analysis timed out")

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}

// Location narrows the species list to a region.
type Location struct {
	Lat float64
	Lon float64
}

// Analyzer runs the BirdNET analyzer as a child process.
type Analyzer struct {
	Python  string
	Module  string
	Timeout time.Duration
	Log     Logger
}

func New() *Analyzer {
	return &Analyzer{
		Python:  DefaultPython,
		Module:  DefaultModule,
		Timeout: DefaultTimeout,
		Log:     logger.GetLogger().Named("analyzer"),
	}
}

func (a *Analyzer) command(audioPath, outputDir string, loc *Location) []string {
	args := []string{"-m", a.Module, audioPath, "-o", outputDir, "--rtype", "csv"}
	if loc != nil {
		args = append(args,
			"--lat", strconv.FormatFloat(loc.Lat, 'f', -1, 64),
			"--lon", strconv.FormatFloat(loc.Lon, 'f', -1, 64),
		)
	}
	return args
}

// Analyze classifies audioPath, writing BirdNET's output into outputDir, and
// returns the detections in file order.
func (a *Analyzer) Analyze(ctx context.Context, audioPath, outputDir string, loc *Location) ([]model.Prediction, error) {
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, a.Python, a.command(audioPath, outputDir, loc)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 5 * time.Second

	start := time.Now()
	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		a.Log.Errorf("BirdNET analysis of %s timed out after %v", filepath.Base(audioPath), timeout)
		return nil, ErrTimeout
	}
	if out := strings.TrimSpace(stdout.String()); out != "" {
		a.Log.Debugf("analyzer output: %s", out)
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = "BirdNET analysis failed"
		}
		return nil, fmt.Errorf("%s: %w", msg, err)
	}
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		a.Log.Warnf("analyzer stderr: %s", msg)
	}

	csvPath, err := FindResultCSV(outputDir)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, fmt.Errorf("opening analyzer output: %w", err)
	}
	defer f.Close()

	preds, err := ParseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(csvPath), err)
	}
	a.Log.Infof("analyzed %s in %v: %d detection(s)", filepath.Base(audioPath), time.Since(start).Round(time.Millisecond), len(preds))
	return preds, nil
}

// FindResultCSV picks the newest result table in dir, ignoring the
// analysis_params file BirdNET writes alongside it.
func FindResultCSV(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", errors.New("BirdNET analysis produced no CSV output")
	}

	type candidate struct {
		path string
		mod  time.Time
	}
	var candidates []candidate
	for _, m := range matches {
		if strings.Contains(filepath.Base(m), "analysis_params") {
			continue
		}
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{m, info.ModTime()})
	}
	if len(candidates) == 0 {
		return "", errors.New("BirdNET analysis produced no usable CSV output")
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].mod.After(candidates[j].mod) })
	return candidates[0].path, nil
}
