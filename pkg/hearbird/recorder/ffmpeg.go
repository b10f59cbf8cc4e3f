package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	DefaultMicSampleRate = 48000
	DefaultProbeWindow   = 300 * time.Millisecond
	DefaultGracePeriod   = 2 * time.Second
)

// FFmpegMicrophone captures the system microphone by running ffmpeg against
// the platform capture API and reading s16le PCM from its stdout.
type FFmpegMicrophone struct {
	FFmpegPath  string
	InputFormat string // alsa, pulse, avfoundation, dshow
	InputDevice string
	SampleRate  int
	Channels    int

	// ProbeWindow is how long ffmpeg must survive after start before the
	// device counts as open. Permission and missing-device failures make it
	// exit almost immediately.
	ProbeWindow time.Duration
	// GracePeriod is how long Close waits for a stopped ffmpeg to exit
	// before killing it.
	GracePeriod time.Duration
}

func defaultInput() (format, device string) {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation", ":0"
	case "windows":
		return "dshow", ""
	default:
		return "alsa", "default"
	}
}

func (m *FFmpegMicrophone) args() ([]string, Format, error) {
	inputFormat, inputDevice := defaultInput()
	if m.InputFormat != "" {
		inputFormat = m.InputFormat
	}
	if m.InputDevice != "" {
		inputDevice = m.InputDevice
	}
	if inputDevice == "" {
		return nil, Format{}, fmt.Errorf("no capture device configured for %s", inputFormat)
	}
	if inputFormat == "dshow" && !strings.HasPrefix(inputDevice, "audio=") {
		inputDevice = "audio=" + inputDevice
	}

	f := Format{PCM: true, SampleRate: m.SampleRate, Channels: m.Channels}
	if f.SampleRate == 0 {
		f.SampleRate = DefaultMicSampleRate
	}
	if f.Channels == 0 {
		f.Channels = 1
	}

	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		"-f", inputFormat,
		"-i", inputDevice,
		"-ac", strconv.Itoa(f.Channels),
		"-ar", strconv.Itoa(f.SampleRate),
		"-acodec", "pcm_s16le",
		"-f", "s16le",
		"pipe:1",
	}, f, nil
}

// Open starts ffmpeg and waits out the probe window.
func (m *FFmpegMicrophone) Open(ctx context.Context) (Stream, error) {
	args, format, err := m.args()
	if err != nil {
		return nil, err
	}
	path := m.FFmpegPath
	if path == "" {
		path = "ffmpeg"
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, err
	}

	s := &ffmpegStream{
		cmd:    exec.Command(path, args...),
		out:    pr,
		format: format,
		grace:  m.GracePeriod,
		exited: make(chan struct{}),
	}
	if s.grace == 0 {
		s.grace = DefaultGracePeriod
	}
	s.cmd.Stdout = pw
	s.cmd.Stderr = &s.stderr

	if err := s.cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	pw.Close()

	go func() {
		s.waitErr = s.cmd.Wait()
		close(s.exited)
	}()

	probe := m.ProbeWindow
	if probe == 0 {
		probe = DefaultProbeWindow
	}
	select {
	case <-s.exited:
		pr.Close()
		msg := strings.TrimSpace(s.stderr.String())
		if msg == "" && s.waitErr != nil {
			msg = s.waitErr.Error()
		}
		return nil, fmt.Errorf("ffmpeg exited during device open: %s", msg)
	case <-ctx.Done():
		s.Close()
		return nil, ctx.Err()
	case <-time.After(probe):
	}
	return s, nil
}

type ffmpegStream struct {
	cmd    *exec.Cmd
	out    *os.File
	format Format
	grace  time.Duration

	stderr  bytes.Buffer
	exited  chan struct{}
	waitErr error

	mu        sync.Mutex
	stopped   bool
	closeOnce sync.Once
}

func (s *ffmpegStream) Read(p []byte) (int, error) { return s.out.Read(p) }

func (s *ffmpegStream) Format() Format { return s.format }

// Stop asks ffmpeg to flush and exit; Read then returns io.EOF.
func (s *ffmpegStream) Stop() error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	select {
	case <-s.exited:
		return nil
	default:
	}
	if err := s.cmd.Process.Signal(os.Interrupt); err != nil {
		return s.cmd.Process.Kill()
	}
	return nil
}

// Close releases the device. A stopped ffmpeg gets the grace period to exit;
// otherwise it is killed at once.
func (s *ffmpegStream) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		stopped := s.stopped
		s.mu.Unlock()

		if stopped {
			select {
			case <-s.exited:
			case <-time.After(s.grace):
			}
		}
		select {
		case <-s.exited:
		default:
			_ = s.cmd.Process.Kill()
			<-s.exited
		}
		s.out.Close()
	})

	var exitErr *exec.ExitError
	if s.waitErr != nil && !errors.As(s.waitErr, &exitErr) {
		return s.waitErr
	}
	return nil
}
