package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/himanishpuri/HearBird/internal/audio"
	"github.com/himanishpuri/HearBird/pkg/hearbird/model"
	"github.com/himanishpuri/HearBird/pkg/logger"
)

// MicrophoneUnavailable is the user-facing message of device errors.
const MicrophoneUnavailable = "Unable to access your microphone. Please check permissions."

const (
	DefaultDrainTimeout = 3 * time.Second
	readChunkSize       = 32 * 1024
)

// State of the recording state machine.
type State int

const (
	Idle State = iota
	RequestingPermission
	Recording
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case RequestingPermission:
		return "requesting-permission"
	case Recording:
		return "recording"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}

type Option func(*Recorder)

// WithStateListener registers fn for every state transition. It is called
// without the recorder lock held.
func WithStateListener(fn func(State)) Option {
	return func(r *Recorder) { r.listener = fn }
}

// WithDrainTimeout bounds how long Stop waits for buffered data after asking
// the stream to end.
func WithDrainTimeout(d time.Duration) Option {
	return func(r *Recorder) { r.drainTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

func WithLogger(log Logger) Option {
	return func(r *Recorder) { r.log = log }
}

// Recorder turns one microphone session at a time into an AudioCapture.
type Recorder struct {
	device       Device
	listener     func(State)
	drainTimeout time.Duration
	now          func() time.Time
	log          Logger

	mu      sync.Mutex
	state   State
	session *session
	// gen invalidates a pending Open when the recorder is torn down during
	// permission negotiation.
	gen     uint64
	pending []State
}

// New creates an idle recorder for device.
func New(device Device, opts ...Option) *Recorder {
	r := &Recorder{
		device:       device,
		drainTimeout: DefaultDrainTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.GetLogger().Named("recorder")
	}
	return r
}

// State returns the current recording state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start opens the device and begins buffering audio. It is a no-op unless the
// recorder is idle. A failed open returns a KindDevice error and leaves the
// recorder idle.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if st := r.state; st != Idle {
		r.unlock()
		r.log.Debugf("start ignored in state %s", st)
		return nil
	}
	r.gen++
	gen := r.gen
	r.transition(RequestingPermission)
	r.unlock()

	stream, err := r.openDevice(ctx)

	r.mu.Lock()
	defer r.unlock()

	if r.gen != gen {
		// Torn down while waiting for permission.
		if stream != nil {
			stream.Close()
		}
		return nil
	}
	if err != nil {
		if stream != nil {
			stream.Close()
		}
		r.transition(Idle)
		r.log.Warnf("microphone open failed: %v", err)
		return model.NewError(model.KindDevice, MicrophoneUnavailable, err)
	}

	sess := newSession(stream)
	go sess.read()
	r.session = sess
	r.transition(Recording)
	r.log.Infof("recording started (%s)", describeFormat(sess.format))
	return nil
}

func (r *Recorder) openDevice(ctx context.Context) (Stream, error) {
	if r.device == nil {
		return nil, errors.New("no input device configured")
	}
	stream, err := r.device.Open(ctx)
	if err == nil && stream == nil {
		err = errors.New("device returned no stream")
	}
	return stream, err
}

// Stop ends the session and returns the finished capture. The device is
// released before the recorder returns to idle. Outside Recording it returns
// (nil, nil).
func (r *Recorder) Stop() (*model.AudioCapture, error) {
	r.mu.Lock()
	if r.state != Recording {
		r.unlock()
		return nil, nil
	}
	sess := r.session
	r.transition(Stopping)
	r.unlock()

	if err := sess.stream.Stop(); err != nil {
		r.log.Warnf("stream stop: %v", err)
	}
	select {
	case <-sess.done:
	case <-time.After(r.drainTimeout):
		r.log.Warnf("stream did not drain within %v", r.drainTimeout)
	}
	if err := sess.release(); err != nil {
		r.log.Warnf("releasing stream: %v", err)
	}
	<-sess.done

	// The capture is built while still Stopping so that Idle means the
	// audio is final.
	capture, err := r.finalize(sess)

	r.mu.Lock()
	discarded := r.session != sess
	if !discarded {
		r.session = nil
		r.transition(Idle)
	}
	r.unlock()

	if discarded {
		return nil, nil
	}
	return capture, err
}

// Close tears the recorder down. An active session is released and its audio
// discarded.
func (r *Recorder) Close() error {
	r.mu.Lock()
	var sess *session
	switch r.state {
	case Idle:
		r.unlock()
		return nil
	case RequestingPermission:
		r.gen++
	case Recording, Stopping:
		sess = r.session
		r.session = nil
	}
	var err error
	if sess != nil {
		err = sess.release()
	}
	r.transition(Idle)
	r.unlock()

	if sess != nil {
		<-sess.done
		r.log.Infof("recording discarded on teardown")
	}
	return err
}

func (r *Recorder) finalize(sess *session) (*model.AudioCapture, error) {
	data := sess.bytes()
	if readErr := sess.readErr(); readErr != nil {
		r.log.Warnf("stream read error: %v", readErr)
	}
	if len(data) == 0 {
		return nil, model.NewError(model.KindDevice, "No audio was captured.", sess.readErr())
	}

	mimeType := sess.format.MimeType
	if sess.format.PCM {
		wav, err := audio.EncodeWAV(data, audio.PCMFormat{
			SampleRate: sess.format.SampleRate,
			Channels:   sess.format.Channels,
			BitDepth:   16,
		})
		if err != nil {
			return nil, model.NewError(model.KindDevice, "Recorded audio could not be encoded.", err)
		}
		data, mimeType = wav, "audio/wav"
	}
	if mimeType == "" {
		mimeType = model.DefaultMimeType
	}

	filename := fmt.Sprintf("recording-%d.%s", r.now().UnixMilli(), extForMime(mimeType))
	capture, err := model.NewAudioCapture(data, mimeType, filename)
	if err != nil {
		return nil, err
	}
	r.log.Infof("recording finished: %s (%d bytes)", filename, capture.Size())
	return capture, nil
}

func (r *Recorder) transition(s State) {
	if r.state == s {
		return
	}
	r.state = s
	r.pending = append(r.pending, s)
}

// unlock releases r.mu and then notifies the listener of queued transitions.
func (r *Recorder) unlock() {
	pending := r.pending
	r.pending = nil
	r.mu.Unlock()
	if r.listener == nil {
		return
	}
	for _, s := range pending {
		r.listener(s)
	}
}

func describeFormat(f Format) string {
	if f.PCM {
		return fmt.Sprintf("pcm %d Hz, %d ch", f.SampleRate, f.Channels)
	}
	if f.MimeType == "" {
		return model.DefaultMimeType
	}
	return f.MimeType
}

// session owns one open stream and the goroutine draining it.
type session struct {
	stream Stream
	format Format
	done   chan struct{}

	releaseOnce sync.Once
	releaseErr  error

	mu  sync.Mutex
	buf bytes.Buffer
	err error
}

func newSession(stream Stream) *session {
	return &session{stream: stream, format: stream.Format(), done: make(chan struct{})}
}

func (s *session) read() {
	defer close(s.done)
	chunk := make([]byte, readChunkSize)
	for {
		n, err := s.stream.Read(chunk)
		if n > 0 {
			s.mu.Lock()
			s.buf.Write(chunk[:n])
			s.mu.Unlock()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) && !errors.Is(err, os.ErrClosed) {
				s.mu.Lock()
				s.err = err
				s.mu.Unlock()
			}
			return
		}
	}
}

func (s *session) release() error {
	s.releaseOnce.Do(func() { s.releaseErr = s.stream.Close() })
	return s.releaseErr
}

func (s *session) bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Bytes()
}

func (s *session) readErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
