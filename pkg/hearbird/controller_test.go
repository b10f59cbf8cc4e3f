package hearbird

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/himanishpuri/HearBird/pkg/hearbird/model"
	"github.com/himanishpuri/HearBird/pkg/hearbird/recorder"
	"github.com/himanishpuri/HearBird/pkg/hearbird/reference"
)

type pipeStream struct {
	pr *io.PipeReader
	pw *io.PipeWriter

	mu     sync.Mutex
	closed bool
}

func newPipeStream() *pipeStream {
	pr, pw := io.Pipe()
	return &pipeStream{pr: pr, pw: pw}
}

func (s *pipeStream) Read(p []byte) (int, error) { return s.pr.Read(p) }
func (s *pipeStream) Stop() error                { return s.pw.Close() }
func (s *pipeStream) Format() recorder.Format {
	return recorder.Format{PCM: true, SampleRate: 8000, Channels: 1}
}

func (s *pipeStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.pw.Close()
	return s.pr.Close()
}

func (s *pipeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type stubClassifier struct {
	resp *model.Response
	err  error
	// entered and release let a test hold a submission in flight.
	entered chan struct{}
	release chan struct{}

	mu       sync.Mutex
	captures []*model.AudioCapture
}

func (s *stubClassifier) Submit(ctx context.Context, capture *model.AudioCapture) (*model.Response, error) {
	s.mu.Lock()
	s.captures = append(s.captures, capture)
	s.mu.Unlock()
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.release != nil {
		<-s.release
	}
	return s.resp.Clone(), s.err
}

func (s *stubClassifier) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.captures)
}

// recorded collects callback invocations.
type recorded struct {
	mu       sync.Mutex
	events   []string
	captures []*model.AudioCapture
	results  [][]model.EnrichedResult
	errs     []error
	states   []recorder.State
}

func (r *recorded) callbacks() Callbacks {
	return Callbacks{
		OnCaptureReady: func(c *model.AudioCapture) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, "capture")
			r.captures = append(r.captures, c)
		},
		OnResultsReady: func(res []model.EnrichedResult) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, "results")
			r.results = append(r.results, res)
		},
		OnError: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, "error")
			r.errs = append(r.errs, err)
		},
		OnBack: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, "back")
		},
		OnStateChange: func(s recorder.State) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.states = append(r.states, s)
		},
	}
}

func scenarioA() *model.Response {
	return &model.Response{Msg: "success", Results: []model.Prediction{
		{Start: 3, End: 6, ScientificName: "Cuculus canorus", CommonName: "Common Cuckoo", Confidence: 0.65},
		{Start: 0, End: 3, ScientificName: "Passer montanus", CommonName: "Eurasian Tree Sparrow", Confidence: 0.98},
	}}
}

func newTestController(t *testing.T, cb Callbacks, opts ...Option) *Controller {
	t.Helper()
	c, err := New(cb, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func fileCapture(t *testing.T) *model.AudioCapture {
	t.Helper()
	c, err := model.NewAudioCapture([]byte("ID3\x04clip"), "audio/mpeg", "dawn-chorus.mp3")
	if err != nil {
		t.Fatalf("NewAudioCapture failed: %v", err)
	}
	return c
}

func TestRecordingPipeline(t *testing.T) {
	stream := newPipeStream()
	stub := &stubClassifier{resp: scenarioA()}
	rec := &recorded{}
	c := newTestController(t, rec.callbacks(),
		WithClassifier(stub),
		WithDevice(recorder.DeviceFunc(func(ctx context.Context) (recorder.Stream, error) { return stream, nil })),
	)

	if err := c.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	stream.pw.Write(make([]byte, 1600))

	if err := c.StopRecording(context.Background()); err != nil {
		t.Fatalf("StopRecording failed: %v", err)
	}
	if !stream.isClosed() {
		t.Error("Expected microphone released before submission")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.events) != 2 || rec.events[0] != "capture" || rec.events[1] != "results" {
		t.Fatalf("Expected capture then results, got %v", rec.events)
	}
	if rec.captures[0].MimeType() != "audio/wav" {
		t.Errorf("Expected a WAV capture, got %s", rec.captures[0].MimeType())
	}
	if stub.calls() != 1 || stub.captures[0] != rec.captures[0] {
		t.Error("Expected the finalized capture to be submitted once")
	}

	results := rec.results[0]
	if results[0].ScientificName != "Passer montanus" || results[0].MatchPercentage != 98 {
		t.Errorf("Expected Passer montanus at 98%%, got %s at %d%%", results[0].ScientificName, results[0].MatchPercentage)
	}
	if results[1].ScientificName != "Cuculus canorus" || results[1].MatchPercentage != 65 {
		t.Errorf("Expected Cuculus canorus at 65%%, got %s at %d%%", results[1].ScientificName, results[1].MatchPercentage)
	}
	if !results[0].Catalogued || results[0].WikiLink == nil {
		t.Error("Expected built-in catalogue data for Passer montanus")
	}

	wantStates := []recorder.State{recorder.RequestingPermission, recorder.Recording, recorder.Stopping, recorder.Idle}
	if len(rec.states) != len(wantStates) {
		t.Errorf("Expected states %v, got %v", wantStates, rec.states)
	}
}

func TestSelectFileBusyWhileRecordingFinalizes(t *testing.T) {
	stream := newPipeStream()
	stub := &stubClassifier{resp: scenarioA()}

	var c *Controller
	var selectErrs []error
	cb := Callbacks{
		OnStateChange: func(s recorder.State) {
			if s == recorder.Idle && c != nil {
				selectErrs = append(selectErrs, c.SelectFile(context.Background(), fileCapture(t)))
			}
		},
	}
	c = newTestController(t, cb,
		WithClassifier(stub),
		WithDevice(recorder.DeviceFunc(func(ctx context.Context) (recorder.Stream, error) { return stream, nil })),
	)

	if err := c.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	stream.pw.Write(make([]byte, 1600))
	if err := c.StopRecording(context.Background()); err != nil {
		t.Fatalf("StopRecording failed: %v", err)
	}

	if len(selectErrs) != 1 || !errors.Is(selectErrs[0], ErrBusy) {
		t.Fatalf("Expected ErrBusy from file selection at Idle, got %v", selectErrs)
	}
	if stub.calls() != 1 {
		t.Fatalf("Expected one submission, got %d", stub.calls())
	}
	if stub.captures[0].MimeType() != "audio/wav" {
		t.Errorf("Expected the recording to be submitted, got %s", stub.captures[0].Filename())
	}
	if c.Busy() {
		t.Error("Expected controller to be free after identification")
	}
}

func TestDeviceErrorNeverSubmitted(t *testing.T) {
	stub := &stubClassifier{resp: scenarioA()}
	rec := &recorded{}
	c := newTestController(t, rec.callbacks(),
		WithClassifier(stub),
		WithFallback(true),
		WithDevice(recorder.DeviceFunc(func(ctx context.Context) (recorder.Stream, error) {
			return nil, errors.New("permission denied")
		})),
	)

	err := c.StartRecording(context.Background())
	if !model.IsKind(err, model.KindDevice) {
		t.Fatalf("Expected DeviceError, got %v", err)
	}
	if stub.calls() != 0 {
		t.Error("Device errors must not reach the classifier")
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.errs) != 1 || !model.IsKind(rec.errs[0], model.KindDevice) {
		t.Errorf("Expected one DeviceError callback, got %v", rec.errs)
	}
}

func TestSelectFileRejectedWhileRecording(t *testing.T) {
	stream := newPipeStream()
	stub := &stubClassifier{resp: scenarioA()}
	c := newTestController(t, Callbacks{},
		WithClassifier(stub),
		WithDevice(recorder.DeviceFunc(func(ctx context.Context) (recorder.Stream, error) { return stream, nil })),
	)

	if err := c.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	if !c.Busy() {
		t.Error("Expected Busy while recording")
	}
	if err := c.SelectFile(context.Background(), fileCapture(t)); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy, got %v", err)
	}
	if stub.calls() != 0 {
		t.Error("Rejected selection must not be submitted")
	}
}

func TestSelectFileRejectedWhileInFlight(t *testing.T) {
	stub := &stubClassifier{resp: scenarioA(), entered: make(chan struct{}, 1), release: make(chan struct{})}
	c := newTestController(t, Callbacks{}, WithClassifier(stub))

	first := fileCapture(t)
	done := make(chan error, 1)
	go func() { done <- c.SelectFile(context.Background(), first) }()
	<-stub.entered

	if err := c.SelectFile(context.Background(), fileCapture(t)); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy while a submission is in flight, got %v", err)
	}
	close(stub.release)
	if err := <-done; err != nil {
		t.Fatalf("First SelectFile failed: %v", err)
	}
	if c.Busy() {
		t.Error("Expected not busy after the submission settled")
	}
	if len(c.Results()) != 2 {
		t.Errorf("Expected 2 results, got %d", len(c.Results()))
	}
}

// Scenario C at pipeline level: the error is surfaced, never dropped.
func TestClassificationErrorSurfaced(t *testing.T) {
	serverErr := model.NewError(model.KindServer, "classification service returned 500", nil)
	stub := &stubClassifier{err: serverErr}
	rec := &recorded{}
	c := newTestController(t, rec.callbacks(), WithClassifier(stub))

	err := c.SelectFile(context.Background(), fileCapture(t))
	if !model.IsKind(err, model.KindServer) {
		t.Fatalf("Expected ServerError, got %v", err)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.errs) != 1 || len(rec.results) != 0 {
		t.Errorf("Expected exactly one error and no results, got %d errors, %d results", len(rec.errs), len(rec.results))
	}
}

// Scenario D and E: fallback data flows through enrichment like a real answer.
func TestFallbackResultsEnriched(t *testing.T) {
	stub := &stubClassifier{err: model.NewError(model.KindNetwork, "unreachable", nil)}
	rec := &recorded{}
	c := newTestController(t, rec.callbacks(),
		WithClassifier(stub),
		WithFallback(true),
		WithFallbackDelay(time.Millisecond),
	)

	if err := c.SelectFile(context.Background(), fileCapture(t)); err != nil {
		t.Fatalf("Expected fallback to succeed, got %v", err)
	}
	results := c.Results()
	if len(results) != 3 {
		t.Fatalf("Expected 3 canned results, got %d", len(results))
	}
	if results[0].ScientificName != "Cyanistes caeruleus" || results[0].MatchPercentage != 98 {
		t.Errorf("Unexpected primary %s %d%%", results[0].ScientificName, results[0].MatchPercentage)
	}
	coal := results[2]
	if coal.ScientificName != "Periparus ater" || coal.WikiLink != nil || coal.Catalogued {
		t.Errorf("Expected uncatalogued Periparus ater, got %+v", coal)
	}
}

func TestBackDiscardsResultsAndRecording(t *testing.T) {
	stream := newPipeStream()
	stub := &stubClassifier{resp: scenarioA()}
	rec := &recorded{}
	c := newTestController(t, rec.callbacks(),
		WithClassifier(stub),
		WithDevice(recorder.DeviceFunc(func(ctx context.Context) (recorder.Stream, error) { return stream, nil })),
	)

	if err := c.SelectFile(context.Background(), fileCapture(t)); err != nil {
		t.Fatalf("SelectFile failed: %v", err)
	}
	if err := c.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}

	c.Back()

	if len(c.Results()) != 0 {
		t.Error("Expected results discarded")
	}
	if !stream.isClosed() || c.State() != recorder.Idle {
		t.Error("Expected active recording torn down")
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.events[len(rec.events)-1] != "back" {
		t.Errorf("Expected back event last, got %v", rec.events)
	}
	if stub.calls() != 1 {
		t.Errorf("Teardown must not submit audio, got %d submissions", stub.calls())
	}
}

func TestStopWithoutRecordingIsNoop(t *testing.T) {
	stub := &stubClassifier{resp: scenarioA()}
	c := newTestController(t, Callbacks{}, WithClassifier(stub))
	if err := c.StopRecording(context.Background()); err != nil {
		t.Errorf("Expected nil, got %v", err)
	}
	if stub.calls() != 0 {
		t.Error("Expected no submission")
	}
}

func TestNewWithSQLiteCatalogue(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "species.sqlite3")
	if _, err := reference.SeedSQLite(dbPath, []model.ReferenceEntry{{
		ScientificName: "Cyanistes caeruleus",
		CommonName:     "Eurasian Blue Tit",
		Description:    "Small blue and yellow tit.",
		Image:          "https://img.example/blue-tit.jpg",
		CoverImage:     "https://img.example/blue-tit.jpg",
		WikiLink:       "https://en.wikipedia.org/wiki/Eurasian_blue_tit",
	}}); err != nil {
		t.Fatalf("SeedSQLite failed: %v", err)
	}

	stub := &stubClassifier{resp: blueTitResponse()}
	c := newTestController(t, Callbacks{}, WithClassifier(stub), WithReferenceDB(dbPath))
	if err := c.SelectFile(context.Background(), fileCapture(t)); err != nil {
		t.Fatalf("SelectFile failed: %v", err)
	}
	if r := c.Results(); !r[0].Catalogued || r[0].Description != "Small blue and yellow tit." {
		t.Errorf("Expected SQLite catalogue data, got %+v", r[0])
	}

	if _, ok := c.Suggest("Cyanistes caeruleu"); !ok {
		t.Error("Expected a close catalogued species")
	}
}

func blueTitResponse() *model.Response {
	return &model.Response{Msg: "success", Results: []model.Prediction{
		{Start: 0, End: 2.62, ScientificName: "Cyanistes caeruleus", CommonName: "Eurasian Blue Tit", Confidence: 0.9823},
	}}
}

func TestNewRejectsBadEndpoint(t *testing.T) {
	if _, err := New(Callbacks{}, WithEndpoint("not a url")); err == nil {
		t.Error("Expected error for an invalid endpoint")
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvEndpoint, "http://birdnet.local:9000/analyze")
	t.Setenv(EnvFallback, "true")
	t.Setenv(EnvFallbackDelay, "150ms")
	t.Setenv(EnvWireShape, "string")
	t.Setenv(EnvHTTPTimeout, "5s")
	t.Setenv(EnvReferenceDB, "")

	opts, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Endpoint != "http://birdnet.local:9000/analyze" {
		t.Errorf("Unexpected endpoint %s", cfg.Endpoint)
	}
	if !cfg.Fallback.Enabled || cfg.Fallback.Delay != 150*time.Millisecond {
		t.Errorf("Unexpected fallback policy %+v", cfg.Fallback)
	}
	if cfg.WireShape.String() != "string" || cfg.HTTPTimeout != 5*time.Second {
		t.Errorf("Unexpected shape/timeout %v %v", cfg.WireShape, cfg.HTTPTimeout)
	}
	if cfg.ReferenceDB != "" {
		t.Errorf("Expected embedded catalogue, got %q", cfg.ReferenceDB)
	}
}

func TestFromEnvInvalid(t *testing.T) {
	tests := map[string]string{
		EnvFallback:      "maybe",
		EnvFallbackDelay: "soon",
		EnvWireShape:     "xml",
		EnvHTTPTimeout:   "0s",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := FromEnv(); err == nil {
				t.Errorf("Expected error for %s=%s", key, value)
			}
		})
	}
}
