package hearbird

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/himanishpuri/HearBird/pkg/hearbird/classifier"
	"github.com/himanishpuri/HearBird/pkg/hearbird/enrich"
	"github.com/himanishpuri/HearBird/pkg/hearbird/model"
	"github.com/himanishpuri/HearBird/pkg/hearbird/recorder"
	"github.com/himanishpuri/HearBird/pkg/hearbird/reference"
	"github.com/himanishpuri/HearBird/pkg/logger"
)

// ErrBusy is returned by SelectFile while a recording is active or a
// submission is in flight.
var ErrBusy = errors.New("hearbird: busy recording or identifying")

// Controller drives capture, classification and enrichment and reports to
// the view through Callbacks.
type Controller struct {
	cb         Callbacks
	log        Logger
	rec        *recorder.Recorder
	classifier classifier.Classifier
	enricher   *enrich.Enricher
	store      reference.Store

	mu       sync.Mutex
	inFlight int
	results  []model.EnrichedResult
	// epoch is bumped by Back so that a submission settling afterwards does
	// not resurrect discarded results.
	epoch uint64
}

// New creates a controller with the given callbacks and options.
func New(cb Callbacks, opts ...Option) (*Controller, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger().Named("hearbird")
	}

	store := cfg.Store
	if store == nil {
		var err error
		if cfg.ReferenceDB != "" {
			store, err = reference.OpenSQLite(cfg.ReferenceDB)
		} else {
			store, err = reference.Builtin()
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load reference catalogue: %w", err)
		}
	}

	inner := cfg.Classifier
	if inner == nil {
		clientOpts := []classifier.Option{
			classifier.WithShape(cfg.WireShape),
			classifier.WithTimeout(cfg.HTTPTimeout),
			classifier.WithLogger(cfg.Logger),
		}
		if cfg.Location != nil {
			clientOpts = append(clientOpts, classifier.WithLocation(cfg.Location.Lat, cfg.Location.Lon))
		}
		client, err := classifier.NewClient(cfg.Endpoint, clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create classifier: %w", err)
		}
		inner = client
	}

	c := &Controller{
		cb:         cb,
		log:        cfg.Logger,
		classifier: classifier.WithFallback(inner, cfg.Fallback, cfg.Logger),
		enricher:   enrich.New(store),
		store:      store,
	}
	c.rec = recorder.New(cfg.Device,
		recorder.WithLogger(cfg.Logger),
		recorder.WithDrainTimeout(cfg.DrainTimeout),
		recorder.WithStateListener(func(s recorder.State) {
			if c.cb.OnStateChange != nil {
				c.cb.OnStateChange(s)
			}
		}),
	)

	c.log.Debugf("pipeline ready: %d catalogued species, fallback=%v", store.Len(), cfg.Fallback.Enabled)
	return c, nil
}

// StartRecording opens the microphone. Device errors are reported through
// OnError and returned.
func (c *Controller) StartRecording(ctx context.Context) error {
	if err := c.rec.Start(ctx); err != nil {
		c.emitError(err)
		return err
	}
	return nil
}

// StopRecording finalizes the capture, then identifies it. It is a no-op
// when nothing is being recorded.
func (c *Controller) StopRecording(ctx context.Context) error {
	// Claim the submission slot before the recorder can report Idle, so file
	// selection stays closed until this capture has been identified.
	c.mu.Lock()
	c.inFlight++
	c.mu.Unlock()

	capture, err := c.rec.Stop()
	if err != nil || capture == nil {
		c.mu.Lock()
		c.inFlight--
		c.mu.Unlock()
		if err != nil {
			c.emitError(err)
		}
		return err
	}
	return c.identify(ctx, capture)
}

// SelectFile identifies a user-chosen clip, bypassing the recorder.
func (c *Controller) SelectFile(ctx context.Context, capture *model.AudioCapture) error {
	if capture == nil {
		return errors.New("no audio file selected")
	}
	if !c.tryBegin() {
		c.log.Debugf("file selection rejected: busy")
		return ErrBusy
	}
	return c.identify(ctx, capture)
}

// tryBegin marks a file submission in flight unless the recorder is active or
// another submission is running.
func (c *Controller) tryBegin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight > 0 || c.rec.State() != recorder.Idle {
		return false
	}
	c.inFlight++
	return true
}

func (c *Controller) identify(ctx context.Context, capture *model.AudioCapture) error {
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	id := uuid.NewString()
	c.log.Infof("[%s] identifying %s (%s, %d bytes)", id[:8], capture.Filename(), capture.MimeType(), capture.Size())

	if c.cb.OnCaptureReady != nil {
		c.cb.OnCaptureReady(capture)
	}

	resp, err := c.classifier.Submit(ctx, capture)

	c.mu.Lock()
	c.inFlight--
	stale := c.epoch != epoch
	c.mu.Unlock()

	if err != nil {
		c.log.Errorf("[%s] identification failed: %v", id[:8], err)
		c.emitError(err)
		return err
	}

	results := c.enricher.Enrich(resp)
	if stale {
		c.log.Debugf("[%s] dropping results after back navigation", id[:8])
		return nil
	}

	c.mu.Lock()
	c.results = results
	c.mu.Unlock()

	if primary, _ := enrich.Split(results); primary != nil {
		c.log.Infof("[%s] best match %s (%d%%) of %d", id[:8], primary.ScientificName, primary.MatchPercentage, len(results))
	} else {
		c.log.Infof("[%s] no species detected", id[:8])
	}
	if c.cb.OnResultsReady != nil {
		c.cb.OnResultsReady(results)
	}
	return nil
}

// Results returns the last delivered results.
func (c *Controller) Results() []model.EnrichedResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.EnrichedResult, len(c.results))
	copy(out, c.results)
	return out
}

// Suggest finds the catalogued species closest to an uncatalogued name.
func (c *Controller) Suggest(scientificName string) (model.ReferenceEntry, bool) {
	e, _, ok := reference.Closest(c.store, scientificName, reference.DefaultSuggestThreshold)
	return e, ok
}

// State returns the recorder state.
func (c *Controller) State() recorder.State { return c.rec.State() }

// Busy reports whether file selection is currently disabled.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight > 0 || c.rec.State() != recorder.Idle
}

// Back discards the current results, tears down an active recording and
// notifies the view.
func (c *Controller) Back() {
	c.mu.Lock()
	c.results = nil
	c.epoch++
	c.mu.Unlock()

	if err := c.rec.Close(); err != nil {
		c.log.Warnf("recorder teardown: %v", err)
	}
	if c.cb.OnBack != nil {
		c.cb.OnBack()
	}
}

// Close releases the microphone if it is open.
func (c *Controller) Close() error {
	return c.rec.Close()
}

func (c *Controller) emitError(err error) {
	if c.cb.OnError != nil {
		c.cb.OnError(err)
		return
	}
	c.log.Errorf("%v", err)
}
