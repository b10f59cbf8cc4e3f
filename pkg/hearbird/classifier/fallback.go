package classifier

import (
	"context"
	"time"

	"github.com/himanishpuri/HearBird/pkg/hearbird/model"
	"github.com/himanishpuri/HearBird/pkg/logger"
)

const DefaultFallbackDelay = 2 * time.Second

// Policy controls whether classified failures are replaced with canned
// results.
type Policy struct {
	Enabled bool
	// Delay simulates service latency before the canned response is returned.
	Delay time.Duration
	// Response is returned (as a copy) in place of a failure. Nil means
	// DefaultResponse.
	Response *model.Response
}

// DefaultPolicy is disabled with the standard delay and canned response.
func DefaultPolicy() Policy {
	return Policy{Delay: DefaultFallbackDelay, Response: DefaultResponse()}
}

// DefaultResponse is the demonstration result set: three tits over the first
// 2.62 seconds.
func DefaultResponse() *model.Response {
	return &model.Response{
		Msg: "success",
		Results: []model.Prediction{
			{Start: 0, End: 2.62, ScientificName: "Cyanistes caeruleus", CommonName: "Eurasian Blue Tit", Confidence: 0.9823},
			{Start: 0, End: 2.62, ScientificName: "Parus major", CommonName: "Great Tit", Confidence: 0.65},
			{Start: 0, End: 2.62, ScientificName: "Periparus ater", CommonName: "Coal Tit", Confidence: 0.40},
		},
	}
}

// Fallback decorates a Classifier with a Policy.
type Fallback struct {
	inner  Classifier
	policy Policy
	log    Logger
}

// WithFallback wraps inner. Network, server and validation errors are
// swallowed when the policy is enabled; everything else passes through.
func WithFallback(inner Classifier, p Policy, log Logger) *Fallback {
	if p.Response == nil {
		p.Response = DefaultResponse()
	}
	if log == nil {
		log = logger.GetLogger().Named("fallback")
	}
	return &Fallback{inner: inner, policy: p, log: log}
}

func (f *Fallback) Enabled() bool { return f.policy.Enabled }

func (f *Fallback) Submit(ctx context.Context, capture *model.AudioCapture) (*model.Response, error) {
	resp, err := f.inner.Submit(ctx, capture)
	if err == nil || !f.policy.Enabled {
		return resp, err
	}

	switch kind := model.KindOf(err); kind {
	case model.KindNetwork, model.KindServer, model.KindValidation:
		f.log.Warnf("classification failed (%s), using fallback results after %v: %v", kind, f.policy.Delay, err)
	default:
		return nil, err
	}

	if f.policy.Delay > 0 {
		t := time.NewTimer(f.policy.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, err
		case <-t.C:
		}
	}
	return f.policy.Response.Clone(), nil
}
