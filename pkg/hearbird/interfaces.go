package hearbird

import (
	"github.com/himanishpuri/HearBird/pkg/hearbird/model"
	"github.com/himanishpuri/HearBird/pkg/hearbird/recorder"
)

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}

// Callbacks are how the view collaborator hears from the pipeline. Nil
// callbacks are skipped. They run on the goroutine that triggered them and
// must not block for long.
type Callbacks struct {
	OnCaptureReady func(capture *model.AudioCapture)
	OnResultsReady func(results []model.EnrichedResult)
	OnError        func(err error)
	OnBack         func()
	OnStateChange  func(state recorder.State)
}
