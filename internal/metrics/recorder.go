package metrics

import (
	"time"

	"github.com/waabox/pipedeck/internal/domain"
)

// Recorder receives per-run observations. Implementations must be safe to
// call from the engine goroutine while other goroutines read them.
type Recorder interface {
	ObserveRun(pipeline string, status domain.StepStatus, d time.Duration)
	ObserveStage(stage string, status domain.StepStatus)
	ObserveJob(provider string, status domain.StepStatus, wait, run time.Duration)
	IncAdapterError(op string)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveRun(string, domain.StepStatus, time.Duration)                 {}
func (NoopRecorder) ObserveStage(string, domain.StepStatus)                              {}
func (NoopRecorder) ObserveJob(string, domain.StepStatus, time.Duration, time.Duration) {}
func (NoopRecorder) IncAdapterError(string)                                              {}
