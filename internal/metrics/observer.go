package metrics

import (
	"github.com/waabox/pipedeck/internal/domain"
	"github.com/waabox/pipedeck/internal/engine"
)

// Observer adapts a Recorder into an engine.Observer. Adapter failures are
// counted as they happen; jobs, stages and the run are observed once the
// run is frozen so every job is counted exactly once.
type Observer struct {
	engine.NopObserver
	Recorder Recorder
}

// NewObserver returns an Observer feeding r.
func NewObserver(r Recorder) *Observer {
	if r == nil {
		r = NoopRecorder{}
	}
	return &Observer{Recorder: r}
}

func (o *Observer) AdapterFailed(_ *engine.PipelineRun, err *domain.AdapterError) {
	o.Recorder.IncAdapterError(err.Op)
}

func (o *Observer) RunFinished(run *engine.PipelineRun) {
	for _, h := range run.Jobs() {
		o.Recorder.ObserveJob(h.Provider, h.Status, h.WaitTime(), h.RunTime())
	}
	for _, s := range run.Stages() {
		o.Recorder.ObserveStage(s.Name, s.Status)
	}
	o.Recorder.ObserveRun(run.Definition().Name, run.Status(), run.Elapsed())
}
