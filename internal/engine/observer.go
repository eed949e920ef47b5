package engine

import "github.com/waabox/pipedeck/internal/domain"

// Observer receives run-loop events synchronously on the engine's goroutine.
// Handles passed to observers are copies.
type Observer interface {
	RunStarted(run *PipelineRun)
	StageStarted(run *PipelineRun, index int, stage domain.Stage)
	JobSubmitted(run *PipelineRun, job domain.JobHandle)
	JobUpdated(run *PipelineRun, job domain.JobHandle)
	AdapterFailed(run *PipelineRun, err *domain.AdapterError)
	StageFinished(run *PipelineRun, index int, result StageResult)
	RunFinished(run *PipelineRun)
}

// NopObserver implements Observer with no-ops. Embed it to handle a subset of events.
type NopObserver struct{}

func (NopObserver) RunStarted(*PipelineRun)                       {}
func (NopObserver) StageStarted(*PipelineRun, int, domain.Stage)  {}
func (NopObserver) JobSubmitted(*PipelineRun, domain.JobHandle)   {}
func (NopObserver) JobUpdated(*PipelineRun, domain.JobHandle)     {}
func (NopObserver) AdapterFailed(*PipelineRun, *domain.AdapterError) {}
func (NopObserver) StageFinished(*PipelineRun, int, StageResult)  {}
func (NopObserver) RunFinished(*PipelineRun)                      {}

type observers []Observer

func (o observers) each(fn func(Observer)) {
	for _, obs := range o {
		fn(obs)
	}
}
