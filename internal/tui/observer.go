package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/waabox/pipedeck/internal/domain"
	"github.com/waabox/pipedeck/internal/engine"
	"github.com/waabox/pipedeck/internal/report"
)

// RunStartedMsg is sent when the engine begins a run.
// Messages are exported so that tests can inject them directly into AppModel.Update.
type RunStartedMsg struct {
	RunID     string
	Pipeline  string
	Stages    []string
	StartedAt time.Time
	Deadline  time.Time
}

// StageStartedMsg is sent when a stage begins submitting its jobs.
type StageStartedMsg struct {
	Index int
	Name  string
}

// JobMsg carries the latest snapshot of one job.
type JobMsg struct {
	Stage int
	Job   domain.JobHandle
}

// StageFinishedMsg is sent when a stage has been aggregated.
type StageFinishedMsg struct {
	Index  int
	Status domain.StepStatus
}

// AdapterErrorMsg reports a failed adapter call.
type AdapterErrorMsg struct {
	Err string
}

// RunFinishedMsg carries the summary of the frozen run.
type RunFinishedMsg struct {
	Summary report.Summary
}

// Observer forwards engine events to a running Bubble Tea program.
// Values are copied before sending; the run itself never crosses goroutines.
type Observer struct {
	send           func(tea.Msg)
	sourcesVersion string
	stage          int
}

// NewObserver returns an Observer delivering events through send, typically
// (*tea.Program).Send.
func NewObserver(send func(tea.Msg), sourcesVersion string) *Observer {
	return &Observer{send: send, sourcesVersion: sourcesVersion, stage: -1}
}

// Ensure Observer implements engine.Observer.
var _ engine.Observer = (*Observer)(nil)

func (o *Observer) RunStarted(run *engine.PipelineRun) {
	def := run.Definition()
	names := make([]string, len(def.Stages))
	for i, s := range def.Stages {
		names[i] = s.Name
	}
	o.send(RunStartedMsg{
		RunID:     run.ID(),
		Pipeline:  def.Name,
		Stages:    names,
		StartedAt: run.StartedAt(),
		Deadline:  run.Deadline(),
	})
}

func (o *Observer) StageStarted(_ *engine.PipelineRun, index int, stage domain.Stage) {
	o.stage = index
	o.send(StageStartedMsg{Index: index, Name: stage.Name})
}

func (o *Observer) JobSubmitted(_ *engine.PipelineRun, job domain.JobHandle) {
	o.send(JobMsg{Stage: o.stage, Job: job})
}

func (o *Observer) JobUpdated(_ *engine.PipelineRun, job domain.JobHandle) {
	o.send(JobMsg{Stage: o.stage, Job: job})
}

func (o *Observer) AdapterFailed(_ *engine.PipelineRun, err *domain.AdapterError) {
	o.send(AdapterErrorMsg{Err: err.Error()})
}

func (o *Observer) StageFinished(_ *engine.PipelineRun, index int, result engine.StageResult) {
	o.send(StageFinishedMsg{Index: index, Status: result.Status})
}

func (o *Observer) RunFinished(run *engine.PipelineRun) {
	o.send(RunFinishedMsg{Summary: report.Summarize(run, o.sourcesVersion)})
}
