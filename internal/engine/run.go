package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/waabox/pipedeck/internal/domain"
)

// State is the engine's run-loop state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// IsTerminal reports whether the run loop has exited.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateAborted
}

// StageResult records one stage executed by a run.
type StageResult struct {
	Name                     string
	Status                   domain.StepStatus
	Jobs                     []string
	ContinueOnPartialFailure bool
}

// PipelineRun is the state of one engine invocation. It is mutated only by
// the engine's run loop and frozen once the loop exits. Accessors return copies.
type PipelineRun struct {
	id         string
	definition domain.PipelineDefinition

	jobs  []*domain.JobHandle
	index map[string]int

	stages     []StageResult
	state      State
	stageIndex int
	status     domain.StepStatus
	err        string

	startedAt  time.Time
	finishedAt time.Time
	deadline   time.Time
}

func newRun(def domain.PipelineDefinition, now time.Time) *PipelineRun {
	return &PipelineRun{
		id:         uuid.NewString(),
		definition: def,
		index:      make(map[string]int),
		state:      StateIdle,
		stageIndex: -1,
		startedAt:  now,
	}
}

func (r *PipelineRun) ID() string                             { return r.id }
func (r *PipelineRun) Definition() domain.PipelineDefinition { return r.definition }
func (r *PipelineRun) State() State                           { return r.state }
func (r *PipelineRun) Status() domain.StepStatus              { return r.status }
func (r *PipelineRun) Error() string                          { return r.err }
func (r *PipelineRun) StartedAt() time.Time                   { return r.startedAt }
func (r *PipelineRun) FinishedAt() time.Time                  { return r.finishedAt }
func (r *PipelineRun) Deadline() time.Time                    { return r.deadline }

// StageIndex is the index of the stage in flight, or of the last stage run
// once the run is frozen; -1 before any stage started.
func (r *PipelineRun) StageIndex() int { return r.stageIndex }

// Frozen reports whether the run loop has exited.
func (r *PipelineRun) Frozen() bool { return r.state.IsTerminal() }

// Elapsed is the wall time of the run so far, or of the whole run once frozen.
func (r *PipelineRun) Elapsed() time.Duration {
	if r.finishedAt.IsZero() {
		return 0
	}
	return r.finishedAt.Sub(r.startedAt)
}

// Jobs returns the job handles in trigger order.
func (r *PipelineRun) Jobs() []domain.JobHandle {
	out := make([]domain.JobHandle, len(r.jobs))
	for i, h := range r.jobs {
		out[i] = *h
	}
	return out
}

// Job returns the handle of the named job.
func (r *PipelineRun) Job(name string) (domain.JobHandle, bool) {
	i, ok := r.index[name]
	if !ok {
		return domain.JobHandle{}, false
	}
	return *r.jobs[i], true
}

// Stages returns the stages executed so far, in order.
func (r *PipelineRun) Stages() []StageResult {
	out := make([]StageResult, len(r.stages))
	copy(out, r.stages)
	return out
}

func (r *PipelineRun) addJob(h domain.JobHandle) (*domain.JobHandle, error) {
	if r.Frozen() {
		return nil, fmt.Errorf("run %s is frozen", r.id)
	}
	if _, dup := r.index[h.Name]; dup {
		return nil, fmt.Errorf("job %q triggered twice in run %s", h.Name, r.id)
	}
	stored := h
	r.index[h.Name] = len(r.jobs)
	r.jobs = append(r.jobs, &stored)
	return &stored, nil
}

func (r *PipelineRun) recordStage(stage domain.Stage, status domain.StepStatus, handles []*domain.JobHandle) {
	names := make([]string, len(handles))
	for i, h := range handles {
		names[i] = h.Name
	}
	r.stages = append(r.stages, StageResult{
		Name:                     stage.Name,
		Status:                   status,
		Jobs:                     names,
		ContinueOnPartialFailure: stage.ContinueOnPartialFailure,
	})
}

// finish freezes the run. A run that aggregated nothing succeeded.
func (r *PipelineRun) finish(state State, status domain.StepStatus, now time.Time) {
	if r.Frozen() {
		return
	}
	if status == domain.StatusNone {
		status = domain.StatusSucceeded
	}
	r.state = state
	r.status = status
	r.finishedAt = now
}
