// Package engine drives a pipeline definition stage by stage against a
// BuildAdapter: every job of a stage is submitted at once, the engine then
// polls on a bounded interval until all of them are terminal, and the stage
// outcome decides whether the next stage runs.
package engine

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/go-errors/errors"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/waabox/pipedeck/internal/clock"
	"github.com/waabox/pipedeck/internal/domain"
	"github.com/waabox/pipedeck/internal/logging"
)

// DefaultSpinInterval is used when Params.SpinInterval is not positive.
const DefaultSpinInterval = 5 * time.Second

// cancelTimeout bounds every Cancel call issued while aborting a run.
const cancelTimeout = 30 * time.Second

const (
	reasonDeadline = "deadline exceeded"
	reasonCanceled = "canceled"
)

// Params bound the run loop. A Timeout of zero or less means unbounded.
type Params struct {
	SpinInterval time.Duration
	Timeout      time.Duration
}

// Engine runs pipeline definitions. An Engine holds no per-run state and may
// run several definitions, one Run call at a time per goroutine.
type Engine struct {
	adapter   domain.BuildAdapter
	params    Params
	clock     clock.Clock
	log       *logrus.Entry
	observers observers
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the base log entry; run and stage fields are added to it.
func WithLogger(log *logrus.Entry) Option {
	return func(e *Engine) { e.log = log }
}

// WithObserver registers observers in call order.
func WithObserver(obs ...Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, obs...) }
}

// New returns an Engine triggering jobs through adapter.
func New(adapter domain.BuildAdapter, params Params, opts ...Option) *Engine {
	if params.SpinInterval <= 0 {
		params.SpinInterval = DefaultSpinInterval
	}
	e := &Engine{
		adapter: adapter,
		params:  params,
		clock:   clock.Real(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logging.Discard()
	}
	return e
}

// Params returns the effective run parameters.
func (e *Engine) Params() Params { return e.params }

// Run executes def to completion and returns the frozen run. It never
// returns an error and never panics: adapter failures fail the affected job,
// and anything unexpected aborts the run with StatusFailed and a recorded
// message. Cancelling ctx is handled like an expired deadline.
func (e *Engine) Run(ctx context.Context, def domain.PipelineDefinition) *PipelineRun {
	start := e.clock.Now()
	run := newRun(def, start)
	if e.params.Timeout > 0 {
		run.deadline = start.Add(e.params.Timeout)
	}
	log := e.log.WithFields(logrus.Fields{
		logging.FieldRunID:    run.id,
		logging.FieldPipeline: def.Name,
	})

	x := &execution{Engine: e, ctx: ctx, run: run, log: log}
	x.execute()
	e.finished(run, log)
	return run
}

// finished notifies RunFinished; observer failures at this point only get logged.
func (e *Engine) finished(run *PipelineRun, log *logrus.Entry) {
	defer recoverPanic(func(cause *goerrors.Error) {
		log.WithError(cause).Error("observer failed after run finished")
	})
	log.WithFields(logrus.Fields{
		logging.FieldState:    run.state.String(),
		logging.FieldStatus:   run.status.String(),
		logging.FieldDuration: run.Elapsed().String(),
	}).Info("pipeline finished")
	e.observers.each(func(o Observer) { o.RunFinished(run) })
}

// execution is the state of one Run call.
type execution struct {
	*Engine
	ctx context.Context
	run *PipelineRun
	log *logrus.Entry

	// inFlight holds the handles of the stage being executed, so an
	// unexpected failure can still cancel them.
	inFlight []*domain.JobHandle
}

func (x *execution) execute() {
	defer recoverPanic(func(cause *goerrors.Error) {
		x.log.WithError(cause).Error("pipeline aborted by unexpected failure")
		x.log.Debug(cause.ErrorStack())
		x.abort(fmt.Sprintf("aborted: %v", cause.Err))
	})

	x.run.state = StateRunning
	x.log.WithField(logging.FieldStages, len(x.run.definition.Stages)).Info("pipeline started")
	x.observers.each(func(o Observer) { o.RunStarted(x.run) })

	for i, stage := range x.run.definition.Stages {
		x.run.stageIndex = i
		status, stop, err := x.runStage(i, stage)
		if err != nil {
			x.log.WithError(err).Error("pipeline aborted")
			x.abort(err.Error())
			return
		}
		if status != domain.StatusNone {
			x.run.status = domain.Worst(x.run.status, status)
		}
		if stop {
			x.run.finish(StateAborted, x.run.status, x.clock.Now())
			return
		}
	}
	x.run.finish(StateCompleted, x.run.status, x.clock.Now())
}

// abort fails and cancels whatever is still in flight and freezes the run as
// Aborted(Failed) with reason as its error.
func (x *execution) abort(reason string) {
	defer recoverPanic(func(cause *goerrors.Error) {
		x.log.WithError(cause).Error("abort cleanup failed")
	})
	if x.run.err == "" {
		x.run.err = reason
	}
	x.cancelPending(x.inFlight, reason)
	x.run.finish(StateAborted, domain.StatusFailed, x.clock.Now())
}

// runStage triggers every job of stage and waits for all of them. stop
// reports whether the pipeline must not continue past this stage.
func (x *execution) runStage(index int, stage domain.Stage) (status domain.StepStatus, stop bool, err error) {
	log := x.log.WithField(logging.FieldStage, stage.Name)
	log.WithField(logging.FieldJobs, len(stage.Jobs)).Info("stage started")
	x.observers.each(func(o Observer) { o.StageStarted(x.run, index, stage) })

	x.inFlight = make([]*domain.JobHandle, 0, len(stage.Jobs))
	for _, tmpl := range stage.Jobs {
		if err := x.submit(tmpl, log); err != nil {
			return domain.StatusFailed, true, err
		}
	}

	if reason := x.wait(x.inFlight, log); reason != "" {
		log.WithField(logging.FieldReason, reason).Error("stage interrupted")
		x.run.err = reason
		x.cancelPending(x.inFlight, reason)
		x.endStage(index, stage, domain.StatusFailed, log)
		return domain.StatusFailed, true, nil
	}

	if len(x.inFlight) == 0 {
		// A stage without jobs succeeds vacuously and leaves the aggregate alone.
		x.endStage(index, stage, domain.StatusSucceeded, log)
		return domain.StatusNone, false, nil
	}

	statuses := make([]domain.StepStatus, len(x.inFlight))
	for i, h := range x.inFlight {
		statuses[i] = h.Status
	}
	status = domain.StageOutcome(statuses)
	x.endStage(index, stage, status, log)
	stop = status == domain.StatusFailed && !stage.ContinueOnPartialFailure
	return status, stop, nil
}

func (x *execution) endStage(index int, stage domain.Stage, status domain.StepStatus, log *logrus.Entry) {
	x.run.recordStage(stage, status, x.inFlight)
	x.inFlight = nil
	results := x.run.stages
	result := results[len(results)-1]
	log.WithField(logging.FieldStatus, status.String()).Info("stage finished")
	x.observers.each(func(o Observer) { o.StageFinished(x.run, index, result) })
}

// submit triggers one job and adds it to the stage in flight. A submit
// failure fails the job without failing its siblings; the returned error is
// reserved for run-level inconsistencies.
func (x *execution) submit(tmpl domain.JobTemplate, log *logrus.Entry) error {
	log = log.WithFields(logrus.Fields{
		logging.FieldJob:      tmpl.Name,
		logging.FieldProvider: tmpl.Provider,
	})

	h, err := x.adapter.Submit(x.ctx, tmpl)
	now := x.clock.Now()
	if err != nil {
		aerr := &domain.AdapterError{Op: "submit", Job: tmpl.Name, Err: err}
		h = domain.JobHandle{}
		h.SubmittedAt = now
		h.Fail(now, aerr.Error())
		x.adapterFailed(aerr, log)
	}

	h.Name = tmpl.Name
	if h.Provider == "" {
		h.Provider = tmpl.Provider
	}
	if h.SubmittedAt.IsZero() {
		h.SubmittedAt = now
	}
	if h.IsTerminal() && h.CompletedAt.IsZero() {
		h.CompletedAt = now
	}
	if !h.IsTerminal() {
		h.CompletedAt = time.Time{}
	}

	stored, err := x.run.addJob(h)
	if err != nil {
		x.cancelPending([]*domain.JobHandle{&h}, err.Error())
		return err
	}
	x.inFlight = append(x.inFlight, stored)
	log.WithFields(logrus.Fields{
		logging.FieldRemoteID: stored.RemoteID,
		logging.FieldLink:     stored.Link,
	}).Info("job submitted")
	x.observers.each(func(o Observer) { o.JobSubmitted(x.run, *stored) })
	return nil
}

// wait polls handles until every one is terminal. It returns a non-empty
// reason when the deadline expired or the context was cancelled first.
func (x *execution) wait(handles []*domain.JobHandle, log *logrus.Entry) string {
	for !allTerminal(handles) {
		if err := x.ctx.Err(); err != nil {
			return reasonCanceled + ": " + err.Error()
		}
		now := x.clock.Now()
		sleep := x.params.SpinInterval
		if !x.run.deadline.IsZero() {
			remaining := x.run.deadline.Sub(now)
			if remaining <= 0 {
				return reasonDeadline
			}
			if remaining < sleep {
				sleep = remaining
			}
		}

		select {
		case <-x.ctx.Done():
			return reasonCanceled + ": " + x.ctx.Err().Error()
		case <-x.clock.After(sleep):
		}

		for _, h := range handles {
			if !h.IsTerminal() {
				x.poll(h, log)
			}
		}
	}
	return ""
}

func (x *execution) poll(h *domain.JobHandle, log *logrus.Entry) {
	log = log.WithField(logging.FieldJob, h.Name)

	u, err := x.adapter.Poll(x.ctx, *h)
	now := x.clock.Now()
	if err != nil {
		aerr := &domain.AdapterError{Op: "poll", Job: h.Name, Err: err}
		h.Fail(now, aerr.Error())
		x.adapterFailed(aerr, log)
		x.observers.each(func(o Observer) { o.JobUpdated(x.run, *h) })
		return
	}

	before := *h
	h.Apply(u, now)
	if before == *h {
		return
	}
	if h.IsTerminal() {
		log.WithFields(logrus.Fields{
			logging.FieldStatus:   h.Status.String(),
			logging.FieldDuration: h.RunTime().String(),
		}).Info("job finished")
	} else if h.HasStarted() && !before.HasStarted() {
		log.Debug("job started")
	}
	x.observers.each(func(o Observer) { o.JobUpdated(x.run, *h) })
}

// cancelPending fails every non-terminal handle with reason and asks the
// adapter to cancel it, exactly once per handle.
func (x *execution) cancelPending(handles []*domain.JobHandle, reason string) {
	// Cancellation must still reach the build system when ctx is what ended the run.
	base := context.WithoutCancel(x.ctx)

	var errs *multierror.Error
	for _, h := range handles {
		if h.IsTerminal() {
			continue
		}
		h.Fail(x.clock.Now(), reason)
		if err := x.cancel(base, *h); err != nil {
			aerr := &domain.AdapterError{Op: "cancel", Job: h.Name, Err: err}
			errs = multierror.Append(errs, aerr)
			x.observers.each(func(o Observer) { o.AdapterFailed(x.run, aerr) })
		}
		x.observers.each(func(o Observer) { o.JobUpdated(x.run, *h) })
	}
	if err := errs.ErrorOrNil(); err != nil {
		x.log.WithError(err).Warn("some jobs could not be cancelled")
	}
}

func (x *execution) cancel(base context.Context, h domain.JobHandle) (err error) {
	defer recoverPanic(func(cause *goerrors.Error) {
		err = cause
	})
	ctx, cancel := context.WithTimeout(base, cancelTimeout)
	defer cancel()
	return x.adapter.Cancel(ctx, h)
}

func (x *execution) adapterFailed(aerr *domain.AdapterError, log *logrus.Entry) {
	log.WithError(aerr.Err).WithField(logging.FieldOp, aerr.Op).Warn("adapter call failed")
	x.observers.each(func(o Observer) { o.AdapterFailed(x.run, aerr) })
}

func allTerminal(handles []*domain.JobHandle) bool {
	for _, h := range handles {
		if !h.IsTerminal() {
			return false
		}
	}
	return true
}
