// Package memory implements a scripted in-memory BuildAdapter. Each job's
// outcome is declared through its parameters, which makes it suitable for
// dry runs and for exercising the engine deterministically.
//
// Recognised parameters:
//
//	result        succeeded | partially-succeeded | failed (default succeeded)
//	start-after   polls before the job reports as started (default 1)
//	finish-after  polls before the job reports its result (default 2)
//	never-finish  "true" keeps the job running forever
//	submit-error  fail Submit with this message
//	poll-error    fail every Poll with this message
//	cancel-error  fail Cancel with this message
package memory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/waabox/pipedeck/internal/clock"
	"github.com/waabox/pipedeck/internal/domain"
)

// ProviderName is the provider prefix this adapter is registered under.
const ProviderName = "mock"

const (
	defaultStartAfter  = 1
	defaultFinishAfter = 2
)

// ErrUnknownJob is returned when a handle was not issued by this adapter.
var ErrUnknownJob = errors.New("unknown job")

type script struct {
	result      domain.StepStatus
	startAfter  int
	finishAfter int
	neverFinish bool
	pollErr     string
	cancelErr   string
}

type job struct {
	name   string
	script script
	polls  int
}

// Adapter is safe for concurrent use.
type Adapter struct {
	clock clock.Clock

	mu      sync.Mutex
	seq     int
	jobs    map[string]*job // by remote ID
	order   []string
	submits map[string]int
	polls   map[string]int
	cancels map[string]int
}

// New returns an Adapter stamping times from c.
func New(c clock.Clock) *Adapter {
	if c == nil {
		c = clock.Real()
	}
	return &Adapter{
		clock:   c,
		jobs:    make(map[string]*job),
		submits: make(map[string]int),
		polls:   make(map[string]int),
		cancels: make(map[string]int),
	}
}

func (a *Adapter) Submit(_ context.Context, tmpl domain.JobTemplate) (domain.JobHandle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.submits[tmpl.Name]++
	a.order = append(a.order, tmpl.Name)

	if msg := tmpl.Param("submit-error", ""); msg != "" {
		return domain.JobHandle{}, errors.New(msg)
	}
	s, err := parseScript(tmpl)
	if err != nil {
		return domain.JobHandle{}, err
	}

	a.seq++
	id := fmt.Sprintf("mem-%d", a.seq)
	a.jobs[id] = &job{name: tmpl.Name, script: s}

	now := a.clock.Now()
	h := domain.JobHandle{
		Name:        tmpl.Name,
		Provider:    tmpl.Provider,
		RemoteID:    id,
		Link:        "memory://" + id,
		SubmittedAt: now,
	}
	if s.startAfter == 0 {
		h.StartedAt = now
	}
	if s.finishAfter == 0 && !s.neverFinish {
		h.Status = s.result
		h.CompletedAt = now
	}
	return h, nil
}

func (a *Adapter) Poll(_ context.Context, h domain.JobHandle) (domain.JobUpdate, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.polls[h.Name]++
	j, ok := a.jobs[h.RemoteID]
	if !ok {
		return domain.JobUpdate{}, fmt.Errorf("%w %q", ErrUnknownJob, h.RemoteID)
	}
	if j.script.pollErr != "" {
		return domain.JobUpdate{}, errors.New(j.script.pollErr)
	}

	j.polls++
	now := a.clock.Now()
	var u domain.JobUpdate
	if j.polls >= j.script.startAfter {
		u.StartedAt = now
		if !h.StartedAt.IsZero() {
			u.StartedAt = h.StartedAt
		}
	}
	if !j.script.neverFinish && j.polls >= j.script.finishAfter {
		if u.StartedAt.IsZero() {
			u.StartedAt = now
		}
		u.Status = j.script.result
		u.CompletedAt = now
	}
	return u, nil
}

func (a *Adapter) Cancel(_ context.Context, h domain.JobHandle) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.cancels[h.Name]++
	j, ok := a.jobs[h.RemoteID]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownJob, h.RemoteID)
	}
	if j.script.cancelErr != "" {
		return errors.New(j.script.cancelErr)
	}
	j.script.neverFinish = true
	return nil
}

// Submitted returns job names in the order Submit was called.
func (a *Adapter) Submitted() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}

// Submits returns how many times Submit was called for the named job.
func (a *Adapter) Submits(name string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.submits[name]
}

// Polls returns how many times Poll was called for the named job.
func (a *Adapter) Polls(name string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.polls[name]
}

// Cancels returns how many times Cancel was called for the named job.
func (a *Adapter) Cancels(name string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancels[name]
}

func parseScript(tmpl domain.JobTemplate) (script, error) {
	s := script{
		result:    domain.StatusSucceeded,
		pollErr:   tmpl.Param("poll-error", ""),
		cancelErr: tmpl.Param("cancel-error", ""),
	}

	result, err := domain.ParseStepStatus(tmpl.Param("result", "succeeded"))
	if err != nil || !result.IsTerminal() {
		return script{}, fmt.Errorf("param result: invalid value %q", tmpl.Param("result", ""))
	}
	s.result = result

	if s.startAfter, err = intParam(tmpl, "start-after", defaultStartAfter); err != nil {
		return script{}, err
	}
	if s.finishAfter, err = intParam(tmpl, "finish-after", defaultFinishAfter); err != nil {
		return script{}, err
	}
	if s.finishAfter < s.startAfter {
		s.startAfter = s.finishAfter
	}

	if v := tmpl.Param("never-finish", "false"); v != "" {
		if s.neverFinish, err = strconv.ParseBool(v); err != nil {
			return script{}, fmt.Errorf("param never-finish: invalid value %q", v)
		}
	}
	return s, nil
}

func intParam(tmpl domain.JobTemplate, key string, def int) (int, error) {
	v, ok := tmpl.Params[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("param %s: invalid value %q", key, v)
	}
	return n, nil
}
