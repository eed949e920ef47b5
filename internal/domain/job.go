package domain

import (
	"sort"
	"time"
)

// JobTemplate is the declarative description of one downstream job to trigger.
type JobTemplate struct {
	Name     string
	Provider string
	Target   string
	Ref      string
	Params   map[string]string
}

// Reference returns the job reference in definition syntax, e.g. "github:acme/api/ci.yml@main".
func (t JobTemplate) Reference() string {
	ref := t.Provider + ":" + t.Target
	if t.Ref != "" {
		ref += "@" + t.Ref
	}
	return ref
}

// Param returns the named parameter, or def when it is absent.
func (t JobTemplate) Param(key, def string) string {
	if v, ok := t.Params[key]; ok {
		return v
	}
	return def
}

// ParamKeys returns the parameter names in sorted order.
func (t JobTemplate) ParamKeys() []string {
	keys := make([]string, 0, len(t.Params))
	for k := range t.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// JobHandle tracks one submitted job. Zero time values mean "not yet".
type JobHandle struct {
	Name     string
	Provider string
	// RemoteID identifies the job inside the adapter's system. Adapters may leave it
	// empty at submit time and resolve it on a later poll.
	RemoteID string
	Link     string

	SubmittedAt time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	Status      StepStatus
	// Error holds the adapter failure that forced the job to StatusFailed, if any.
	Error string
}

// JobUpdate is an adapter's current view of a job as returned by Poll.
// Zero fields mean "unchanged".
type JobUpdate struct {
	RemoteID    string
	Link        string
	StartedAt   time.Time
	CompletedAt time.Time
	Status      StepStatus
}

// IsTerminal reports whether the job has reached its final status.
func (h *JobHandle) IsTerminal() bool {
	return h.Status.IsTerminal()
}

// HasStarted reports whether the adapter has reported the job as begun.
func (h *JobHandle) HasStarted() bool {
	return !h.StartedAt.IsZero()
}

// WaitTime is the time between submission and start, zero if the job never started.
func (h *JobHandle) WaitTime() time.Duration {
	if !h.HasStarted() || h.SubmittedAt.IsZero() || h.StartedAt.Before(h.SubmittedAt) {
		return 0
	}
	return h.StartedAt.Sub(h.SubmittedAt)
}

// RunTime is the time between start and completion, zero if the job never started
// or has not completed.
func (h *JobHandle) RunTime() time.Duration {
	if !h.HasStarted() || h.CompletedAt.IsZero() || h.CompletedAt.Before(h.StartedAt) {
		return 0
	}
	return h.CompletedAt.Sub(h.StartedAt)
}

// Apply merges a poll result into the handle. Once the handle is terminal it
// never changes again. A terminal update without a completion time completes
// the job at now.
func (h *JobHandle) Apply(u JobUpdate, now time.Time) {
	if h.IsTerminal() {
		return
	}
	if u.RemoteID != "" {
		h.RemoteID = u.RemoteID
	}
	if u.Link != "" {
		h.Link = u.Link
	}
	if h.StartedAt.IsZero() && !u.StartedAt.IsZero() {
		h.StartedAt = u.StartedAt
	}
	if !u.Status.IsTerminal() {
		return
	}
	completed := u.CompletedAt
	if completed.IsZero() {
		completed = now
	}
	h.complete(u.Status, completed)
}

// Fail forces the handle to StatusFailed at the given time, recording reason.
// It is a no-op on a terminal handle.
func (h *JobHandle) Fail(at time.Time, reason string) {
	if h.IsTerminal() {
		return
	}
	if reason != "" {
		h.Error = reason
	}
	h.complete(StatusFailed, at)
}

func (h *JobHandle) complete(status StepStatus, at time.Time) {
	if h.HasStarted() && at.Before(h.StartedAt) {
		at = h.StartedAt
	}
	h.Status = status
	h.CompletedAt = at
}
