// Package report turns a finished pipeline run into a build summary and
// renders it. Nothing here performs I/O.
package report

import (
	"time"

	"github.com/waabox/pipedeck/internal/domain"
	"github.com/waabox/pipedeck/internal/engine"
)

// JobSummary is one triggered job as shown in the summary.
type JobSummary struct {
	Name     string            `json:"name"`
	Provider string            `json:"provider"`
	Link     string            `json:"link,omitempty"`
	WaitTime time.Duration     `json:"wait_time"`
	RunTime  time.Duration     `json:"run_time"`
	Status   domain.StepStatus `json:"status"`
	Error    string            `json:"error,omitempty"`
}

// StageSummary is the outcome of one executed stage.
type StageSummary struct {
	Name   string            `json:"name"`
	Status domain.StepStatus `json:"status"`
}

// Summary is the build summary of one run. Jobs are in trigger order.
type Summary struct {
	RunID          string            `json:"run_id"`
	Pipeline       string            `json:"pipeline"`
	SourcesVersion string            `json:"sources_version,omitempty"`
	State          string            `json:"state"`
	Status         domain.StepStatus `json:"status"`
	Error          string            `json:"error,omitempty"`
	StartedAt      time.Time         `json:"started_at"`
	Elapsed        time.Duration     `json:"elapsed"`
	Stages         []StageSummary    `json:"stages"`
	Jobs           []JobSummary      `json:"jobs"`
}

// Summarize builds the summary of run. sourcesVersion is the revision the
// pipeline ran against, empty when unknown.
func Summarize(run *engine.PipelineRun, sourcesVersion string) Summary {
	s := Summary{
		RunID:          run.ID(),
		Pipeline:       run.Definition().Name,
		SourcesVersion: sourcesVersion,
		State:          run.State().String(),
		Status:         run.Status(),
		Error:          run.Error(),
		StartedAt:      run.StartedAt(),
		Elapsed:        run.Elapsed(),
	}

	for _, st := range run.Stages() {
		s.Stages = append(s.Stages, StageSummary{Name: st.Name, Status: st.Status})
	}
	for _, h := range run.Jobs() {
		s.Jobs = append(s.Jobs, JobSummary{
			Name:     h.Name,
			Provider: h.Provider,
			Link:     h.Link,
			WaitTime: h.WaitTime(),
			RunTime:  h.RunTime(),
			Status:   h.Status,
			Error:    h.Error,
		})
	}
	return s
}

// Count returns how many jobs ended with status.
func (s Summary) Count(status domain.StepStatus) int {
	n := 0
	for _, j := range s.Jobs {
		if j.Status == status {
			n++
		}
	}
	return n
}
