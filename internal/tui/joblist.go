package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/waabox/pipedeck/internal/domain"
	"github.com/waabox/pipedeck/internal/report"
)

type jobRow struct {
	stage int
	job   domain.JobHandle
}

// JobListModel is an immutable model for the jobs panel. Jobs keep their
// trigger order.
type JobListModel struct {
	rows   []jobRow
	cursor int
}

// NewJobListModel creates an empty job list.
func NewJobListModel() JobListModel {
	return JobListModel{}
}

// Upsert returns a model with job added, or replaced when a job with the
// same name is already listed.
func (m JobListModel) Upsert(stage int, job domain.JobHandle) JobListModel {
	rows := append([]jobRow(nil), m.rows...)
	for i := range rows {
		if rows[i].job.Name == job.Name {
			rows[i].job = job
			m.rows = rows
			return m
		}
	}
	m.rows = append(rows, jobRow{stage: stage, job: job})
	return m
}

// MoveDown returns a new model with the cursor moved down by one.
func (m JobListModel) MoveDown() JobListModel {
	if m.cursor < len(m.rows)-1 {
		m.cursor++
	}
	return m
}

// MoveUp returns a new model with the cursor moved up by one.
func (m JobListModel) MoveUp() JobListModel {
	if m.cursor > 0 {
		m.cursor--
	}
	return m
}

// Cursor returns the current cursor position.
func (m JobListModel) Cursor() int { return m.cursor }

// Len returns the number of listed jobs.
func (m JobListModel) Len() int { return len(m.rows) }

// Selected returns the highlighted job, false when the list is empty.
func (m JobListModel) Selected() (domain.JobHandle, bool) {
	if len(m.rows) == 0 {
		return domain.JobHandle{}, false
	}
	return m.rows[m.cursor].job, true
}

// View renders the job list. now is used for the live timers of unfinished jobs.
func (m JobListModel) View(now time.Time) string {
	if len(m.rows) == 0 {
		return "No jobs triggered yet."
	}
	var sb strings.Builder
	for i, r := range m.rows {
		prefix := "  "
		if i == m.cursor {
			prefix = "> "
		}
		wait, run := liveTimes(r.job, now)
		sb.WriteString(fmt.Sprintf("%s%s %-25s %-7s W %s  R %s\n",
			prefix,
			statusIcon(r.job.Status, r.job.HasStarted()),
			truncate(r.job.Name, 25),
			r.job.Provider,
			report.Clock(wait),
			report.Clock(run),
		))
	}
	return sb.String()
}

// liveTimes returns the wait and run times of job, measuring unfinished
// phases up to now.
func liveTimes(job domain.JobHandle, now time.Time) (wait, run time.Duration) {
	if job.IsTerminal() || now.IsZero() {
		return job.WaitTime(), job.RunTime()
	}
	if !job.HasStarted() {
		if job.SubmittedAt.IsZero() || now.Before(job.SubmittedAt) {
			return 0, 0
		}
		return now.Sub(job.SubmittedAt), 0
	}
	wait = job.WaitTime()
	if now.After(job.StartedAt) {
		run = now.Sub(job.StartedAt)
	}
	return wait, run
}
