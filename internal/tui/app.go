package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/waabox/pipedeck/internal/domain"
	"github.com/waabox/pipedeck/internal/report"
)

// maxErrors is how many recent adapter errors the status bar keeps.
const maxErrors = 3

// tickMsg is sent by the clock ticker that refreshes live timers.
type tickMsg time.Time

// viewState indicates the current navigation level.
type viewState int

const (
	viewRun viewState = iota
	viewJob
	viewLogs
)

// AppModel is the root Bubbletea model for a live pipeline run.
type AppModel struct {
	cancel func()

	// Run level
	runID     string
	pipeline  string
	startedAt time.Time
	deadline  time.Time
	now       time.Time
	stages    StageListModel
	stage     int
	jobs      JobListModel
	errors    []string
	summary   *report.Summary

	// Navigation
	view       viewState
	logs       logView
	logLoading bool
	logErr     error

	// Cancellation
	confirmCancel bool
	cancelling    bool
	quitting      bool

	width  int
	height int
}

// NewAppModel creates the root model. cancel stops the run; it may be nil
// when the model only displays events.
func NewAppModel(cancel func()) AppModel {
	if cancel == nil {
		cancel = func() {}
	}
	return AppModel{
		cancel: cancel,
		stage:  -1,
		jobs:   NewJobListModel(),
	}
}

// Init starts the ticker for live timers.
func (m AppModel) Init() tea.Cmd {
	return tickEvery(time.Second)
}

func tickEvery(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Finished reports whether the run has completed.
func (m AppModel) Finished() bool { return m.summary != nil }

// Update handles engine events and key presses.
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		if m.Finished() {
			return m, nil
		}
		m.now = time.Time(msg)
		return m, tickEvery(time.Second)

	case RunStartedMsg:
		m.runID = msg.RunID
		m.pipeline = msg.Pipeline
		m.startedAt = msg.StartedAt
		m.deadline = msg.Deadline
		m.now = msg.StartedAt
		m.stages = NewStageListModel(msg.Stages)

	case StageStartedMsg:
		m.stage = msg.Index
		m.stages = m.stages.Start(msg.Index)

	case JobMsg:
		m.jobs = m.jobs.Upsert(msg.Stage, msg.Job)

	case StageFinishedMsg:
		m.stages = m.stages.Finish(msg.Index, msg.Status)

	case AdapterErrorMsg:
		m.errors = append(m.errors, msg.Err)
		if len(m.errors) > maxErrors {
			m.errors = m.errors[len(m.errors)-maxErrors:]
		}

	case RunFinishedMsg:
		s := msg.Summary
		m.summary = &s
		m.now = s.StartedAt.Add(s.Elapsed)
		m.confirmCancel = false
		if m.quitting {
			return m, tea.Quit
		}

	case LogsLoadedMsg:
		m.logLoading = false
		if msg.Err != nil {
			// Log errors are non-fatal: stay in the current view.
			m.logErr = msg.Err
			return m, nil
		}
		m.logErr = nil
		m.logs = logView{job: msg.JobName, content: msg.Content}
		m.view = viewLogs

	case tea.KeyMsg:
		return m.updateKey(msg)
	}
	return m, nil
}

func (m AppModel) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if m.confirmCancel {
		m.confirmCancel = false
		if key == "y" {
			return m.cancelRun(), nil
		}
		if key != "q" && key != "ctrl+c" {
			return m, nil
		}
	}

	switch key {
	case "q", "ctrl+c":
		if m.Finished() {
			return m, tea.Quit
		}
		m = m.cancelRun()
		m.quitting = true
		return m, nil
	}

	switch m.view {
	case viewRun:
		return m.updateRun(key)
	case viewJob:
		return m.updateJob(key)
	case viewLogs:
		if key == "esc" {
			m.view = viewJob
			m.logs = logView{}
			return m, nil
		}
		m.logs = m.logs.update(key, m.visibleLogLines())
	}
	return m, nil
}

func (m AppModel) cancelRun() AppModel {
	if !m.cancelling && !m.Finished() {
		m.cancelling = true
		m.cancel()
	}
	return m
}

func (m AppModel) updateRun(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "down", "j":
		m.jobs = m.jobs.MoveDown()
	case "up", "k":
		m.jobs = m.jobs.MoveUp()
	case "enter":
		if m.jobs.Len() > 0 {
			m.view = viewJob
			m.logErr = nil
		}
	case "x":
		if !m.Finished() && !m.cancelling {
			m.confirmCancel = true
		}
	}
	return m, nil
}

func (m AppModel) updateJob(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "esc":
		m.view = viewRun
	case "l":
		job, ok := m.jobs.Selected()
		if !ok || m.logLoading {
			return m, nil
		}
		if _, ok := logPath(job); !ok {
			return m, nil
		}
		m.logLoading = true
		return m, loadLog(job)
	}
	return m, nil
}

// View renders the full TUI.
func (m AppModel) View() string {
	if m.logLoading {
		return "Loading logs...\n"
	}
	if m.view == viewLogs {
		return m.logs.render(m.pipeline, m.visibleLogLines())
	}
	if m.runID == "" {
		return "Starting pipeline...\n"
	}

	switch m.view {
	case viewJob:
		return m.header() + separator + m.renderJob() + separator + m.footer()
	default:
		return m.header() + separator +
			" Stages: " + m.stages.View() + "\n" + separator +
			" Jobs\n" + m.jobs.View(m.now) + separator +
			m.statusBar() + separator + m.footer()
	}
}

func (m AppModel) header() string {
	elapsed := time.Duration(0)
	if !m.now.IsZero() && m.now.After(m.startedAt) {
		elapsed = m.now.Sub(m.startedAt)
	}
	line := fmt.Sprintf(" pipedeck | %s | run %s | elapsed %s",
		headerStyle.Render(m.pipeline), shortID(m.runID), report.Clock(elapsed))
	if !m.deadline.IsZero() && !m.Finished() {
		remaining := m.deadline.Sub(m.now)
		if remaining < 0 {
			remaining = 0
		}
		line += " | deadline in " + report.Clock(remaining)
	}
	return line + "\n"
}

func (m AppModel) statusBar() string {
	var sb strings.Builder
	for _, e := range m.errors {
		sb.WriteString(" " + failedStyle.Render("! "+e) + "\n")
	}
	switch {
	case m.Finished():
		status := "PIPELINE " + m.summary.Status.HumanReadable()
		sb.WriteString(" " + statusStyle(m.summary.Status).Render(status) + "\n")
		if m.summary.Error != "" {
			sb.WriteString(" Error: " + m.summary.Error + "\n")
		}
	case m.cancelling:
		sb.WriteString(" Cancelling run...\n")
	case m.stage >= 0:
		sb.WriteString(fmt.Sprintf(" Stage %d of %d running\n", m.stage+1, m.stages.Len()))
	default:
		sb.WriteString(" Waiting for first stage\n")
	}
	return sb.String()
}

func (m AppModel) footer() string {
	switch {
	case m.confirmCancel:
		return " Cancel the running pipeline? [y/N] \n"
	case m.view == viewJob:
		return " l: logs   esc: back   x: cancel run   q: quit\n"
	case m.Finished():
		return " ↑/↓: navigate   enter: job details   q: quit\n"
	default:
		return " ↑/↓: navigate   enter: job details   x: cancel run   q: cancel and quit\n"
	}
}

func (m AppModel) renderJob() string {
	job, ok := m.jobs.Selected()
	if !ok {
		return " No job selected.\n"
	}
	wait, run := liveTimes(job, m.now)
	var sb strings.Builder
	fmt.Fprintf(&sb, " Job:        %s\n", headerStyle.Render(job.Name))
	fmt.Fprintf(&sb, " Provider:   %s\n", job.Provider)
	fmt.Fprintf(&sb, " Remote ID:  %s\n", orDash(job.RemoteID))
	fmt.Fprintf(&sb, " Link:       %s\n", orDash(job.Link))
	fmt.Fprintf(&sb, " Submitted:  %s\n", formatTime(job.SubmittedAt))
	fmt.Fprintf(&sb, " Started:    %s\n", formatTime(job.StartedAt))
	fmt.Fprintf(&sb, " Completed:  %s\n", formatTime(job.CompletedAt))
	fmt.Fprintf(&sb, " Wait / Run: %s / %s\n", report.Clock(wait), report.Clock(run))
	fmt.Fprintf(&sb, " Status:     %s %s\n", statusIcon(job.Status, job.HasStarted()), jobStatusText(job))
	if job.Error != "" {
		fmt.Fprintf(&sb, " Error:      %s\n", failedStyle.Render(job.Error))
	}
	if m.logErr != nil {
		fmt.Fprintf(&sb, " Logs:       %v\n", m.logErr)
	}
	return sb.String()
}

func jobStatusText(job domain.JobHandle) string {
	switch {
	case job.IsTerminal():
		return job.Status.HumanReadable()
	case job.HasStarted():
		return "RUNNING"
	default:
		return "QUEUED"
	}
}

// visibleLogLines returns the number of log lines visible in the current terminal height.
func (m AppModel) visibleLogLines() int {
	lines := m.height - 4 // account for header, separators, and footer
	if lines < 10 {
		return 10
	}
	return lines
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("15:04:05")
}
