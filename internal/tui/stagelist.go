package tui

import (
	"strings"

	"github.com/waabox/pipedeck/internal/domain"
)

type stageRow struct {
	name     string
	status   domain.StepStatus
	started  bool
	finished bool
}

// StageListModel is an immutable model for the stage progress line.
type StageListModel struct {
	stages []stageRow
}

// NewStageListModel creates a stage list with every stage pending.
func NewStageListModel(names []string) StageListModel {
	rows := make([]stageRow, len(names))
	for i, n := range names {
		rows[i] = stageRow{name: n}
	}
	return StageListModel{stages: rows}
}

// Start returns a model with stage index marked as running.
func (m StageListModel) Start(index int) StageListModel {
	if index < 0 || index >= len(m.stages) {
		return m
	}
	m.stages = append([]stageRow(nil), m.stages...)
	m.stages[index].started = true
	return m
}

// Finish returns a model with stage index marked as done with status.
func (m StageListModel) Finish(index int, status domain.StepStatus) StageListModel {
	if index < 0 || index >= len(m.stages) {
		return m
	}
	m.stages = append([]stageRow(nil), m.stages...)
	m.stages[index].started = true
	m.stages[index].finished = true
	m.stages[index].status = status
	return m
}

// Len returns the number of stages.
func (m StageListModel) Len() int { return len(m.stages) }

// View renders the stages on one line, e.g. "✓ build → ● test → ↷ deploy".
func (m StageListModel) View() string {
	if len(m.stages) == 0 {
		return "No stages."
	}
	parts := make([]string, len(m.stages))
	for i, s := range m.stages {
		name := s.name
		if s.started && !s.finished {
			name = headerStyle.Render(name)
		}
		parts[i] = statusIcon(s.status, s.started && !s.finished) + " " + name
	}
	return strings.Join(parts, " → ")
}
