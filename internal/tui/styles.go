package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/waabox/pipedeck/internal/domain"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	succeededStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	partialStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	runningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
)

const separator = "────────────────────────────────────────────────────────────\n"

// statusIcon renders a job or stage status. started distinguishes a running
// job from a queued one while the status is still StatusNone.
func statusIcon(s domain.StepStatus, started bool) string {
	switch s {
	case domain.StatusSucceeded:
		return succeededStyle.Render("✓")
	case domain.StatusPartiallySucceeded:
		return partialStyle.Render("◐")
	case domain.StatusFailed:
		return failedStyle.Render("✗")
	}
	if started {
		return runningStyle.Render("●")
	}
	return dimStyle.Render("↷")
}

func statusStyle(s domain.StepStatus) lipgloss.Style {
	switch s {
	case domain.StatusSucceeded:
		return succeededStyle
	case domain.StatusPartiallySucceeded:
		return partialStyle
	case domain.StatusFailed:
		return failedStyle
	default:
		return runningStyle
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
