package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/waabox/pipedeck/internal/engine"
)

// Execute runs start on its own goroutine while the TUI displays it, and
// returns the frozen run once both have finished. start must pass the
// observer it receives to the engine. Quitting the TUI cancels the run.
func Execute(ctx context.Context, sourcesVersion string, start func(context.Context, engine.Observer) *engine.PipelineRun) (*engine.PipelineRun, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewAppModel(cancel), tea.WithAltScreen())
	done := make(chan *engine.PipelineRun, 1)
	go func() {
		done <- start(ctx, NewObserver(p.Send, sourcesVersion))
	}()

	_, err := p.Run()
	if err != nil {
		err = fmt.Errorf("pipedeck TUI: %w", err)
	}
	cancel()
	return <-done, err
}
