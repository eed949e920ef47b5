package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/waabox/pipedeck/internal/history"
	"github.com/waabox/pipedeck/internal/report"
)

// HistoryCmd groups the history subcommands.
type HistoryCmd struct {
	List HistoryListCmd `cmd:"" default:"withargs" help:"List recent runs, newest first"`
	Show HistoryShowCmd `cmd:"" help:"Print the summary of a recorded run"`
}

// HistoryListCmd implements 'history list'.
type HistoryListCmd struct {
	Limit int `short:"n" help:"Maximum number of runs to list, 0 for all" default:"20"`
}

func (h *HistoryListCmd) Run(root *CLI) error {
	store, err := openHistory(root)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.List(context.Background(), h.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("RUN", "PIPELINE", "STATUS", "STARTED", "ELAPSED")
	for _, r := range records {
		t.Row(r.RunID, r.Pipeline, r.Status.HumanReadable(),
			r.StartedAt.Local().Format("2006-01-02 15:04:05"), report.Clock(r.Elapsed))
	}
	fmt.Println(t.Render())
	return nil
}

// HistoryShowCmd implements 'history show'.
type HistoryShowCmd struct {
	RunID  string `arg:"" name:"run-id" help:"Run identifier as printed by 'history list'"`
	Format string `short:"f" enum:"text,markdown,json" default:"text" help:"Output format (text, markdown, json)"`
}

func (h *HistoryShowCmd) Run(root *CLI) error {
	store, err := openHistory(root)
	if err != nil {
		return err
	}
	defer store.Close()

	summary, err := store.Get(context.Background(), h.RunID)
	if err != nil {
		return err
	}
	switch h.Format {
	case "markdown":
		fmt.Print(report.Markdown(summary))
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	default:
		fmt.Print(report.Text(summary))
	}
	return nil
}

func openHistory(root *CLI) (*history.SQLiteStore, error) {
	cfg, err := root.loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.HistoryDB == "" {
		return nil, fmt.Errorf("history is disabled: history_db is empty in %s", root.Config)
	}
	return history.NewSQLiteStore(cfg.HistoryDB)
}
