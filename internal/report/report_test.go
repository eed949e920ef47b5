package report_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/waabox/pipedeck/internal/clock"
	"github.com/waabox/pipedeck/internal/domain"
	"github.com/waabox/pipedeck/internal/engine"
	"github.com/waabox/pipedeck/internal/provider/memory"
	"github.com/waabox/pipedeck/internal/report"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func runPipeline(t *testing.T, stages ...domain.Stage) *engine.PipelineRun {
	t.Helper()
	clk := clock.NewManual(t0)
	e := engine.New(memory.New(clk), engine.Params{SpinInterval: time.Second}, engine.WithClock(clk))
	return e.Run(context.Background(), domain.PipelineDefinition{Name: "release", Stages: stages})
}

func mockJob(name string, params map[string]string) domain.JobTemplate {
	return domain.JobTemplate{Name: name, Provider: memory.ProviderName, Target: name, Params: params}
}

func TestSummarize(t *testing.T) {
	run := runPipeline(t, domain.Stage{
		Name: "build",
		Jobs: []domain.JobTemplate{
			mockJob("api", nil),
			mockJob("web", map[string]string{"result": "failed"}),
		},
	})

	s := report.Summarize(run, "abc123")

	if s.RunID != run.ID() || s.Pipeline != "release" || s.SourcesVersion != "abc123" {
		t.Errorf("unexpected header: %+v", s)
	}
	if s.Status != domain.StatusPartiallySucceeded || s.State != "completed" {
		t.Errorf("unexpected outcome: %s %s", s.State, s.Status)
	}
	if s.Elapsed != 2*time.Second {
		t.Errorf("expected 2s elapsed, got %s", s.Elapsed)
	}
	if len(s.Jobs) != 2 || s.Jobs[0].Name != "api" || s.Jobs[1].Name != "web" {
		t.Fatalf("unexpected jobs: %+v", s.Jobs)
	}
	if s.Jobs[0].WaitTime != time.Second || s.Jobs[0].RunTime != time.Second {
		t.Errorf("unexpected times: %+v", s.Jobs[0])
	}
	if len(s.Stages) != 1 || s.Stages[0].Status != domain.StatusPartiallySucceeded {
		t.Errorf("unexpected stages: %+v", s.Stages)
	}
	if s.Count(domain.StatusFailed) != 1 || s.Count(domain.StatusSucceeded) != 1 {
		t.Errorf("unexpected counts")
	}
}

func TestText(t *testing.T) {
	run := runPipeline(t, domain.Stage{
		Name: "build",
		Jobs: []domain.JobTemplate{
			mockJob("api", nil),
			mockJob("web", map[string]string{"result": "failed"}),
		},
	})

	got := report.Text(report.Summarize(run, "abc123"))
	want := "Sources Version: abc123\n" +
		"Pipeline: release\n" +
		"\n" +
		"api <memory://mem-1>  W 00:00:01  R 00:00:01  SUCCEEDED\n" +
		"web <memory://mem-2>  W 00:00:01  R 00:00:01  FAILED\n" +
		strings.Repeat("=", 48) + "\n" +
		"PIPELINE PARTIALLY SUCCEEDED\n"
	if got != want {
		t.Errorf("unexpected summary:\n%s\nwant:\n%s", got, want)
	}
}

func TestText_ErrorsAndMissingVersion(t *testing.T) {
	s := report.Summary{
		Pipeline: "release",
		Status:   domain.StatusFailed,
		Error:    "deadline exceeded",
		Jobs: []report.JobSummary{
			{Name: "slow", Status: domain.StatusFailed, Error: "deadline exceeded"},
		},
	}
	got := report.Text(s)

	for _, want := range []string{
		"Sources Version: -\n",
		"slow  W 00:00:00  R 00:00:00  FAILED\n    deadline exceeded\n",
		"Error: deadline exceeded\nPIPELINE FAILED\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in:\n%s", want, got)
		}
	}
}

func TestText_ZeroStages(t *testing.T) {
	got := report.Text(report.Summarize(runPipeline(t), ""))
	if !strings.HasSuffix(got, "\n\n"+strings.Repeat("=", 48)+"\nPIPELINE SUCCEEDED\n") {
		t.Errorf("unexpected summary:\n%s", got)
	}
}

func TestMarkdown(t *testing.T) {
	s := report.Summary{
		RunID:    "run-1",
		Pipeline: "release",
		Status:   domain.StatusSucceeded,
		Elapsed:  65 * time.Second,
		Jobs: []report.JobSummary{
			{Name: "api|ci", Provider: "github", Link: "https://example.com/1", WaitTime: time.Second, RunTime: time.Minute, Status: domain.StatusSucceeded},
		},
	}
	got := report.Markdown(s)

	for _, want := range []string{
		"### Pipeline `release`: SUCCEEDED",
		"Elapsed: 00:01:05",
		"| Job | Provider | Wait | Run | Status |",
		`| [api\|ci](https://example.com/1) | github | 00:00:01 | 00:01:00 | SUCCEEDED |`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in:\n%s", want, got)
		}
	}
}

func TestMarkdown_NoJobs(t *testing.T) {
	got := report.Markdown(report.Summary{Pipeline: "empty", Status: domain.StatusSucceeded})
	if !strings.Contains(got, "_No jobs were triggered._") {
		t.Errorf("unexpected markdown:\n%s", got)
	}
}

func TestClock(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00:00"},
		{1500 * time.Millisecond, "00:00:01"},
		{61 * time.Minute, "01:01:00"},
		{25 * time.Hour, "25:00:00"},
		{-time.Second, "00:00:00"},
	}
	for _, tt := range tests {
		if got := report.Clock(tt.in); got != tt.want {
			t.Errorf("Clock(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
