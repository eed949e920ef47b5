package metrics

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/waabox/pipedeck/internal/clock"
	"github.com/waabox/pipedeck/internal/domain"
	"github.com/waabox/pipedeck/internal/engine"
	"github.com/waabox/pipedeck/internal/provider/memory"
)

// counter returns the value of the counter family name whose labels match want.
func counter(t *testing.T, reg *prom.Registry, name string, want map[string]string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, want) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelsMatch(m *dto.Metric, want map[string]string) bool {
	got := map[string]string{}
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveRun("nightly", domain.StatusFailed, 90*time.Second)
	pr.ObserveStage("build", domain.StatusSucceeded)
	pr.ObserveJob("github", domain.StatusSucceeded, 10*time.Second, time.Minute)
	pr.IncAdapterError("poll")
	pr.IncAdapterError("poll")

	if got := counter(t, reg, "pipedeck_run_outcomes_total", map[string]string{"pipeline": "nightly", "status": "failed"}); got != 1 {
		t.Errorf("expected one failed run, got %v", got)
	}
	if got := counter(t, reg, "pipedeck_adapter_errors_total", map[string]string{"op": "poll"}); got != 2 {
		t.Errorf("expected two poll errors, got %v", got)
	}
	if got := counter(t, reg, "pipedeck_job_results_total", map[string]string{"provider": "github", "status": "succeeded"}); got != 1 {
		t.Errorf("expected one github success, got %v", got)
	}
}

func TestPrometheusRecorder_NilReceiver(t *testing.T) {
	var pr *PrometheusRecorder
	pr.ObserveRun("p", domain.StatusSucceeded, time.Second)
	pr.ObserveStage("s", domain.StatusSucceeded)
	pr.ObserveJob("mock", domain.StatusSucceeded, 0, 0)
	pr.IncAdapterError("submit")
}

func TestObserver_RecordsFinishedRun(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	pr := NewPrometheusRecorder(nil)
	def := domain.PipelineDefinition{Name: "release", Stages: []domain.Stage{{
		Name: "build",
		Jobs: []domain.JobTemplate{
			{Name: "api", Provider: memory.ProviderName, Target: "api"},
			{Name: "web", Provider: memory.ProviderName, Target: "web", Params: map[string]string{"poll-error": "boom"}},
		},
	}}}

	eng := engine.New(memory.New(clk), engine.Params{SpinInterval: time.Second},
		engine.WithClock(clk), engine.WithObserver(NewObserver(pr)))
	run := eng.Run(context.Background(), def)
	if run.Status() != domain.StatusPartiallySucceeded {
		t.Fatalf("expected partial run, got %s", run.Status())
	}

	reg := pr.Registry()
	if got := counter(t, reg, "pipedeck_run_outcomes_total", map[string]string{"pipeline": "release", "status": "partially-succeeded"}); got != 1 {
		t.Errorf("expected one partial run, got %v", got)
	}
	if got := counter(t, reg, "pipedeck_job_results_total", map[string]string{"provider": "mock", "status": "failed"}); got != 1 {
		t.Errorf("expected one failed job, got %v", got)
	}
	if got := counter(t, reg, "pipedeck_job_results_total", map[string]string{"provider": "mock", "status": "succeeded"}); got != 1 {
		t.Errorf("expected one succeeded job, got %v", got)
	}
	if got := counter(t, reg, "pipedeck_stage_results_total", map[string]string{"stage": "build"}); got != 1 {
		t.Errorf("expected one stage result, got %v", got)
	}
	if got := counter(t, reg, "pipedeck_adapter_errors_total", map[string]string{"op": "poll"}); got != 1 {
		t.Errorf("expected one poll error, got %v", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	pr := NewPrometheusRecorder(nil)
	pr.ObserveRun("nightly", domain.StatusSucceeded, time.Minute)
	path := filepath.Join(t.TempDir(), "pipedeck.prom")

	if err := pr.WriteTextfile(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `pipedeck_run_outcomes_total{pipeline="nightly",status="succeeded"} 1`) {
		t.Errorf("unexpected textfile contents:\n%s", data)
	}
}
