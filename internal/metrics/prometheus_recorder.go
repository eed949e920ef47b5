package metrics

import (
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/waabox/pipedeck/internal/domain"
)

const namespace = "pipedeck"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	reg           *prom.Registry
	runDuration   *prom.HistogramVec
	runOutcomes   *prom.CounterVec
	lastRun       *prom.GaugeVec
	stageResults  *prom.CounterVec
	jobWait       *prom.HistogramVec
	jobRun        *prom.HistogramVec
	jobResults    *prom.CounterVec
	adapterErrors *prom.CounterVec
}

// Ensure PrometheusRecorder implements Recorder.
var _ Recorder = (*PrometheusRecorder)(nil)

// jobBuckets cover CI jobs from seconds up to a few hours.
var jobBuckets = []float64{5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600, 7200, 14400}

// NewPrometheusRecorder constructs the metrics and registers them on reg,
// or on a fresh registry when reg is nil.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		reg: reg,
		runDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of pipeline runs",
			Buckets:   jobBuckets,
		}, []string{"pipeline"}),
		runOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "run_outcomes_total",
			Help:      "Pipeline runs by final status",
		}, []string{"pipeline", "status"}),
		lastRun: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the pipeline last finished",
		}, []string{"pipeline"}),
		stageResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage outcomes by status",
		}, []string{"stage", "status"}),
		jobWait: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "job_wait_seconds",
			Help:      "Time jobs spent queued before starting",
			Buckets:   jobBuckets,
		}, []string{"provider"}),
		jobRun: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "job_run_seconds",
			Help:      "Time jobs spent running",
			Buckets:   jobBuckets,
		}, []string{"provider"}),
		jobResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "job_results_total",
			Help:      "Job outcomes by provider and status",
		}, []string{"provider", "status"}),
		adapterErrors: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "adapter_errors_total",
			Help:      "Build adapter failures by operation",
		}, []string{"op"}),
	}
	reg.MustRegister(pr.runDuration, pr.runOutcomes, pr.lastRun, pr.stageResults,
		pr.jobWait, pr.jobRun, pr.jobResults, pr.adapterErrors)
	return pr
}

// Registry returns the registry the metrics are registered on.
func (p *PrometheusRecorder) Registry() *prom.Registry { return p.reg }

func (p *PrometheusRecorder) ObserveRun(pipeline string, status domain.StepStatus, d time.Duration) {
	if p == nil {
		return
	}
	p.runDuration.WithLabelValues(pipeline).Observe(d.Seconds())
	p.runOutcomes.WithLabelValues(pipeline, status.String()).Inc()
	p.lastRun.WithLabelValues(pipeline).SetToCurrentTime()
}

func (p *PrometheusRecorder) ObserveStage(stage string, status domain.StepStatus) {
	if p == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, status.String()).Inc()
}

func (p *PrometheusRecorder) ObserveJob(provider string, status domain.StepStatus, wait, run time.Duration) {
	if p == nil {
		return
	}
	p.jobResults.WithLabelValues(provider, status.String()).Inc()
	if wait > 0 {
		p.jobWait.WithLabelValues(provider).Observe(wait.Seconds())
	}
	if run > 0 {
		p.jobRun.WithLabelValues(provider).Observe(run.Seconds())
	}
}

func (p *PrometheusRecorder) IncAdapterError(op string) {
	if p == nil {
		return
	}
	p.adapterErrors.WithLabelValues(op).Inc()
}

// WriteTextfile writes the registry in the text exposition format to path,
// atomically, for the node_exporter textfile collector.
func (p *PrometheusRecorder) WriteTextfile(path string) error {
	if err := prom.WriteToTextfile(path, p.reg); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
