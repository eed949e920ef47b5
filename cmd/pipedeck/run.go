package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/waabox/pipedeck/internal/config"
	"github.com/waabox/pipedeck/internal/definition"
	"github.com/waabox/pipedeck/internal/domain"
	"github.com/waabox/pipedeck/internal/engine"
	"github.com/waabox/pipedeck/internal/git"
	"github.com/waabox/pipedeck/internal/history"
	"github.com/waabox/pipedeck/internal/logging"
	"github.com/waabox/pipedeck/internal/metrics"
	"github.com/waabox/pipedeck/internal/report"
	"github.com/waabox/pipedeck/internal/tui"
)

// RunCmd implements the 'run' command.
type RunCmd struct {
	Definition     string        `arg:"" type:"existingfile" help:"Pipeline definition (line grammar, or YAML for .yaml/.yml)"`
	Spin           time.Duration `help:"Poll interval; overrides spin_interval"`
	Timeout        string        `help:"Run deadline such as 30m, 0 for none; overrides timeout"`
	TUI            bool          `name:"tui" help:"Show the live terminal view while the pipeline runs"`
	SummaryFile    string        `name:"summary-file" help:"Append a Markdown summary to this file (e.g. $GITHUB_STEP_SUMMARY)" env:"GITHUB_STEP_SUMMARY"`
	MetricsFile    string        `name:"metrics-file" help:"Write Prometheus metrics in textfile format to this file"`
	SourcesVersion string        `name:"sources-version" help:"Revision shown in the summary; defaults to git HEAD"`
	NoHistory      bool          `name:"no-history" help:"Do not record the run in the history database"`
}

func (r *RunCmd) Run(root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	if err := r.applyOverrides(&cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, closeLog, err := root.logger(cfg, r.TUI)
	if err != nil {
		return err
	}
	defer closeLog()

	def, err := definition.ParseFile(r.Definition)
	if err != nil {
		return err
	}

	cwd, _ := os.Getwd()
	repo, err := git.DetectRepository(cwd)
	if err != nil {
		log.WithError(err).Debug("no current repository; jobs must name their repository")
	}
	sources := r.SourcesVersion
	if sources == "" {
		if sources, err = git.HeadRevision(cwd); err != nil {
			log.WithError(err).Debug("sources version unknown")
		}
	}

	registry, err := buildRegistry(cfg, repo, log)
	if err != nil {
		return err
	}
	if err := registry.Check(def); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recorder := metrics.NewPrometheusRecorder(nil)
	params := engine.Params{SpinInterval: cfg.SpinInterval.Duration, Timeout: cfg.Timeout.Duration}
	opts := []engine.Option{engine.WithLogger(log), engine.WithObserver(metrics.NewObserver(recorder))}

	var run *engine.PipelineRun
	if r.TUI {
		run, err = tui.Execute(ctx, sources, func(ctx context.Context, obs engine.Observer) *engine.PipelineRun {
			return engine.New(registry, params, append(opts, engine.WithObserver(obs))...).Run(ctx, def)
		})
		if err != nil {
			log.WithError(err).Warn("live view failed")
		}
	} else {
		run = engine.New(registry, params, opts...).Run(ctx, def)
	}

	summary := report.Summarize(run, sources)
	fmt.Print(report.Text(summary))
	r.publish(context.WithoutCancel(ctx), cfg, summary, recorder, log)
	return exitFor(summary.Status)
}

func (r *RunCmd) applyOverrides(cfg *config.Config) error {
	if r.Spin > 0 {
		cfg.SpinInterval = config.Duration{Duration: r.Spin}
	}
	if r.Timeout != "" {
		d, err := time.ParseDuration(r.Timeout)
		if err != nil {
			return fmt.Errorf("--timeout: %w", err)
		}
		cfg.Timeout = config.Duration{Duration: d}
	}
	if r.SummaryFile != "" {
		cfg.SummaryFile = r.SummaryFile
	}
	if r.MetricsFile != "" {
		cfg.MetricsFile = r.MetricsFile
	}
	return nil
}

// publish writes the summary file, the metrics textfile and the history
// record. Failures are logged; the pipeline outcome stays the exit status.
func (r *RunCmd) publish(ctx context.Context, cfg config.Config, summary report.Summary, recorder *metrics.PrometheusRecorder, log *logrus.Entry) {
	log = log.WithField(logging.FieldRunID, summary.RunID)
	if cfg.SummaryFile != "" {
		if err := appendFile(cfg.SummaryFile, report.Markdown(summary)); err != nil {
			log.WithError(err).Warn("writing summary file failed")
		}
	}
	if cfg.MetricsFile != "" {
		if err := recorder.WriteTextfile(cfg.MetricsFile); err != nil {
			log.WithError(err).Warn("writing metrics failed")
		}
	}
	if r.NoHistory || cfg.HistoryDB == "" {
		return
	}
	store, err := history.NewSQLiteStore(cfg.HistoryDB)
	if err != nil {
		log.WithError(err).Warn("opening history failed")
		return
	}
	defer store.Close()
	if err := store.Save(ctx, summary); err != nil {
		log.WithError(err).Warn("recording run failed")
	}
}

func appendFile(path, content string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// exitFor maps the pipeline status to the process exit status.
func exitFor(status domain.StepStatus) error {
	switch status {
	case domain.StatusSucceeded, domain.StatusNone:
		return nil
	case domain.StatusPartiallySucceeded:
		return exitCode(2)
	default:
		return exitCode(1)
	}
}
