// Package local implements a BuildAdapter that runs jobs as local processes.
// Each process writes its combined output to a log file, and the file's URI
// is the job's link.
package local

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/shlex"

	"github.com/waabox/pipedeck/internal/clock"
	"github.com/waabox/pipedeck/internal/domain"
)

// ProviderName is the job reference prefix handled by this adapter.
const ProviderName = "local"

// Reserved job parameters; every other parameter is exported to the process environment.
const (
	ParamPartialExit = "partial-exit"
	ParamDir         = "dir"
)

// ErrUnknownJob is returned for handles this adapter did not start.
var ErrUnknownJob = errors.New("unknown local job")

// Options configure an Adapter.
type Options struct {
	// LogDir receives one log file per job. Defaults to the system temp dir.
	LogDir string
	// Shell, when set, runs the target through "<shell> -c <target>" instead
	// of splitting it into argv.
	Shell string
	Clock clock.Clock
}

type process struct {
	cmd         *exec.Cmd
	logPath     string
	partialExit int
	hasPartial  bool

	done     chan struct{}
	exitCode int
	waitErr  error
	finished time.Time
}

// Adapter is safe for concurrent use.
type Adapter struct {
	opts Options

	mu    sync.Mutex
	seq   int
	procs map[string]*process
}

// Ensure Adapter implements domain.BuildAdapter.
var _ domain.BuildAdapter = (*Adapter)(nil)

// NewAdapter creates a local process adapter.
func NewAdapter(opts Options) *Adapter {
	if opts.LogDir == "" {
		opts.LogDir = filepath.Join(os.TempDir(), "pipedeck")
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	return &Adapter{opts: opts, procs: make(map[string]*process)}
}

// Submit starts the job's command without waiting for it.
func (a *Adapter) Submit(_ context.Context, tmpl domain.JobTemplate) (domain.JobHandle, error) {
	argv, err := a.argv(tmpl.Target)
	if err != nil {
		return domain.JobHandle{}, err
	}

	p := &process{done: make(chan struct{})}
	if v, ok := tmpl.Params[ParamPartialExit]; ok {
		code, err := strconv.Atoi(v)
		if err != nil || code <= 0 {
			return domain.JobHandle{}, fmt.Errorf("param %s: invalid exit code %q", ParamPartialExit, v)
		}
		p.partialExit, p.hasPartial = code, true
	}

	logFile, err := a.createLog(tmpl.Name)
	if err != nil {
		return domain.JobHandle{}, err
	}
	p.logPath = logFile.Name()

	// The process is not tied to the submit context: it must outlive the call
	// and is only stopped through Cancel.
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Dir = tmpl.Param(ParamDir, "")
	cmd.Env = append(os.Environ(), environment(tmpl)...)
	p.cmd = cmd

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return domain.JobHandle{}, fmt.Errorf("starting %q: %w", argv[0], err)
	}
	started := a.opts.Clock.Now()

	go func() {
		err := cmd.Wait()
		logFile.Close()
		a.mu.Lock()
		defer a.mu.Unlock()
		p.finished = a.opts.Clock.Now()
		p.exitCode = cmd.ProcessState.ExitCode()
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			p.waitErr = err
		}
		close(p.done)
	}()

	a.mu.Lock()
	a.seq++
	id := fmt.Sprintf("local-%d", a.seq)
	a.procs[id] = p
	a.mu.Unlock()

	return domain.JobHandle{
		Name:        tmpl.Name,
		Provider:    tmpl.Provider,
		RemoteID:    id,
		Link:        fileURI(p.logPath),
		SubmittedAt: started,
		StartedAt:   started,
	}, nil
}

// Poll reports the exit status once the process has finished.
func (a *Adapter) Poll(_ context.Context, h domain.JobHandle) (domain.JobUpdate, error) {
	p, err := a.lookup(h.RemoteID)
	if err != nil {
		return domain.JobUpdate{}, err
	}
	select {
	case <-p.done:
	default:
		return domain.JobUpdate{}, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if p.waitErr != nil {
		return domain.JobUpdate{}, fmt.Errorf("waiting for process: %w", p.waitErr)
	}
	u := domain.JobUpdate{CompletedAt: p.finished}
	switch {
	case p.exitCode == 0:
		u.Status = domain.StatusSucceeded
	case p.hasPartial && p.exitCode == p.partialExit:
		u.Status = domain.StatusPartiallySucceeded
	default:
		u.Status = domain.StatusFailed
	}
	return u, nil
}

// Cancel kills the process. Cancelling a finished process is a no-op.
func (a *Adapter) Cancel(_ context.Context, h domain.JobHandle) error {
	p, err := a.lookup(h.RemoteID)
	if err != nil {
		return err
	}
	select {
	case <-p.done:
		return nil
	default:
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("killing process %d: %w", p.cmd.Process.Pid, err)
	}
	return nil
}

// LogPath returns the log file of a job started by this adapter.
func (a *Adapter) LogPath(remoteID string) (string, error) {
	p, err := a.lookup(remoteID)
	if err != nil {
		return "", err
	}
	return p.logPath, nil
}

func (a *Adapter) lookup(remoteID string) (*process, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.procs[remoteID]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownJob, remoteID)
	}
	return p, nil
}

func (a *Adapter) argv(target string) ([]string, error) {
	if strings.TrimSpace(target) == "" {
		return nil, errors.New("empty command")
	}
	if a.opts.Shell != "" {
		shell, err := shlex.Split(a.opts.Shell)
		if err != nil || len(shell) == 0 {
			return nil, fmt.Errorf("invalid shell %q", a.opts.Shell)
		}
		return append(shell, "-c", target), nil
	}
	argv, err := shlex.Split(target)
	if err != nil {
		return nil, fmt.Errorf("parsing command %q: %w", target, err)
	}
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}
	return argv, nil
}

// createLog creates <LogDir>/<job>_<timestamp>.log, adding a counter when
// the name is already taken.
func (a *Adapter) createLog(job string) (*os.File, error) {
	if err := os.MkdirAll(a.opts.LogDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log dir: %w", err)
	}
	base := fmt.Sprintf("%s_%s", sanitize(job), a.opts.Clock.Now().Format("20060102_150405"))
	for i := 0; ; i++ {
		name := base + ".log"
		if i > 0 {
			name = fmt.Sprintf("%s_%d.log", base, i)
		}
		f, err := os.OpenFile(filepath.Join(a.opts.LogDir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("creating log file: %w", err)
		}
		return f, nil
	}
}

func environment(tmpl domain.JobTemplate) []string {
	var env []string
	for _, k := range tmpl.ParamKeys() {
		if k == ParamPartialExit || k == ParamDir {
			continue
		}
		env = append(env, k+"="+tmpl.Params[k])
	}
	return env
}

// sanitize keeps job names safe for file names.
func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "job"
	}
	return b.String()
}

func fileURI(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}
