package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/waabox/pipedeck/internal/clock"
	"github.com/waabox/pipedeck/internal/domain"
)

// ProviderName is the job reference prefix handled by this adapter.
const ProviderName = "github"

const (
	defaultBaseURL = "https://api.github.com"
	defaultRef     = "main"
	// dispatchSkew tolerates clock drift between this host and GitHub when
	// matching a dispatched run by its creation time.
	dispatchSkew = 10 * time.Second
	runsPageSize = 20
)

// Adapter implements domain.BuildAdapter for GitHub Actions workflow_dispatch.
//
// A job target is "owner/repo/<workflow-file>" or a bare "<workflow-file>"
// for the current repository. The dispatch API does not return the run it
// creates, so the run is resolved from the workflow's runs list, on submit
// if it already exists and on later polls otherwise.
type Adapter struct {
	baseURL string
	repo    domain.Repository
	clock   clock.Clock
	client  *http.Client

	mu      sync.Mutex
	token   string
	pending map[string]*dispatch // by job name, until the run is resolved
	claimed map[int64]bool
}

// Ensure Adapter implements domain.BuildAdapter.
var _ domain.BuildAdapter = (*Adapter)(nil)

type dispatch struct {
	owner, name string
	workflow    string
	ref         string
	since       time.Time
}

// NewAdapter creates a GitHub Actions adapter.
// baseURL is used for testing; pass empty string to use the real GitHub API.
// repo is the current repository, used for bare workflow targets; it may be zero.
func NewAdapter(token string, baseURL string, repo domain.Repository, c clock.Clock) *Adapter {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if c == nil {
		c = clock.Real()
	}
	return &Adapter{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		repo:    repo,
		clock:   c,
		client:  &http.Client{Timeout: 15 * time.Second},
		pending: make(map[string]*dispatch),
		claimed: make(map[int64]bool),
	}
}

// SetToken replaces the API token, e.g. after a refresh.
func (a *Adapter) SetToken(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = token
}

// Submit dispatches the workflow and tries to resolve the run it started.
func (a *Adapter) Submit(ctx context.Context, tmpl domain.JobTemplate) (domain.JobHandle, error) {
	d, err := a.parseTarget(tmpl.Target)
	if err != nil {
		return domain.JobHandle{}, err
	}
	d.ref = tmpl.Ref
	if d.ref == "" {
		d.ref = defaultRef
	}

	body := map[string]interface{}{"ref": d.ref}
	if len(tmpl.Params) > 0 {
		body["inputs"] = tmpl.Params
	}
	d.since = a.clock.Now().Add(-dispatchSkew)
	dispatchURL := fmt.Sprintf("%s/repos/%s/%s/actions/workflows/%s/dispatches",
		a.baseURL, d.owner, d.name, url.PathEscape(d.workflow))
	if err := a.post(ctx, dispatchURL, body); err != nil {
		return domain.JobHandle{}, err
	}

	h := domain.JobHandle{
		Name:        tmpl.Name,
		Provider:    tmpl.Provider,
		SubmittedAt: a.clock.Now(),
	}
	a.mu.Lock()
	a.pending[tmpl.Name] = d
	a.mu.Unlock()

	run, err := a.resolve(ctx, tmpl.Name)
	if err != nil || run == nil {
		// The run shows up in the list asynchronously; Poll retries.
		return h, nil
	}
	a.mu.Lock()
	delete(a.pending, tmpl.Name)
	a.mu.Unlock()
	h.RemoteID = remoteID(d.owner, d.name, run.ID)
	h.Link = run.HTMLURL
	return h, nil
}

// Poll reads the workflow run, resolving it first when Submit could not.
func (a *Adapter) Poll(ctx context.Context, h domain.JobHandle) (domain.JobUpdate, error) {
	if h.RemoteID == "" {
		run, err := a.resolve(ctx, h.Name)
		if err != nil {
			return domain.JobUpdate{}, err
		}
		if run == nil {
			return domain.JobUpdate{}, nil
		}
		a.mu.Lock()
		d := a.pending[h.Name]
		delete(a.pending, h.Name)
		a.mu.Unlock()
		u := run.toUpdate()
		u.RemoteID = remoteID(d.owner, d.name, run.ID)
		return u, nil
	}

	owner, name, id, err := parseRemoteID(h.RemoteID)
	if err != nil {
		return domain.JobUpdate{}, err
	}
	var run workflowRun
	runURL := fmt.Sprintf("%s/repos/%s/%s/actions/runs/%d", a.baseURL, owner, name, id)
	if err := a.get(ctx, runURL, &run); err != nil {
		return domain.JobUpdate{}, err
	}
	return run.toUpdate(), nil
}

// Cancel cancels the workflow run. A run that was never resolved cannot be cancelled.
func (a *Adapter) Cancel(ctx context.Context, h domain.JobHandle) error {
	remote := h.RemoteID
	if remote == "" {
		run, err := a.resolve(ctx, h.Name)
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("workflow run for job %s not found yet", h.Name)
		}
		a.mu.Lock()
		d := a.pending[h.Name]
		a.mu.Unlock()
		remote = remoteID(d.owner, d.name, run.ID)
	}
	owner, name, id, err := parseRemoteID(remote)
	if err != nil {
		return err
	}
	cancelURL := fmt.Sprintf("%s/repos/%s/%s/actions/runs/%d/cancel", a.baseURL, owner, name, id)
	return a.post(ctx, cancelURL, nil)
}

// resolve finds the oldest unclaimed workflow_dispatch run created since the
// job was dispatched. It returns nil when no such run exists yet.
func (a *Adapter) resolve(ctx context.Context, job string) (*workflowRun, error) {
	a.mu.Lock()
	d, ok := a.pending[job]
	a.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("job %s was not dispatched by this adapter", job)
	}

	q := url.Values{}
	q.Set("event", "workflow_dispatch")
	q.Set("branch", d.ref)
	q.Set("per_page", strconv.Itoa(runsPageSize))
	runsURL := fmt.Sprintf("%s/repos/%s/%s/actions/workflows/%s/runs?%s",
		a.baseURL, d.owner, d.name, url.PathEscape(d.workflow), q.Encode())
	var result struct {
		WorkflowRuns []workflowRun `json:"workflow_runs"`
	}
	if err := a.get(ctx, runsURL, &result); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	var found *workflowRun
	for i := range result.WorkflowRuns {
		run := &result.WorkflowRuns[i]
		created := parseTime(run.CreatedAt)
		if a.claimed[run.ID] || created.Before(d.since) {
			continue
		}
		if found == nil || created.Before(parseTime(found.CreatedAt)) {
			found = run
		}
	}
	if found != nil {
		a.claimed[found.ID] = true
	}
	return found, nil
}

func (a *Adapter) parseTarget(target string) (*dispatch, error) {
	parts := strings.Split(strings.Trim(target, "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		if a.repo.Owner == "" || a.repo.Name == "" {
			return nil, fmt.Errorf("workflow %q needs owner/repo: no current repository detected", target)
		}
		return &dispatch{owner: a.repo.Owner, name: a.repo.Name, workflow: parts[0]}, nil
	case len(parts) >= 3:
		// "owner/repo/.github/workflows/ci.yml" is accepted as well.
		return &dispatch{owner: parts[0], name: parts[1], workflow: path.Base(strings.Join(parts[2:], "/"))}, nil
	default:
		return nil, fmt.Errorf("invalid github target %q: expected owner/repo/<workflow-file>", target)
	}
}

func (a *Adapter) authorize(req *http.Request) {
	a.mu.Lock()
	token := a.token
	a.mu.Unlock()
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
}

func (a *Adapter) get(ctx context.Context, url string, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	a.authorize(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// post sends a JSON body (or none) and discards the response body. The
// dispatch and cancel endpoints answer 204 and 202 respectively.
func (a *Adapter) post(ctx context.Context, url string, body interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	a.authorize(req)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("github API error: %s: %w", resp.Status, domain.ErrUnauthorized)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("github API error: %s", resp.Status)
	}
	return nil
}

// workflowRun is the raw GitHub API response shape for a workflow run.
type workflowRun struct {
	ID           int64  `json:"id"`
	HTMLURL      string `json:"html_url"`
	Status       string `json:"status"`
	Conclusion   string `json:"conclusion"`
	CreatedAt    string `json:"created_at"`
	RunStartedAt string `json:"run_started_at"`
	UpdatedAt    string `json:"updated_at"`
}

func (r workflowRun) toUpdate() domain.JobUpdate {
	u := domain.JobUpdate{Link: r.HTMLURL}
	if r.Status != "queued" && r.Status != "requested" && r.Status != "pending" && r.Status != "waiting" {
		u.StartedAt = parseTime(r.RunStartedAt)
	}
	u.Status = mapGitHubStatus(r.Status, r.Conclusion)
	if u.Status.IsTerminal() {
		u.CompletedAt = parseTime(r.UpdatedAt)
	}
	return u
}

func mapGitHubStatus(status, conclusion string) domain.StepStatus {
	if status != "completed" {
		return domain.StatusNone
	}
	switch conclusion {
	case "success", "neutral", "skipped":
		return domain.StatusSucceeded
	default:
		// failure, timed_out, cancelled, startup_failure, action_required, stale
		return domain.StatusFailed
	}
}

func remoteID(owner, name string, id int64) string {
	return fmt.Sprintf("%s/%s#%d", owner, name, id)
}

func parseRemoteID(s string) (owner, name string, id int64, err error) {
	repo, num, ok := strings.Cut(s, "#")
	if ok {
		owner, name, ok = strings.Cut(repo, "/")
	}
	if ok {
		id, err = strconv.ParseInt(num, 10, 64)
	}
	if !ok || err != nil || owner == "" || name == "" {
		return "", "", 0, fmt.Errorf("invalid github run id %q", s)
	}
	return owner, name, id, nil
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}
