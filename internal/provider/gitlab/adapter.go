package gitlab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/waabox/pipedeck/internal/domain"
)

// ProviderName is the job reference prefix handled by this adapter.
const ProviderName = "gitlab"

const (
	defaultBaseURL = "https://gitlab.com"
	defaultRef     = "main"
	currentRepo    = "."
)

// Adapter implements domain.BuildAdapter for GitLab CI pipeline triggers.
// A job target is a project path ("group/project") or "." for the current repository.
type Adapter struct {
	baseURL string
	repo    domain.Repository
	client  *http.Client

	mu    sync.Mutex
	token string
}

// Ensure Adapter fully implements domain.BuildAdapter.
var _ domain.BuildAdapter = (*Adapter)(nil)

// NewAdapter creates a GitLab CI adapter.
// baseURL can be a self-hosted GitLab instance URL; pass empty string for gitlab.com.
// repo is the current repository, used for "." targets; it may be zero.
func NewAdapter(token string, baseURL string, repo domain.Repository) *Adapter {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Adapter{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		repo:    repo,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// SetToken replaces the API token, e.g. after a refresh.
func (a *Adapter) SetToken(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = token
}

type variable struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Submit creates a new pipeline for the project at the job's ref.
// Job parameters become pipeline variables.
func (a *Adapter) Submit(ctx context.Context, tmpl domain.JobTemplate) (domain.JobHandle, error) {
	project, err := a.projectPath(tmpl.Target)
	if err != nil {
		return domain.JobHandle{}, err
	}
	ref := tmpl.Ref
	if ref == "" {
		ref = defaultRef
	}

	body := struct {
		Ref       string     `json:"ref"`
		Variables []variable `json:"variables,omitempty"`
	}{Ref: ref}
	for _, k := range tmpl.ParamKeys() {
		body.Variables = append(body.Variables, variable{Key: k, Value: tmpl.Params[k]})
	}

	apiURL := fmt.Sprintf("%s/api/v4/projects/%s/pipeline", a.baseURL, url.PathEscape(project))
	var p gitLabPipeline
	if err := a.post(ctx, apiURL, body, &p); err != nil {
		return domain.JobHandle{}, err
	}

	h := domain.JobHandle{
		Name:        tmpl.Name,
		Provider:    tmpl.Provider,
		RemoteID:    remoteID(project, p.ID),
		Link:        p.WebURL,
		SubmittedAt: parseTime(p.CreatedAt),
	}
	h.Apply(p.toUpdate(), h.SubmittedAt)
	return h, nil
}

// Poll reads the pipeline's current status.
func (a *Adapter) Poll(ctx context.Context, h domain.JobHandle) (domain.JobUpdate, error) {
	project, id, err := parseRemoteID(h.RemoteID)
	if err != nil {
		return domain.JobUpdate{}, err
	}
	apiURL := fmt.Sprintf("%s/api/v4/projects/%s/pipelines/%d", a.baseURL, url.PathEscape(project), id)
	var p gitLabPipeline
	if err := a.get(ctx, apiURL, &p); err != nil {
		return domain.JobUpdate{}, err
	}
	return p.toUpdate(), nil
}

// Cancel cancels a running pipeline.
func (a *Adapter) Cancel(ctx context.Context, h domain.JobHandle) error {
	project, id, err := parseRemoteID(h.RemoteID)
	if err != nil {
		return err
	}
	apiURL := fmt.Sprintf("%s/api/v4/projects/%s/pipelines/%d/cancel",
		a.baseURL, url.PathEscape(project), id)
	return a.post(ctx, apiURL, nil, nil)
}

func (a *Adapter) projectPath(target string) (string, error) {
	target = strings.Trim(target, "/")
	if target == currentRepo {
		if a.repo.Path() == "" {
			return "", fmt.Errorf("target %q: no current repository detected", currentRepo)
		}
		return a.repo.Path(), nil
	}
	if !strings.Contains(target, "/") {
		return "", fmt.Errorf("invalid gitlab target %q: expected group/project", target)
	}
	return target, nil
}

func (a *Adapter) newRequest(ctx context.Context, method, apiURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, apiURL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	a.mu.Lock()
	req.Header.Set("Authorization", "Bearer "+a.token)
	a.mu.Unlock()
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (a *Adapter) get(ctx context.Context, apiURL string, target interface{}) error {
	req, err := a.newRequest(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return err
	}
	return a.do(req, target)
}

// post sends a JSON body (or none). GitLab mutation endpoints answer 200 or
// 201 with the pipeline; target may be nil to discard it.
func (a *Adapter) post(ctx context.Context, apiURL string, body, target interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := a.newRequest(ctx, http.MethodPost, apiURL, reader)
	if err != nil {
		return err
	}
	return a.do(req, target)
}

func (a *Adapter) do(req *http.Request, target interface{}) error {
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("gitlab API error: %s: %w", resp.Status, domain.ErrUnauthorized)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gitlab API error: %s%s", resp.Status, apiMessage(resp.Body))
	}
	if target == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// apiMessage extracts GitLab's {"message": ...} error detail, if any.
func apiMessage(body io.Reader) string {
	var payload struct {
		Message interface{} `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(body, 64<<10)).Decode(&payload); err != nil || payload.Message == nil {
		return ""
	}
	switch m := payload.Message.(type) {
	case string:
		return ": " + m
	case map[string]interface{}:
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s %v", k, m[k]))
		}
		return ": " + strings.Join(parts, "; ")
	default:
		return fmt.Sprintf(": %v", m)
	}
}

type gitLabPipeline struct {
	ID             int64  `json:"id"`
	WebURL         string `json:"web_url"`
	Status         string `json:"status"`
	CreatedAt      string `json:"created_at"`
	StartedAt      string `json:"started_at"`
	FinishedAt     string `json:"finished_at"`
	DetailedStatus struct {
		Group string `json:"group"`
	} `json:"detailed_status"`
}

func (p gitLabPipeline) toUpdate() domain.JobUpdate {
	u := domain.JobUpdate{
		Link:      p.WebURL,
		StartedAt: parseTime(p.StartedAt),
		Status:    mapGitLabStatus(p.Status, p.DetailedStatus.Group),
	}
	if u.Status.IsTerminal() {
		u.CompletedAt = parseTime(p.FinishedAt)
	}
	return u
}

func mapGitLabStatus(status, detailed string) domain.StepStatus {
	switch status {
	case "success":
		if detailed == "success-with-warnings" {
			return domain.StatusPartiallySucceeded
		}
		return domain.StatusSucceeded
	case "skipped":
		return domain.StatusSucceeded
	case "failed", "canceled":
		return domain.StatusFailed
	default:
		// created, waiting_for_resource, preparing, pending, running, scheduled, manual
		return domain.StatusNone
	}
}

func remoteID(project string, id int64) string {
	return project + "#" + strconv.FormatInt(id, 10)
}

func parseRemoteID(s string) (string, int64, error) {
	i := strings.LastIndex(s, "#")
	if i <= 0 {
		return "", 0, fmt.Errorf("invalid gitlab pipeline id %q", s)
	}
	id, err := strconv.ParseInt(s[i+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid gitlab pipeline id %q", s)
	}
	return s[:i], id, nil
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}
