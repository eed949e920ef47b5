package github_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/waabox/pipedeck/internal/clock"
	"github.com/waabox/pipedeck/internal/domain"
	githubprovider "github.com/waabox/pipedeck/internal/provider/github"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeActions is a minimal GitHub Actions API for one repository.
type fakeActions struct {
	mu         sync.Mutex
	dispatched []map[string]interface{}
	runs       []map[string]interface{}
	run        map[string]interface{}
	cancelled  []string
	auth       string
}

func (f *fakeActions) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.auth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/repos/acme/api/actions/workflows/ci.yml/dispatches":
			var body map[string]interface{}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decoding dispatch body: %v", err)
			}
			f.dispatched = append(f.dispatched, body)
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodGet && r.URL.Path == "/repos/acme/api/actions/workflows/ci.yml/runs":
			if r.URL.Query().Get("event") != "workflow_dispatch" {
				t.Errorf("expected workflow_dispatch filter, got %q", r.URL.RawQuery)
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"workflow_runs": f.runs})
		case r.Method == http.MethodGet && r.URL.Path == "/repos/acme/api/actions/runs/1001":
			json.NewEncoder(w).Encode(f.run)
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/cancel"):
			f.cancelled = append(f.cancelled, r.URL.Path)
			w.WriteHeader(http.StatusAccepted)
		default:
			http.NotFound(w, r)
		}
	})
}

func workflowRun(id int64, created time.Time) map[string]interface{} {
	return map[string]interface{}{
		"id":         float64(id),
		"html_url":   "https://github.com/acme/api/actions/runs/" + strconv.FormatInt(id, 10),
		"status":     "queued",
		"created_at": created.Format(time.RFC3339),
	}
}

func newAdapter(srv *httptest.Server, repo domain.Repository) *githubprovider.Adapter {
	return githubprovider.NewAdapter("test-token", srv.URL, repo, clock.NewManual(t0))
}

func ciJob() domain.JobTemplate {
	return domain.JobTemplate{
		Name:     "api-ci",
		Provider: githubprovider.ProviderName,
		Target:   "acme/api/ci.yml",
		Ref:      "release",
		Params:   map[string]string{"target": "linux"},
	}
}

func TestSubmit_DispatchesAndResolvesRun(t *testing.T) {
	fake := &fakeActions{runs: []map[string]interface{}{
		workflowRun(999, t0.Add(-time.Hour)),
		workflowRun(1001, t0),
	}}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	h, err := newAdapter(srv, domain.Repository{}).Submit(context.Background(), ciJob())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.dispatched) != 1 {
		t.Fatalf("expected one dispatch, got %d", len(fake.dispatched))
	}
	body := fake.dispatched[0]
	if body["ref"] != "release" {
		t.Errorf("expected ref 'release', got %v", body["ref"])
	}
	inputs, _ := body["inputs"].(map[string]interface{})
	if inputs["target"] != "linux" {
		t.Errorf("expected inputs to carry params, got %v", body["inputs"])
	}
	if fake.auth != "Bearer test-token" {
		t.Errorf("unexpected authorization header %q", fake.auth)
	}
	if h.RemoteID != "acme/api#1001" {
		t.Errorf("expected the run created after dispatch, got %q", h.RemoteID)
	}
	if h.Link != "https://github.com/acme/api/actions/runs/1001" {
		t.Errorf("unexpected link %q", h.Link)
	}
}

func TestSubmit_DefaultsRefToMain(t *testing.T) {
	fake := &fakeActions{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	tmpl := ciJob()
	tmpl.Ref = ""
	tmpl.Params = nil
	if _, err := newAdapter(srv, domain.Repository{}).Submit(context.Background(), tmpl); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.dispatched[0]["ref"] != "main" {
		t.Errorf("expected ref 'main', got %v", fake.dispatched[0]["ref"])
	}
	if _, ok := fake.dispatched[0]["inputs"]; ok {
		t.Error("expected no inputs without params")
	}
}

func TestSubmit_BareWorkflowUsesCurrentRepository(t *testing.T) {
	fake := &fakeActions{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	tmpl := ciJob()
	tmpl.Target = "ci.yml"
	if _, err := newAdapter(srv, domain.Repository{Owner: "acme", Name: "api"}).Submit(context.Background(), tmpl); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.dispatched) != 1 {
		t.Errorf("expected dispatch against current repository")
	}

	if _, err := newAdapter(srv, domain.Repository{}).Submit(context.Background(), tmpl); err == nil {
		t.Error("expected error without a current repository")
	}
}

func TestSubmit_InvalidTarget(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	tmpl := ciJob()
	tmpl.Target = "acme/api"
	if _, err := newAdapter(srv, domain.Repository{}).Submit(context.Background(), tmpl); err == nil {
		t.Error("expected error for owner/repo without workflow")
	}
}

func TestSubmit_UnauthorizedIsDetectable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newAdapter(srv, domain.Repository{}).Submit(context.Background(), ciJob())
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestPoll_ResolvesLateRun(t *testing.T) {
	fake := &fakeActions{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()
	adapter := newAdapter(srv, domain.Repository{})
	ctx := context.Background()

	h, err := adapter.Submit(ctx, ciJob())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.RemoteID != "" {
		t.Fatalf("expected unresolved run, got %q", h.RemoteID)
	}

	u, err := adapter.Poll(ctx, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.RemoteID != "" || u.Status != domain.StatusNone {
		t.Errorf("expected nothing resolved yet, got %+v", u)
	}

	fake.mu.Lock()
	fake.runs = []map[string]interface{}{workflowRun(1001, t0.Add(2*time.Second))}
	fake.mu.Unlock()

	u, err = adapter.Poll(ctx, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.RemoteID != "acme/api#1001" {
		t.Errorf("expected resolved run, got %+v", u)
	}
}

func TestPoll_MapsRunStatus(t *testing.T) {
	started := t0.Add(5 * time.Second)
	updated := t0.Add(time.Minute)
	tests := []struct {
		status, conclusion string
		want               domain.StepStatus
		wantStarted        bool
	}{
		{"queued", "", domain.StatusNone, false},
		{"in_progress", "", domain.StatusNone, true},
		{"completed", "success", domain.StatusSucceeded, true},
		{"completed", "skipped", domain.StatusSucceeded, true},
		{"completed", "failure", domain.StatusFailed, true},
		{"completed", "cancelled", domain.StatusFailed, true},
		{"completed", "timed_out", domain.StatusFailed, true},
	}
	for _, tt := range tests {
		t.Run(tt.status+"/"+tt.conclusion, func(t *testing.T) {
			fake := &fakeActions{run: map[string]interface{}{
				"id":             float64(1001),
				"html_url":       "https://github.com/acme/api/actions/runs/1001",
				"status":         tt.status,
				"conclusion":     tt.conclusion,
				"run_started_at": started.Format(time.RFC3339),
				"updated_at":     updated.Format(time.RFC3339),
			}}
			srv := httptest.NewServer(fake.handler(t))
			defer srv.Close()

			u, err := newAdapter(srv, domain.Repository{}).Poll(context.Background(), domain.JobHandle{
				Name: "api-ci", RemoteID: "acme/api#1001",
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if u.Status != tt.want {
				t.Errorf("expected %s, got %s", tt.want, u.Status)
			}
			if got := !u.StartedAt.IsZero(); got != tt.wantStarted {
				t.Errorf("expected started=%v, got %v", tt.wantStarted, got)
			}
			if u.Status.IsTerminal() && !u.CompletedAt.Equal(updated) {
				t.Errorf("expected completion at %s, got %s", updated, u.CompletedAt)
			}
		})
	}
}

func TestPoll_InvalidRemoteID(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	if _, err := newAdapter(srv, domain.Repository{}).Poll(context.Background(), domain.JobHandle{RemoteID: "1001"}); err == nil {
		t.Error("expected error for malformed remote id")
	}
}

func TestCancel_PostsToRun(t *testing.T) {
	fake := &fakeActions{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	err := newAdapter(srv, domain.Repository{}).Cancel(context.Background(), domain.JobHandle{
		Name: "api-ci", RemoteID: "acme/api#1001",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.cancelled) != 1 || fake.cancelled[0] != "/repos/acme/api/actions/runs/1001/cancel" {
		t.Errorf("unexpected cancel calls: %v", fake.cancelled)
	}
}

func TestCancel_UnresolvedRunFails(t *testing.T) {
	fake := &fakeActions{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()
	adapter := newAdapter(srv, domain.Repository{})

	h, err := adapter.Submit(context.Background(), ciJob())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := adapter.Cancel(context.Background(), h); err == nil {
		t.Error("expected error cancelling a run that never appeared")
	}
}

func TestSetToken(t *testing.T) {
	fake := &fakeActions{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()
	adapter := newAdapter(srv, domain.Repository{})

	adapter.SetToken("fresh")
	adapter.Cancel(context.Background(), domain.JobHandle{RemoteID: "acme/api#1001"})
	if fake.auth != "Bearer fresh" {
		t.Errorf("expected refreshed token, got %q", fake.auth)
	}
}
