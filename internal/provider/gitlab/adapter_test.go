package gitlab_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/waabox/pipedeck/internal/domain"
	gitlabprovider "github.com/waabox/pipedeck/internal/provider/gitlab"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func pipelineJSON(status, detailed string) map[string]interface{} {
	return map[string]interface{}{
		"id":              float64(201),
		"web_url":         "https://gitlab.com/mygroup/myproject/-/pipelines/201",
		"status":          status,
		"created_at":      t0.Format(time.RFC3339),
		"started_at":      t0.Add(10 * time.Second).Format(time.RFC3339),
		"finished_at":     t0.Add(time.Minute).Format(time.RFC3339),
		"detailed_status": map[string]interface{}{"group": detailed},
	}
}

func TestSubmit_CreatesPipelineWithVariables(t *testing.T) {
	var body struct {
		Ref       string `json:"ref"`
		Variables []struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		} `json:"variables"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.RequestURI == "/api/v4/projects/mygroup%2Fmyproject/pipeline" {
			if r.Header.Get("Authorization") != "Bearer test-token" {
				t.Errorf("unexpected authorization %q", r.Header.Get("Authorization"))
			}
			json.NewDecoder(r.Body).Decode(&body)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			p := pipelineJSON("created", "created")
			delete(p, "started_at")
			json.NewEncoder(w).Encode(p)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	adapter := gitlabprovider.NewAdapter("test-token", srv.URL, domain.Repository{})
	h, err := adapter.Submit(context.Background(), domain.JobTemplate{
		Name:     "infra",
		Provider: "gitlab",
		Target:   "mygroup/myproject",
		Ref:      "release-1.2",
		Params:   map[string]string{"ENV": "prod", "DRY_RUN": "false"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.RemoteID != "mygroup/myproject#201" {
		t.Errorf("unexpected remote id %q", h.RemoteID)
	}
	if h.Link != "https://gitlab.com/mygroup/myproject/-/pipelines/201" {
		t.Errorf("unexpected link %q", h.Link)
	}
	if !h.SubmittedAt.Equal(t0) || h.HasStarted() || h.IsTerminal() {
		t.Errorf("unexpected handle state: %+v", h)
	}
	if body.Ref != "release-1.2" {
		t.Errorf("expected ref 'release-1.2', got %q", body.Ref)
	}
	if len(body.Variables) != 2 || body.Variables[0].Key != "DRY_RUN" || body.Variables[1].Value != "prod" {
		t.Errorf("unexpected variables: %+v", body.Variables)
	}
}

func TestSubmit_CurrentRepository(t *testing.T) {
	var uri string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uri = r.RequestURI
		json.NewEncoder(w).Encode(pipelineJSON("pending", "pending"))
	}))
	defer srv.Close()

	adapter := gitlabprovider.NewAdapter("t", srv.URL, domain.Repository{Owner: "team", Name: "svc"})
	if _, err := adapter.Submit(context.Background(), domain.JobTemplate{Name: "svc", Target: "."}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uri != "/api/v4/projects/team%2Fsvc/pipeline" {
		t.Errorf("unexpected request %q", uri)
	}

	bare := gitlabprovider.NewAdapter("t", srv.URL, domain.Repository{})
	if _, err := bare.Submit(context.Background(), domain.JobTemplate{Name: "svc", Target: "."}); err == nil {
		t.Error("expected error without a current repository")
	}
	if _, err := bare.Submit(context.Background(), domain.JobTemplate{Name: "svc", Target: "svc"}); err == nil {
		t.Error("expected error for a target without group")
	}
}

func TestSubmit_ReportsAPIMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":{"base":["Reference not found"]}}`))
	}))
	defer srv.Close()

	adapter := gitlabprovider.NewAdapter("t", srv.URL, domain.Repository{})
	_, err := adapter.Submit(context.Background(), domain.JobTemplate{Name: "x", Target: "g/p", Ref: "nope"})
	if err == nil || !strings.Contains(err.Error(), "Reference not found") {
		t.Errorf("expected API message in error, got %v", err)
	}
}

func TestPoll_MapsPipelineStatus(t *testing.T) {
	tests := []struct {
		status, detailed string
		want             domain.StepStatus
	}{
		{"running", "running", domain.StatusNone},
		{"pending", "pending", domain.StatusNone},
		{"manual", "manual", domain.StatusNone},
		{"success", "success", domain.StatusSucceeded},
		{"success", "success-with-warnings", domain.StatusPartiallySucceeded},
		{"skipped", "skipped", domain.StatusSucceeded},
		{"failed", "failed", domain.StatusFailed},
		{"canceled", "canceled", domain.StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.status+"/"+tt.detailed, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.RequestURI != "/api/v4/projects/mygroup%2Fmyproject/pipelines/201" {
					http.NotFound(w, r)
					return
				}
				json.NewEncoder(w).Encode(pipelineJSON(tt.status, tt.detailed))
			}))
			defer srv.Close()

			adapter := gitlabprovider.NewAdapter("t", srv.URL, domain.Repository{})
			u, err := adapter.Poll(context.Background(), domain.JobHandle{RemoteID: "mygroup/myproject#201"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if u.Status != tt.want {
				t.Errorf("expected %s, got %s", tt.want, u.Status)
			}
			if !u.StartedAt.Equal(t0.Add(10 * time.Second)) {
				t.Errorf("unexpected start %s", u.StartedAt)
			}
			if tt.want.IsTerminal() != !u.CompletedAt.IsZero() {
				t.Errorf("completion time must be set exactly when terminal, got %s", u.CompletedAt)
			}
		})
	}
}

func TestPoll_UnauthorizedIsDetectable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	adapter := gitlabprovider.NewAdapter("expired", srv.URL, domain.Repository{})
	_, err := adapter.Poll(context.Background(), domain.JobHandle{RemoteID: "g/p#1"})
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestPoll_InvalidRemoteID(t *testing.T) {
	adapter := gitlabprovider.NewAdapter("t", "http://127.0.0.1:0", domain.Repository{})
	for _, id := range []string{"", "201", "g/p#x", "#201"} {
		if _, err := adapter.Poll(context.Background(), domain.JobHandle{RemoteID: id}); err == nil {
			t.Errorf("expected error for remote id %q", id)
		}
	}
}

func TestCancel_PostsToCancelEndpoint(t *testing.T) {
	var method, uri, auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, uri, auth = r.Method, r.RequestURI, r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(pipelineJSON("canceled", "canceled"))
	}))
	defer srv.Close()

	adapter := gitlabprovider.NewAdapter("old", srv.URL, domain.Repository{})
	adapter.SetToken("new")
	if err := adapter.Cancel(context.Background(), domain.JobHandle{RemoteID: "mygroup/myproject#201"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if method != http.MethodPost || uri != "/api/v4/projects/mygroup%2Fmyproject/pipelines/201/cancel" {
		t.Errorf("unexpected request %s %s", method, uri)
	}
	if auth != "Bearer new" {
		t.Errorf("expected refreshed token, got %q", auth)
	}
}
