package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/waabox/pipedeck/internal/config"
)

// clearEnv blanks every variable LoadFrom reads, so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"GITHUB_TOKEN", "GITLAB_TOKEN", "GITLAB_URL",
		"PIPEDECK_SPIN_INTERVAL", "PIPEDECK_TIMEOUT", "PIPEDECK_LOG_LEVEL",
	} {
		t.Setenv(name, "")
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_FromFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	configPath := writeFile(t, dir, "config.toml", `
spin_interval = "2s"
timeout = "30m"
log_level = "debug"
history_db = "/var/lib/pipedeck/history.db"

[github]
token = "ghp_testtoken"

[gitlab]
token = "glpat_testtoken"
url = "https://gitlab.example.com"

[local]
log_dir = "/tmp/pipedeck-logs"
shell = "bash"
`)

	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SpinInterval.Duration != 2*time.Second {
		t.Errorf("expected spin interval 2s, got %s", cfg.SpinInterval)
	}
	if cfg.Timeout.Duration != 30*time.Minute {
		t.Errorf("expected timeout 30m, got %s", cfg.Timeout)
	}
	if cfg.LogLevel != "debug" || cfg.HistoryDB != "/var/lib/pipedeck/history.db" {
		t.Errorf("unexpected top-level fields: %+v", cfg)
	}
	if cfg.GitHub.Token != "ghp_testtoken" {
		t.Errorf("expected GitHub token 'ghp_testtoken', got '%s'", cfg.GitHub.Token)
	}
	if cfg.GitLab.Token != "glpat_testtoken" {
		t.Errorf("expected GitLab token 'glpat_testtoken', got '%s'", cfg.GitLab.Token)
	}
	if cfg.GitLab.URL != "https://gitlab.example.com" {
		t.Errorf("expected GitLab URL 'https://gitlab.example.com', got '%s'", cfg.GitLab.URL)
	}
	if cfg.Local.LogDir != "/tmp/pipedeck-logs" || cfg.Local.Shell != "bash" {
		t.Errorf("unexpected local config: %+v", cfg.Local)
	}
}

func TestLoad_EnvVarsTakePrecedence(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	configPath := writeFile(t, dir, "config.toml", `
spin_interval = "2s"

[github]
token = "ghp_fromfile"
`)

	t.Setenv("GITHUB_TOKEN", "ghp_fromenv")
	t.Setenv("GITLAB_TOKEN", "glpat_fromenv")
	t.Setenv("GITLAB_URL", "https://gitlab.myco.com")
	t.Setenv("PIPEDECK_SPIN_INTERVAL", "250ms")
	t.Setenv("PIPEDECK_TIMEOUT", "1h")
	t.Setenv("PIPEDECK_LOG_LEVEL", "warn")

	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GitHub.Token != "ghp_fromenv" {
		t.Errorf("expected env token 'ghp_fromenv', got '%s'", cfg.GitHub.Token)
	}
	if cfg.GitLab.Token != "glpat_fromenv" {
		t.Errorf("expected env token 'glpat_fromenv', got '%s'", cfg.GitLab.Token)
	}
	if cfg.GitLab.URL != "https://gitlab.myco.com" {
		t.Errorf("expected env URL 'https://gitlab.myco.com', got '%s'", cfg.GitLab.URL)
	}
	if cfg.SpinInterval.Duration != 250*time.Millisecond || cfg.Timeout.Duration != time.Hour {
		t.Errorf("expected env durations, got %s / %s", cfg.SpinInterval, cfg.Timeout)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("expected env log level, got %q", cfg.LogLevel)
	}
}

func TestLoad_InvalidEnvDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("PIPEDECK_TIMEOUT", "soon")
	_, err := config.LoadFrom(filepath.Join(t.TempDir(), "missing.toml"))
	if err == nil || !strings.Contains(err.Error(), "PIPEDECK_TIMEOUT") {
		t.Errorf("expected PIPEDECK_TIMEOUT error, got %v", err)
	}
}

func TestLoad_DotEnvDoesNotOverrideProcessEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	envFile := writeFile(t, dir, ".env", "GITLAB_TOKEN=glpat_dotenv\nGITHUB_TOKEN=ghp_dotenv\n")
	t.Setenv("GITHUB_TOKEN", "ghp_process")
	os.Unsetenv("GITLAB_TOKEN")

	cfg, err := config.LoadFrom(filepath.Join(dir, "missing.toml"), envFile, filepath.Join(dir, "absent.env"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GitLab.Token != "glpat_dotenv" {
		t.Errorf("expected token from .env, got %q", cfg.GitLab.Token)
	}
	if cfg.GitHub.Token != "ghp_process" {
		t.Errorf("expected process env to win, got %q", cfg.GitHub.Token)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("GITHUB_TOKEN", "ghp_onlyenv")
	cfg, err := config.LoadFrom("/nonexistent/path/config.toml")
	if err != nil {
		t.Fatalf("missing file should not be an error, got: %v", err)
	}
	if cfg.GitHub.Token != "ghp_onlyenv" {
		t.Errorf("expected token from env, got '%s'", cfg.GitHub.Token)
	}
	if cfg.SpinInterval.Duration != 5*time.Second || cfg.Timeout.Duration != 0 || cfg.LogLevel != "info" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected defaults to be valid, got %v", err)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, t.TempDir(), "config.toml", `spin_interval = "fast"`)
	if _, err := config.LoadFrom(path); err == nil {
		t.Error("expected error for malformed duration")
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	clearEnv(t)
	cfg := config.Default()
	cfg.SpinInterval.Duration = 0
	cfg.Timeout.Duration = -time.Second
	cfg.LogLevel = "chatty"
	cfg.GitLab.URL = "gitlab.example.com"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"spin_interval", "timeout", "log_level", "gitlab.url"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}

func TestSave_RoundTrips(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := config.Default()
	cfg.Timeout.Duration = 45 * time.Minute
	cfg.GitHub.Token = "ghp_saved"

	if err := config.Save(path, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected 0600 permissions, got %v", info.Mode().Perm())
	}

	loaded, err := config.LoadFrom(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.Timeout.Duration != 45*time.Minute || loaded.GitHub.Token != "ghp_saved" {
		t.Errorf("unexpected round trip: %+v", loaded)
	}
}
