package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"

	"github.com/waabox/pipedeck/internal/logging"
)

// Duration is a time.Duration written as a string ("5s", "10m") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// GitHubConfig holds API configuration for GitHub Actions jobs.
type GitHubConfig struct {
	Token string `toml:"token"`
	// URL is the API base URL, for GitHub Enterprise. Empty means api.github.com.
	URL string `toml:"url"`
	// TokenCommand prints a fresh token on stdout; it is run when the API rejects Token.
	TokenCommand string `toml:"token_command,omitempty"`
}

// GitLabConfig holds API configuration for GitLab CI jobs.
type GitLabConfig struct {
	Token        string `toml:"token"`
	URL          string `toml:"url"`
	TokenCommand string `toml:"token_command,omitempty"`
}

// LocalConfig configures jobs run as local processes.
type LocalConfig struct {
	LogDir string `toml:"log_dir"`
	// Shell, e.g. "bash", runs targets through "<shell> -c" instead of splitting them.
	Shell string `toml:"shell,omitempty"`
}

// Config holds all pipedeck configuration.
type Config struct {
	SpinInterval Duration `toml:"spin_interval"`
	Timeout      Duration `toml:"timeout"`
	LogLevel     string   `toml:"log_level"`
	LogFile      string   `toml:"log_file,omitempty"`
	HistoryDB    string   `toml:"history_db"`
	MetricsFile  string   `toml:"metrics_file,omitempty"`
	SummaryFile  string   `toml:"summary_file,omitempty"`

	GitHub GitHubConfig `toml:"github"`
	GitLab GitLabConfig `toml:"gitlab"`
	Local  LocalConfig  `toml:"local"`
}

const (
	defaultSpinInterval = 5 * time.Second
	defaultLogLevel     = "info"
)

// Default returns the configuration used when nothing is configured.
func Default() Config {
	return Config{
		SpinInterval: Duration{defaultSpinInterval},
		LogLevel:     defaultLogLevel,
		HistoryDB:    filepath.Join(dataDir(), "history.db"),
		Local:        LocalConfig{LogDir: filepath.Join(cacheDir(), "logs")},
	}
}

// LoadFrom reads configuration from the given TOML file path on top of the
// defaults. If the file does not exist, the defaults are used without error.
//
// dotenvFiles are loaded into the process environment first; missing files
// are skipped and variables already set are never overwritten. Environment
// variables then take precedence over file values:
//   - GITHUB_TOKEN           overrides github.token
//   - GITLAB_TOKEN           overrides gitlab.token
//   - GITLAB_URL             overrides gitlab.url
//   - PIPEDECK_SPIN_INTERVAL overrides spin_interval
//   - PIPEDECK_TIMEOUT       overrides timeout
//   - PIPEDECK_LOG_LEVEL     overrides log_level
func LoadFrom(path string, dotenvFiles ...string) (Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("reading %s: %w", path, err)
		}
	}
	if err := loadDotEnv(dotenvFiles); err != nil {
		return Config{}, err
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultConfigPath returns the default path for the pipedeck config file.
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "pipedeck", "config.toml")
}

func dataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "pipedeck")
}

func cacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "pipedeck")
}

func loadDotEnv(files []string) error {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("loading env file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.GitHub.Token = v
	}
	if v := os.Getenv("GITLAB_TOKEN"); v != "" {
		cfg.GitLab.Token = v
	}
	if v := os.Getenv("GITLAB_URL"); v != "" {
		cfg.GitLab.URL = v
	}
	if v := os.Getenv("PIPEDECK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	var errs *multierror.Error
	for name, target := range map[string]*Duration{
		"PIPEDECK_SPIN_INTERVAL": &cfg.SpinInterval,
		"PIPEDECK_TIMEOUT":       &cfg.Timeout,
	} {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		if err := target.UnmarshalText([]byte(v)); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errs.ErrorOrNil()
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs *multierror.Error
	if c.SpinInterval.Duration <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("spin_interval must be positive, got %s", c.SpinInterval))
	}
	if c.Timeout.Duration < 0 {
		errs = multierror.Append(errs, fmt.Errorf("timeout must not be negative, got %s", c.Timeout))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("log_level: %w", err))
	}
	for name, raw := range map[string]string{"github.url": c.GitHub.URL, "gitlab.url": c.GitLab.URL} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			errs = multierror.Append(errs, fmt.Errorf("%s: invalid URL %q", name, raw))
		}
	}
	return errs.ErrorOrNil()
}

// Save writes cfg to the given TOML file path, creating parent directories as needed.
// Existing file contents are overwritten. Permissions on the written file are 0600.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	if encErr := toml.NewEncoder(f).Encode(cfg); encErr != nil {
		f.Close()
		return encErr
	}
	return f.Close()
}
