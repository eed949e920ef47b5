package main

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"
	"github.com/sirupsen/logrus"

	"github.com/waabox/pipedeck/internal/config"
	"github.com/waabox/pipedeck/internal/logging"
)

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"${config_path}" type:"path"`
	EnvFile []string         `name:"env-file" help:"Env files loaded before environment overrides" default:".env"`
	Verbose bool             `short:"v" help:"Enable debug logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Run      RunCmd      `cmd:"" help:"Run a pipeline definition and print its summary"`
	Validate ValidateCmd `cmd:"" help:"Parse a pipeline definition and print the plan without triggering anything"`
	History  HistoryCmd  `cmd:"" help:"Inspect previous runs"`
	Init     InitCmd     `cmd:"" help:"Write a configuration file with the default settings"`
}

// loadConfig reads the configuration and checks it.
func (c *CLI) loadConfig() (config.Config, error) {
	cfg, err := config.LoadFrom(c.Config, c.EnvFile...)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if c.Verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// logger builds the process logger. Logs go to out, or to cfg.LogFile when
// toFile is set (the TUI owns the terminal), or nowhere if no file is configured.
func (c *CLI) logger(cfg config.Config, toFile bool) (*logrus.Entry, func(), error) {
	var out io.Writer = os.Stderr
	closeFn := func() {}
	if toFile {
		out = io.Discard
		if cfg.LogFile != "" {
			f, err := os.OpenFile(cfg.LogFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
			if err != nil {
				return nil, nil, fmt.Errorf("opening log file: %w", err)
			}
			out = f
			closeFn = func() { f.Close() }
		}
	}
	log, err := logging.New(cfg.LogLevel, out)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return log, closeFn, nil
}
