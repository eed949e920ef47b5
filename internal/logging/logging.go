// Package logging builds the logrus logger shared by the CLI, the engine and
// the adapters, and defines the canonical field names they log with.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// Canonical field names to avoid drift across packages.
const (
	FieldRunID    = "run_id"
	FieldPipeline = "pipeline"
	FieldStage    = "stage"
	FieldStages   = "stages"
	FieldJob      = "job"
	FieldJobs     = "jobs"
	FieldProvider = "provider"
	FieldRemoteID = "remote_id"
	FieldLink     = "link"
	FieldStatus   = "status"
	FieldState    = "state"
	FieldDuration = "duration"
	FieldReason   = "reason"
	FieldOp       = "op"
)

// New returns a text logger writing to out at the named level.
func New(level string, out io.Writer) (*logrus.Entry, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:    true,
		DisableColors:    true,
		QuoteEmptyFields: true,
	})
	return logrus.NewEntry(logger), nil
}

// ParseLevel accepts logrus level names case-insensitively. Empty means info.
func ParseLevel(level string) (logrus.Level, error) {
	level = strings.TrimSpace(strings.ToLower(level))
	if level == "" {
		return logrus.InfoLevel, nil
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return 0, fmt.Errorf("invalid log level %q", level)
	}
	return lvl, nil
}

// Discard returns an entry that drops everything.
func Discard() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(logger)
}
