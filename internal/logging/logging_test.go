package logging_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/waabox/pipedeck/internal/logging"
)

func TestNew_WritesFieldsAtLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := logging.New("debug", &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	log.WithField(logging.FieldJob, "api").Debug("job started")

	out := buf.String()
	if !strings.Contains(out, "job started") || !strings.Contains(out, "job=api") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestNew_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := logging.New("warn", &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    logrus.Level
		wantErr bool
	}{
		{"", logrus.InfoLevel, false},
		{"DEBUG", logrus.DebugLevel, false},
		{" warn ", logrus.WarnLevel, false},
		{"chatty", 0, true},
	}
	for _, tt := range tests {
		got, err := logging.ParseLevel(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseLevel(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}
