package domain

import (
	"fmt"
	"strings"
)

// StepStatus is the outcome of a job, a stage, or a whole pipeline.
// The numeric order is the aggregation order: a larger value is worse.
type StepStatus int

const (
	StatusNone StepStatus = iota
	StatusSucceeded
	StatusPartiallySucceeded
	StatusFailed
)

// String returns the lowercase token used in logs, history records and definitions.
func (s StepStatus) String() string {
	switch s {
	case StatusNone:
		return "none"
	case StatusSucceeded:
		return "succeeded"
	case StatusPartiallySucceeded:
		return "partially-succeeded"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// HumanReadable returns the status in upper case with spaces, e.g. "PARTIALLY SUCCEEDED".
func (s StepStatus) HumanReadable() string {
	return strings.ToUpper(strings.ReplaceAll(s.String(), "-", " "))
}

// IsTerminal reports whether s is a final job status.
func (s StepStatus) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusPartiallySucceeded || s == StatusFailed
}

// ParseStepStatus parses the token produced by String.
func ParseStepStatus(s string) (StepStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return StatusNone, nil
	case "succeeded", "success":
		return StatusSucceeded, nil
	case "partially-succeeded", "partially_succeeded", "partial":
		return StatusPartiallySucceeded, nil
	case "failed", "failure":
		return StatusFailed, nil
	}
	return StatusNone, fmt.Errorf("unknown step status %q", s)
}

// Worst folds statuses with "worst wins". It is associative and commutative,
// and StatusNone is its identity element.
func Worst(statuses ...StepStatus) StepStatus {
	result := StatusNone
	for _, s := range statuses {
		if s > result {
			result = s
		}
	}
	return result
}

// StageOutcome aggregates the terminal statuses of the jobs of one stage.
// All jobs failed gives StatusFailed; some but not all failed gives
// StatusPartiallySucceeded; otherwise the worst of the remaining statuses wins.
// A stage without jobs is vacuously StatusSucceeded.
func StageOutcome(statuses []StepStatus) StepStatus {
	if len(statuses) == 0 {
		return StatusSucceeded
	}
	failed := 0
	for _, s := range statuses {
		if s == StatusFailed || s == StatusNone {
			failed++
		}
	}
	switch {
	case failed == len(statuses):
		return StatusFailed
	case failed > 0:
		return StatusPartiallySucceeded
	}
	return Worst(statuses...)
}

// MarshalText encodes the status as its String token.
func (s StepStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a token produced by MarshalText.
func (s *StepStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseStepStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
