// internal/domain/errors_test.go
package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/waabox/pipedeck/internal/domain"
)

func TestErrUnauthorized_CanBeDetectedWithErrorsIs(t *testing.T) {
	wrapped := fmt.Errorf("gitlab API error: %w", domain.ErrUnauthorized)
	if !errors.Is(wrapped, domain.ErrUnauthorized) {
		t.Error("expected errors.Is to detect ErrUnauthorized in wrapped error")
	}
}

func TestAdapterError_UnwrapsCause(t *testing.T) {
	err := &domain.AdapterError{Op: "poll", Job: "build", Err: domain.ErrUnauthorized}
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Error("expected AdapterError to unwrap to its cause")
	}
	if err.Error() != "poll build: unauthorized" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}
