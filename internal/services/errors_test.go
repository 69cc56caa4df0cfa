package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"ampliconflow/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "dereplicate", "fastx_uniques", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"dereplicate", "fastx_uniques", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestToolErrorClassifiesAsExternalTool(t *testing.T) {
	toolErr := &services.ToolError{
		Stage:    "quality_filter",
		Binary:   "usearch",
		Args:     []string{"-fastq_filter", "pooled.fastq"},
		ExitCode: 1,
		Stderr:   "reading input\n---Fatal error---\nfile not found",
		Err:      errors.New("exit status 1"),
	}
	wrapped := fmt.Errorf("run filter: %w", toolErr)
	if !errors.Is(wrapped, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool classification, got %v", wrapped)
	}
	var target *services.ToolError
	if !errors.As(wrapped, &target) {
		t.Fatal("expected ToolError to be recoverable with errors.As")
	}
	msg := toolErr.Error()
	if !strings.Contains(msg, "quality_filter") || !strings.Contains(msg, "file not found") {
		t.Fatalf("expected stage and stderr tail in %q", msg)
	}
}

func TestExitCodeMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{services.Wrap(services.ErrValidation, "manifest", "load", "duplicate sample", nil), services.ExitValidation},
		{services.Wrap(services.ErrConfiguration, "cluster", "", "identity locked", nil), services.ExitConfiguration},
		{&services.ToolError{Binary: "usearch", ExitCode: 2}, services.ExitExternalTool},
		{services.Wrap(services.ErrIntegrity, "feature_table", "reconcile", "mismatch", nil), services.ExitIntegrity},
		{errors.New("other"), services.ExitFailure},
	}
	for _, tc := range cases {
		if got := services.ExitCode(tc.err); got != tc.want {
			t.Fatalf("ExitCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
