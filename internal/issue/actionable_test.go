// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"strings"
	"testing"
)

func TestActionableError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *ActionableError
		expected string
	}{
		{
			name:     "operation only",
			err:      &ActionableError{Operation: "install dependencies"},
			expected: "failed to install dependencies",
		},
		{
			name:     "operation with resource",
			err:      &ActionableError{Operation: "load manifest", Resource: "./parcel.toml"},
			expected: "failed to load manifest: ./parcel.toml",
		},
		{
			name:     "operation with cause",
			err:      &ActionableError{Operation: "sync registries", Cause: errors.New("connection refused")},
			expected: "failed to sync registries: connection refused",
		},
		{
			name: "full context",
			err: &ActionableError{
				Operation: "push package",
				Resource:  "fmt-1.0.0-x86_64-linux-static.tar.gz",
				Cause:     errors.New("403 Forbidden"),
			},
			expected: "failed to push package: fmt-1.0.0-x86_64-linux-static.tar.gz: 403 Forbidden",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestActionableError_Format(t *testing.T) {
	root := errors.New("dial tcp: connection refused")
	err := NewErrorContext().
		WithOperation("sync registries").
		WithSuggestion("Check your network connection").
		WithSuggestions("Run 'parcel config show'", "Retry with --lazy").
		Wrap(root).
		Build()

	plain := err.Format(false)
	if !strings.Contains(plain, "• Check your network connection") || !strings.Contains(plain, "• Retry with --lazy") {
		t.Errorf("Format(false) missing suggestions:\n%s", plain)
	}
	if strings.Contains(plain, "Error chain") {
		t.Error("Format(false) should not include the error chain")
	}

	verbose := err.Format(true)
	if !strings.Contains(verbose, "Error chain:") || !strings.Contains(verbose, "1. dial tcp") {
		t.Errorf("Format(true) missing error chain:\n%s", verbose)
	}
	if !err.HasSuggestions() {
		t.Error("HasSuggestions() = false")
	}
}

func TestErrorContext_Build(t *testing.T) {
	if NewErrorContext().Build() != nil {
		t.Error("Build() without operation should return nil")
	}
	if NewErrorContext().BuildError() != nil {
		t.Error("BuildError() without operation should return nil")
	}

	cause := errors.New("boom")
	err := NewErrorContext().
		WithOperation("build package").
		WithResource("zlib").
		WithIssue(BuildFailedId).
		Wrap(cause).
		BuildError()

	var ae *ActionableError
	if !errors.As(err, &ae) {
		t.Fatalf("BuildError() returned %T", err)
	}
	if ae.Issue != BuildFailedId || ae.Resource != "zlib" {
		t.Errorf("built error = %+v", ae)
	}
	if !errors.Is(err, cause) {
		t.Error("built error should unwrap to its cause")
	}
}

func TestWrapHelpers(t *testing.T) {
	if WrapWithOperation(nil, "x") != nil || WrapWithContext(nil, "x", "y") != nil {
		t.Error("wrapping nil should return nil")
	}

	err := WrapWithContext(errors.New("gone"), "read cache", "/tmp/cache")
	if err.Error() != "failed to read cache: /tmp/cache: gone" {
		t.Errorf("WrapWithContext() = %q", err.Error())
	}
	if WrapWithOperation(errors.New("gone"), "read cache").Error() != "failed to read cache: gone" {
		t.Error("WrapWithOperation() message mismatch")
	}
}
