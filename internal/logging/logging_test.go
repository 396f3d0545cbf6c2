// SPDX-License-Identifier: MPL-2.0

package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNew_Levels(t *testing.T) {
	t.Parallel()

	var quiet bytes.Buffer
	l := New(Options{Prefix: "parcel", Output: &quiet})
	l.Debug("hidden")
	l.Info("shown", "package", "fmt")
	if strings.Contains(quiet.String(), "hidden") {
		t.Error("debug output should be hidden without verbose")
	}
	if !strings.Contains(quiet.String(), "shown") || !strings.Contains(quiet.String(), "parcel") {
		t.Errorf("info output = %q", quiet.String())
	}

	var loud bytes.Buffer
	New(Options{Verbose: true, Output: &loud}).Debug("visible")
	if !strings.Contains(loud.String(), "visible") {
		t.Error("debug output should be shown with verbose")
	}
}

func TestComponent(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	parent := New(Options{Prefix: "parcel", Output: &buf})
	Component(parent, "cache").Warn("large")
	if !strings.Contains(buf.String(), "cache") {
		t.Errorf("component prefix missing: %q", buf.String())
	}

	// A nil parent must not panic.
	Component(nil, "cache").Error("dropped")
	OrDiscard(nil).Info("dropped")
}
