// SPDX-License-Identifier: MPL-2.0

// Package logging builds the structured loggers shared by parcel components.
package logging

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// Options configures a logger.
type Options struct {
	// Prefix is printed before every message (e.g., "parcel", "resolver").
	Prefix string
	// Verbose lowers the level to Debug.
	Verbose bool
	// Output defaults to os.Stderr.
	Output io.Writer
}

// New creates a charmbracelet logger for the given options.
func New(opts Options) *log.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	level := log.InfoLevel
	if opts.Verbose {
		level = log.DebugLevel
	}

	return log.NewWithOptions(out, log.Options{
		Prefix:          opts.Prefix,
		Level:           level,
		ReportTimestamp: opts.Verbose,
	})
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *log.Logger) *log.Logger {
	if l == nil {
		return Discard()
	}
	return l
}

// Component derives a child logger with its own prefix, sharing output and level.
func Component(parent *log.Logger, prefix string) *log.Logger {
	child := OrDiscard(parent).With()
	child.SetPrefix(prefix)
	return child
}
