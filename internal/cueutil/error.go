// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue/errors"
)

// FormattedError is a CUE error flattened into "<file>: <path>: <message>"
// lines. It unwraps to the error it was built from.
type FormattedError struct {
	msg string
	err error
}

func (e *FormattedError) Error() string { return e.msg }

func (e *FormattedError) Unwrap() error { return e.err }

// FormatError flattens err into a FormattedError. Errors that do not come
// from CUE are prefixed with the file name only.
func FormatError(err error, filePath string) error {
	if err == nil {
		return nil
	}

	cueErrors := errors.Errors(err)
	lines := make([]string, 0, len(cueErrors))
	for _, e := range cueErrors {
		path := formatPath(errors.Path(e))
		msg := e.Error()
		if path != "" {
			msg = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(msg, path), ":"))
			msg = path + ": " + msg
		}
		lines = append(lines, msg)
	}

	switch len(lines) {
	case 0:
		return &FormattedError{msg: filePath + ": " + err.Error(), err: err}
	case 1:
		return &FormattedError{msg: filePath + ": " + lines[0], err: err}
	default:
		return &FormattedError{msg: filePath + ": validation failed:\n  " + strings.Join(lines, "\n  "), err: err}
	}
}

// formatPath renders ["registries", "0", "name"] as "registries[0].name".
func formatPath(path []string) string {
	var b strings.Builder
	for i, part := range path {
		if i > 0 && isIndex(part) {
			b.WriteString("[" + part + "]")
			continue
		}
		if i > 0 {
			b.WriteString(".")
		}
		b.WriteString(part)
	}
	return b.String()
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// CheckFileSize rejects documents larger than maxSize bytes.
func CheckFileSize(data []byte, maxSize int64, filename string) error {
	if int64(len(data)) > maxSize {
		return fmt.Errorf("%s: file size %d bytes exceeds maximum %d bytes", filename, len(data), maxSize)
	}
	return nil
}
