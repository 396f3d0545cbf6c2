// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/invowk/parcel/internal/artifactory"
	"github.com/invowk/parcel/internal/config"
	"github.com/invowk/parcel/internal/issue"
	"github.com/invowk/parcel/internal/resolver"
	"github.com/invowk/parcel/internal/toolchain"
	"github.com/invowk/parcel/pkg/dependency"
	"github.com/invowk/parcel/pkg/manifest"
)

// classifyError maps an error to the issue catalog entry that explains it.
// Zero means no help text is available.
func classifyError(err error) issue.Id {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, resolver.ErrDependencyCycle):
		return issue.DependencyCycleId
	case errors.Is(err, artifactory.ErrChecksumMismatch):
		return issue.ChecksumMismatchId
	case errors.Is(err, resolver.ErrDependencyNotFound):
		return issue.DependencyNotFoundId
	case errors.Is(err, artifactory.ErrRegistryUnreachable):
		return issue.RegistryUnreachableId
	case errors.Is(err, toolchain.ErrBuildFailure):
		return issue.BuildFailedId
	case errors.Is(err, manifest.ErrRecipeMissing), errors.Is(err, manifest.ErrNoToolchain):
		return issue.RecipeNotFoundId
	case errors.Is(err, manifest.ErrManifestMissing), errors.Is(err, manifest.ErrInvalidManifest):
		return issue.ManifestNotFoundId
	case errors.Is(err, dependency.ErrInvalidPackageName):
		return issue.InvalidPackageNameId
	case errors.Is(err, config.ErrInvalidConfig):
		return issue.ConfigLoadFailedId
	}

	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Issue
	}
	return 0
}

// verboseHint is shown under actionable errors that carry no suggestions.
const verboseHint = "\n\n  • re-run with --verbose to see the full error chain"

// formatErrorForDisplay formats an error for user display.
// ActionableErrors use their own Format; verbose mode shows the whole chain.
func formatErrorForDisplay(err error, verbose bool) string {
	var ae *issue.ActionableError
	if !errors.As(err, &ae) {
		return err.Error()
	}
	if !verbose && !ae.HasSuggestions() {
		return ae.Format(false) + verboseHint
	}
	return ae.Format(verbose)
}

// renderIssueHelp prints the catalog entry matching err, if any.
func renderIssueHelp(w io.Writer, err error) {
	id := classifyError(err)
	if id == 0 {
		return
	}
	entry := issue.Get(id)
	if entry == nil {
		return
	}
	rendered, renderErr := entry.Render("dark")
	if renderErr != nil {
		fmt.Fprintln(w, WarningStyle.Render("could not render help: ")+renderErr.Error())
		return
	}
	fmt.Fprint(w, rendered)
}

// fail decorates a command error: the issue help goes to stderr, and the
// returned error is what fang prints.
func (a *App) fail(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	renderIssueHelp(a.stderr, err)
	return &displayError{msg: formatErrorForDisplay(err, a.flags.verbose), err: err}
}

// displayError keeps the original chain reachable behind the formatted text.
type displayError struct {
	msg string
	err error
}

func (e *displayError) Error() string { return e.msg }
func (e *displayError) Unwrap() error { return e.err }
