// SPDX-License-Identifier: MPL-2.0

package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/invowk/parcel/internal/logging"
	"github.com/invowk/parcel/pkg/dependency"
	"github.com/invowk/parcel/pkg/manifest"

	"github.com/charmbracelet/log"
)

const (
	// TargetDir is the build output folder inside a source tree.
	TargetDir = "target"
	// ExportDir is the install tree inside TargetDir that gets packed.
	ExportDir = "export"
	// DependenciesDir is where a package's own dependencies are installed.
	DependenciesDir = "dependencies"

	// maxCapturedOutput bounds the output kept in a BuildError.
	maxCapturedOutput = 16 << 10
)

// ErrBuildFailure is the sentinel error wrapped by BuildError.
var ErrBuildFailure = errors.New("build failed")

type (
	// Toolchain turns a source tree into an export tree ready to be packed.
	Toolchain interface {
		Name() string
		// BuildFromRecipe builds sourceDir for dist using the recipe section of
		// that exact distribution and returns the export directory.
		BuildFromRecipe(ctx context.Context, recipe *manifest.Recipe, sourceDir string, dist dependency.Distribution) (string, error)
	}

	// Command is one subprocess invocation.
	Command struct {
		Dir  string
		Name string
		Args []string
		// Env is appended to the current environment.
		Env []string
	}

	// Runner executes subprocesses. Tests substitute a fake.
	Runner interface {
		Run(ctx context.Context, cmd Command) (output []byte, err error)
	}

	// ExecRunner runs commands with os/exec, capturing combined output and
	// optionally mirroring it to Output.
	ExecRunner struct {
		Output io.Writer
	}

	// CMakeConfig holds the application-level CMake settings.
	CMakeConfig struct {
		// ConfigureCommand is the cmake executable, optionally with leading arguments.
		ConfigureCommand string
		// Definitions are passed as -D KEY=VALUE to every configure step.
		Definitions map[string]string
	}

	// Options configures the toolchains returned by For.
	Options struct {
		CMake  CMakeConfig
		Runner Runner
		Logger *log.Logger
	}

	// BuildError is returned when a build subprocess exits unsuccessfully.
	BuildError struct {
		Toolchain string
		Command   string
		ExitCode  int
		Output    string
		Err       error
	}
)

// Error implements the error interface.
func (e *BuildError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s build failed running %q", e.Toolchain, e.Command)
	if e.ExitCode != 0 {
		fmt.Fprintf(&b, " (exit code %d)", e.ExitCode)
	} else if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		b.WriteString("\n")
		b.WriteString(out)
	}
	return b.String()
}

// Unwrap returns ErrBuildFailure so callers can use errors.Is for programmatic detection.
func (e *BuildError) Unwrap() error { return ErrBuildFailure }

// String renders the command line for logs and errors.
func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, c Command) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	var out bytes.Buffer
	var w io.Writer = &out
	if r.Output != nil {
		w = io.MultiWriter(&out, r.Output)
	}
	cmd.Stdout = w
	cmd.Stderr = w

	err := cmd.Run()
	return out.Bytes(), err
}

// For picks the toolchain described by section: CMake when it has a cmake
// block, Shell when it lists commands.
func For(section manifest.Section, opts Options) (Toolchain, error) {
	if opts.Runner == nil {
		opts.Runner = ExecRunner{}
	}
	logger := logging.OrDiscard(opts.Logger)

	switch {
	case section.CMake != nil:
		return &CMake{Config: opts.CMake, runner: opts.Runner, logger: logger}, nil
	case len(section.Shell) > 0:
		return &Shell{runner: opts.Runner, logger: logger}, nil
	default:
		return nil, fmt.Errorf("%w: section names neither cmake nor shell", manifest.ErrNoToolchain)
	}
}

// run executes c and converts failures into BuildError.
func run(ctx context.Context, runner Runner, logger *log.Logger, toolchain string, c Command) error {
	logger.Debug("running", "command", c.String(), "dir", c.Dir)
	out, err := runner.Run(ctx, c)
	if err == nil {
		return nil
	}

	be := &BuildError{Toolchain: toolchain, Command: c.String(), Output: tail(out), Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		be.ExitCode = exitErr.ExitCode()
	}
	return be
}

func tail(out []byte) string {
	if len(out) > maxCapturedOutput {
		out = out[len(out)-maxCapturedOutput:]
	}
	return string(out)
}

// ExportPath returns the export directory of a source tree.
func ExportPath(sourceDir string) string {
	return filepath.Join(sourceDir, TargetDir, ExportDir)
}

// CopyPackageMetadata copies parcel.toml and the .parcel directory from
// sourceDir into exportDir, so the built artifact still describes itself.
func CopyPackageMetadata(sourceDir, exportDir string) error {
	if err := os.MkdirAll(exportDir, 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	data, err := os.ReadFile(filepath.Join(sourceDir, manifest.FileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &manifest.ManifestMissingError{Path: sourceDir}
		}
		return fmt.Errorf("failed to read manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(exportDir, manifest.FileName), data, 0o644); err != nil {
		return fmt.Errorf("failed to copy manifest: %w", err)
	}

	ext := filepath.Join(sourceDir, manifest.ExtDir)
	if _, err := os.Stat(ext); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	target := filepath.Join(exportDir, manifest.ExtDir)
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("failed to replace %s: %w", target, err)
	}
	if err := os.CopyFS(target, os.DirFS(ext)); err != nil {
		return fmt.Errorf("failed to copy %s: %w", manifest.ExtDir, err)
	}
	return nil
}
