// Package execx provides the subprocess seam for storkeep. External
// utilities (smartctl, rsync) are invoked through the Executor interface so
// that production code shells out while tests substitute an in-memory fake.
//
// Every invocation is expected to be bounded by a context deadline supplied
// by the caller from configuration; execx itself imposes no timeout.
package execx

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Executor runs external commands. Implementations must honor context
// cancellation and return the command's combined output even on failure.
type Executor interface {
	// Run executes the named command and returns its combined output.
	// A non-zero exit or missing binary is reported as *SubprocessError.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)

	// LookPath reports the full path of the named binary, or an error
	// wrapping exec.ErrNotFound when it is not installed.
	LookPath(name string) (string, error)
}

// SubprocessError reports a failed external command invocation.
type SubprocessError struct {
	// Cmd is the command line that failed, for diagnostics.
	Cmd string

	// ExitCode is the process exit code, or -1 when the process never ran.
	ExitCode int

	// Output is the combined stdout/stderr captured before failure.
	Output string

	// Err is the underlying error from os/exec.
	Err error
}

// Error implements the error interface.
func (e *SubprocessError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("command %q failed (exit %d): %v: %s",
			e.Cmd, e.ExitCode, e.Err, strings.TrimSpace(e.Output))
	}
	return fmt.Sprintf("command %q failed (exit %d): %v", e.Cmd, e.ExitCode, e.Err)
}

// Unwrap returns the underlying os/exec error.
func (e *SubprocessError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err means the external binary is not installed.
// Callers use this to degrade gracefully (SMART probes report UNKNOWN) or to
// fall back to another implementation (native replication without rsync).
func IsNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound)
}

// Default is the production Executor backed by os/exec.
type Default struct{}

// Run executes the command with exec.CommandContext and returns combined
// output. Failures are wrapped in *SubprocessError with the exit code.
func (Default) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, &SubprocessError{
			Cmd:      name + " " + strings.Join(args, " "),
			ExitCode: exitCode(err),
			Output:   string(output),
			Err:      err,
		}
	}
	return output, nil
}

// LookPath reports the full path of the named binary.
func (Default) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// exitCode extracts the process exit code, or -1 when the process never ran
// (binary missing, context cancelled before start).
func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// FakeExecutor is a func-field test double for Executor. Unset fields
// return zero values so tests only stub what they exercise.
type FakeExecutor struct {
	RunFunc      func(ctx context.Context, name string, args ...string) ([]byte, error)
	LookPathFunc func(name string) (string, error)

	// Calls records every Run invocation as "name arg1 arg2 ...".
	Calls []string
}

// Run invokes RunFunc, recording the call.
func (f *FakeExecutor) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.Calls = append(f.Calls, name+" "+strings.Join(args, " "))
	if f.RunFunc == nil {
		return nil, nil
	}
	return f.RunFunc(ctx, name, args...)
}

// LookPath invokes LookPathFunc, defaulting to "found at /usr/bin/<name>".
func (f *FakeExecutor) LookPath(name string) (string, error) {
	if f.LookPathFunc == nil {
		return "/usr/bin/" + name, nil
	}
	return f.LookPathFunc(name)
}

// Ensure both implementations satisfy the interface.
var (
	_ Executor = Default{}
	_ Executor = (*FakeExecutor)(nil)
)
