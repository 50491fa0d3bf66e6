// Package executor runs compiler commands as subprocesses.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

var (
	// ErrCompilerNotFound means the command could not be resolved on PATH.
	ErrCompilerNotFound = errors.New("spark: compiler binary not found")
	// ErrLaunch means the process could not be started.
	ErrLaunch = errors.New("spark: process launch failed")
)

// Command is a process invocation expressed as an argument vector; it is never
// passed through a shell.
type Command struct {
	Name string
	Args []string
	// Dir is the working directory (the caller's when empty).
	Dir string
}

// String renders the command for logs. The result is not shell-safe.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// ExecResult is the outcome of a process that ran to completion.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Success reports whether the process exited with code zero.
func (r ExecResult) Success() bool {
	return r.ExitCode == 0
}

// Diagnostic returns the captured output to show on failure: stderr, stdout, or both.
func (r ExecResult) Diagnostic() string {
	out := strings.TrimRight(r.Stdout, "\n")
	errOut := strings.TrimRight(r.Stderr, "\n")
	switch {
	case errOut == "":
		return out
	case out == "":
		return errOut
	default:
		return out + "\n" + errOut
	}
}

// ProcessExecutor runs one command. A non-zero exit is reported through
// ExecResult.ExitCode with a nil error; the error is reserved for processes that
// never ran or were stopped by ctx.
type ProcessExecutor interface {
	Execute(ctx context.Context, cmd Command) (ExecResult, error)
}

// BinaryExecutor invokes binaries found on PATH.
type BinaryExecutor struct {
	// WaitDelay bounds how long to wait for output pipes after the process is killed.
	WaitDelay time.Duration
}

// NewBinaryExecutor returns a BinaryExecutor with a short kill grace period.
func NewBinaryExecutor() *BinaryExecutor {
	return &BinaryExecutor{WaitDelay: 2 * time.Second}
}

func (b *BinaryExecutor) Execute(ctx context.Context, c Command) (ExecResult, error) {
	path, err := exec.LookPath(c.Name)
	if err != nil {
		return ExecResult{ExitCode: -1}, fmt.Errorf("%w: %w", ErrCompilerNotFound, err)
	}

	// #nosec G204 -- argv comes from the project configuration, no shell involved
	cmd := exec.CommandContext(ctx, path, c.Args...)
	cmd.Dir = c.Dir
	cmd.WaitDelay = b.WaitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Debug("Executing command", "command", c.String(), "dir", c.Dir)
	start := time.Now()
	runErr := cmd.Run()

	res := ExecResult{
		ExitCode: 0,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if runErr == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		res.ExitCode = -1
		return res, ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}

	res.ExitCode = -1
	return res, fmt.Errorf("%w: %w", ErrLaunch, runErr)
}
