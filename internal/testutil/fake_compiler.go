package testutil

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"git.home.luguber.info/inful/spark/internal/executor"
)

// FakeCompiler is a ProcessExecutor that understands the
// "... -c <source> -o <object>" tail of a compile command. It writes a small
// object file on success and fails sources for which Fail returns true.
type FakeCompiler struct {
	// Before runs first; a non-nil error is returned as an execution error.
	Before func(ctx context.Context, cmd executor.Command) error
	// Fail selects sources that exit with code 1.
	Fail func(source string) bool

	mu       sync.Mutex
	commands []executor.Command
	launches atomic.Int32
}

// SourceOf returns the source path of a compile command.
func SourceOf(cmd executor.Command) string {
	return cmd.Args[len(cmd.Args)-3]
}

// ObjectOf returns the object path of a compile command.
func ObjectOf(cmd executor.Command) string {
	return cmd.Args[len(cmd.Args)-1]
}

func (f *FakeCompiler) Execute(ctx context.Context, cmd executor.Command) (executor.ExecResult, error) {
	f.launches.Add(1)
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	f.mu.Unlock()

	if f.Before != nil {
		if err := f.Before(ctx, cmd); err != nil {
			return executor.ExecResult{ExitCode: -1}, err
		}
	}

	src := SourceOf(cmd)
	if f.Fail != nil && f.Fail(src) {
		return executor.ExecResult{
			ExitCode: 1,
			Stderr:   filepath.Base(src) + ":1:1: error: expected unqualified-id\n",
		}, nil
	}
	if err := os.WriteFile(ObjectOf(cmd), []byte("\x7fELF"), testFilePermissions); err != nil {
		return executor.ExecResult{ExitCode: 1, Stderr: err.Error()}, nil
	}
	return executor.ExecResult{}, nil
}

// Launches returns how many commands were executed.
func (f *FakeCompiler) Launches() int {
	return int(f.launches.Load())
}

// Commands returns a copy of the executed commands.
func (f *FakeCompiler) Commands() []executor.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]executor.Command(nil), f.commands...)
}
