package build

import (
	"context"
	"time"

	"git.home.luguber.info/inful/spark/internal/config"
	"git.home.luguber.info/inful/spark/internal/task"
)

// Service is the interface the CLI and the watcher drive builds through.
type Service interface {
	Run(ctx context.Context, cfg *config.Config) (*BuildResult, error)
}

// BuildStatus represents the outcome of a build execution.
type BuildStatus string

const (
	BuildStatusSuccess   BuildStatus = "success"
	BuildStatusFailed    BuildStatus = "failed"
	BuildStatusCancelled BuildStatus = "cancelled"
)

// IsSuccess returns true if the build completed successfully.
func (s BuildStatus) IsSuccess() bool {
	return s == BuildStatusSuccess
}

// Outcome is the terminal state of one compile task.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	// OutcomeCanceled marks a task stopped because a sibling failed or the run was cancelled.
	OutcomeCanceled Outcome = "canceled"
)

// CompileResult records what happened to one task.
type CompileResult struct {
	Task    task.Task
	Outcome Outcome
	// Diagnostic holds the captured compiler output (or launch error) on failure.
	Diagnostic string
	ExitCode   int
	Duration   time.Duration
}

// BuildResult contains the outcome of a build execution.
type BuildResult struct {
	BuildID string
	Status  BuildStatus

	// OutputDir is the resolved object directory.
	OutputDir string

	// TasksDispatched counts every task handed to the dispatcher, including
	// ones canceled before their process started.
	TasksDispatched int
	Succeeded       int
	Failed          int
	Canceled        int

	// Failures lists failed tasks in completion order.
	Failures []CompileResult

	// DiscoveryErrors holds one error per pattern that could not be expanded.
	DiscoveryErrors []error

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

func (r *BuildResult) finish(status BuildStatus) {
	r.Status = status
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
}
