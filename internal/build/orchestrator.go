package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/spark/internal/config"
	"git.home.luguber.info/inful/spark/internal/discovery"
	serrors "git.home.luguber.info/inful/spark/internal/errors"
	"git.home.luguber.info/inful/spark/internal/executor"
	"git.home.luguber.info/inful/spark/internal/logfields"
	"git.home.luguber.info/inful/spark/internal/metrics"
	"git.home.luguber.info/inful/spark/internal/observability"
	"git.home.luguber.info/inful/spark/internal/status"
	"git.home.luguber.info/inful/spark/internal/task"
)

// DiscovererFactory creates the Discoverer for one run.
type DiscovererFactory func(root string, cfg *config.Config) *discovery.Discoverer

// Orchestrator is the standard implementation of Service.
type Orchestrator struct {
	root              string
	executor          executor.ProcessExecutor
	reporter          status.Reporter
	recorder          metrics.Recorder
	discovererFactory DiscovererFactory
}

// NewOrchestrator creates an Orchestrator that runs real compiler processes,
// reports nothing and records no metrics.
func NewOrchestrator() *Orchestrator {
	return &Orchestrator{
		executor: executor.NewBinaryExecutor(),
		reporter: status.NoopReporter{},
		recorder: metrics.NoopRecorder{},
		discovererFactory: func(root string, cfg *config.Config) *discovery.Discoverer {
			return discovery.New(root).WithDedupe(cfg.Dedupe)
		},
	}
}

// WithRoot sets the directory relative patterns and output_dir resolve against
// (the working directory when empty).
func (o *Orchestrator) WithRoot(root string) *Orchestrator {
	o.root = root
	return o
}

// WithExecutor replaces the process executor (for testing).
func (o *Orchestrator) WithExecutor(e executor.ProcessExecutor) *Orchestrator {
	if e != nil {
		o.executor = e
	}
	return o
}

// WithReporter sets the status reporter.
func (o *Orchestrator) WithReporter(r status.Reporter) *Orchestrator {
	if r != nil {
		o.reporter = r
	}
	return o
}

// WithRecorder sets the metrics recorder.
func (o *Orchestrator) WithRecorder(r metrics.Recorder) *Orchestrator {
	if r != nil {
		o.recorder = r
	}
	return o
}

// WithDiscovererFactory replaces how the per-run Discoverer is created.
func (o *Orchestrator) WithDiscovererFactory(f DiscovererFactory) *Orchestrator {
	if f != nil {
		o.discovererFactory = f
	}
	return o
}

// run holds the mutable state of a single Run call.
type run struct {
	o        *Orchestrator
	cfg      *config.Config
	builder  *task.Builder
	result   *BuildResult
	mu       sync.Mutex
	inFlight atomic.Int64
}

// Run executes one build. It returns a non-nil BuildResult in every case.
//
// Under the fail_fast policy the first failing task cancels the run: nothing
// new is dispatched, running compilers are killed, and Run returns once every
// started task has exited. Object files already written are left in place.
func (o *Orchestrator) Run(ctx context.Context, cfg *config.Config) (*BuildResult, error) {
	result := &BuildResult{
		BuildID:   uuid.NewString(),
		StartTime: time.Now(),
	}
	ctx = observability.WithBuildID(ctx, result.BuildID)

	if err := config.Validate(cfg); err != nil {
		result.finish(BuildStatusFailed)
		o.recorder.IncBuildOutcome(metrics.BuildOutcomeFailed)
		return result, err
	}

	ctx = observability.WithStage(ctx, "output")
	outDir, err := o.ensureOutputDir(cfg.OutputDir)
	result.OutputDir = outDir
	if err != nil {
		result.finish(BuildStatusFailed)
		o.recorder.IncBuildOutcome(metrics.BuildOutcomeFailed)
		return result, err
	}

	resolved := *cfg
	resolved.OutputDir = outDir
	r := &run{o: o, cfg: &resolved, builder: task.NewBuilder(&resolved), result: result}

	ctx = observability.WithStage(ctx, "compile")
	observability.InfoContext(ctx, "Starting build",
		logfields.Count(len(cfg.SrcDirs)),
		logfields.Path(outDir),
		logfields.Compiler(cfg.Compiler))

	firstErr := r.dispatch(ctx)
	return o.complete(ctx, r, firstErr)
}

// ensureOutputDir creates the leaf output directory. Missing parents are an error.
func (o *Orchestrator) ensureOutputDir(dir string) (string, error) {
	if !filepath.IsAbs(dir) && o.root != "" {
		dir = filepath.Join(o.root, dir)
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}

	err := os.Mkdir(dir, 0o750)
	if err == nil || errors.Is(err, os.ErrExist) {
		info, statErr := os.Stat(dir)
		if statErr == nil && info.IsDir() {
			return dir, nil
		}
		if statErr == nil {
			err = fmt.Errorf("%s exists and is not a directory", dir)
		} else {
			err = statErr
		}
	}
	return dir, serrors.FileSystemError("failed to create output directory").
		WithCause(err).
		WithContext("path", dir).
		Build()
}

// dispatch streams discovery and launches a task per matched file as soon as its
// pattern resolves. It returns the error that stopped the run, if any.
func (r *run) dispatch(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	if r.cfg.Jobs > 0 {
		g.SetLimit(r.cfg.Jobs)
	}

	disc := r.o.discovererFactory(r.o.root, r.cfg)
	for res := range disc.Discover(gctx, r.cfg.SrcDirs) {
		if res.Err != nil {
			r.recordDiscoveryError(ctx, res)
			continue
		}
		observability.DebugContext(observability.WithPattern(ctx, res.Pattern), "Pattern resolved",
			logfields.Count(len(res.Files)))

		for _, src := range res.Files {
			if gctx.Err() != nil {
				break
			}
			t := r.builder.Build(src)
			r.mu.Lock()
			r.result.TasksDispatched++
			r.mu.Unlock()
			g.Go(func() error {
				return r.compile(gctx, t)
			})
		}
	}

	return g.Wait()
}

func (r *run) recordDiscoveryError(ctx context.Context, res discovery.PatternResult) {
	r.o.recorder.IncDiscoveryError()
	observability.WarnContext(observability.WithPattern(ctx, res.Pattern), "Source pattern could not be expanded",
		logfields.Error(res.Err))
	r.mu.Lock()
	r.result.DiscoveryErrors = append(r.result.DiscoveryErrors, res.Err)
	r.mu.Unlock()
}

// compile runs one task. The returned error cancels the run; it is only
// non-nil for failures under the fail_fast policy.
func (r *run) compile(ctx context.Context, t task.Task) error {
	if ctx.Err() != nil {
		r.record(CompileResult{Task: t, Outcome: OutcomeCanceled})
		return nil
	}

	label := t.Label()
	r.o.reporter.Start(label)
	r.o.recorder.SetInFlight(int(r.inFlight.Add(1)))
	defer func() { r.o.recorder.SetInFlight(int(r.inFlight.Add(-1))) }()

	taskCtx := ctx
	if timeout := r.cfg.TaskTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := r.builder.Command(t)
	observability.DebugContext(ctx, "Dispatching compile",
		logfields.Source(t.SourcePath),
		logfields.Object(t.ObjectPath))

	start := time.Now()
	execRes, err := r.o.executor.Execute(taskCtx, cmd)
	cr := CompileResult{Task: t, ExitCode: execRes.ExitCode, Duration: time.Since(start)}

	var cause error
	switch {
	case err == nil && execRes.Success():
		cr.Outcome = OutcomeSucceeded
	case ctx.Err() != nil:
		cr.Outcome = OutcomeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		cr.Outcome = OutcomeFailed
		cr.Diagnostic = fmt.Sprintf("compile of %s timed out after %s", label, r.cfg.TaskTimeout())
		cause = fmt.Errorf("%w: %s", ErrTimeout, r.cfg.TaskTimeout())
	case err != nil:
		cr.Outcome = OutcomeFailed
		cr.Diagnostic = err.Error()
		cause = err
	default:
		cr.Outcome = OutcomeFailed
		cr.Diagnostic = execRes.Diagnostic()
		cause = fmt.Errorf("%w (exit code %d)", ErrNonZeroExit, execRes.ExitCode)
	}
	r.record(cr)

	switch cr.Outcome {
	case OutcomeSucceeded:
		r.o.reporter.Succeed(label)
		return nil
	case OutcomeCanceled:
		observability.DebugContext(ctx, "Compile canceled", logfields.Source(t.SourcePath))
		return nil
	}

	r.o.reporter.Fail(label, cr.Diagnostic)
	observability.ErrorContext(ctx, "Compile failed",
		logfields.Source(t.SourcePath),
		logfields.ExitCode(cr.ExitCode),
		logfields.DurationMS(float64(cr.Duration.Milliseconds())))

	if r.cfg.FailurePolicy == config.CollectAll {
		return nil
	}
	return serrors.CompileFailure(t.SourcePath, cause).
		WithContext("object", t.ObjectPath).
		WithContext("exit_code", cr.ExitCode).
		Build()
}

func (r *run) record(cr CompileResult) {
	label := metrics.ResultSuccess
	r.mu.Lock()
	switch cr.Outcome {
	case OutcomeSucceeded:
		r.result.Succeeded++
	case OutcomeFailed:
		r.result.Failed++
		r.result.Failures = append(r.result.Failures, cr)
		label = metrics.ResultFailed
	case OutcomeCanceled:
		r.result.Canceled++
		label = metrics.ResultCanceled
	}
	r.mu.Unlock()

	r.o.recorder.IncTaskResult(label)
	if cr.Outcome != OutcomeCanceled {
		r.o.recorder.ObserveTaskDuration(cr.Duration, label)
	}
}

// complete derives the final status and error once every task has returned.
func (o *Orchestrator) complete(ctx context.Context, r *run, firstErr error) (*BuildResult, error) {
	result := r.result
	var err error

	switch {
	case firstErr != nil:
		result.finish(BuildStatusFailed)
		err = firstErr
	case ctx.Err() != nil:
		result.finish(BuildStatusCancelled)
		err = ctx.Err()
	case result.Failed > 0:
		result.finish(BuildStatusFailed)
		first := result.Failures[0]
		err = serrors.NewError(serrors.CategoryCompile, "compile tasks failed").
			Fatal().
			WithCause(fmt.Errorf("%d of %d tasks failed", result.Failed, result.TasksDispatched)).
			WithContext("failed", result.Failed).
			WithContext("source", first.Task.SourcePath).
			Build()
	default:
		result.finish(BuildStatusSuccess)
	}

	switch {
	case result.Status.IsSuccess():
		o.recorder.IncBuildOutcome(metrics.BuildOutcomeSuccess)
	case result.Status == BuildStatusCancelled:
		o.recorder.IncBuildOutcome(metrics.BuildOutcomeCanceled)
	default:
		o.recorder.IncBuildOutcome(metrics.BuildOutcomeFailed)
	}
	o.recorder.ObserveBuildDuration(result.Duration)

	attrs := []slog.Attr{
		logfields.Status(string(result.Status)),
		logfields.Count(result.TasksDispatched),
		logfields.DurationMS(float64(result.Duration.Milliseconds())),
	}
	if err != nil {
		attrs = append(attrs, logfields.Error(err))
	}
	observability.InfoContext(ctx, "Build finished", attrs...)
	return result, err
}
