package build

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/spark/internal/config"
	"git.home.luguber.info/inful/spark/internal/discovery"
	serrors "git.home.luguber.info/inful/spark/internal/errors"
	"git.home.luguber.info/inful/spark/internal/executor"
	"git.home.luguber.info/inful/spark/internal/metrics"
	"git.home.luguber.info/inful/spark/internal/status"
	sparktest "git.home.luguber.info/inful/spark/internal/testutil"
)

func newProject(t *testing.T, sources ...string) string {
	t.Helper()
	return sparktest.NewProject(t, sources...).Root
}

func newConfig(srcDirs ...string) *config.Config {
	return sparktest.NewConfigBuilder().WithSources(srcDirs...).Build()
}

func TestRun_ProducesObjectPerSource(t *testing.T) {
	root := newProject(t, "src/a.cpp", "src/b.cpp")
	fake := &sparktest.FakeCompiler{}
	rep := &status.Recorder{}

	result, err := NewOrchestrator().WithRoot(root).WithExecutor(fake).WithReporter(rep).
		Run(context.Background(), newConfig("src/*.cpp"))
	require.NoError(t, err)
	require.Equal(t, BuildStatusSuccess, result.Status)
	require.Equal(t, 2, result.TasksDispatched)
	require.Equal(t, 2, result.Succeeded)
	require.NotEmpty(t, result.BuildID)

	sparktest.NewFileAssertions(t, root).AssertObjects("build", "a.cpp.o", "b.cpp.o")
	require.Equal(t, 1, rep.Count(status.EventSucceed, "a.cpp"))
	require.Equal(t, 1, rep.Count(status.EventSucceed, "b.cpp"))
}

func TestRun_CommandVector(t *testing.T) {
	root := newProject(t, "src/a.cpp")
	fake := &sparktest.FakeCompiler{}
	cfg := newConfig("src/*.cpp")
	cfg.IncludeDirs = []string{"a", "b"}

	_, err := NewOrchestrator().WithRoot(root).WithExecutor(fake).Run(context.Background(), cfg)
	require.NoError(t, err)

	cmds := fake.Commands()
	require.Len(t, cmds, 1)
	require.Equal(t, "g++", cmds[0].Name)
	require.Equal(t, []string{
		"-std=c++17", "a", "-Ib",
		"-c", filepath.Join(root, "src", "a.cpp"),
		"-o", filepath.Join(root, "build", "a.cpp.o"),
	}, cmds[0].Args)
}

func TestRun_OutputDirExistsBeforeDispatch(t *testing.T) {
	root := newProject(t, "src/a.cpp", "src/b.cpp", "src/c.cpp")
	outDir := filepath.Join(root, "build")
	_, err := os.Stat(outDir)
	require.True(t, os.IsNotExist(err))

	var missing atomic.Int32
	fake := &sparktest.FakeCompiler{Before: func(context.Context, executor.Command) error {
		if info, err := os.Stat(outDir); err != nil || !info.IsDir() {
			missing.Add(1)
		}
		return nil
	}}

	_, err = NewOrchestrator().WithRoot(root).WithExecutor(fake).Run(context.Background(), newConfig("src/*.cpp"))
	require.NoError(t, err)
	require.Zero(t, missing.Load())
	require.EqualValues(t, 3, fake.Launches())
}

func TestRun_ExistingOutputDir(t *testing.T) {
	root := newProject(t, "src/a.cpp", "build/keep.txt")

	_, err := NewOrchestrator().WithRoot(root).WithExecutor(&sparktest.FakeCompiler{}).Run(context.Background(), newConfig("src/*.cpp"))
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(root, "build", "keep.txt"))
}

func TestRun_MissingIncludeDirsLaunchesNothing(t *testing.T) {
	root := newProject(t, "src/a.cpp")
	fake := &sparktest.FakeCompiler{}
	cfg := newConfig("src/*.cpp")
	cfg.IncludeDirs = nil

	result, err := NewOrchestrator().WithRoot(root).WithExecutor(fake).Run(context.Background(), cfg)
	require.Error(t, err)
	require.True(t, serrors.HasCategory(err, serrors.CategoryConfig))
	require.Equal(t, 1, serrors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
	require.Equal(t, BuildStatusFailed, result.Status)
	require.Zero(t, fake.Launches())
	require.NoDirExists(t, filepath.Join(root, "build"))
}

func TestRun_NilConfig(t *testing.T) {
	fake := &sparktest.FakeCompiler{}
	result, err := NewOrchestrator().WithExecutor(fake).Run(context.Background(), nil)
	require.Error(t, err)
	require.NotNil(t, result)
	require.Zero(t, fake.Launches())
}

func TestRun_OutputDirParentMissing(t *testing.T) {
	root := newProject(t, "src/a.cpp")
	fake := &sparktest.FakeCompiler{}
	cfg := newConfig("src/*.cpp")
	cfg.OutputDir = filepath.Join("missing", "build")

	_, err := NewOrchestrator().WithRoot(root).WithExecutor(fake).Run(context.Background(), cfg)
	require.Error(t, err)
	require.True(t, serrors.HasCategory(err, serrors.CategoryFileSystem))
	require.Zero(t, fake.Launches())
}

func TestRun_OneFailureKeepsCompletedObjects(t *testing.T) {
	root := newProject(t, "src/a.cpp", "src/b.cpp", "src/bad.cpp")
	outDir := filepath.Join(root, "build")
	rep := &status.Recorder{}

	fake := &sparktest.FakeCompiler{
		Fail: func(src string) bool { return filepath.Base(src) == "bad.cpp" },
		Before: func(ctx context.Context, cmd executor.Command) error {
			if filepath.Base(sparktest.SourceOf(cmd)) != "bad.cpp" {
				return nil
			}
			// fail only after the good objects are on disk
			deadline := time.Now().Add(5 * time.Second)
			for time.Now().Before(deadline) {
				_, errA := os.Stat(filepath.Join(outDir, "a.cpp.o"))
				_, errB := os.Stat(filepath.Join(outDir, "b.cpp.o"))
				if errA == nil && errB == nil {
					break
				}
				time.Sleep(5 * time.Millisecond)
			}
			return nil
		},
	}

	result, err := NewOrchestrator().WithRoot(root).WithExecutor(fake).WithReporter(rep).
		Run(context.Background(), newConfig("src/*.cpp"))
	require.Error(t, err)
	require.True(t, serrors.HasCategory(err, serrors.CategoryCompile))
	require.ErrorIs(t, err, ErrNonZeroExit)
	require.Equal(t, 1, serrors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))

	require.Equal(t, BuildStatusFailed, result.Status)
	require.Equal(t, 1, result.Failed)
	require.Equal(t, 2, result.Succeeded)
	require.Contains(t, result.Failures[0].Diagnostic, "bad.cpp:1:1: error")

	require.FileExists(t, filepath.Join(outDir, "a.cpp.o"))
	require.FileExists(t, filepath.Join(outDir, "b.cpp.o"))
	require.NoFileExists(t, filepath.Join(outDir, "bad.cpp.o"))

	var fails []status.Event
	for _, e := range rep.Events() {
		if e.Kind == status.EventFail {
			fails = append(fails, e)
		}
	}
	require.Len(t, fails, 1)
	require.Equal(t, "bad.cpp", fails[0].Label)
	require.Contains(t, fails[0].Diagnostic, "expected unqualified-id")
}

func TestRun_FailFastCancelsInFlightTasks(t *testing.T) {
	root := newProject(t, "src/bad.cpp", "src/slow.cpp")
	var slowCanceled atomic.Bool
	slowStarted := make(chan struct{})

	fake := &sparktest.FakeCompiler{
		Fail: func(src string) bool { return filepath.Base(src) == "bad.cpp" },
		Before: func(ctx context.Context, cmd executor.Command) error {
			if filepath.Base(sparktest.SourceOf(cmd)) != "slow.cpp" {
				<-slowStarted
				return nil
			}
			close(slowStarted)
			select {
			case <-ctx.Done():
				slowCanceled.Store(true)
				return ctx.Err()
			case <-time.After(10 * time.Second):
				return nil
			}
		},
	}

	start := time.Now()
	result, err := NewOrchestrator().WithRoot(root).WithExecutor(fake).Run(context.Background(), newConfig("src/*.cpp"))
	require.Error(t, err)
	require.Less(t, time.Since(start), 5*time.Second)
	require.True(t, slowCanceled.Load())
	require.Equal(t, 1, result.Failed)
	require.Equal(t, 1, result.Canceled)
	require.NoFileExists(t, filepath.Join(root, "build", "slow.cpp.o"))
}

func TestRun_CollectPolicyRunsEverything(t *testing.T) {
	root := newProject(t, "src/ok.cpp", "src/bad1.cpp", "src/bad2.cpp")
	fake := &sparktest.FakeCompiler{Fail: func(src string) bool { return strings.HasPrefix(filepath.Base(src), "bad") }}
	cfg := newConfig("src/*.cpp")
	cfg.FailurePolicy = config.CollectAll

	result, err := NewOrchestrator().WithRoot(root).WithExecutor(fake).Run(context.Background(), cfg)
	require.Error(t, err)
	require.True(t, serrors.HasCategory(err, serrors.CategoryCompile))
	require.EqualValues(t, 3, fake.Launches())
	require.Equal(t, 2, result.Failed)
	require.Equal(t, 1, result.Succeeded)
	require.Zero(t, result.Canceled)
	require.FileExists(t, filepath.Join(root, "build", "ok.cpp.o"))
}

func TestRun_DispatchesWithoutWaitingForSlowPatterns(t *testing.T) {
	root := newProject(t, "fast/a.cpp", "slow/b.cpp")
	release := make(chan struct{})
	aStarted := make(chan struct{})
	var once sync.Once
	rep := &status.Recorder{}

	factory := func(root string, _ *config.Config) *discovery.Discoverer {
		return discovery.New(root).WithGlobFunc(func(pattern string) ([]string, error) {
			if strings.HasSuffix(pattern, filepath.Join("slow", "*.cpp")) {
				<-release
				return []string{filepath.Join(root, "slow", "b.cpp")}, nil
			}
			return []string{filepath.Join(root, "fast", "a.cpp")}, nil
		})
	}
	fake := &sparktest.FakeCompiler{Before: func(_ context.Context, cmd executor.Command) error {
		if filepath.Base(sparktest.SourceOf(cmd)) == "a.cpp" {
			once.Do(func() { close(aStarted) })
		}
		return nil
	}}

	type outcome struct {
		result *BuildResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := NewOrchestrator().WithRoot(root).WithExecutor(fake).WithReporter(rep).
			WithDiscovererFactory(factory).
			Run(context.Background(), newConfig("slow/*.cpp", "fast/*.cpp"))
		done <- outcome{result, err}
	}()

	select {
	case <-aStarted:
	case <-time.After(5 * time.Second):
		close(release)
		t.Fatal("fast pattern was not compiled while the slow pattern was still expanding")
	}
	require.Equal(t, 1, rep.Count(status.EventStart, "a.cpp"))
	require.Zero(t, rep.Count(status.EventStart, "b.cpp"))

	close(release)
	out := <-done
	require.NoError(t, out.err)
	require.Equal(t, 2, out.result.Succeeded)
}

func TestRun_DuplicateMatchesDispatchTwice(t *testing.T) {
	root := newProject(t, "src/a.cpp")
	fake := &sparktest.FakeCompiler{}
	rep := &status.Recorder{}

	result, err := NewOrchestrator().WithRoot(root).WithExecutor(fake).WithReporter(rep).
		Run(context.Background(), newConfig("src/*.cpp", "src/a.*"))
	require.NoError(t, err)
	require.Equal(t, 2, result.TasksDispatched)
	require.EqualValues(t, 2, fake.Launches())
	require.Equal(t, 2, rep.Count(status.EventStart, "a.cpp"))
}

func TestRun_DedupeDispatchesOnce(t *testing.T) {
	root := newProject(t, "src/a.cpp")
	fake := &sparktest.FakeCompiler{}
	rep := &status.Recorder{}
	cfg := newConfig("src/*.cpp", "src/a.*")
	cfg.Dedupe = true

	_, err := NewOrchestrator().WithRoot(root).WithExecutor(fake).WithReporter(rep).Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, 1, rep.Count(status.EventStart, "a.cpp"))
}

func TestRun_BaseNameCollisionSharesObject(t *testing.T) {
	root := newProject(t, "src/util.cpp", "lib/util.cpp")
	fake := &sparktest.FakeCompiler{}

	result, err := NewOrchestrator().WithRoot(root).WithExecutor(fake).Run(context.Background(), newConfig("src/*.cpp", "lib/*.cpp"))
	require.NoError(t, err)
	require.Equal(t, 2, result.Succeeded)

	objects := map[string]int{}
	for _, c := range fake.Commands() {
		objects[sparktest.ObjectOf(c)]++
	}
	require.Equal(t, map[string]int{filepath.Join(root, "build", "util.cpp.o"): 2}, objects)
}

func TestRun_DiscoveryErrorsAreSurfaced(t *testing.T) {
	root := newProject(t, "src/a.cpp")
	fake := &sparktest.FakeCompiler{}

	result, err := NewOrchestrator().WithRoot(root).WithExecutor(fake).Run(context.Background(), newConfig("src/[", "src/*.cpp"))
	require.NoError(t, err)
	require.Equal(t, BuildStatusSuccess, result.Status)
	require.Len(t, result.DiscoveryErrors, 1)
	require.True(t, serrors.HasCategory(result.DiscoveryErrors[0], serrors.CategoryDiscovery))
	require.EqualValues(t, 1, fake.Launches())
}

func TestRun_JobsBound(t *testing.T) {
	root := newProject(t, "src/a.cpp", "src/b.cpp", "src/c.cpp", "src/d.cpp", "src/e.cpp", "src/f.cpp")
	var current, peak atomic.Int32

	fake := &sparktest.FakeCompiler{Before: func(context.Context, executor.Command) error {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		current.Add(-1)
		return nil
	}}
	cfg := newConfig("src/*.cpp")
	cfg.Jobs = 2

	result, err := NewOrchestrator().WithRoot(root).WithExecutor(fake).Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, 6, result.Succeeded)
	require.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRun_TaskTimeout(t *testing.T) {
	root := newProject(t, "src/hang.cpp")
	fake := &sparktest.FakeCompiler{Before: func(ctx context.Context, _ executor.Command) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	cfg := newConfig("src/*.cpp")
	cfg.SetTaskTimeout(50 * time.Millisecond)

	result, err := NewOrchestrator().WithRoot(root).WithExecutor(fake).Run(context.Background(), cfg)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrTimeout)
	require.Equal(t, 1, result.Failed)
	require.Contains(t, result.Failures[0].Diagnostic, "timed out")
}

func TestRun_LaunchErrorIsCompileFailure(t *testing.T) {
	root := newProject(t, "src/a.cpp")
	cfg := newConfig("src/*.cpp")
	cfg.Compiler = "spark-no-such-compiler-xyz"

	result, err := NewOrchestrator().WithRoot(root).Run(context.Background(), cfg)
	require.Error(t, err)
	require.True(t, serrors.HasCategory(err, serrors.CategoryCompile))
	require.ErrorIs(t, err, executor.ErrCompilerNotFound)
	require.Equal(t, 1, result.Failed)
}

func TestRun_ParentCancellation(t *testing.T) {
	root := newProject(t, "src/a.cpp")
	ctx, cancel := context.WithCancel(context.Background())
	fake := &sparktest.FakeCompiler{Before: func(taskCtx context.Context, _ executor.Command) error {
		cancel()
		<-taskCtx.Done()
		return taskCtx.Err()
	}}

	result, err := NewOrchestrator().WithRoot(root).WithExecutor(fake).Run(ctx, newConfig("src/*.cpp"))
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, BuildStatusCancelled, result.Status)
	require.Equal(t, 1, result.Canceled)
}

func TestRun_RecordsMetrics(t *testing.T) {
	root := newProject(t, "src/a.cpp", "src/b.cpp", "src/bad.cpp")
	reg := prom.NewRegistry()
	rec := metrics.NewPrometheusRecorder(reg)
	fake := &sparktest.FakeCompiler{Fail: func(src string) bool { return filepath.Base(src) == "bad.cpp" }}
	cfg := newConfig("src/*.cpp", "src/[")
	cfg.FailurePolicy = config.CollectAll

	_, err := NewOrchestrator().WithRoot(root).WithExecutor(fake).WithRecorder(rec).Run(context.Background(), cfg)
	require.Error(t, err)

	require.Equal(t, 1, testutil.CollectAndCount(reg, "spark_build_outcomes_total"))
	require.Equal(t, 2, testutil.CollectAndCount(reg, "spark_compile_results_total"))
	require.Equal(t, 1, testutil.CollectAndCount(reg, "spark_discovery_errors_total"))

	expected := `
# HELP spark_build_outcomes_total Build outcomes by final status
# TYPE spark_build_outcomes_total counter
spark_build_outcomes_total{outcome="failed"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "spark_build_outcomes_total"))
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func finishedLine(t *testing.T, logs string) string {
	t.Helper()
	for _, line := range strings.Split(logs, "\n") {
		if strings.Contains(line, `msg="Build finished"`) {
			return line
		}
	}
	t.Fatalf("no build summary logged:\n%s", logs)
	return ""
}

func TestRun_FinishedLogCarriesErrorOnlyOnFailure(t *testing.T) {
	logs := captureLogs(t)
	root := newProject(t, "src/a.cpp")
	_, err := NewOrchestrator().WithRoot(root).WithExecutor(&sparktest.FakeCompiler{}).
		Run(context.Background(), newConfig("src/*.cpp"))
	require.NoError(t, err)
	line := finishedLine(t, logs.String())
	require.Contains(t, line, "status=success")
	require.NotContains(t, line, "error=")

	logs.Reset()
	root = newProject(t, "src/bad.cpp")
	fake := &sparktest.FakeCompiler{Fail: func(string) bool { return true }}
	_, err = NewOrchestrator().WithRoot(root).WithExecutor(fake).Run(context.Background(), newConfig("src/*.cpp"))
	require.Error(t, err)
	line = finishedLine(t, logs.String())
	require.Contains(t, line, "status=failed")
	require.Contains(t, line, "error=")
}
