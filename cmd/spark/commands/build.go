package commands

import (
	"context"
	"log/slog"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/spark/internal/build"
	"git.home.luguber.info/inful/spark/internal/config"
	serrors "git.home.luguber.info/inful/spark/internal/errors"
	"git.home.luguber.info/inful/spark/internal/executor"
	"git.home.luguber.info/inful/spark/internal/logfields"
	"git.home.luguber.info/inful/spark/internal/metrics"
	"git.home.luguber.info/inful/spark/internal/status"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Jobs        int    `short:"j" help:"Maximum concurrent compiler processes (overrides config jobs; 0 keeps it)"`
	KeepGoing   bool   `short:"k" name:"keep-going" help:"Let every task finish and report all failures (failure_policy: collect)"`
	NoBanner    bool   `name:"no-banner" help:"Do not print the banner"`
	Plain       bool   `help:"Disable coloured output"`
	MetricsFile string `name:"metrics-file" help:"Write Prometheus metrics for this build to a textfile" type:"path"`
}

// compilerExecutor overrides the process runner when non-nil (tests only).
var compilerExecutor executor.ProcessExecutor

// Validate rejects flag values kong cannot check on its own.
func (b *BuildCmd) Validate() error {
	if b.Jobs < 0 {
		return serrors.NewError(serrors.CategoryValidation, "--jobs must not be negative").
			WithContext("jobs", b.Jobs).
			Build()
	}
	return nil
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	console := status.NewConsoleReporter(g.Stdout, !b.Plain)
	if !b.NoBanner {
		console.Banner()
	}

	cfg, err := root.loadConfig(g)
	if err != nil {
		console.Fail(root.configLabel(), err.Error())
		return err
	}
	b.applyOverrides(cfg)

	var reg *prom.Registry
	var recorder metrics.Recorder = metrics.NoopRecorder{}
	if b.MetricsFile != "" {
		reg = prom.NewRegistry()
		recorder = metrics.NewPrometheusRecorder(reg)
	}

	orch := build.NewOrchestrator().
		WithRoot(g.WorkDir).
		WithExecutor(compilerExecutor).
		WithReporter(root.reporter(g, console)).
		WithRecorder(recorder)

	_, err = RunBuild(g.Ctx, orch, cfg, console)

	if reg != nil {
		if werr := metrics.WriteTextfile(reg, b.MetricsFile); werr != nil {
			slog.Warn("Failed to write metrics file", logfields.Path(b.MetricsFile), logfields.Error(werr))
		}
	}
	return err
}

func (b *BuildCmd) applyOverrides(cfg *config.Config) {
	if b.Jobs > 0 {
		cfg.Jobs = b.Jobs
	}
	if b.KeepGoing {
		cfg.FailurePolicy = config.CollectAll
	}
}

// RunBuild runs one build and prints its summary line.
func RunBuild(ctx context.Context, svc build.Service, cfg *config.Config, console *status.ConsoleReporter) (*build.BuildResult, error) {
	result, err := svc.Run(ctx, cfg)
	if result != nil && console != nil {
		console.Summary(status.Summary{
			Status:          string(result.Status),
			Succeeded:       result.Succeeded,
			Failed:          result.Failed,
			Canceled:        result.Canceled,
			DiscoveryErrors: len(result.DiscoveryErrors),
			Duration:        result.Duration,
		})
	}
	return result, err
}
