package commands

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/spark/internal/build"
	"git.home.luguber.info/inful/spark/internal/config"
	serrors "git.home.luguber.info/inful/spark/internal/errors"
	"git.home.luguber.info/inful/spark/internal/logfields"
	"git.home.luguber.info/inful/spark/internal/metrics"
	"git.home.luguber.info/inful/spark/internal/status"
	"git.home.luguber.info/inful/spark/internal/watch"
)

// WatchCmd implements the 'watch' command. Every rebuild is a full build.
type WatchCmd struct {
	Debounce    time.Duration `help:"Quiet period before a rebuild starts" default:"300ms"`
	MetricsAddr string        `name:"metrics-addr" help:"Serve Prometheus metrics on this address while watching (e.g. :9464)"`
	NoBanner    bool          `name:"no-banner" help:"Do not print the banner"`
	Plain       bool          `help:"Disable coloured output"`
}

func (w *WatchCmd) Validate() error {
	if w.Debounce < 0 {
		return serrors.NewError(serrors.CategoryValidation, "--debounce must not be negative").Build()
	}
	return nil
}

func (w *WatchCmd) Run(g *Global, root *CLI) error {
	console := status.NewConsoleReporter(g.Stdout, !w.Plain)
	if !w.NoBanner {
		console.Banner()
	}

	cfg, err := root.loadConfig(g)
	if err != nil {
		console.Fail(root.configLabel(), err.Error())
		return err
	}

	reg := prom.NewRegistry()
	orch := build.NewOrchestrator().
		WithRoot(g.WorkDir).
		WithExecutor(compilerExecutor).
		WithReporter(root.reporter(g, console)).
		WithRecorder(metrics.NewPrometheusRecorder(reg))

	if w.MetricsAddr != "" {
		stop := serveMetrics(w.MetricsAddr, reg)
		defer stop()
	}

	watchBuild(g.Ctx, orch, cfg, console)

	// the watch set follows the initial configuration; restart to pick up new patterns
	project := watch.Project{Root: g.WorkDir, Config: cfg}
	watcher, err := watch.New(w.Debounce, project.Filter())
	if err != nil {
		return err
	}
	if err := project.Register(watcher); err != nil {
		_ = watcher.Close()
		return err
	}
	slog.Info("Watching for changes", logfields.Count(watcher.Dirs()))

	return watcher.Run(g.Ctx, func(ctx context.Context) {
		next, err := root.loadConfig(g)
		if err != nil {
			// keep building with the last good configuration
			console.Fail(root.configLabel(), err.Error())
			return
		}
		cfg = next
		watchBuild(ctx, orch, cfg, console)
	})
}

// watchBuild runs one build; failures are reported and the watch continues.
func watchBuild(ctx context.Context, orch *build.Orchestrator, cfg *config.Config, console *status.ConsoleReporter) {
	if _, err := RunBuild(ctx, orch, cfg, console); err != nil && ctx.Err() == nil {
		slog.Warn("Build failed; waiting for changes", logfields.Error(err))
	}
}

func serveMetrics(addr string, reg *prom.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler(reg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		slog.Info("Serving metrics", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", logfields.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
