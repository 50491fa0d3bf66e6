// Package commands implements the spark command line.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/spark/internal/config"
	serrors "git.home.luguber.info/inful/spark/internal/errors"
	"git.home.luguber.info/inful/spark/internal/observability"
	"git.home.luguber.info/inful/spark/internal/status"
	"git.home.luguber.info/inful/spark/internal/version"
)

// Global carries process-wide state into every command.
type Global struct {
	Ctx    context.Context
	Stdout io.Writer
	Stderr io.Writer
	// WorkDir is the project root: config lookup, patterns and output_dir resolve against it.
	WorkDir string
	Logger  *slog.Logger
}

// CLI definition & global flags.
type CLI struct {
	Config    string           `short:"c" help:"Configuration file path (default: spark.yaml, spark.yml or spark.hcl in the working directory)" type:"path"`
	Verbose   bool             `short:"v" help:"Enable verbose logging"`
	LogFormat string           `name:"log-format" help:"Log output format" enum:"text,json" default:"text"`
	Version   kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build    BuildCmd    `cmd:"" default:"withargs" help:"Compile all configured sources (default command)"`
	Init     InitCmd     `cmd:"" help:"Write an example configuration file"`
	Discover DiscoverCmd `cmd:"" help:"List the sources each pattern matches without compiling"`
	Watch    WatchCmd    `cmd:"" help:"Build, then rebuild whenever sources or configuration change"`
}

// AfterApply runs after flag parsing; setup logging once.
func (c *CLI) AfterApply(g *Global) error {
	level := observability.ParseLogLevel(c.Verbose)
	g.Logger = observability.NewLogger(level, c.LogFormat, g.Stderr)
	slog.SetDefault(g.Logger)
	return nil
}

// loadConfig reads --config when given, otherwise the default file in the project root.
func (c *CLI) loadConfig(g *Global) (*config.Config, error) {
	if c.Config != "" {
		return config.LoadFile(c.Config)
	}
	return config.Load(g.WorkDir)
}

// reporter returns the console reporter, echoed to the log when --verbose is set.
func (c *CLI) reporter(g *Global, console *status.ConsoleReporter) status.Reporter {
	if c.Verbose {
		return status.Multi{console, status.NewSlogReporter(g.Logger)}
	}
	return console
}

// configLabel names the configuration in status output.
func (c *CLI) configLabel() string {
	if c.Config != "" {
		return c.Config
	}
	return config.DefaultFileNames[0]
}

// Execute parses args, runs the selected command and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	wd, err := os.Getwd()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	g := &Global{Ctx: ctx, Stdout: stdout, Stderr: stderr, WorkDir: wd, Logger: slog.Default()}
	cli := &CLI{}

	exitCode := -1
	parser, err := kong.New(cli,
		kong.Name("spark"),
		kong.Description("Compile C++ sources into object files."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
		kong.Bind(g),
		kong.Writers(stdout, stderr),
		kong.Exit(func(code int) {
			if exitCode < 0 {
				exitCode = code
			}
		}),
	)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	kctx, err := parser.Parse(args)
	if exitCode >= 0 {
		// --help or --version
		return exitCode
	}
	if err != nil {
		parser.Errorf("%s", err)
		return serrors.NewCLIErrorAdapter(false, nil).ExitCodeFor(usageError(err))
	}

	if err := kctx.Run(cli); err != nil {
		code := 0
		serrors.NewCLIErrorAdapter(cli.Verbose, g.Logger).
			WithOutput(stderr, func(c int) { code = c }).
			HandleError(err)
		return code
	}
	return 0
}

// usageError classifies a parse failure as invalid usage unless a command's
// Validate hook already classified it.
func usageError(err error) error {
	if serrors.IsClassified(err) {
		return err
	}
	return serrors.WrapError(err, serrors.CategoryValidation, "invalid command line").Build()
}
