package commands

import (
	"fmt"
	"path/filepath"

	"git.home.luguber.info/inful/spark/internal/discovery"
	serrors "git.home.luguber.info/inful/spark/internal/errors"
)

// DiscoverCmd implements the 'discover' command.
type DiscoverCmd struct {
	Absolute bool `short:"a" help:"Print absolute paths"`
}

// Run prints each pattern with its matches. Pattern errors are printed too and
// do not fail the command, the same way a build treats them.
func (d *DiscoverCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig(g)
	if err != nil {
		return err
	}

	results := discovery.New(g.WorkDir).WithDedupe(cfg.Dedupe).DiscoverAll(g.Ctx, cfg.SrcDirs)
	total := 0
	for _, res := range results {
		if res.Err != nil {
			msg := res.Err.Error()
			if c, ok := serrors.AsClassified(res.Err); ok && c.Cause() != nil {
				msg = c.Cause().Error()
			}
			_, _ = fmt.Fprintf(g.Stdout, "%s: error: %s\n", res.Pattern, msg)
			continue
		}
		_, _ = fmt.Fprintf(g.Stdout, "%s (%d)\n", res.Pattern, len(res.Files))
		for _, f := range res.Files {
			_, _ = fmt.Fprintf(g.Stdout, "  %s\n", d.display(g.WorkDir, f))
		}
		total += len(res.Files)
	}
	_, _ = fmt.Fprintf(g.Stdout, "%d sources\n", total)
	return nil
}

func (d *DiscoverCmd) display(root, path string) string {
	if d.Absolute {
		return path
	}
	if rel, err := filepath.Rel(root, path); err == nil {
		return rel
	}
	return path
}
