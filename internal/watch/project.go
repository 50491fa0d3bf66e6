package watch

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"git.home.luguber.info/inful/spark/internal/config"
)

// Project maps a configuration onto watch targets.
type Project struct {
	// Root resolves relative patterns, include dirs and output_dir.
	Root   string
	Config *config.Config
}

func (p Project) abs(path string) string {
	if !filepath.IsAbs(path) {
		path = filepath.Join(p.Root, path)
	}
	if a, err := filepath.Abs(path); err == nil {
		return a
	}
	return path
}

func (p Project) patterns() []string {
	out := make([]string, 0, len(p.Config.SrcDirs))
	for _, pat := range p.Config.SrcDirs {
		out = append(out, p.abs(pat))
	}
	return out
}

// Filter accepts sources matched by a pattern, anything under an include
// directory, and the configuration file itself.
func (p Project) Filter() Filter {
	patterns := p.patterns()
	includes := make([]string, 0, len(p.Config.IncludeDirs))
	for _, dir := range p.Config.IncludeDirs {
		includes = append(includes, p.abs(dir))
	}
	cfgPath := ""
	if p.Config.Path != "" {
		cfgPath = p.abs(p.Config.Path)
	}

	return func(path string) bool {
		if cfgPath != "" && path == cfgPath {
			return true
		}
		for _, pat := range patterns {
			if ok, _ := doublestar.PathMatch(pat, path); ok {
				return true
			}
		}
		for _, inc := range includes {
			if strings.HasPrefix(path, inc+string(filepath.Separator)) {
				return true
			}
		}
		return false
	}
}

// Register adds every directory the project can change through to w and
// excludes the output directory.
func (p Project) Register(w *Watcher) error {
	w.Exclude(p.abs(p.Config.OutputDir))

	for _, pat := range p.patterns() {
		base, _ := doublestar.SplitPattern(filepath.ToSlash(pat))
		if err := w.AddTree(filepath.FromSlash(base)); err != nil {
			return err
		}
	}
	for _, dir := range p.Config.IncludeDirs {
		if err := w.AddTree(p.abs(dir)); err != nil {
			return err
		}
	}
	if p.Config.Path != "" {
		if err := w.AddDir(filepath.Dir(p.abs(p.Config.Path))); err != nil {
			return err
		}
	}
	return nil
}
