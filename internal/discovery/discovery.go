// Package discovery expands source glob patterns into concrete file paths.
//
// Each pattern is expanded on its own goroutine and reported as soon as it
// completes, so callers can start work on fast patterns while slow ones are
// still walking the tree. Matches are not deduplicated across patterns unless
// asked to.
package discovery

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	serrors "git.home.luguber.info/inful/spark/internal/errors"
)

// PatternResult is the outcome of expanding one pattern.
type PatternResult struct {
	// Index is the pattern's position in the configured list.
	Index   int
	Pattern string
	// Files holds absolute paths of regular files, sorted.
	Files []string
	// Err is a discovery-category ClassifiedError when expansion failed.
	Err error
}

// GlobFunc expands one absolute pattern. It exists so tests can inject slow or
// failing expansions.
type GlobFunc func(pattern string) ([]string, error)

// Discoverer expands patterns relative to a root directory.
type Discoverer struct {
	root   string
	dedupe bool
	glob   GlobFunc

	mu   sync.Mutex
	seen map[string]struct{}
}

// New creates a Discoverer resolving relative patterns against root
// (the working directory when empty).
func New(root string) *Discoverer {
	return &Discoverer{
		root: root,
		glob: defaultGlob,
	}
}

// WithDedupe drops files already claimed by another pattern in the same run.
func (d *Discoverer) WithDedupe(enabled bool) *Discoverer {
	d.dedupe = enabled
	return d
}

// WithGlobFunc replaces the filesystem expansion (for testing).
func (d *Discoverer) WithGlobFunc(fn GlobFunc) *Discoverer {
	if fn != nil {
		d.glob = fn
	}
	return d
}

func defaultGlob(pattern string) ([]string, error) {
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())
	if err != nil {
		return nil, err
	}
	return visibleMatches(pattern, matches), nil
}

// visibleMatches drops matches where a wildcard would have to cover a leading
// dot. Like a shell, "src/*.cpp" skips src/.hidden.cpp and "**" does not
// descend into hidden directories; "src/.*.cpp" still selects dotfiles.
func visibleMatches(pattern string, matches []string) []string {
	base, rest := doublestar.SplitPattern(filepath.ToSlash(pattern))
	patSegs := strings.Split(rest, "/")

	out := matches[:0]
	for _, m := range matches {
		rel, err := filepath.Rel(filepath.FromSlash(base), m)
		if err != nil {
			out = append(out, m)
			continue
		}
		if visible(patSegs, strings.Split(filepath.ToSlash(rel), "/")) {
			out = append(out, m)
		}
	}
	return out
}

func visible(patSegs, pathSegs []string) bool {
	if len(patSegs) == 0 {
		return len(pathSegs) == 0
	}
	if patSegs[0] == "**" {
		if visible(patSegs[1:], pathSegs) {
			return true
		}
		return len(pathSegs) > 0 && !strings.HasPrefix(pathSegs[0], ".") && visible(patSegs, pathSegs[1:])
	}
	if len(pathSegs) == 0 {
		return false
	}
	seg := pathSegs[0]
	if strings.HasPrefix(seg, ".") && !strings.HasPrefix(patSegs[0], ".") {
		return false
	}
	if ok, err := doublestar.Match(patSegs[0], seg); err != nil || !ok {
		return false
	}
	return visible(patSegs[1:], pathSegs[1:])
}

// Discover expands every pattern concurrently. One result per pattern is sent on
// the returned channel in completion order; the channel is closed once all
// patterns are done. Cancelling ctx drops results that were not yet produced.
func (d *Discoverer) Discover(ctx context.Context, patterns []string) <-chan PatternResult {
	d.mu.Lock()
	d.seen = make(map[string]struct{})
	d.mu.Unlock()

	out := make(chan PatternResult, len(patterns))
	var wg sync.WaitGroup
	for i, pattern := range patterns {
		wg.Add(1)
		go func(i int, pattern string) {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			res := d.expand(i, pattern)
			select {
			case out <- res:
			case <-ctx.Done():
			}
		}(i, pattern)
	}

	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// DiscoverAll expands every pattern and returns the results in pattern order.
func (d *Discoverer) DiscoverAll(ctx context.Context, patterns []string) []PatternResult {
	results := make([]PatternResult, len(patterns))
	for res := range d.Discover(ctx, patterns) {
		results[res.Index] = res
	}
	return results
}

func (d *Discoverer) expand(index int, pattern string) PatternResult {
	res := PatternResult{Index: index, Pattern: pattern}

	abs := pattern
	if !filepath.IsAbs(abs) {
		root := d.root
		if root == "" {
			root = "."
		}
		abs = filepath.Join(root, pattern)
	}

	matches, err := d.glob(abs)
	if err != nil {
		res.Err = serrors.DiscoveryFailure(pattern, err).Build()
		return res
	}

	files := make([]string, 0, len(matches))
	for _, m := range matches {
		p, err := filepath.Abs(m)
		if err != nil {
			p = m
		}
		if d.dedupe && !d.claim(p) {
			continue
		}
		files = append(files, p)
	}
	sort.Strings(files)
	res.Files = files
	return res
}

func (d *Discoverer) claim(path string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[path]; ok {
		return false
	}
	d.seen[path] = struct{}{}
	return true
}
