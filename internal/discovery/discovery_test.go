package discovery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	serrors "git.home.luguber.info/inful/spark/internal/errors"
)

func touch(t *testing.T, root string, rel ...string) {
	t.Helper()
	for _, r := range rel {
		p := filepath.Join(root, r)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(t, os.WriteFile(p, []byte("int x;\n"), 0o600))
	}
}

func TestDiscoverAll_Globs(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "src/a.cpp", "src/b.cpp", "src/readme.md", "src/deep/c.cpp", "src/deep/deeper/d.cpp", "lib/x1.cc")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "dir.cpp"), 0o750))

	d := New(root)
	results := d.DiscoverAll(context.Background(), []string{"src/*.cpp", "src/**/*.cpp", "lib/x?.cc"})
	require.Len(t, results, 3)

	require.NoError(t, results[0].Err)
	require.Equal(t, []string{
		filepath.Join(root, "src", "a.cpp"),
		filepath.Join(root, "src", "b.cpp"),
	}, results[0].Files, "directories must not be reported as sources")

	require.NoError(t, results[1].Err)
	require.Len(t, results[1].Files, 4)
	require.Contains(t, results[1].Files, filepath.Join(root, "src", "deep", "deeper", "d.cpp"))

	require.Equal(t, []string{filepath.Join(root, "lib", "x1.cc")}, results[2].Files)
	for _, res := range results {
		for _, f := range res.Files {
			require.True(t, filepath.IsAbs(f))
		}
	}
}

func TestDiscoverAll_SkipsHiddenFiles(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "src/a.cpp", "src/.hidden.cpp", "src/.#a.cpp", "src/.git/objects/x.cpp", "src/deep/b.cpp")

	results := New(root).DiscoverAll(context.Background(), []string{"src/*.cpp", "src/**/*.cpp", "src/.*.cpp"})

	require.Equal(t, []string{filepath.Join(root, "src", "a.cpp")}, results[0].Files)
	require.Equal(t, []string{
		filepath.Join(root, "src", "a.cpp"),
		filepath.Join(root, "src", "deep", "b.cpp"),
	}, results[1].Files, "** must not descend into hidden directories")
	require.Equal(t, []string{
		filepath.Join(root, "src", ".#a.cpp"),
		filepath.Join(root, "src", ".hidden.cpp"),
	}, results[2].Files, "an explicit leading dot selects dotfiles")
}

func TestDiscoverAll_HiddenProjectRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), ".work")
	touch(t, root, "src/a.cpp")

	results := New(root).DiscoverAll(context.Background(), []string{"src/*.cpp"})
	require.Equal(t, []string{filepath.Join(root, "src", "a.cpp")}, results[0].Files)
}

func TestDiscoverAll_NoDedupeByDefault(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "src/a.cpp")

	results := New(root).DiscoverAll(context.Background(), []string{"src/*.cpp", "src/a.*"})
	require.Equal(t, results[0].Files, results[1].Files)
	require.Len(t, results[0].Files, 1)
}

func TestDiscoverAll_Dedupe(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "src/a.cpp", "src/b.cpp")

	results := New(root).WithDedupe(true).DiscoverAll(context.Background(), []string{"src/*.cpp", "src/a.*"})
	total := len(results[0].Files) + len(results[1].Files)
	require.Equal(t, 2, total, "each file claimed by exactly one pattern")
}

func TestDiscoverAll_AbsolutePattern(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "src/a.cpp")

	results := New("/nonexistent").DiscoverAll(context.Background(), []string{filepath.Join(root, "src", "*.cpp")})
	require.Equal(t, []string{filepath.Join(root, "src", "a.cpp")}, results[0].Files)
}

func TestDiscover_ErrorsSurfacedNotFatal(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "src/a.cpp")

	results := New(root).DiscoverAll(context.Background(), []string{"src/[", "src/*.cpp"})

	require.Error(t, results[0].Err)
	require.True(t, serrors.HasCategory(results[0].Err, serrors.CategoryDiscovery))
	require.Empty(t, results[0].Files)

	require.NoError(t, results[1].Err)
	require.Len(t, results[1].Files, 1)
}

func TestDiscover_InjectedFailure(t *testing.T) {
	boom := errors.New("permission denied")
	d := New("/root").WithGlobFunc(func(pattern string) ([]string, error) {
		if strings.HasSuffix(pattern, "bad") {
			return nil, boom
		}
		return []string{pattern + ".cpp"}, nil
	})

	results := d.DiscoverAll(context.Background(), []string{"good", "bad"})
	require.NoError(t, results[0].Err)
	require.ErrorIs(t, results[1].Err, boom)
	c, ok := serrors.AsClassified(results[1].Err)
	require.True(t, ok)
	pattern, _ := c.Context().GetString("pattern")
	require.Equal(t, "bad", pattern)
}

func TestDiscover_StreamsInCompletionOrder(t *testing.T) {
	release := make(chan struct{})
	d := New("/p").WithGlobFunc(func(pattern string) ([]string, error) {
		if strings.HasSuffix(pattern, "slow") {
			<-release
		}
		return []string{pattern}, nil
	})

	ch := d.Discover(context.Background(), []string{"slow", "fast"})

	select {
	case first := <-ch:
		require.Equal(t, "fast", first.Pattern, "fast pattern must not wait for the slow one")
	case <-time.After(2 * time.Second):
		t.Fatal("fast pattern result was not delivered")
	}

	close(release)
	second, ok := <-ch
	require.True(t, ok)
	require.Equal(t, "slow", second.Pattern)

	_, ok = <-ch
	require.False(t, ok, "channel closes after all patterns")
}

func TestDiscover_EmptyPatterns(t *testing.T) {
	ch := New("").Discover(context.Background(), nil)
	_, ok := <-ch
	require.False(t, ok)
}
