package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// Project is a temporary source tree.
type Project struct {
	t    *testing.T
	Root string
}

// NewProject creates a temporary project holding the given source files.
func NewProject(t *testing.T, sources ...string) *Project {
	t.Helper()
	p := &Project{t: t, Root: t.TempDir()}
	for _, s := range sources {
		p.WriteFile(s, "int main() { return 0; }\n")
	}
	return p
}

// WriteFile writes content to rel, creating parent directories.
func (p *Project) WriteFile(rel, content string) string {
	p.t.Helper()
	path := p.Path(rel)
	if err := os.MkdirAll(filepath.Dir(path), testDirPermissions); err != nil {
		p.t.Fatalf("Failed to create directory for %s: %v", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), testFilePermissions); err != nil {
		p.t.Fatalf("Failed to write %s: %v", rel, err)
	}
	return path
}

// Path joins rel onto the project root.
func (p *Project) Path(rel ...string) string {
	return filepath.Join(append([]string{p.Root}, rel...)...)
}

// Assert returns file assertions rooted at the project.
func (p *Project) Assert() *FileAssertions {
	return NewFileAssertions(p.t, p.Root)
}
