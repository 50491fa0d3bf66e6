package testutil

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// FileAssertions provides utilities for asserting file system state in tests.
type FileAssertions struct {
	t       *testing.T
	baseDir string
}

// NewFileAssertions creates a new file assertions helper.
func NewFileAssertions(t *testing.T, baseDir string) *FileAssertions {
	return &FileAssertions{t: t, baseDir: baseDir}
}

// AssertFileExists validates that a file exists.
func (fa *FileAssertions) AssertFileExists(relativePath string) *FileAssertions {
	fa.t.Helper()
	fullPath := filepath.Join(fa.baseDir, relativePath)
	if _, err := os.Stat(fullPath); os.IsNotExist(err) {
		fa.t.Errorf("Expected file to exist: %s", fullPath)
	}
	return fa
}

// AssertFileNotExists validates that a file does not exist.
func (fa *FileAssertions) AssertFileNotExists(relativePath string) *FileAssertions {
	fa.t.Helper()
	fullPath := filepath.Join(fa.baseDir, relativePath)
	if _, err := os.Stat(fullPath); err == nil {
		fa.t.Errorf("Expected file to not exist: %s", fullPath)
	}
	return fa
}

// AssertDirExists validates that a directory exists.
func (fa *FileAssertions) AssertDirExists(relativePath string) *FileAssertions {
	fa.t.Helper()
	fullPath := filepath.Join(fa.baseDir, relativePath)
	if stat, err := os.Stat(fullPath); os.IsNotExist(err) {
		fa.t.Errorf("Expected directory to exist: %s", fullPath)
	} else if err == nil && !stat.IsDir() {
		fa.t.Errorf("Expected %s to be a directory, but it's a file", fullPath)
	}
	return fa
}

// AssertDirNotExists validates that nothing exists at relativePath.
func (fa *FileAssertions) AssertDirNotExists(relativePath string) *FileAssertions {
	fa.t.Helper()
	fullPath := filepath.Join(fa.baseDir, relativePath)
	if _, err := os.Stat(fullPath); err == nil {
		fa.t.Errorf("Expected directory to not exist: %s", fullPath)
	}
	return fa
}

// AssertObjects validates that dir holds exactly the named object files.
func (fa *FileAssertions) AssertObjects(relativeDir string, names ...string) *FileAssertions {
	fa.t.Helper()
	want := append([]string(nil), names...)
	sort.Strings(want)
	got := fa.ListObjects(relativeDir)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		fa.t.Errorf("Expected objects %v in %s, found %v", want, relativeDir, got)
	}
	return fa
}

// ListObjects returns the sorted .o file names in a directory.
func (fa *FileAssertions) ListObjects(relativeDir string) []string {
	fa.t.Helper()
	fullPath := filepath.Join(fa.baseDir, relativeDir)

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		fa.t.Logf("Failed to read directory %s: %v", fullPath, err)
		return nil
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".o") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files
}
