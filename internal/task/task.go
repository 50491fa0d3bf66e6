// Package task turns a discovered source file into a compile command.
package task

import (
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/spark/internal/config"
	"git.home.luguber.info/inful/spark/internal/executor"
)

// IncludeSeparator joins include directories into the include-flags string.
const IncludeSeparator = " -I"

// ObjectSuffix is appended to the source base name to form the object file name.
const ObjectSuffix = ".o"

// Task is the unit of work "compile this one source file into one object file".
type Task struct {
	SourcePath   string
	ObjectPath   string
	IncludeFlags string

	includeArgs []string
}

// Label is the name shown to the user for this task.
func (t Task) Label() string {
	return filepath.Base(t.SourcePath)
}

// Build creates a task for sourcePath. ObjectPath depends only on outputDir and
// the source base name, so two sources sharing a base name write the same object.
func Build(sourcePath string, includeDirs []string, outputDir string) Task {
	return BuildWithMode(sourcePath, includeDirs, outputDir, config.IncludeModeLegacy)
}

// BuildWithMode is Build with an explicit include argument mode.
func BuildWithMode(sourcePath string, includeDirs []string, outputDir string, mode config.IncludeMode) Task {
	return Task{
		SourcePath:   sourcePath,
		ObjectPath:   ObjectPath(sourcePath, outputDir),
		IncludeFlags: IncludeFlags(includeDirs),
		includeArgs:  IncludeArgs(includeDirs, mode),
	}
}

// ObjectPath derives outputDir/<base(source)>.o.
func ObjectPath(sourcePath, outputDir string) string {
	return filepath.Join(outputDir, filepath.Base(sourcePath)+ObjectSuffix)
}

// IncludeFlags joins dirs with " -I": the first entry stays bare.
// ["a", "b"] yields "a -Ib".
func IncludeFlags(dirs []string) string {
	return strings.Join(dirs, IncludeSeparator)
}

// IncludeArgs returns the include directories as argv tokens. Legacy mode mirrors
// IncludeFlags (first entry bare, rest -I<dir>); prefixed mode emits -I<dir> for
// every entry. Each directory is one token, spaces included.
func IncludeArgs(dirs []string, mode config.IncludeMode) []string {
	args := make([]string, 0, len(dirs))
	for i, dir := range dirs {
		if i == 0 && mode != config.IncludeModePrefixed {
			args = append(args, dir)
			continue
		}
		args = append(args, "-I"+dir)
	}
	return args
}

// Command builds the compiler invocation as an argument vector:
//
//	<compiler> -std=<std> <include args...> <flags...> -c <source> -o <object>
func (t Task) Command(compiler, std string, flags []string) executor.Command {
	args := make([]string, 0, len(t.includeArgs)+len(flags)+5)
	args = append(args, "-std="+std)
	args = append(args, t.includeArgs...)
	args = append(args, flags...)
	args = append(args, "-c", t.SourcePath, "-o", t.ObjectPath)
	return executor.Command{Name: compiler, Args: args}
}

// Builder creates tasks from a loaded configuration.
type Builder struct {
	cfg *config.Config
}

// NewBuilder returns a Builder bound to cfg.
func NewBuilder(cfg *config.Config) *Builder {
	return &Builder{cfg: cfg}
}

// Build creates the task for one discovered source.
func (b *Builder) Build(sourcePath string) Task {
	return BuildWithMode(sourcePath, b.cfg.IncludeDirs, b.cfg.OutputDir, b.cfg.IncludeMode)
}

// Command returns the compiler invocation for t using the configured toolchain.
func (b *Builder) Command(t Task) executor.Command {
	return t.Command(b.cfg.Compiler, b.cfg.Std, b.cfg.Flags)
}
