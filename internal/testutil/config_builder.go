package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/spark/internal/config"
)

// ConfigBuilder provides a fluent interface for creating test configurations.
// The zero setup compiles src/*.cpp with include dir inc into build.
type ConfigBuilder struct {
	config  *config.Config
	timeout time.Duration
}

// NewConfigBuilder creates a builder with defaults already applied.
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{
		config: &config.Config{
			SrcDirs:       []string{"src/*.cpp"},
			IncludeDirs:   []string{"inc"},
			OutputDir:     "build",
			Compiler:      config.DefaultCompiler,
			Std:           config.DefaultStd,
			IncludeMode:   config.IncludeModeLegacy,
			FailurePolicy: config.FailFast,
		},
	}
}

// WithSources replaces the source patterns.
func (cb *ConfigBuilder) WithSources(patterns ...string) *ConfigBuilder {
	cb.config.SrcDirs = patterns
	return cb
}

// WithIncludeDirs replaces the include directories (none when empty).
func (cb *ConfigBuilder) WithIncludeDirs(dirs ...string) *ConfigBuilder {
	cb.config.IncludeDirs = dirs
	return cb
}

// WithOutputDir sets the object directory.
func (cb *ConfigBuilder) WithOutputDir(dir string) *ConfigBuilder {
	cb.config.OutputDir = dir
	return cb
}

// WithCompiler sets the compiler binary.
func (cb *ConfigBuilder) WithCompiler(name string) *ConfigBuilder {
	cb.config.Compiler = name
	return cb
}

// WithJobs bounds concurrent compiles.
func (cb *ConfigBuilder) WithJobs(n int) *ConfigBuilder {
	cb.config.Jobs = n
	return cb
}

// WithFailurePolicy sets fail_fast or collect.
func (cb *ConfigBuilder) WithFailurePolicy(p config.FailurePolicy) *ConfigBuilder {
	cb.config.FailurePolicy = p
	return cb
}

// WithDedupe toggles cross-pattern deduplication.
func (cb *ConfigBuilder) WithDedupe(enabled bool) *ConfigBuilder {
	cb.config.Dedupe = enabled
	return cb
}

// WithIncludeMode sets legacy or prefixed include arguments.
func (cb *ConfigBuilder) WithIncludeMode(m config.IncludeMode) *ConfigBuilder {
	cb.config.IncludeMode = m
	return cb
}

// WithTimeout sets the per-task timeout.
func (cb *ConfigBuilder) WithTimeout(d time.Duration) *ConfigBuilder {
	cb.timeout = d
	if d > 0 {
		cb.config.Timeout = d.String()
	}
	return cb
}

// Build returns a copy of the configuration.
func (cb *ConfigBuilder) Build() *config.Config {
	cfg := *cb.config
	cfg.SetTaskTimeout(cb.timeout)
	return &cfg
}

// WriteYAML writes the configuration as spark.yaml in dir and returns its path.
func (cb *ConfigBuilder) WriteYAML(t *testing.T, dir string) string {
	t.Helper()
	data, err := yaml.Marshal(cb.config)
	if err != nil {
		t.Fatalf("Failed to marshal config: %v", err)
	}
	path := filepath.Join(dir, config.DefaultFileNames[0])
	if err := os.WriteFile(path, data, testFilePermissions); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}
