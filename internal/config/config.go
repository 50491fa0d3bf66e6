// Package config loads and validates the project build configuration.
//
// The configuration lives in a single file at the project root (spark.yaml by
// default). Three fields are required: src_dirs, include_dirs and output_dir.
// Everything else is optional and defaulted.
package config

import (
	"strings"
	"time"
)

// DefaultFileNames are tried, in order, relative to the project root.
var DefaultFileNames = []string{"spark.yaml", "spark.yml", "spark.hcl"}

// Config represents the project build configuration. It is immutable once Load returns.
type Config struct {
	SrcDirs     []string `yaml:"src_dirs"`
	IncludeDirs []string `yaml:"include_dirs"`
	OutputDir   string   `yaml:"output_dir"`

	Compiler      string        `yaml:"compiler,omitempty"`
	Std           string        `yaml:"std,omitempty"`
	Flags         []string      `yaml:"flags,omitempty"`
	Jobs          int           `yaml:"jobs,omitempty"`    // 0 = unbounded
	Timeout       string        `yaml:"timeout,omitempty"` // per task, empty = none
	IncludeMode   IncludeMode   `yaml:"include_mode,omitempty"`
	Dedupe        bool          `yaml:"dedupe,omitempty"`
	FailurePolicy FailurePolicy `yaml:"failure_policy,omitempty"`

	// Path is the file the configuration was read from.
	Path string `yaml:"-"`

	timeout time.Duration
}

// TaskTimeout returns the parsed per-task timeout (0 when unset).
func (c *Config) TaskTimeout() time.Duration {
	return c.timeout
}

// SetTaskTimeout overrides the per-task timeout of an already loaded config.
func (c *Config) SetTaskTimeout(d time.Duration) {
	c.timeout = d
}

// IncludeMode controls how include_dirs are turned into compiler arguments.
type IncludeMode string

const (
	// IncludeModeLegacy emits the first directory bare and prefixes the rest with -I,
	// matching existing build scripts byte for byte.
	IncludeModeLegacy IncludeMode = "legacy"
	// IncludeModePrefixed emits -I<dir> for every directory.
	IncludeModePrefixed IncludeMode = "prefixed"
)

// NormalizeIncludeMode canonicalizes user input returning empty string if unknown.
func NormalizeIncludeMode(raw string) IncludeMode {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(IncludeModeLegacy):
		return IncludeModeLegacy
	case string(IncludeModePrefixed):
		return IncludeModePrefixed
	default:
		return ""
	}
}

// FailurePolicy decides what happens after the first compile failure.
type FailurePolicy string

const (
	// FailFast stops dispatching and cancels in-flight compiles on the first failure.
	FailFast FailurePolicy = "fail_fast"
	// CollectAll lets every task finish and reports all failures at the end.
	CollectAll FailurePolicy = "collect"
)

// NormalizeFailurePolicy canonicalizes user input returning empty string if unknown.
func NormalizeFailurePolicy(raw string) FailurePolicy {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(FailFast), "fail-fast", "failfast":
		return FailFast
	case string(CollectAll), "collect_all", "collect-all":
		return CollectAll
	default:
		return ""
	}
}
