package config

import (
	"time"

	serrors "git.home.luguber.info/inful/spark/internal/errors"
)

const (
	DefaultCompiler = "g++"
	DefaultStd      = "c++17"
)

// applyDefaults fills optional fields. Unknown enum values fall back to their
// defaults rather than failing the load.
func applyDefaults(cfg *Config) error {
	if cfg.Compiler == "" {
		cfg.Compiler = DefaultCompiler
	}
	if cfg.Std == "" {
		cfg.Std = DefaultStd
	}
	if cfg.Jobs < 0 {
		cfg.Jobs = 0
	}

	if m := NormalizeIncludeMode(string(cfg.IncludeMode)); m != "" {
		cfg.IncludeMode = m
	} else {
		cfg.IncludeMode = IncludeModeLegacy
	}

	if p := NormalizeFailurePolicy(string(cfg.FailurePolicy)); p != "" {
		cfg.FailurePolicy = p
	} else {
		cfg.FailurePolicy = FailFast
	}

	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil || d < 0 {
			return serrors.ConfigInvalid("invalid timeout").
				WithContext("field", "timeout").
				WithContext("value", cfg.Timeout).
				Build()
		}
		cfg.timeout = d
	}
	return nil
}
