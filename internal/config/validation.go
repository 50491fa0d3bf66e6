package config

import (
	serrors "git.home.luguber.info/inful/spark/internal/errors"
)

// Validate checks that every required field is present and non-empty. Nothing
// else is checked: paths are not required to exist and entries are not inspected.
func Validate(cfg *Config) error {
	if cfg == nil {
		return serrors.ConfigInvalid("configuration is empty").Build()
	}

	switch {
	case len(cfg.SrcDirs) == 0:
		return requiredErr(cfg, "src_dirs")
	case len(cfg.IncludeDirs) == 0:
		return requiredErr(cfg, "include_dirs")
	case cfg.OutputDir == "":
		return requiredErr(cfg, "output_dir")
	}
	return nil
}

func requiredErr(cfg *Config, field string) error {
	b := serrors.ConfigRequired(field)
	if cfg.Path != "" {
		b = b.WithContext("path", cfg.Path)
	}
	return b.Build()
}
