package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Init writes an example configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	example := Config{
		SrcDirs:       []string{"src/**/*.cpp"},
		IncludeDirs:   []string{"include"},
		OutputDir:     "build",
		Compiler:      DefaultCompiler,
		Std:           DefaultStd,
		IncludeMode:   IncludeModeLegacy,
		FailurePolicy: FailFast,
	}

	data, err := yaml.Marshal(&example)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
