package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"gopkg.in/yaml.v3"

	serrors "git.home.luguber.info/inful/spark/internal/errors"
)

// Loader decodes raw configuration bytes into a Config. Implementations only
// deserialize; defaults and schema checks are applied by Load.
type Loader interface {
	Decode(data []byte, filename string) (*Config, error)
}

// LoaderFor picks the decoder matching the file extension.
func LoaderFor(path string) Loader {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hcl":
		return HCLLoader{}
	default:
		return YAMLLoader{}
	}
}

// YAMLLoader decodes spark.yaml files.
type YAMLLoader struct{}

func (YAMLLoader) Decode(data []byte, _ string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// hclConfigFile mirrors Config for gohcl; every attribute is optional so that a
// missing field surfaces as a schema error rather than an HCL diagnostic.
type hclConfigFile struct {
	SrcDirs       []string `hcl:"src_dirs,optional"`
	IncludeDirs   []string `hcl:"include_dirs,optional"`
	OutputDir     string   `hcl:"output_dir,optional"`
	Compiler      string   `hcl:"compiler,optional"`
	Std           string   `hcl:"std,optional"`
	Flags         []string `hcl:"flags,optional"`
	Jobs          int      `hcl:"jobs,optional"`
	Timeout       string   `hcl:"timeout,optional"`
	IncludeMode   string   `hcl:"include_mode,optional"`
	Dedupe        bool     `hcl:"dedupe,optional"`
	FailurePolicy string   `hcl:"failure_policy,optional"`
}

// HCLLoader decodes spark.hcl files.
type HCLLoader struct{}

func (HCLLoader) Decode(data []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}

	var raw hclConfigFile
	if diags := gohcl.DecodeBody(file.Body, nil, &raw); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	return &Config{
		SrcDirs:       raw.SrcDirs,
		IncludeDirs:   raw.IncludeDirs,
		OutputDir:     raw.OutputDir,
		Compiler:      raw.Compiler,
		Std:           raw.Std,
		Flags:         raw.Flags,
		Jobs:          raw.Jobs,
		Timeout:       raw.Timeout,
		IncludeMode:   IncludeMode(raw.IncludeMode),
		Dedupe:        raw.Dedupe,
		FailurePolicy: FailurePolicy(raw.FailurePolicy),
	}, nil
}

// FindConfigFile returns the first default configuration file present in projectRoot.
func FindConfigFile(projectRoot string) (string, error) {
	for _, name := range DefaultFileNames {
		candidate := filepath.Join(projectRoot, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", serrors.ConfigInvalid("configuration file not found").
		WithContext("path", filepath.Join(projectRoot, DefaultFileNames[0])).
		Build()
}

// Load reads the configuration from the fixed location under projectRoot.
func Load(projectRoot string) (*Config, error) {
	path, err := FindConfigFile(projectRoot)
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile reads, decodes, defaults and validates the configuration at path.
// A .env file next to it is loaded first. Every failure is a config-category
// ClassifiedError.
func LoadFile(path string) (*Config, error) {
	loadEnvFile(filepath.Dir(path))

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, serrors.ConfigInvalid("configuration file not found").
				WithContext("path", path).
				Build()
		}
		return nil, serrors.WrapError(err, serrors.CategoryConfig, "failed to read config file").
			Fatal().
			WithContext("path", path).
			Build()
	}

	// Expand environment variables in the file content
	expanded := os.ExpandEnv(string(data))

	cfg, err := LoaderFor(path).Decode([]byte(expanded), path)
	if err != nil {
		return nil, serrors.WrapError(err, serrors.CategoryConfig, "failed to decode config").
			Fatal().
			WithContext("path", path).
			Build()
	}
	cfg.Path = path

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	if err := applyDefaults(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
