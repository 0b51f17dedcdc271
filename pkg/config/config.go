// Package config loads and validates the runtime configuration for the
// loom CLI: workspace layout, state database location, apply
// concurrency, policy sources and telemetry.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/loom-cfg/loom/pkg/telemetry"
)

// DefaultFilename is the config file looked up in the workspace root.
const DefaultFilename = "loom.yaml"

// Config is the full runtime configuration.
type Config struct {
	// Workspace configures where blueprints live.
	Workspace WorkspaceConfig `yaml:"workspace"`

	// State configures the durable element snapshot.
	State StateConfig `yaml:"state"`

	// Apply configures plan execution.
	Apply ApplyConfig `yaml:"apply"`

	// Policy configures policy loading.
	Policy PolicyConfig `yaml:"policy"`

	// Telemetry configures logging, metrics and tracing.
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// WorkspaceConfig describes the blueprint workspace.
type WorkspaceConfig struct {
	// BlueprintDir is the directory holding blueprint documents.
	BlueprintDir string `yaml:"blueprint_dir" validate:"required"`

	// OutputDir is where discovery output documents are written.
	// Defaults to BlueprintDir.
	OutputDir string `yaml:"output_dir"`
}

// StateConfig describes the state database.
type StateConfig struct {
	// Path is the SQLite database file.
	Path string `yaml:"path" validate:"required"`

	// MaxOpenConns bounds the connection pool.
	MaxOpenConns int `yaml:"max_open_conns" validate:"gte=0"`
}

// ApplyConfig tunes plan execution.
type ApplyConfig struct {
	// MaxParallel bounds concurrent adapter calls.
	MaxParallel int `yaml:"max_parallel" validate:"gte=0,lte=256"`
}

// PolicyConfig configures policy sources.
type PolicyConfig struct {
	// Paths lists .rego files or directories loaded at startup.
	Paths []string `yaml:"paths"`

	// Disabled names policies to turn off, built-ins included.
	Disabled []string `yaml:"disabled"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Workspace: WorkspaceConfig{
			BlueprintDir: "blueprints",
		},
		State: StateConfig{
			Path:         filepath.Join(".loom", "state.db"),
			MaxOpenConns: 4,
		},
		Apply: ApplyConfig{
			MaxParallel: 8,
		},
		Telemetry: telemetry.DefaultConfig(),
	}
}

// Load reads the config file at path, layered over defaults. An empty
// path tries DefaultFilename and falls back to pure defaults when the
// file does not exist.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFilename
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.Workspace.OutputDir == "" {
		cfg.Workspace.OutputDir = cfg.Workspace.BlueprintDir
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks structural constraints and the telemetry section.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	return c.Telemetry.Validate()
}
