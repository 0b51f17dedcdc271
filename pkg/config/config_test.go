package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent", DefaultFilename))
	if err == nil {
		t.Fatal("explicit missing path must error")
	}

	// Implicit lookup falls back to defaults.
	wd, _ := os.Getwd()
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Apply.MaxParallel != 8 {
		t.Errorf("default max_parallel = %d", cfg.Apply.MaxParallel)
	}
	if cfg.Workspace.BlueprintDir != "blueprints" {
		t.Errorf("default blueprint_dir = %q", cfg.Workspace.BlueprintDir)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loom.yaml")
	doc := `
workspace:
  blueprint_dir: env/prod
state:
  path: /var/lib/loom/state.db
apply:
  max_parallel: 2
telemetry:
  logging:
    level: debug
    format: json
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workspace.BlueprintDir != "env/prod" {
		t.Errorf("blueprint_dir = %q", cfg.Workspace.BlueprintDir)
	}
	if cfg.Workspace.OutputDir != "env/prod" {
		t.Errorf("output_dir should default to blueprint_dir, got %q", cfg.Workspace.OutputDir)
	}
	if cfg.State.Path != "/var/lib/loom/state.db" {
		t.Errorf("state path = %q", cfg.State.Path)
	}
	if cfg.Apply.MaxParallel != 2 {
		t.Errorf("max_parallel = %d", cfg.Apply.MaxParallel)
	}
	if cfg.Telemetry.Logging.Format != "json" {
		t.Errorf("log format = %q", cfg.Telemetry.Logging.Format)
	}
	// Untouched sections keep their defaults.
	if cfg.State.MaxOpenConns != 4 {
		t.Errorf("max_open_conns = %d", cfg.State.MaxOpenConns)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"negative parallelism", "apply:\n  max_parallel: -1\n"},
		{"empty state path", "state:\n  path: \"\"\n"},
		{"bad log format", "telemetry:\n  logging:\n    format: xml\n"},
		{"bad yaml", "workspace: [\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "loom.yaml")
			if err := os.WriteFile(path, []byte(tc.doc), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}
