package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/loom-cfg/loom/pkg/config"
)

func newInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a loom workspace",
		Long: `Create a loom.yaml with default settings and an empty blueprint
directory in the current directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(config.DefaultFilename); err == nil {
				return fmt.Errorf("%s already exists", config.DefaultFilename)
			}

			cfg := config.Default()
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			if err := os.WriteFile(config.DefaultFilename, data, 0o644); err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.Workspace.BlueprintDir, 0o755); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(cfg.State.Path), 0o755); err != nil {
				return err
			}

			fmt.Printf("Initialized workspace: %s, %s/\n",
				config.DefaultFilename, cfg.Workspace.BlueprintDir)
			return nil
		},
	}
}
