package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newDiscoverCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Fetch the live element set from every adapter",
		Long: `Ask every registered adapter for its complete live element set,
replace the tracked state with it, and write the discovered elements as
blueprint documents into the output directory. Existing state for the
discovered systems is overridden, not merged.`,
		Example: `  # Discover and write blueprints
  loom discover

  # Discover without writing documents
  loom discover --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			bps, err := rt.loadBlueprints()
			if err != nil {
				return err
			}

			docs, err := rt.engine.Discover(ctx, bps, fillFromBlueprints)
			if err != nil {
				return err
			}

			if dryRun {
				for _, doc := range docs {
					fmt.Printf("would write %s (%d bytes)\n", doc.Filename, len(doc.Content))
				}
				return nil
			}

			outDir := rt.cfg.Workspace.OutputDir
			for _, doc := range docs {
				target := filepath.Join(outDir, filepath.FromSlash(doc.Filename))
				if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
					return err
				}
				if err := os.WriteFile(target, doc.Content, 0o644); err != nil {
					return fmt.Errorf("writing %s: %w", target, err)
				}
				fmt.Printf("wrote %s\n", target)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "discover and update state but write no documents")

	return cmd
}
