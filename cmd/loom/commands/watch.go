package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

func newWatchCommand() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-plan on every blueprint change",
		Long: `Watch the blueprint directory and recompute the change plan whenever
a document changes. Nothing is ever applied; this is a feedback loop
for editing blueprints.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return err
			}
			defer watcher.Close()

			dir := rt.cfg.Workspace.BlueprintDir
			err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() {
					return watcher.Add(path)
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("watching %s: %w", dir, err)
			}

			fmt.Printf("Watching %s for changes. Ctrl-C to stop.\n", dir)
			replan(ctx, rt)

			var timer *time.Timer
			pending := make(chan struct{}, 1)
			for {
				select {
				case <-ctx.Done():
					return nil

				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if !relevantEvent(event) {
						continue
					}
					// New subdirectories need their own watch.
					if event.Op.Has(fsnotify.Create) {
						if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
							watcher.Add(event.Name)
						}
					}
					if timer != nil {
						timer.Stop()
					}
					timer = time.AfterFunc(debounce, func() {
						select {
						case pending <- struct{}{}:
						default:
						}
					})

				case <-pending:
					replan(ctx, rt)

				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					rt.logger.Warn().Err(err).Msg("watch error")
				}
			}
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "wait this long after the last change before re-planning")

	return cmd
}

func relevantEvent(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) &&
		!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return false
	}
	ext := filepath.Ext(event.Name)
	return ext == ".yaml" || ext == ".yml" || event.Op.Has(fsnotify.Create)
}

func replan(ctx context.Context, rt *runtime) {
	bps, err := rt.loadBlueprints()
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	p, err := rt.engine.Plan(ctx, bps)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("\n--- %s ---\n", time.Now().Format("15:04:05"))
	renderPlan(os.Stdout, p)
}
