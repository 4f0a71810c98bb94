package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"neurodb/internal/adapter/fs"
	"neurodb/internal/usecase"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Ingest a directory and keep it in sync",
	Long: `Ingest the directory once, then re-ingest files as they change and delete
files as they are removed. Runs until interrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 500*time.Millisecond, "quiet period before a changed file is ingested")
}

func runWatch(cmd *cobra.Command, args []string) error {
	root := GetRootDir()
	if len(args) > 0 {
		root = args[0]
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.index.Index(ctx, root, usecase.IndexOptions{Prune: true})
	if err != nil {
		return fmt.Errorf("initial ingest failed: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Ingested %d files (%d unchanged), watching %s\n", res.FilesIndexed, res.FilesSkipped, root)

	watcher, err := fs.NewWatcher(root, a.walker, watchDebounce, logger)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}
	defer watcher.Close()

	err = watcher.Run(ctx, func(ctx context.Context, c fs.Change) {
		name := usecase.NameFor(root, c.Path)
		switch c.Kind {
		case fs.ChangeUpsert:
			r, err := a.pipeline.IngestFileAs(ctx, c.Path, name)
			if err != nil {
				logger.Error("ingest failed", "file", name, "error", err)
				return
			}
			fmt.Fprintf(out, "ingested %s (%d chunks)\n", name, len(r.ChunkIDs))
		case fs.ChangeRemove:
			if _, err := a.pipeline.DeleteDocument(ctx, name); err != nil {
				logger.Error("delete failed", "file", name, "error", err)
				return
			}
			fmt.Fprintf(out, "deleted %s\n", name)
		}
	})
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
