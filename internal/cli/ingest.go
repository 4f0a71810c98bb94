package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"neurodb/internal/usecase"
)

var (
	ingestForce bool
	ingestPrune bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>...",
	Short: "Ingest files or directories",
	Long: `Extract, chunk and embed documents into the store held in .neurodb
under the root directory. Directories are walked with the configured include
and exclude patterns and their files are stored under their path relative to
the directory. A single file is stored under its base name.

Examples:
  neurodb ingest manual.pdf notes.txt
  neurodb ingest ./docs --prune`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().BoolVar(&ingestForce, "force", false, "re-ingest files whose modification time is unchanged")
	ingestCmd.Flags().BoolVar(&ingestPrune, "prune", false, "delete stored files no longer present in an ingested directory")
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	total := &usecase.IndexResult{}

	for _, arg := range args {
		path, err := filepath.Abs(arg)
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("path does not exist: %w", err)
		}

		if !info.IsDir() {
			res, err := a.pipeline.IngestFile(cmd.Context(), path)
			if err != nil {
				total.Errors = append(total.Errors, fmt.Sprintf("failed to ingest %s: %v", filepath.Base(path), err))
				continue
			}
			total.FilesIndexed++
			total.ChunksCreated += len(res.ChunkIDs)
			continue
		}

		fmt.Fprintf(out, "Scanning %s...\n", path)
		res, err := a.index.Index(cmd.Context(), path, usecase.IndexOptions{
			Force:    ingestForce,
			Prune:    ingestPrune,
			Progress: newProgress(cmd.ErrOrStderr()),
		})
		if err != nil {
			return fmt.Errorf("ingest failed: %w", err)
		}
		total.FilesIndexed += res.FilesIndexed
		total.FilesSkipped += res.FilesSkipped
		total.FilesDeleted += res.FilesDeleted
		total.ChunksCreated += res.ChunksCreated
		total.Errors = append(total.Errors, res.Errors...)
	}

	fmt.Fprintf(out, "\nIngest complete:\n")
	fmt.Fprintf(out, "  Files ingested: %d\n", total.FilesIndexed)
	fmt.Fprintf(out, "  Files skipped:  %d (unchanged)\n", total.FilesSkipped)
	fmt.Fprintf(out, "  Files deleted:  %d (removed)\n", total.FilesDeleted)
	fmt.Fprintf(out, "  Chunks created: %d\n", total.ChunksCreated)

	if len(total.Errors) > 0 {
		fmt.Fprintf(out, "\nWarnings:\n")
		for _, e := range total.Errors {
			fmt.Fprintf(out, "  - %s\n", e)
		}
	}

	fmt.Fprintf(out, "\nStore: %s\n", a.store.Path())
	return nil
}

// newProgress returns an IndexOptions.Progress callback drawing a bar with
// an ETA. The bar is created on the first call, once the total is known.
func newProgress(w io.Writer) func(path string, done, total int) {
	var (
		bar       *progressbar.ProgressBar
		mu        sync.Mutex
		startTime time.Time
	)

	return func(path string, done, total int) {
		mu.Lock()
		defer mu.Unlock()

		if bar == nil {
			startTime = time.Now()
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(w),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Ingesting[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintln(w)
				}),
			)
		}

		bar.Set(done)

		elapsed := time.Since(startTime)
		if done > 0 && elapsed > 0 {
			rate := float64(done) / elapsed.Seconds()
			if rate > 0 {
				eta := time.Duration(float64(total-done)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]Ingesting[reset] ETA: %s", formatDuration(eta)))
			}
		}
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
