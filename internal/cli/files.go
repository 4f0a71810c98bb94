package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

var filesJSON bool

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List ingested files",
	Args:  cobra.NoArgs,
	RunE:  runFiles,
}

func init() {
	rootCmd.AddCommand(filesCmd)
	filesCmd.Flags().BoolVar(&filesJSON, "json", false, "output as JSON")
}

type fileEntry struct {
	Name        string    `json:"name"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	ContentType string    `json:"content_type,omitempty"`
	PageCount   int       `json:"page_count"`
	Size        int64     `json:"size"`
	Chunks      int       `json:"chunks"`
	IngestedAt  time.Time `json:"ingested_at"`
}

func runFiles(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	files, err := a.docs.ListFiles(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list files: %w", err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	entries := make([]fileEntry, 0, len(files))
	for _, f := range files {
		ids, err := a.store.ChunkIDsForFile(cmd.Context(), f.Name)
		if err != nil {
			return fmt.Errorf("failed to count chunks of %s: %w", f.Name, err)
		}
		entries = append(entries, fileEntry{
			Name:        f.Name,
			Title:       f.Title,
			Author:      f.Author,
			ContentType: f.ContentType,
			PageCount:   f.PageCount,
			Size:        f.Size,
			Chunks:      len(ids),
			IngestedAt:  f.IngestedAt,
		})
	}

	out := cmd.OutOrStdout()
	if filesJSON {
		output, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(output))
		return nil
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "No files ingested.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%-40s %6d chunks %10d bytes  %s\n", e.Name, e.Chunks, e.Size, e.IngestedAt.Format(time.RFC3339))
	}
	return nil
}
