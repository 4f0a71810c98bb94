package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <name>...",
	Short: "Delete files and all of their chunks",
	Long: `Delete the named files. Every chunk of a file is removed before its file
record, and the command fails if any chunk still references the name.

Examples:
  neurodb delete manual.pdf
  neurodb delete docs/a.txt docs/b.txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	var errs []error
	for _, name := range args {
		report, err := a.pipeline.DeleteDocument(cmd.Context(), name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(out, "Deleted %s (%d chunks)\n", name, report.ChunksDeleted)
	}
	return errors.Join(errs...)
}
