package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var checkRepair bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify referential integrity of the store",
	Long: `Report chunks whose file record is missing and chunk rows that lack text,
vector or file name. With --repair the orphaned file names are cascade-deleted
and malformed rows removed.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().BoolVar(&checkRepair, "repair", false, "delete orphaned and malformed chunks")
}

func runCheck(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.docs.Verify(cmd.Context())
	if err != nil {
		return fmt.Errorf("verify failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Files:     %d\n", report.Files)
	fmt.Fprintf(out, "Chunks:    %d\n", report.Chunks)
	fmt.Fprintf(out, "Orphans:   %d\n", report.OrphanCount())
	fmt.Fprintf(out, "Malformed: %d\n", len(report.Malformed))

	names := make([]string, 0, len(report.Orphans))
	for name := range report.Orphans {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  orphaned %s: %d chunks\n", name, len(report.Orphans[name]))
	}

	if report.Healthy() {
		fmt.Fprintln(out, "\nStore is consistent.")
		return nil
	}
	if !checkRepair {
		return fmt.Errorf("store is inconsistent, run 'neurodb check --repair': %w", report.Err())
	}

	if _, err := a.docs.Repair(cmd.Context()); err != nil {
		return fmt.Errorf("repair failed: %w", err)
	}
	fmt.Fprintln(out, "\nRepaired.")
	return nil
}
