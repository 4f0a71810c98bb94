package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"neurodb/internal/adapter/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store statistics and schema state",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.docs.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read stats: %w", err)
	}
	migration, err := store.CheckMigration(cmd.Context(), a.store, a.cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Store:       %s (%s)\n", a.store.Path(), a.cfg.Store.Backend)
	fmt.Fprintf(out, "Schema:      v%d\n", migration.Version)
	fmt.Fprintf(out, "Files:       %d\n", stats.Files)
	fmt.Fprintf(out, "Chunks:      %d\n", stats.Chunks)
	fmt.Fprintf(out, "Dimension:   %d\n", stats.Dimension)
	fmt.Fprintf(out, "Embedding:   %s/%s\n", a.cfg.Embedding.Provider, a.cfg.Embedding.Model)
	fmt.Fprintf(out, "Fingerprint: %s\n", migration.CurrentHash)
	if migration.ConfigChanged {
		fmt.Fprintf(out, "\nWarning: %s (stored %s)\n", migration.Reason, migration.StoredHash)
	}
	return nil
}
