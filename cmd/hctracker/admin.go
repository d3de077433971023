package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Copy the tracker database",
	Long: `Write a consistent copy of the tracker database. The copy can be used
as a data directory by pointing --data-dir at the folder holding it.

Examples:
  hctracker backup
  hctracker backup --out /backups/hctracker.db`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			out = filepath.Join(cfg.DataDir, "hctracker.db.backup")
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Backup(out); err != nil {
			return fmt.Errorf("failed to create backup: %v", err)
		}
		fmt.Printf("✓ Backup written to %s\n", out)
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check every stored tracker for consistency",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		bad, err := store.Verify()
		if err != nil {
			return err
		}
		if len(bad) == 0 {
			fmt.Println("✓ All trackers are consistent")
			return nil
		}

		ids := make([]string, 0, len(bad))
		for id := range bad {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", id, bad[id])
		}
		return fmt.Errorf("%d corrupt trackers", len(bad))
	},
}

func init() {
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(verifyCmd)

	backupCmd.Flags().StringP("out", "o", "", "Backup file (default <data-dir>/hctracker.db.backup)")
}
