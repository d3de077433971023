package main

import (
	"fmt"

	"github.com/cuemby/hctracker/pkg/runner"
	"github.com/cuemby/hctracker/pkg/types"
	"github.com/spf13/cobra"
)

var reopenCmd = &cobra.Command{
	Use:   "reopen NETWORK",
	Short: "Move a CLOSED case back to OPEN",
	Long: `Move a CLOSED case back to OPEN. Runs never reopen a closed case on
their own; a closed case that reappears is reported as recurring.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		node, _ := cmd.Flags().GetInt("node")
		tc, _ := cmd.Flags().GetString("test-case")
		issue, _ := cmd.Flags().GetString("issue")
		desc, _ := cmd.Flags().GetString("description")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		key := types.CaseKey{NodeID: node, TestCaseID: tc, Issue: issue, Description: desc}
		state, err := runner.New(store, cfg, nil).Reopen(cmd.Context(), args[0], key)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Reopened %s (revision %d)\n", key, state.Revision)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reopenCmd)

	reopenCmd.Flags().Int("node", 0, "Node id")
	reopenCmd.Flags().String("test-case", "", "Test case id")
	reopenCmd.Flags().String("issue", "", "Issue text")
	reopenCmd.Flags().String("description", "", "Description text")
	_ = reopenCmd.MarkFlagRequired("node")
	_ = reopenCmd.MarkFlagRequired("test-case")
	_ = reopenCmd.MarkFlagRequired("issue")
	_ = reopenCmd.MarkFlagRequired("description")
}
