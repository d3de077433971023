package main

import (
	"fmt"

	"github.com/cuemby/hctracker/pkg/ignore"
	"github.com/spf13/cobra"
)

var ignoreCmd = &cobra.Command{
	Use:   "ignore",
	Short: "Manage a network's stored ignore list",
	Long: `Manage the ignore list stored with a network. The stored list is used
by runs that are not given an --ignore file.`,
}

var ignoreListCmd = &cobra.Command{
	Use:   "list NETWORK",
	Short: "List ignored test case ids",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		lines, found, err := store.GetIgnoreRules(args[0])
		if err != nil {
			return err
		}
		if !found {
			fmt.Println("No ignore list stored")
			return nil
		}
		rules, _ := ignore.Load(lines)
		for _, r := range rules.Rules() {
			fmt.Println(r)
		}
		return nil
	},
}

var ignoreAddCmd = &cobra.Command{
	Use:   "add NETWORK TESTCASE...",
	Short: "Add test case ids to the ignore list",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editIgnore(args[0], func(rules *ignore.RuleSet) {
			for _, tc := range args[1:] {
				if rules.Add(tc) {
					fmt.Printf("✓ Ignoring %s\n", tc)
				} else {
					fmt.Printf("  %s already ignored\n", tc)
				}
			}
		})
	},
}

var ignoreRemoveCmd = &cobra.Command{
	Use:   "remove NETWORK TESTCASE...",
	Short: "Remove test case ids from the ignore list",
	Long: `Remove test case ids from the ignore list. Cases already IGNORED stay
IGNORED; removal only affects findings in later runs.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editIgnore(args[0], func(rules *ignore.RuleSet) {
			for _, tc := range args[1:] {
				if rules.Remove(tc) {
					fmt.Printf("✓ Removed %s\n", tc)
				} else {
					fmt.Printf("  %s not in ignore list\n", tc)
				}
			}
		})
	},
}

func init() {
	ignoreCmd.AddCommand(ignoreListCmd)
	ignoreCmd.AddCommand(ignoreAddCmd)
	ignoreCmd.AddCommand(ignoreRemoveCmd)
	rootCmd.AddCommand(ignoreCmd)
}

func editIgnore(networkID string, edit func(*ignore.RuleSet)) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	lines, _, err := store.GetIgnoreRules(networkID)
	if err != nil {
		return err
	}
	rules, _ := ignore.Load(lines)
	edit(rules)
	return store.PutIgnoreRules(networkID, rules.Rules())
}
