package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/cuemby/hctracker/pkg/types"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show NETWORK",
	Short: "Show a network's tracker",
	Long: `Show the cases or node coverage of a network's tracker.

Examples:
  hctracker show metro-1
  hctracker show metro-1 --status closed
  hctracker show metro-1 --status coverage
  hctracker show metro-1 --revision 3 --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		networkID := args[0]
		status, _ := cmd.Flags().GetString("status")
		revision, _ := cmd.Flags().GetInt("revision")
		asJSON, _ := cmd.Flags().GetBool("json")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		var state *types.TrackerState
		if revision > 0 {
			state, err = store.GetSnapshot(networkID, revision)
			if err != nil {
				return err
			}
		} else {
			var found bool
			state, found, err = store.Load(networkID)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("network %s has no tracker", networkID)
			}
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if status == "" {
				return enc.Encode(state)
			}
			if status == "coverage" {
				return enc.Encode(state.Coverage)
			}
			cases, err := partition(state, status)
			if err != nil {
				return err
			}
			return enc.Encode(cases)
		}

		fmt.Printf("Network: %s", state.NetworkID)
		if state.NetworkName != "" {
			fmt.Printf(" (%s)", state.NetworkName)
		}
		fmt.Printf("\nRevision: %d, updated %s\n", state.Revision, state.UpdatedAt.Format("2006-01-02 15:04"))
		fmt.Printf("Cases: %d open, %d closed, %d ignored, %d total\n\n",
			len(state.Open), len(state.Closed), len(state.Ignored), len(state.Main))

		if status == "coverage" {
			printCoverage(state.Coverage)
			return nil
		}
		if status == "" {
			status = "open"
		}
		cases, err := partition(state, status)
		if err != nil {
			return err
		}
		printCases(cases)
		return nil
	},
}

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots NETWORK",
	Short: "List a network's stored revisions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		snaps, err := store.ListSnapshots(args[0])
		if err != nil {
			return err
		}
		if len(snaps) == 0 {
			fmt.Println("No snapshots found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "REVISION\tUPDATED\tOPEN\tNEW\tCLOSED")
		for _, s := range snaps {
			newCases, closed := 0, 0
			if s.Summary != nil {
				newCases, closed = s.Summary.NewCasesThisRun, s.Summary.ClosedCasesThisRun
			}
			fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\n", s.Revision, s.UpdatedAt.Format("2006-01-02 15:04"), s.OpenCases, newCases, closed)
		}
		return w.Flush()
	},
}

var networksCmd = &cobra.Command{
	Use:   "networks",
	Short: "List tracked networks",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		ids, err := store.ListNetworks()
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(snapshotsCmd)
	rootCmd.AddCommand(networksCmd)

	showCmd.Flags().String("status", "", "Partition to list: open, closed, ignored, main, coverage")
	showCmd.Flags().Int("revision", 0, "Show a stored snapshot instead of the current tracker")
	showCmd.Flags().Bool("json", false, "Output as JSON")
}

func partition(state *types.TrackerState, status string) ([]*types.TrackedCase, error) {
	switch status {
	case "open":
		return state.Open, nil
	case "closed":
		return state.Closed, nil
	case "ignored":
		return state.Ignored, nil
	case "main":
		return state.Main, nil
	default:
		return nil, fmt.Errorf("unknown status %q", status)
	}
}

func printCases(cases []*types.TrackedCase) {
	if len(cases) == 0 {
		fmt.Println("No cases")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NODE\tNE TYPE\tTEST CASE\tSEVERITY\tSTATUS\tFIRST SEEN\tISSUE")
	for _, c := range cases {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			c.NodeID, c.NEType, c.TestCaseID, c.Severity, c.Status, c.FirstSeen.Format("2006-01-02"), c.Issue)
	}
	w.Flush()
}

func printCoverage(nodes []*types.NodeCoverageRecord) {
	if len(nodes) == 0 {
		fmt.Println("No nodes")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NODE\tNE TYPE\tLAST RUN\tSTATUS\tANOMALIES")
	for _, n := range nodes {
		codes := ""
		for i, a := range n.Anomalies {
			if i > 0 {
				codes += ","
			}
			codes += a.Code
		}
		fmt.Fprintf(w, "%d\t%s\t%04d-%02d\t%s\t%s\n", n.NodeID, n.NEType, n.LastRunYear, n.LastRunMonth, n.Status, codes)
	}
	w.Flush()
}
