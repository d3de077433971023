package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/cuemby/hctracker/pkg/events"
	"github.com/cuemby/hctracker/pkg/runner"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run NETWORK --report FILE",
	Short: "Reconcile one network's report",
	Long: `Reconcile a health-check report against the network's tracker.

Examples:
  # Monthly run with inventory and ignore list
  hctracker run metro-1 --report oct.csv --inventory inv.csv --ignore ignore.txt --date 2026-10-01

  # Use the ignore list stored with "hctracker ignore add"
  hctracker run metro-1 --report oct.csv`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		networkID := args[0]
		reportPath, _ := cmd.Flags().GetString("report")
		inventoryPath, _ := cmd.Flags().GetString("inventory")
		ignorePath, _ := cmd.Flags().GetString("ignore")
		dateStr, _ := cmd.Flags().GetString("date")
		name, _ := cmd.Flags().GetString("name")
		header, _ := cmd.Flags().GetBool("header")

		in, err := buildInput(networkID, name, reportPath, inventoryPath, ignorePath, dateStr, header)
		if err != nil {
			return err
		}

		return withRunner(cmd, func(ctx context.Context, r *runner.Runner) error {
			out, err := r.Run(ctx, in)
			if err != nil {
				return err
			}
			printOutput(summaryWriter(cmd), out)
			return nil
		})
	},
}

var batchCmd = &cobra.Command{
	Use:   "batch --manifest FILE",
	Short: "Reconcile several networks in parallel",
	Long: `Reconcile every network listed in a YAML manifest.

Manifest format:
  networks:
    - id: metro-1
      name: Metro
      report: reports/metro-1.csv
      inventory: inventory/metro-1.csv
      ignore: ignore/metro-1.txt
      date: 2026-10-01

Networks run concurrently (run.workers in the config). A network that
fails does not stop the others; the command exits non-zero if any failed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		manifestPath, _ := cmd.Flags().GetString("manifest")
		header, _ := cmd.Flags().GetBool("header")

		m, err := loadManifest(manifestPath)
		if err != nil {
			return err
		}

		inputs := make([]runner.Input, 0, len(m.Networks))
		for _, e := range m.Networks {
			in, err := buildInput(e.ID, e.Name, e.Report, e.Inventory, e.Ignore, e.Date, header)
			if err != nil {
				return fmt.Errorf("network %s: %v", e.ID, err)
			}
			inputs = append(inputs, in)
		}

		return withRunner(cmd, func(ctx context.Context, r *runner.Runner) error {
			failed := 0
			w := summaryWriter(cmd)
			for _, res := range r.RunAll(ctx, inputs) {
				if res.Err != nil {
					failed++
					fmt.Fprintf(os.Stderr, "✗ %s: %v\n", res.NetworkID, res.Err)
					continue
				}
				printOutput(w, res.Output)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d networks failed", failed, len(inputs))
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(batchCmd)

	runCmd.Flags().String("report", "", "Health-check report CSV (required)")
	runCmd.Flags().String("inventory", "", "Inventory CSV: node_id,shelf_type,mnemonic[,report_date]")
	runCmd.Flags().String("ignore", "", "Ignore list, one test case id per line")
	runCmd.Flags().String("date", "", "Report date (default today)")
	runCmd.Flags().String("name", "", "Network display name")
	_ = runCmd.MarkFlagRequired("report")

	batchCmd.Flags().StringP("manifest", "f", "", "Batch manifest YAML (required)")
	_ = batchCmd.MarkFlagRequired("manifest")

	for _, c := range []*cobra.Command{runCmd, batchCmd} {
		c.Flags().Bool("header", true, "Input CSV files start with a header row")
		c.Flags().Bool("events", false, "Stream tracker events as JSON lines to stdout")
	}
}

func buildInput(networkID, name, reportPath, inventoryPath, ignorePath, dateStr string, header bool) (runner.Input, error) {
	date, err := parseReportDate(dateStr)
	if err != nil {
		return runner.Input{}, err
	}
	rows, err := readReport(reportPath, header)
	if err != nil {
		return runner.Input{}, err
	}
	inv, err := readInventory(inventoryPath, header, date)
	if err != nil {
		return runner.Input{}, err
	}
	lines, err := readIgnoreLines(ignorePath)
	if err != nil {
		return runner.Input{}, err
	}
	return runner.Input{
		NetworkID:   networkID,
		NetworkName: name,
		SourceFile:  reportPath,
		ReportDate:  date,
		Rows:        rows,
		Inventory:   inv,
		IgnoreLines: lines,
	}, nil
}

// withRunner opens the store, wires the event stream and calls fn with a
// runner whose context is cancelled on SIGINT/SIGTERM
func withRunner(cmd *cobra.Command, fn func(context.Context, *runner.Runner) error) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var broker *events.Broker
	var wg sync.WaitGroup
	if stream, _ := cmd.Flags().GetBool("events"); stream {
		broker = events.NewBroker()
		sub := broker.Subscribe()
		broker.Start()

		wg.Add(1)
		go func() {
			defer wg.Done()
			enc := json.NewEncoder(os.Stdout)
			for ev := range sub {
				_ = enc.Encode(ev)
			}
		}()
	}

	err = fn(ctx, runner.New(store, cfg, broker))

	if broker != nil {
		broker.Stop()
		wg.Wait()
	}
	writeMetrics(store)
	return err
}

// summaryWriter is where run summaries go: stdout, or stderr when stdout
// carries the --events JSON stream
func summaryWriter(cmd *cobra.Command) io.Writer {
	if stream, _ := cmd.Flags().GetBool("events"); stream {
		return os.Stderr
	}
	return os.Stdout
}

func printOutput(w io.Writer, out *runner.Output) {
	s := out.Summary
	fmt.Fprintf(w, "✓ %s revision %d (run %s)\n", out.NetworkID, out.State.Revision, out.RunID)
	if out.Bootstrap {
		fmt.Fprintln(w, "  First run for this network")
	}
	fmt.Fprintf(w, "  Cases: %d open, %d closed, %d ignored\n", s.TotalOpenCases, s.TotalClosedCases, s.TotalIgnoredCases)
	fmt.Fprintf(w, "  This run: %d new, %d closed, %d ignored, %d recurred\n", s.NewCasesThisRun, s.ClosedCasesThisRun, s.IgnoredCasesThisRun, len(out.Recurred))
	fmt.Fprintf(w, "  Nodes: %d total, %d covered, %d not covered, %d not run properly\n", s.TotalNodes, s.NodesCovered, s.NodesNotCovered, s.NodesNotRunProperly)
	if len(out.Warnings) > 0 {
		fmt.Fprintf(w, "  Warnings: %d\n", len(out.Warnings))
		for _, wn := range out.Warnings {
			fmt.Fprintf(w, "    [%s] %s\n", wn.Kind, wn.Message)
		}
	}
}
