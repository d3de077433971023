/*
Package metrics defines the Prometheus metrics hctracker records while
reconciling networks.

All metrics are registered with the default registry at package init.
hctracker is a batch tool, so metrics are not scraped over HTTP; after a
run the CLI writes them to a textfile (see WriteTextfile) that a
node_exporter textfile collector can pick up.

# Metrics

	hctracker_runs_total{result}                    runs by success/failure
	hctracker_reconciliation_duration_seconds       full run time
	hctracker_stage_duration_seconds{stage}         load, extract, coverage, reconcile, summary, save
	hctracker_rows_processed_total{outcome}         finding, info, dropped
	hctracker_case_transitions_total{transition}    opened, closed, ignored, recurred
	hctracker_cases{network,status}                 current partition sizes
	hctracker_nodes{network,coverage}               current coverage status counts
	hctracker_warnings_total{kind}                  recovered warnings

# Usage

	timer := metrics.NewTimer()
	state, found, err := store.Load(networkID)
	timer.ObserveDurationVec(metrics.StageDuration, "load")

The per-network gauges are set from a tracker state with Observe, or for
every stored network with a Collector.
*/
package metrics
