/*
Package types defines the core data structures used throughout hctracker.

This package contains the domain model shared by every other package: report
findings, tracked cases and their identity keys, node coverage records,
inventory rows, run summaries, and the per-network tracker state that the
storage layer persists.

# Core Types

Findings and cases:
  - Finding: one diagnostic row extracted from a health-check report
  - CaseKey: the (node, test case, issue, description) identity of a case
  - TrackedCase: a case inside the tracker with its lifecycle status
  - CaseStatus: OPEN, CLOSED or IGNORED

Nodes:
  - NodeCoverageRecord: per-node NE type, last run period and coverage status
  - CoverageStatus: Covered, NotCovered or NotRunProperly
  - Anomaly: remediation note attached for a known bad diagnostic
  - InventoryRecord: read-only inventory row (shelf type, board mnemonic)

Tracker:
  - TrackerState: MAIN, OPEN, CLOSED, IGNORED partitions plus node coverage
  - SummaryRecord: derived counts for a run

# Partition Invariants

A TrackerState is consistent when every case key appears in exactly one of
OPEN, CLOSED and IGNORED, the case's Status matches its partition, and MAIN
holds exactly one record per key carrying the same status. Validate checks
these rules and is used both before reconciling a prior state and before
saving a new one:

	if err := state.Validate(); err != nil {
		return fmt.Errorf("tracker for %s is inconsistent: %w", state.NetworkID, err)
	}

# Identity

Two findings describe the same case iff their CaseKey values are equal.
CaseKey is comparable and is used directly as a map key by the reconciler.
The storage layer keys partition records by position, not by CaseKey, so
stored partitions keep their order.
*/
package types
