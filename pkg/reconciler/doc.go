/*
Package reconciler diffs a health-check run's findings against a network's
prior tracker state and computes the next state.

# Transitions

For every candidate finding the reconciler looks up its case key in hash
indexes built from the prior OPEN, CLOSED and IGNORED partitions:

	prior partition   ignore rule matches    no ignore rule
	---------------   -------------------    --------------
	(none)            new IGNORED case       new OPEN case
	OPEN              OPEN -> IGNORED        stays OPEN
	CLOSED            CLOSED -> IGNORED      unchanged (recurred)
	IGNORED           unchanged              unchanged (recurred)

After all findings are folded in, every prior OPEN case that was not seen is
closed. CLOSED and IGNORED cases are never reopened here; Reopen exists for an
operator to do that explicitly.

# Batching

New returns a Run that accepts findings in any number of Add calls, so a
large report can be decoded and folded in bounded batches. Memory grows with
the number of distinct case keys, not with the number of report rows: 5000
identical rows produce one case.

	run, err := reconciler.New(networkID, prior, rules, lookup, opts)
	if err != nil {
		return err // CorruptTrackerStateError
	}
	for _, batch := range batches {
		run.Add(batch)
	}
	res, err := run.Commit()

Each step is a single pass over either the findings or a prior partition, so
a run is O(n + m) in findings and tracked cases.

# Output

Commit builds a fresh TrackerState; the prior state is left untouched so a
caller can discard the result without rollback. OPEN is stable-sorted by node
id. MAIN keeps first-seen order and mirrors each case's current partition
record. Non-fatal issues (unknown NE types, recurring closed cases, repeated
ignores) are returned in Result.Warnings.
*/
package reconciler
