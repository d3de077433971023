/*
Package storage provides BoltDB-backed persistence for per-network tracker
state.

The storage package implements the Store interface using bbolt. Every network
owns a bucket holding its case partitions and node coverage; every save also
records an immutable snapshot of the whole state keyed by revision. All data
is serialized as JSON.

# Architecture

	┌──────────────────── BOLTDB STORAGE ──────────────────────┐
	│                                                            │
	│  File: <dataDir>/hctracker.db                              │
	│                                                            │
	│  networks/                                                 │
	│    <network-id>/                                           │
	│      meta       {network_id, network_name, revision, ...}  │
	│      summary    SummaryRecord of the last run              │
	│      main/      seq -> TrackedCase (every case ever seen)  │
	│      open/      seq -> TrackedCase                         │
	│      closed/    seq -> TrackedCase                         │
	│      ignored/   seq -> TrackedCase                         │
	│      coverage/  seq -> NodeCoverageRecord                  │
	│                                                            │
	│  snapshots/                                                │
	│    <network-id>/                                           │
	│      states/    revision -> TrackerState                   │
	│      summaries/ revision -> SnapshotInfo                   │
	│                                                            │
	│  ignore_rules/                                             │
	│    <network-id> -> ["3.3.3", ...]                          │
	└────────────────────────────────────────────────────────────┘

Sequence and revision keys are 8-byte big-endian integers, so bbolt's byte
ordering returns partitions in the order they were saved and snapshots oldest
first.

# Guarantees

Atomic replacement: Save deletes and rebuilds the network bucket and writes
the snapshot inside one db.Update transaction. A reader either sees the
previous state or the new one, never a mix, and a failed save leaves the
previous state in place.

Consistency: Save refuses a state that fails TrackerState.Validate, and Load
re-validates what it reads. A stored state that breaks the partition
invariants (for example a case that is both OPEN and CLOSED) is reported as a
diag.CorruptTrackerStateError.

Idempotency: saving an unchanged state writes the same bytes under the same
keys, including the snapshot, which is keyed by revision.

# Usage

	store, err := storage.NewBoltStore(cfg.DataDir, storage.Options{
		SnapshotRetention: cfg.Storage.SnapshotRetention,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	prior, found, err := store.Load("metro-east")
	if err != nil {
		return err // corrupt state, do not reconcile
	}
	if !found {
		// first run for this network
	}

	// ... reconcile into next ...

	if err := store.Save("metro-east", next); err != nil {
		return err
	}

Backup writes a consistent copy of the file from a read transaction, and
Verify loads every network to find trackers that no longer pass the
partition invariants.

bbolt allows one writer at a time per file. Networks are independent, so
parallel runs for different networks only serialize on the final Save.
*/
package storage
