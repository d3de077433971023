package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/hctracker/pkg/diag"
	"github.com/cuemby/hctracker/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketNetworks    = []byte("networks")
	bucketSnapshots   = []byte("snapshots")
	bucketIgnoreRules = []byte("ignore_rules")

	// Per-network sub-buckets
	bucketMain     = []byte("main")
	bucketOpen     = []byte("open")
	bucketClosed   = []byte("closed")
	bucketIgnored  = []byte("ignored")
	bucketCoverage = []byte("coverage")

	// Per-network snapshot sub-buckets
	bucketStates    = []byte("states")
	bucketSummaries = []byte("summaries")

	keyMeta    = []byte("meta")
	keySummary = []byte("summary")
)

// ErrSnapshotNotFound is returned by GetSnapshot for an unknown revision
var ErrSnapshotNotFound = errors.New("snapshot not found")

type networkMeta struct {
	NetworkID   string    `json:"network_id"`
	NetworkName string    `json:"network_name,omitempty"`
	Revision    int       `json:"revision"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Options tune a BoltStore
type Options struct {
	// SnapshotRetention is the number of snapshots kept per network; 0 keeps all
	SnapshotRetention int
	Timeout           time.Duration
}

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db        *bolt.DB
	retention int
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string, opts Options) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "hctracker.db")

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketNetworks,
			bucketSnapshots,
			bucketIgnoreRules,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, retention: opts.SnapshotRetention}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Load reads the tracker state of a network. The stored partitions are
// checked against the partition invariants; a violation is returned as a
// CorruptTrackerStateError.
func (s *BoltStore) Load(networkID string) (*types.TrackerState, bool, error) {
	state := types.NewTrackerState(networkID)
	found := false

	err := s.db.View(func(tx *bolt.Tx) error {
		nb := tx.Bucket(bucketNetworks).Bucket([]byte(networkID))
		if nb == nil {
			return nil
		}
		found = true

		var meta networkMeta
		if data := nb.Get(keyMeta); data != nil {
			if err := json.Unmarshal(data, &meta); err != nil {
				return fmt.Errorf("decode meta: %w", err)
			}
		}
		state.NetworkName = meta.NetworkName
		state.Revision = meta.Revision
		state.UpdatedAt = meta.UpdatedAt

		if data := nb.Get(keySummary); data != nil {
			var sum types.SummaryRecord
			if err := json.Unmarshal(data, &sum); err != nil {
				return fmt.Errorf("decode summary: %w", err)
			}
			state.Summary = &sum
		}

		var err error
		if state.Main, err = readCases(nb, bucketMain); err != nil {
			return err
		}
		if state.Open, err = readCases(nb, bucketOpen); err != nil {
			return err
		}
		if state.Closed, err = readCases(nb, bucketClosed); err != nil {
			return err
		}
		if state.Ignored, err = readCases(nb, bucketIgnored); err != nil {
			return err
		}
		state.Coverage, err = readCoverage(nb)
		return err
	})
	if err != nil {
		return nil, false, &diag.CorruptTrackerStateError{NetworkID: networkID, Err: err}
	}

	if err := state.Validate(); err != nil {
		return nil, false, &diag.CorruptTrackerStateError{NetworkID: networkID, Err: err}
	}
	return state, found, nil
}

// Save replaces the stored state of a network and records a snapshot of it,
// both in a single transaction. An inconsistent state is refused. Saving the
// same state twice writes the same bytes under the same keys.
func (s *BoltStore) Save(networkID string, state *types.TrackerState) error {
	if state.NetworkID != "" && state.NetworkID != networkID {
		return fmt.Errorf("state belongs to network %s, not %s", state.NetworkID, networkID)
	}
	if err := state.Validate(); err != nil {
		return &diag.CorruptTrackerStateError{NetworkID: networkID, Err: err}
	}

	meta, err := json.Marshal(networkMeta{
		NetworkID:   networkID,
		NetworkName: state.NetworkName,
		Revision:    state.Revision,
		UpdatedAt:   state.UpdatedAt,
	})
	if err != nil {
		return err
	}
	snapshot, err := json.Marshal(state)
	if err != nil {
		return err
	}
	info, err := json.Marshal(SnapshotInfo{
		Revision:  state.Revision,
		UpdatedAt: state.UpdatedAt,
		OpenCases: len(state.Open),
		Summary:   state.Summary,
	})
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		networks := tx.Bucket(bucketNetworks)
		if networks.Bucket([]byte(networkID)) != nil {
			if err := networks.DeleteBucket([]byte(networkID)); err != nil {
				return fmt.Errorf("failed to replace network %s: %w", networkID, err)
			}
		}
		nb, err := networks.CreateBucket([]byte(networkID))
		if err != nil {
			return fmt.Errorf("failed to create network %s: %w", networkID, err)
		}

		if err := nb.Put(keyMeta, meta); err != nil {
			return err
		}
		if state.Summary != nil {
			data, err := json.Marshal(state.Summary)
			if err != nil {
				return err
			}
			if err := nb.Put(keySummary, data); err != nil {
				return err
			}
		}

		partitions := []struct {
			name  []byte
			cases []*types.TrackedCase
		}{
			{bucketMain, state.Main},
			{bucketOpen, state.Open},
			{bucketClosed, state.Closed},
			{bucketIgnored, state.Ignored},
		}
		for _, p := range partitions {
			if err := writeCases(nb, p.name, p.cases); err != nil {
				return err
			}
		}
		if err := writeCoverage(nb, state.Coverage); err != nil {
			return err
		}

		return s.putSnapshot(tx, networkID, state.Revision, snapshot, info)
	})
}

func (s *BoltStore) putSnapshot(tx *bolt.Tx, networkID string, revision int, snapshot, info []byte) error {
	sb, err := tx.Bucket(bucketSnapshots).CreateBucketIfNotExists([]byte(networkID))
	if err != nil {
		return err
	}
	states, err := sb.CreateBucketIfNotExists(bucketStates)
	if err != nil {
		return err
	}
	summaries, err := sb.CreateBucketIfNotExists(bucketSummaries)
	if err != nil {
		return err
	}

	key := seqKey(revision)
	if err := states.Put(key, snapshot); err != nil {
		return err
	}
	if err := summaries.Put(key, info); err != nil {
		return err
	}

	if s.retention <= 0 {
		return nil
	}
	var revisions [][]byte
	c := states.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		revisions = append(revisions, append([]byte(nil), k...))
	}
	excess := len(revisions) - s.retention
	if excess <= 0 {
		return nil
	}
	// Keys sort oldest first
	stale := revisions[:excess]
	for _, k := range stale {
		if err := states.Delete(k); err != nil {
			return err
		}
		if err := summaries.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// ListNetworks returns the IDs of every saved network in key order
func (s *BoltStore) ListNetworks() ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNetworks).ForEach(func(k, v []byte) error {
			if v == nil {
				ids = append(ids, string(k))
			}
			return nil
		})
	})
	return ids, err
}

// ListSnapshots returns the stored snapshots of a network, oldest first
func (s *BoltStore) ListSnapshots(networkID string) ([]*SnapshotInfo, error) {
	var infos []*SnapshotInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		sb := tx.Bucket(bucketSnapshots).Bucket([]byte(networkID))
		if sb == nil {
			return nil
		}
		summaries := sb.Bucket(bucketSummaries)
		if summaries == nil {
			return nil
		}
		return summaries.ForEach(func(k, v []byte) error {
			var info SnapshotInfo
			if err := json.Unmarshal(v, &info); err != nil {
				return err
			}
			infos = append(infos, &info)
			return nil
		})
	})
	return infos, err
}

// GetSnapshot returns the state saved at revision
func (s *BoltStore) GetSnapshot(networkID string, revision int) (*types.TrackerState, error) {
	var state types.TrackerState
	err := s.db.View(func(tx *bolt.Tx) error {
		sb := tx.Bucket(bucketSnapshots).Bucket([]byte(networkID))
		if sb == nil || sb.Bucket(bucketStates) == nil {
			return fmt.Errorf("%w: %s revision %d", ErrSnapshotNotFound, networkID, revision)
		}
		data := sb.Bucket(bucketStates).Get(seqKey(revision))
		if data == nil {
			return fmt.Errorf("%w: %s revision %d", ErrSnapshotNotFound, networkID, revision)
		}
		return json.Unmarshal(data, &state)
	})
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// GetIgnoreRules returns the stored ignore list of a network
func (s *BoltStore) GetIgnoreRules(networkID string) ([]string, bool, error) {
	var rules []string
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketIgnoreRules).Get([]byte(networkID))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &rules)
	})
	return rules, found, err
}

// PutIgnoreRules replaces the stored ignore list of a network
func (s *BoltStore) PutIgnoreRules(networkID string, rules []string) error {
	if rules == nil {
		rules = []string{}
	}
	data, err := json.Marshal(rules)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketIgnoreRules).Put([]byte(networkID), data)
	})
}

func writeCases(nb *bolt.Bucket, name []byte, cases []*types.TrackedCase) error {
	b, err := nb.CreateBucket(name)
	if err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", name, err)
	}
	for i, c := range cases {
		data, err := json.Marshal(c)
		if err != nil {
			return err
		}
		if err := b.Put(seqKey(i), data); err != nil {
			return err
		}
	}
	return nil
}

func readCases(nb *bolt.Bucket, name []byte) ([]*types.TrackedCase, error) {
	b := nb.Bucket(name)
	if b == nil {
		return nil, fmt.Errorf("missing %s partition", name)
	}
	var cases []*types.TrackedCase
	err := b.ForEach(func(k, v []byte) error {
		var c types.TrackedCase
		if err := json.Unmarshal(v, &c); err != nil {
			return fmt.Errorf("decode %s case: %w", name, err)
		}
		cases = append(cases, &c)
		return nil
	})
	return cases, err
}

func writeCoverage(nb *bolt.Bucket, nodes []*types.NodeCoverageRecord) error {
	b, err := nb.CreateBucket(bucketCoverage)
	if err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucketCoverage, err)
	}
	for i, n := range nodes {
		data, err := json.Marshal(n)
		if err != nil {
			return err
		}
		if err := b.Put(seqKey(i), data); err != nil {
			return err
		}
	}
	return nil
}

func readCoverage(nb *bolt.Bucket) ([]*types.NodeCoverageRecord, error) {
	b := nb.Bucket(bucketCoverage)
	if b == nil {
		return nil, fmt.Errorf("missing %s partition", bucketCoverage)
	}
	var nodes []*types.NodeCoverageRecord
	err := b.ForEach(func(k, v []byte) error {
		var n types.NodeCoverageRecord
		if err := json.Unmarshal(v, &n); err != nil {
			return fmt.Errorf("decode coverage record: %w", err)
		}
		nodes = append(nodes, &n)
		return nil
	})
	return nodes, err
}

// seqKey encodes i big-endian so bbolt's byte order is insertion order
func seqKey(i int) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(i))
	return b
}

// Backup writes a consistent copy of the database to path while the store
// stays open
func (s *BoltStore) Backup(path string) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.CopyFile(path, 0600)
	})
}

// Verify loads every stored network and returns the ones whose tracker
// fails to decode or violates the partition invariants
func (s *BoltStore) Verify() (map[string]error, error) {
	ids, err := s.ListNetworks()
	if err != nil {
		return nil, err
	}
	bad := make(map[string]error)
	for _, id := range ids {
		if _, _, err := s.Load(id); err != nil {
			bad[id] = err
		}
	}
	return bad, nil
}
