package storage

import (
	"time"

	"github.com/cuemby/hctracker/pkg/types"
)

// Store defines the interface for tracker state storage.
// Implemented by BoltStore.
type Store interface {
	// Tracker state. Load reports found=false, with an empty state, for a
	// network that has never been saved.
	Load(networkID string) (state *types.TrackerState, found bool, err error)
	Save(networkID string, state *types.TrackerState) error
	ListNetworks() ([]string, error)

	// Snapshots, one immutable copy per saved revision
	ListSnapshots(networkID string) ([]*SnapshotInfo, error)
	GetSnapshot(networkID string, revision int) (*types.TrackerState, error)

	// Ignore lists
	GetIgnoreRules(networkID string) (rules []string, found bool, err error)
	PutIgnoreRules(networkID string, rules []string) error

	// Utility
	Close() error
}

// SnapshotInfo describes one stored snapshot
type SnapshotInfo struct {
	Revision  int                  `json:"revision"`
	UpdatedAt time.Time            `json:"updated_at"`
	OpenCases int                  `json:"open_cases"`
	Summary   *types.SummaryRecord `json:"summary,omitempty"`
}
