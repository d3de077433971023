package types

import (
	"fmt"
	"strings"
	"time"
)

// Severity is the severity category of a report row
type Severity string

const (
	SeverityInfo    Severity = "Info"
	SeverityWarning Severity = "Warning"
	SeverityFailure Severity = "Failure"
)

// ParseSeverity maps a raw severity cell onto a Severity
func ParseSeverity(raw string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "info", "information", "informational":
		return SeverityInfo, nil
	case "warning", "warn":
		return SeverityWarning, nil
	case "failure", "fail", "failed", "error":
		return SeverityFailure, nil
	default:
		return "", fmt.Errorf("unknown severity %q", raw)
	}
}

// CaseKey is the identity of a case across runs
type CaseKey struct {
	NodeID      int
	TestCaseID  string
	Issue       string
	Description string
}

func (k CaseKey) String() string {
	return fmt.Sprintf("node=%d tc=%q issue=%q", k.NodeID, k.TestCaseID, k.Issue)
}

// Finding is one diagnostic result row from a report run
type Finding struct {
	NodeID      int
	NodeIP      string
	Location    string
	UserLabel   string
	TestCaseID  string
	Severity    Severity
	Issue       string
	Description string
	Task        string
	ReportDate  time.Time
}

// Key returns the finding's case identity
func (f *Finding) Key() CaseKey {
	return CaseKey{
		NodeID:      f.NodeID,
		TestCaseID:  f.TestCaseID,
		Issue:       f.Issue,
		Description: f.Description,
	}
}

// CaseStatus is the lifecycle state of a tracked case
type CaseStatus string

const (
	CaseStatusOpen    CaseStatus = "OPEN"
	CaseStatusClosed  CaseStatus = "CLOSED"
	CaseStatusIgnored CaseStatus = "IGNORED"
)

// Tracked case defaults
const (
	DefaultIntExt        = "Int"
	DefaultFaultCategory = "TBD"
	UnknownNEType        = "Unknown"
)

// TrackedCase is a case inside the tracker
type TrackedCase struct {
	NodeID        int        `json:"node_id"`
	NodeIP        string     `json:"node_ip,omitempty"`
	Location      string     `json:"location,omitempty"`
	UserLabel     string     `json:"user_label,omitempty"`
	TestCaseID    string     `json:"test_case_id"`
	Severity      Severity   `json:"severity,omitempty"`
	Issue         string     `json:"issue"`
	Description   string     `json:"description"`
	Task          string     `json:"task,omitempty"`
	Status        CaseStatus `json:"status"`
	NEType        string     `json:"ne_type"`
	NetworkName   string     `json:"network_name,omitempty"`
	IntExt        string     `json:"int_ext"`
	FaultCategory string     `json:"fault_category"`
	FirstSeen     time.Time  `json:"first_seen"`
	LastSeen      time.Time  `json:"last_seen"`
	ClosedOn      time.Time  `json:"closed_on,omitempty"`
	RunID         string     `json:"run_id,omitempty"` // run that made the last transition
}

// Key returns the case identity
func (c *TrackedCase) Key() CaseKey {
	return CaseKey{
		NodeID:      c.NodeID,
		TestCaseID:  c.TestCaseID,
		Issue:       c.Issue,
		Description: c.Description,
	}
}

// Copy returns a shallow copy of the case
func (c *TrackedCase) Copy() *TrackedCase {
	cp := *c
	return &cp
}

// NewTrackedCase builds a case from a finding with the tracker defaults applied
func NewTrackedCase(f *Finding, status CaseStatus, neType, networkName, runID string) *TrackedCase {
	return &TrackedCase{
		NodeID:        f.NodeID,
		NodeIP:        f.NodeIP,
		Location:      f.Location,
		UserLabel:     f.UserLabel,
		TestCaseID:    f.TestCaseID,
		Severity:      f.Severity,
		Issue:         f.Issue,
		Description:   f.Description,
		Task:          f.Task,
		Status:        status,
		NEType:        neType,
		NetworkName:   networkName,
		IntExt:        DefaultIntExt,
		FaultCategory: DefaultFaultCategory,
		FirstSeen:     f.ReportDate,
		LastSeen:      f.ReportDate,
		RunID:         runID,
	}
}

// CoverageStatus describes whether a node was checked in the current period
type CoverageStatus string

const (
	CoverageCovered        CoverageStatus = "Covered"
	CoverageNotCovered     CoverageStatus = "NotCovered"
	CoverageNotRunProperly CoverageStatus = "NotRunProperly"
)

// Anomaly is a remediation note attached to a node with a known bad diagnostic
type Anomaly struct {
	Code        string `json:"code"`
	Category    string `json:"category"`
	Remediation string `json:"remediation"`
	TestCaseID  string `json:"test_case_id,omitempty"`
}

// NodeCoverageRecord is one row per node in the network
type NodeCoverageRecord struct {
	NodeID       int            `json:"node_id"`
	NEType       string         `json:"ne_type"`
	NodeIP       string         `json:"node_ip,omitempty"`
	Location     string         `json:"location,omitempty"`
	UserLabel    string         `json:"user_label,omitempty"`
	LastRunMonth int            `json:"last_run_month"`
	LastRunYear  int            `json:"last_run_year"`
	Status       CoverageStatus `json:"status"`
	Anomalies    []Anomaly      `json:"anomalies,omitempty"`
}

// Copy returns a copy of the record that does not share the anomaly slice
func (n *NodeCoverageRecord) Copy() *NodeCoverageRecord {
	cp := *n
	if n.Anomalies != nil {
		cp.Anomalies = append([]Anomaly(nil), n.Anomalies...)
	}
	return &cp
}

// RanIn reports whether the node's last run falls in the given period
func (n *NodeCoverageRecord) RanIn(month, year int) bool {
	return n.LastRunMonth == month && n.LastRunYear == year
}

// InventoryRecord is a read-only per-run inventory row
type InventoryRecord struct {
	NodeID     int       `json:"node_id"`
	ShelfType  string    `json:"shelf_type"`
	Mnemonic   string    `json:"mnemonic"`
	ReportDate time.Time `json:"report_date"`
}

// BoardTally counts inventory boards of one (shelf type, mnemonic) pair
type BoardTally struct {
	ShelfType string `json:"shelf_type"`
	Mnemonic  string `json:"mnemonic"`
	Count     int    `json:"count"`
}

// SummaryRecord holds the derived counts for one run
type SummaryRecord struct {
	RunID               string       `json:"run_id"`
	Revision            int          `json:"revision"`
	GeneratedAt         time.Time    `json:"generated_at"`
	SourceFile          string       `json:"source_file,omitempty"`
	ReportDate          time.Time    `json:"report_date"`
	TotalNodes          int          `json:"total_nodes"`
	NodesCovered        int          `json:"nodes_covered"`
	NodesNotCovered     int          `json:"nodes_not_covered"`
	NodesNotRunProperly int          `json:"nodes_not_run_properly"`
	TotalOpenCases      int          `json:"total_open_cases"`
	TotalClosedCases    int          `json:"total_closed_cases"`
	TotalIgnoredCases   int          `json:"total_ignored_cases"`
	NewCasesThisRun     int          `json:"new_cases_this_run"`
	ClosedCasesThisRun  int          `json:"closed_cases_this_run"`
	IgnoredCasesThisRun int          `json:"ignored_cases_this_run"`
	BoardTallies        []BoardTally `json:"board_tallies,omitempty"`
	BoardTotal          int          `json:"board_total"`
}

// TrackerState is the full per-network tracker
type TrackerState struct {
	NetworkID   string                `json:"network_id"`
	NetworkName string                `json:"network_name,omitempty"`
	Revision    int                   `json:"revision"`
	UpdatedAt   time.Time             `json:"updated_at"`
	Main        []*TrackedCase        `json:"main"`
	Open        []*TrackedCase        `json:"open"`
	Closed      []*TrackedCase        `json:"closed"`
	Ignored     []*TrackedCase        `json:"ignored"`
	Coverage    []*NodeCoverageRecord `json:"coverage"`
	Summary     *SummaryRecord        `json:"summary,omitempty"`
}

// NewTrackerState returns an empty tracker for a network
func NewTrackerState(networkID string) *TrackerState {
	return &TrackerState{NetworkID: networkID}
}

// IsEmpty reports whether the tracker has never recorded a case or node
func (s *TrackerState) IsEmpty() bool {
	return len(s.Main) == 0 && len(s.Coverage) == 0
}

// Clone returns a deep copy of the state
func (s *TrackerState) Clone() *TrackerState {
	cp := &TrackerState{
		NetworkID:   s.NetworkID,
		NetworkName: s.NetworkName,
		Revision:    s.Revision,
		UpdatedAt:   s.UpdatedAt,
		Main:        cloneCases(s.Main),
		Open:        cloneCases(s.Open),
		Closed:      cloneCases(s.Closed),
		Ignored:     cloneCases(s.Ignored),
		Coverage:    CloneCoverage(s.Coverage),
	}
	if s.Summary != nil {
		sum := *s.Summary
		sum.BoardTallies = append([]BoardTally(nil), s.Summary.BoardTallies...)
		cp.Summary = &sum
	}
	return cp
}

// CloneCoverage deep-copies a coverage partition
func CloneCoverage(in []*NodeCoverageRecord) []*NodeCoverageRecord {
	if in == nil {
		return nil
	}
	out := make([]*NodeCoverageRecord, len(in))
	for i, n := range in {
		out[i] = n.Copy()
	}
	return out
}

func cloneCases(in []*TrackedCase) []*TrackedCase {
	if in == nil {
		return nil
	}
	out := make([]*TrackedCase, len(in))
	for i, c := range in {
		out[i] = c.Copy()
	}
	return out
}

// Validate checks the partition invariants: every key lives in exactly one of
// OPEN/CLOSED/IGNORED, carries that partition's status, and is present in MAIN
// with the same status. It returns a description of the first violation found.
func (s *TrackerState) Validate() error {
	where := make(map[CaseKey]CaseStatus, len(s.Open)+len(s.Closed)+len(s.Ignored))

	partitions := []struct {
		status CaseStatus
		cases  []*TrackedCase
	}{
		{CaseStatusOpen, s.Open},
		{CaseStatusClosed, s.Closed},
		{CaseStatusIgnored, s.Ignored},
	}
	for _, p := range partitions {
		for _, c := range p.cases {
			if c == nil {
				return fmt.Errorf("nil case in %s partition", p.status)
			}
			if c.Status != p.status {
				return fmt.Errorf("case %s has status %s in %s partition", c.Key(), c.Status, p.status)
			}
			if prev, ok := where[c.Key()]; ok {
				return fmt.Errorf("case %s present in both %s and %s partitions", c.Key(), prev, p.status)
			}
			where[c.Key()] = p.status
		}
	}

	seen := make(map[CaseKey]bool, len(s.Main))
	for _, c := range s.Main {
		if c == nil {
			return fmt.Errorf("nil case in MAIN")
		}
		key := c.Key()
		if seen[key] {
			return fmt.Errorf("case %s duplicated in MAIN", key)
		}
		seen[key] = true
		status, ok := where[key]
		if !ok {
			return fmt.Errorf("case %s in MAIN but in no status partition", key)
		}
		if status != c.Status {
			return fmt.Errorf("case %s is %s in MAIN but %s in partitions", key, c.Status, status)
		}
	}
	if len(seen) != len(where) {
		return fmt.Errorf("MAIN holds %d cases but partitions hold %d", len(seen), len(where))
	}

	nodes := make(map[int]bool, len(s.Coverage))
	for _, n := range s.Coverage {
		if n == nil {
			return fmt.Errorf("nil node coverage record")
		}
		if nodes[n.NodeID] {
			return fmt.Errorf("node %d duplicated in coverage", n.NodeID)
		}
		nodes[n.NodeID] = true
	}
	return nil
}
