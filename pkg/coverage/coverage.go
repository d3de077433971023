package coverage

import (
	"sort"
	"strings"
	"time"

	"github.com/cuemby/hctracker/pkg/config"
	"github.com/cuemby/hctracker/pkg/extract"
	"github.com/cuemby/hctracker/pkg/types"
)

// Input is the per-run data the tracker folds into node coverage
type Input struct {
	Inventory []types.InventoryRecord
	Sightings map[int]*extract.Sighting
	Month     int
	Year      int
}

// Tracker maintains the node coverage partition
type Tracker struct {
	anomalies     []config.AnomalyRule
	unknownNEType string
}

// NewTracker creates a tracker that flags nodes with OPEN cases matching
// one of anomalies
func NewTracker(anomalies []config.AnomalyRule, unknownNEType string) *Tracker {
	if unknownNEType == "" {
		unknownNEType = types.UnknownNEType
	}
	return &Tracker{anomalies: anomalies, unknownNEType: unknownNEType}
}

// Update merges this run's inventory and node sightings into prior and
// recomputes every node's coverage status against (Month, Year). Only report
// sightings advance a node's last run; inventory adds nodes and names their
// NE type but never marks them covered. Nodes are
// never dropped; nodes seen for the first time are added. Anomalies are
// cleared; Annotate reapplies them. prior is not modified.
func (t *Tracker) Update(prior []*types.NodeCoverageRecord, in Input) []*types.NodeCoverageRecord {
	nodes := make(map[int]*types.NodeCoverageRecord, len(prior))
	for _, n := range prior {
		nodes[n.NodeID] = n.Copy()
	}
	get := func(id int) *types.NodeCoverageRecord {
		n, ok := nodes[id]
		if !ok {
			n = &types.NodeCoverageRecord{NodeID: id, NEType: t.unknownNEType}
			nodes[id] = n
		}
		return n
	}

	for _, inv := range in.Inventory {
		n := get(inv.NodeID)
		if shelf := strings.TrimSpace(inv.ShelfType); shelf != "" {
			n.NEType = shelf
		}
	}

	ids := make([]int, 0, len(in.Sightings))
	for id := range in.Sightings {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		s := in.Sightings[id]
		n := get(id)
		if s.NodeIP != "" {
			n.NodeIP = s.NodeIP
		}
		if s.Location != "" {
			n.Location = s.Location
		}
		if s.UserLabel != "" {
			n.UserLabel = s.UserLabel
		}
		advance(n, s.LastSeen)
	}

	out := make([]*types.NodeCoverageRecord, 0, len(nodes))
	for _, n := range nodes {
		n.Anomalies = nil
		n.Status = baseStatus(n, in.Month, in.Year)
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out
}

// Annotate clears every node's anomalies, then marks NotRunProperly each node
// whose OPEN cases match an anomaly rule, attaching the rule's remediation.
// It returns new records; nodes is not modified.
func (t *Tracker) Annotate(nodes []*types.NodeCoverageRecord, open []*types.TrackedCase, month, year int) []*types.NodeCoverageRecord {
	byID := make(map[int]*types.NodeCoverageRecord, len(nodes))
	out := make([]*types.NodeCoverageRecord, len(nodes))
	for i, n := range nodes {
		cp := n.Copy()
		cp.Anomalies = nil
		cp.Status = baseStatus(cp, month, year)
		out[i] = cp
		byID[cp.NodeID] = cp
	}

	for _, c := range open {
		rule, ok := t.match(c)
		if !ok {
			continue
		}
		n, ok := byID[c.NodeID]
		if !ok {
			continue
		}
		if hasAnomaly(n, rule.Code) {
			continue
		}
		n.Anomalies = append(n.Anomalies, types.Anomaly{
			Code:        rule.Code,
			Category:    rule.Category,
			Remediation: rule.Remediation,
			TestCaseID:  c.TestCaseID,
		})
		n.Status = types.CoverageNotRunProperly
	}
	return out
}

// Lookup returns an NE type resolver over nodes. Nodes whose NE type is
// still unknown resolve as missing.
func (t *Tracker) Lookup(nodes []*types.NodeCoverageRecord) func(int) (string, bool) {
	neTypes := make(map[int]string, len(nodes))
	for _, n := range nodes {
		if n.NEType != "" && n.NEType != t.unknownNEType {
			neTypes[n.NodeID] = n.NEType
		}
	}
	return func(id int) (string, bool) {
		ne, ok := neTypes[id]
		return ne, ok
	}
}

func (t *Tracker) match(c *types.TrackedCase) (config.AnomalyRule, bool) {
	issue := strings.ToLower(c.Issue)
	desc := strings.ToLower(c.Description)
	for _, rule := range t.anomalies {
		if rule.TestCaseID != "" && strings.EqualFold(strings.TrimSpace(rule.TestCaseID), c.TestCaseID) {
			return rule, true
		}
		if rule.IssueContains != "" {
			needle := strings.ToLower(rule.IssueContains)
			if strings.Contains(issue, needle) || strings.Contains(desc, needle) {
				return rule, true
			}
		}
	}
	return config.AnomalyRule{}, false
}

func hasAnomaly(n *types.NodeCoverageRecord, code string) bool {
	for _, a := range n.Anomalies {
		if a.Code == code {
			return true
		}
	}
	return false
}

func baseStatus(n *types.NodeCoverageRecord, month, year int) types.CoverageStatus {
	if n.RanIn(month, year) {
		return types.CoverageCovered
	}
	return types.CoverageNotCovered
}

// advance moves the node's last run period forward to date's period
func advance(n *types.NodeCoverageRecord, date time.Time) {
	if date.IsZero() {
		return
	}
	y, m := date.Year(), int(date.Month())
	if y > n.LastRunYear || (y == n.LastRunYear && m > n.LastRunMonth) {
		n.LastRunYear = y
		n.LastRunMonth = m
	}
}
