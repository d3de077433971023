package summary

import (
	"sort"
	"strings"
	"time"

	"github.com/cuemby/hctracker/pkg/types"
)

// Input is everything the aggregator counts over. State must already be
// reconciled and carry its final coverage partition.
type Input struct {
	State       *types.TrackerState
	NewCases    int
	ClosedCases int
	Ignored     int
	Inventory   []types.InventoryRecord
	RunID       string
	SourceFile  string
	ReportDate  time.Time
	GeneratedAt time.Time
}

// Aggregate computes the run summary. It has no side effects.
func Aggregate(in Input) *types.SummaryRecord {
	s := &types.SummaryRecord{
		RunID:               in.RunID,
		Revision:            in.State.Revision,
		GeneratedAt:         in.GeneratedAt,
		SourceFile:          in.SourceFile,
		ReportDate:          in.ReportDate,
		TotalNodes:          len(in.State.Coverage),
		TotalOpenCases:      len(in.State.Open),
		TotalClosedCases:    len(in.State.Closed),
		TotalIgnoredCases:   len(in.State.Ignored),
		NewCasesThisRun:     in.NewCases,
		ClosedCasesThisRun:  in.ClosedCases,
		IgnoredCasesThisRun: in.Ignored,
	}

	for _, n := range in.State.Coverage {
		switch n.Status {
		case types.CoverageCovered:
			s.NodesCovered++
		case types.CoverageNotRunProperly:
			s.NodesNotRunProperly++
		default:
			s.NodesNotCovered++
		}
	}

	s.BoardTallies, s.BoardTotal = Boards(in.Inventory)
	return s
}

// Boards groups inventory rows by (shelf type, mnemonic), sorted by shelf
// type then mnemonic, and returns the tallies with their total
func Boards(inventory []types.InventoryRecord) ([]types.BoardTally, int) {
	type pair struct{ shelf, mnemonic string }
	counts := make(map[pair]int)
	for _, inv := range inventory {
		counts[pair{strings.TrimSpace(inv.ShelfType), strings.TrimSpace(inv.Mnemonic)}]++
	}

	tallies := make([]types.BoardTally, 0, len(counts))
	total := 0
	for p, n := range counts {
		tallies = append(tallies, types.BoardTally{ShelfType: p.shelf, Mnemonic: p.mnemonic, Count: n})
		total += n
	}
	sort.Slice(tallies, func(i, j int) bool {
		if tallies[i].ShelfType != tallies[j].ShelfType {
			return tallies[i].ShelfType < tallies[j].ShelfType
		}
		return tallies[i].Mnemonic < tallies[j].Mnemonic
	})
	if len(tallies) == 0 {
		tallies = nil
	}
	return tallies, total
}
