package summary

import (
	"testing"
	"time"

	"github.com/cuemby/hctracker/pkg/types"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestAggregate(t *testing.T) {
	open := &types.TrackedCase{NodeID: 1, TestCaseID: "1", Status: types.CaseStatusOpen}
	closed := &types.TrackedCase{NodeID: 2, TestCaseID: "2", Status: types.CaseStatusClosed}
	state := &types.TrackerState{
		NetworkID: "net-a",
		Revision:  4,
		Open:      []*types.TrackedCase{open},
		Closed:    []*types.TrackedCase{closed},
		Coverage: []*types.NodeCoverageRecord{
			{NodeID: 1, Status: types.CoverageCovered},
			{NodeID: 2, Status: types.CoverageCovered},
			{NodeID: 3, Status: types.CoverageNotCovered},
			{NodeID: 4, Status: types.CoverageNotRunProperly},
		},
	}
	date := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	s := Aggregate(Input{
		State:       state,
		NewCases:    1,
		ClosedCases: 1,
		RunID:       "run-4",
		SourceFile:  "metro_oct.csv",
		ReportDate:  date,
	})

	assert.Equal(t, 4, s.TotalNodes)
	assert.Equal(t, 2, s.NodesCovered)
	assert.Equal(t, 1, s.NodesNotCovered)
	assert.Equal(t, 1, s.NodesNotRunProperly)
	assert.Equal(t, 1, s.TotalOpenCases)
	assert.Equal(t, 1, s.TotalClosedCases)
	assert.Equal(t, 1, s.NewCasesThisRun)
	assert.Equal(t, 1, s.ClosedCasesThisRun)
	assert.Equal(t, 4, s.Revision)
	assert.Equal(t, "metro_oct.csv", s.SourceFile)
	assert.Equal(t, date, s.ReportDate)
	assert.Nil(t, s.BoardTallies)
}

func TestBoards(t *testing.T) {
	inventory := []types.InventoryRecord{
		{NodeID: 1, ShelfType: "OSN9800", Mnemonic: "TNV"},
		{NodeID: 1, ShelfType: "OSN9800", Mnemonic: "TNV"},
		{NodeID: 2, ShelfType: "OSN1800", Mnemonic: "EG4"},
		{NodeID: 2, ShelfType: "OSN9800", Mnemonic: "AUX "},
	}

	tallies, total := Boards(inventory)

	want := []types.BoardTally{
		{ShelfType: "OSN1800", Mnemonic: "EG4", Count: 1},
		{ShelfType: "OSN9800", Mnemonic: "AUX", Count: 1},
		{ShelfType: "OSN9800", Mnemonic: "TNV", Count: 2},
	}
	if diff := cmp.Diff(want, tallies); diff != "" {
		t.Errorf("Boards() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 4, total)
}
