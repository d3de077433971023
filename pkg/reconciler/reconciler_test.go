package reconciler

import (
	"testing"
	"time"

	"github.com/cuemby/hctracker/pkg/diag"
	"github.com/cuemby/hctracker/pkg/ignore"
	"github.com/cuemby/hctracker/pkg/types"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	octRun = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	novRun = time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
)

func finding(node int, tc, issue string) types.Finding {
	return types.Finding{
		NodeID:      node,
		TestCaseID:  tc,
		Severity:    types.SeverityFailure,
		Issue:       issue,
		Description: issue + " detail",
		ReportDate:  octRun,
	}
}

func opts(runID string, date time.Time) Options {
	return Options{RunID: runID, NetworkName: "Metro", ReportDate: date, Now: date}
}

func neTypes(m map[int]string) NETypeLookup {
	return func(id int) (string, bool) {
		t, ok := m[id]
		return t, ok
	}
}

func keys(cases []*types.TrackedCase) []types.CaseKey {
	out := make([]types.CaseKey, 0, len(cases))
	for _, c := range cases {
		out = append(out, c.Key())
	}
	return out
}

func TestFirstRunOpensEveryActiveFinding(t *testing.T) {
	findings := []types.Finding{finding(1, "2.2.2", "Fan fault")}

	res, err := Reconcile("net-a", nil, findings, nil, neTypes(map[int]string{1: "OSN"}), opts("run-1", octRun))
	require.NoError(t, err)

	require.Len(t, res.State.Open, 1)
	assert.Len(t, res.New, 1)
	assert.Empty(t, res.Closed)
	assert.Empty(t, res.State.Closed)

	c := res.State.Open[0]
	assert.Equal(t, types.CaseStatusOpen, c.Status)
	assert.Equal(t, "OSN", c.NEType)
	assert.Equal(t, "Int", c.IntExt)
	assert.Equal(t, "TBD", c.FaultCategory)
	assert.Equal(t, "Metro", c.NetworkName)
	assert.Equal(t, "run-1", c.RunID)
	assert.Equal(t, 1, res.State.Revision)
	require.Len(t, res.State.Main, 1)
	assert.Equal(t, types.CaseStatusOpen, res.State.Main[0].Status)
}

func TestMissingCaseIsClosed(t *testing.T) {
	first, err := Reconcile("net-a", nil, []types.Finding{
		finding(5, "1.1.1", "X"),
		finding(6, "1.1.2", "Y"),
	}, nil, nil, opts("run-1", octRun))
	require.NoError(t, err)

	second, err := Reconcile("net-a", first.State, []types.Finding{
		finding(6, "1.1.2", "Y"),
	}, nil, nil, opts("run-2", novRun))
	require.NoError(t, err)

	assert.Len(t, second.State.Open, len(first.State.Open)-1)
	require.Len(t, second.State.Closed, 1)
	closed := second.State.Closed[0]
	assert.Equal(t, 5, closed.NodeID)
	assert.Equal(t, types.CaseStatusClosed, closed.Status)
	assert.Equal(t, novRun, closed.ClosedOn)
	assert.Equal(t, "run-2", closed.RunID)
	assert.Equal(t, 1, second.Retained)
	assert.Empty(t, second.New)

	for _, m := range second.State.Main {
		if m.NodeID == 5 {
			assert.Equal(t, types.CaseStatusClosed, m.Status)
		}
	}
}

func TestIgnoredFindingNeverOpens(t *testing.T) {
	rules, _ := ignore.Load([]string{"3.3.3"})

	res, err := Reconcile("net-a", nil, []types.Finding{
		finding(1, "3.3.3", "Noise"),
		finding(1, "4.4.4", "Real"),
	}, rules, nil, opts("run-1", octRun))
	require.NoError(t, err)

	require.Len(t, res.State.Ignored, 1)
	assert.Equal(t, "3.3.3", res.State.Ignored[0].TestCaseID)
	assert.Equal(t, types.CaseStatusIgnored, res.State.Ignored[0].Status)
	require.Len(t, res.State.Open, 1)
	assert.Equal(t, "4.4.4", res.State.Open[0].TestCaseID)
}

func TestIgnoreRuleTakesPrecedenceOverPriorOpen(t *testing.T) {
	first, err := Reconcile("net-a", nil, []types.Finding{finding(1, "3.3.3", "Noise")}, nil, nil, opts("run-1", octRun))
	require.NoError(t, err)
	require.Len(t, first.State.Open, 1)

	rules, _ := ignore.Load([]string{"3.3.3"})
	second, err := Reconcile("net-a", first.State, []types.Finding{finding(1, "3.3.3", "Noise")}, rules, nil, opts("run-2", novRun))
	require.NoError(t, err)

	assert.Empty(t, second.State.Open)
	assert.Empty(t, second.State.Closed, "an ignored case is not a resolved case")
	require.Len(t, second.State.Ignored, 1)
	assert.Len(t, second.Ignored, 1)
	assert.Equal(t, octRun, second.State.Ignored[0].FirstSeen)
}

func TestDuplicateRowsCreateOneCase(t *testing.T) {
	var findings []types.Finding
	for i := 0; i < 5000; i++ {
		findings = append(findings, finding(9, "7.7.7", "Link down"))
	}

	res, err := Reconcile("net-a", nil, findings, nil, nil, opts("run-1", octRun))
	require.NoError(t, err)

	assert.Len(t, res.State.Open, 1)
	assert.Len(t, res.New, 1)
	assert.Len(t, res.State.Main, 1)
}

func TestBatchedAddMatchesOneShot(t *testing.T) {
	var findings []types.Finding
	for node := 0; node < 300; node++ {
		findings = append(findings, finding(node%40, "1.1.1", "Issue"), finding(node%17, "2.2.2", "Other"))
	}

	oneShot, err := Reconcile("net-a", nil, findings, nil, nil, opts("run-1", octRun))
	require.NoError(t, err)

	run, err := New("net-a", nil, nil, nil, opts("run-1", octRun))
	require.NoError(t, err)
	for start := 0; start < len(findings); start += 64 {
		end := start + 64
		if end > len(findings) {
			end = len(findings)
		}
		run.Add(findings[start:end])
	}
	batched, err := run.Commit()
	require.NoError(t, err)

	assert.Equal(t, len(findings), run.Findings())
	if diff := cmp.Diff(oneShot.State, batched.State); diff != "" {
		t.Errorf("batched state differs from one-shot (-want +got):\n%s", diff)
	}
}

func TestRerunIsIdempotent(t *testing.T) {
	findings := []types.Finding{
		finding(1, "1.1.1", "A"),
		finding(2, "1.1.2", "B"),
		finding(3, "1.1.3", "C"),
	}
	rules, _ := ignore.Load([]string{"1.1.3"})

	first, err := Reconcile("net-a", nil, findings, rules, nil, opts("run-1", octRun))
	require.NoError(t, err)
	second, err := Reconcile("net-a", first.State, findings, rules, nil, opts("run-2", octRun))
	require.NoError(t, err)

	assert.Empty(t, second.New)
	assert.Empty(t, second.Closed)
	assert.Empty(t, second.Ignored)
	assert.Equal(t, keys(first.State.Open), keys(second.State.Open))
	assert.Equal(t, keys(first.State.Ignored), keys(second.State.Ignored))

	require.Len(t, second.Warnings, 1)
	assert.Equal(t, diag.KindDuplicateIgnoreEntry, diag.KindOf(second.Warnings[0]))
}

func TestClosedCaseIsNotReopened(t *testing.T) {
	first, err := Reconcile("net-a", nil, []types.Finding{finding(1, "1.1.1", "A")}, nil, nil, opts("run-1", octRun))
	require.NoError(t, err)
	second, err := Reconcile("net-a", first.State, nil, nil, nil, opts("run-2", novRun))
	require.NoError(t, err)
	require.Len(t, second.State.Closed, 1)

	third, err := Reconcile("net-a", second.State, []types.Finding{finding(1, "1.1.1", "A")}, nil, nil, opts("run-3", novRun))
	require.NoError(t, err)

	assert.Empty(t, third.State.Open)
	assert.Len(t, third.State.Closed, 1)
	assert.Empty(t, third.New)
	require.Len(t, third.Recurred, 1)
	assert.Equal(t, diag.KindRecurringCase, diag.KindOf(third.Warnings[0]))
}

func TestClosedCaseMovesToIgnoredWhenRuleAdded(t *testing.T) {
	first, _ := Reconcile("net-a", nil, []types.Finding{finding(1, "1.1.1", "A")}, nil, nil, opts("run-1", octRun))
	second, _ := Reconcile("net-a", first.State, nil, nil, nil, opts("run-2", novRun))

	rules, _ := ignore.Load([]string{"1.1.1"})
	third, err := Reconcile("net-a", second.State, []types.Finding{finding(1, "1.1.1", "A")}, rules, nil, opts("run-3", novRun))
	require.NoError(t, err)

	assert.Empty(t, third.State.Closed)
	require.Len(t, third.State.Ignored, 1)
	assert.NoError(t, third.State.Validate())
}

func TestUnknownNodeTypeWarnsOncePerNode(t *testing.T) {
	res, err := Reconcile("net-a", nil, []types.Finding{
		finding(1, "1.1.1", "A"),
		finding(1, "1.1.2", "B"),
		finding(2, "1.1.1", "A"),
	}, nil, neTypes(map[int]string{2: "PTN"}), opts("run-1", octRun))
	require.NoError(t, err)

	require.Len(t, res.Warnings, 1)
	assert.Equal(t, diag.KindUnknownNodeType, diag.KindOf(res.Warnings[0]))
	for _, c := range res.State.Open {
		if c.NodeID == 1 {
			assert.Equal(t, "Unknown", c.NEType)
		} else {
			assert.Equal(t, "PTN", c.NEType)
		}
	}
}

func TestOpenSortedByNodeID(t *testing.T) {
	res, err := Reconcile("net-a", nil, []types.Finding{
		finding(30, "1", "A"),
		finding(4, "1", "A"),
		finding(30, "2", "B"),
		finding(12, "1", "A"),
	}, nil, nil, opts("run-1", octRun))
	require.NoError(t, err)

	var got []int
	var tcs []string
	for _, c := range res.State.Open {
		got = append(got, c.NodeID)
		tcs = append(tcs, c.TestCaseID)
	}
	assert.Equal(t, []int{4, 12, 30, 30}, got)
	assert.Equal(t, []string{"1", "1", "1", "2"}, tcs, "ties keep arrival order")
}

func TestCorruptPriorIsFatal(t *testing.T) {
	c := &types.TrackedCase{NodeID: 1, TestCaseID: "1", Issue: "A", Description: "d", Status: types.CaseStatusOpen}
	closed := c.Copy()
	closed.Status = types.CaseStatusClosed
	prior := &types.TrackerState{
		NetworkID: "net-a",
		Main:      []*types.TrackedCase{c},
		Open:      []*types.TrackedCase{c},
		Closed:    []*types.TrackedCase{closed},
	}

	_, err := Reconcile("net-a", prior, nil, nil, nil, opts("run-1", octRun))
	require.Error(t, err)
	assert.True(t, diag.IsFatal(err))
}

func TestPriorStateIsNotModified(t *testing.T) {
	first, err := Reconcile("net-a", nil, []types.Finding{finding(1, "1.1.1", "A")}, nil, nil, opts("run-1", octRun))
	require.NoError(t, err)
	before := first.State.Clone()

	_, err = Reconcile("net-a", first.State, nil, nil, nil, opts("run-2", novRun))
	require.NoError(t, err)

	if diff := cmp.Diff(before, first.State); diff != "" {
		t.Errorf("prior state mutated (-before +after):\n%s", diff)
	}
}

func TestPartitionExclusivityAcrossRuns(t *testing.T) {
	rules, _ := ignore.Load([]string{"9"})
	runs := [][]types.Finding{
		{finding(1, "1", "A"), finding(2, "2", "B"), finding(3, "9", "C")},
		{finding(2, "2", "B"), finding(4, "4", "D")},
		{finding(1, "1", "A"), finding(3, "9", "C"), finding(4, "9", "E")},
		{},
	}

	var state *types.TrackerState
	for i, findings := range runs {
		res, err := Reconcile("net-a", state, findings, rules, nil, opts("run", octRun.AddDate(0, i, 0)))
		require.NoError(t, err)
		require.NoError(t, res.State.Validate())
		state = res.State
	}

	assert.Empty(t, state.Open)
	assert.Len(t, state.Main, len(state.Closed)+len(state.Ignored))
}

func TestCommitTwice(t *testing.T) {
	run, err := New("net-a", nil, nil, nil, opts("run-1", octRun))
	require.NoError(t, err)
	_, err = run.Commit()
	require.NoError(t, err)
	_, err = run.Commit()
	assert.Error(t, err)
}

func TestReopen(t *testing.T) {
	first, _ := Reconcile("net-a", nil, []types.Finding{finding(1, "1.1.1", "A"), finding(2, "2.2.2", "B")}, nil, nil, opts("run-1", octRun))
	second, _ := Reconcile("net-a", first.State, []types.Finding{finding(2, "2.2.2", "B")}, nil, nil, opts("run-2", novRun))
	require.Len(t, second.State.Closed, 1)
	key := second.State.Closed[0].Key()

	reopened, err := Reopen(second.State, key, "manual", novRun)
	require.NoError(t, err)

	assert.Empty(t, reopened.Closed)
	require.Len(t, reopened.Open, 2)
	assert.Equal(t, 1, reopened.Open[0].NodeID)
	assert.True(t, reopened.Open[0].ClosedOn.IsZero())
	assert.Equal(t, second.State.Revision+1, reopened.Revision)
	assert.Len(t, second.State.Closed, 1, "input state untouched")

	_, err = Reopen(reopened, key, "manual", novRun)
	assert.ErrorContains(t, err, "already open")
	_, err = Reopen(reopened, types.CaseKey{NodeID: 99}, "manual", novRun)
	assert.ErrorContains(t, err, "not found")
}
