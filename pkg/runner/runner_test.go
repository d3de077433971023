package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuemby/hctracker/pkg/config"
	"github.com/cuemby/hctracker/pkg/diag"
	"github.com/cuemby/hctracker/pkg/events"
	"github.com/cuemby/hctracker/pkg/extract"
	"github.com/cuemby/hctracker/pkg/storage"
	"github.com/cuemby/hctracker/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	octRun = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	novRun = time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
)

func row(node, tc, severity, issue string) extract.Row {
	return extract.Row{node, "10.0.0." + node, "Site " + node, "NE-" + node, tc, severity, issue, issue + " detail", "check", ""}
}

func newTestStore(t *testing.T) *storage.BoltStore {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir(), storage.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestRunner(t *testing.T, store storage.Store, broker *events.Broker) *Runner {
	t.Helper()
	cfg := config.Default()
	cfg.Run.BatchSize = 2
	return New(store, cfg, broker)
}

func kinds(ws []diag.Warning) []diag.Kind {
	out := make([]diag.Kind, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Kind)
	}
	return out
}

func TestRunBootstrap(t *testing.T) {
	store := newTestStore(t)
	r := newTestRunner(t, store, nil)

	out, err := r.Run(context.Background(), Input{
		NetworkID:   "net-a",
		NetworkName: "Metro",
		SourceFile:  "report-oct.csv",
		ReportDate:  octRun,
		Rows: []extract.Row{
			row("1", "2.2.2", "Failure", "Fan fault"),
			row("1", "3.1.0", "Info", "Inventory note"),
			row("2", "4.1.1", "Warning", "High temperature"),
			{"x", "", "", "", "1.1", "Failure", "bad", "bad", "", ""},
		},
		Inventory: []types.InventoryRecord{
			{NodeID: 1, ShelfType: "OSN9800", Mnemonic: "TN1", ReportDate: octRun},
			{NodeID: 3, ShelfType: "OSN1800", Mnemonic: "TN2", ReportDate: octRun},
		},
		IgnoreLines: []string{},
	})
	require.NoError(t, err)

	assert.True(t, out.Bootstrap)
	assert.NotEmpty(t, out.RunID)
	assert.Equal(t, 1, out.State.Revision)
	assert.Len(t, out.New, 2)
	assert.Len(t, out.State.Open, 2)
	assert.Equal(t, "OSN9800", out.State.Open[0].NEType)
	assert.Equal(t, types.UnknownNEType, out.State.Open[1].NEType)
	assert.Contains(t, kinds(out.Warnings), diag.KindMalformedRow)
	assert.Contains(t, kinds(out.Warnings), diag.KindUnknownNodeType)
	assert.NotContains(t, kinds(out.Warnings), diag.KindMissingIgnoreSource)

	require.NotNil(t, out.Summary)
	assert.Equal(t, 3, out.Summary.TotalNodes)
	assert.Equal(t, 2, out.Summary.NodesCovered)
	assert.Equal(t, 1, out.Summary.NodesNotCovered, "node 3 is only in the inventory")
	assert.Equal(t, 2, out.Summary.NewCasesThisRun)
	assert.Equal(t, 2, out.Summary.BoardTotal)
	assert.Equal(t, "report-oct.csv", out.Summary.SourceFile)

	stored, found, err := store.Load("net-a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Metro", stored.NetworkName)
	assert.Len(t, stored.Open, 2)
	assert.Len(t, stored.Coverage, 3)
}

func TestRunClosesResolvedCases(t *testing.T) {
	store := newTestStore(t)
	r := newTestRunner(t, store, nil)
	ctx := context.Background()

	_, err := r.Run(ctx, Input{
		NetworkID:   "net-a",
		ReportDate:  octRun,
		Rows:        []extract.Row{row("1", "2.2.2", "Failure", "Fan fault"), row("2", "4.1.1", "Failure", "Link down")},
		IgnoreLines: []string{},
	})
	require.NoError(t, err)

	out, err := r.Run(ctx, Input{
		NetworkID:   "net-a",
		ReportDate:  novRun,
		Rows:        []extract.Row{row("1", "2.2.2", "Failure", "Fan fault")},
		IgnoreLines: []string{},
	})
	require.NoError(t, err)

	assert.False(t, out.Bootstrap)
	assert.Equal(t, 2, out.State.Revision)
	assert.Equal(t, 1, out.Retained)
	require.Len(t, out.Closed, 1)
	assert.Equal(t, 2, out.Closed[0].NodeID)
	assert.Equal(t, novRun, out.Closed[0].ClosedOn)
	assert.Len(t, out.State.Main, 2)

	// node 2 was not seen in November
	for _, n := range out.State.Coverage {
		if n.NodeID == 2 {
			assert.Equal(t, types.CoverageNotCovered, n.Status)
		}
	}

	snaps, err := store.ListSnapshots("net-a")
	require.NoError(t, err)
	assert.Len(t, snaps, 2)
}

func TestRunIgnoreSources(t *testing.T) {
	store := newTestStore(t)
	r := newTestRunner(t, store, nil)
	ctx := context.Background()
	rows := []extract.Row{row("1", "2.2.2", "Failure", "Fan fault"), row("1", "9.9.9", "Failure", "Noise")}

	t.Run("missing list", func(t *testing.T) {
		out, err := r.Run(ctx, Input{NetworkID: "net-missing", ReportDate: octRun, Rows: rows})
		require.NoError(t, err)
		assert.Contains(t, kinds(out.Warnings), diag.KindMissingIgnoreSource)
		assert.Len(t, out.State.Open, 2)
	})

	t.Run("stored list", func(t *testing.T) {
		require.NoError(t, store.PutIgnoreRules("net-stored", []string{"9.9.9"}))
		out, err := r.Run(ctx, Input{NetworkID: "net-stored", ReportDate: octRun, Rows: rows})
		require.NoError(t, err)
		assert.NotContains(t, kinds(out.Warnings), diag.KindMissingIgnoreSource)
		assert.Len(t, out.State.Open, 1)
		require.Len(t, out.State.Ignored, 1)
		assert.Equal(t, "9.9.9", out.State.Ignored[0].TestCaseID)
	})

	t.Run("input list wins", func(t *testing.T) {
		require.NoError(t, store.PutIgnoreRules("net-input", []string{"9.9.9"}))
		out, err := r.Run(ctx, Input{NetworkID: "net-input", ReportDate: octRun, Rows: rows, IgnoreLines: []string{"2.2.2", "2.2.2"}})
		require.NoError(t, err)
		assert.Contains(t, kinds(out.Warnings), diag.KindDuplicateIgnoreEntry)
		require.Len(t, out.State.Open, 1)
		assert.Equal(t, "9.9.9", out.State.Open[0].TestCaseID)
	})
}

func TestRunAnnotatesAnomalies(t *testing.T) {
	store := newTestStore(t)
	r := newTestRunner(t, store, nil)

	out, err := r.Run(context.Background(), Input{
		NetworkID:   "net-a",
		ReportDate:  octRun,
		Rows:        []extract.Row{row("5", "1.0.0", "Failure", "Session interrupted during collection")},
		IgnoreLines: []string{},
	})
	require.NoError(t, err)

	require.Len(t, out.State.Coverage, 1)
	node := out.State.Coverage[0]
	assert.Equal(t, types.CoverageNotRunProperly, node.Status)
	assert.NotEmpty(t, node.Anomalies)
	assert.Equal(t, 1, out.Summary.NodesNotRunProperly)
}

func TestRunInventoryOnlyNodeNotCovered(t *testing.T) {
	r := newTestRunner(t, newTestStore(t), nil)

	out, err := r.Run(context.Background(), Input{
		NetworkID:  "net-a",
		ReportDate: octRun,
		Rows:       []extract.Row{row("1", "2.2.2", "Failure", "Fan fault")},
		Inventory: []types.InventoryRecord{
			{NodeID: 1, ShelfType: "OSN9800", Mnemonic: "TN1", ReportDate: octRun},
			{NodeID: 9, ShelfType: "OSN1800", Mnemonic: "TN2", ReportDate: octRun},
		},
		IgnoreLines: []string{},
	})
	require.NoError(t, err)

	status := make(map[int]types.CoverageStatus)
	for _, n := range out.State.Coverage {
		status[n.NodeID] = n.Status
	}
	assert.Equal(t, types.CoverageCovered, status[1])
	assert.Equal(t, types.CoverageNotCovered, status[9])
	assert.Equal(t, 1, out.Summary.NodesCovered)
	assert.Equal(t, 1, out.Summary.NodesNotCovered)
}

func TestRunUnknownSeverityKeepsCaseOpen(t *testing.T) {
	r := newTestRunner(t, newTestStore(t), nil)
	ctx := context.Background()

	_, err := r.Run(ctx, Input{
		NetworkID:   "net-a",
		ReportDate:  octRun,
		Rows:        []extract.Row{row("1", "2.2.2", "Failure", "Fan fault")},
		IgnoreLines: []string{},
	})
	require.NoError(t, err)

	out, err := r.Run(ctx, Input{
		NetworkID:   "net-a",
		ReportDate:  novRun,
		Rows:        []extract.Row{row("1", "2.2.2", "Critical", "Fan fault")},
		IgnoreLines: []string{},
	})
	require.NoError(t, err)

	assert.Len(t, out.State.Open, 1)
	assert.Empty(t, out.Closed)
	assert.Equal(t, 1, out.Retained)
	assert.Contains(t, kinds(out.Warnings), diag.KindUnknownSeverity)
	assert.NotContains(t, kinds(out.Warnings), diag.KindMalformedRow)
}

type corruptStore struct {
	storage.Store
	saves int
}

func (s *corruptStore) Load(networkID string) (*types.TrackerState, bool, error) {
	return nil, false, &diag.CorruptTrackerStateError{NetworkID: networkID, Err: errors.New("case in two partitions")}
}

func (s *corruptStore) Save(string, *types.TrackerState) error {
	s.saves++
	return nil
}

func TestRunCorruptStateAborts(t *testing.T) {
	store := &corruptStore{Store: newTestStore(t)}
	r := newTestRunner(t, store, nil)

	_, err := r.Run(context.Background(), Input{NetworkID: "net-a", ReportDate: octRun})
	require.Error(t, err)
	assert.True(t, diag.IsFatal(err))
	assert.Zero(t, store.saves)
}

func TestRunCancelledContext(t *testing.T) {
	r := newTestRunner(t, newTestStore(t), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx, Input{NetworkID: "net-a"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunPublishesEvents(t *testing.T) {
	broker := events.NewBroker()
	sub := broker.Subscribe()
	broker.Start()

	r := newTestRunner(t, newTestStore(t), broker)
	_, err := r.Run(context.Background(), Input{
		NetworkID:   "net-a",
		ReportDate:  octRun,
		Rows:        []extract.Row{row("1", "2.2.2", "Failure", "Fan fault")},
		IgnoreLines: []string{},
	})
	require.NoError(t, err)
	broker.Stop()

	var got []events.EventType
	for ev := range sub {
		assert.Equal(t, "net-a", ev.NetworkID)
		got = append(got, ev.Type)
	}
	assert.Equal(t, []events.EventType{events.EventRunStarted, events.EventCaseOpened, events.EventRunCompleted}, got)
}

func TestRunAll(t *testing.T) {
	store := newTestStore(t)
	r := newTestRunner(t, store, nil)

	inputs := []Input{
		{NetworkID: "net-a", ReportDate: octRun, Rows: []extract.Row{row("1", "2.2.2", "Failure", "Fan fault")}, IgnoreLines: []string{}},
		{NetworkID: "", ReportDate: octRun},
		{NetworkID: "net-b", ReportDate: octRun, Rows: []extract.Row{row("7", "3.3.3", "Warning", "Clock drift")}, IgnoreLines: []string{}},
		{NetworkID: "net-a", ReportDate: novRun, IgnoreLines: []string{}},
	}
	results := r.RunAll(context.Background(), inputs)
	require.Len(t, results, 4)

	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)
	assert.NoError(t, results[3].Err)

	networks, err := store.ListNetworks()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"net-a", "net-b"}, networks)

	stored, _, err := store.Load("net-a")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Revision)
}

func TestReopen(t *testing.T) {
	store := newTestStore(t)
	r := newTestRunner(t, store, nil)
	ctx := context.Background()

	_, err := r.Run(ctx, Input{NetworkID: "net-a", ReportDate: octRun, Rows: []extract.Row{row("1", "2.2.2", "Failure", "Fan fault")}, IgnoreLines: []string{}})
	require.NoError(t, err)
	out, err := r.Run(ctx, Input{NetworkID: "net-a", ReportDate: novRun, IgnoreLines: []string{}})
	require.NoError(t, err)
	require.Len(t, out.Closed, 1)

	key := out.Closed[0].Key()
	state, err := r.Reopen(ctx, "net-a", key)
	require.NoError(t, err)
	assert.Len(t, state.Open, 1)
	assert.Empty(t, state.Closed)

	_, err = r.Reopen(ctx, "net-a", key)
	assert.Error(t, err)

	_, err = r.Reopen(ctx, "net-unknown", key)
	assert.Error(t, err)
}
