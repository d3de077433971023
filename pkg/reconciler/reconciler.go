package reconciler

import (
	"fmt"
	"sort"
	"time"

	"github.com/cuemby/hctracker/pkg/diag"
	"github.com/cuemby/hctracker/pkg/ignore"
	"github.com/cuemby/hctracker/pkg/types"
)

// NETypeLookup resolves a node's NE type from node coverage
type NETypeLookup func(nodeID int) (string, bool)

// Defaults are the field values given to newly tracked cases
type Defaults struct {
	IntExt        string
	FaultCategory string
	UnknownNEType string
}

// Options parameterize one reconciliation run
type Options struct {
	RunID       string
	NetworkName string
	ReportDate  time.Time
	Now         time.Time
	Defaults    Defaults
}

// Result is the outcome of a committed run
type Result struct {
	State    *types.TrackerState
	New      []*types.TrackedCase // opened this run
	Closed   []*types.TrackedCase // OPEN -> CLOSED this run
	Ignored  []*types.TrackedCase // newly IGNORED this run
	Recurred []*types.TrackedCase // seen again while CLOSED or IGNORED, unchanged
	Retained int                  // OPEN cases still present
	Warnings []error
}

// Run is an in-progress reconciliation of one network. Findings are folded in
// batch by batch with Add; Commit produces the next tracker state. The prior
// state is never modified.
type Run struct {
	prior  *types.TrackerState
	rules  *ignore.RuleSet
	lookup NETypeLookup
	opts   Options

	// prior partitions
	open    map[types.CaseKey]bool
	closed  map[types.CaseKey]bool
	ignored map[types.CaseKey]bool

	// this run
	active          map[types.CaseKey]time.Time // prior OPEN keys seen again, latest date
	openToIgnored   map[types.CaseKey]time.Time
	closedToIgnored map[types.CaseKey]time.Time
	recurring       map[types.CaseKey]bool
	reIgnored       map[types.CaseKey]bool
	newOpen         map[types.CaseKey]*types.TrackedCase
	newOpenOrder    []types.CaseKey
	newIgnored      map[types.CaseKey]*types.TrackedCase
	newIgnoredOrder []types.CaseKey
	unknownNodes    map[int]bool

	findings  int
	warnings  []error
	committed bool
}

// New starts a run against prior. A nil or empty prior is a first run for the
// network. A prior that violates the partition invariants is rejected with a
// CorruptTrackerStateError before anything else happens.
func New(networkID string, prior *types.TrackerState, rules *ignore.RuleSet, lookup NETypeLookup, opts Options) (*Run, error) {
	if prior == nil {
		prior = types.NewTrackerState(networkID)
	}
	if err := prior.Validate(); err != nil {
		return nil, &diag.CorruptTrackerStateError{NetworkID: networkID, Err: err}
	}
	if rules == nil {
		rules = ignore.Empty()
	}
	if lookup == nil {
		lookup = func(int) (string, bool) { return "", false }
	}
	if opts.Defaults.IntExt == "" {
		opts.Defaults.IntExt = types.DefaultIntExt
	}
	if opts.Defaults.FaultCategory == "" {
		opts.Defaults.FaultCategory = types.DefaultFaultCategory
	}
	if opts.Defaults.UnknownNEType == "" {
		opts.Defaults.UnknownNEType = types.UnknownNEType
	}
	if opts.NetworkName == "" {
		opts.NetworkName = prior.NetworkName
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now().UTC()
	}

	r := &Run{
		prior:           prior,
		rules:           rules,
		lookup:          lookup,
		opts:            opts,
		open:            keySet(prior.Open),
		closed:          keySet(prior.Closed),
		ignored:         keySet(prior.Ignored),
		active:          make(map[types.CaseKey]time.Time),
		openToIgnored:   make(map[types.CaseKey]time.Time),
		closedToIgnored: make(map[types.CaseKey]time.Time),
		recurring:       make(map[types.CaseKey]bool),
		reIgnored:       make(map[types.CaseKey]bool),
		newOpen:         make(map[types.CaseKey]*types.TrackedCase),
		newIgnored:      make(map[types.CaseKey]*types.TrackedCase),
		unknownNodes:    make(map[int]bool),
	}
	return r, nil
}

// Reconcile is the one-shot form of New, Add and Commit
func Reconcile(networkID string, prior *types.TrackerState, findings []types.Finding, rules *ignore.RuleSet, lookup NETypeLookup, opts Options) (*Result, error) {
	r, err := New(networkID, prior, rules, lookup, opts)
	if err != nil {
		return nil, err
	}
	r.Add(findings)
	return r.Commit()
}

// Add folds a batch of candidate findings into the run. Batches may be of any
// size; duplicates within and across batches collapse onto one case.
func (r *Run) Add(batch []types.Finding) {
	for i := range batch {
		f := &batch[i]
		r.findings++
		key := f.Key()
		ignoredNow := r.rules.Matches(f)

		switch {
		case r.ignored[key]:
			if ignoredNow {
				r.reIgnored[key] = true
			} else {
				r.recurring[key] = true
			}
		case r.closed[key]:
			if ignoredNow {
				markLatest(r.closedToIgnored, key, f.ReportDate)
			} else {
				r.recurring[key] = true
			}
		case r.open[key]:
			if ignoredNow {
				markLatest(r.openToIgnored, key, f.ReportDate)
			} else {
				markLatest(r.active, key, f.ReportDate)
			}
		case ignoredNow:
			if c, ok := r.newIgnored[key]; ok {
				touch(c, f.ReportDate)
				continue
			}
			c := r.newCase(f, types.CaseStatusIgnored)
			r.newIgnored[key] = c
			r.newIgnoredOrder = append(r.newIgnoredOrder, key)
		default:
			if c, ok := r.newOpen[key]; ok {
				touch(c, f.ReportDate)
				continue
			}
			c := r.newCase(f, types.CaseStatusOpen)
			r.newOpen[key] = c
			r.newOpenOrder = append(r.newOpenOrder, key)
		}
	}
}

// Findings returns the number of findings added so far
func (r *Run) Findings() int {
	return r.findings
}

// Commit closes every prior OPEN case that was not seen in this run and
// returns the next tracker state. A Run can be committed once.
func (r *Run) Commit() (*Result, error) {
	if r.committed {
		return nil, fmt.Errorf("reconciliation run %s already committed", r.opts.RunID)
	}
	r.committed = true

	next := &types.TrackerState{
		NetworkID:   r.prior.NetworkID,
		NetworkName: r.opts.NetworkName,
		Revision:    r.prior.Revision + 1,
		UpdatedAt:   r.opts.Now,
		Coverage:    types.CloneCoverage(r.prior.Coverage),
	}
	res := &Result{State: next}

	// OPEN: keep, close, or move to IGNORED
	for _, prev := range r.prior.Open {
		c := prev.Copy()
		key := c.Key()
		if seen, ok := r.openToIgnored[key]; ok {
			c.Status = types.CaseStatusIgnored
			c.RunID = r.opts.RunID
			touch(c, seen)
			next.Ignored = append(next.Ignored, c)
			res.Ignored = append(res.Ignored, c)
			continue
		}
		if seen, ok := r.active[key]; ok {
			touch(c, seen)
			next.Open = append(next.Open, c)
			res.Retained++
			continue
		}
		c.Status = types.CaseStatusClosed
		c.ClosedOn = r.opts.ReportDate
		c.RunID = r.opts.RunID
		next.Closed = append(next.Closed, c)
		res.Closed = append(res.Closed, c)
	}

	// CLOSED: kept unless an ignore rule now claims the case
	for _, prev := range r.prior.Closed {
		c := prev.Copy()
		key := c.Key()
		if seen, ok := r.closedToIgnored[key]; ok {
			c.Status = types.CaseStatusIgnored
			c.RunID = r.opts.RunID
			touch(c, seen)
			next.Ignored = append(next.Ignored, c)
			res.Ignored = append(res.Ignored, c)
			continue
		}
		if r.recurring[key] {
			res.Recurred = append(res.Recurred, c)
		}
		next.Closed = append(next.Closed, c)
	}

	// IGNORED: first classification wins, provenance is kept
	for _, prev := range r.prior.Ignored {
		c := prev.Copy()
		if r.recurring[c.Key()] {
			res.Recurred = append(res.Recurred, c)
		}
		next.Ignored = append(next.Ignored, c)
	}

	for _, key := range r.newOpenOrder {
		c := r.newOpen[key]
		next.Open = append(next.Open, c)
		res.New = append(res.New, c)
	}
	for _, key := range r.newIgnoredOrder {
		c := r.newIgnored[key]
		next.Ignored = append(next.Ignored, c)
		res.Ignored = append(res.Ignored, c)
	}

	sort.SliceStable(next.Open, func(i, j int) bool {
		return next.Open[i].NodeID < next.Open[j].NodeID
	})

	next.Main = buildMain(r.prior.Main, next)

	if n := len(r.reIgnored); n > 0 {
		r.warnings = append(r.warnings, &diag.DuplicateIgnoreEntryError{Count: n})
	}
	if n := len(r.recurring); n > 0 {
		r.warnings = append(r.warnings, &diag.RecurringCaseError{Count: n})
	}
	res.Warnings = r.warnings

	if err := next.Validate(); err != nil {
		return nil, fmt.Errorf("reconciled state for %s is inconsistent: %w", next.NetworkID, err)
	}
	return res, nil
}

func (r *Run) newCase(f *types.Finding, status types.CaseStatus) *types.TrackedCase {
	neType, ok := r.lookup(f.NodeID)
	if !ok || neType == "" {
		neType = r.opts.Defaults.UnknownNEType
		if !r.unknownNodes[f.NodeID] {
			r.unknownNodes[f.NodeID] = true
			r.warnings = append(r.warnings, &diag.UnknownNodeTypeError{NodeID: f.NodeID})
		}
	}
	c := types.NewTrackedCase(f, status, neType, r.opts.NetworkName, r.opts.RunID)
	c.IntExt = r.opts.Defaults.IntExt
	c.FaultCategory = r.opts.Defaults.FaultCategory
	return c
}

// buildMain keeps MAIN in first-seen order with every entry mirroring the
// case's record in its current partition
func buildMain(priorMain []*types.TrackedCase, next *types.TrackerState) []*types.TrackedCase {
	current := make(map[types.CaseKey]*types.TrackedCase, len(next.Open)+len(next.Closed)+len(next.Ignored))
	for _, part := range [][]*types.TrackedCase{next.Open, next.Closed, next.Ignored} {
		for _, c := range part {
			current[c.Key()] = c
		}
	}

	main := make([]*types.TrackedCase, 0, len(current))
	placed := make(map[types.CaseKey]bool, len(current))
	for _, prev := range priorMain {
		key := prev.Key()
		if c, ok := current[key]; ok && !placed[key] {
			main = append(main, c.Copy())
			placed[key] = true
		}
	}
	for _, part := range [][]*types.TrackedCase{next.Open, next.Ignored} {
		for _, c := range part {
			if key := c.Key(); !placed[key] {
				main = append(main, c.Copy())
				placed[key] = true
			}
		}
	}
	return main
}

// Reopen moves a CLOSED case back to OPEN. Reconciliation never does this on
// its own; it is an explicit operator action.
func Reopen(state *types.TrackerState, key types.CaseKey, runID string, now time.Time) (*types.TrackerState, error) {
	if err := state.Validate(); err != nil {
		return nil, &diag.CorruptTrackerStateError{NetworkID: state.NetworkID, Err: err}
	}

	next := state.Clone()
	idx := -1
	for i, c := range next.Closed {
		if c.Key() == key {
			idx = i
			break
		}
	}
	if idx < 0 {
		for _, c := range next.Open {
			if c.Key() == key {
				return nil, fmt.Errorf("case %s is already open", key)
			}
		}
		for _, c := range next.Ignored {
			if c.Key() == key {
				return nil, fmt.Errorf("case %s is ignored, remove its ignore rule instead", key)
			}
		}
		return nil, fmt.Errorf("case %s not found in network %s", key, state.NetworkID)
	}

	c := next.Closed[idx]
	next.Closed = append(next.Closed[:idx], next.Closed[idx+1:]...)
	c.Status = types.CaseStatusOpen
	c.ClosedOn = time.Time{}
	c.RunID = runID
	next.Open = append(next.Open, c)
	sort.SliceStable(next.Open, func(i, j int) bool {
		return next.Open[i].NodeID < next.Open[j].NodeID
	})

	for i, m := range next.Main {
		if m.Key() == key {
			next.Main[i] = c.Copy()
			break
		}
	}
	next.Revision++
	next.UpdatedAt = now

	if err := next.Validate(); err != nil {
		return nil, fmt.Errorf("reopened state is inconsistent: %w", err)
	}
	return next, nil
}

func keySet(cases []*types.TrackedCase) map[types.CaseKey]bool {
	set := make(map[types.CaseKey]bool, len(cases))
	for _, c := range cases {
		set[c.Key()] = true
	}
	return set
}

func markLatest(m map[types.CaseKey]time.Time, key types.CaseKey, t time.Time) {
	if prev, ok := m[key]; !ok || t.After(prev) {
		m[key] = t
	}
}

func touch(c *types.TrackedCase, seen time.Time) {
	if seen.After(c.LastSeen) {
		c.LastSeen = seen
	}
}
