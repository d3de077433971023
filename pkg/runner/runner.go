package runner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cuemby/hctracker/pkg/config"
	"github.com/cuemby/hctracker/pkg/coverage"
	"github.com/cuemby/hctracker/pkg/diag"
	"github.com/cuemby/hctracker/pkg/events"
	"github.com/cuemby/hctracker/pkg/extract"
	"github.com/cuemby/hctracker/pkg/ignore"
	"github.com/cuemby/hctracker/pkg/log"
	"github.com/cuemby/hctracker/pkg/metrics"
	"github.com/cuemby/hctracker/pkg/reconciler"
	"github.com/cuemby/hctracker/pkg/storage"
	"github.com/cuemby/hctracker/pkg/summary"
	"github.com/cuemby/hctracker/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Input is one network's report run
type Input struct {
	NetworkID   string
	NetworkName string
	SourceFile  string
	ReportDate  time.Time
	Rows        []extract.Row
	Inventory   []types.InventoryRecord

	// IgnoreLines is the network's ignore list for this run. When nil the
	// list stored for the network is used; when that is missing too the run
	// proceeds with no ignore rules and a MissingIgnoreSourceError warning.
	IgnoreLines []string
}

// Output is the result of one network run
type Output struct {
	RunID     string
	NetworkID string
	State     *types.TrackerState
	Summary   *types.SummaryRecord
	New       []*types.TrackedCase
	Closed    []*types.TrackedCase
	Ignored   []*types.TrackedCase
	Recurred  []*types.TrackedCase
	Retained  int
	Bootstrap bool // no prior state existed
	Warnings  []diag.Warning
	Duration  time.Duration
}

// NetworkResult pairs a network with its run outcome in RunAll
type NetworkResult struct {
	NetworkID string
	Output    *Output
	Err       error
}

// Runner executes report runs against a store
type Runner struct {
	store   storage.Store
	cfg     *config.Config
	broker  *events.Broker
	tracker *coverage.Tracker
	logger  zerolog.Logger
	now     func() time.Time

	// one run at a time per network
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a runner. broker may be nil.
func New(store storage.Store, cfg *config.Config, broker *events.Broker) *Runner {
	if cfg == nil {
		cfg = config.Default()
	}
	anomalies := cfg.Anomalies
	if anomalies == nil {
		anomalies = config.DefaultAnomalies()
	}
	return &Runner{
		store:   store,
		cfg:     cfg,
		broker:  broker,
		tracker: coverage.NewTracker(anomalies, cfg.Defaults.UnknownNEType),
		logger:  log.WithComponent("runner"),
		now:     func() time.Time { return time.Now().UTC() },
		locks:   make(map[string]*sync.Mutex),
	}
}

// Run reconciles one network's report against its stored tracker and saves
// the result. All changes are staged in memory and written in a single
// store transaction at the end, so a failed run leaves the previous state
// untouched. ctx is only checked before the run starts.
func (r *Runner) Run(ctx context.Context, in Input) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if in.NetworkID == "" {
		return nil, errors.New("network id is required")
	}

	lock := r.lockFor(in.NetworkID)
	lock.Lock()
	defer lock.Unlock()

	runID := uuid.NewString()
	logger := log.WithRunID(log.WithNetworkID(r.logger, in.NetworkID), runID)
	r.publish(events.EventRunStarted, in.NetworkID, runID, "run started", nil)

	out, err := r.run(in, runID, logger)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("failure").Inc()
		logger.Error().Err(err).Msg("Run failed")
		r.publish(events.EventRunFailed, in.NetworkID, runID, err.Error(), nil)
		return nil, err
	}

	metrics.RunsTotal.WithLabelValues("success").Inc()
	metrics.ReconciliationDuration.Observe(out.Duration.Seconds())
	metrics.Observe(out.State)
	r.publishTransitions(out)

	logger.Info().
		Int("revision", out.State.Revision).
		Int("new", len(out.New)).
		Int("closed", len(out.Closed)).
		Int("ignored", len(out.Ignored)).
		Int("open", len(out.State.Open)).
		Int("warnings", len(out.Warnings)).
		Dur("duration", out.Duration).
		Msg("Run completed")
	r.publish(events.EventRunCompleted, in.NetworkID, runID, "run completed", map[string]string{
		"revision": strconv.Itoa(out.State.Revision),
		"open":     strconv.Itoa(len(out.State.Open)),
	})
	return out, nil
}

func (r *Runner) run(in Input, runID string, logger zerolog.Logger) (*Output, error) {
	start := time.Now()
	warnings := diag.NewCollector(logger)

	reportDate := in.ReportDate
	if reportDate.IsZero() {
		reportDate = r.now()
	}
	month, year := int(reportDate.Month()), reportDate.Year()

	timer := metrics.NewTimer()
	prior, found, err := r.store.Load(in.NetworkID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tracker for %s: %w", in.NetworkID, err)
	}
	timer.ObserveDurationVec(metrics.StageDuration, "load")
	if !found {
		logger.Info().Msg("No prior tracker, bootstrapping")
	}

	rules, err := r.resolveIgnore(in, warnings)
	if err != nil {
		return nil, err
	}

	// NE types come from inventory and prior coverage only; report sightings
	// add nodes but never name their type, so the lookup can be built before
	// the report is read.
	lookup := r.tracker.Lookup(r.tracker.Update(prior.Coverage, coverage.Input{
		Inventory: in.Inventory,
		Month:     month,
		Year:      year,
	}))

	rec, err := reconciler.New(in.NetworkID, prior, rules, reconciler.NETypeLookup(lookup), reconciler.Options{
		RunID:       runID,
		NetworkName: in.NetworkName,
		ReportDate:  reportDate,
		Now:         r.now(),
		Defaults: reconciler.Defaults{
			IntExt:        r.cfg.Defaults.IntExt,
			FaultCategory: r.cfg.Defaults.FaultCategory,
			UnknownNEType: r.cfg.Defaults.UnknownNEType,
		},
	})
	if err != nil {
		return nil, err
	}

	timer = metrics.NewTimer()
	sightings := make(map[int]*extract.Sighting)
	extractor := extract.NewExtractor(reportDate)
	err = extractor.Batches(in.Rows, r.cfg.Run.BatchSize, func(batch *extract.Extraction) error {
		warnings.AddAll(batch.Warnings)
		mergeSightings(sightings, batch.Sightings)
		metrics.RowsProcessed.WithLabelValues("finding").Add(float64(len(batch.Findings)))
		metrics.RowsProcessed.WithLabelValues("info").Add(float64(batch.InfoRows))
		metrics.RowsProcessed.WithLabelValues("dropped").Add(float64(batch.Dropped))
		rec.Add(batch.Findings)
		return nil
	})
	if err != nil {
		return nil, err
	}
	timer.ObserveDurationVec(metrics.StageDuration, "extract")
	logger.Debug().Int("rows", len(in.Rows)).Int("findings", rec.Findings()).Msg("Report extracted")

	timer = metrics.NewTimer()
	res, err := rec.Commit()
	if err != nil {
		return nil, err
	}
	warnings.AddAll(res.Warnings)
	timer.ObserveDurationVec(metrics.StageDuration, "reconcile")

	timer = metrics.NewTimer()
	state := res.State
	nodes := r.tracker.Update(prior.Coverage, coverage.Input{
		Inventory: in.Inventory,
		Sightings: sightings,
		Month:     month,
		Year:      year,
	})
	state.Coverage = r.tracker.Annotate(nodes, state.Open, month, year)
	timer.ObserveDurationVec(metrics.StageDuration, "coverage")

	timer = metrics.NewTimer()
	state.Summary = summary.Aggregate(summary.Input{
		State:       state,
		NewCases:    len(res.New),
		ClosedCases: len(res.Closed),
		Ignored:     len(res.Ignored),
		Inventory:   in.Inventory,
		RunID:       runID,
		SourceFile:  in.SourceFile,
		ReportDate:  reportDate,
		GeneratedAt: state.UpdatedAt,
	})
	timer.ObserveDurationVec(metrics.StageDuration, "summary")

	timer = metrics.NewTimer()
	if err := r.store.Save(in.NetworkID, state); err != nil {
		return nil, fmt.Errorf("failed to save tracker for %s: %w", in.NetworkID, err)
	}
	timer.ObserveDurationVec(metrics.StageDuration, "save")

	collected := warnings.Warnings()
	for _, w := range collected {
		metrics.WarningsTotal.WithLabelValues(string(w.Kind)).Inc()
	}
	metrics.CaseTransitionsTotal.WithLabelValues("opened").Add(float64(len(res.New)))
	metrics.CaseTransitionsTotal.WithLabelValues("closed").Add(float64(len(res.Closed)))
	metrics.CaseTransitionsTotal.WithLabelValues("ignored").Add(float64(len(res.Ignored)))
	metrics.CaseTransitionsTotal.WithLabelValues("recurred").Add(float64(len(res.Recurred)))

	return &Output{
		RunID:     runID,
		NetworkID: in.NetworkID,
		State:     state,
		Summary:   state.Summary,
		New:       res.New,
		Closed:    res.Closed,
		Ignored:   res.Ignored,
		Recurred:  res.Recurred,
		Retained:  res.Retained,
		Bootstrap: !found,
		Warnings:  collected,
		Duration:  time.Since(start),
	}, nil
}

func (r *Runner) resolveIgnore(in Input, warnings *diag.Collector) (*ignore.RuleSet, error) {
	lines := in.IgnoreLines
	if lines == nil {
		stored, ok, err := r.store.GetIgnoreRules(in.NetworkID)
		if err != nil {
			return nil, fmt.Errorf("failed to read ignore rules for %s: %w", in.NetworkID, err)
		}
		if !ok {
			rules, warn := ignore.Missing(in.NetworkID)
			warnings.Add(warn)
			return rules, nil
		}
		lines = stored
	}
	rules, errs := ignore.Load(lines)
	warnings.AddAll(errs)
	return rules, nil
}

// RunAll runs every input with at most run.workers networks in flight.
// Results are returned in input order; a failing network records its error
// and does not stop the others. Two inputs for the same network run one
// after the other.
func (r *Runner) RunAll(ctx context.Context, inputs []Input) []NetworkResult {
	results := make([]NetworkResult, len(inputs))

	g := new(errgroup.Group)
	workers := r.cfg.Run.Workers
	if workers <= 0 {
		workers = 1
	}
	g.SetLimit(workers)

	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			out, err := r.Run(ctx, in)
			results[i] = NetworkResult{NetworkID: in.NetworkID, Output: out, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Reopen moves a CLOSED case of a stored network back to OPEN
func (r *Runner) Reopen(ctx context.Context, networkID string, key types.CaseKey) (*types.TrackerState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lock := r.lockFor(networkID)
	lock.Lock()
	defer lock.Unlock()

	state, found, err := r.store.Load(networkID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("network %s has no tracker", networkID)
	}

	runID := uuid.NewString()
	next, err := reconciler.Reopen(state, key, runID, r.now())
	if err != nil {
		return nil, err
	}
	if err := r.store.Save(networkID, next); err != nil {
		return nil, fmt.Errorf("failed to save tracker for %s: %w", networkID, err)
	}

	metrics.Observe(next)
	r.publish(events.EventCaseReopened, networkID, runID, key.String(), caseMetadata(key))
	logger := log.WithRunID(log.WithNetworkID(r.logger, networkID), runID)
	logger.Info().
		Str("case", key.String()).
		Int("revision", next.Revision).
		Msg("Case reopened")
	return next, nil
}

func (r *Runner) lockFor(networkID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[networkID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[networkID] = l
	}
	return l
}

func (r *Runner) publishTransitions(out *Output) {
	if r.broker == nil {
		return
	}
	groups := []struct {
		typ   events.EventType
		cases []*types.TrackedCase
	}{
		{events.EventCaseOpened, out.New},
		{events.EventCaseClosed, out.Closed},
		{events.EventCaseIgnored, out.Ignored},
		{events.EventCaseRecurred, out.Recurred},
	}
	for _, g := range groups {
		for _, c := range g.cases {
			r.publish(g.typ, out.NetworkID, out.RunID, c.Key().String(), caseMetadata(c.Key()))
		}
	}
}

func (r *Runner) publish(typ events.EventType, networkID, runID, msg string, meta map[string]string) {
	r.broker.Publish(&events.Event{
		Type:      typ,
		NetworkID: networkID,
		RunID:     runID,
		Message:   msg,
		Metadata:  meta,
	})
}

func caseMetadata(key types.CaseKey) map[string]string {
	return map[string]string{
		"node_id":      strconv.Itoa(key.NodeID),
		"test_case_id": key.TestCaseID,
		"issue":        key.Issue,
	}
}

func mergeSightings(dst, src map[int]*extract.Sighting) {
	for id, s := range src {
		prev, ok := dst[id]
		if !ok {
			cp := *s
			dst[id] = &cp
			continue
		}
		if s.NodeIP != "" {
			prev.NodeIP = s.NodeIP
		}
		if s.Location != "" {
			prev.Location = s.Location
		}
		if s.UserLabel != "" {
			prev.UserLabel = s.UserLabel
		}
		if s.LastSeen.After(prev.LastSeen) {
			prev.LastSeen = s.LastSeen
		}
	}
}
