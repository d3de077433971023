package metrics

import (
	"github.com/cuemby/hctracker/pkg/storage"
	"github.com/cuemby/hctracker/pkg/types"
)

// Collector refreshes the per-network gauges from stored tracker state
type Collector struct {
	store storage.Store
}

// NewCollector creates a new metrics collector
func NewCollector(store storage.Store) *Collector {
	return &Collector{store: store}
}

// Collect sets the case and node gauges of every stored network. Networks
// that fail to load are skipped and their IDs returned.
func (c *Collector) Collect() (failed []string, err error) {
	ids, err := c.store.ListNetworks()
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		state, _, err := c.store.Load(id)
		if err != nil {
			failed = append(failed, id)
			continue
		}
		Observe(state)
	}
	return failed, nil
}

// Observe sets the case and node gauges for one network
func Observe(state *types.TrackerState) {
	network := state.NetworkID

	CasesTotal.WithLabelValues(network, string(types.CaseStatusOpen)).Set(float64(len(state.Open)))
	CasesTotal.WithLabelValues(network, string(types.CaseStatusClosed)).Set(float64(len(state.Closed)))
	CasesTotal.WithLabelValues(network, string(types.CaseStatusIgnored)).Set(float64(len(state.Ignored)))

	// Reset counters
	nodeCounts := map[types.CoverageStatus]int{
		types.CoverageCovered:        0,
		types.CoverageNotCovered:     0,
		types.CoverageNotRunProperly: 0,
	}
	for _, n := range state.Coverage {
		nodeCounts[n.Status]++
	}

	// Update metrics
	for status, count := range nodeCounts {
		NodesTotal.WithLabelValues(network, string(status)).Set(float64(count))
	}
}
