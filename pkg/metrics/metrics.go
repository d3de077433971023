package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Run metrics
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hctracker_runs_total",
			Help: "Total number of reconciliation runs by result",
		},
		[]string{"result"},
	)

	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hctracker_reconciliation_duration_seconds",
			Help:    "Wall-clock time of a full network run in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hctracker_stage_duration_seconds",
			Help:    "Time spent in each run stage in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// Input metrics
	RowsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hctracker_rows_processed_total",
			Help: "Report rows processed by outcome (finding, info, dropped)",
		},
		[]string{"outcome"},
	)

	// Case metrics
	CaseTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hctracker_case_transitions_total",
			Help: "Case transitions by kind (opened, closed, ignored, recurred)",
		},
		[]string{"transition"},
	)

	CasesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hctracker_cases",
			Help: "Tracked cases by network and status",
		},
		[]string{"network", "status"},
	)

	// Node metrics
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hctracker_nodes",
			Help: "Nodes by network and coverage status",
		},
		[]string{"network", "coverage"},
	)

	WarningsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hctracker_warnings_total",
			Help: "Recovered warnings by kind",
		},
		[]string{"kind"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(RunsTotal)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(RowsProcessed)
	prometheus.MustRegister(CaseTransitionsTotal)
	prometheus.MustRegister(CasesTotal)
	prometheus.MustRegister(NodesTotal)
	prometheus.MustRegister(WarningsTotal)
}

// WriteTextfile writes every registered metric to path in the Prometheus
// text format, for pickup by node_exporter's textfile collector
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
