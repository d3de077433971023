/*
Package log provides structured logging for hctracker using zerolog.

The package wraps zerolog with a global logger, configurable level and output
format, and helpers that derive child loggers carrying the fields every
reconciliation log line should have: the component, the network being
reconciled, and the run ID.

# Usage

Initializing the Logger:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stderr,
	})

Component Loggers:

	logger := log.WithComponent("reconciler")
	logger = log.WithNetworkID(logger, "metro-east")
	logger = log.WithRunID(logger, runID)
	logger.Info().Int("new", 12).Int("closed", 3).Msg("Reconciliation complete")

JSON output:

	{"level":"info","component":"reconciler","network_id":"metro-east","run_id":"7c1e...","new":12,"closed":3,"time":"2026-10-18T10:30:00Z","message":"Reconciliation complete"}

Console output (default, for operators running the CLI):

	2026-10-18T10:30:00Z INF Reconciliation complete closed=3 component=reconciler network_id=metro-east new=12

# Warnings

Recoverable problems found during a run (malformed rows, unknown node types,
missing ignore lists) are logged at warn level by diag.Collector through a
logger derived here, so they carry the same network and run fields as the rest
of the run's output.

Logs are written to stderr by default so that command output on stdout (for
example `hctracker show --json`) stays machine readable.
*/
package log
