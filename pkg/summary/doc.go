// Package summary derives the per-run SummaryRecord from reconciled state.
package summary
