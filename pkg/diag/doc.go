// Package diag holds the error taxonomy of a reconciliation run and the
// Collector that turns recoverable errors into a diagnostic list.
//
// Row-level and lookup-level problems (MalformedRowError, UnknownNodeTypeError,
// MissingIgnoreSourceError, DuplicateIgnoreEntryError) are recovered where they
// occur and handed to a Collector; only CorruptTrackerStateError aborts a run.
package diag
