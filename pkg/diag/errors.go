package diag

import (
	"errors"
	"fmt"
)

// Kind names an entry of the error taxonomy
type Kind string

const (
	KindMalformedRow         Kind = "malformed_row"
	KindMissingIgnoreSource  Kind = "missing_ignore_source"
	KindUnknownNodeType      Kind = "unknown_node_type"
	KindCorruptTrackerState  Kind = "corrupt_tracker_state"
	KindDuplicateIgnoreEntry Kind = "duplicate_ignore_entry"
	KindUnparseableDate      Kind = "unparseable_date"
	KindRecurringCase        Kind = "recurring_case"
	KindUnknownSeverity      Kind = "unknown_severity"
)

// MalformedRowError is reported for a report row that cannot be decoded.
// The row is dropped and the run continues.
type MalformedRowError struct {
	Row    int // zero-based index in the input
	Reason string
}

func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("malformed row %d: %s", e.Row, e.Reason)
}

// MissingIgnoreSourceError is reported when a network has no ignore list.
// The run proceeds with an empty rule set.
type MissingIgnoreSourceError struct {
	NetworkID string
}

func (e *MissingIgnoreSourceError) Error() string {
	return fmt.Sprintf("no ignore list for network %s, ignoring nothing", e.NetworkID)
}

// UnknownNodeTypeError is reported when a case's node has no NE type.
type UnknownNodeTypeError struct {
	NodeID int
}

func (e *UnknownNodeTypeError) Error() string {
	return fmt.Sprintf("node %d missing from node coverage, NE type unknown", e.NodeID)
}

// CorruptTrackerStateError is fatal: the prior tracker violates the
// partition invariants and cannot be reconciled against.
type CorruptTrackerStateError struct {
	NetworkID string
	Err       error
}

func (e *CorruptTrackerStateError) Error() string {
	return fmt.Sprintf("corrupt tracker state for network %s: %v", e.NetworkID, e.Err)
}

func (e *CorruptTrackerStateError) Unwrap() error {
	return e.Err
}

// DuplicateIgnoreEntryError is reported for repeated ignore entries, either
// duplicate lines in an ignore list or findings whose case is already IGNORED.
type DuplicateIgnoreEntryError struct {
	Entry string
	Count int
}

func (e *DuplicateIgnoreEntryError) Error() string {
	if e.Entry == "" {
		return fmt.Sprintf("%d ignored cases already tracked, skipped", e.Count)
	}
	return fmt.Sprintf("duplicate ignore entry %q (%d occurrences)", e.Entry, e.Count)
}

// UnparseableDateError is reported for a row date that could not be parsed.
// The run's report date is used instead.
type UnparseableDateError struct {
	Row   int
	Value string
}

func (e *UnparseableDateError) Error() string {
	return fmt.Sprintf("row %d: unparseable report date %q, using run date", e.Row, e.Value)
}

// UnknownSeverityError is reported for a row whose severity cell is blank or
// unrecognised. The row is kept as a Failure finding.
type UnknownSeverityError struct {
	Row   int
	Value string
}

func (e *UnknownSeverityError) Error() string {
	return fmt.Sprintf("row %d: unknown severity %q, treated as Failure", e.Row, e.Value)
}

// RecurringCaseError notes findings for cases that are already CLOSED or
// IGNORED. Such cases are never reopened automatically.
type RecurringCaseError struct {
	Count int
}

func (e *RecurringCaseError) Error() string {
	return fmt.Sprintf("%d findings match cases already closed or ignored, not reopened", e.Count)
}

// KindOf classifies err into the taxonomy. Unrecognised errors return "".
func KindOf(err error) Kind {
	var (
		malformed *MalformedRowError
		missing   *MissingIgnoreSourceError
		unknown   *UnknownNodeTypeError
		corrupt   *CorruptTrackerStateError
		dup       *DuplicateIgnoreEntryError
		date      *UnparseableDateError
		recurring *RecurringCaseError
		severity  *UnknownSeverityError
	)
	switch {
	case errors.As(err, &corrupt):
		return KindCorruptTrackerState
	case errors.As(err, &malformed):
		return KindMalformedRow
	case errors.As(err, &missing):
		return KindMissingIgnoreSource
	case errors.As(err, &unknown):
		return KindUnknownNodeType
	case errors.As(err, &dup):
		return KindDuplicateIgnoreEntry
	case errors.As(err, &date):
		return KindUnparseableDate
	case errors.As(err, &recurring):
		return KindRecurringCase
	case errors.As(err, &severity):
		return KindUnknownSeverity
	}
	return ""
}

// IsFatal reports whether err must abort a run
func IsFatal(err error) bool {
	var corrupt *CorruptTrackerStateError
	return errors.As(err, &corrupt)
}
