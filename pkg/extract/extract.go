package extract

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/hctracker/pkg/diag"
	"github.com/cuemby/hctracker/pkg/types"
)

// Row is one raw report row. Fields are positional.
type Row []string

// Column positions of the health-check report layout
const (
	ColNodeID = iota
	ColNodeIP
	ColLocation
	ColUserLabel
	ColTestCaseID
	ColSeverity
	ColIssue
	ColDescription
	ColTask
	ColReportDate
)

// minColumns is the narrowest row that still carries node id, test case id,
// issue and description
const minColumns = ColDescription + 1

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"02/01/2006",
	"2006/01/02",
	"02-Jan-2006",
}

// ParseDate parses a report date cell in any of the accepted layouts
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Sighting records that a node appeared in the report, whatever the severity
type Sighting struct {
	NodeID    int
	NodeIP    string
	Location  string
	UserLabel string
	LastSeen  time.Time
}

// Extraction is the output of one Extract call
type Extraction struct {
	Findings  []types.Finding
	Sightings map[int]*Sighting
	Dropped   int // malformed rows
	InfoRows  int // well-formed rows filtered out as Info
	Warnings  []error
}

// Extractor decodes raw report rows into candidate findings
type Extractor struct {
	reportDate time.Time
}

// NewExtractor creates an extractor. reportDate is used for rows whose own
// date cell is empty or unparseable.
func NewExtractor(reportDate time.Time) *Extractor {
	return &Extractor{reportDate: reportDate}
}

// Extract decodes rows, drops Info-severity rows, and drops malformed rows
// with a warning. offset is the index of rows[0] in the whole report and is
// only used in warnings.
func (e *Extractor) Extract(rows []Row, offset int) *Extraction {
	out := &Extraction{Sightings: make(map[int]*Sighting)}
	e.extractInto(out, rows, offset)
	return out
}

// Batches splits rows into batches of at most size rows, extracts each one
// and hands it to fn before decoding the next. It stops at the first error
// returned by fn.
func (e *Extractor) Batches(rows []Row, size int, fn func(*Extraction) error) error {
	if size <= 0 {
		size = len(rows)
	}
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		if err := fn(e.Extract(rows[start:end], start)); err != nil {
			return err
		}
	}
	return nil
}

func (e *Extractor) extractInto(out *Extraction, rows []Row, offset int) {
	for i, row := range rows {
		f, err := e.decode(row, offset+i)
		if err != nil {
			out.Dropped++
			out.Warnings = append(out.Warnings, err)
			continue
		}

		if f.Severity == "" {
			f.Severity = types.SeverityFailure
			out.Warnings = append(out.Warnings, &diag.UnknownSeverityError{Row: offset + i, Value: cellAt(row, ColSeverity)})
		}

		if f.ReportDate.IsZero() {
			f.ReportDate = e.reportDate
			if cell := cellAt(row, ColReportDate); cell != "" {
				out.Warnings = append(out.Warnings, &diag.UnparseableDateError{Row: offset + i, Value: cell})
			}
		}

		out.sight(f)

		if f.Severity == types.SeverityInfo {
			out.InfoRows++
			continue
		}
		out.Findings = append(out.Findings, *f)
	}
}

func (out *Extraction) sight(f *types.Finding) {
	s, ok := out.Sightings[f.NodeID]
	if !ok {
		s = &Sighting{NodeID: f.NodeID}
		out.Sightings[f.NodeID] = s
	}
	if f.NodeIP != "" {
		s.NodeIP = f.NodeIP
	}
	if f.Location != "" {
		s.Location = f.Location
	}
	if f.UserLabel != "" {
		s.UserLabel = f.UserLabel
	}
	if f.ReportDate.After(s.LastSeen) {
		s.LastSeen = f.ReportDate
	}
}

func (e *Extractor) decode(row Row, index int) (*types.Finding, error) {
	if len(row) < minColumns {
		return nil, &diag.MalformedRowError{Row: index, Reason: fmt.Sprintf("expected at least %d columns, got %d", minColumns, len(row))}
	}

	rawNode := cellAt(row, ColNodeID)
	if rawNode == "" {
		return nil, &diag.MalformedRowError{Row: index, Reason: "missing node id"}
	}
	nodeID, err := strconv.Atoi(rawNode)
	if err != nil || nodeID < 0 {
		return nil, &diag.MalformedRowError{Row: index, Reason: fmt.Sprintf("non-numeric node id %q", rawNode)}
	}

	f := &types.Finding{
		NodeID:      nodeID,
		NodeIP:      cellAt(row, ColNodeIP),
		Location:    cellAt(row, ColLocation),
		UserLabel:   cellAt(row, ColUserLabel),
		TestCaseID:  cellAt(row, ColTestCaseID),
		Issue:       cellAt(row, ColIssue),
		Description: cellAt(row, ColDescription),
		Task:        cellAt(row, ColTask),
	}
	switch {
	case f.TestCaseID == "":
		return nil, &diag.MalformedRowError{Row: index, Reason: "missing test case id"}
	case f.Issue == "":
		return nil, &diag.MalformedRowError{Row: index, Reason: "missing issue"}
	case f.Description == "":
		return nil, &diag.MalformedRowError{Row: index, Reason: "missing description"}
	}

	// an unrecognised severity leaves Severity empty; the caller keeps the row
	if sev, err := types.ParseSeverity(cellAt(row, ColSeverity)); err == nil {
		f.Severity = sev
	}

	if t, ok := ParseDate(cellAt(row, ColReportDate)); ok {
		f.ReportDate = t
	}
	return f, nil
}

func cellAt(row Row, col int) string {
	if col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}
