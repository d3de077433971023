// Package extract turns raw, positional health-check report rows into typed
// findings.
//
// Rows follow the report's fixed column layout (see the Col* constants) and
// are decoded once at this boundary; nothing downstream looks at positions.
// Info-severity rows are dropped. Rows without a numeric node id, test case
// id, issue or description are dropped with a diag.MalformedRowError and
// never abort the run. A blank or unrecognised severity keeps the row as a
// Failure finding with a diag.UnknownSeverityError.
//
// Every well-formed row, Info included, also counts as a sighting of its node
// for coverage purposes.
package extract
