// Package coverage maintains per-node coverage for a network.
//
// A node is Covered when its last run period (month and year) equals the
// current report's period and NotCovered otherwise. Nodes whose OPEN cases
// match a configured anomaly signature (by default environment mismatch,
// interrupted session, unavailable shell) are NotRunProperly instead, with a
// remediation note per signature. Annotations are rebuilt on every run, so a
// note disappears as soon as the case behind it closes.
package coverage
