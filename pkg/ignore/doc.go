// Package ignore loads and matches the per-network ignore list.
//
// An ignore rule is an operator-curated test case id. A finding matches when
// its test case id equals a rule after trimming and case folding; there is no
// pattern matching. A network without an ignore list ignores nothing, which
// Missing makes explicit by returning a diag.MissingIgnoreSourceError warning
// next to the empty set.
package ignore
