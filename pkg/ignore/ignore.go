package ignore

import (
	"sort"
	"strings"

	"github.com/cuemby/hctracker/pkg/diag"
	"github.com/cuemby/hctracker/pkg/types"
)

// RuleSet is the normalized ignore list of one network
type RuleSet struct {
	rules map[string]string // normalized -> first spelling seen
}

// Empty returns a rule set that ignores nothing
func Empty() *RuleSet {
	return &RuleSet{rules: make(map[string]string)}
}

// Missing returns an empty rule set and the warning that records why it is
// empty, so callers can tell a missing list from an empty one
func Missing(networkID string) (*RuleSet, error) {
	return Empty(), &diag.MissingIgnoreSourceError{NetworkID: networkID}
}

// Load builds a rule set from raw lines. Lines are trimmed of whitespace and
// line-ending residue; blank lines and '#' comments are skipped. Repeated
// entries are absorbed and reported as DuplicateIgnoreEntryError warnings.
func Load(lines []string) (*RuleSet, []error) {
	rs := Empty()
	dups := make(map[string]int)
	var order []string

	for _, line := range lines {
		entry := clean(line)
		if entry == "" || strings.HasPrefix(entry, "#") {
			continue
		}
		key := normalize(entry)
		if _, ok := rs.rules[key]; ok {
			if dups[key] == 0 {
				order = append(order, key)
			}
			dups[key]++
			continue
		}
		rs.rules[key] = entry
	}

	var warnings []error
	for _, key := range order {
		warnings = append(warnings, &diag.DuplicateIgnoreEntryError{Entry: rs.rules[key], Count: dups[key] + 1})
	}
	return rs, warnings
}

// Matches reports whether the finding's test case id is ignored
func (rs *RuleSet) Matches(f *types.Finding) bool {
	return rs.MatchesTestCase(f.TestCaseID)
}

// MatchesKey reports whether the case key's test case id is ignored
func (rs *RuleSet) MatchesKey(k types.CaseKey) bool {
	return rs.MatchesTestCase(k.TestCaseID)
}

// MatchesTestCase reports whether id is in the set
func (rs *RuleSet) MatchesTestCase(id string) bool {
	if rs == nil || len(rs.rules) == 0 {
		return false
	}
	_, ok := rs.rules[normalize(clean(id))]
	return ok
}

// Len returns the number of distinct rules
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.rules)
}

// Rules returns the rules in sorted order, in their original spelling
func (rs *RuleSet) Rules() []string {
	if rs == nil {
		return nil
	}
	out := make([]string, 0, len(rs.rules))
	for _, r := range rs.rules {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Add inserts a rule and reports whether it was new
func (rs *RuleSet) Add(entry string) bool {
	entry = clean(entry)
	if entry == "" {
		return false
	}
	key := normalize(entry)
	if _, ok := rs.rules[key]; ok {
		return false
	}
	rs.rules[key] = entry
	return true
}

// Remove deletes a rule and reports whether it was present
func (rs *RuleSet) Remove(entry string) bool {
	key := normalize(clean(entry))
	if _, ok := rs.rules[key]; !ok {
		return false
	}
	delete(rs.rules, key)
	return true
}

func clean(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return strings.TrimSpace(s)
}

func normalize(s string) string {
	return strings.ToLower(s)
}
