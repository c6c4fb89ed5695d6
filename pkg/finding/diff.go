package finding

import "sort"

// DiffType represents how a finding changed between two reports.
type DiffType string

const (
	// DiffNewFailure is a FAIL that was absent or passing before.
	DiffNewFailure DiffType = "new_failure"
	// DiffResolved is a previous FAIL that now passes or disappeared.
	DiffResolved DiffType = "resolved"
	// DiffChanged is any other status transition.
	DiffChanged DiffType = "changed"
)

// Diff is a single finding-level change between two reports.
type Diff struct {
	Type     DiffType `json:"type"`
	Key      string   `json:"key"`
	Current  *Finding `json:"current,omitempty"`  // nil for disappeared findings
	Previous *Finding `json:"previous,omitempty"` // nil for new findings
}

// Compare lists changes from prev to cur, ordered by finding key. Muted
// findings never count as failures.
func Compare(prev, cur *Report) []Diff {
	prevMap := indexFindings(prev)
	curMap := indexFindings(cur)

	var diffs []Diff
	for key, c := range curMap {
		p, existed := prevMap[key]
		switch {
		case !existed:
			if c.IsFailure() {
				diffs = append(diffs, Diff{Type: DiffNewFailure, Key: key, Current: c})
			}
		case p.Status == c.Status && p.Muted == c.Muted:
		case c.IsFailure():
			diffs = append(diffs, Diff{Type: DiffNewFailure, Key: key, Current: c, Previous: p})
		case p.IsFailure():
			diffs = append(diffs, Diff{Type: DiffResolved, Key: key, Current: c, Previous: p})
		default:
			diffs = append(diffs, Diff{Type: DiffChanged, Key: key, Current: c, Previous: p})
		}
	}
	for key, p := range prevMap {
		if _, exists := curMap[key]; !exists && p.IsFailure() {
			diffs = append(diffs, Diff{Type: DiffResolved, Key: key, Previous: p})
		}
	}

	sort.Slice(diffs, func(i, j int) bool { return diffs[i].Key < diffs[j].Key })
	return diffs
}

func indexFindings(r *Report) map[string]*Finding {
	m := make(map[string]*Finding)
	if r == nil {
		return m
	}
	for i := range r.Findings {
		f := &r.Findings[i]
		m[Key(*f)] = f
	}
	return m
}
