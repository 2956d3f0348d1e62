package scan

import "sort"

// DefaultMaxGap is the largest line distance between neighboring matches that
// still lands them in the same group.
const DefaultMaxGap = 5

// Group is one proximity cluster of matches, the unit a finding is built from.
type Group struct {
	Matches   []Match
	LineStart int
	LineEnd   int
}

// GroupByProximity clusters matches into line-adjacent groups. Input order
// does not matter; output groups are ordered by starting line. Grouping is
// idempotent: regrouping the flattened output with the same maxGap reproduces
// the same groups.
func GroupByProximity(matches []Match, maxGap int) []Group {
	if len(matches) == 0 {
		return nil
	}
	if maxGap <= 0 {
		maxGap = DefaultMaxGap
	}

	sorted := make([]Match, len(matches))
	copy(sorted, matches)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Line != sorted[j].Line {
			return sorted[i].Line < sorted[j].Line
		}
		return sorted[i].Column < sorted[j].Column
	})

	var groups []Group
	cur := Group{Matches: []Match{sorted[0]}, LineStart: sorted[0].Line, LineEnd: sorted[0].Line}
	for _, m := range sorted[1:] {
		if m.Line-cur.LineEnd > maxGap {
			groups = append(groups, cur)
			cur = Group{Matches: []Match{m}, LineStart: m.Line, LineEnd: m.Line}
			continue
		}
		cur.Matches = append(cur.Matches, m)
		if m.Line > cur.LineEnd {
			cur.LineEnd = m.Line
		}
	}
	groups = append(groups, cur)
	return groups
}

// Flatten concatenates group members back into a single match list.
func Flatten(groups []Group) []Match {
	var out []Match
	for _, g := range groups {
		out = append(out, g.Matches...)
	}
	return out
}
