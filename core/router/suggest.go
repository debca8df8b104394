package router

import (
	"sort"

	"github.com/xrash/smetrics"
)

// suggestionThreshold is the minimum Jaro similarity for a path to be
// offered as a "did you mean" candidate.
const suggestionThreshold = 0.7

// maxSuggestions caps the candidates returned on a lookup miss.
const maxSuggestions = 3

// suggest scans every canonical path for near matches to the missed
// path. The scan is linear over the table, which is fine: tables are
// small and this only runs on the miss path.
func (t *Table) suggest(path string) []string {
	type scored struct {
		path  string
		score float64
	}

	var candidates []scored
	for p := range t.byPath {
		if score := smetrics.Jaro(path, p); score > suggestionThreshold {
			candidates = append(candidates, scored{path: p, score: score})
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].path < candidates[j].path
	})

	n := len(candidates)
	if n > maxSuggestions {
		n = maxSuggestions
	}
	suggestions := make([]string, 0, n)
	for _, c := range candidates[:n] {
		suggestions = append(suggestions, c.path)
	}
	return suggestions
}
