package corpus

import (
	"sort"
	"strings"
)

const maxSuggestDistance = 2

// suggest replaces each unknown term of query with the closest indexed term within two
// edits, preferring smaller distances and then more frequent terms. It returns "" when
// nothing would change.
func suggest(query string, dict map[string]int) string {
	terms := tokenizeQuery(query)
	changed := false
	for i, term := range terms {
		if _, ok := dict[term]; ok {
			continue
		}
		if best := closest(term, dict); best != "" {
			terms[i] = best
			changed = true
		}
	}
	if !changed {
		return ""
	}
	return strings.Join(terms, " ")
}

func closest(term string, dict map[string]int) string {
	type candidate struct {
		term     string
		distance int
		freq     int
	}
	var found []candidate
	n := len([]rune(term))
	for t, freq := range dict {
		diff := len([]rune(t)) - n
		if diff < -maxSuggestDistance || diff > maxSuggestDistance {
			continue
		}
		if d := levenshtein(term, t); d <= maxSuggestDistance {
			found = append(found, candidate{term: t, distance: d, freq: freq})
		}
	}
	if len(found) == 0 {
		return ""
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].distance != found[j].distance {
			return found[i].distance < found[j].distance
		}
		if found[i].freq != found[j].freq {
			return found[i].freq > found[j].freq
		}
		return found[i].term < found[j].term
	})
	return found[0].term
}

// levenshtein returns the number of single-rune insertions, deletions or substitutions
// needed to turn a into b.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	// Two rows of the distance matrix.
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
