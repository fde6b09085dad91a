package spelling

import (
	"cmp"
	"slices"
)

// Candidate is a dictionary word within reach of a query word.
type Candidate struct {
	Word     string
	Distance int
	Freq     uint64
}

// Compare orders candidates best first: lower distance, then higher
// frequency, then the byte-wise smaller word.
func Compare(a, b Candidate) int {
	if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Freq, a.Freq); c != 0 {
		return c
	}
	return cmp.Compare(a.Word, b.Word)
}

// Rank merges candidate lists, typically one per shard. Frequencies of the
// same word are summed, the smallest distance is kept, and the result is
// sorted best first.
func Rank(lists ...[]Candidate) []Candidate {
	byWord := make(map[string]Candidate)
	for _, list := range lists {
		for _, c := range list {
			prev, ok := byWord[c.Word]
			if !ok {
				byWord[c.Word] = c
				continue
			}
			prev.Freq += c.Freq
			prev.Distance = min(prev.Distance, c.Distance)
			byWord[c.Word] = prev
		}
	}

	out := make([]Candidate, 0, len(byWord))
	for _, c := range byWord {
		out = append(out, c)
	}
	slices.SortFunc(out, Compare)
	return out
}

// Best returns the top ranked word, or "" when there are no candidates.
func Best(lists ...[]Candidate) string {
	ranked := Rank(lists...)
	if len(ranked) == 0 {
		return ""
	}
	return ranked[0].Word
}
