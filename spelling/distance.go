package spelling

import "unicode/utf8"

// Distance returns the edit distance between a and b, counting insertion,
// deletion, substitution and transposition of two adjacent characters as one
// edit each. Characters are runes; each byte of invalid UTF-8 counts as a
// character of its own. Substrings are never edited twice, which is the
// optimal string alignment restriction.
func Distance(a, b string) int {
	return distanceRunes(chars(a), chars(b), -1)
}

// chars splits s into characters. Bytes that do not start valid UTF-8 map
// to negative values, so distinct byte strings never share a spelling.
func chars(s string) []rune {
	out := make([]rune, 0, len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			r = -1 - rune(s[i])
		}
		out = append(out, r)
		i += size
	}
	return out
}

// distanceRunes computes the distance and gives up early once every cell of
// a row exceeds limit, returning limit+1. A negative limit disables the cut.
func distanceRunes(a, b []rune, limit int) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	cols := len(b) + 1
	prev2 := make([]int, cols)
	prev := make([]int, cols)
	cur := make([]int, cols)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		cur[0] = i
		rowMin := cur[0]
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			d := min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
			if i > 1 && j > 1 && a[i-1] == b[j-2] && a[i-2] == b[j-1] {
				d = min(d, prev2[j-2]+1)
			}
			cur[j] = d
			rowMin = min(rowMin, d)
		}
		if limit >= 0 && rowMin > limit {
			return limit + 1
		}
		prev2, prev, cur = prev, cur, prev2
	}
	return prev[len(b)]
}

// Within reports whether Distance(a, b) <= maxDist.
func Within(a, b string, maxDist int) bool {
	ra, rb := chars(a), chars(b)
	if abs(len(ra)-len(rb)) > maxDist {
		return false
	}
	return distanceRunes(ra, rb, maxDist) <= maxDist
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
