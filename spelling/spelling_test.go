package spelling

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "abc", 0},
		{"abc", "abd", 1},
		{"abc", "ab", 1},
		{"ab", "ba", 1},
		{"seperate", "separate", 1},
		{"ca", "abc", 3},
		{"kitten", "sitting", 3},
		{"héllo", "hello", 1},
		{"acb", "abc", 1},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.a, tt.b), func(t *testing.T) {
			assert.Equal(t, tt.want, Distance(tt.a, tt.b))
			assert.Equal(t, tt.want, Distance(tt.b, tt.a))
		})
	}
}

func TestWithin(t *testing.T) {
	assert.True(t, Within("kitten", "sitting", 3))
	assert.False(t, Within("kitten", "sitting", 2))
	assert.False(t, Within("a", "abcd", 2))
}

func TestDictionary_AddRemove(t *testing.T) {
	d := NewDictionary()
	d.Add("word", 1)
	d.Add("word", 2)
	d.Add("", 5)
	assert.Equal(t, uint64(3), d.Freq("word"))
	assert.Equal(t, 1, d.Len())

	d.Remove("word", 1)
	assert.Equal(t, uint64(2), d.Freq("word"))

	d.Remove("word", 5)
	assert.Zero(t, d.Freq("word"))
	assert.Zero(t, d.Len())
	assert.Empty(t, d.Candidates("word", 2))

	d.Remove("missing", 1)
	assert.Zero(t, d.Len())
}

func TestDictionary_Suggest(t *testing.T) {
	d := FromEntries([]Entry{{Word: "separate", Freq: 50}})

	assert.Equal(t, "separate", d.Suggest("seperate", 2))
	assert.Equal(t, "", d.Suggest("seperate", 0))
	assert.Equal(t, "separate", d.Suggest("separate", 0))
	assert.Equal(t, "", d.Suggest("xyz", 2))
}

func TestDictionary_SuggestRanking(t *testing.T) {
	d := FromEntries([]Entry{
		{Word: "cart", Freq: 1},
		{Word: "card", Freq: 9},
		{Word: "care", Freq: 9},
		{Word: "cat", Freq: 2},
		{Word: "coat", Freq: 100},
	})

	// "cat" and "coat" are both one edit from "caat"; frequency decides.
	assert.Equal(t, "coat", d.Suggest("caat", 2))
	// distance 1 beats higher frequency at distance 2.
	assert.Equal(t, "cart", d.Suggest("carts", 2))
	// equal distance and frequency: byte order.
	assert.Equal(t, "card", d.Suggest("carx", 1))
}

// bruteForce checks every word of d.
func bruteForce(d *Dictionary, word string, maxDist int) []Candidate {
	var out []Candidate
	for _, e := range d.Entries() {
		if dist := Distance(word, e.Word); dist <= maxDist {
			out = append(out, Candidate{Word: e.Word, Distance: dist, Freq: e.Freq})
		}
	}
	return out
}

func TestDictionary_CandidatesMatchBruteForce(t *testing.T) {
	words := []string{"apple", "apply", "ample", "maple", "applet", "pale", "ape", "aple", "papel", "lpae", "a"}
	d := NewDictionary()
	for i, w := range words {
		d.Add(w, uint64(i+1))
	}

	for _, q := range []string{"aple", "appel", "mapel", "a", "applesauce", "lpae", "pael", ""} {
		for dist := 0; dist <= 4; dist++ {
			got := Rank(d.Candidates(q, dist))
			want := Rank(bruteForce(d, q, dist))
			assert.Equal(t, want, got, "query %q dist %d", q, dist)
		}
	}
}

func TestDictionary_LargeDistance(t *testing.T) {
	d := FromEntries([]Entry{{Word: "abcdef", Freq: 1}})
	assert.Equal(t, "abcdef", d.Suggest("xyzdef", 3))
	assert.Equal(t, "", d.Suggest("xyzdef", 2))
	assert.Equal(t, "abcdef", d.Suggest("ab", 4))
}

// wordsOver returns every word of length n over alphabet.
func wordsOver(alphabet string, n int) []string {
	words := []string{""}
	for range n {
		next := make([]string, 0, len(words)*len(alphabet))
		for _, w := range words {
			for _, c := range alphabet {
				next = append(next, w+string(c))
			}
		}
		words = next
	}
	return words
}

func TestDictionary_LookupCostBoundedByDistance(t *testing.T) {
	small := FromEntries([]Entry{{Word: "abcdefg", Freq: 3}, {Word: "abdcefg", Freq: 1}, {Word: "bcdefgh", Freq: 2}})
	large := small.Clone()
	unrelated := wordsOver("xyz", 9)
	for _, w := range unrelated {
		large.Add(w, 1)
	}
	require.Equal(t, small.Len()+len(unrelated), large.Len())

	const query, maxDist = "abcdefg", 3
	want, smallVisited := small.lookup(query, maxDist)
	got, largeVisited := large.lookup(query, maxDist)
	assert.Equal(t, Rank(want), Rank(got))

	// A prefix of k unrelated characters is k edits from every prefix of
	// the query, so the walk leaves that part of the trie below depth
	// maxDist+1: at most 3+9+27+81 extra nodes for 19683 extra words.
	assert.LessOrEqual(t, largeVisited-smallVisited, 3+9+27+81)
	assert.Less(t, largeVisited, len(unrelated)/10)
}

func TestDictionary_BinaryWords(t *testing.T) {
	d := FromEntries([]Entry{{Word: "a\xff", Freq: 1}, {Word: "a\xfe", Freq: 5}})
	assert.Equal(t, 2, d.Len())
	assert.Equal(t, 1, Distance("a\xff", "a\xfe"))

	got := Rank(d.Candidates("a\xff", 0))
	assert.Equal(t, []Candidate{{Word: "a\xff", Distance: 0, Freq: 1}}, got)
	assert.Equal(t, "a\xfe", d.Suggest("a\xfd", 1))

	d.Remove("a\xff", 1)
	assert.Equal(t, "a\xfe", d.Suggest("a\xff", 1))
}

func TestDictionary_EntriesAndClone(t *testing.T) {
	d := FromEntries([]Entry{{Word: "b", Freq: 2}, {Word: "a", Freq: 1}, {Word: "b", Freq: 1}, {Word: "z", Freq: 0}})
	require.Equal(t, []Entry{{Word: "a", Freq: 1}, {Word: "b", Freq: 3}}, d.Entries())

	c := d.Clone()
	c.Remove("a", 1)
	assert.Equal(t, uint64(1), d.Freq("a"))
	assert.Zero(t, c.Freq("a"))
	assert.Equal(t, "a", d.Suggest("a", 0))
	assert.Equal(t, "", c.Suggest("a", 0))
}

func TestRank_SumsAcrossLists(t *testing.T) {
	a := []Candidate{{Word: "cat", Distance: 1, Freq: 3}, {Word: "car", Distance: 1, Freq: 5}}
	b := []Candidate{{Word: "cat", Distance: 1, Freq: 4}}

	ranked := Rank(a, b)
	require.Len(t, ranked, 2)
	assert.Equal(t, Candidate{Word: "cat", Distance: 1, Freq: 7}, ranked[0])
	assert.Equal(t, "cat", Best(a, b))
	assert.Equal(t, "", Best())
}
