package spelling

import (
	"maps"
	"slices"
	"sync"
)

// DefaultMaxDistance is the edit distance used when callers do not choose
// one.
const DefaultMaxDistance = 2

// Entry is one (word, frequency) pair.
type Entry struct {
	Word string `json:"w"`
	Freq uint64 `json:"f"`
}

// node is a trie node keyed by character. word is set on nodes that end a
// dictionary word.
type node struct {
	children map[rune]*node
	word     string
}

func (n *node) clone() *node {
	c := &node{word: n.word}
	if len(n.children) > 0 {
		c.children = make(map[rune]*node, len(n.children))
		for r, child := range n.children {
			c.children[r] = child.clone()
		}
	}
	return c
}

// Dictionary is a frequency-weighted word list indexed by a character trie.
// It is safe for concurrent use.
type Dictionary struct {
	mu    sync.RWMutex
	freqs map[string]uint64
	root  *node
}

// NewDictionary returns an empty dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{
		freqs: make(map[string]uint64),
		root:  &node{},
	}
}

// FromEntries builds a dictionary from entries. Entries with a zero
// frequency are skipped; repeated words accumulate.
func FromEntries(entries []Entry) *Dictionary {
	d := NewDictionary()
	for _, e := range entries {
		if e.Word == "" || e.Freq == 0 {
			continue
		}
		d.add(e.Word, e.Freq)
	}
	return d
}

// Add increases the frequency of word by inc, inserting it when missing.
func (d *Dictionary) Add(word string, inc uint64) {
	if word == "" || inc == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.add(word, inc)
}

func (d *Dictionary) add(word string, inc uint64) {
	f, ok := d.freqs[word]
	d.freqs[word] = f + inc
	if ok {
		return
	}
	n := d.root
	for _, c := range chars(word) {
		child, ok := n.children[c]
		if !ok {
			if n.children == nil {
				n.children = make(map[rune]*node)
			}
			child = &node{}
			n.children[c] = child
		}
		n = child
	}
	n.word = word
}

// Remove decreases the frequency of word by dec. The word is dropped once its
// frequency would reach zero. Removing an unknown word is a no-op.
func (d *Dictionary) Remove(word string, dec uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	f, ok := d.freqs[word]
	if !ok {
		return
	}
	if f > dec {
		d.freqs[word] = f - dec
		return
	}
	delete(d.freqs, word)
	unlink(d.root, chars(word))
}

// unlink clears the word ending at path below n and prunes nodes left
// without words. It reports whether n itself became empty.
func unlink(n *node, path []rune) bool {
	if len(path) == 0 {
		n.word = ""
	} else if child, ok := n.children[path[0]]; ok && unlink(child, path[1:]) {
		delete(n.children, path[0])
	}
	return n.word == "" && len(n.children) == 0
}

// Freq returns the frequency of word (0 when absent).
func (d *Dictionary) Freq(word string) uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.freqs[word]
}

// Len returns the number of words.
func (d *Dictionary) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.freqs)
}

// Entries returns every word in byte order.
func (d *Dictionary) Entries() []Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	words := slices.Sorted(maps.Keys(d.freqs))
	out := make([]Entry, len(words))
	for i, w := range words {
		out[i] = Entry{Word: w, Freq: d.freqs[w]}
	}
	return out
}

// Clone returns an independent copy.
func (d *Dictionary) Clone() *Dictionary {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return &Dictionary{
		freqs: maps.Clone(d.freqs),
		root:  d.root.clone(),
	}
}

// Candidates returns every word within maxDist edits of word, unsorted.
func (d *Dictionary) Candidates(word string, maxDist int) []Candidate {
	out, _ := d.lookup(word, maxDist)
	return out
}

// lookup walks the trie and also returns the number of nodes it visited.
func (d *Dictionary) lookup(word string, maxDist int) ([]Candidate, int) {
	if maxDist < 0 {
		return nil, 0
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	q := chars(word)
	row := make([]int, len(q)+1)
	for j := range row {
		row[j] = j
	}
	w := &walker{d: d, q: q, max: maxDist}
	for c, child := range d.root.children {
		w.visit(child, c, 0, 1, row, nil)
	}
	return w.out, w.visited
}

// walker computes one row of the optimal string alignment matrix per trie
// node. The row of a node is the distance of its prefix to every prefix of
// the query, so a subtree is skipped once no cell is within max.
type walker struct {
	d       *Dictionary
	q       []rune
	max     int
	out     []Candidate
	visited int
}

func (w *walker) visit(n *node, c, prevC rune, depth int, prev, prev2 []int) {
	w.visited++

	cur := make([]int, len(prev))
	cur[0] = depth
	rowMin := cur[0]
	for j := 1; j < len(cur); j++ {
		cost := 1
		if w.q[j-1] == c {
			cost = 0
		}
		v := min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		if depth > 1 && j > 1 && c == w.q[j-2] && prevC == w.q[j-1] {
			v = min(v, prev2[j-2]+1)
		}
		cur[j] = v
		rowMin = min(rowMin, v)
	}

	if n.word != "" && cur[len(cur)-1] <= w.max {
		w.out = append(w.out, Candidate{Word: n.word, Distance: cur[len(cur)-1], Freq: w.d.freqs[n.word]})
	}
	if rowMin > w.max {
		return
	}
	for next, child := range n.children {
		w.visit(child, next, c, depth+1, cur, prev)
	}
}

// Suggest returns the best correction for word within maxDist edits, or ""
// when nothing qualifies.
func (d *Dictionary) Suggest(word string, maxDist int) string {
	return Best(d.Candidates(word, maxDist))
}
