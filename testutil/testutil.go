package testutil

import (
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/hupe1980/shardex/model"
)

// RNG draws reproducible random corpora. It is safe for concurrent use.
type RNG struct {
	mu   sync.Mutex
	seed uint64
	rand *rand.Rand
}

// NewRNG returns an RNG seeded with seed.
func NewRNG(seed uint64) *RNG {
	r := &RNG{seed: seed}
	r.Reset()
	return r
}

// Reset rewinds r to its seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand = rand.New(rand.NewPCG(r.seed, r.seed^0x9e3779b97f4a7c15))
}

// IntN returns a number in [0, n).
func (r *RNG) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.IntN(n)
}

const letters = "abcdefghijklmnopqrstuvwxyz"

// Word returns a random lowercase word with a length in [minLen, maxLen].
func (r *RNG) Word(minLen, maxLen int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.word(minLen, maxLen)
}

func (r *RNG) word(minLen, maxLen int) string {
	n := minLen
	if maxLen > minLen {
		n += r.rand.IntN(maxLen - minLen + 1)
	}
	var sb strings.Builder
	sb.Grow(n)
	for range n {
		sb.WriteByte(letters[r.rand.IntN(len(letters))])
	}
	return sb.String()
}

// Vocabulary returns n distinct random words.
func (r *RNG) Vocabulary(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{}, n)
	words := make([]string, 0, n)
	for len(words) < n {
		w := r.word(3, 8)
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		words = append(words, w)
	}
	return words
}

// Document returns a document with nTerms postings drawn from vocab at
// consecutive positions. Repeated draws raise the wdf.
func (r *RNG) Document(vocab []string, nTerms int) *model.Document {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc := model.NewDocument()
	for pos := range nTerms {
		doc.WithPosting(vocab[r.rand.IntN(len(vocab))], uint32(pos+1))
	}
	return doc
}

// Documents returns n documents built with Document.
func (r *RNG) Documents(n int, vocab []string, nTerms int) []*model.Document {
	docs := make([]*model.Document, n)
	for i := range docs {
		docs[i] = r.Document(vocab, nTerms)
	}
	return docs
}

// Doc builds a document from terms, each with wdf 1 and no positions.
func Doc(terms ...string) *model.Document {
	doc := model.NewDocument()
	for _, t := range terms {
		doc.WithTerm(t, 1)
	}
	return doc
}

// PosDoc builds a document whose terms are indexed at positions 1..n.
func PosDoc(terms ...string) *model.Document {
	doc := model.NewDocument()
	for i, t := range terms {
		doc.WithPosting(t, uint32(i+1))
	}
	return doc
}
