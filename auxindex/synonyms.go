package auxindex

import (
	"maps"
	"slices"
	"strings"
)

// Synonyms maps a term to a set of synonyms.
type Synonyms struct {
	m map[string]map[string]struct{}
}

// NewSynonyms returns an empty store.
func NewSynonyms() *Synonyms {
	return &Synonyms{m: make(map[string]map[string]struct{})}
}

// Add adds syn to the synonym set of term. Adding a member again is a no-op.
func (s *Synonyms) Add(term, syn string) {
	set, ok := s.m[term]
	if !ok {
		set = make(map[string]struct{})
		s.m[term] = set
	}
	set[syn] = struct{}{}
}

// Remove removes syn from the synonym set of term. Removing a non-member is
// a no-op.
func (s *Synonyms) Remove(term, syn string) {
	set, ok := s.m[term]
	if !ok {
		return
	}
	delete(set, syn)
	if len(set) == 0 {
		delete(s.m, term)
	}
}

// Clear removes every synonym of term.
func (s *Synonyms) Clear(term string) {
	delete(s.m, term)
}

// Of returns the synonyms of term in byte order.
func (s *Synonyms) Of(term string) []string {
	if s == nil {
		return nil
	}
	set := s.m[term]
	if len(set) == 0 {
		return nil
	}
	return slices.Sorted(maps.Keys(set))
}

// Keys returns the terms having at least one synonym and starting with
// prefix, in byte order.
func (s *Synonyms) Keys(prefix string) []string {
	if s == nil {
		return nil
	}
	var keys []string
	for k := range s.m {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

// Len returns the number of terms with synonyms.
func (s *Synonyms) Len() int {
	if s == nil {
		return 0
	}
	return len(s.m)
}

// Entries returns the store as term -> sorted synonyms.
func (s *Synonyms) Entries() map[string][]string {
	out := make(map[string][]string)
	if s == nil {
		return out
	}
	for term := range s.m {
		out[term] = s.Of(term)
	}
	return out
}

// Clone returns an independent copy.
func (s *Synonyms) Clone() *Synonyms {
	c := NewSynonyms()
	if s == nil {
		return c
	}
	for term, set := range s.m {
		c.m[term] = maps.Clone(set)
	}
	return c
}

// SynonymsFrom builds a store from term -> synonyms entries.
func SynonymsFrom(entries map[string][]string) *Synonyms {
	s := NewSynonyms()
	for term, syns := range entries {
		for _, syn := range syns {
			s.Add(term, syn)
		}
	}
	return s
}
