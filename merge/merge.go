package merge

import (
	"cmp"
	"errors"

	"github.com/hupe1980/shardex/queue"
	"github.com/hupe1980/shardex/shard"
)

type head[T any] struct {
	item T
	src  int
}

// Merger is a k-way merge over sorted iterators. Entries comparing equal
// are folded with the reduce function; without one they are emitted in
// input order.
type Merger[T any] struct {
	inputs  []shard.Iterator[T]
	compare func(a, b T) int
	reduce  func(acc, next T) T
	pq      *queue.PriorityQueue[head[T]]
	started bool
	done    bool
	err     error
}

// New returns a merger over inputs. Every input must already be sorted by
// compare. The merger owns the inputs and closes them.
func New[T any](inputs []shard.Iterator[T], compare func(a, b T) int, reduce func(acc, next T) T) *Merger[T] {
	m := &Merger[T]{
		inputs:  inputs,
		compare: compare,
		reduce:  reduce,
	}
	m.pq = queue.New(func(a, b head[T]) bool {
		if c := compare(a.item, b.item); c != 0 {
			return c < 0
		}
		return a.src < b.src
	})
	return m
}

func (m *Merger[T]) fill() {
	m.started = true
	for i, it := range m.inputs {
		item, ok := it.Next()
		if !ok {
			if err := it.Err(); err != nil {
				m.err = err
				return
			}
			continue
		}
		m.pq.Push(head[T]{item: item, src: i})
	}
}

// advanceTop moves the input that produced the current top forward.
func (m *Merger[T]) advanceTop() {
	src := m.pq.Top().src
	item, ok := m.inputs[src].Next()
	if ok {
		m.pq.ReplaceTop(head[T]{item: item, src: src})
		return
	}
	m.pq.Pop()
	if err := m.inputs[src].Err(); err != nil {
		m.err = err
	}
}

// Next returns the smallest pending item across all sources.
func (m *Merger[T]) Next() (T, bool) {
	var zero T
	if m.done {
		return zero, false
	}
	if !m.started {
		m.fill()
	}
	if m.err != nil || m.pq.Len() == 0 {
		m.done = true
		return zero, false
	}

	item := m.pq.Top().item
	m.advanceTop()
	for m.err == nil && m.reduce != nil && m.pq.Len() > 0 && m.compare(m.pq.Top().item, item) == 0 {
		item = m.reduce(item, m.pq.Top().item)
		m.advanceTop()
	}
	if m.err != nil {
		m.done = true
		return zero, false
	}
	return item, true
}

// Err returns the first error reported by a source.
func (m *Merger[T]) Err() error { return m.err }

// Close closes every source.
func (m *Merger[T]) Close() error {
	m.done = true
	m.pq.Reset()
	var errs []error
	for _, it := range m.inputs {
		if err := it.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Postings merges per-shard posting lists (inputs[i] belongs to shard i)
// into one list ordered by combined docid.
func Postings(inputs []shard.Iterator[shard.Posting], il Interleave) shard.Iterator[shard.Posting] {
	mapped := make([]shard.Iterator[shard.Posting], len(inputs))
	for i, it := range inputs {
		idx := i
		mapped[i] = Map(it, func(p shard.Posting) (shard.Posting, error) {
			c, err := il.Combine(p.DocID, idx)
			p.DocID = c
			return p, err
		})
	}
	return New(mapped, func(a, b shard.Posting) int { return cmp.Compare(a.DocID, b.DocID) }, nil)
}

// Values merges per-shard value streams into one stream ordered by combined
// docid.
func Values(inputs []shard.Iterator[shard.ValueEntry], il Interleave) shard.Iterator[shard.ValueEntry] {
	mapped := make([]shard.Iterator[shard.ValueEntry], len(inputs))
	for i, it := range inputs {
		idx := i
		mapped[i] = Map(it, func(v shard.ValueEntry) (shard.ValueEntry, error) {
			c, err := il.Combine(v.DocID, idx)
			v.DocID = c
			return v, err
		})
	}
	return New(mapped, func(a, b shard.ValueEntry) int { return cmp.Compare(a.DocID, b.DocID) }, nil)
}

// Terms merges term listings; a term present in several shards is reported
// once with its frequencies summed.
func Terms(inputs []shard.Iterator[shard.TermEntry]) shard.Iterator[shard.TermEntry] {
	return New(inputs,
		func(a, b shard.TermEntry) int { return cmp.Compare(a.Term, b.Term) },
		func(acc, next shard.TermEntry) shard.TermEntry {
			acc.TermFreq += next.TermFreq
			acc.CollFreq += next.CollFreq
			return acc
		})
}

// Strings merges sorted string listings, dropping duplicates.
func Strings(inputs []shard.Iterator[string]) shard.Iterator[string] {
	return New(inputs, cmp.Compare[string], func(acc, _ string) string { return acc })
}

// Map applies f to every item of it. An error from f ends the iteration.
func Map[T, U any](it shard.Iterator[T], f func(T) (U, error)) shard.Iterator[U] {
	return shard.NewFuncIterator(func() (U, bool, error) {
		var zero U
		item, ok := it.Next()
		if !ok {
			return zero, false, it.Err()
		}
		u, err := f(item)
		if err != nil {
			return zero, false, err
		}
		return u, true, nil
	}, it.Close)
}
