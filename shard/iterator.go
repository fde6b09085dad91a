package shard

import (
	"iter"

	"github.com/hupe1980/shardex/model"
)

// Iterator is a forward-only, finite cursor. Next returns the next item and
// true, or the zero value and false once the sequence is done or failed; Err
// then distinguishes the two. Iterators are not safe for concurrent use.
type Iterator[T any] interface {
	Next() (T, bool)
	Err() error
	Close() error
}

// Posting is one entry of a posting list.
type Posting struct {
	DocID model.DocID
	WDF   uint32
}

// TermEntry is one entry of a term listing. For spelling listings TermFreq
// carries the word frequency, for document term lists the within-document
// frequency; CollFreq is zero in both.
type TermEntry struct {
	Term     string
	TermFreq uint64
	CollFreq uint64
}

// ValueEntry is one entry of a value stream.
type ValueEntry struct {
	DocID model.DocID
	Value []byte
}

// SliceIterator iterates over a pre-materialised slice.
type SliceIterator[T any] struct {
	items []T
	pos   int
}

// NewSliceIterator returns an iterator over items. The slice is not copied.
func NewSliceIterator[T any](items []T) *SliceIterator[T] {
	return &SliceIterator[T]{items: items}
}

func (it *SliceIterator[T]) Next() (T, bool) {
	if it.pos >= len(it.items) {
		var zero T
		return zero, false
	}
	item := it.items[it.pos]
	it.pos++
	return item, true
}

func (it *SliceIterator[T]) Err() error   { return nil }
func (it *SliceIterator[T]) Close() error { return nil }

// Empty returns an iterator with no items.
func Empty[T any]() Iterator[T] {
	return &SliceIterator[T]{}
}

type errIterator[T any] struct{ err error }

// ErrIterator returns an iterator that yields nothing and reports err.
func ErrIterator[T any](err error) Iterator[T] {
	return &errIterator[T]{err: err}
}

func (it *errIterator[T]) Next() (T, bool) {
	var zero T
	return zero, false
}

func (it *errIterator[T]) Err() error   { return it.err }
func (it *errIterator[T]) Close() error { return nil }

// FuncIterator adapts a pull function to Iterator.
type FuncIterator[T any] struct {
	next  func() (T, bool, error)
	err   error
	done  bool
	close func() error
}

// NewFuncIterator wraps next. close may be nil.
func NewFuncIterator[T any](next func() (T, bool, error), close func() error) *FuncIterator[T] {
	return &FuncIterator[T]{next: next, close: close}
}

func (it *FuncIterator[T]) Next() (T, bool) {
	var zero T
	if it.done {
		return zero, false
	}
	item, ok, err := it.next()
	if err != nil {
		it.err = err
		it.done = true
		return zero, false
	}
	if !ok {
		it.done = true
		return zero, false
	}
	return item, true
}

func (it *FuncIterator[T]) Err() error { return it.err }

func (it *FuncIterator[T]) Close() error {
	it.done = true
	if it.close == nil {
		return nil
	}
	c := it.close
	it.close = nil
	return c()
}

// Collect drains it into a slice and closes it.
func Collect[T any](it Iterator[T]) ([]T, error) {
	defer it.Close()
	var out []T
	for {
		item, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, item)
	}
	return out, it.Err()
}

// All adapts it to a range-over-func sequence. The iterator is closed when the
// loop ends. A failure is yielded once as a final (zero, err) pair.
func All[T any](it Iterator[T]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		defer it.Close()
		for {
			item, ok := it.Next()
			if !ok {
				break
			}
			if !yield(item, nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			var zero T
			yield(zero, err)
		}
	}
}
