// Package queue provides the priority queue used by the k-way merges.
package queue

import "container/heap"

// Compile time check to ensure items satisfies the heap interface.
var _ heap.Interface = (*items[int])(nil)

type items[T any] struct {
	data []T
	less func(a, b T) bool
}

func (h *items[T]) Len() int           { return len(h.data) }
func (h *items[T]) Less(i, j int) bool { return h.less(h.data[i], h.data[j]) }
func (h *items[T]) Swap(i, j int)      { h.data[i], h.data[j] = h.data[j], h.data[i] }

func (h *items[T]) Push(x any) {
	h.data = append(h.data, x.(T))
}

func (h *items[T]) Pop() any {
	old := h.data
	n := len(old)
	item := old[n-1]
	var zero T
	old[n-1] = zero // Avoid memory leak
	h.data = old[:n-1]
	return item
}

// PriorityQueue is a binary heap. The item for which less reports true
// against every other item sits at the top.
type PriorityQueue[T any] struct {
	h items[T]
}

// New returns an empty queue ordered by less.
func New[T any](less func(a, b T) bool) *PriorityQueue[T] {
	return &PriorityQueue[T]{h: items[T]{less: less}}
}

// Len returns the number of queued items.
func (pq *PriorityQueue[T]) Len() int { return pq.h.Len() }

// Push adds item.
func (pq *PriorityQueue[T]) Push(item T) { heap.Push(&pq.h, item) }

// Pop removes and returns the top item. It panics on an empty queue.
func (pq *PriorityQueue[T]) Pop() T { return heap.Pop(&pq.h).(T) }

// Top returns the top item without removing it. It panics on an empty queue.
func (pq *PriorityQueue[T]) Top() T { return pq.h.data[0] }

// ReplaceTop overwrites the top item and restores heap order. It is the
// cheap way to advance the cursor that produced the current minimum.
func (pq *PriorityQueue[T]) ReplaceTop(item T) {
	pq.h.data[0] = item
	heap.Fix(&pq.h, 0)
}

// Reset drops all items.
func (pq *PriorityQueue[T]) Reset() {
	clear(pq.h.data)
	pq.h.data = pq.h.data[:0]
}
