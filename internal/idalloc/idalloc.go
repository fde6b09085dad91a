// Package idalloc hands out document ids for one shard.
package idalloc

import (
	"github.com/hupe1980/shardex/model"
	"github.com/hupe1980/shardex/shard"
)

// Allocator is a monotonic docid counter. Ids are never reused, even after
// the document is deleted. It is not safe for concurrent use; the write
// engine serializes access.
type Allocator struct {
	next uint64
}

// New returns an allocator whose next id is next. Zero is treated as 1.
func New(next uint64) *Allocator {
	if next == 0 {
		next = 1
	}
	return &Allocator{next: next}
}

// Next returns the current counter value and advances it.
func (a *Allocator) Next() (model.DocID, error) {
	if a.next > uint64(model.MaxDocID) {
		return 0, shard.Errorf(shard.ErrResourceExhausted, "docid space exhausted")
	}
	did := model.DocID(a.next)
	a.next++
	return did, nil
}

// Observe records an explicitly supplied docid so later allocations never
// collide with it.
func (a *Allocator) Observe(did model.DocID) {
	if n := uint64(did) + 1; n > a.next {
		a.next = n
	}
}

// Peek returns the id the next call to Next would hand out.
func (a *Allocator) Peek() uint64 { return a.next }

// Reset sets the counter, e.g. when a cancelled transaction rolls back.
func (a *Allocator) Reset(next uint64) {
	if next == 0 {
		next = 1
	}
	a.next = next
}
