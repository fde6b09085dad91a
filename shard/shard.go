// Package shard defines the capability contract a storage backend must satisfy
// to take part in a shardex database.
//
// A Shard is an opaque, independently stored subset of the document
// collection. The core never looks past this interface: local, remote or
// future backends all plug in by implementing it. Any scalar query or
// iterator may fail with ErrUnimplemented when the backend lacks the
// capability; the core propagates that rather than guessing.
//
// Writable shards additionally accept a Batch of buffered mutations through
// Commit, which must apply the whole batch atomically or not at all.
package shard

import (
	"context"

	"github.com/hupe1980/shardex/model"
	"github.com/hupe1980/shardex/spelling"
)

// Shard is the read capability of one backend.
//
// Implementations must be safe for concurrent readers. Reads observe the
// snapshot taken at open time or at the last Reopen.
type Shard interface {
	// Description returns a human-readable description of the shard.
	Description() string

	DocCount() (uint64, error)
	// LastDocID returns the highest docid ever allocated by this shard,
	// including deleted ones (0 for a fresh shard).
	LastDocID() (model.DocID, error)
	AvgLength() (float64, error)
	DocLength(did model.DocID) (uint64, error)
	TermFreq(term string) (uint64, error)
	CollectionFreq(term string) (uint64, error)
	TermExists(term string) (bool, error)
	ValueFreq(slot model.ValueSlot) (uint64, error)
	ValueLowerBound(slot model.ValueSlot) ([]byte, error)
	ValueUpperBound(slot model.ValueSlot) ([]byte, error)
	HasPositions() (bool, error)
	Document(did model.DocID) (*model.Document, error)
	// Metadata returns the value stored under key, or "" when unset.
	Metadata(key string) (string, error)
	UUID() (string, error)

	// Postings iterates the posting list of term in increasing docid order.
	// The empty term lists every document with a wdf of 1.
	Postings(term string) Iterator[Posting]
	AllTerms(prefix string) Iterator[TermEntry]
	// TermList iterates the terms of one document in byte order.
	TermList(did model.DocID) Iterator[TermEntry]
	Positions(did model.DocID, term string) Iterator[uint32]
	ValueStream(slot model.ValueSlot) Iterator[ValueEntry]
	MetadataKeys(prefix string) Iterator[string]
	SynonymKeys(prefix string) Iterator[string]
	Synonyms(term string) Iterator[string]
	// Spellings iterates the spelling dictionary; the word frequency is
	// reported as TermFreq.
	Spellings() Iterator[TermEntry]

	// KeepAlive pings remote backends so they do not time out. Local backends
	// treat it as a no-op.
	KeepAlive(ctx context.Context) error
	// Reopen advances the snapshot to the latest durable state.
	Reopen(ctx context.Context) error
	// Close releases the backend. It is permanent and idempotent.
	Close() error
}

// WritableShard is a Shard that accepts batched mutations.
type WritableShard interface {
	Shard

	// Commit durably applies every operation of b, in order, as one atomic
	// unit. On error no operation is visible and the shard state is
	// unchanged. Commit does not modify b.
	Commit(ctx context.Context, b *Batch) error

	// SupportsTransactions reports whether explicit transactions may be used.
	SupportsTransactions() bool
}

// SpellingSource is implemented by shards that can look up spelling
// candidates without exposing their whole dictionary.
type SpellingSource interface {
	SpellingCandidates(word string, maxDist int) ([]spelling.Candidate, error)
}
