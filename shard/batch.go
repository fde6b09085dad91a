package shard

import (
	"github.com/hupe1980/shardex/model"
)

// OpKind identifies a buffered mutation.
type OpKind uint8

const (
	// OpAdd inserts a document under a freshly allocated docid.
	OpAdd OpKind = iota + 1
	// OpReplace replaces or inserts a document under an explicit docid.
	OpReplace
	// OpDelete removes a document; the docid must exist when applied.
	OpDelete
	// OpSetMetadata sets Key to Value; an empty Value deletes the entry.
	OpSetMetadata
	// OpAddSpelling increases the frequency of word Key by Freq.
	OpAddSpelling
	// OpRemoveSpelling decreases the frequency of word Key by Freq.
	OpRemoveSpelling
	// OpAddSynonym adds Value to the synonym set of Key.
	OpAddSynonym
	// OpRemoveSynonym removes Value from the synonym set of Key.
	OpRemoveSynonym
	// OpClearSynonyms empties the synonym set of Key.
	OpClearSynonyms
)

func (k OpKind) String() string {
	switch k {
	case OpAdd:
		return "add"
	case OpReplace:
		return "replace"
	case OpDelete:
		return "delete"
	case OpSetMetadata:
		return "set_metadata"
	case OpAddSpelling:
		return "add_spelling"
	case OpRemoveSpelling:
		return "remove_spelling"
	case OpAddSynonym:
		return "add_synonym"
	case OpRemoveSynonym:
		return "remove_synonym"
	case OpClearSynonyms:
		return "clear_synonyms"
	default:
		return "unknown"
	}
}

// IsDocument reports whether the op counts towards the modification counter
// that drives automatic flushing.
func (k OpKind) IsDocument() bool {
	return k == OpAdd || k == OpReplace || k == OpDelete
}

// Op is one buffered mutation.
type Op struct {
	Kind  OpKind          `json:"k"`
	DocID model.DocID     `json:"id,omitempty"`
	Doc   *model.Document `json:"doc,omitempty"`
	Key   string          `json:"key,omitempty"`
	Value string          `json:"val,omitempty"`
	Freq  uint32          `json:"f,omitempty"`
}

func (op Op) approxSize() int64 {
	return 32 + int64(len(op.Key)+len(op.Value)) + op.Doc.ApproxSize()
}

// Batch is the ordered list of mutations pending against one shard.
type Batch struct {
	Ops []Op `json:"ops"`
	// NextDocID is the allocator counter to persist with the batch.
	NextDocID uint64 `json:"next_docid"`

	mods  int
	bytes int64
}

// NewBatch returns an empty batch whose allocator counter is next.
func NewBatch(next uint64) *Batch {
	return &Batch{NextDocID: next}
}

// Append adds op to the end of the batch.
func (b *Batch) Append(op Op) {
	b.Ops = append(b.Ops, op)
	if op.Kind.IsDocument() {
		b.mods++
	}
	b.bytes += op.approxSize()
}

// Len returns the number of buffered operations.
func (b *Batch) Len() int { return len(b.Ops) }

// Empty reports whether nothing is buffered.
func (b *Batch) Empty() bool { return len(b.Ops) == 0 }

// Modifications returns the number of add, replace and delete operations.
func (b *Batch) Modifications() int { return b.mods }

// ApproxBytes estimates the memory held by the batch.
func (b *Batch) ApproxBytes() int64 { return b.bytes }

// Reset drops all buffered operations and sets the allocator counter.
func (b *Batch) Reset(next uint64) {
	b.Ops = nil
	b.NextDocID = next
	b.mods = 0
	b.bytes = 0
}

// Clone returns a copy of the batch sharing the (immutable) documents.
func (b *Batch) Clone() *Batch {
	c := &Batch{
		NextDocID: b.NextDocID,
		mods:      b.mods,
		bytes:     b.bytes,
	}
	if len(b.Ops) > 0 {
		c.Ops = append([]Op(nil), b.Ops...)
	}
	return c
}

// Recount recomputes the derived counters, e.g. after decoding.
func (b *Batch) Recount() {
	b.mods = 0
	b.bytes = 0
	for _, op := range b.Ops {
		if op.Kind.IsDocument() {
			b.mods++
		}
		b.bytes += op.approxSize()
	}
}
