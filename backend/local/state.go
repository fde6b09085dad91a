package local

import (
	"bytes"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/shardex/auxindex"
	"github.com/hupe1980/shardex/model"
	"github.com/hupe1980/shardex/shard"
	"github.com/hupe1980/shardex/spelling"
)

// termPostings is the posting set of one term. Per-document wdf and
// positions live in the documents themselves.
type termPostings struct {
	docs *roaring.Bitmap
	cf   uint64
}

func (tp *termPostings) clone() *termPostings {
	return &termPostings{docs: tp.docs.Clone(), cf: tp.cf}
}

// valueSlot tracks which documents set a slot. The bounds are widened on
// insert and only tightened by a full rebuild, so they stay valid bounds
// after deletions.
type valueSlot struct {
	docs  *roaring.Bitmap
	lower []byte
	upper []byte
}

func (vs *valueSlot) clone() *valueSlot {
	return &valueSlot{docs: vs.docs.Clone(), lower: vs.lower, upper: vs.upper}
}

// state is an immutable snapshot of a shard. Readers load it from an
// atomic pointer; commits build a successor copy-on-write.
type state struct {
	rev       uint64
	uuid      string
	nextDocID uint64

	docs      map[model.DocID]*model.Document
	live      *roaring.Bitmap
	terms     map[string]*termPostings
	values    map[model.ValueSlot]*valueSlot
	totalLen  uint64
	positions int // documents carrying positional data

	meta  *auxindex.Metadata
	syn   *auxindex.Synonyms
	spell *spelling.Dictionary

	sortedOnce sync.Once
	sorted     []string
}

func newState(uuid string) *state {
	return &state{
		uuid:      uuid,
		nextDocID: 1,
		docs:      make(map[model.DocID]*model.Document),
		live:      roaring.New(),
		terms:     make(map[string]*termPostings),
		values:    make(map[model.ValueSlot]*valueSlot),
		meta:      auxindex.NewMetadata(),
		syn:       auxindex.NewSynonyms(),
		spell:     spelling.NewDictionary(),
	}
}

func (st *state) lastDocID() model.DocID {
	if st.nextDocID <= 1 {
		return 0
	}
	if st.nextDocID-1 > uint64(model.MaxDocID) {
		return model.MaxDocID
	}
	return model.DocID(st.nextDocID - 1)
}

func (st *state) doc(did model.DocID) (*model.Document, error) {
	d, ok := st.docs[did]
	if !ok {
		return nil, shard.Errorf(shard.ErrDocNotFound, "document %d", did)
	}
	return d, nil
}

// sortedTerms returns every indexed term in byte order. It is computed once
// per snapshot.
func (st *state) sortedTerms() []string {
	st.sortedOnce.Do(func() {
		st.sorted = slices.Sorted(maps.Keys(st.terms))
	})
	return st.sorted
}

// termsWithPrefix returns the sorted terms starting with prefix.
func (st *state) termsWithPrefix(prefix string) []string {
	terms := st.sortedTerms()
	if prefix == "" {
		return terms
	}
	lo := sort.SearchStrings(terms, prefix)
	hi := lo
	for hi < len(terms) && strings.HasPrefix(terms[hi], prefix) {
		hi++
	}
	return terms[lo:hi]
}

// builder derives a new state from a base without touching it. Posting and
// value sets are cloned the first time a commit modifies them.
type builder struct {
	st            *state
	touchedTerms  map[string]bool
	touchedValues map[model.ValueSlot]bool
	auxCloned     bool
}

func newBuilder(base *state) *builder {
	st := &state{
		rev:       base.rev,
		uuid:      base.uuid,
		nextDocID: base.nextDocID,
		docs:      maps.Clone(base.docs),
		live:      base.live.Clone(),
		terms:     maps.Clone(base.terms),
		values:    maps.Clone(base.values),
		totalLen:  base.totalLen,
		positions: base.positions,
		meta:      base.meta,
		syn:       base.syn,
		spell:     base.spell,
	}
	return &builder{
		st:            st,
		touchedTerms:  make(map[string]bool),
		touchedValues: make(map[model.ValueSlot]bool),
	}
}

func (b *builder) cloneAux() {
	if b.auxCloned {
		return
	}
	b.st.meta = b.st.meta.Clone()
	b.st.syn = b.st.syn.Clone()
	b.st.spell = b.st.spell.Clone()
	b.auxCloned = true
}

func (b *builder) term(term string) *termPostings {
	tp, ok := b.st.terms[term]
	switch {
	case !ok:
		tp = &termPostings{docs: roaring.New()}
		b.st.terms[term] = tp
	case !b.touchedTerms[term]:
		tp = tp.clone()
		b.st.terms[term] = tp
	}
	b.touchedTerms[term] = true
	return tp
}

func (b *builder) slot(slot model.ValueSlot) *valueSlot {
	vs, ok := b.st.values[slot]
	switch {
	case !ok:
		vs = &valueSlot{docs: roaring.New()}
		b.st.values[slot] = vs
	case !b.touchedValues[slot]:
		vs = vs.clone()
		b.st.values[slot] = vs
	}
	b.touchedValues[slot] = true
	return vs
}

func (b *builder) addDoc(did model.DocID, doc *model.Document) {
	st := b.st
	st.docs[did] = doc
	st.live.Add(uint32(did))
	st.totalLen += doc.Length()
	if doc.HasPositions() {
		st.positions++
	}
	for term, ti := range doc.Terms {
		tp := b.term(term)
		tp.docs.Add(uint32(did))
		tp.cf += uint64(ti.WDF)
	}
	for slot, v := range doc.Values {
		if len(v) == 0 {
			continue
		}
		vs := b.slot(slot)
		vs.docs.Add(uint32(did))
		if vs.lower == nil || bytes.Compare(v, vs.lower) < 0 {
			vs.lower = v
		}
		if vs.upper == nil || bytes.Compare(v, vs.upper) > 0 {
			vs.upper = v
		}
	}
	if uint64(did) >= st.nextDocID {
		st.nextDocID = uint64(did) + 1
	}
}

func (b *builder) removeDoc(did model.DocID) bool {
	st := b.st
	doc, ok := st.docs[did]
	if !ok {
		return false
	}
	delete(st.docs, did)
	st.live.Remove(uint32(did))
	st.totalLen -= doc.Length()
	if doc.HasPositions() {
		st.positions--
	}
	for term, ti := range doc.Terms {
		tp := b.term(term)
		tp.docs.Remove(uint32(did))
		tp.cf -= uint64(ti.WDF)
		if tp.docs.IsEmpty() {
			delete(st.terms, term)
		}
	}
	for slot, v := range doc.Values {
		if len(v) == 0 {
			continue
		}
		vs := b.slot(slot)
		vs.docs.Remove(uint32(did))
		if vs.docs.IsEmpty() {
			delete(st.values, slot)
		}
	}
	return true
}

// apply replays one batch. Errors leave the builder half-applied; callers
// discard it.
func (b *builder) apply(batch *shard.Batch) error {
	for i, op := range batch.Ops {
		switch op.Kind {
		case shard.OpAdd, shard.OpReplace:
			if op.DocID == 0 {
				return shard.Errorf(shard.ErrInvalidArgument, "op %d: docid 0", i)
			}
			if op.Doc == nil {
				return shard.Errorf(shard.ErrInvalidArgument, "op %d: %s without document", i, op.Kind)
			}
			b.removeDoc(op.DocID)
			b.addDoc(op.DocID, op.Doc)
		case shard.OpDelete:
			if !b.removeDoc(op.DocID) {
				return shard.Errorf(shard.ErrDocNotFound, "document %d", op.DocID)
			}
		case shard.OpSetMetadata:
			b.cloneAux()
			if err := b.st.meta.Set(op.Key, op.Value); err != nil {
				return err
			}
		case shard.OpAddSpelling:
			b.cloneAux()
			b.st.spell.Add(op.Key, uint64(op.Freq))
		case shard.OpRemoveSpelling:
			b.cloneAux()
			b.st.spell.Remove(op.Key, uint64(op.Freq))
		case shard.OpAddSynonym:
			b.cloneAux()
			b.st.syn.Add(op.Key, op.Value)
		case shard.OpRemoveSynonym:
			b.cloneAux()
			b.st.syn.Remove(op.Key, op.Value)
		case shard.OpClearSynonyms:
			b.cloneAux()
			b.st.syn.Clear(op.Key)
		default:
			return shard.Errorf(shard.ErrDatabaseCorrupt, "op %d: unknown kind %d", i, op.Kind)
		}
	}
	if batch.NextDocID > b.st.nextDocID {
		b.st.nextDocID = batch.NextDocID
	}
	return nil
}

func (b *builder) build(rev uint64) *state {
	b.st.rev = rev
	return b.st
}
