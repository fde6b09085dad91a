package testutil

import (
	"bytes"
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/hupe1980/shardex/auxindex"
	"github.com/hupe1980/shardex/model"
	"github.com/hupe1980/shardex/shard"
	"github.com/hupe1980/shardex/spelling"
)

// Capability names a group of Shard methods that can be switched off.
type Capability string

const (
	CapDocCount       Capability = "doccount"
	CapLastDocID      Capability = "lastdocid"
	CapAvgLength      Capability = "avglength"
	CapDocLength      Capability = "doclength"
	CapTermFreq       Capability = "termfreq"
	CapCollectionFreq Capability = "collectionfreq"
	CapTermExists     Capability = "termexists"
	CapValueFreq      Capability = "valuefreq"
	CapValueBounds    Capability = "valuebounds"
	CapPositions      Capability = "positions"
	CapDocument       Capability = "document"
	CapMetadata       Capability = "metadata"
	CapUUID           Capability = "uuid"
	CapPostings       Capability = "postings"
	CapAllTerms       Capability = "allterms"
	CapTermList       Capability = "termlist"
	CapValueStream    Capability = "valuestream"
	CapSynonyms       Capability = "synonyms"
	CapSpellings      Capability = "spellings"
)

type stubState struct {
	docs  map[model.DocID]*model.Document
	last  model.DocID
	meta  *auxindex.Metadata
	syn   *auxindex.Synonyms
	spell *spelling.Dictionary
}

// StubShard is an in-memory WritableShard for tests. Commits apply
// immediately; every capability can be disabled to make the corresponding
// methods fail with ErrUnimplemented.
type StubShard struct {
	mu       sync.RWMutex
	name     string
	uuid     string
	st       stubState
	disabled map[Capability]bool
	tx       bool

	commitErr  error
	commits    int
	keepAlives int
	reopens    int
	closed     bool
}

var _ shard.WritableShard = (*StubShard)(nil)

// NewStubShard returns a stub holding docs under ids 1..len(docs).
func NewStubShard(name string, docs ...*model.Document) *StubShard {
	s := &StubShard{
		name: name,
		uuid: name + "-uuid",
		st: stubState{
			docs:  make(map[model.DocID]*model.Document),
			meta:  auxindex.NewMetadata(),
			syn:   auxindex.NewSynonyms(),
			spell: spelling.NewDictionary(),
		},
		disabled: make(map[Capability]bool),
		tx:       true,
	}
	for i, d := range docs {
		s.Put(model.DocID(i+1), d)
	}
	return s
}

// Put stores doc under did directly, bypassing Commit.
func (s *StubShard) Put(did model.DocID, doc *model.Document) *StubShard {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.docs[did] = doc.Clone()
	if did > s.st.last {
		s.st.last = did
	}
	return s
}

// SetLastDocID overrides the highest allocated docid.
func (s *StubShard) SetLastDocID(did model.DocID) *StubShard {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.last = did
	return s
}

// SetMetadata stores a metadata entry directly.
func (s *StubShard) SetMetadata(key, value string) *StubShard {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.st.meta.Set(key, value)
	return s
}

// AddSynonym stores a synonym directly.
func (s *StubShard) AddSynonym(term, syn string) *StubShard {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.syn.Add(term, syn)
	return s
}

// AddSpelling stores a spelling word directly.
func (s *StubShard) AddSpelling(word string, freq uint64) *StubShard {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.spell.Add(word, freq)
	return s
}

// SetUUID sets the value reported by UUID.
func (s *StubShard) SetUUID(uuid string) *StubShard {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uuid = uuid
	return s
}

// Disable makes the given capabilities fail with ErrUnimplemented.
func (s *StubShard) Disable(caps ...Capability) *StubShard {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range caps {
		s.disabled[c] = true
	}
	return s
}

// SetTransactions controls SupportsTransactions.
func (s *StubShard) SetTransactions(ok bool) *StubShard {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tx = ok
	return s
}

// SetCommitError makes every Commit fail with err until reset with nil.
func (s *StubShard) SetCommitError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitErr = err
}

// Commits returns the number of successful commits.
func (s *StubShard) Commits() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commits
}

// KeepAlives returns the number of KeepAlive calls.
func (s *StubShard) KeepAlives() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keepAlives
}

// Reopens returns the number of Reopen calls.
func (s *StubShard) Reopens() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reopens
}

// Closed reports whether Close was called.
func (s *StubShard) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *StubShard) check(c Capability) error {
	if s.closed {
		return shard.ErrDatabaseClosed
	}
	if c != "" && s.disabled[c] {
		return shard.Errorf(shard.ErrUnimplemented, "%s: %s", s.name, c)
	}
	return nil
}

func (s *StubShard) Description() string { return "stub:" + s.name }

func (s *StubShard) DocCount() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(CapDocCount); err != nil {
		return 0, err
	}
	return uint64(len(s.st.docs)), nil
}

func (s *StubShard) LastDocID() (model.DocID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(CapLastDocID); err != nil {
		return 0, err
	}
	return s.st.last, nil
}

func (s *StubShard) AvgLength() (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(CapAvgLength); err != nil {
		return 0, err
	}
	if len(s.st.docs) == 0 {
		return 0, nil
	}
	var total uint64
	for _, d := range s.st.docs {
		total += d.Length()
	}
	return float64(total) / float64(len(s.st.docs)), nil
}

func (s *StubShard) doc(did model.DocID) (*model.Document, error) {
	d, ok := s.st.docs[did]
	if !ok {
		return nil, shard.Errorf(shard.ErrDocNotFound, "document %d", did)
	}
	return d, nil
}

func (s *StubShard) DocLength(did model.DocID) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(CapDocLength); err != nil {
		return 0, err
	}
	d, err := s.doc(did)
	if err != nil {
		return 0, err
	}
	return d.Length(), nil
}

func (s *StubShard) termStats(term string) (tf, cf uint64) {
	for _, d := range s.st.docs {
		if ti := d.Term(term); ti != nil {
			tf++
			cf += uint64(ti.WDF)
		}
	}
	return tf, cf
}

func (s *StubShard) TermFreq(term string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(CapTermFreq); err != nil {
		return 0, err
	}
	tf, _ := s.termStats(term)
	return tf, nil
}

func (s *StubShard) CollectionFreq(term string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(CapCollectionFreq); err != nil {
		return 0, err
	}
	_, cf := s.termStats(term)
	return cf, nil
}

func (s *StubShard) TermExists(term string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(CapTermExists); err != nil {
		return false, err
	}
	if term == "" {
		return len(s.st.docs) > 0, nil
	}
	tf, _ := s.termStats(term)
	return tf > 0, nil
}

func (s *StubShard) ValueFreq(slot model.ValueSlot) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(CapValueFreq); err != nil {
		return 0, err
	}
	var n uint64
	for _, d := range s.st.docs {
		if len(d.Value(slot)) > 0 {
			n++
		}
	}
	return n, nil
}

func (s *StubShard) bound(slot model.ValueSlot, better int) ([]byte, error) {
	if err := s.check(CapValueBounds); err != nil {
		return nil, err
	}
	var out []byte
	for _, d := range s.st.docs {
		v := d.Value(slot)
		if len(v) == 0 {
			continue
		}
		if out == nil || bytes.Compare(v, out) == better {
			out = v
		}
	}
	return slices.Clone(out), nil
}

func (s *StubShard) ValueLowerBound(slot model.ValueSlot) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bound(slot, -1)
}

func (s *StubShard) ValueUpperBound(slot model.ValueSlot) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bound(slot, 1)
}

func (s *StubShard) HasPositions() (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(CapPositions); err != nil {
		return false, err
	}
	for _, d := range s.st.docs {
		if d.HasPositions() {
			return true, nil
		}
	}
	return false, nil
}

func (s *StubShard) Document(did model.DocID) (*model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(CapDocument); err != nil {
		return nil, err
	}
	d, err := s.doc(did)
	if err != nil {
		return nil, err
	}
	return d.Clone(), nil
}

func (s *StubShard) Metadata(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(CapMetadata); err != nil {
		return "", err
	}
	return s.st.meta.Get(key), nil
}

func (s *StubShard) UUID() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(CapUUID); err != nil {
		return "", err
	}
	return s.uuid, nil
}

func (s *StubShard) sortedIDs() []model.DocID {
	return slices.Sorted(maps.Keys(s.st.docs))
}

func (s *StubShard) Postings(term string) shard.Iterator[shard.Posting] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(CapPostings); err != nil {
		return shard.ErrIterator[shard.Posting](err)
	}
	var out []shard.Posting
	for _, did := range s.sortedIDs() {
		if term == "" {
			out = append(out, shard.Posting{DocID: did, WDF: 1})
			continue
		}
		if ti := s.st.docs[did].Term(term); ti != nil {
			out = append(out, shard.Posting{DocID: did, WDF: ti.WDF})
		}
	}
	return shard.NewSliceIterator(out)
}

func (s *StubShard) AllTerms(prefix string) shard.Iterator[shard.TermEntry] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(CapAllTerms); err != nil {
		return shard.ErrIterator[shard.TermEntry](err)
	}
	stats := make(map[string]*shard.TermEntry)
	for _, d := range s.st.docs {
		for term, ti := range d.Terms {
			if !strings.HasPrefix(term, prefix) {
				continue
			}
			e, ok := stats[term]
			if !ok {
				e = &shard.TermEntry{Term: term}
				stats[term] = e
			}
			e.TermFreq++
			e.CollFreq += uint64(ti.WDF)
		}
	}
	out := make([]shard.TermEntry, 0, len(stats))
	for _, term := range slices.Sorted(maps.Keys(stats)) {
		out = append(out, *stats[term])
	}
	return shard.NewSliceIterator(out)
}

func (s *StubShard) TermList(did model.DocID) shard.Iterator[shard.TermEntry] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(CapTermList); err != nil {
		return shard.ErrIterator[shard.TermEntry](err)
	}
	d, err := s.doc(did)
	if err != nil {
		return shard.ErrIterator[shard.TermEntry](err)
	}
	terms := d.TermList()
	out := make([]shard.TermEntry, len(terms))
	for i, term := range terms {
		out[i] = shard.TermEntry{Term: term, TermFreq: uint64(d.Terms[term].WDF)}
	}
	return shard.NewSliceIterator(out)
}

func (s *StubShard) Positions(did model.DocID, term string) shard.Iterator[uint32] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(CapPositions); err != nil {
		return shard.ErrIterator[uint32](err)
	}
	d, err := s.doc(did)
	if err != nil {
		return shard.ErrIterator[uint32](err)
	}
	ti := d.Term(term)
	if ti == nil {
		return shard.Empty[uint32]()
	}
	return shard.NewSliceIterator(slices.Clone(ti.Positions))
}

func (s *StubShard) ValueStream(slot model.ValueSlot) shard.Iterator[shard.ValueEntry] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(CapValueStream); err != nil {
		return shard.ErrIterator[shard.ValueEntry](err)
	}
	var out []shard.ValueEntry
	for _, did := range s.sortedIDs() {
		if v := s.st.docs[did].Value(slot); len(v) > 0 {
			out = append(out, shard.ValueEntry{DocID: did, Value: slices.Clone(v)})
		}
	}
	return shard.NewSliceIterator(out)
}

func (s *StubShard) MetadataKeys(prefix string) shard.Iterator[string] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(CapMetadata); err != nil {
		return shard.ErrIterator[string](err)
	}
	return shard.NewSliceIterator(s.st.meta.Keys(prefix))
}

func (s *StubShard) SynonymKeys(prefix string) shard.Iterator[string] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(CapSynonyms); err != nil {
		return shard.ErrIterator[string](err)
	}
	return shard.NewSliceIterator(s.st.syn.Keys(prefix))
}

func (s *StubShard) Synonyms(term string) shard.Iterator[string] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(CapSynonyms); err != nil {
		return shard.ErrIterator[string](err)
	}
	return shard.NewSliceIterator(s.st.syn.Of(term))
}

func (s *StubShard) Spellings() shard.Iterator[shard.TermEntry] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(CapSpellings); err != nil {
		return shard.ErrIterator[shard.TermEntry](err)
	}
	entries := s.st.spell.Entries()
	out := make([]shard.TermEntry, len(entries))
	for i, e := range entries {
		out[i] = shard.TermEntry{Term: e.Word, TermFreq: e.Freq}
	}
	return shard.NewSliceIterator(out)
}

func (s *StubShard) KeepAlive(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(""); err != nil {
		return err
	}
	s.keepAlives++
	return nil
}

func (s *StubShard) Reopen(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(""); err != nil {
		return err
	}
	s.reopens++
	return nil
}

func (s *StubShard) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *StubShard) SupportsTransactions() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tx
}

// Commit applies b to a copy of the state and publishes it only if every
// operation succeeds.
func (s *StubShard) Commit(ctx context.Context, b *shard.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(""); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.commitErr != nil {
		return s.commitErr
	}

	next := stubState{
		docs:  maps.Clone(s.st.docs),
		last:  s.st.last,
		meta:  s.st.meta.Clone(),
		syn:   s.st.syn.Clone(),
		spell: s.st.spell.Clone(),
	}
	for _, op := range b.Ops {
		switch op.Kind {
		case shard.OpAdd, shard.OpReplace:
			next.docs[op.DocID] = op.Doc.Clone()
			if op.DocID > next.last {
				next.last = op.DocID
			}
		case shard.OpDelete:
			if _, ok := next.docs[op.DocID]; !ok {
				return shard.Errorf(shard.ErrDocNotFound, "document %d", op.DocID)
			}
			delete(next.docs, op.DocID)
		case shard.OpSetMetadata:
			if err := next.meta.Set(op.Key, op.Value); err != nil {
				return err
			}
		case shard.OpAddSpelling:
			next.spell.Add(op.Key, uint64(op.Freq))
		case shard.OpRemoveSpelling:
			next.spell.Remove(op.Key, uint64(op.Freq))
		case shard.OpAddSynonym:
			next.syn.Add(op.Key, op.Value)
		case shard.OpRemoveSynonym:
			next.syn.Remove(op.Key, op.Value)
		case shard.OpClearSynonyms:
			next.syn.Clear(op.Key)
		default:
			return shard.Errorf(shard.ErrInvalidArgument, "unknown op %d", op.Kind)
		}
	}
	if b.NextDocID > 0 && b.NextDocID-1 <= uint64(model.MaxDocID) {
		if l := model.DocID(b.NextDocID - 1); l > next.last {
			next.last = l
		}
	}

	s.st = next
	s.commits++
	return nil
}
