package local

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/uuid"
	"github.com/hupe1980/shardex/blobstore"
	"github.com/hupe1980/shardex/manifest"
	"github.com/hupe1980/shardex/model"
	"github.com/hupe1980/shardex/shard"
	"github.com/hupe1980/shardex/spelling"
)

// ReadOnly opens a shard for reading only.
const ReadOnly shard.OpenMode = 0

// Shard is a shard stored as revision blobs in a blobstore.BlobStore.
//
// Readers work on an immutable in-memory snapshot published through an
// atomic pointer, so reads never block commits. A writable shard holds the
// store's writer lock until Close.
type Shard struct {
	store     blobstore.BlobStore
	manifests *manifest.Store
	opts      options
	logger    *slog.Logger
	writable  bool

	mu     sync.Mutex // serializes Commit and Reopen
	man    *manifest.Manifest
	cur    atomic.Pointer[state]
	unlock func() error
	closed atomic.Bool
}

var (
	_ shard.WritableShard  = (*Shard)(nil)
	_ shard.SpellingSource = (*Shard)(nil)
)

// Open opens the shard stored in store. ReadOnly opens an existing shard
// for reading; any other mode opens it for writing with that mode's
// create/open semantics.
func Open(ctx context.Context, store blobstore.BlobStore, mode shard.OpenMode, opts ...Option) (*Shard, error) {
	if store == nil {
		return nil, shard.Errorf(shard.ErrInvalidArgument, "nil blob store")
	}
	o := applyOptions(opts)
	s := &Shard{
		store:     store,
		manifests: manifest.NewStore(store),
		opts:      o,
		logger:    o.logger.With("shard", o.name),
		writable:  mode != ReadOnly,
	}

	if s.writable {
		if err := mode.Validate(); err != nil {
			return nil, err
		}
		if err := s.lock(ctx); err != nil {
			return nil, err
		}
	}

	if err := s.open(ctx, mode); err != nil {
		s.release()
		return nil, &shard.OpError{Op: "open", Shard: o.name, Err: translateError(err)}
	}

	s.logger.DebugContext(ctx, "shard opened",
		"mode", mode.String(),
		"revision", s.man.ID,
		"segments", len(s.man.Segments),
	)
	return s, nil
}

func (s *Shard) lock(ctx context.Context) error {
	locker, ok := s.store.(blobstore.Locker)
	if !ok {
		s.logger.WarnContext(ctx, "blob store does not support locking; concurrent writers are not detected")
		return nil
	}
	unlock, err := locker.Lock(ctx, blobstore.LockName)
	if err != nil {
		return &shard.OpError{Op: "lock", Shard: s.opts.name, Err: translateError(err)}
	}
	s.unlock = unlock
	return nil
}

func (s *Shard) release() {
	if s.unlock != nil {
		_ = s.unlock()
		s.unlock = nil
	}
}

func (s *Shard) open(ctx context.Context, mode shard.OpenMode) error {
	exists, err := s.manifests.Exists(ctx)
	if err != nil {
		return err
	}

	switch mode {
	case ReadOnly, shard.Open:
		if !exists {
			return shard.Errorf(shard.ErrDatabaseOpening, "no database found")
		}
	case shard.Create:
		if exists {
			return shard.Errorf(shard.ErrDatabaseOpening, "database already exists")
		}
		return s.create(ctx, nil)
	case shard.CreateOrOverwrite:
		if exists {
			old, err := s.manifests.Load(ctx)
			if err != nil {
				// Overwriting does not need the old revision to be readable.
				s.logger.WarnContext(ctx, "overwriting unreadable revision", "error", err)
				old = nil
			}
			return s.create(ctx, old)
		}
		return s.create(ctx, nil)
	case shard.CreateOrOpen:
		if !exists {
			return s.create(ctx, nil)
		}
	}

	m, err := s.manifests.Load(ctx)
	if err != nil {
		return err
	}
	l, err := newLoader(s.store, s.manifests, m)
	if err != nil {
		return err
	}
	st, err := l.load(ctx)
	if err != nil {
		return err
	}
	s.man = m
	s.cur.Store(st)
	return nil
}

// create publishes an empty revision. When old is given, its blobs are
// removed once the new revision is live.
func (s *Shard) create(ctx context.Context, old *manifest.Manifest) error {
	m := &manifest.Manifest{
		UUID:        uuid.NewString(),
		NextDocID:   1,
		Codec:       s.opts.codec.Name(),
		Compression: s.opts.compression.String(),
	}
	if old != nil {
		m.ID = old.ID
	}
	if err := s.manifests.Save(ctx, m); err != nil {
		return err
	}
	if old != nil {
		s.removeBlobs(ctx, old)
	}

	st := newState(m.UUID)
	st.rev = m.ID
	s.man = m
	s.cur.Store(st)
	return nil
}

// removeBlobs deletes the data blobs and manifest of an obsolete revision.
// Failures only leave garbage behind.
func (s *Shard) removeBlobs(ctx context.Context, m *manifest.Manifest) {
	for _, name := range append(m.Blobs(), manifest.Name(m.ID)) {
		if err := s.store.Delete(ctx, name); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
			s.logger.DebugContext(ctx, "failed to remove obsolete blob", "blob", name, "error", err)
		}
	}
}

func (s *Shard) snapshot() (*state, error) {
	if s.closed.Load() {
		return nil, shard.ErrDatabaseClosed
	}
	return s.cur.Load(), nil
}

// Revision returns the manifest revision of the current snapshot.
func (s *Shard) Revision() uint64 {
	return s.cur.Load().rev
}

// Segments returns the number of segments on top of the base snapshot.
func (s *Shard) Segments() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.man.Segments)
}

// Description returns the shard name.
func (s *Shard) Description() string { return s.opts.name }

// DocCount returns the number of live documents.
func (s *Shard) DocCount() (uint64, error) {
	st, err := s.snapshot()
	if err != nil {
		return 0, err
	}
	return st.live.GetCardinality(), nil
}

// LastDocID returns the highest live docid, or 0 when empty.
func (s *Shard) LastDocID() (model.DocID, error) {
	st, err := s.snapshot()
	if err != nil {
		return 0, err
	}
	return st.lastDocID(), nil
}

// AvgLength returns the mean document length.
func (s *Shard) AvgLength() (float64, error) {
	st, err := s.snapshot()
	if err != nil {
		return 0, err
	}
	n := st.live.GetCardinality()
	if n == 0 {
		return 0, nil
	}
	return float64(st.totalLen) / float64(n), nil
}

// DocLength returns the length of document did.
func (s *Shard) DocLength(did model.DocID) (uint64, error) {
	st, err := s.snapshot()
	if err != nil {
		return 0, err
	}
	doc, err := st.doc(did)
	if err != nil {
		return 0, err
	}
	return doc.Length(), nil
}

// TermFreq returns the number of documents indexed by term.
func (s *Shard) TermFreq(term string) (uint64, error) {
	st, err := s.snapshot()
	if err != nil {
		return 0, err
	}
	if term == "" {
		return st.live.GetCardinality(), nil
	}
	if tp, ok := st.terms[term]; ok {
		return tp.docs.GetCardinality(), nil
	}
	return 0, nil
}

// CollectionFreq returns the summed wdf of term over all documents.
func (s *Shard) CollectionFreq(term string) (uint64, error) {
	st, err := s.snapshot()
	if err != nil {
		return 0, err
	}
	if tp, ok := st.terms[term]; ok {
		return tp.cf, nil
	}
	return 0, nil
}

// TermExists reports whether any document is indexed by term.
func (s *Shard) TermExists(term string) (bool, error) {
	st, err := s.snapshot()
	if err != nil {
		return false, err
	}
	if term == "" {
		return !st.live.IsEmpty(), nil
	}
	_, ok := st.terms[term]
	return ok, nil
}

// ValueFreq returns the number of documents with a value in slot.
func (s *Shard) ValueFreq(slot model.ValueSlot) (uint64, error) {
	st, err := s.snapshot()
	if err != nil {
		return 0, err
	}
	if vs, ok := st.values[slot]; ok {
		return vs.docs.GetCardinality(), nil
	}
	return 0, nil
}

// ValueLowerBound returns the smallest value in slot.
func (s *Shard) ValueLowerBound(slot model.ValueSlot) ([]byte, error) {
	st, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	if vs, ok := st.values[slot]; ok {
		return append([]byte(nil), vs.lower...), nil
	}
	return nil, nil
}

// ValueUpperBound returns the largest value in slot.
func (s *Shard) ValueUpperBound(slot model.ValueSlot) ([]byte, error) {
	st, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	if vs, ok := st.values[slot]; ok {
		return append([]byte(nil), vs.upper...), nil
	}
	return nil, nil
}

// HasPositions reports whether any document carries positions.
func (s *Shard) HasPositions() (bool, error) {
	st, err := s.snapshot()
	if err != nil {
		return false, err
	}
	return st.positions > 0, nil
}

// Document returns a copy of document did.
func (s *Shard) Document(did model.DocID) (*model.Document, error) {
	st, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	doc, err := st.doc(did)
	if err != nil {
		return nil, err
	}
	return doc.Clone(), nil
}

// Metadata returns the value stored under key.
func (s *Shard) Metadata(key string) (string, error) {
	st, err := s.snapshot()
	if err != nil {
		return "", err
	}
	return st.meta.Get(key), nil
}

// UUID returns the shard identity recorded at creation.
func (s *Shard) UUID() (string, error) {
	st, err := s.snapshot()
	if err != nil {
		return "", err
	}
	return st.uuid, nil
}

// bitmapIterator walks a roaring bitmap of an immutable snapshot.
func bitmapIterator[T any](bm *roaring.Bitmap, f func(did model.DocID) T) shard.Iterator[T] {
	it := bm.Iterator()
	return shard.NewFuncIterator(func() (T, bool, error) {
		var zero T
		if !it.HasNext() {
			return zero, false, nil
		}
		return f(model.DocID(it.Next())), true, nil
	}, nil)
}

// Postings iterates the documents indexed by term in docid order.
func (s *Shard) Postings(term string) shard.Iterator[shard.Posting] {
	st, err := s.snapshot()
	if err != nil {
		return shard.ErrIterator[shard.Posting](err)
	}
	if term == "" {
		return bitmapIterator(st.live, func(did model.DocID) shard.Posting {
			return shard.Posting{DocID: did, WDF: 1}
		})
	}
	tp, ok := st.terms[term]
	if !ok {
		return shard.Empty[shard.Posting]()
	}
	return bitmapIterator(tp.docs, func(did model.DocID) shard.Posting {
		return shard.Posting{DocID: did, WDF: st.docs[did].Terms[term].WDF}
	})
}

// AllTerms iterates the terms starting with prefix in byte order.
func (s *Shard) AllTerms(prefix string) shard.Iterator[shard.TermEntry] {
	st, err := s.snapshot()
	if err != nil {
		return shard.ErrIterator[shard.TermEntry](err)
	}
	terms := st.termsWithPrefix(prefix)
	i := 0
	return shard.NewFuncIterator(func() (shard.TermEntry, bool, error) {
		if i >= len(terms) {
			return shard.TermEntry{}, false, nil
		}
		term := terms[i]
		i++
		tp := st.terms[term]
		return shard.TermEntry{Term: term, TermFreq: tp.docs.GetCardinality(), CollFreq: tp.cf}, true, nil
	}, nil)
}

// TermList iterates the terms of document did.
func (s *Shard) TermList(did model.DocID) shard.Iterator[shard.TermEntry] {
	st, err := s.snapshot()
	if err != nil {
		return shard.ErrIterator[shard.TermEntry](err)
	}
	doc, err := st.doc(did)
	if err != nil {
		return shard.ErrIterator[shard.TermEntry](err)
	}
	terms := doc.TermList()
	out := make([]shard.TermEntry, len(terms))
	for i, term := range terms {
		out[i] = shard.TermEntry{Term: term, TermFreq: uint64(doc.Terms[term].WDF)}
	}
	return shard.NewSliceIterator(out)
}

// Positions iterates the positions of term in document did.
func (s *Shard) Positions(did model.DocID, term string) shard.Iterator[uint32] {
	st, err := s.snapshot()
	if err != nil {
		return shard.ErrIterator[uint32](err)
	}
	doc, err := st.doc(did)
	if err != nil {
		return shard.ErrIterator[uint32](err)
	}
	ti := doc.Term(term)
	if ti == nil {
		return shard.Empty[uint32]()
	}
	return shard.NewSliceIterator(append([]uint32(nil), ti.Positions...))
}

// ValueStream iterates the values stored in slot in docid order.
func (s *Shard) ValueStream(slot model.ValueSlot) shard.Iterator[shard.ValueEntry] {
	st, err := s.snapshot()
	if err != nil {
		return shard.ErrIterator[shard.ValueEntry](err)
	}
	vs, ok := st.values[slot]
	if !ok {
		return shard.Empty[shard.ValueEntry]()
	}
	return bitmapIterator(vs.docs, func(did model.DocID) shard.ValueEntry {
		return shard.ValueEntry{DocID: did, Value: st.docs[did].Value(slot)}
	})
}

// MetadataKeys iterates the metadata keys starting with prefix.
func (s *Shard) MetadataKeys(prefix string) shard.Iterator[string] {
	st, err := s.snapshot()
	if err != nil {
		return shard.ErrIterator[string](err)
	}
	return shard.NewSliceIterator(st.meta.Keys(prefix))
}

// SynonymKeys iterates the terms with synonyms starting with prefix.
func (s *Shard) SynonymKeys(prefix string) shard.Iterator[string] {
	st, err := s.snapshot()
	if err != nil {
		return shard.ErrIterator[string](err)
	}
	return shard.NewSliceIterator(st.syn.Keys(prefix))
}

// Synonyms iterates the synonyms of term.
func (s *Shard) Synonyms(term string) shard.Iterator[string] {
	st, err := s.snapshot()
	if err != nil {
		return shard.ErrIterator[string](err)
	}
	return shard.NewSliceIterator(st.syn.Of(term))
}

// Spellings iterates the spelling dictionary with frequencies.
func (s *Shard) Spellings() shard.Iterator[shard.TermEntry] {
	st, err := s.snapshot()
	if err != nil {
		return shard.ErrIterator[shard.TermEntry](err)
	}
	entries := st.spell.Entries()
	out := make([]shard.TermEntry, len(entries))
	for i, e := range entries {
		out[i] = shard.TermEntry{Term: e.Word, TermFreq: e.Freq}
	}
	return shard.NewSliceIterator(out)
}

// SpellingCandidates walks the spelling trie for words within maxDist.
func (s *Shard) SpellingCandidates(word string, maxDist int) ([]spelling.Candidate, error) {
	st, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return st.spell.Candidates(word, maxDist), nil
}

// KeepAlive pings stores that support it.
func (s *Shard) KeepAlive(ctx context.Context) error {
	if s.closed.Load() {
		return shard.ErrDatabaseClosed
	}
	p, ok := s.store.(blobstore.Pinger)
	if !ok {
		return nil
	}
	if err := p.Ping(ctx); err != nil {
		return &shard.OpError{Op: "keep-alive", Shard: s.opts.name, Err: translateError(err)}
	}
	return nil
}

// Reopen loads the latest committed revision. Segments appended since the
// current snapshot are replayed incrementally; a new base (after
// compaction or overwrite) triggers a full reload.
func (s *Shard) Reopen(ctx context.Context) error {
	if s.closed.Load() {
		return shard.ErrDatabaseClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.manifests.Load(ctx)
	if err != nil {
		return &shard.OpError{Op: "reopen", Shard: s.opts.name, Err: translateError(err)}
	}
	if m.ID == s.man.ID {
		return nil
	}

	l, err := newLoader(s.store, s.manifests, m)
	if err != nil {
		return &shard.OpError{Op: "reopen", Shard: s.opts.name, Err: err}
	}

	var st *state
	if from, ok := extends(s.man, m); ok && from < len(m.Segments) {
		st, err = l.segments(ctx, s.cur.Load(), from)
	} else {
		st, err = l.load(ctx)
	}
	if err != nil {
		return &shard.OpError{Op: "reopen", Shard: s.opts.name, Err: translateError(err)}
	}
	st = l.finish(st)

	s.logger.DebugContext(ctx, "shard reopened", "from", s.man.ID, "to", m.ID)
	s.man = m
	s.cur.Store(st)
	return nil
}

// extends reports whether next only appends segments to prev, and returns
// the index of the first new segment.
func extends(prev, next *manifest.Manifest) (int, bool) {
	if prev.UUID != next.UUID || prev.Base != next.Base || len(next.Segments) < len(prev.Segments) {
		return 0, false
	}
	for i, seg := range prev.Segments {
		if next.Segments[i].Path != seg.Path {
			return 0, false
		}
	}
	return len(prev.Segments), true
}

// Close releases the writer lock. It is idempotent.
func (s *Shard) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.unlock != nil {
		err := s.unlock()
		s.unlock = nil
		if err != nil {
			return &shard.OpError{Op: "unlock", Shard: s.opts.name, Err: translateError(err)}
		}
	}
	return nil
}

// SupportsTransactions reports whether the shard is writable; every Commit
// is atomic.
func (s *Shard) SupportsTransactions() bool { return s.writable }
