package shardex

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/shardex/backend/local"
	"github.com/hupe1980/shardex/blobstore"
	"github.com/hupe1980/shardex/merge"
	"github.com/hupe1980/shardex/model"
	"github.com/hupe1980/shardex/shard"
	"github.com/hupe1980/shardex/spelling"
)

// shardRef is shared ownership of one shard. The last release closes it;
// close closes it for every owner.
type shardRef struct {
	shard.Shard

	refs    atomic.Int64
	closed  atomic.Bool
	once    sync.Once
	closeFn func() error
	err     error
}

func newShardRef(s shard.Shard, closeFn func() error) *shardRef {
	if closeFn == nil {
		closeFn = s.Close
	}
	r := &shardRef{Shard: s, closeFn: closeFn}
	r.refs.Store(1)
	return r
}

func (r *shardRef) retain() { r.refs.Add(1) }

func (r *shardRef) release() error {
	if r.refs.Add(-1) > 0 {
		return nil
	}
	return r.close()
}

func (r *shardRef) close() error {
	r.once.Do(func() {
		r.closed.Store(true)
		r.err = r.closeFn()
	})
	return r.err
}

// Database is a read-only view combining one or more shards.
//
// Documents are addressed by combined docids: local docid d of shard i in a
// view of S shards is (d-1)*S + i + 1. Reads observe the snapshot each
// shard took at open or at the last Reopen.
//
// A Database is safe for concurrent reads. Clone hands out another handle
// sharing the same shards; the shards are closed when the last handle is
// released, or at once by Close.
type Database struct {
	opts   options
	logger *Logger

	mu     sync.RWMutex
	shards []*shardRef
	closed bool
}

func newDatabase(o options, refs []*shardRef) *Database {
	return &Database{opts: o, logger: o.logger, shards: refs}
}

// Open opens a read-only view over the shards at paths. Paths are resolved
// to blob stores by the WithBlobStore factory (local directories by
// default) and opened concurrently.
func Open(ctx context.Context, paths []string, optFns ...Option) (*Database, error) {
	o := applyOptions(optFns)

	refs := make([]*shardRef, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			ref, err := openShard(gctx, o, path, local.ReadOnly)
			if err != nil {
				return err
			}
			refs[i] = ref
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, r := range refs {
			if r != nil {
				_ = r.close()
			}
		}
		err = translateError(err)
		o.logger.LogOpen(ctx, len(paths), false, err)
		return nil, err
	}

	o.logger.LogOpen(ctx, len(paths), false, nil)
	return newDatabase(o, refs), nil
}

// OpenShards combines already opened shards. The database takes ownership
// of them.
func OpenShards(shards []shard.Shard, optFns ...Option) (*Database, error) {
	o := applyOptions(optFns)
	refs := make([]*shardRef, 0, len(shards))
	for i, s := range shards {
		if s == nil {
			return nil, shard.Errorf(shard.ErrInvalidArgument, "shard %d is nil", i)
		}
		refs = append(refs, newShardRef(s, nil))
	}
	return newDatabase(o, refs), nil
}

func openShard(ctx context.Context, o options, path string, mode shard.OpenMode) (*shardRef, error) {
	store, err := o.stores(ctx, path)
	if err != nil {
		return nil, &shard.OpError{Op: "open", Shard: path, Err: shard.Wrap(shard.ErrDatabaseOpening, err)}
	}
	s, err := local.Open(ctx, store, mode, o.localOptions(path)...)
	if err != nil {
		closeStore(store)
		return nil, err
	}
	return newShardRef(s, func() error {
		err := s.Close()
		closeStore(store)
		return err
	}), nil
}

// closeStore releases connection-backed stores.
func closeStore(store blobstore.BlobStore) {
	if c, ok := store.(interface{ Close() }); ok {
		c.Close()
	}
}

// view returns the shards of an open handle.
func (db *Database) view() ([]*shardRef, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return nil, ErrDatabaseClosed
	}
	for _, r := range db.shards {
		if r.closed.Load() {
			return nil, ErrDatabaseClosed
		}
	}
	return db.shards, nil
}

// NumShards returns the number of shards in the view.
func (db *Database) NumShards() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.shards)
}

// Description describes the view and its shards.
func (db *Database) Description() string {
	refs, err := db.view()
	if err != nil {
		return "Database(closed)"
	}
	descs := make([]string, len(refs))
	for i, r := range refs {
		descs[i] = r.Description()
	}
	return "Database(" + strings.Join(descs, ", ") + ")"
}

// Clone returns another handle sharing this view's shards.
func (db *Database) Clone() (*Database, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return nil, ErrDatabaseClosed
	}
	for _, r := range db.shards {
		r.retain()
	}
	return newDatabase(db.opts, slices.Clone(db.shards)), nil
}

// AddDatabase appends the shards of other to this view. Combined docids
// are renumbered for the new shard count. other stays usable.
func (db *Database) AddDatabase(other *Database) error {
	if other == nil {
		return shard.Errorf(shard.ErrInvalidArgument, "nil database")
	}
	added, err := other.view()
	if err != nil {
		return err
	}
	for _, r := range added {
		r.retain()
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		for _, r := range added {
			_ = r.release()
		}
		return ErrDatabaseClosed
	}
	db.shards = slices.Concat(db.shards, added)
	return nil
}

// Reopen advances every shard to its latest durable state.
func (db *Database) Reopen(ctx context.Context) error {
	refs, err := db.view()
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range refs {
		g.Go(func() error { return r.Reopen(gctx) })
	}
	err = g.Wait()
	db.logger.LogReopen(ctx, len(refs), err)
	return err
}

// KeepAlive pings remote shards so they do not time out.
func (db *Database) KeepAlive(ctx context.Context) error {
	refs, err := db.view()
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range refs {
		g.Go(func() error { return r.KeepAlive(gctx) })
	}
	return g.Wait()
}

// Release drops this handle's references. Shards no other handle
// references are closed. The handle is unusable afterwards.
func (db *Database) Release() error {
	refs, ok := db.detach()
	if !ok {
		return nil
	}
	var errs []error
	for _, r := range refs {
		if err := r.release(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every shard of the view, for all handles sharing them. It
// is permanent and idempotent.
func (db *Database) Close() error {
	refs, ok := db.detach()
	if !ok {
		return nil
	}
	var errs []error
	for _, r := range refs {
		if err := r.close(); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	db.logger.LogClose(context.Background(), len(refs), err)
	return err
}

func (db *Database) detach() ([]*shardRef, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, false
	}
	db.closed = true
	refs := db.shards
	db.shards = nil
	return refs, true
}

// locate maps a combined docid to its shard and local docid.
func (db *Database) locate(did model.DocID) (*shardRef, model.DocID, error) {
	refs, err := db.view()
	if err != nil {
		return nil, 0, err
	}
	if did == 0 {
		return nil, 0, shard.Errorf(shard.ErrInvalidArgument, "docid 0 is invalid")
	}
	if len(refs) == 0 {
		return nil, 0, shard.Errorf(shard.ErrDocNotFound, "document %d", did)
	}
	localID, idx, _ := merge.Interleave{Shards: len(refs)}.Split(did)
	return refs[idx], localID, nil
}

func sum(refs []*shardRef, f func(s shard.Shard) (uint64, error)) (uint64, error) {
	var total uint64
	for _, r := range refs {
		n, err := f(r.Shard)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// DocCount returns the number of documents in all shards.
func (db *Database) DocCount() (uint64, error) {
	refs, err := db.view()
	if err != nil {
		return 0, err
	}
	return sum(refs, shard.Shard.DocCount)
}

// LastDocID returns the highest combined docid any shard has allocated.
func (db *Database) LastDocID() (model.DocID, error) {
	refs, err := db.view()
	if err != nil {
		return 0, err
	}
	il := merge.Interleave{Shards: len(refs)}
	var last model.DocID
	for i, r := range refs {
		l, err := r.LastDocID()
		if err != nil {
			return 0, err
		}
		if l == 0 {
			continue
		}
		c, err := il.Combine(l, i)
		if err != nil {
			return 0, err
		}
		last = max(last, c)
	}
	return last, nil
}

// AvgLength returns the mean document length, weighted by each shard's
// document count.
func (db *Database) AvgLength() (float64, error) {
	refs, err := db.view()
	if err != nil {
		return 0, err
	}
	var total float64
	var docs uint64
	for _, r := range refs {
		n, err := r.DocCount()
		if err != nil {
			return 0, err
		}
		avg, err := r.AvgLength()
		if err != nil {
			return 0, err
		}
		total += avg * float64(n)
		docs += n
	}
	if docs == 0 {
		return 0, nil
	}
	return total / float64(docs), nil
}

// DocLength returns the length of document did.
func (db *Database) DocLength(did model.DocID) (uint64, error) {
	r, localID, err := db.locate(did)
	if err != nil {
		return 0, err
	}
	return r.DocLength(localID)
}

// TermFreq returns the number of documents indexed by term.
func (db *Database) TermFreq(term string) (uint64, error) {
	refs, err := db.view()
	if err != nil {
		return 0, err
	}
	return sum(refs, func(s shard.Shard) (uint64, error) { return s.TermFreq(term) })
}

// CollectionFreq returns the number of occurrences of term.
func (db *Database) CollectionFreq(term string) (uint64, error) {
	refs, err := db.view()
	if err != nil {
		return 0, err
	}
	return sum(refs, func(s shard.Shard) (uint64, error) { return s.CollectionFreq(term) })
}

// TermExists reports whether any document is indexed by term. Every shard
// is asked so that a shard lacking the capability is reported.
func (db *Database) TermExists(term string) (bool, error) {
	refs, err := db.view()
	if err != nil {
		return false, err
	}
	found := false
	for _, r := range refs {
		ok, err := r.TermExists(term)
		if err != nil {
			return false, err
		}
		found = found || ok
	}
	return found, nil
}

// ValueFreq returns the number of documents with a non-empty value in slot.
func (db *Database) ValueFreq(slot model.ValueSlot) (uint64, error) {
	refs, err := db.view()
	if err != nil {
		return 0, err
	}
	return sum(refs, func(s shard.Shard) (uint64, error) { return s.ValueFreq(slot) })
}

// ValueLowerBound returns a lower bound on the values in slot. Shards
// without values in slot do not contribute; nil means no values at all.
func (db *Database) ValueLowerBound(slot model.ValueSlot) ([]byte, error) {
	return db.valueBound(slot, shard.Shard.ValueLowerBound, -1)
}

// ValueUpperBound returns an upper bound on the values in slot.
func (db *Database) ValueUpperBound(slot model.ValueSlot) ([]byte, error) {
	return db.valueBound(slot, shard.Shard.ValueUpperBound, 1)
}

func (db *Database) valueBound(slot model.ValueSlot, f func(shard.Shard, model.ValueSlot) ([]byte, error), want int) ([]byte, error) {
	refs, err := db.view()
	if err != nil {
		return nil, err
	}
	var bound []byte
	for _, r := range refs {
		b, err := f(r.Shard, slot)
		if err != nil {
			return nil, err
		}
		if len(b) == 0 {
			continue
		}
		if bound == nil || bytes.Compare(b, bound) == want {
			bound = b
		}
	}
	return bound, nil
}

// HasPositions reports whether any shard stores positional data.
func (db *Database) HasPositions() (bool, error) {
	refs, err := db.view()
	if err != nil {
		return false, err
	}
	found := false
	for _, r := range refs {
		ok, err := r.HasPositions()
		if err != nil {
			return false, err
		}
		found = found || ok
	}
	return found, nil
}

// Document returns document did.
func (db *Database) Document(did model.DocID) (*model.Document, error) {
	r, localID, err := db.locate(did)
	if err != nil {
		return nil, err
	}
	return r.Document(localID)
}

// Metadata returns the value stored under key by the first shard, in shard
// order, that has one; "" when none does. Every shard is asked, so one
// without metadata support fails the call.
func (db *Database) Metadata(key string) (string, error) {
	if key == "" {
		return "", shard.Errorf(shard.ErrInvalidArgument, "empty metadata key")
	}
	refs, err := db.view()
	if err != nil {
		return "", err
	}
	var value string
	for _, r := range refs {
		v, err := r.Metadata(key)
		if err != nil {
			return "", err
		}
		if value == "" {
			value = v
		}
	}
	return value, nil
}

// UUID returns the identity of the shard. Only a view over exactly one
// shard has one.
func (db *Database) UUID() (string, error) {
	refs, err := db.view()
	if err != nil {
		return "", err
	}
	if len(refs) != 1 {
		return "", shard.Errorf(shard.ErrUnimplemented, "uuid of a view over %d shards", len(refs))
	}
	return refs[0].UUID()
}

// SpellingSuggestion returns the best correction for word within maxDist
// edits, or "" when none qualifies. A negative maxDist uses
// spelling.DefaultMaxDistance.
//
// Candidates are ranked by edit distance, then by frequency summed across
// shards, then by byte order of the word.
func (db *Database) SpellingSuggestion(word string, maxDist int) (string, error) {
	refs, err := db.view()
	if err != nil {
		return "", err
	}
	if word == "" {
		return "", nil
	}
	if maxDist < 0 {
		maxDist = spelling.DefaultMaxDistance
	}
	lists := make([][]spelling.Candidate, 0, len(refs))
	for _, r := range refs {
		c, err := spellingCandidates(r.Shard, word, maxDist)
		if err != nil {
			return "", err
		}
		lists = append(lists, c)
	}
	return spelling.Best(lists...), nil
}

// spellingCandidates asks s directly when it supports lookups, otherwise
// builds a dictionary from its spelling listing.
func spellingCandidates(s shard.Shard, word string, maxDist int) ([]spelling.Candidate, error) {
	if src, ok := s.(shard.SpellingSource); ok {
		return src.SpellingCandidates(word, maxDist)
	}
	entries, err := shard.Collect(s.Spellings())
	if err != nil {
		return nil, err
	}
	dict := spelling.NewDictionary()
	for _, e := range entries {
		dict.Add(e.Term, e.TermFreq)
	}
	return dict.Candidates(word, maxDist), nil
}

// Postings iterates the documents indexed by term in combined docid order.
// The empty term iterates every document, each with a wdf of 1.
func (db *Database) Postings(term string) shard.Iterator[shard.Posting] {
	refs, err := db.view()
	if err != nil {
		return shard.ErrIterator[shard.Posting](err)
	}
	inputs := make([]shard.Iterator[shard.Posting], len(refs))
	for i, r := range refs {
		inputs[i] = r.Postings(term)
	}
	it := merge.Postings(inputs, merge.Interleave{Shards: len(refs)})
	if term != "" {
		return it
	}
	return merge.Map(it, func(p shard.Posting) (shard.Posting, error) {
		p.WDF = 1
		return p, nil
	})
}

// AllTerms iterates the terms starting with prefix in byte order. A term
// present in several shards is reported once with summed frequencies.
func (db *Database) AllTerms(prefix string) shard.Iterator[shard.TermEntry] {
	refs, err := db.view()
	if err != nil {
		return shard.ErrIterator[shard.TermEntry](err)
	}
	inputs := make([]shard.Iterator[shard.TermEntry], len(refs))
	for i, r := range refs {
		inputs[i] = r.AllTerms(prefix)
	}
	return merge.Terms(inputs)
}

// TermList iterates the terms of document did in byte order.
func (db *Database) TermList(did model.DocID) shard.Iterator[shard.TermEntry] {
	r, localID, err := db.locate(did)
	if err != nil {
		return shard.ErrIterator[shard.TermEntry](err)
	}
	return r.TermList(localID)
}

// Positions iterates the positions of term in document did.
func (db *Database) Positions(did model.DocID, term string) shard.Iterator[uint32] {
	r, localID, err := db.locate(did)
	if err != nil {
		return shard.ErrIterator[uint32](err)
	}
	return r.Positions(localID, term)
}

// ValueStream iterates the non-empty values of slot in combined docid order.
func (db *Database) ValueStream(slot model.ValueSlot) shard.Iterator[shard.ValueEntry] {
	refs, err := db.view()
	if err != nil {
		return shard.ErrIterator[shard.ValueEntry](err)
	}
	inputs := make([]shard.Iterator[shard.ValueEntry], len(refs))
	for i, r := range refs {
		inputs[i] = r.ValueStream(slot)
	}
	return merge.Values(inputs, merge.Interleave{Shards: len(refs)})
}

// MetadataKeys iterates the metadata keys starting with prefix.
func (db *Database) MetadataKeys(prefix string) shard.Iterator[string] {
	return db.mergeStrings(func(s shard.Shard) shard.Iterator[string] { return s.MetadataKeys(prefix) })
}

// SynonymKeys iterates the terms with synonyms starting with prefix.
func (db *Database) SynonymKeys(prefix string) shard.Iterator[string] {
	return db.mergeStrings(func(s shard.Shard) shard.Iterator[string] { return s.SynonymKeys(prefix) })
}

// Synonyms iterates the synonyms of term.
func (db *Database) Synonyms(term string) shard.Iterator[string] {
	return db.mergeStrings(func(s shard.Shard) shard.Iterator[string] { return s.Synonyms(term) })
}

func (db *Database) mergeStrings(f func(shard.Shard) shard.Iterator[string]) shard.Iterator[string] {
	refs, err := db.view()
	if err != nil {
		return shard.ErrIterator[string](err)
	}
	inputs := make([]shard.Iterator[string], len(refs))
	for i, r := range refs {
		inputs[i] = f(r.Shard)
	}
	return merge.Strings(inputs)
}

// Spellings iterates the spelling dictionary; a word's frequency is
// reported as TermFreq and summed across shards.
func (db *Database) Spellings() shard.Iterator[shard.TermEntry] {
	refs, err := db.view()
	if err != nil {
		return shard.ErrIterator[shard.TermEntry](err)
	}
	inputs := make([]shard.Iterator[shard.TermEntry], len(refs))
	for i, r := range refs {
		inputs[i] = r.Spellings()
	}
	return merge.Terms(inputs)
}
