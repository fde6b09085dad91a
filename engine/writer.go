package engine

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/hupe1980/shardex/internal/idalloc"
	"github.com/hupe1980/shardex/model"
	"github.com/hupe1980/shardex/shard"
)

// Writer buffers modifications to one writable shard and applies them as
// atomic batches.
//
// Reads through the shard only see flushed state: documents added since the
// last flush are not visible to Postings, Document and friends. Term-based
// operations (DeleteDocumentByTerm, ReplaceDocumentByTerm) do take pending
// modifications into account through an overlay of the latest pending
// version of each touched document.
//
// A Writer is safe for concurrent use; operations are serialized.
type Writer struct {
	mu sync.Mutex

	shard   shard.WritableShard
	name    string
	cfg     Config
	logger  *slog.Logger
	metrics MetricsObserver

	alloc   *idalloc.Allocator
	durable uint64 // allocator counter as of the last successful flush
	batch   *shard.Batch
	// overlay maps docids touched by the pending batch to their latest
	// pending version; nil marks a pending delete.
	overlay map[model.DocID]*model.Document

	reserved   int64
	overBudget bool

	state     TxState
	flushedTx bool
	closed    bool
}

// NewWriter creates a writer on ws. The allocator continues after the
// shard's last docid.
func NewWriter(ws shard.WritableShard, cfg Config) (*Writer, error) {
	if ws == nil {
		return nil, shard.Errorf(shard.ErrInvalidArgument, "nil shard")
	}
	cfg.applyDefaults()

	name := ws.Description()
	last, err := ws.LastDocID()
	if err != nil {
		return nil, &shard.OpError{Op: "open writer", Shard: name, Err: err}
	}
	next := uint64(last) + 1

	return &Writer{
		shard:   ws,
		name:    name,
		cfg:     cfg,
		logger:  cfg.Logger.With("shard", name),
		metrics: cfg.Metrics,
		alloc:   idalloc.New(next),
		durable: next,
		batch:   shard.NewBatch(next),
		overlay: make(map[model.DocID]*model.Document),
	}, nil
}

// Shard returns the underlying shard.
func (w *Writer) Shard() shard.WritableShard { return w.shard }

// FlushThreshold returns the effective auto-flush threshold.
func (w *Writer) FlushThreshold() int { return w.cfg.FlushThreshold }

// State returns the transaction state.
func (w *Writer) State() TxState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Pending returns the number of buffered operations.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.batch.Len()
}

// Modifications returns the number of buffered document modifications.
func (w *Writer) Modifications() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.batch.Modifications()
}

// AddDocument buffers doc under a freshly allocated docid and returns it.
//
// If the addition triggers an automatic flush that fails, the docid is
// returned together with the error and the document stays buffered.
func (w *Writer) AddDocument(ctx context.Context, doc *model.Document) (model.DocID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkOpen(); err != nil {
		return 0, err
	}
	return w.add(ctx, doc)
}

func (w *Writer) add(ctx context.Context, doc *model.Document) (model.DocID, error) {
	if doc == nil {
		return 0, errNilDocument
	}
	did, err := w.alloc.Next()
	if err != nil {
		return 0, err
	}
	d := doc.Clone()
	w.append(shard.Op{Kind: shard.OpAdd, DocID: did, Doc: d})
	w.overlay[did] = d
	return did, w.maybeFlush(ctx)
}

// DeleteDocument buffers the deletion of did. A docid that is neither
// pending nor flushed yields ErrDocNotFound immediately.
func (w *Writer) DeleteDocument(ctx context.Context, did model.DocID) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkOpen(); err != nil {
		return err
	}
	if did == 0 {
		return errZeroDocID
	}
	ok, err := w.exists(did)
	if err != nil {
		return err
	}
	if !ok {
		return shard.Errorf(shard.ErrDocNotFound, "document %d", did)
	}
	w.append(shard.Op{Kind: shard.OpDelete, DocID: did})
	w.overlay[did] = nil
	return w.maybeFlush(ctx)
}

// DeleteDocumentByTerm buffers the deletion of every document indexed by
// term. It is a no-op when no document matches.
func (w *Writer) DeleteDocumentByTerm(ctx context.Context, term string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkOpen(); err != nil {
		return err
	}
	ids, err := w.matching(term)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	for _, did := range ids {
		w.append(shard.Op{Kind: shard.OpDelete, DocID: did})
		w.overlay[did] = nil
	}
	return w.maybeFlush(ctx)
}

// ReplaceDocument buffers doc under did, replacing any existing document.
// If did does not exist the document is added under that id and the
// allocator skips past it.
func (w *Writer) ReplaceDocument(ctx context.Context, did model.DocID, doc *model.Document) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkOpen(); err != nil {
		return err
	}
	if did == 0 {
		return errZeroDocID
	}
	if doc == nil {
		return errNilDocument
	}
	w.alloc.Observe(did)
	w.replace(did, doc)
	return w.maybeFlush(ctx)
}

// ReplaceDocumentByTerm replaces the lowest-numbered document indexed by
// term with doc and deletes all other documents indexed by term. If none
// match, doc is added. The docid holding doc is returned.
func (w *Writer) ReplaceDocumentByTerm(ctx context.Context, term string, doc *model.Document) (model.DocID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkOpen(); err != nil {
		return 0, err
	}
	if doc == nil {
		return 0, errNilDocument
	}
	ids, err := w.matching(term)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return w.add(ctx, doc)
	}

	target := ids[0]
	w.replace(target, doc)
	for _, did := range ids[1:] {
		w.append(shard.Op{Kind: shard.OpDelete, DocID: did})
		w.overlay[did] = nil
	}
	return target, w.maybeFlush(ctx)
}

func (w *Writer) replace(did model.DocID, doc *model.Document) {
	d := doc.Clone()
	w.append(shard.Op{Kind: shard.OpReplace, DocID: did, Doc: d})
	w.overlay[did] = d
}

// SetMetadata buffers a metadata update. An empty value removes the key.
func (w *Writer) SetMetadata(ctx context.Context, key, value string) error {
	if key == "" {
		return errEmptyKey
	}
	return w.appendAux(ctx, shard.Op{Kind: shard.OpSetMetadata, Key: key, Value: value})
}

// AddSpelling increases the frequency of word in the spelling dictionary.
func (w *Writer) AddSpelling(ctx context.Context, word string, inc uint32) error {
	if word == "" {
		return errEmptyWord
	}
	if inc == 0 {
		return w.checkOpenLocked()
	}
	return w.appendAux(ctx, shard.Op{Kind: shard.OpAddSpelling, Key: word, Freq: inc})
}

// RemoveSpelling decreases the frequency of word. A word whose frequency
// drops to zero is removed.
func (w *Writer) RemoveSpelling(ctx context.Context, word string, dec uint32) error {
	if word == "" {
		return errEmptyWord
	}
	if dec == 0 {
		return w.checkOpenLocked()
	}
	return w.appendAux(ctx, shard.Op{Kind: shard.OpRemoveSpelling, Key: word, Freq: dec})
}

// AddSynonym adds synonym to the synonym set of term.
func (w *Writer) AddSynonym(ctx context.Context, term, synonym string) error {
	if term == "" || synonym == "" {
		return errEmptySynonymOp
	}
	return w.appendAux(ctx, shard.Op{Kind: shard.OpAddSynonym, Key: term, Value: synonym})
}

// RemoveSynonym removes synonym from the synonym set of term.
func (w *Writer) RemoveSynonym(ctx context.Context, term, synonym string) error {
	if term == "" || synonym == "" {
		return errEmptySynonymOp
	}
	return w.appendAux(ctx, shard.Op{Kind: shard.OpRemoveSynonym, Key: term, Value: synonym})
}

// ClearSynonyms removes every synonym of term.
func (w *Writer) ClearSynonyms(ctx context.Context, term string) error {
	if term == "" {
		return errEmptySynonymOp
	}
	return w.appendAux(ctx, shard.Op{Kind: shard.OpClearSynonyms, Key: term})
}

func (w *Writer) appendAux(ctx context.Context, op shard.Op) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkOpen(); err != nil {
		return err
	}
	w.append(op)
	return w.maybeFlush(ctx)
}

// Flush applies every buffered modification to the shard atomically. It
// fails with ErrInvalidOperation inside a transaction. On failure nothing
// is applied and the pending batch is kept.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkOpen(); err != nil {
		return err
	}
	if w.state == TxActive {
		return errFlushInTx
	}
	return w.flush(ctx)
}

// BeginTransaction starts a transaction. A flushed transaction first
// flushes pending modifications and is applied as its own batch on commit.
// An unflushed transaction only groups modifications: cancelling it
// discards the whole pending batch.
func (w *Writer) BeginTransaction(ctx context.Context, flushed bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkOpen(); err != nil {
		return err
	}
	if !w.shard.SupportsTransactions() {
		return errTxUnsupported
	}
	if w.state != TxNone {
		return errTxInProgress
	}
	if flushed {
		if err := w.flush(ctx); err != nil {
			return err
		}
	}

	w.state = TxActive
	w.flushedTx = flushed
	w.metrics.OnTransaction("begin", nil)
	w.logger.DebugContext(ctx, "transaction started", "flushed", flushed)
	return nil
}

// CommitTransaction ends the active transaction. For a flushed transaction
// the modifications are flushed; if that fails they are discarded. In every
// case the writer leaves the transaction.
func (w *Writer) CommitTransaction(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkOpen(); err != nil {
		return err
	}
	if w.state != TxActive {
		return errNoTx
	}

	w.state = TxCommitted
	var err error
	if w.flushedTx {
		if err = w.flush(ctx); err != nil {
			w.discard()
		}
	}
	w.state = TxNone
	w.metrics.OnTransaction("commit", err)
	if err != nil {
		w.logger.WarnContext(ctx, "transaction commit failed, modifications discarded", "error", err)
		return err
	}
	w.logger.DebugContext(ctx, "transaction committed", "flushed", w.flushedTx)
	if !w.flushedTx {
		return w.maybeFlush(ctx)
	}
	return nil
}

// CancelTransaction discards the modifications of the active transaction
// and rolls the docid allocator back to the last flushed state.
func (w *Writer) CancelTransaction(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkOpen(); err != nil {
		return err
	}
	if w.state != TxActive {
		return errNoTx
	}
	w.cancel(ctx)
	return nil
}

func (w *Writer) cancel(ctx context.Context) {
	w.state = TxAborted
	dropped := w.batch.Len()
	w.discard()
	w.state = TxNone
	w.metrics.OnTransaction("cancel", nil)
	w.logger.DebugContext(ctx, "transaction cancelled", "dropped_ops", dropped)
}

// Close cancels an active transaction, flushes pending modifications and
// closes the shard. It is idempotent.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	var errs []error
	if w.state == TxActive {
		w.cancel(ctx)
	}
	if err := w.flush(ctx); err != nil {
		w.discard()
		errs = append(errs, err)
	}
	if err := w.shard.Close(); err != nil {
		errs = append(errs, &shard.OpError{Op: "close", Shard: w.name, Err: err})
	}
	return errors.Join(errs...)
}

func (w *Writer) checkOpen() error {
	if w.closed {
		return shard.ErrDatabaseClosed
	}
	return nil
}

func (w *Writer) checkOpenLocked() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.checkOpen()
}

func (w *Writer) append(op shard.Op) {
	before := w.batch.ApproxBytes()
	w.batch.Append(op)
	if delta := w.batch.ApproxBytes() - before; w.cfg.Resources.Reserve(delta) {
		w.reserved += delta
	} else {
		w.overBudget = true
	}
	w.metrics.OnQueueDepth("pending_ops", w.batch.Len())
}

// maybeFlush flushes outside transactions once the threshold is reached or
// the resource controller refused memory for the pending batch.
func (w *Writer) maybeFlush(ctx context.Context) error {
	var reason string
	switch {
	case w.batch.Modifications() >= w.cfg.FlushThreshold:
		reason = "threshold"
	case w.overBudget:
		reason = "memory"
	default:
		return nil
	}
	if w.state == TxActive {
		return nil
	}
	w.logger.DebugContext(ctx, "auto flush", "reason", reason, "ops", w.batch.Len())
	return w.flush(ctx)
}

func (w *Writer) flush(ctx context.Context) error {
	if w.batch.Empty() {
		return nil
	}

	b := w.batch
	b.NextDocID = w.alloc.Peek()

	start := time.Now()
	err := w.shard.Commit(ctx, b)
	elapsed := time.Since(start)
	w.metrics.OnFlush(elapsed, b.Len(), err)
	if err != nil {
		w.logger.ErrorContext(ctx, "flush failed", "ops", b.Len(), "error", err)
		return &shard.OpError{Op: "flush", Shard: w.name, Err: err}
	}

	w.metrics.OnThroughput("flush_bytes", b.ApproxBytes())
	w.logger.DebugContext(ctx, "flush completed",
		"ops", b.Len(),
		"modifications", b.Modifications(),
		"duration", elapsed,
	)

	w.durable = w.alloc.Peek()
	w.resetPending()
	return nil
}

// discard drops the pending batch and rolls the allocator back.
func (w *Writer) discard() {
	w.alloc.Reset(w.durable)
	w.resetPending()
}

func (w *Writer) resetPending() {
	w.batch.Reset(w.durable)
	clear(w.overlay)
	w.cfg.Resources.Release(w.reserved)
	w.reserved = 0
	w.overBudget = false
	w.metrics.OnQueueDepth("pending_ops", 0)
}

// exists reports whether did is live once pending modifications are
// applied. Shards that cannot look up documents defer the check to Commit.
func (w *Writer) exists(did model.DocID) (bool, error) {
	if doc, ok := w.overlay[did]; ok {
		return doc != nil, nil
	}
	_, err := w.shard.Document(did)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, shard.ErrDocNotFound):
		return false, nil
	case errors.Is(err, shard.ErrUnimplemented):
		return true, nil
	default:
		return false, &shard.OpError{Op: "document", Shard: w.name, Err: err}
	}
}

// matching returns the ids of documents indexed by term, in increasing
// order, as they will be once the pending batch is applied. The empty term
// matches every document.
func (w *Writer) matching(term string) ([]model.DocID, error) {
	var ids []model.DocID

	it := w.shard.Postings(term)
	for p, ok := it.Next(); ok; p, ok = it.Next() {
		if _, pending := w.overlay[p.DocID]; pending {
			continue
		}
		ids = append(ids, p.DocID)
	}
	if err := errors.Join(it.Err(), it.Close()); err != nil {
		return nil, &shard.OpError{Op: "postings", Shard: w.name, Err: err}
	}

	for did, doc := range w.overlay {
		if doc == nil {
			continue
		}
		if term == "" || doc.HasTerm(term) {
			ids = append(ids, did)
		}
	}
	slices.Sort(ids)
	return ids, nil
}
