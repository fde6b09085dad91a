package shardex

import (
	"context"

	"github.com/hupe1980/shardex/backend/local"
	"github.com/hupe1980/shardex/engine"
	"github.com/hupe1980/shardex/model"
	"github.com/hupe1980/shardex/shard"
)

// TxState is the transaction state of a writable database.
type TxState = engine.TxState

const (
	TxNone      = engine.TxNone
	TxActive    = engine.TxActive
	TxCommitted = engine.TxCommitted
	TxAborted   = engine.TxAborted
)

// OpenMode controls how OpenWritable treats an existing shard.
type OpenMode = shard.OpenMode

const (
	CreateOrOpen      = shard.CreateOrOpen
	Create            = shard.Create
	CreateOrOverwrite = shard.CreateOrOverwrite
	OpenExisting      = shard.Open
)

// WritableDatabase is a Database over exactly one writable shard.
//
// Modifications are buffered and become durable, and visible to reads, on
// Flush, on a committing flushed transaction, on reaching the flush
// threshold, or on Close. Reads through this handle see the last flushed
// state only; buffered metadata, synonym and spelling changes are not
// reflected until flushed.
//
// Mutating calls are serialized internally, but callers interleaving them
// from several goroutines get no ordering guarantee between them.
type WritableDatabase struct {
	*Database
	w *engine.Writer
}

// OpenWritable opens the shard at path for writing. mode decides whether
// an existing shard is opened, rejected or overwritten. Only one writer may
// hold a shard; a second one fails with ErrDatabaseLock.
func OpenWritable(ctx context.Context, path string, mode OpenMode, optFns ...Option) (*WritableDatabase, error) {
	o := applyOptions(optFns)
	if err := mode.Validate(); err != nil {
		return nil, err
	}

	store, err := o.stores(ctx, path)
	if err != nil {
		err = &shard.OpError{Op: "open", Shard: path, Err: shard.Wrap(shard.ErrDatabaseOpening, err)}
		o.logger.LogOpen(ctx, 1, true, err)
		return nil, err
	}
	s, err := local.Open(ctx, store, mode, o.localOptions(path)...)
	if err != nil {
		closeStore(store)
		err = translateError(err)
		o.logger.LogOpen(ctx, 1, true, err)
		return nil, err
	}

	wdb, err := newWritable(o, s, func() { closeStore(store) })
	o.logger.LogOpen(ctx, 1, true, err)
	return wdb, err
}

// OpenWritableShard wraps an already opened writable shard. The database
// takes ownership of it.
func OpenWritableShard(ws shard.WritableShard, optFns ...Option) (*WritableDatabase, error) {
	if ws == nil {
		return nil, shard.Errorf(shard.ErrInvalidArgument, "nil shard")
	}
	return newWritable(applyOptions(optFns), ws, nil)
}

func newWritable(o options, ws shard.WritableShard, after func()) (*WritableDatabase, error) {
	w, err := engine.NewWriter(ws, engine.Config{
		FlushThreshold: o.flushThreshold,
		Logger:         o.logger.Logger,
		Metrics:        o.metrics,
		Resources:      o.resources,
	})
	if err != nil {
		_ = ws.Close()
		if after != nil {
			after()
		}
		return nil, err
	}

	ref := newShardRef(ws, func() error {
		err := w.Close(context.Background())
		if after != nil {
			after()
		}
		return err
	})
	return &WritableDatabase{Database: newDatabase(o, []*shardRef{ref}), w: w}, nil
}

// check fails once this handle was closed or released.
func (wdb *WritableDatabase) check() error {
	_, err := wdb.view()
	return err
}

// Clone returns another handle sharing the writer. Buffered modifications
// are shared as well.
func (wdb *WritableDatabase) Clone() (*WritableDatabase, error) {
	db, err := wdb.Database.Clone()
	if err != nil {
		return nil, err
	}
	return &WritableDatabase{Database: db, w: wdb.w}, nil
}

// AddDatabase fails: a writable database spans exactly one shard.
func (wdb *WritableDatabase) AddDatabase(*Database) error {
	return shard.Errorf(shard.ErrInvalidOperation, "cannot add shards to a writable database")
}

// State returns the transaction state.
func (wdb *WritableDatabase) State() TxState { return wdb.w.State() }

// FlushThreshold returns the effective automatic flush threshold.
func (wdb *WritableDatabase) FlushThreshold() int { return wdb.w.FlushThreshold() }

// Pending returns the number of buffered operations.
func (wdb *WritableDatabase) Pending() int { return wdb.w.Pending() }

// AddDocument buffers doc and returns its new docid.
func (wdb *WritableDatabase) AddDocument(ctx context.Context, doc *model.Document) (model.DocID, error) {
	if err := wdb.check(); err != nil {
		return 0, err
	}
	return wdb.w.AddDocument(ctx, doc)
}

// DeleteDocument buffers the deletion of did.
func (wdb *WritableDatabase) DeleteDocument(ctx context.Context, did model.DocID) error {
	if err := wdb.check(); err != nil {
		return err
	}
	return wdb.w.DeleteDocument(ctx, did)
}

// DeleteDocumentByTerm buffers the deletion of every document indexed by
// term. No match is not an error.
func (wdb *WritableDatabase) DeleteDocumentByTerm(ctx context.Context, term string) error {
	if err := wdb.check(); err != nil {
		return err
	}
	return wdb.w.DeleteDocumentByTerm(ctx, term)
}

// ReplaceDocument buffers doc under did, adding it if did does not exist.
func (wdb *WritableDatabase) ReplaceDocument(ctx context.Context, did model.DocID, doc *model.Document) error {
	if err := wdb.check(); err != nil {
		return err
	}
	return wdb.w.ReplaceDocument(ctx, did, doc)
}

// ReplaceDocumentByTerm replaces the lowest-numbered document indexed by
// term with doc and deletes the other matches. Without a match doc is
// added. It returns the docid doc ends up under.
func (wdb *WritableDatabase) ReplaceDocumentByTerm(ctx context.Context, term string, doc *model.Document) (model.DocID, error) {
	if err := wdb.check(); err != nil {
		return 0, err
	}
	return wdb.w.ReplaceDocumentByTerm(ctx, term, doc)
}

// SetMetadata buffers setting key to value; an empty value deletes the key.
func (wdb *WritableDatabase) SetMetadata(ctx context.Context, key, value string) error {
	if err := wdb.check(); err != nil {
		return err
	}
	return wdb.w.SetMetadata(ctx, key, value)
}

// AddSpelling raises the frequency of word by inc.
func (wdb *WritableDatabase) AddSpelling(ctx context.Context, word string, inc uint32) error {
	if err := wdb.check(); err != nil {
		return err
	}
	return wdb.w.AddSpelling(ctx, word, inc)
}

// RemoveSpelling lowers the frequency of word by dec, dropping it at zero.
func (wdb *WritableDatabase) RemoveSpelling(ctx context.Context, word string, dec uint32) error {
	if err := wdb.check(); err != nil {
		return err
	}
	return wdb.w.RemoveSpelling(ctx, word, dec)
}

// AddSynonym buffers adding synonym to term.
func (wdb *WritableDatabase) AddSynonym(ctx context.Context, term, synonym string) error {
	if err := wdb.check(); err != nil {
		return err
	}
	return wdb.w.AddSynonym(ctx, term, synonym)
}

// RemoveSynonym buffers removing synonym from term.
func (wdb *WritableDatabase) RemoveSynonym(ctx context.Context, term, synonym string) error {
	if err := wdb.check(); err != nil {
		return err
	}
	return wdb.w.RemoveSynonym(ctx, term, synonym)
}

// ClearSynonyms buffers removing every synonym of term.
func (wdb *WritableDatabase) ClearSynonyms(ctx context.Context, term string) error {
	if err := wdb.check(); err != nil {
		return err
	}
	return wdb.w.ClearSynonyms(ctx, term)
}

// Flush durably applies all buffered modifications as one unit. On failure
// nothing is applied and the modifications stay buffered.
func (wdb *WritableDatabase) Flush(ctx context.Context) error {
	if err := wdb.check(); err != nil {
		return err
	}
	pending := wdb.w.Pending()
	err := wdb.w.Flush(ctx)
	wdb.logger.LogFlush(ctx, pending, err)
	return err
}

// BeginTransaction starts a transaction. See engine.Writer.BeginTransaction.
func (wdb *WritableDatabase) BeginTransaction(ctx context.Context, flushed bool) error {
	if err := wdb.check(); err != nil {
		return err
	}
	err := wdb.w.BeginTransaction(ctx, flushed)
	wdb.logger.LogTransaction(ctx, "begin", err)
	return err
}

// CommitTransaction ends the active transaction, flushing it if it was
// begun flushed.
func (wdb *WritableDatabase) CommitTransaction(ctx context.Context) error {
	if err := wdb.check(); err != nil {
		return err
	}
	err := wdb.w.CommitTransaction(ctx)
	wdb.logger.LogTransaction(ctx, "commit", err)
	return err
}

// CancelTransaction discards the active transaction's modifications; for
// an unflushed transaction every buffered modification is discarded.
func (wdb *WritableDatabase) CancelTransaction(ctx context.Context) error {
	if err := wdb.check(); err != nil {
		return err
	}
	err := wdb.w.CancelTransaction(ctx)
	wdb.logger.LogTransaction(ctx, "cancel", err)
	return err
}
