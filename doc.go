// Package shardex is the data-access core of a full-text search engine.
//
// It presents one read view over any number of independently stored shards
// and a transactional, batched write path for a single shard.
//
// # Quick Start
//
//	ctx := context.Background()
//	wdb, _ := shardex.OpenWritable(ctx, "./books", shardex.CreateOrOpen)
//	doc := model.NewDocument().
//	    WithData([]byte("Moby Dick")).
//	    WithPosting("whale", 1).
//	    WithTerm("uid:42", 1)
//	did, _ := wdb.AddDocument(ctx, doc)
//	_ = wdb.Flush(ctx)  // durable and visible after this
//	_ = wdb.Close()
//
//	db, _ := shardex.Open(ctx, []string{"./books", "./articles"})
//	defer db.Close()
//	for p, err := range shard.All(db.Postings("whale")) {
//	    ...
//	}
//
// # Combined docids
//
// A view over S shards addresses local docid d of shard i (0-based) as
//
//	(d-1)*S + i + 1
//
// so shard i owns every combined id congruent to i+1 modulo S. Postings and
// value streams of all shards merge into one sequence ordered by combined
// id; term listings merge by term with frequencies summed.
//
// # Durability Model
//
// Writes are buffered in a pending batch and applied to the shard as one
// atomic commit:
//
//	wdb.AddDocument(ctx, doc)   // buffered
//	wdb.Flush(ctx)              // all or nothing
//
// A flush also happens automatically once the batch holds FlushThreshold
// document modifications (10000 by default, SHARDEX_FLUSH_THRESHOLD or
// WithFlushThreshold to change it) and when the handle is closed.
//
// Transactions group modifications:
//
//	wdb.BeginTransaction(ctx, true)  // flushed: flushes first
//	...
//	wdb.CommitTransaction(ctx)       // flushes the transaction
//
// Cancelling an unflushed transaction discards every buffered
// modification, including those made before it began.
//
// # Handles
//
// Clone returns a cheap handle sharing the same shards. Release drops one
// handle; the shards close with the last one. Close closes them at once for
// every handle. Open readers keep their snapshot until Reopen.
package shardex
