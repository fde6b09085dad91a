// Package engine implements the write side of a shardex database: a Writer
// buffers modifications against one writable shard and applies them in
// atomic batches.
//
// # Batching
//
// Every modification is appended to a pending batch. Flush hands the batch
// to the shard's Commit, which applies all of it or none of it. When the
// number of pending document modifications reaches the flush threshold
// (DefaultFlushThreshold, overridable through SHARDEX_FLUSH_THRESHOLD or
// Config.FlushThreshold) the writer flushes on its own. The same happens
// when a resource.Controller refuses memory for the pending batch.
//
// Reads through the shard only see flushed modifications.
//
// # Transactions
//
//	NONE --BeginTransaction--> ACTIVE --CommitTransaction--> NONE
//	                                  --CancelTransaction--> NONE
//
// Automatic flushing is suspended while a transaction is active and an
// explicit Flush fails with ErrInvalidOperation. A flushed transaction
// flushes before it starts and again on commit, so it forms its own batch.
// Cancelling rolls back the pending batch and the docid allocator.
//
// # Compaction policies
//
// A CompactionPolicy decides when a backend folds its delta segments into a
// new base. SegmentCountPolicy bounds the number of segments replayed on
// open; SizeRatioPolicy bounds their bytes relative to the base.
package engine
