// Package local implements shard.WritableShard on top of a
// blobstore.BlobStore.
//
// # Layout
//
//	CURRENT                 name of the live manifest
//	MANIFEST-000042.json    revision 42: base + segment list
//	base-000040.blk         full snapshot written by compaction
//	seg-000041.blk          one committed batch
//	seg-000042.blk
//	LOCK                    writer lock (stores implementing Locker)
//
// Every commit encodes the batch (codec + optional lz4/zstd compression)
// into a new segment blob and then publishes a manifest listing it. Swapping
// CURRENT is the commit point. Once the compaction policy fires, the commit
// writes a complete base snapshot instead and the manifest drops the
// segments; obsolete blobs are removed best-effort.
//
// Terms, metadata, synonyms and spelling words are byte strings. Blobs carry
// them as byte arrays, never as codec text, so every byte survives a
// reopen.
//
// Readers hold an immutable in-memory snapshot (roaring posting bitmaps per
// term) and advance it with Reopen, which replays only new segments when
// possible.
package local
