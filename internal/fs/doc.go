// Package fs is the file system seam of the local blob store.
//
// Production code goes through [Default]; tests swap in a [FaultyFS] to
// break writes, syncs, renames or links on chosen files:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.Inject(fs.Fault{Pattern: "seg-*", Ops: fs.OpSync})
//
// [WriteFileAtomic] and [WriteFileExclusive] publish a file through a synced
// temporary, so a crash never leaves a torn manifest behind. [Lock] takes
// the exclusive writer lock of a database directory (flock on unix).
//
// Operations take no context: they are local syscalls.
package fs
