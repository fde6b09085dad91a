// Package blobstore provides the storage abstraction under shardex's local
// backend: immutable segment blobs plus the small mutable pointer blobs that
// name the current revision.
//
// BlobStore is the interface for reading and writing data blobs (segments, manifests).
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: Local filesystem with atomic temp+rename writes and flock locking
//   - MemoryStore: In-process store for tests
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//   - s3.DDBCommitStore: S3 plus DynamoDB revision commits and writer leases
//   - minio.Store: MinIO and other S3-compatible services
//   - redis.Store: Redis, for small shared databases and writer leases
//
// # Custom Implementations
//
// Implement the BlobStore interface to support custom storage backends:
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)            // Open for reading
//	    Create(ctx, name) (WritableBlob, error)  // Create for writing
//	    Put(ctx, name, data) error               // Atomic write
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
//
// Stores that can serialize writers also implement Locker; the local backend
// takes the lock when it opens a writable shard and only logs a warning on
// stores without one. ConditionalStore, Pinger and Aborter are further
// optional capabilities.
package blobstore
