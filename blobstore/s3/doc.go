// Package s3 stores shard blobs in Amazon S3.
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "my-bucket", "indexes/books/")
//
// Segments are written with streaming multipart uploads carrying a CRC32-C,
// and read back with ranged GETs pinned to the ETag seen at Open.
// Manifests use If-None-Match create-only writes.
//
// S3 has no lock primitive and no atomic pointer swap across objects.
// DDBCommitStore fills both gaps with a DynamoDB table: each manifest
// revision is a conditionally written item, CURRENT resolves to the highest
// revision, and the writer lock is a lease item renewed in the background.
// A lost race surfaces as blobstore.ErrConflict or blobstore.ErrLocked.
package s3
