// Package minio stores shard blobs in MinIO or another S3-compatible
// service (Ceph, Garage, SeaweedFS) through the MinIO client.
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds: credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	store := minioblob.NewStore(client, "shards", "books/")
//	sh, err := local.Open(ctx, store, shard.CreateOrOpen)
//
// Reads are pinned to the ETag seen when a blob was opened, so a reader
// never mixes two versions of one object. Manifests are written with
// If-None-Match, and the writer lock is a lease object that is renewed and
// taken over with If-Match. Servers without conditional-write support
// report every PutIfAbsent and Lock as a failure.
package minio
