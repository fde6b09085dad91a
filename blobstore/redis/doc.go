// Package redis implements blobstore.BlobStore on Redis via rueidis.
//
// Blobs are plain string keys under a configurable prefix. Writer locks are
// leases taken with SET NX PX and renewed in the background, which lets
// several hosts share one database directory held in an object store:
//
//	leases, _ := redis.NewStore(redis.Config{Addrs: []string{"localhost:6379"}, Prefix: "shardex:"})
//	release, err := leases.Lock(ctx, "books")
package redis
