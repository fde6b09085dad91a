// Package merge combines the sorted per-shard streams of a multi-shard view
// into one lazily evaluated, globally ordered stream.
//
// Document ids are interleaved: local id d of shard i (of S) becomes the
// combined id (d-1)*S + i + 1. The mapping needs only the shard count, so
// posting lists merge without knowing shard sizes.
//
// Streams whose entries share a key across shards (terms, spellings,
// metadata keys) are reduced to one entry; term statistics are summed.
package merge
