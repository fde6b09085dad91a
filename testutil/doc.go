// Package testutil provides testing utilities for shardex.
//
// This package is intended for use in tests and benchmarks only.
//
// # Documents
//
//	doc := testutil.Doc("apple", "pie")        // wdf 1, no positions
//	doc := testutil.PosDoc("the", "quick")     // positions 1..n
//	rng := testutil.NewRNG(seed)
//	docs := rng.Documents(100, rng.Vocabulary(50), 10)
//
// # Stub shards
//
// StubShard is an in-memory shard.WritableShard whose capabilities can be
// switched off one by one:
//
//	s := testutil.NewStubShard("a", docs...).Disable(testutil.CapValueBounds)
package testutil
