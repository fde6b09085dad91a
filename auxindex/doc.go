// Package auxindex holds the auxiliary key-indexed stores kept next to the
// primary index of a shard: user metadata and term synonyms.
//
// Both stores are plain values. Durability and atomicity come from the shard
// that persists them as part of a commit; callers mutate a Clone and publish
// it together with the rest of the new state.
package auxindex
