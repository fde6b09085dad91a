// Package model defines core types used throughout shardex.
//
// # Identity Types
//
//   - DocID: shard-local or combined document identifier (uint32, 0 is invalid)
//   - ValueSlot: number of a per-document value field
//
// # Data Types
//
//   - Document: data blob, term list (with wdf and positions) and value slots
//   - TermInfo: within-document frequency and sorted positions of one term
//
// # Document Builder
//
//	doc := model.NewDocument().
//	    WithData([]byte("hello")).
//	    WithTerm("hello", 1).
//	    WithValue(0, []byte("2024-01-01"))
package model
