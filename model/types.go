package model

import (
	"fmt"
	"math"
)

// DocID identifies a document. Shard-local ids are strictly positive and never
// reused by the shard that allocated them; combined ids interleave shards.
type DocID uint32

// MaxDocID is the largest representable document id.
const MaxDocID = DocID(math.MaxUint32)

// String returns a string representation of the DocID.
func (d DocID) String() string {
	return fmt.Sprintf("Doc(%d)", uint32(d))
}

// ValueSlot is the number of a per-document value field.
type ValueSlot uint32

// TermInfo holds the per-document statistics of one term.
type TermInfo struct {
	// WDF is the within-document frequency.
	WDF uint32 `json:"wdf"`
	// Positions are sorted and unique.
	Positions []uint32 `json:"pos,omitempty"`
}

func (ti *TermInfo) clone() *TermInfo {
	c := &TermInfo{WDF: ti.WDF}
	if len(ti.Positions) > 0 {
		c.Positions = append([]uint32(nil), ti.Positions...)
	}
	return c
}
