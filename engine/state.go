package engine

// TxState is the transaction state of a Writer.
//
//	TxNone --begin--> TxActive --commit--> TxCommitted --> TxNone
//	                           --cancel--> TxAborted   --> TxNone
//
// TxCommitted and TxAborted are transient: they are only held while the
// writer finishes the transition.
type TxState uint8

const (
	TxNone TxState = iota
	TxActive
	TxCommitted
	TxAborted
)

func (s TxState) String() string {
	switch s {
	case TxNone:
		return "none"
	case TxActive:
		return "active"
	case TxCommitted:
		return "committed"
	case TxAborted:
		return "aborted"
	default:
		return "unknown"
	}
}
