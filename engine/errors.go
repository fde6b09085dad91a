package engine

import "github.com/hupe1980/shardex/shard"

var (
	errFlushInTx      = shard.Errorf(shard.ErrInvalidOperation, "flush while a transaction is in progress")
	errTxInProgress   = shard.Errorf(shard.ErrInvalidOperation, "transaction already in progress")
	errNoTx           = shard.Errorf(shard.ErrInvalidOperation, "no transaction in progress")
	errTxUnsupported  = shard.Errorf(shard.ErrUnimplemented, "shard does not support transactions")
	errNilDocument    = shard.Errorf(shard.ErrInvalidArgument, "nil document")
	errZeroDocID      = shard.Errorf(shard.ErrInvalidArgument, "docid 0 is invalid")
	errEmptyKey       = shard.Errorf(shard.ErrInvalidArgument, "empty metadata key")
	errEmptyWord      = shard.Errorf(shard.ErrInvalidArgument, "empty spelling word")
	errEmptySynonymOp = shard.Errorf(shard.ErrInvalidArgument, "empty synonym term")
)
