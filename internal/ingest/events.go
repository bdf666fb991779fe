// Package ingest implements the block/header/log/state and mempool
// ingestors (spec.md §4.C, §4.D): actors that subscribe to the node
// and publish normalized events onto the block and mempool buses.
package ingest

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// BlockEvent is published whenever a new header is observed.
type BlockEvent struct {
	Header *types.Header
}

// LogEvent is published for logs belonging to a new block.
type LogEvent struct {
	BlockHash common.Hash
	Logs      []*types.Log
}

// BlockStateUpdate signals that a block's state diff vs its parent is
// ready in MarketState, triggering the block-state processor (§4.D).
type BlockStateUpdate struct {
	BlockHash common.Hash
}

// MempoolTxEvent is published for every pending transaction hash (and,
// once fetched, its body) observed in the mempool (§4.D).
type MempoolTxEvent struct {
	Hash common.Hash
	Tx   *types.Transaction // nil until the body has been fetched
}

// Default bus capacities (spec.md §4.A).
const (
	CapacityBlockBus   = 10
	CapacityMempoolTx  = 5000
	CapacityMarket     = 100
	CapacityMempoolEvt = 2000
	CapacityTxCompose  = 2000
	CapacityHealth     = 1000
	CapacityMetrics    = 1000
)
