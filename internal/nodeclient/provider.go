// Package nodeclient wraps a node's JSON-RPC/WS provider with a
// single-permit rate limiter and automatic, backing-off reconnection
// (spec.md §4.B). The wire-level framing itself is out of the core's
// scope (§1): this package consumes go-ethereum's rpc.Client /
// ethclient.Client, which already speak JSON-RPC/WS/IPC.
package nodeclient

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// LogFilter mirrors ethereum.FilterQuery's fields the core needs,
// kept local so this package does not have to import the go-ethereum
// "ethereum" interfaces package just for one struct.
type LogFilter struct {
	FromBlock *big.Int
	ToBlock   *big.Int
	Addresses []common.Address
	Topics    [][]common.Hash
}

// BlockBody selects how much of a block's transactions to fetch.
type BlockBody uint8

const (
	BlockBodyHashes BlockBody = iota
	BlockBodyFull
)

// TraceResult is the pipeline's reduced view of a debug_trace*
// response: the pre-state (inputs) and post-state (outputs) touched
// during the traced execution, keyed by address -> storage slot ->
// value. A real debug-trace backend (e.g. prestateTracer) returns
// considerably more; state-change processors only need the diff.
type TraceResult struct {
	PreState  map[common.Address]map[common.Hash]common.Hash
	PostState map[common.Address]map[common.Hash]common.Hash
	Err       error
}

// Provider is the node RPC capability surface the core consumes
// (spec.md §6). Ethereum and Base chain-id dispatch is by the
// ChainID the Provider reports; the core does not special-case
// transport details beyond this interface.
type Provider interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BlockByHash(ctx context.Context, hash common.Hash, body BlockBody) (*types.Block, error)
	HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error)
	GetLogs(ctx context.Context, filter LogFilter) ([]types.Log, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)

	// PendingNonceAt and BalanceAt back the router's signer resolution
	// step (spec.md §4.G step 2).
	PendingNonceAt(ctx context.Context, addr common.Address) (uint64, error)
	BalanceAt(ctx context.Context, addr common.Address, blockNumber *big.Int) (*big.Int, error)

	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (Subscription, error)

	DebugTraceBlockByHash(ctx context.Context, hash common.Hash) ([]TraceResult, error)
	DebugTraceBlockByNumber(ctx context.Context, number *big.Int) ([]TraceResult, error)
	DebugTraceTransaction(ctx context.Context, hash common.Hash) (TraceResult, error)
}

// Subscription abstracts an active RPC subscription (ethereum.Subscription).
type Subscription interface {
	Unsubscribe()
	Err() <-chan error
}
