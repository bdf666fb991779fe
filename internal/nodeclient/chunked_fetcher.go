package nodeclient

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
)

// DefaultChunkSize is the block-range span fetched per GetLogs call
// when backfilling, grounded on loom's
// crates/types/blockchain/src/chunked_fetcher.rs (SPEC_FULL.md §11.1):
// batching historical backfill into bounded chunks avoids provider
// timeouts on a single huge range query.
const DefaultChunkSize = 2000

// ChunkedFetcher batches get_logs over a large block range into
// bounded chunks. Nothing in this repository constructs it; the block
// ingestor fetches logs one block at a time.
type ChunkedFetcher struct {
	provider  Provider
	chunkSize uint64
}

// NewChunkedFetcher wraps provider with the given per-request chunk
// size (or DefaultChunkSize if 0).
func NewChunkedFetcher(provider Provider, chunkSize uint64) *ChunkedFetcher {
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	return &ChunkedFetcher{provider: provider, chunkSize: chunkSize}
}

// GetLogsChunked fetches logs over [from, to] in chunkSize-sized
// windows, stopping at the first error.
func (f *ChunkedFetcher) GetLogsChunked(ctx context.Context, base LogFilter, from, to uint64) ([]types.Log, error) {
	var out []types.Log
	for start := from; start <= to; start += f.chunkSize {
		end := start + f.chunkSize - 1
		if end > to {
			end = to
		}
		filter := base
		filter.FromBlock = new(big.Int).SetUint64(start)
		filter.ToBlock = new(big.Int).SetUint64(end)

		logs, err := f.provider.GetLogs(ctx, filter)
		if err != nil {
			return out, err
		}
		out = append(out, logs...)
	}
	return out, nil
}
