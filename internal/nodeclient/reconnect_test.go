package nodeclient

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct{}

func (*fakeProvider) ChainID(ctx context.Context) (*big.Int, error) { return nil, nil }
func (*fakeProvider) BlockNumber(ctx context.Context) (uint64, error) { return 0, nil }
func (*fakeProvider) BlockByHash(ctx context.Context, hash common.Hash, body BlockBody) (*types.Block, error) {
	return nil, nil
}
func (*fakeProvider) HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error) {
	return nil, nil
}
func (*fakeProvider) GetLogs(ctx context.Context, filter LogFilter) ([]types.Log, error) {
	return nil, nil
}
func (*fakeProvider) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	return nil, false, nil
}
func (*fakeProvider) PendingNonceAt(ctx context.Context, addr common.Address) (uint64, error) {
	return 0, nil
}
func (*fakeProvider) BalanceAt(ctx context.Context, addr common.Address, blockNumber *big.Int) (*big.Int, error) {
	return nil, nil
}
func (*fakeProvider) SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (Subscription, error) {
	return nil, nil
}
func (*fakeProvider) DebugTraceBlockByHash(ctx context.Context, hash common.Hash) ([]TraceResult, error) {
	return nil, nil
}
func (*fakeProvider) DebugTraceBlockByNumber(ctx context.Context, number *big.Int) ([]TraceResult, error) {
	return nil, nil
}
func (*fakeProvider) DebugTraceTransaction(ctx context.Context, hash common.Hash) (TraceResult, error) {
	return TraceResult{}, nil
}

func TestReconnectBackoffSequenceAndURLReset(t *testing.T) {
	var attempts []time.Time
	failuresLeft := 3

	dial := func(ctx context.Context, url string) (Provider, error) {
		attempts = append(attempts, time.Now())
		if failuresLeft > 0 {
			failuresLeft--
			return nil, errors.New("dial failed")
		}
		return &fakeProvider{}, nil
	}

	c := NewReconnectingClient(dial, "primary", []string{"backup1", "backup2"}, 0)
	c.initialBackoff = 20 * time.Millisecond
	c.maxBackoff = 200 * time.Millisecond

	start := time.Now()
	err := c.Connect(context.Background())
	require.NoError(t, err)
	require.Len(t, attempts, 4) // 3 failures + 1 success

	elapsed := time.Since(start)
	// Backoff sequence 20ms, 40ms, 80ms (+-25% jitter) between the 4 attempts.
	require.GreaterOrEqual(t, elapsed, 100*time.Millisecond*3/4)

	// urlIndex advanced past the primary across the three failures, then
	// the successful connect did not reset it (only call()'s retry path
	// does); resetToPrimary brings it back.
	c.mu.RLock()
	idx := c.urlIndex
	c.mu.RUnlock()
	require.Equal(t, 3, idx)

	c.resetToPrimary()
	c.mu.RLock()
	idx = c.urlIndex
	c.mu.RUnlock()
	require.Zero(t, idx)
}

func TestHealthBecomesUnhealthyAboveErrorRate(t *testing.T) {
	c := NewReconnectingClient(func(ctx context.Context, url string) (Provider, error) {
		return &fakeProvider{}, nil
	}, "primary", nil, 0)

	c.totalRequests.Store(100)
	c.totalErrors.Store(4)
	require.True(t, c.Health().Healthy)

	c.totalErrors.Store(6)
	require.False(t, c.Health().Healthy)
}
