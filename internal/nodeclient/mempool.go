package nodeclient

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// PendingTxSubscriber is implemented by Providers that can stream
// pending-transaction hashes (spec.md §4.D mempool ingestor). It is
// kept separate from Provider itself because debug-trace-only or
// archive-style providers need not support it.
type PendingTxSubscriber interface {
	SubscribePendingTx(ctx context.Context, ch chan<- common.Hash) (Subscription, error)
}

var errPendingTxUnsupported = errors.New("nodeclient: current provider does not support pending-tx subscription")

// SubscribePendingTx implements ingest.PendingTxSource by delegating
// to the currently connected Provider, if it supports
// PendingTxSubscriber.
func (c *ReconnectingClient) SubscribePendingTx(ctx context.Context, ch chan<- common.Hash) (Subscription, error) {
	c.mu.RLock()
	p := c.current
	c.mu.RUnlock()

	sub, ok := p.(PendingTxSubscriber)
	if !ok {
		return nil, errPendingTxUnsupported
	}
	return sub.SubscribePendingTx(ctx, ch)
}

// SubscribePendingTx satisfies nodeclient.PendingTxSubscriber by
// streaming bare transaction hashes from the node's
// "newPendingTransactions" subscription.
func (p *EthProvider) SubscribePendingTx(ctx context.Context, ch chan<- common.Hash) (Subscription, error) {
	return p.rpcClient.EthSubscribe(ctx, ch, "newPendingTransactions")
}
