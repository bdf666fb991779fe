package ingest

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/flarelayer/arbbot/internal/bus"
	"github.com/flarelayer/arbbot/internal/nodeclient"
)

// PendingTxSource abstracts the node's pending-transaction
// subscription (newPendingTransactions); the concrete WS/IPC
// subscription mechanics live in nodeclient/topology, out of this
// actor's concern.
type PendingTxSource interface {
	SubscribePendingTx(ctx context.Context, ch chan<- common.Hash) (nodeclient.Subscription, error)
}

// MempoolIngestor publishes pending-tx hashes and, once fetched,
// their bodies (spec.md §4.D).
type MempoolIngestor struct {
	source   PendingTxSource
	provider nodeclient.Provider
	out      *bus.Bus[MempoolTxEvent]
	log      log.Logger
}

// NewMempoolIngestor constructs the ingestor.
func NewMempoolIngestor(source PendingTxSource, provider nodeclient.Provider, out *bus.Bus[MempoolTxEvent]) *MempoolIngestor {
	return &MempoolIngestor{source: source, provider: provider, out: out, log: log.New("actor", "mempool_ingestor")}
}

// Run implements bus.Worker.
func (m *MempoolIngestor) Run(ctx context.Context) error {
	hashes := make(chan common.Hash, 256)
	sub, err := m.source.SubscribePendingTx(ctx, hashes)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sub.Err():
			return err
		case hash := <-hashes:
			m.out.Send(MempoolTxEvent{Hash: hash})
			tx, _, err := m.provider.TransactionByHash(ctx, hash)
			if err != nil {
				m.log.Debug("pending tx fetch failed, dropping body", "hash", hash, "err", err)
				continue
			}
			if tx != nil {
				m.out.Send(MempoolTxEvent{Hash: hash, Tx: tx})
			}
		}
	}
}
