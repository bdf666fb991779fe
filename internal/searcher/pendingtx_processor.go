package searcher

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/flarelayer/arbbot/internal/bus"
	"github.com/flarelayer/arbbot/internal/ingest"
	"github.com/flarelayer/arbbot/internal/market"
	"github.com/flarelayer/arbbot/internal/marketstate"
	"github.com/flarelayer/arbbot/internal/nodeclient"
)

// PendingTxProcessor simulates a pending transaction's effect on
// market state via a debug trace, resolves touched addresses to
// pools, and emits a StateUpdateEvent tagged OriginPendingTx so
// downstream searching can treat it as a same-block backrun candidate.
type PendingTxProcessor struct {
	provider nodeclient.Provider
	market   *market.Market
	history  *marketstate.BlockHistory

	in  *bus.Subscription[ingest.MempoolTxEvent]
	out *bus.Bus[StateUpdateEvent]

	log log.Logger
}

// NewPendingTxProcessor constructs the processor.
func NewPendingTxProcessor(p nodeclient.Provider, m *market.Market, history *marketstate.BlockHistory, in *bus.Bus[ingest.MempoolTxEvent], out *bus.Bus[StateUpdateEvent]) *PendingTxProcessor {
	return &PendingTxProcessor{provider: p, market: m, history: history, in: in.Subscribe(), out: out, log: log.New("actor", "pendingtx_processor")}
}

// Run implements bus.Worker.
func (p *PendingTxProcessor) Run(ctx context.Context) error {
	for {
		env, err := p.in.Recv(ctx)
		if err != nil {
			return err
		}
		if env.Value.Tx == nil {
			continue
		}
		p.handle(ctx, env.Value.Tx)
	}
}

func (p *PendingTxProcessor) handle(ctx context.Context, tx *types.Transaction) {
	head, ok := p.history.Head()
	if !ok {
		return
	}

	trace, err := p.provider.DebugTraceTransaction(ctx, tx.Hash())
	if err != nil || trace.Err != nil {
		p.log.Debug("trace failed for pending tx, skipping", "tx", tx.Hash(), "err", err)
		return
	}

	diff := diffFromTrace(trace)
	affected := affectedPools(p.market, diff)
	if len(affected) == 0 {
		return
	}

	var baseFee *uint256.Int
	if head.Header.BaseFee != nil {
		baseFee, _ = uint256.FromBig(head.Header.BaseFee)
	}

	p.out.Send(StateUpdateEvent{
		PostState:          diff,
		Affected:           affected,
		NextBlockNumber:    head.Header.Number.Uint64() + 1,
		NextBlockTimestamp: head.Header.Time + 12,
		NextBaseFee:        baseFee,
		Origin:             OriginPendingTx,
		StuffingTxHashes:   []common.Hash{tx.Hash()},
	})
}

// diffFromTrace turns a TraceResult's pre/post storage snapshots into
// a StateDiff; only storage slots are recorded, account changes are
// not.
func diffFromTrace(trace nodeclient.TraceResult) *marketstate.StateDiff {
	diff := marketstate.NewStateDiff()
	for addr, slots := range trace.PostState {
		pre := trace.PreState[addr]
		for slot, newVal := range slots {
			oldVal := pre[slot]
			diff.SetStorage(addr, slot, oldVal, newVal)
		}
	}
	return diff
}
