package searcher

import (
	"context"

	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/flarelayer/arbbot/internal/bus"
	"github.com/flarelayer/arbbot/internal/chain"
	"github.com/flarelayer/arbbot/internal/ingest"
	"github.com/flarelayer/arbbot/internal/market"
	"github.com/flarelayer/arbbot/internal/marketstate"
)

// BlockStateProcessor handles BlockStateUpdate{block_hash}: it reads
// the StateDiff stored with that block's BlockHistory entry, resolves
// each touched address to a pool id, and emits a StateUpdateEvent when
// a known pool is touched. It does not diff MarketState against the
// parent entry itself, and the block ingestor stores an empty diff, so
// no event is emitted for blocks.
type BlockStateProcessor struct {
	market  *market.Market
	history *marketstate.BlockHistory
	in      *bus.Subscription[ingest.BlockStateUpdate]
	out     *bus.Bus[StateUpdateEvent]
	log     log.Logger
}

// NewBlockStateProcessor constructs the processor, subscribing to in.
func NewBlockStateProcessor(m *market.Market, history *marketstate.BlockHistory, in *bus.Bus[ingest.BlockStateUpdate], out *bus.Bus[StateUpdateEvent]) *BlockStateProcessor {
	return &BlockStateProcessor{market: m, history: history, in: in.Subscribe(), out: out, log: log.New("actor", "block_state_processor")}
}

// Run implements bus.Worker.
func (p *BlockStateProcessor) Run(ctx context.Context) error {
	for {
		env, err := p.in.Recv(ctx)
		if err != nil {
			return err
		}
		p.handle(env.Value)
	}
}

func (p *BlockStateProcessor) handle(evt ingest.BlockStateUpdate) {
	entry, ok := p.history.ByHash(evt.BlockHash)
	if !ok {
		p.log.Debug("block not yet retained in history, skipping", "block", evt.BlockHash)
		return
	}
	if entry.Diff == nil {
		return
	}

	affected := affectedPools(p.market, entry.Diff)
	if len(affected) == 0 {
		return
	}

	var baseFee *uint256.Int
	if entry.Header.BaseFee != nil {
		baseFee, _ = uint256.FromBig(entry.Header.BaseFee)
	}

	p.out.Send(StateUpdateEvent{
		PostState:          entry.Diff,
		Affected:           affected,
		NextBlockNumber:    entry.Header.Number.Uint64() + 1,
		NextBlockTimestamp: entry.Header.Time + 12,
		NextBaseFee:        baseFee,
		Origin:             OriginBlock,
	})
}

// affectedPools resolves a diff's touched addresses to pool ids known
// to the market (a pool's PoolID is its contract address). Unknown
// addresses are ignored: not every touched address is a pool.
func affectedPools(m *market.Market, diff *marketstate.StateDiff) []PoolDirection {
	var out []PoolDirection
	for _, addr := range diff.TouchedAddresses() {
		id := chain.PoolID(addr)
		if _, ok := m.Pool(id); ok {
			out = append(out, PoolDirection{Pool: id, Dir: chain.DirectionZeroForOne})
		}
	}
	return out
}
