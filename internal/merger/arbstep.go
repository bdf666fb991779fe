package merger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/flarelayer/arbbot/internal/bus"
	"github.com/flarelayer/arbbot/internal/compose"
	"github.com/flarelayer/arbbot/internal/ingest"
)

// ArbStepMerger fuses two arbitrage cycles that share an edge pool
// (spec.md §4.F).
type ArbStepMerger struct {
	multicaller common.Address
	in          *bus.Subscription[compose.SwapCompose]
	headers     *bus.Subscription[ingest.BlockEvent]
	out         *bus.Bus[compose.SwapCompose]
}

// NewArbStepMerger constructs the merger.
func NewArbStepMerger(multicaller common.Address, in *bus.Bus[compose.SwapCompose], headers *bus.Bus[ingest.BlockEvent], out *bus.Bus[compose.SwapCompose]) *ArbStepMerger {
	return &ArbStepMerger{multicaller: multicaller, in: in.Subscribe(), headers: headers.Subscribe(), out: out}
}

// Run implements bus.Worker.
func (m *ArbStepMerger) Run(ctx context.Context) error {
	return runMerger(ctx, "arb_step_merger", m.in, m.headers, m.out, m.combine)
}

func (m *ArbStepMerger) combine(existing, incoming compose.SwapCompose) (compose.Swap, bool) {
	aLegs, bLegs := existing.Swap.Legs(), incoming.Swap.Legs()
	if len(aLegs) != 1 || len(bLegs) != 1 {
		return nil, false
	}
	a, b := aLegs[0], bLegs[0]
	if !a.Path.IsArbitrageShaped() || !b.Path.IsArbitrageShaped() {
		return nil, false
	}
	shared, ok := a.Path.SharedEdge(b.Path)
	if !ok {
		return nil, false
	}
	return &compose.ArbStepSwap{A: a, B: b, SharedPool: shared, MulticallerAddress: m.multicaller}, true
}
