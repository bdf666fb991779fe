package merger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/flarelayer/arbbot/internal/bus"
	"github.com/flarelayer/arbbot/internal/compose"
	"github.com/flarelayer/arbbot/internal/ingest"
)

// SamePathMerger combines two Ready swaps that traverse the identical
// pool sequence with distinct input tokens/amounts into a two-leg
// BackrunSwapSteps that reuses state between legs (spec.md §4.F).
type SamePathMerger struct {
	multicaller common.Address
	in          *bus.Subscription[compose.SwapCompose]
	headers     *bus.Subscription[ingest.BlockEvent]
	out         *bus.Bus[compose.SwapCompose]
}

// NewSamePathMerger constructs the merger. multicaller is required
// (spec.md §9 Open Question: every merger carries it, not just some).
func NewSamePathMerger(multicaller common.Address, in *bus.Bus[compose.SwapCompose], headers *bus.Bus[ingest.BlockEvent], out *bus.Bus[compose.SwapCompose]) *SamePathMerger {
	return &SamePathMerger{multicaller: multicaller, in: in.Subscribe(), headers: headers.Subscribe(), out: out}
}

// Run implements bus.Worker.
func (m *SamePathMerger) Run(ctx context.Context) error {
	return runMerger(ctx, "same_path_merger", m.in, m.headers, m.out, m.combine)
}

func (m *SamePathMerger) combine(existing, incoming compose.SwapCompose) (compose.Swap, bool) {
	first, second := existing.Swap, incoming.Swap
	if len(first.Legs()) != 1 || len(second.Legs()) != 1 {
		return nil, false
	}
	a, b := first.Legs()[0], second.Legs()[0]
	if !a.Path.SameSequence(b.Path) {
		return nil, false
	}
	if a.InputToken() == b.InputToken() && a.AmountIn.Eq(b.AmountIn) {
		return nil, false // not distinct, nothing gained by merging
	}
	return &compose.BackrunSwapSteps{First: a, Second: b, MulticallerAddress: m.multicaller}, true
}
