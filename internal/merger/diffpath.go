package merger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/flarelayer/arbbot/internal/bus"
	"github.com/flarelayer/arbbot/internal/chain"
	"github.com/flarelayer/arbbot/internal/compose"
	"github.com/flarelayer/arbbot/internal/ingest"
)

// DiffPathMerger combines two Ready swaps with disjoint pools but the
// same stuffing-tx hashes into sequential steps (spec.md §4.F). The
// shared stuffing-tx set is already enforced by runMerger; this
// combine step only needs to additionally check pool disjointness.
type DiffPathMerger struct {
	multicaller common.Address
	in          *bus.Subscription[compose.SwapCompose]
	headers     *bus.Subscription[ingest.BlockEvent]
	out         *bus.Bus[compose.SwapCompose]
}

// NewDiffPathMerger constructs the merger.
func NewDiffPathMerger(multicaller common.Address, in *bus.Bus[compose.SwapCompose], headers *bus.Bus[ingest.BlockEvent], out *bus.Bus[compose.SwapCompose]) *DiffPathMerger {
	return &DiffPathMerger{multicaller: multicaller, in: in.Subscribe(), headers: headers.Subscribe(), out: out}
}

// Run implements bus.Worker.
func (m *DiffPathMerger) Run(ctx context.Context) error {
	return runMerger(ctx, "diff_path_merger", m.in, m.headers, m.out, m.combine)
}

func (m *DiffPathMerger) combine(existing, incoming compose.SwapCompose) (compose.Swap, bool) {
	aLegs, bLegs := existing.Swap.Legs(), incoming.Swap.Legs()
	if len(aLegs) != 1 || len(bLegs) != 1 {
		return nil, false
	}
	a, b := aLegs[0], bLegs[0]
	if !a.Path.DisjointPools(b.Path) {
		return nil, false
	}
	return &compose.DiffPathSteps{Steps: []*chain.SwapLine{a, b}, MulticallerAddress: m.multicaller}, true
}
