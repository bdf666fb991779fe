// Package merger implements the three opportunity mergers (spec.md
// §4.F): same-path, diff-path, and arb-swap-path. Each listens to the
// swap-compose channel, tracks only Ready messages in a
// profit-descending ready_requests list, and attempts to combine the
// newest Ready with an existing entry sharing its stuffing-tx set.
package merger

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/flarelayer/arbbot/internal/bus"
	"github.com/flarelayer/arbbot/internal/compose"
	"github.com/flarelayer/arbbot/internal/ingest"
	"github.com/flarelayer/arbbot/internal/marketstate"
)

// smartThresholdBps is the "smart mode" forwarding threshold (spec.md
// §9 Open Question 4): a merge is only attempted against an existing
// ready_requests entry that is within 10% of the list's current top
// profit, i.e. existing.profit_eth >= 0.90 * top.profit_eth. The
// source's literal U256::from(9000) of 10_000 parts reads as a 90%
// floor rather than a "beats by 10%" ceiling, and this design adopts
// that reading.
const smartThresholdBps = 9000

// readyRequests is the profit-descending list of Ready messages a
// merger considers for combination, reset on every block header
// update (spec.md §4.F).
type readyRequests struct {
	mu    sync.Mutex
	items []compose.SwapCompose
}

func (r *readyRequests) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = nil
}

// insertSorted adds c and re-sorts by profit descending.
func (r *readyRequests) insertSorted(c compose.SwapCompose) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, c)
	sort.Slice(r.items, func(i, j int) bool {
		return r.items[i].Swap.ProfitETH().Cmp(r.items[j].Swap.ProfitETH()) > 0
	})
}

// snapshot returns a copy of the current list in profit-descending order.
func (r *readyRequests) snapshot() []compose.SwapCompose {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]compose.SwapCompose, len(r.items))
	copy(out, r.items)
	return out
}

// mergeFunc attempts to combine incoming with an existing entry,
// returning the merged Swap on success.
type mergeFunc func(existing, incoming compose.SwapCompose) (compose.Swap, bool)

// runMerger implements the shared control loop described in spec.md
// §4.F steps 1-4, parameterized by a merger-specific combine
// function. It is not exported: each concrete merger type below wires
// it with its own mergeFunc and multicaller address.
func runMerger(ctx context.Context, name string, in *bus.Subscription[compose.SwapCompose], headerUpdates *bus.Subscription[ingest.BlockEvent], out *bus.Bus[compose.SwapCompose], combine mergeFunc) error {
	logger := log.New("actor", name)
	reqs := &readyRequests{}

	headerErrCh := make(chan error, 1)
	go func() {
		for {
			_, err := headerUpdates.Recv(ctx)
			if err != nil {
				headerErrCh <- err
				return
			}
			reqs.reset()
		}
	}()

	for {
		select {
		case err := <-headerErrCh:
			return err
		default:
		}

		env, err := in.Recv(ctx)
		if err != nil {
			return err
		}
		incoming := env.Value
		if incoming.Stage != compose.StageReady {
			continue
		}

		snap := reqs.snapshot()
		var top *uint256.Int
		if len(snap) > 0 {
			top = snap[0].Swap.ProfitETH()
		}

		for _, existing := range snap {
			if top != nil && !withinSmartThreshold(existing.Swap.ProfitETH(), top) {
				continue
			}
			if !sameStuffingSet(existing, incoming) {
				continue
			}
			swap, ok := combine(existing, incoming)
			if !ok {
				continue
			}
			prepared := compose.SwapCompose{
				Stage:              compose.StagePrepare,
				NextBlockNumber:    incoming.NextBlockNumber,
				NextBlockTimestamp: incoming.NextBlockTimestamp,
				NextBaseFee:        incoming.NextBaseFee,
				TipsPct:            incoming.TipsPct,
				StuffingTxHashes:   unionStuffingHashes(existing, incoming),
				Swap:               swap,
				PostState:          mergePostState(existing.PostState, incoming.PostState),
			}
			out.Send(prepared)
			logger.Debug("merged opportunity re-entered pipeline", "profit_wei", swap.ProfitETH())
			break
		}

		// Inserted regardless of merge outcome (spec.md §4.F step 4):
		// both originals stay available for a later, different merge.
		reqs.insertSorted(incoming)
	}
}

// withinSmartThreshold reports whether candidate is within 10% of top
// (candidate >= 0.90 * top), spec.md §9 Open Question 4.
func withinSmartThreshold(candidate, top *uint256.Int) bool {
	threshold := new(uint256.Int).Mul(top, uint256.NewInt(smartThresholdBps))
	threshold.Div(threshold, uint256.NewInt(10000))
	return candidate.Cmp(threshold) >= 0
}

func sameStuffingSet(a, b compose.SwapCompose) bool {
	return a.StuffingTxSet().Equal(b.StuffingTxSet())
}

// unionStuffingHashes returns the union of a and b's stuffing-tx
// hashes (§8 invariant: "merged stuffing-tx set equals the union of
// inputs' stuffing-tx sets"). The two inputs are already required to
// carry the same set by sameStuffingSet, so this is a no-op union in
// practice, but it keeps the merged output's hash list honestly
// derived rather than assuming equality holds.
func unionStuffingHashes(a, b compose.SwapCompose) []common.Hash {
	return a.StuffingTxSet().Union(b.StuffingTxSet()).ToSlice()
}

// mergePostState favors the incoming overlay, falling back to the
// existing one. All three mergers use it; none of them combines the
// two diffs.
func mergePostState(existing, incoming *marketstate.StateDiff) *marketstate.StateDiff {
	if incoming != nil {
		return incoming
	}
	return existing
}
