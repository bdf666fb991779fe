// Package searcher implements the state-change processors and the
// parallel arb searcher (spec.md §4.D, §4.E), plus the capital
// manager and profit calculator supplementing the distilled spec from
// loom's crates/strategy/backrun (SPEC_FULL.md §11.1).
package searcher

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/flarelayer/arbbot/internal/chain"
	"github.com/flarelayer/arbbot/internal/marketstate"
)

// Origin tags whether a StateUpdateEvent was triggered by a new block
// or a pending transaction (§4.D).
type Origin uint8

const (
	OriginBlock Origin = iota
	OriginPendingTx
)

// PoolDirection is an affected pool paired with a swap direction. The
// block-state processor always sets DirectionZeroForOne; it does not
// derive the direction from the diff.
type PoolDirection struct {
	Pool chain.PoolID
	Dir  chain.Direction
}

// StateUpdateEvent is the shared output contract of both
// state-change processors (§4.D): a post-state overlay, affected
// pools with directions, next-block context, origin tag, stuffing-tx
// hashes, and a tips percentage.
type StateUpdateEvent struct {
	PostState *marketstate.StateDiff
	Affected  []PoolDirection

	NextBlockNumber    uint64
	NextBlockTimestamp uint64
	NextBaseFee        *uint256.Int

	Origin           Origin
	StuffingTxHashes []common.Hash
	TipsPct          float64
}
