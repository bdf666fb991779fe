package compose

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/flarelayer/arbbot/internal/marketstate"
)

// Stage tags a SwapCompose/TxCompose message's position in the
// pipeline. Transitions are monotone: a message never moves backward
// (spec.md §3); Broadcast and Discarded are terminal.
type Stage uint8

const (
	StagePrepare Stage = iota
	StageEstimate
	StageReady
	StageSign
	StageBroadcast
	StageDiscarded
)

func (s Stage) String() string {
	switch s {
	case StagePrepare:
		return "Prepare"
	case StageEstimate:
		return "Estimate"
	case StageReady:
		return "Ready"
	case StageSign:
		return "Sign"
	case StageBroadcast:
		return "Broadcast"
	case StageDiscarded:
		return "Discarded"
	default:
		return "Unknown"
	}
}

// rank gives Stage a total order for monotonicity checks. Discarded
// is reachable from any stage, so it is excluded from the ordering
// check in AdvanceTo.
func (s Stage) rank() int { return int(s) }

// ErrBackwardTransition is returned by AdvanceTo when a caller
// attempts to move a message to an earlier stage than its current one.
var ErrBackwardTransition = fmt.Errorf("compose: stage transition must be monotone")

// SwapCompose is the pipeline envelope described in spec.md §3. It
// carries an optional EOA, nonce, next-block context, gas/tip, the
// stuffing-tx hashes this opportunity backruns, the Swap itself, and
// an optional post-state snapshot. It carries no bundle; the encoded
// bundle lives on the downstream TxCompose.
type SwapCompose struct {
	Stage Stage

	EOA    *common.Address
	Nonce  uint64
	Signer *common.Address
	Balance *uint256.Int

	NextBlockNumber    uint64
	NextBlockTimestamp uint64
	NextBaseFee        *uint256.Int

	Gas         uint64
	PriorityFee *uint256.Int
	TipsPct     float64

	StuffingTxHashes []common.Hash

	Swap Swap

	PostState *marketstate.StateDiff
}

// AdvanceTo returns a copy of c moved to stage next, or
// ErrBackwardTransition if next is not strictly later than c.Stage
// (Discarded is always reachable).
func (c SwapCompose) AdvanceTo(next Stage) (SwapCompose, error) {
	if next != StageDiscarded && next.rank() <= c.Stage.rank() {
		return SwapCompose{}, ErrBackwardTransition
	}
	c.Stage = next
	return c, nil
}

// StuffingTxSet returns the stuffing-tx hashes as a set, used by
// mergers to check set equality and compute the union (§8 invariant:
// "merged stuffing-tx set equals the union of inputs' stuffing-tx
// sets").
func (c SwapCompose) StuffingTxSet() mapset.Set[common.Hash] {
	return mapset.NewThreadUnsafeSet(c.StuffingTxHashes...)
}

// TxState is one entry in a TxCompose bundle (§4.I).
type TxState interface{ isTxState() }

// Stuffing wraps a pending tx to be included verbatim, unsigned by us.
type Stuffing struct{ RawTx []byte }

func (Stuffing) isTxState() {}

// SignatureRequired marks a tx this signer must produce a signature
// for before broadcast.
type SignatureRequired struct{ UnsignedTx []byte }

func (SignatureRequired) isTxState() {}

// ReadyForBroadcast is an already-signed tx ready to ship.
type ReadyForBroadcast struct{ SignedTx []byte }

func (ReadyForBroadcast) isTxState() {}

// ReadyForBroadcastStuffing is a stuffing tx already in
// broadcast-ready form (pass-through, §4.I).
type ReadyForBroadcastStuffing struct{ RawTx []byte }

func (ReadyForBroadcastStuffing) isTxState() {}

// RlpState is a signed bundle entry: either the verbatim stuffing tx
// bytes or our own signed backrun tx bytes. §8 invariant: every entry
// forwarded to Broadcast is one of these two; none are empty/None.
type RlpState struct {
	Stuffing []byte // set iff this entry is a stuffing passthrough
	Backrun  []byte // set iff this entry is our signed backrun tx
}

// IsEmpty reports whether neither variant is populated, which must
// never be true for an entry inside a broadcast-ready bundle.
func (r RlpState) IsEmpty() bool { return len(r.Stuffing) == 0 && len(r.Backrun) == 0 }

// TxCompose is the downstream envelope produced by the Router once a
// SwapCompose reaches Ready, carried through Sign and Broadcast
// (§4.G step 5, §4.I, §4.J).
type TxCompose struct {
	Stage Stage

	Swap             Swap
	TipsPct          float64
	StuffingTxHashes []common.Hash

	States []TxState

	// Bundle holds the signed, RLP-ready entries once the Signer has
	// processed every TxState (§4.I). Populated only at StageBroadcast.
	Bundle []RlpState
}

// AdvanceTo mirrors SwapCompose.AdvanceTo's monotonicity rule.
func (c TxCompose) AdvanceTo(next Stage) (TxCompose, error) {
	if next != StageDiscarded && next.rank() <= c.Stage.rank() {
		return TxCompose{}, ErrBackwardTransition
	}
	c.Stage = next
	return c, nil
}
