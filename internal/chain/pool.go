package chain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PoolID uniquely identifies a pool; it is the pool contract's address.
type PoolID common.Address

func (id PoolID) String() string { return common.Address(id).Hex() }

// Protocol tags a pool's math family. Out of core scope (§1): the
// core only depends on the uniform Pool capability set below;
// concrete per-protocol swap math lives in protocol-specific
// implementations that satisfy Pool.
type Protocol uint8

const (
	ProtocolUnknown Protocol = iota
	ProtocolUniV2
	ProtocolUniV3
	ProtocolCurve
	ProtocolAerodrome
	ProtocolBaseSwap
)

func (p Protocol) String() string {
	switch p {
	case ProtocolUniV2:
		return "univ2"
	case ProtocolUniV3:
		return "univ3"
	case ProtocolCurve:
		return "curve"
	case ProtocolAerodrome:
		return "aerodrome"
	case ProtocolBaseSwap:
		return "baseswap"
	default:
		return "unknown"
	}
}

// Direction indicates which side of a pool's token list the swap
// consumes as input.
type Direction uint8

const (
	DirectionZeroForOne Direction = iota
	DirectionOneForZero
)

// SwapState is the minimal per-opportunity state overlay a Pool needs
// to simulate a trade: an EVM account/storage view keyed by address.
// Defined here (rather than importing marketstate) to keep chain
// free of a dependency on the mirrored-DB package; marketstate.Overlay
// satisfies this interface.
type SwapState interface {
	StorageAt(addr common.Address, slot common.Hash) common.Hash
	BalanceAt(addr common.Address) *uint256.Int
}

// Pool is the uniform capability set every AMM implementation must
// provide. It is intentionally small: the searcher and router never
// branch on Protocol directly, they dispatch through this interface.
// A concrete implementation typically switches on Protocol internally
// to pick its swap-math (tagged-variant dispatch per DESIGN NOTES
// rather than deep interface inheritance).
type Pool interface {
	ID() PoolID
	Protocol() Protocol
	Tokens() [2]common.Address

	// Reserves returns the current (token0, token1) reserves as last
	// mirrored from MarketState. Pools are immutable identity /
	// mutable state: callers never mutate the returned values in
	// place.
	Reserves() (r0, r1 *uint256.Int)

	// PreEstimateGas is a cheap static hint used before simulation to
	// size a speculative gas limit (§4.G step 3).
	PreEstimateGas() uint64

	// SimulateSwap runs this pool's swap math against state for an
	// exact amountIn in the given direction, returning amountOut.
	SimulateSwap(state SwapState, dir Direction, amountIn *uint256.Int) (amountOut *uint256.Int, err error)

	// Disabled reports whether the pool-health monitor has soft
	// disabled this pool (§4.K); disabled pools are excluded from
	// newly built paths but not removed from the registry.
	Disabled() bool
	SetDisabled(bool)
}

// BasePool is an embeddable struct giving a concrete Pool
// implementation its identity fields and disabled-flag storage,
// mirroring how go-ethereum's core/types composes concrete tx types
// from a shared inner struct.
type BasePool struct {
	id       PoolID
	protocol Protocol
	tokens   [2]common.Address
	gasHint  uint64
	disabled bool
}

// NewBasePool constructs the identity-only portion of a pool.
func NewBasePool(id PoolID, protocol Protocol, token0, token1 common.Address, gasHint uint64) BasePool {
	return BasePool{id: id, protocol: protocol, tokens: [2]common.Address{token0, token1}, gasHint: gasHint}
}

func (b *BasePool) ID() PoolID                 { return b.id }
func (b *BasePool) Protocol() Protocol         { return b.protocol }
func (b *BasePool) Tokens() [2]common.Address  { return b.tokens }
func (b *BasePool) PreEstimateGas() uint64     { return b.gasHint }
func (b *BasePool) Disabled() bool             { return b.disabled }
func (b *BasePool) SetDisabled(v bool)         { b.disabled = v }

// OtherToken returns the token on the opposite side of in, or an
// error if in is not one of this pool's two tokens.
func (b *BasePool) OtherToken(in common.Address) (common.Address, error) {
	switch in {
	case b.tokens[0]:
		return b.tokens[1], nil
	case b.tokens[1]:
		return b.tokens[0], nil
	default:
		return common.Address{}, fmt.Errorf("chain: token %s not in pool %s", in, b.id)
	}
}
