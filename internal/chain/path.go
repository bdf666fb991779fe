package chain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// SwapPath is an ordered list of tokens [T0, T1, ..., Tn] with
// adjacent pools [P0, ..., Pn-1] such that Pi connects Ti and Ti+1.
type SwapPath struct {
	Tokens []common.Address
	Pools  []Pool

	// Score is a precomputed desirability in [0,1]; higher sorts
	// first when paths share a pool (§4.C tie-break).
	Score float64

	disabled bool
}

// NewSwapPath validates and constructs a path. It returns an error if
// the adjacency invariant (Pi connects Ti and Ti+1) does not hold.
func NewSwapPath(tokens []common.Address, pools []Pool) (*SwapPath, error) {
	if len(tokens) != len(pools)+1 {
		return nil, fmt.Errorf("chain: path has %d tokens and %d pools, want tokens = pools+1", len(tokens), len(pools))
	}
	for i, p := range pools {
		pt := p.Tokens()
		a, b := tokens[i], tokens[i+1]
		matches := (pt[0] == a && pt[1] == b) || (pt[0] == b && pt[1] == a)
		if !matches {
			return nil, fmt.Errorf("chain: pool %s at hop %d does not connect %s -> %s", p.ID(), i, a, b)
		}
	}
	return &SwapPath{Tokens: append([]common.Address(nil), tokens...), Pools: append([]Pool(nil), pools...)}, nil
}

// IsArbitrageShaped reports whether the path returns to its starting
// token with at least 3 hops (spec.md §3).
func (p *SwapPath) IsArbitrageShaped() bool {
	return len(p.Tokens) >= 1 && len(p.Pools) >= 3 && p.Tokens[0] == p.Tokens[len(p.Tokens)-1]
}

// HopCount is the number of pool hops in the path.
func (p *SwapPath) HopCount() int { return len(p.Pools) }

func (p *SwapPath) Disabled() bool     { return p.disabled }
func (p *SwapPath) SetDisabled(v bool) { p.disabled = v }

// ContainsPool reports whether id appears among the path's pools.
func (p *SwapPath) ContainsPool(id PoolID) bool {
	for _, pool := range p.Pools {
		if pool.ID() == id {
			return true
		}
	}
	return false
}

// PoolIDs returns the ordered pool ids, used for same-path merger
// comparisons and tie-break lexicographic ordering.
func (p *SwapPath) PoolIDs() []PoolID {
	ids := make([]PoolID, len(p.Pools))
	for i, pool := range p.Pools {
		ids[i] = pool.ID()
	}
	return ids
}

// SameSequence reports whether p and other traverse the identical
// ordered pool sequence (used by the same-path merger).
func (p *SwapPath) SameSequence(other *SwapPath) bool {
	if len(p.Pools) != len(other.Pools) {
		return false
	}
	for i := range p.Pools {
		if p.Pools[i].ID() != other.Pools[i].ID() {
			return false
		}
	}
	return true
}

// DisjointPools reports whether p and other share no pool (used by
// the diff-path merger).
func (p *SwapPath) DisjointPools(other *SwapPath) bool {
	seen := make(map[PoolID]struct{}, len(p.Pools))
	for _, pool := range p.Pools {
		seen[pool.ID()] = struct{}{}
	}
	for _, pool := range other.Pools {
		if _, ok := seen[pool.ID()]; ok {
			return false
		}
	}
	return true
}

// SharedEdge returns the first pool id shared between p and other, or
// ok=false if none (used by the arb-swap-path merger).
func (p *SwapPath) SharedEdge(other *SwapPath) (PoolID, bool) {
	seen := make(map[PoolID]struct{}, len(p.Pools))
	for _, pool := range p.Pools {
		seen[pool.ID()] = struct{}{}
	}
	for _, pool := range other.Pools {
		if _, ok := seen[pool.ID()]; ok {
			return pool.ID(), true
		}
	}
	return PoolID{}, false
}

// SwapLine is the immutable result of the searcher's optimization
// over a SwapPath: an input amount and its simulated outcome. Once
// produced it is reused as an opaque value by every downstream stage.
type SwapLine struct {
	Path *SwapPath

	AmountIn  *uint256.Int
	AmountOut *uint256.Int

	ProfitETH *uint256.Int
	GasUsed   uint64
}

// InputToken is the token the path starts (and ends) on.
func (l *SwapLine) InputToken() common.Address { return l.Path.Tokens[0] }
