package marketstate

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Overlay layers a pending StateDiff on top of a read-only
// MarketState snapshot. The searcher and estimator simulate against
// an Overlay rather than the base MarketState directly, so a
// pending-tx's projected effects are visible without ever mutating
// the mirror itself (spec.md §3: "an overlay is constructed per-
// opportunity by layering a pending state diff on top").
type Overlay struct {
	base *MarketState
	diff *StateDiff
}

// NewOverlay builds an overlay of diff on top of base. diff may be
// nil, in which case the overlay simply reads through to base.
func NewOverlay(base *MarketState, diff *StateDiff) *Overlay {
	if diff == nil {
		diff = NewStateDiff()
	}
	return &Overlay{base: base, diff: diff}
}

// StorageAt satisfies chain.SwapState.
func (o *Overlay) StorageAt(addr common.Address, slot common.Hash) common.Hash {
	if slots, ok := o.diff.StorageNew[addr]; ok {
		if v, ok := slots[slot]; ok {
			return v
		}
	}
	return o.base.StorageAt(addr, slot)
}

// BalanceAt satisfies chain.SwapState.
func (o *Overlay) BalanceAt(addr common.Address) *uint256.Int {
	if acc, ok := o.diff.AccountsNew[addr]; ok && acc.Balance != nil {
		return acc.Balance
	}
	return o.base.BalanceAt(addr)
}

// Account returns the effective account info, overlay first.
func (o *Overlay) Account(addr common.Address) AccountInfo {
	if acc, ok := o.diff.AccountsNew[addr]; ok {
		return acc
	}
	return o.base.Account(addr)
}

// WithDiff returns a new Overlay with an additional diff layered on
// top of this one (used by mergers, which simulate a combined diff
// against the same base snapshot as the original legs).
func (o *Overlay) WithDiff(extra *StateDiff) *Overlay {
	merged := NewStateDiff()
	for addr, v := range o.diff.AccountsNew {
		merged.AccountsNew[addr] = v
	}
	for addr, v := range o.diff.AccountsOld {
		merged.AccountsOld[addr] = v
	}
	for addr, slots := range o.diff.StorageNew {
		for slot, v := range slots {
			merged.SetStorage(addr, slot, o.base.StorageAt(addr, slot), v)
		}
	}
	if extra != nil {
		for addr, v := range extra.AccountsNew {
			merged.AccountsNew[addr] = v
		}
		for addr, slots := range extra.StorageNew {
			for slot, v := range slots {
				merged.SetStorage(addr, slot, o.StorageAt(addr, slot), v)
			}
		}
	}
	return &Overlay{base: o.base, diff: merged}
}
