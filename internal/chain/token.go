// Package chain holds the core data model shared across the pipeline:
// tokens, pools, swap paths/lines, and chain-specific transaction
// decoding. Types follow the shape of go-ethereum's core/types
// (common.Address/common.Hash value types, uint256 for amounts) but
// describe the AMM-graph domain rather than consensus state.
package chain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Token is a single ERC20-ish asset known to the market.
type Token struct {
	Address  common.Address
	Symbol   string
	Decimals uint8

	// SpotPriceETH is the last-known ETH-denominated price, or nil if
	// unknown. Refreshed by market.PriceFeedActor.
	SpotPriceETH *uint256.Int

	// Basic marks a reference asset (WETH, USDC, ...) used as a path
	// anchor and as the price-feed quote side.
	Basic bool
}

// ToNative converts an ETH-denominated amount into units of this
// token using SpotPriceETH (both 18-decimal fixed point). Returns nil
// if no price is cached.
func (t *Token) ToNative(amountETH *uint256.Int) *uint256.Int {
	if t.SpotPriceETH == nil || t.SpotPriceETH.IsZero() {
		return nil
	}
	out := new(uint256.Int).Mul(amountETH, pow10(18))
	out.Div(out, t.SpotPriceETH)
	return out
}

func pow10(n int) *uint256.Int {
	r := uint256.NewInt(1)
	ten := uint256.NewInt(10)
	for i := 0; i < n; i++ {
		r.Mul(r, ten)
	}
	return r
}
