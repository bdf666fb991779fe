package searcher

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/flarelayer/arbbot/internal/chain"
	"github.com/flarelayer/arbbot/internal/market"
)

var (
	errZeroTokenPrice  = errors.New("searcher: token price is zero")
	errZeroOptimal     = errors.New("searcher: calculated optimal amount is zero")
	errNoLiquidityInfo = errors.New("searcher: no liquidity found for token")
)

const usdDecimals = 6

// CapitalManager bounds trade size by a configured USD cap and by
// observed pool liquidity, picking whichever limit is tighter.
// max_capital_usd is carried per-chain config (spec.md §6
// backrun_strategy); per-token and ETH/USD prices are set through
// UpdatePrice/UpdateETHPrice, which the price feed actor does not
// call.
type CapitalManager struct {
	mu sync.RWMutex

	maxCapitalUSD *uint256.Int
	ethUSDPrice   *uint256.Int
	prices        map[common.Address]*uint256.Int
	liquidity     map[chain.PoolID]*uint256.Int

	log log.Logger
}

// NewCapitalManager constructs a manager with the given USD cap
// (whole dollars) and a default ETH/USD price of $2000 until
// UpdateETHPrice sets another.
func NewCapitalManager(maxCapitalUSD uint64) *CapitalManager {
	return &CapitalManager{
		maxCapitalUSD: usdScaled(maxCapitalUSD),
		ethUSDPrice:   usdScaled(2000),
		prices:        make(map[common.Address]*uint256.Int),
		liquidity:     make(map[chain.PoolID]*uint256.Int),
		log:           log.New("component", "capital_manager"),
	}
}

func usdScaled(whole uint64) *uint256.Int {
	v := uint256.NewInt(whole)
	return v.Mul(v, uint256.NewInt(1_000_000))
}

// SetMaxCapitalUSD updates the USD cap (whole dollars).
func (c *CapitalManager) SetMaxCapitalUSD(maxCapitalUSD uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxCapitalUSD = usdScaled(maxCapitalUSD)
}

// UpdateETHPrice records a fresh ETH/USD price (whole dollars).
func (c *CapitalManager) UpdateETHPrice(priceUSD uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ethUSDPrice = usdScaled(priceUSD)
	c.log.Debug("updated eth/usd price", "price", priceUSD)
}

// UpdatePrice caches a token's USD price directly (6-decimal fixed point).
func (c *CapitalManager) UpdatePrice(token common.Address, priceUSD6 *uint256.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[token] = priceUSD6
}

// UpdatePoolLiquidity records an observed liquidity estimate for a pool.
func (c *CapitalManager) UpdatePoolLiquidity(pool chain.PoolID, liquidity *uint256.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.liquidity[pool] = liquidity
}

// OptimalCapital returns the largest amount of token that may be
// deployed into a trade touching pools, bounded by both the USD cap
// and 10% of the tightest pool's observed liquidity.
func (c *CapitalManager) OptimalCapital(token *chain.Token, pools []chain.Pool, m *market.Market) (*uint256.Int, error) {
	price := c.tokenPrice(token, m)
	if price.IsZero() {
		return nil, errZeroTokenPrice
	}

	scale := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(token.Decimals)))

	maxFromUSD := new(uint256.Int)
	c.mu.RLock()
	maxFromUSD.Mul(c.maxCapitalUSD, scale)
	c.mu.RUnlock()
	maxFromUSD.Div(maxFromUSD, price)

	maxFromLiquidity, err := c.maxFromLiquidity(token, pools)
	if err != nil {
		c.log.Debug("no liquidity estimate, using conservative default", "token", token.Symbol, "err", err)
		maxFromLiquidity = new(uint256.Int).Mul(uint256.NewInt(100), scale)
		maxFromLiquidity.Div(maxFromLiquidity, uint256.NewInt(10))
	}

	optimal := maxFromUSD
	if maxFromLiquidity.Lt(maxFromUSD) {
		optimal = maxFromLiquidity
	}
	if optimal.IsZero() {
		return nil, errZeroOptimal
	}
	return optimal, nil
}

func (c *CapitalManager) tokenPrice(token *chain.Token, m *market.Market) *uint256.Int {
	c.mu.RLock()
	if p, ok := c.prices[token.Address]; ok {
		c.mu.RUnlock()
		return p
	}
	c.mu.RUnlock()

	if token.SpotPriceETH != nil {
		price := c.priceFromETH(token.SpotPriceETH)
		c.mu.Lock()
		c.prices[token.Address] = price
		c.mu.Unlock()
		return price
	}

	for _, id := range m.PoolsForToken(token.Address) {
		pool, ok := m.Pool(id)
		if !ok {
			continue
		}
		toks := pool.Tokens()
		var other common.Address
		switch token.Address {
		case toks[0]:
			other = toks[1]
		case toks[1]:
			other = toks[0]
		default:
			continue
		}
		otherTok, ok := m.Token(other)
		if !ok || otherTok.SpotPriceETH == nil {
			continue
		}
		otherPrice := c.priceFromETH(otherTok.SpotPriceETH)
		price := adjustForDecimals(otherPrice, otherTok.Decimals, token.Decimals)
		c.mu.Lock()
		c.prices[token.Address] = price
		c.mu.Unlock()
		return price
	}

	return uint256.NewInt(1_000_000) // fallback: assume $1, conservative for sizing.
}

func (c *CapitalManager) priceFromETH(ethPrice *uint256.Int) *uint256.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := new(uint256.Int).Mul(ethPrice, c.ethUSDPrice)
	weiScale := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(18))
	return out.Div(out, weiScale)
}

// adjustForDecimals rescales a price quoted in fromDecimals units to
// toDecimals units.
func adjustForDecimals(price *uint256.Int, fromDecimals, toDecimals uint8) *uint256.Int {
	if fromDecimals == toDecimals {
		return price
	}
	out := new(uint256.Int).Set(price)
	if fromDecimals > toDecimals {
		adj := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(fromDecimals-toDecimals)))
		return out.Mul(out, adj)
	}
	adj := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(toDecimals-fromDecimals)))
	return out.Div(out, adj)
}

func (c *CapitalManager) maxFromLiquidity(token *chain.Token, pools []chain.Pool) (*uint256.Int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var min *uint256.Int
	for _, p := range pools {
		liq, ok := c.liquidity[p.ID()]
		if !ok {
			continue
		}
		amount := new(uint256.Int).Div(liq, uint256.NewInt(10))
		if min == nil || amount.Lt(min) {
			min = amount
		}
	}
	if min == nil {
		return nil, errNoLiquidityInfo
	}
	return min, nil
}
