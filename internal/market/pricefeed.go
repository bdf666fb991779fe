package market

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/flarelayer/arbbot/internal/chain"
)

// MarketEvent is the payload published on the market-events bus,
// tagged by Kind. The price feed publishes EventPriceUpdate; nothing
// in this repository publishes EventBlockHeaderUpdate, and the mergers
// reset ready_requests from the block bus (ingest.BlockEvent), not
// from this one.
type MarketEvent struct {
	Kind             MarketEventKind
	Token            common.Address
	PriceETH         *uint256.Int
	BlockHeaderUpdate bool
}

// MarketEventKind tags a MarketEvent's variant.
type MarketEventKind uint8

const (
	EventPriceUpdate MarketEventKind = iota
	EventBlockHeaderUpdate
)

// PriceFeedActor refreshes the ETH spot price of every basic token
// other than the quote token (see findWETH) from the reserves of a
// direct pool with the quote token, grounded on loom's
// crates/defi/price/src/price_feed.rs (see SPEC_FULL.md §11.1). The
// searcher's default 0.01 ETH seed amount (§4.E step 4) depends on
// these prices staying current.
type PriceFeedActor struct {
	market   *Market
	publish  func(MarketEvent)
	interval time.Duration
}

// NewPriceFeedActor constructs the actor; publish is typically
// (*bus.Bus[MarketEvent]).Send.
func NewPriceFeedActor(m *Market, interval time.Duration, publish func(MarketEvent)) *PriceFeedActor {
	if interval <= 0 {
		interval = 12 * time.Second
	}
	return &PriceFeedActor{market: m, publish: publish, interval: interval}
}

// Run implements bus.Worker: it refreshes prices on a ticker until ctx
// is cancelled.
func (a *PriceFeedActor) Run(ctx context.Context) error {
	logger := log.New("actor", "price_feed")
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.refreshOnce(logger)
		}
	}
}

func (a *PriceFeedActor) refreshOnce(logger log.Logger) {
	weth, ok := a.findWETH()
	if !ok {
		return
	}
	for _, tok := range a.market.BasicTokens() {
		if tok.Address == weth.Address {
			continue
		}
		price, ok := a.priceFromPools(tok.Address, weth.Address)
		if !ok {
			continue
		}
		tok.SpotPriceETH = price
		if a.publish != nil {
			a.publish(MarketEvent{Kind: EventPriceUpdate, Token: tok.Address, PriceETH: price})
		}
		logger.Debug("refreshed token price", "token", tok.Address, "priceETH", price)
	}
}

// findWETH returns the basic token used as the ETH quote side. By
// convention the quote token is the first basic token registered with
// symbol "WETH"; falls back to any basic token if none match, so
// tests can use a synthetic quote asset.
func (a *PriceFeedActor) findWETH() (*chain.Token, bool) {
	var fallback *chain.Token
	for _, t := range a.market.BasicTokens() {
		if fallback == nil {
			fallback = t
		}
		if t.Symbol == "WETH" {
			return t, true
		}
	}
	if fallback != nil {
		return fallback, true
	}
	return nil, false
}

// priceFromPools derives tok's ETH price from the reserves of any
// direct tok/quote pool; returns ok=false if none exists.
func (a *PriceFeedActor) priceFromPools(tok, quote common.Address) (*uint256.Int, bool) {
	for _, id := range a.market.PoolsForToken(tok) {
		pool, ok := a.market.Pool(id)
		if !ok || pool.Disabled() {
			continue
		}
		toks := pool.Tokens()
		if toks[0] != quote && toks[1] != quote {
			continue
		}
		r0, r1 := pool.Reserves()
		if r0 == nil || r1 == nil || r0.IsZero() {
			continue
		}
		var tokReserve, quoteReserve *uint256.Int
		if toks[0] == tok {
			tokReserve, quoteReserve = r0, r1
		} else {
			tokReserve, quoteReserve = r1, r0
		}
		if tokReserve.IsZero() {
			continue
		}
		price := new(uint256.Int).Mul(quoteReserve, pow10(18))
		price.Div(price, tokReserve)
		return price, true
	}
	return nil, false
}

func pow10(n int) *uint256.Int {
	r := uint256.NewInt(1)
	ten := uint256.NewInt(10)
	for i := 0; i < n; i++ {
		r.Mul(r, ten)
	}
	return r
}
