package searcher

import (
	"context"
	"runtime"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"

	"github.com/flarelayer/arbbot/internal/bus"
	"github.com/flarelayer/arbbot/internal/chain"
	"github.com/flarelayer/arbbot/internal/compose"
	"github.com/flarelayer/arbbot/internal/healthmetrics"
	"github.com/flarelayer/arbbot/internal/market"
	"github.com/flarelayer/arbbot/internal/marketstate"
)

// optimizationIterations is the bounded binary-search depth per
// candidate path (spec.md §4.E step 4).
const optimizationIterations = 8

// defaultInputETH is the starting evaluation amount before binary
// search widens or narrows it, expressed in wei (0.01 ETH).
var defaultInputETH = new(uint256.Int).Mul(uint256.NewInt(1e16), uint256.NewInt(1))

// liquidityFallbackETH is used when no reserve data is available to
// compute a liquidity bound.
var liquidityFallbackETH = new(uint256.Int).Mul(uint256.NewInt(10), weiPerETH())

func weiPerETH() *uint256.Int {
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(18))
}

// ArbSearcher implements the parallel opportunity search (spec.md
// §4.E): given a StateUpdateEvent, it collects candidate paths
// through the affected pools, optimizes each path's input amount
// against an overlay of MarketState, and emits Prepare messages for
// the survivors.
type ArbSearcher struct {
	market   *market.Market
	state    *marketstate.MarketState
	profit   *ProfitCalculator
	chainID  uint64
	minProfitWei *uint256.Int

	in       *bus.Subscription[StateUpdateEvent]
	out      *bus.Bus[compose.SwapCompose]
	health   *bus.Bus[healthmetrics.HealthEvent]
	metrics  *bus.Bus[healthmetrics.MetricsEvent]

	workers int
	log     log.Logger
}

// NewArbSearcher constructs the searcher. workers <= 0 defaults to
// max(2, NumCPU) per spec.md §4.E step 3.
func NewArbSearcher(
	m *market.Market,
	state *marketstate.MarketState,
	profit *ProfitCalculator,
	chainID uint64,
	minProfitWei *uint256.Int,
	in *bus.Bus[StateUpdateEvent],
	out *bus.Bus[compose.SwapCompose],
	health *bus.Bus[healthmetrics.HealthEvent],
	metrics *bus.Bus[healthmetrics.MetricsEvent],
	workers int,
) *ArbSearcher {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers < 2 {
		workers = 2
	}
	return &ArbSearcher{
		market: m, state: state, profit: profit, chainID: chainID, minProfitWei: minProfitWei,
		in: in.Subscribe(), out: out, health: health, metrics: metrics,
		workers: workers, log: log.New("actor", "arb_searcher"),
	}
}

// Run implements bus.Worker.
func (s *ArbSearcher) Run(ctx context.Context) error {
	for {
		env, err := s.in.Recv(ctx)
		if err != nil {
			return err
		}
		s.handle(ctx, env.Value)
	}
}

func (s *ArbSearcher) handle(ctx context.Context, evt StateUpdateEvent) {
	start := time.Now()

	paths := s.candidatePaths(evt.Affected)
	if len(paths) == 0 {
		return
	}

	results := make([]*chain.SwapLine, len(paths))
	failed := make([]bool, len(paths))

	overlay := marketstate.NewOverlay(s.state, evt.PostState)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			line, err := s.optimize(p, overlay)
			if err != nil {
				failed[i] = true
				return nil
			}
			results[i] = line
			return nil
		})
	}
	_ = g.Wait()

	s.reportSwapErrors(paths, failed)

	accepted := 0
	for _, line := range results {
		if line == nil {
			continue
		}
		net := s.profit.NetProfit(line.ProfitETH, line.AmountIn)
		if !s.profit.MeetsThreshold(s.chainID, net, s.minProfitWei, evt.NextBaseFee) {
			continue
		}
		line.ProfitETH = net
		accepted++

		s.out.Send(compose.SwapCompose{
			Stage:              compose.StagePrepare,
			NextBlockNumber:    evt.NextBlockNumber,
			NextBlockTimestamp: evt.NextBlockTimestamp,
			NextBaseFee:        evt.NextBaseFee,
			TipsPct:            evt.TipsPct,
			StuffingTxHashes:   evt.StuffingTxHashes,
			Swap:               compose.WrapSwapLine(line),
			PostState:          evt.PostState,
		})
	}

	s.metrics.Send(healthmetrics.MetricsEvent{
		PathCount:     len(paths),
		AcceptedCount: accepted,
		ElapsedMicros: time.Since(start).Microseconds(),
		Origin:        originString(evt.Origin),
		StuffingTx:    firstHashString(evt.StuffingTxHashes),
	})
}

// candidatePaths implements step 1: collect and deduplicate candidate
// paths across every affected pool.
func (s *ArbSearcher) candidatePaths(affected []PoolDirection) []*chain.SwapPath {
	seen := make(map[*chain.SwapPath]struct{})
	var out []*chain.SwapPath
	for _, pd := range affected {
		for _, p := range s.market.PathsForPool(pd.Pool) {
			if p.Disabled() {
				continue
			}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

// optimize implements step 4: bounded binary search over
// [initial, liquidityBound] for the argmax profit_eth.
func (s *ArbSearcher) optimize(path *chain.SwapPath, state chain.SwapState) (*chain.SwapLine, error) {
	inputToken, ok := s.market.Token(path.Tokens[0])
	if !ok {
		return nil, errNoLiquidityInfo
	}

	initial := defaultInputETH
	if inputToken.SpotPriceETH != nil && !inputToken.SpotPriceETH.IsZero() {
		if converted := inputToken.ToNative(defaultInputETH); converted != nil {
			initial = converted
		}
	}

	bound := s.liquidityBound(path, inputToken)

	best, err := simulatePath(path, state, initial)
	if err != nil {
		return nil, err
	}
	if best.ProfitETH.Sign() <= 0 {
		return best, nil
	}

	lo, hi := initial, bound
	for i := 0; i < optimizationIterations && lo.Cmp(hi) < 0; i++ {
		mid := new(uint256.Int).Add(lo, hi)
		mid.Div(mid, uint256.NewInt(2))
		if mid.IsZero() || mid.Cmp(lo) == 0 {
			break
		}
		candidate, err := simulatePath(path, state, mid)
		if err != nil {
			break
		}
		if candidate.ProfitETH.Cmp(best.ProfitETH) > 0 {
			best = candidate
			lo = mid
		} else {
			hi = mid
		}
	}
	return best, nil
}

// liquidityBound is 10% of the minimum input-token reserve across the
// path's pools, or the 10-ETH equivalent if no reserve is available.
func (s *ArbSearcher) liquidityBound(path *chain.SwapPath, inputToken *chain.Token) *uint256.Int {
	var min *uint256.Int
	for _, p := range path.Pools {
		r0, r1 := p.Reserves()
		toks := p.Tokens()
		var reserve *uint256.Int
		switch inputToken.Address {
		case toks[0]:
			reserve = r0
		case toks[1]:
			reserve = r1
		default:
			continue
		}
		if reserve == nil || reserve.IsZero() {
			continue
		}
		if min == nil || reserve.Lt(min) {
			min = reserve
		}
	}
	if min == nil {
		fallback := liquidityFallbackETH
		if inputToken.SpotPriceETH != nil && !inputToken.SpotPriceETH.IsZero() {
			if converted := inputToken.ToNative(liquidityFallbackETH); converted != nil {
				fallback = converted
			}
		}
		return fallback
	}
	bound := new(uint256.Int).Div(min, uint256.NewInt(10))
	return bound
}

// simulatePath runs amountIn through every hop of path against state,
// producing a SwapLine with the realized profit (output minus input,
// in the path's input-token terms, treated as ETH-denominated because
// arbitrage-shaped paths return to their origin token).
func simulatePath(path *chain.SwapPath, state chain.SwapState, amountIn *uint256.Int) (*chain.SwapLine, error) {
	amount := amountIn
	var gasUsed uint64
	for i, pool := range path.Pools {
		dir := chain.DirectionZeroForOne
		toks := pool.Tokens()
		if toks[0] != path.Tokens[i] {
			dir = chain.DirectionOneForZero
		}
		out, err := pool.SimulateSwap(state, dir, amount)
		if err != nil {
			return nil, err
		}
		amount = out
		gasUsed += pool.PreEstimateGas()
	}

	profit := new(uint256.Int)
	if amount.Cmp(amountIn) > 0 {
		profit.Sub(amount, amountIn)
	}

	return &chain.SwapLine{
		Path:      path,
		AmountIn:  amountIn,
		AmountOut: amount,
		ProfitETH: profit,
		GasUsed:   gasUsed,
	}, nil
}

// reportSwapErrors forwards step 7's "dedup per tick" rule: every
// pool that failed simulation in this tick is reported at most once.
func (s *ArbSearcher) reportSwapErrors(paths []*chain.SwapPath, failed []bool) {
	seen := make(map[chain.PoolID]struct{})
	now := time.Now()
	for i, f := range failed {
		if !f {
			continue
		}
		for _, p := range paths[i].Pools {
			if _, ok := seen[p.ID()]; ok {
				continue
			}
			seen[p.ID()] = struct{}{}
			s.health.Send(healthmetrics.HealthEvent{Kind: healthmetrics.HealthSwapError, Pool: p.ID(), At: now})
		}
	}
}

func originString(o Origin) string {
	if o == OriginPendingTx {
		return "pending_tx"
	}
	return "block"
}

func firstHashString(hashes []common.Hash) string {
	if len(hashes) == 0 {
		return ""
	}
	return hashes[0].Hex()
}
