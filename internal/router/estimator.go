package router

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/flarelayer/arbbot/internal/bus"
	"github.com/flarelayer/arbbot/internal/compose"
	"github.com/flarelayer/arbbot/internal/healthmetrics"
	"github.com/flarelayer/arbbot/internal/marketstate"
)

// Simulator runs a swap end to end against a state overlay with a
// concrete signer/nonce/gas/base-fee context, mirroring go-ethereum's
// core/vm.EVM.Call surface trimmed to what the estimator needs. The
// concrete EVM interpreter wiring lives outside the core (§1 "concrete
// per-protocol swap math" is out of scope); this interface is the
// seam a real interpreter plugs into.
type Simulator interface {
	EstimateSwap(state *marketstate.Overlay, swap compose.Swap, gas uint64, nonce uint64, baseFee *uint256.Int) error
}

// Estimator consumes Estimate envelopes, simulates the full swap via
// Simulator, and produces Ready on success or a health event on
// failure (spec.md §4.H).
type Estimator struct {
	sim   Simulator
	state *marketstate.MarketState

	in      *bus.Subscription[compose.SwapCompose]
	out     *bus.Bus[compose.SwapCompose]
	health  *bus.Bus[healthmetrics.HealthEvent]
	latency *bus.Bus[healthmetrics.EstimationLatencyEvent]

	log log.Logger
}

// NewEstimator constructs the estimator.
func NewEstimator(sim Simulator, state *marketstate.MarketState, in *bus.Bus[compose.SwapCompose], out *bus.Bus[compose.SwapCompose], health *bus.Bus[healthmetrics.HealthEvent], latency *bus.Bus[healthmetrics.EstimationLatencyEvent]) *Estimator {
	return &Estimator{sim: sim, state: state, in: in.Subscribe(), out: out, health: health, latency: latency, log: log.New("actor", "estimator")}
}

// Run implements bus.Worker.
func (e *Estimator) Run(ctx context.Context) error {
	for {
		env, err := e.in.Recv(ctx)
		if err != nil {
			return err
		}
		if env.Value.Stage != compose.StageEstimate {
			continue
		}
		e.handle(env.Value)
	}
}

func (e *Estimator) handle(c compose.SwapCompose) {
	start := time.Now()
	overlay := marketstate.NewOverlay(e.state, c.PostState)

	err := e.sim.EstimateSwap(overlay, c.Swap, c.Gas, c.Nonce, c.NextBaseFee)
	e.latency.Send(healthmetrics.EstimationLatencyEvent{Micros: time.Since(start).Microseconds()})

	if err != nil {
		e.health.Send(healthmetrics.HealthEvent{Kind: healthmetrics.HealthEstimationFailure, Err: err.Error(), At: time.Now()})
		return
	}

	ready, err := c.AdvanceTo(compose.StageReady)
	if err != nil {
		e.log.Warn("estimate->ready transition rejected", "err", err)
		return
	}
	e.out.Send(ready)
}
