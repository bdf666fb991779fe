// Package router implements the Router -> Estimator -> Signer ->
// Broadcaster state machine (spec.md §4.G-§4.J): it takes a Prepare
// envelope through signer/gas resolution, EVM simulation, signing,
// and parallel relay submission.
package router

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/flarelayer/arbbot/internal/bus"
	"github.com/flarelayer/arbbot/internal/compose"
	"github.com/flarelayer/arbbot/internal/healthmetrics"
	"github.com/flarelayer/arbbot/internal/nodeclient"
	"github.com/flarelayer/arbbot/internal/signerset"
)

// Router resolves a signer, nonce, balance and gas for each Prepare
// message, re-emitting it as Estimate; and materializes a TxCompose
// once a SwapCompose reaches Ready (spec.md §4.G).
type Router struct {
	signers  *signerset.Registry
	provider nodeclient.Provider
	eoa      *common.Address // explicit EOA override, or nil to pick at random

	in        *bus.Subscription[compose.SwapCompose]
	estimate  *bus.Bus[compose.SwapCompose]
	txCompose *bus.Bus[compose.TxCompose]
	health    *bus.Bus[healthmetrics.HealthEvent]

	log log.Logger
}

// NewRouter constructs the router. eoa may be nil.
func NewRouter(signers *signerset.Registry, provider nodeclient.Provider, eoa *common.Address, in *bus.Bus[compose.SwapCompose], estimate *bus.Bus[compose.SwapCompose], txCompose *bus.Bus[compose.TxCompose], health *bus.Bus[healthmetrics.HealthEvent]) *Router {
	return &Router{
		signers: signers, provider: provider, eoa: eoa,
		in: in.Subscribe(), estimate: estimate, txCompose: txCompose, health: health,
		log: log.New("actor", "router"),
	}
}

// Run implements bus.Worker.
func (r *Router) Run(ctx context.Context) error {
	for {
		env, err := r.in.Recv(ctx)
		if err != nil {
			return err
		}
		switch env.Value.Stage {
		case compose.StagePrepare:
			r.handlePrepare(ctx, env.Value)
		case compose.StageReady:
			r.handleReady(env.Value)
		}
	}
}

func (r *Router) handlePrepare(ctx context.Context, c compose.SwapCompose) {
	signerAddr := r.eoa
	if signerAddr == nil || *signerAddr == (common.Address{}) {
		addr, err := r.signers.Random()
		if err != nil {
			r.log.Debug("no signer available, dropping opportunity", "err", err)
			return
		}
		signerAddr = &addr
	}

	if c.NextBaseFee == nil || c.NextBaseFee.IsZero() {
		r.emitHealth(healthmetrics.HealthNoBlockGasFee, errZeroBaseFee)
		return
	}

	nonce, err := r.provider.PendingNonceAt(ctx, *signerAddr)
	if err != nil {
		r.log.Debug("noncebalance lookup failed, dropping opportunity", "signer", signerAddr, "err", err)
		return
	}
	balanceBig, err := r.provider.BalanceAt(ctx, *signerAddr, nil)
	if err != nil {
		r.log.Debug("balance lookup failed, dropping opportunity", "signer", signerAddr, "err", err)
		return
	}
	balance, overflow := uint256.FromBig(balanceBig)
	if overflow {
		balance = uint256.NewInt(0)
	}

	gas := c.Swap.PreEstimateGas() * 2

	next, err := c.AdvanceTo(compose.StageEstimate)
	if err != nil {
		r.log.Warn("prepare->estimate transition rejected", "err", err)
		return
	}
	next.Signer = signerAddr
	next.Nonce = nonce
	next.Balance = balance
	next.Gas = gas

	r.estimate.Send(next)
}

func (r *Router) handleReady(c compose.SwapCompose) {
	// One SignatureRequired per leg of our own swap, plus a verbatim
	// Stuffing entry per backrun target (spec.md §4.G step 5, §4.I).
	// The entries are created without tx bytes and no component in
	// this repository fills them in, so the Signer rejects such a
	// bundle with errCannotSignBundle.
	states := make([]compose.TxState, 0, len(c.Swap.Legs())+len(c.StuffingTxHashes))
	for range c.Swap.Legs() {
		states = append(states, compose.SignatureRequired{})
	}
	for range c.StuffingTxHashes {
		states = append(states, compose.Stuffing{})
	}

	r.txCompose.Send(compose.TxCompose{
		Stage:            compose.StageSign,
		Swap:             c.Swap,
		TipsPct:          c.TipsPct,
		StuffingTxHashes: c.StuffingTxHashes,
		States:           states,
	})
}

func (r *Router) emitHealth(kind healthmetrics.HealthEventKind, err error) {
	r.health.Send(healthmetrics.HealthEvent{Kind: kind, Err: err.Error()})
}

var errZeroBaseFee = errors.New("router: next block base fee is zero")
