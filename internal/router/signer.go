package router

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/flarelayer/arbbot/internal/bus"
	"github.com/flarelayer/arbbot/internal/compose"
	"github.com/flarelayer/arbbot/internal/healthmetrics"
	"github.com/flarelayer/arbbot/internal/signerset"
)

// errCannotSignBundle is the §4.I "whole bundle fails" error: any
// single TxState entry failing to sign takes down the envelope.
var errCannotSignBundle = errors.New("router: cannot sign bundle")

// Signer consumes TxCompose::Sign, turning every TxState entry into an
// RlpState, and forwards the populated bundle as Broadcast (spec.md
// §4.I). signerAddr is the default identity used for
// SignatureRequired entries; ethSigner provides the chain's tx-hash
// digest scheme (go-ethereum types.Signer, e.g. types.LatestSignerForChainID).
type Signer struct {
	registry   *signerset.Registry
	signerAddr common.Address
	ethSigner  types.Signer

	in     *bus.Subscription[compose.TxCompose]
	out    *bus.Bus[compose.TxCompose]
	health *bus.Bus[healthmetrics.HealthEvent]

	log log.Logger
}

// NewSigner constructs the signer actor.
func NewSigner(registry *signerset.Registry, signerAddr common.Address, ethSigner types.Signer, in *bus.Bus[compose.TxCompose], out *bus.Bus[compose.TxCompose], health *bus.Bus[healthmetrics.HealthEvent]) *Signer {
	return &Signer{registry: registry, signerAddr: signerAddr, ethSigner: ethSigner, in: in.Subscribe(), out: out, health: health, log: log.New("actor", "signer")}
}

// Run implements bus.Worker.
func (s *Signer) Run(ctx context.Context) error {
	for {
		env, err := s.in.Recv(ctx)
		if err != nil {
			return err
		}
		if env.Value.Stage != compose.StageSign {
			continue
		}
		s.handle(env.Value)
	}
}

func (s *Signer) handle(c compose.TxCompose) {
	bundle := make([]compose.RlpState, 0, len(c.States))
	for _, st := range c.States {
		rlp, err := s.signOne(st)
		if err != nil {
			s.health.Send(healthmetrics.HealthEvent{Kind: healthmetrics.HealthCannotSignBundle, Err: errCannotSignBundle.Error()})
			s.log.Debug("bundle sign failed", "entry_err", err)
			return
		}
		bundle = append(bundle, rlp)
	}

	broadcast, err := c.AdvanceTo(compose.StageBroadcast)
	if err != nil {
		s.log.Warn("sign->broadcast transition rejected", "err", err)
		return
	}
	broadcast.Bundle = bundle
	s.out.Send(broadcast)
}

func (s *Signer) signOne(st compose.TxState) (compose.RlpState, error) {
	switch v := st.(type) {
	case compose.Stuffing:
		if len(v.RawTx) == 0 {
			return compose.RlpState{}, errCannotSignBundle
		}
		return compose.RlpState{Stuffing: v.RawTx}, nil

	case compose.SignatureRequired:
		if len(v.UnsignedTx) == 0 {
			return compose.RlpState{}, errCannotSignBundle
		}
		var tx types.Transaction
		if err := tx.UnmarshalBinary(v.UnsignedTx); err != nil {
			return compose.RlpState{}, err
		}
		signed, err := s.registry.SignTx(s.signerAddr, &tx, s.ethSigner)
		if err != nil {
			return compose.RlpState{}, err
		}
		raw, err := signed.MarshalBinary()
		if err != nil {
			return compose.RlpState{}, err
		}
		return compose.RlpState{Backrun: raw}, nil

	case compose.ReadyForBroadcast:
		if len(v.SignedTx) == 0 {
			return compose.RlpState{}, errCannotSignBundle
		}
		return compose.RlpState{Backrun: v.SignedTx}, nil

	case compose.ReadyForBroadcastStuffing:
		if len(v.RawTx) == 0 {
			return compose.RlpState{}, errCannotSignBundle
		}
		return compose.RlpState{Stuffing: v.RawTx}, nil

	default:
		return compose.RlpState{}, errCannotSignBundle
	}
}
