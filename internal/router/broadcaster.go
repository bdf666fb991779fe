package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/log"

	"github.com/flarelayer/arbbot/internal/bus"
	"github.com/flarelayer/arbbot/internal/compose"
)

// Relay is one configured submission endpoint for an eth_sendBundle-
// shaped payload (spec.md §6). Auth is an optional value sent
// verbatim in the X-Flashbots-Signature header; empty means unsigned
// submission.
type Relay struct {
	Name string
	URL  string
	Auth string
}

// Broadcaster submits a Broadcast envelope's RLP bundle to every
// configured relay in parallel; the opportunity succeeds if at least
// one relay accepts it (spec.md §4.J). AllowBroadcast false makes
// this a dry run: bundles are logged but never POSTed.
type Broadcaster struct {
	relays        []Relay
	allowBroadcast bool
	httpClient    *http.Client

	in  *bus.Subscription[compose.TxCompose]
	log log.Logger
}

// NewBroadcaster constructs the broadcaster.
func NewBroadcaster(relays []Relay, allowBroadcast bool, in *bus.Bus[compose.TxCompose]) *Broadcaster {
	return &Broadcaster{relays: relays, allowBroadcast: allowBroadcast, httpClient: &http.Client{}, in: in.Subscribe(), log: log.New("actor", "broadcaster")}
}

// Run implements bus.Worker.
func (b *Broadcaster) Run(ctx context.Context) error {
	for {
		env, err := b.in.Recv(ctx)
		if err != nil {
			return err
		}
		if env.Value.Stage != compose.StageBroadcast {
			continue
		}
		b.handle(ctx, env.Value)
	}
}

type sendBundleParams struct {
	Txs []string `json:"txs"`
}

type sendBundleRequest struct {
	JSONRPC string             `json:"jsonrpc"`
	Method  string             `json:"method"`
	Params  []sendBundleParams `json:"params"`
	ID      int                `json:"id"`
}

func (b *Broadcaster) handle(ctx context.Context, c compose.TxCompose) {
	txs := make([]string, 0, len(c.Bundle))
	for _, entry := range c.Bundle {
		if entry.IsEmpty() {
			b.log.Debug("dropping empty bundle entry")
			continue
		}
		if len(entry.Stuffing) > 0 {
			txs = append(txs, "0x"+fmt.Sprintf("%x", entry.Stuffing))
		} else {
			txs = append(txs, "0x"+fmt.Sprintf("%x", entry.Backrun))
		}
	}
	if len(txs) == 0 {
		return
	}

	payload, err := json.Marshal(sendBundleRequest{
		JSONRPC: "2.0",
		Method:  "eth_sendBundle",
		Params:  []sendBundleParams{{Txs: txs}},
		ID:      1,
	})
	if err != nil {
		b.log.Warn("bundle marshal failed, dropping", "err", err)
		return
	}

	if !b.allowBroadcast {
		b.log.Info("dry-run: would broadcast bundle", "relays", len(b.relays), "txs", len(txs))
		return
	}

	accepted := make(chan bool, len(b.relays))
	for _, relay := range b.relays {
		relay := relay
		go func() {
			accepted <- b.submit(ctx, relay, payload)
		}()
	}

	anyAccepted := false
	for range b.relays {
		if <-accepted {
			anyAccepted = true
		}
	}
	if !anyAccepted && len(b.relays) > 0 {
		b.log.Warn("bundle rejected by every configured relay")
	}
}

func (b *Broadcaster) submit(ctx context.Context, relay Relay, payload []byte) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, relay.URL, bytes.NewReader(payload))
	if err != nil {
		b.log.Debug("relay request build failed", "relay", relay.Name, "err", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	if relay.Auth != "" {
		req.Header.Set("X-Flashbots-Signature", relay.Auth)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		b.log.Warn("relay submission failed", "relay", relay.Name, "err", err)
		return false
	}
	defer resp.Body.Close()

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !ok {
		b.log.Warn("relay rejected bundle", "relay", relay.Name, "status", resp.StatusCode)
	}
	return ok
}
