// Package topology is the single module that owns the client
// registry, blockchain registry, signer registry, and the channel
// graph (spec.md §9 Global state: "Multiple near-duplicate
// rate-limited-client implementations appear in the source... A
// single topology module owns the client registry, blockchain
// registry, signer registry, and the channel graph"), grounded on
// loom's crates/core/topology/src/topology.rs (see SPEC_FULL.md
// §11.1/§12) translated from its builder-with-generics shape into a
// plain Go struct assembled once at startup.
package topology

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/flarelayer/arbbot/internal/bus"
	"github.com/flarelayer/arbbot/internal/compose"
	"github.com/flarelayer/arbbot/internal/config"
	"github.com/flarelayer/arbbot/internal/healthmetrics"
	"github.com/flarelayer/arbbot/internal/ingest"
	"github.com/flarelayer/arbbot/internal/market"
	"github.com/flarelayer/arbbot/internal/marketstate"
	"github.com/flarelayer/arbbot/internal/nodeclient"
	"github.com/flarelayer/arbbot/internal/searcher"
	"github.com/flarelayer/arbbot/internal/signerset"
)

// Blockchain bundles one chain's shared cells: Market, MarketState,
// and BlockHistory (spec.md §5 "Market, MarketState, BlockHistory...
// are the only shared cells").
type Blockchain struct {
	Name    string
	ChainID uint64

	Market  *market.Market
	State   *marketstate.MarketState
	History *marketstate.BlockHistory

	// Snapshot is non-nil when a client's db_path (spec.md §6) names an
	// on-disk mirror store to load from at startup and save to at
	// shutdown; nil means State is reconstructed from the node only.
	Snapshot *marketstate.SnapshotStore
}

// Channels is the full channel graph for one blockchain: every
// broadcast bus any actor in the pipeline publishes to or consumes
// from (spec.md §4.A capacities). SwapCompose carries both Prepare
// (from the searcher and mergers) and Ready (from the estimator)
// messages; Estimate is the Router->Estimator leg that re-enters
// SwapCompose once simulation succeeds.
type Channels struct {
	Blocks       *bus.Bus[ingest.BlockEvent]
	Logs         *bus.Bus[ingest.LogEvent]
	BlockStates  *bus.Bus[ingest.BlockStateUpdate]
	MempoolTx    *bus.Bus[ingest.MempoolTxEvent]
	MarketEvents *bus.Bus[market.MarketEvent]
	StateUpdates *bus.Bus[searcher.StateUpdateEvent]

	SwapCompose *bus.Bus[compose.SwapCompose]
	Estimate    *bus.Bus[compose.SwapCompose]
	TxCompose   *bus.Bus[compose.TxCompose]

	Health  *bus.Bus[healthmetrics.HealthEvent]
	Metrics *bus.Bus[healthmetrics.MetricsEvent]
	Latency *bus.Bus[healthmetrics.EstimationLatencyEvent]
}

// Topology is the fully assembled process: dialed clients, one
// Blockchain + Channels per configured chain, and the shared signer
// registry, ready for BuildActors to wire every pipeline stage onto a
// Supervisor.
type Topology struct {
	Cfg *config.Config

	Clients map[string]*nodeclient.ReconnectingClient

	blockchains map[string]*Blockchain
	channels    map[string]*Channels

	Signers *signerset.Registry

	defaultClient     string
	defaultBlockchain string

	log log.Logger
}

// Build dials every configured client, constructs one Blockchain +
// Channels per entry in cfg.Blockchains, and loads every configured
// signer. It does not start any actor; call BuildActors for that.
func Build(ctx context.Context, cfg *config.Config) (*Topology, error) {
	t := &Topology{
		Cfg:         cfg,
		Clients:     make(map[string]*nodeclient.ReconnectingClient),
		blockchains: make(map[string]*Blockchain),
		channels:    make(map[string]*Channels),
		Signers:     signerset.NewRegistry(),
		log:         log.New("component", "topology"),
	}

	for name, cl := range cfg.Clients {
		rc := nodeclient.NewReconnectingClient(nodeclient.DialUpgrading, cl.URL, nil, 0)
		if err := rc.Connect(ctx); err != nil {
			return nil, fmt.Errorf("topology: client %q: %w", name, err)
		}
		t.Clients[name] = rc
		if t.defaultClient == "" {
			t.defaultClient = name
		}
	}

	// A configured client's db_path (spec.md §6 clients.*.db_path) opts
	// every blockchain's MarketState into on-disk snapshot persistence,
	// one pebble store per chain under db_path/<chain name>.
	snapshotRoot := ""
	for _, cl := range cfg.Clients {
		if cl.DBPath != "" {
			snapshotRoot = cl.DBPath
			break
		}
	}

	for name, bc := range cfg.Blockchains {
		state := marketstate.New(0)

		var store *marketstate.SnapshotStore
		if snapshotRoot != "" {
			s, err := marketstate.OpenSnapshotStore(filepath.Join(snapshotRoot, name))
			if err != nil {
				return nil, fmt.Errorf("topology: blockchain %q: %w", name, err)
			}
			if err := state.Load(s); err != nil {
				return nil, fmt.Errorf("topology: blockchain %q snapshot load: %w", name, err)
			}
			store = s
		}

		t.blockchains[name] = &Blockchain{
			Name:     name,
			ChainID:  bc.ChainID,
			Market:   market.New(),
			State:    state,
			History:  marketstate.NewBlockHistory(marketstate.DefaultHistoryDepth),
			Snapshot: store,
		}
		t.channels[name] = newChannels()
		if t.defaultBlockchain == "" {
			t.defaultBlockchain = name
		}
	}

	for name, s := range cfg.Signers {
		pass, err := s.SignerPassphrase()
		if err != nil {
			return nil, fmt.Errorf("topology: signer %q: %w", name, err)
		}
		raw, err := os.ReadFile(s.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("topology: signer %q key file: %w", name, err)
		}
		ks := signerset.NewKeystore(pass)
		addr, err := t.Signers.AddFromEncrypted(ks, raw)
		if err != nil {
			return nil, fmt.Errorf("topology: signer %q decrypt: %w", name, err)
		}
		t.log.Info("loaded signer", "name", name, "address", addr)
	}

	return t, nil
}

// Client returns the named client, or the default (first configured)
// client if name is empty.
func (t *Topology) Client(name string) (*nodeclient.ReconnectingClient, error) {
	if name == "" {
		name = t.defaultClient
	}
	c, ok := t.Clients[name]
	if !ok {
		return nil, fmt.Errorf("topology: client %q not found", name)
	}
	return c, nil
}

// Blockchain returns the named blockchain's shared cells and channel
// graph, or the default (first configured) blockchain if name is
// empty.
func (t *Topology) Blockchain(name string) (*Blockchain, *Channels, error) {
	if name == "" {
		name = t.defaultBlockchain
	}
	bc, ok := t.blockchains[name]
	if !ok {
		return nil, nil, fmt.Errorf("topology: blockchain %q not found", name)
	}
	return bc, t.channels[name], nil
}

// Blockchains returns every configured blockchain name.
func (t *Topology) Blockchains() []string {
	out := make([]string, 0, len(t.blockchains))
	for name := range t.blockchains {
		out = append(out, name)
	}
	return out
}

// Close saves every blockchain's MarketState to its snapshot store (if
// one is configured) and releases the store's pebble handle. Intended
// for the shutdown path: a following Build will Load what this leaves
// behind. Blockchains with no configured db_path are skipped.
func (t *Topology) Close() error {
	for name, bc := range t.blockchains {
		if bc.Snapshot == nil {
			continue
		}
		if err := bc.State.Save(bc.Snapshot); err != nil {
			t.log.Warn("snapshot save failed", "blockchain", name, "err", err)
		}
		if err := bc.Snapshot.Close(); err != nil {
			t.log.Warn("snapshot close failed", "blockchain", name, "err", err)
		}
	}
	return nil
}

// MulticallerAddress parses the configured multicaller address
// (spec.md §9 Open Question: required by all three mergers).
func (t *Topology) MulticallerAddress() common.Address {
	return common.HexToAddress(t.Cfg.Strategy.MulticallerAddress)
}

func newChannels() *Channels {
	return &Channels{
		Blocks:       bus.New[ingest.BlockEvent](ingest.CapacityBlockBus),
		Logs:         bus.New[ingest.LogEvent](ingest.CapacityBlockBus),
		BlockStates:  bus.New[ingest.BlockStateUpdate](ingest.CapacityBlockBus),
		MempoolTx:    bus.New[ingest.MempoolTxEvent](ingest.CapacityMempoolTx),
		MarketEvents: bus.New[market.MarketEvent](ingest.CapacityMarket),
		StateUpdates: bus.New[searcher.StateUpdateEvent](ingest.CapacityMempoolEvt),
		SwapCompose:  bus.New[compose.SwapCompose](ingest.CapacityTxCompose),
		Estimate:     bus.New[compose.SwapCompose](ingest.CapacityTxCompose),
		TxCompose:    bus.New[compose.TxCompose](ingest.CapacityTxCompose),
		Health:       bus.New[healthmetrics.HealthEvent](ingest.CapacityHealth),
		Metrics:      bus.New[healthmetrics.MetricsEvent](ingest.CapacityMetrics),
		Latency:      bus.New[healthmetrics.EstimationLatencyEvent](ingest.CapacityMetrics),
	}
}
