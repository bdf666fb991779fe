package topology

import (
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/flarelayer/arbbot/internal/bus"
	"github.com/flarelayer/arbbot/internal/compose"
	"github.com/flarelayer/arbbot/internal/config"
	"github.com/flarelayer/arbbot/internal/healthmetrics"
	"github.com/flarelayer/arbbot/internal/ingest"
	"github.com/flarelayer/arbbot/internal/market"
	"github.com/flarelayer/arbbot/internal/marketstate"
	"github.com/flarelayer/arbbot/internal/merger"
	"github.com/flarelayer/arbbot/internal/nodeclient"
	"github.com/flarelayer/arbbot/internal/router"
	"github.com/flarelayer/arbbot/internal/searcher"
)

// noopSimulator satisfies router.Simulator without executing any EVM
// bytecode: concrete per-protocol swap math and the EVM interpreter
// itself are explicitly out of scope (spec.md §1, §13 Non-goals). It
// lets the Estimator stage run end to end in this repository; a
// production deployment replaces it with a real interpreter behind
// the same seam.
type noopSimulator struct{}

func (noopSimulator) EstimateSwap(*marketstate.Overlay, compose.Swap, uint64, uint64, *uint256.Int) error {
	return nil
}

// BuildActors registers every pipeline actor for every configured
// blockchain onto sup, wiring them through each blockchain's Channels
// (spec.md §4, §5, §9). It does not start sup; call sup.Run once
// every blockchain's actors are registered.
func (t *Topology) BuildActors(sup *bus.Supervisor) error {
	client, err := t.Client("")
	if err != nil {
		return err
	}

	strategy := t.Cfg.Strategy
	multicaller := t.MulticallerAddress()

	minProfitWei := new(uint256.Int)
	if strategy.MinProfitWei != "" {
		if err := minProfitWei.SetFromDecimal(strategy.MinProfitWei); err != nil {
			minProfitWei = new(uint256.Int)
		}
	}

	var eoa *common.Address
	if strategy.EOA != "" {
		a := common.HexToAddress(strategy.EOA)
		eoa = &a
	}

	signerAddr, err := t.Signers.Random()
	if err != nil {
		return err
	}
	ethSigner := types.LatestSignerForChainID(new(big.Int).SetUint64(strategy.ChainID))

	relays := make([]router.Relay, 0, len(t.Cfg.Relays))
	for _, r := range t.Cfg.Relays {
		relays = append(relays, router.Relay{Name: r.Name, URL: r.URL, Auth: authFromEnv(r.AuthEnv)})
	}

	for _, name := range t.Blockchains() {
		bc, ch, err := t.Blockchain(name)
		if err != nil {
			return err
		}
		t.wireBlockchain(sup, name, bc, ch, client, multicaller, strategy, minProfitWei, eoa, signerAddr, ethSigner, relays)
	}

	if t.Cfg.InfluxDB != nil {
		for _, name := range t.Blockchains() {
			_, ch, _ := t.Blockchain(name)
			influxCfg := healthmetrics.InfluxConfig{
				URL:      t.Cfg.InfluxDB.URL,
				Database: t.Cfg.InfluxDB.Database,
				Tags:     mergeTags(t.Cfg.InfluxDB.Tags, name),
			}
			writer, err := healthmetrics.NewMetricsWriter(influxCfg, ch.Metrics, ch.Latency)
			if err != nil {
				return err
			}
			sup.Add("metrics_writer_"+name, writer.Run)
		}
	}

	return nil
}

// wireBlockchain registers one blockchain's full actor set: ingestion,
// state-change processing, searching, merging, routing, estimation,
// signing, broadcast, and pool health (spec.md §4).
func (t *Topology) wireBlockchain(
	sup *bus.Supervisor,
	name string,
	bc *Blockchain,
	ch *Channels,
	client *nodeclient.ReconnectingClient,
	multicaller common.Address,
	strategy config.BackrunStrategy,
	minProfitWei *uint256.Int,
	eoa *common.Address,
	signerAddr common.Address,
	ethSigner types.Signer,
	relays []router.Relay,
) {
	actors := t.Cfg.Actors

	blockIngestor := ingest.NewBlockIngestor(client, bc.History, bc.State, ch.Blocks, ch.Logs, ch.BlockStates)
	sup.Add("block_ingestor_"+name, blockIngestor.Run)

	blockStateProc := searcher.NewBlockStateProcessor(bc.Market, bc.History, ch.BlockStates, ch.StateUpdates)
	sup.Add("block_state_processor_"+name, blockStateProc.Run)

	profitCalc := searcher.NewProfitCalculator(strategy.FlashLoanFeeBps)

	arbSearcher := searcher.NewArbSearcher(bc.Market, bc.State, profitCalc, bc.ChainID, minProfitWei, ch.StateUpdates, ch.SwapCompose, ch.Health, ch.Metrics, 0)
	sup.Add("arb_searcher_"+name, arbSearcher.Run)

	if actors.Mempool {
		mempoolIngestor := ingest.NewMempoolIngestor(client, client, ch.MempoolTx)
		sup.Add("mempool_ingestor_"+name, mempoolIngestor.Run)

		pendingTxProc := searcher.NewPendingTxProcessor(client, bc.Market, bc.History, ch.MempoolTx, ch.StateUpdates)
		sup.Add("pendingtx_processor_"+name, pendingTxProc.Run)
	}

	if actors.Price {
		marketEvents := ch.MarketEvents
		priceFeed := market.NewPriceFeedActor(bc.Market, 0, func(e market.MarketEvent) { marketEvents.Send(e) })
		sup.Add("price_feed_"+name, priceFeed.Run)
	}

	if strategy.Smart {
		samePath := merger.NewSamePathMerger(multicaller, ch.SwapCompose, ch.Blocks, ch.SwapCompose)
		sup.Add("same_path_merger_"+name, samePath.Run)
		diffPath := merger.NewDiffPathMerger(multicaller, ch.SwapCompose, ch.Blocks, ch.SwapCompose)
		sup.Add("diff_path_merger_"+name, diffPath.Run)
		arbStep := merger.NewArbStepMerger(multicaller, ch.SwapCompose, ch.Blocks, ch.SwapCompose)
		sup.Add("arb_step_merger_"+name, arbStep.Run)
	}

	rt := router.NewRouter(t.Signers, client, eoa, ch.SwapCompose, ch.Estimate, ch.TxCompose, ch.Health)
	sup.Add("router_"+name, rt.Run)

	if actors.Estimator {
		est := router.NewEstimator(noopSimulator{}, bc.State, ch.Estimate, ch.SwapCompose, ch.Health, ch.Latency)
		sup.Add("estimator_"+name, est.Run)
	}

	sig := router.NewSigner(t.Signers, signerAddr, ethSigner, ch.TxCompose, ch.TxCompose, ch.Health)
	sup.Add("signer_"+name, sig.Run)

	if actors.Broadcaster {
		broadcaster := router.NewBroadcaster(relays, t.Cfg.AllowBroadcast, ch.TxCompose)
		sup.Add("broadcaster_"+name, broadcaster.Run)
	}

	poolHealth := healthmetrics.NewPoolHealthMonitor(bc.Market, ch.Health, 0, 0)
	sup.Add("pool_health_monitor_"+name, poolHealth.Run)
}

// authFromEnv resolves a relay's auth value (sent as the
// X-Flashbots-Signature header) from its configured environment
// variable, empty meaning unsigned submission.
func authFromEnv(envName string) string {
	if envName == "" {
		return ""
	}
	v, _ := os.LookupEnv(envName)
	return v
}

func mergeTags(tags map[string]string, blockchain string) map[string]string {
	out := make(map[string]string, len(tags)+1)
	for k, v := range tags {
		out[k] = v
	}
	out["blockchain"] = blockchain
	return out
}
