package nodeclient

import (
	"context"
	"fmt"
	"math/big"
	"net/url"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
)

// EthProvider adapts go-ethereum's rpc.Client/ethclient.Client to the
// Provider interface. It is the one place this package touches actual
// wire framing (spec.md §1 "Wire-level JSON-RPC/WebSocket framing;
// the core consumes a Provider capability" — this is that capability's
// concrete, outer-boundary implementation, assembled by the topology
// layer rather than by any pipeline actor).
type EthProvider struct {
	rpcClient *rpc.Client
	eth       *ethclient.Client
}

// NewEthProvider wraps an already-dialed rpc.Client.
func NewEthProvider(c *rpc.Client) *EthProvider {
	return &EthProvider{rpcClient: c, eth: ethclient.NewClient(c)}
}

// DialUpgrading connects to rawURL, trying a ws(s) upgrade first when
// rawURL is http(s) (spec.md §6 config requirement: "if transport=http
// and the URL is http(s), the client MUST try to upgrade to ws(s)
// first"). ipc:// and ws(s):// URLs dial directly.
func DialUpgrading(ctx context.Context, rawURL string) (Provider, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("nodeclient: parse url %q: %w", rawURL, err)
	}

	logger := log.New("component", "nodeclient")

	if u.Scheme == "http" || u.Scheme == "https" {
		wsURL := *u
		if u.Scheme == "http" {
			wsURL.Scheme = "ws"
		} else {
			wsURL.Scheme = "wss"
		}
		if c, err := rpc.DialContext(ctx, wsURL.String()); err == nil {
			logger.Info("upgraded http transport to websocket", "url", wsURL.String())
			return NewEthProvider(c), nil
		}
		logger.Debug("websocket upgrade failed, falling back to http", "url", rawURL)
	}

	c, err := rpc.DialContext(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return NewEthProvider(c), nil
}

func (p *EthProvider) ChainID(ctx context.Context) (*big.Int, error) {
	return p.eth.ChainID(ctx)
}

func (p *EthProvider) BlockNumber(ctx context.Context) (uint64, error) {
	return p.eth.BlockNumber(ctx)
}

func (p *EthProvider) BlockByHash(ctx context.Context, hash common.Hash, body BlockBody) (*types.Block, error) {
	if body == BlockBodyFull {
		return p.eth.BlockByHash(ctx, hash)
	}
	header, err := p.eth.HeaderByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	return types.NewBlockWithHeader(header), nil
}

func (p *EthProvider) HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error) {
	return p.eth.HeaderByHash(ctx, hash)
}

func (p *EthProvider) GetLogs(ctx context.Context, filter LogFilter) ([]types.Log, error) {
	return p.eth.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: filter.FromBlock,
		ToBlock:   filter.ToBlock,
		Addresses: filter.Addresses,
		Topics:    filter.Topics,
	})
}

func (p *EthProvider) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	return p.eth.TransactionByHash(ctx, hash)
}

func (p *EthProvider) PendingNonceAt(ctx context.Context, addr common.Address) (uint64, error) {
	return p.eth.PendingNonceAt(ctx, addr)
}

func (p *EthProvider) BalanceAt(ctx context.Context, addr common.Address, blockNumber *big.Int) (*big.Int, error) {
	return p.eth.BalanceAt(ctx, addr, blockNumber)
}

func (p *EthProvider) SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (Subscription, error) {
	return p.eth.SubscribeNewHead(ctx, ch)
}

// tracerResult mirrors the subset of a prestateTracer response this
// core needs: pre and post storage snapshots per address.
type tracerResult struct {
	Pre map[common.Address]tracerAccount `json:"pre"`
	Post map[common.Address]tracerAccount `json:"post"`
}

type tracerAccount struct {
	Storage map[common.Hash]common.Hash `json:"storage"`
}

func (p *EthProvider) DebugTraceTransaction(ctx context.Context, hash common.Hash) (TraceResult, error) {
	var raw tracerResult
	if err := p.rpcClient.CallContext(ctx, &raw, "debug_traceTransaction", hash, rawTracerParam()); err != nil {
		return TraceResult{Err: err}, err
	}
	return TraceResult{PreState: flatten(raw.Pre), PostState: flatten(raw.Post)}, nil
}

func (p *EthProvider) DebugTraceBlockByHash(ctx context.Context, hash common.Hash) ([]TraceResult, error) {
	var raw []struct {
		Result tracerResult `json:"result"`
	}
	if err := p.rpcClient.CallContext(ctx, &raw, "debug_traceBlockByHash", hash, rawTracerParam()); err != nil {
		return nil, err
	}
	out := make([]TraceResult, len(raw))
	for i, r := range raw {
		out[i] = TraceResult{PreState: flatten(r.Result.Pre), PostState: flatten(r.Result.Post)}
	}
	return out, nil
}

func (p *EthProvider) DebugTraceBlockByNumber(ctx context.Context, number *big.Int) ([]TraceResult, error) {
	var raw []struct {
		Result tracerResult `json:"result"`
	}
	if err := p.rpcClient.CallContext(ctx, &raw, "debug_traceBlockByNumber", toBlockNumArg(number), rawTracerParam()); err != nil {
		return nil, err
	}
	out := make([]TraceResult, len(raw))
	for i, r := range raw {
		out[i] = TraceResult{PreState: flatten(r.Result.Pre), PostState: flatten(r.Result.Post)}
	}
	return out, nil
}

func rawTracerParam() map[string]any {
	return map[string]any{"tracer": "prestateTracer", "tracerConfig": map[string]any{"diffMode": true}}
}

func flatten(m map[common.Address]tracerAccount) map[common.Address]map[common.Hash]common.Hash {
	out := make(map[common.Address]map[common.Hash]common.Hash, len(m))
	for addr, acc := range m {
		out[addr] = acc.Storage
	}
	return out
}

func toBlockNumArg(number *big.Int) string {
	if number == nil {
		return "latest"
	}
	return hexutil.EncodeBig(number)
}
