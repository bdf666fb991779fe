package nodeclient

import (
	"context"
	"math/big"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
)

const (
	reconnectInitialBackoff = time.Second
	reconnectMaxBackoff     = 5 * time.Minute
	reconnectJitterFrac     = 0.25
	staleSubscriptionAfter  = 60 * time.Second
	unhealthyErrorRate      = 0.05
)

// Dialer constructs a fresh Provider for a URL. Supplied by the
// topology layer, which knows whether to dial ws/http/ipc.
type Dialer func(ctx context.Context, url string) (Provider, error)

// ReconnectingClient wraps a Provider with a rate limiter and
// automatic, backing-off reconnection across a primary URL plus an
// ordered list of backups (spec.md §4.B). It implements Provider
// itself so callers use it exactly like a bare node client.
type ReconnectingClient struct {
	dial  Dialer
	urls  []string // urls[0] is primary
	limit *RateLimiter
	log   log.Logger

	mu       sync.RWMutex
	current  Provider
	urlIndex int

	totalRequests atomic.Int64
	totalErrors   atomic.Int64

	lastBlockSeen atomic.Int64 // unix nanos

	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewReconnectingClient constructs a client. primary is urls[0];
// backups follow in failover order.
func NewReconnectingClient(dial Dialer, primary string, backups []string, rps float64) *ReconnectingClient {
	return &ReconnectingClient{
		dial:           dial,
		urls:           append([]string{primary}, backups...),
		limit:          NewRateLimiter(rps),
		log:            log.New("component", "nodeclient"),
		initialBackoff: reconnectInitialBackoff,
		maxBackoff:     reconnectMaxBackoff,
	}
}

// Connect establishes the initial connection, retrying with backoff
// across the URL list until ctx is done.
func (c *ReconnectingClient) Connect(ctx context.Context) error {
	return c.reconnect(ctx)
}

func (c *ReconnectingClient) reconnect(ctx context.Context) error {
	backoff := c.initialBackoff
	for {
		c.mu.RLock()
		idx := c.urlIndex
		c.mu.RUnlock()
		url := c.urls[idx%len(c.urls)]

		p, err := c.dial(ctx, url)
		if err == nil {
			c.mu.Lock()
			c.current = p
			c.mu.Unlock()
			c.log.Info("connected", "url", url)
			return nil
		}

		c.log.Warn("connect failed, retrying", "url", url, "err", err, "backoff", backoff)
		c.mu.Lock()
		c.urlIndex++
		c.mu.Unlock()

		jittered := jitter(backoff, reconnectJitterFrac)
		select {
		case <-time.After(jittered):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}

// resetToPrimary restores the URL index to 0 after a successful
// re-establish, per spec.md §4.B.
func (c *ReconnectingClient) resetToPrimary() {
	c.mu.Lock()
	c.urlIndex = 0
	c.mu.Unlock()
}

func jitter(d time.Duration, frac float64) time.Duration {
	delta := time.Duration(float64(d) * frac)
	if delta <= 0 {
		return d
	}
	offset := time.Duration(rand.Int63n(int64(2*delta))) - delta
	return d + offset
}

// call runs fn under the rate limiter, records health stats, and on a
// transient failure triggers a reconnect-and-retry-once.
func (c *ReconnectingClient) call(ctx context.Context, fn func(Provider) error) error {
	if err := c.limit.Wait(ctx); err != nil {
		return err
	}

	c.mu.RLock()
	p := c.current
	c.mu.RUnlock()

	c.totalRequests.Add(1)
	err := fn(p)
	if err == nil {
		return nil
	}
	c.totalErrors.Add(1)

	if err := c.reconnect(ctx); err != nil {
		return Permanent(err)
	}
	c.resetToPrimary()

	c.mu.RLock()
	p = c.current
	c.mu.RUnlock()
	c.totalRequests.Add(1)
	if err := fn(p); err != nil {
		c.totalErrors.Add(1)
		return Transient(err)
	}
	return nil
}

// HealthStats is a snapshot of total requests, errors, and the
// rolling error rate (spec.md §4.B).
type HealthStats struct {
	TotalRequests int64
	TotalErrors   int64
	ErrorRate     float64
	Healthy       bool
}

// Health returns the current health snapshot. "healthy" iff error
// rate < 5%.
func (c *ReconnectingClient) Health() HealthStats {
	reqs := c.totalRequests.Load()
	errs := c.totalErrors.Load()
	rate := 0.0
	if reqs > 0 {
		rate = float64(errs) / float64(reqs)
	}
	return HealthStats{TotalRequests: reqs, TotalErrors: errs, ErrorRate: rate, Healthy: rate < unhealthyErrorRate}
}

// NoteBlockObserved marks that a new head was just seen, resetting
// the subscription staleness clock (spec.md §4.B).
func (c *ReconnectingClient) NoteBlockObserved() {
	c.lastBlockSeen.Store(time.Now().UnixNano())
}

// SubscriptionStale reports whether more than 60s have passed since
// the last observed block.
func (c *ReconnectingClient) SubscriptionStale() bool {
	last := c.lastBlockSeen.Load()
	if last == 0 {
		return false
	}
	return time.Since(time.Unix(0, last)) > staleSubscriptionAfter
}

// The methods below make ReconnectingClient itself satisfy Provider,
// routing every call through call() so rate limiting, health
// accounting and reconnect-and-retry apply uniformly regardless of
// which RPC method the core invokes.

func (c *ReconnectingClient) ChainID(ctx context.Context) (*big.Int, error) {
	var out *big.Int
	err := c.call(ctx, func(p Provider) error {
		v, err := p.ChainID(ctx)
		out = v
		return err
	})
	return out, err
}

func (c *ReconnectingClient) BlockNumber(ctx context.Context) (uint64, error) {
	var out uint64
	err := c.call(ctx, func(p Provider) error {
		v, err := p.BlockNumber(ctx)
		out = v
		return err
	})
	return out, err
}

func (c *ReconnectingClient) BlockByHash(ctx context.Context, hash common.Hash, body BlockBody) (*types.Block, error) {
	var out *types.Block
	err := c.call(ctx, func(p Provider) error {
		v, err := p.BlockByHash(ctx, hash, body)
		out = v
		return err
	})
	return out, err
}

func (c *ReconnectingClient) HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error) {
	var out *types.Header
	err := c.call(ctx, func(p Provider) error {
		v, err := p.HeaderByHash(ctx, hash)
		out = v
		return err
	})
	return out, err
}

func (c *ReconnectingClient) GetLogs(ctx context.Context, filter LogFilter) ([]types.Log, error) {
	var out []types.Log
	err := c.call(ctx, func(p Provider) error {
		v, err := p.GetLogs(ctx, filter)
		out = v
		return err
	})
	return out, err
}

func (c *ReconnectingClient) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	var out *types.Transaction
	var pending bool
	err := c.call(ctx, func(p Provider) error {
		v, isPending, err := p.TransactionByHash(ctx, hash)
		out, pending = v, isPending
		return err
	})
	return out, pending, err
}

func (c *ReconnectingClient) PendingNonceAt(ctx context.Context, addr common.Address) (uint64, error) {
	var out uint64
	err := c.call(ctx, func(p Provider) error {
		v, err := p.PendingNonceAt(ctx, addr)
		out = v
		return err
	})
	return out, err
}

func (c *ReconnectingClient) BalanceAt(ctx context.Context, addr common.Address, blockNumber *big.Int) (*big.Int, error) {
	var out *big.Int
	err := c.call(ctx, func(p Provider) error {
		v, err := p.BalanceAt(ctx, addr, blockNumber)
		out = v
		return err
	})
	return out, err
}

// SubscribeNewHead is not retried through call(): a subscription
// outlives a single request/response cycle, so reconnect-and-retry
// semantics don't apply. It also calls NoteBlockObserved on every
// delivered header so SubscriptionStale tracks real traffic.
func (c *ReconnectingClient) SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (Subscription, error) {
	c.mu.RLock()
	p := c.current
	c.mu.RUnlock()

	relay := make(chan *types.Header, cap(ch))
	sub, err := p.SubscribeNewHead(ctx, relay)
	if err != nil {
		return nil, err
	}
	go func() {
		for h := range relay {
			c.NoteBlockObserved()
			ch <- h
		}
	}()
	return sub, nil
}

func (c *ReconnectingClient) DebugTraceBlockByHash(ctx context.Context, hash common.Hash) ([]TraceResult, error) {
	var out []TraceResult
	err := c.call(ctx, func(p Provider) error {
		v, err := p.DebugTraceBlockByHash(ctx, hash)
		out = v
		return err
	})
	return out, err
}

func (c *ReconnectingClient) DebugTraceBlockByNumber(ctx context.Context, number *big.Int) ([]TraceResult, error) {
	var out []TraceResult
	err := c.call(ctx, func(p Provider) error {
		v, err := p.DebugTraceBlockByNumber(ctx, number)
		out = v
		return err
	})
	return out, err
}

func (c *ReconnectingClient) DebugTraceTransaction(ctx context.Context, hash common.Hash) (TraceResult, error) {
	var out TraceResult
	err := c.call(ctx, func(p Provider) error {
		v, err := p.DebugTraceTransaction(ctx, hash)
		out = v
		return err
	})
	return out, err
}
