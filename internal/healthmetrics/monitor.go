package healthmetrics

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/flarelayer/arbbot/internal/bus"
	"github.com/flarelayer/arbbot/internal/chain"
	"github.com/flarelayer/arbbot/internal/market"
)

// DefaultDisableThreshold is the number of swap errors within
// DefaultWindow that trips a pool's disabled flag.
const DefaultDisableThreshold = 5

// DefaultWindow is the rolling window swap errors are counted over.
const DefaultWindow = time.Minute

// PoolHealthMonitor counts per-pool swap errors and soft-disables a
// pool in Market once its count within the window reaches the
// configured threshold (spec.md §4.K).
type PoolHealthMonitor struct {
	market    *market.Market
	threshold int
	window    time.Duration

	mu     sync.Mutex
	errors map[chain.PoolID][]time.Time

	in  *bus.Subscription[HealthEvent]
	log log.Logger
}

// NewPoolHealthMonitor constructs a monitor subscribed to in.
func NewPoolHealthMonitor(m *market.Market, in *bus.Bus[HealthEvent], threshold int, window time.Duration) *PoolHealthMonitor {
	if threshold <= 0 {
		threshold = DefaultDisableThreshold
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &PoolHealthMonitor{
		market:    m,
		threshold: threshold,
		window:    window,
		errors:    make(map[chain.PoolID][]time.Time),
		in:        in.Subscribe(),
		log:       log.New("actor", "pool_health_monitor"),
	}
}

// Run implements bus.Worker.
func (h *PoolHealthMonitor) Run(ctx context.Context) error {
	for {
		env, err := h.in.Recv(ctx)
		if err != nil {
			return err
		}
		if env.Value.Kind != HealthSwapError || env.Value.Pool == (chain.PoolID{}) {
			continue
		}
		h.record(env.Value.Pool, env.Value.At)
	}
}

func (h *PoolHealthMonitor) record(pool chain.PoolID, at time.Time) {
	if at.IsZero() {
		at = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := at.Add(-h.window)
	recent := h.errors[pool][:0]
	for _, t := range h.errors[pool] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	recent = append(recent, at)
	h.errors[pool] = recent

	if len(recent) >= h.threshold {
		h.market.DisablePool(pool)
		h.log.Warn("pool disabled, exceeded swap-error threshold", "pool", pool, "errors", len(recent), "window", h.window)
	}
}
