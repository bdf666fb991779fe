package nodeclient

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
)

// SubscribeBlocks subscribes to new heads and forwards them to ch. A
// watchdog goroutine forces a reconnect if no block has been observed
// for 60s (spec.md §4.B "if no block has been observed for 60s, treat
// the stream as stale and force reconnect"). SubscribeBlocks retries
// the initial subscribe call through the same reconnect/backoff path
// as any other RPC.
func (c *ReconnectingClient) SubscribeBlocks(ctx context.Context, ch chan<- *types.Header) error {
	var sub Subscription
	if err := c.call(ctx, func(p Provider) error {
		s, err := c.SubscribeNewHead(ctx, ch)
		if err != nil {
			return err
		}
		sub = s
		return nil
	}); err != nil {
		return err
	}
	c.NoteBlockObserved()

	go c.watchStaleness(ctx, sub, ch)
	return nil
}

func (c *ReconnectingClient) watchStaleness(ctx context.Context, sub Subscription, ch chan<- *types.Header) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if sub != nil {
				sub.Unsubscribe()
			}
			return
		case err := <-sub.Err():
			c.log.Warn("block subscription dropped, reconnecting", "err", err)
			c.resubscribe(ctx, &sub, ch)
		case <-ticker.C:
			if c.SubscriptionStale() {
				c.log.Warn("block subscription stale, forcing reconnect")
				if sub != nil {
					sub.Unsubscribe()
				}
				c.resubscribe(ctx, &sub, ch)
			}
		}
	}
}

func (c *ReconnectingClient) resubscribe(ctx context.Context, sub *Subscription, ch chan<- *types.Header) {
	if err := c.reconnect(ctx); err != nil {
		return
	}
	c.resetToPrimary()
	newSub, err := c.SubscribeNewHead(ctx, ch)
	if err != nil {
		c.log.Error("resubscribe failed", "err", err)
		return
	}
	*sub = newSub
	c.NoteBlockObserved()
}
