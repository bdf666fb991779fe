package nodeclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterZeroDisablesThrottling(t *testing.T) {
	r := NewRateLimiter(0)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 1000; i++ {
		require.NoError(t, r.Wait(ctx))
	}
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestRateLimiterEnforcesInterval(t *testing.T) {
	r := NewRateLimiter(100) // 10ms min interval
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, r.Wait(ctx))
	}
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}
