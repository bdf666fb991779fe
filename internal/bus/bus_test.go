package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSendReturnsSubscriberCount(t *testing.T) {
	b := New[int](10)
	require.Equal(t, 0, b.Send(1))

	sub := b.Subscribe()
	defer sub.Unsubscribe()
	require.Equal(t, 1, b.Send(2))
}

func TestCapacityOneDeliversPromptConsumer(t *testing.T) {
	b := New[int](1)
	sub := b.Subscribe()
	defer sub.Unsubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := 0; i < 5; i++ {
		b.Send(i)
		env, err := sub.Recv(ctx)
		require.NoError(t, err)
		require.Equal(t, i, env.Value)
		require.Zero(t, env.Lagged)
	}
}

func TestLaggingSubscriberResyncs(t *testing.T) {
	b := New[int](4)
	sub := b.Subscribe()
	defer sub.Unsubscribe()

	for i := 0; i < 10; i++ {
		b.Send(i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	env, err := sub.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(6), env.Lagged)
	require.Equal(t, 6, env.Value) // oldest retained of the last 4 sent (6,7,8,9)

	for _, want := range []int{7, 8, 9} {
		env, err := sub.Recv(ctx)
		require.NoError(t, err)
		require.Equal(t, want, env.Value)
		require.Zero(t, env.Lagged)
	}
}

func TestIsHealthy(t *testing.T) {
	b := New[int](1)
	require.False(t, b.IsHealthy())

	sub := b.Subscribe()
	require.True(t, b.IsHealthy())

	sub.Unsubscribe()
	require.False(t, b.IsHealthy())

	sub2 := b.Subscribe()
	defer sub2.Unsubscribe()
	b.Close()
	require.False(t, b.IsHealthy())
}

func TestCloseDrainsToErrClosed(t *testing.T) {
	b := New[int](4)
	sub := b.Subscribe()
	b.Send(1)
	b.Close()

	ctx := context.Background()
	env, err := sub.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, env.Value)

	_, err = sub.Recv(ctx)
	require.ErrorIs(t, err, ErrClosed)
}
