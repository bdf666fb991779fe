package compose

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAdvanceToIsMonotone(t *testing.T) {
	c := SwapCompose{Stage: StagePrepare}

	c, err := c.AdvanceTo(StageEstimate)
	require.NoError(t, err)
	require.Equal(t, StageEstimate, c.Stage)

	c, err = c.AdvanceTo(StageReady)
	require.NoError(t, err)

	_, err = c.AdvanceTo(StagePrepare)
	require.ErrorIs(t, err, ErrBackwardTransition)

	_, err = c.AdvanceTo(StageReady)
	require.ErrorIs(t, err, ErrBackwardTransition)

	// Discarded is reachable from any stage.
	c, err = c.AdvanceTo(StageDiscarded)
	require.NoError(t, err)
	require.Equal(t, StageDiscarded, c.Stage)
}

func TestTxComposeBundleEntriesNeverEmpty(t *testing.T) {
	bundle := []RlpState{
		{Stuffing: []byte{0x01}},
		{Backrun: []byte{0x02}},
	}
	for _, e := range bundle {
		require.False(t, e.IsEmpty())
	}

	empty := RlpState{}
	require.True(t, empty.IsEmpty())
}
