package chain

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

type fakePool struct {
	BasePool
	r0, r1 *uint256.Int
}

func newFakePool(id byte, t0, t1 common.Address) *fakePool {
	var addr PoolID
	addr[0] = id
	return &fakePool{
		BasePool: NewBasePool(addr, ProtocolUniV2, t0, t1, 120_000),
		r0:       uint256.NewInt(1e9),
		r1:       uint256.NewInt(1e9),
	}
}

func (p *fakePool) Reserves() (*uint256.Int, *uint256.Int) { return p.r0, p.r1 }
func (p *fakePool) SimulateSwap(_ SwapState, _ Direction, amountIn *uint256.Int) (*uint256.Int, error) {
	return amountIn, nil
}

func addr(b byte) common.Address {
	var a common.Address
	a[19] = b
	return a
}

func TestNewSwapPathValidatesAdjacency(t *testing.T) {
	a, b, c := addr(1), addr(2), addr(3)
	p0 := newFakePool(10, a, b)
	p1 := newFakePool(11, b, c)
	p2 := newFakePool(12, c, a)

	path, err := NewSwapPath([]common.Address{a, b, c, a}, []Pool{p0, p1, p2})
	require.NoError(t, err)
	require.True(t, path.IsArbitrageShaped())

	_, err = NewSwapPath([]common.Address{a, c, b}, []Pool{p0, p1})
	require.Error(t, err)
}

func TestSwapPathRelations(t *testing.T) {
	a, b, c, d := addr(1), addr(2), addr(3), addr(4)
	p0 := newFakePool(10, a, b)
	p1 := newFakePool(11, b, c)
	p2 := newFakePool(12, c, a)
	p3 := newFakePool(13, a, d)
	p4 := newFakePool(14, d, c)

	path1, err := NewSwapPath([]common.Address{a, b, c, a}, []Pool{p0, p1, p2})
	require.NoError(t, err)
	path2, err := NewSwapPath([]common.Address{a, b, c, a}, []Pool{p0, p1, p2})
	require.NoError(t, err)
	require.True(t, path1.SameSequence(path2))

	path3, err := NewSwapPath([]common.Address{a, d, c, a}, []Pool{p3, p4, p2})
	require.NoError(t, err)
	require.False(t, path1.DisjointPools(path3)) // shares p2
	shared, ok := path1.SharedEdge(path3)
	require.True(t, ok)
	require.Equal(t, p2.ID(), shared)
}

func TestIsBaseEnvelope(t *testing.T) {
	require.True(t, IsBaseEnvelope(BaseTxTypeDeposit))
	require.True(t, IsBaseEnvelope(BaseTxTypeReserved1))
	require.True(t, IsBaseEnvelope(BaseTxTypeReserved2))
	require.False(t, IsBaseEnvelope(0x02))
}
