package market

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/flarelayer/arbbot/internal/chain"
)

type testPool struct {
	chain.BasePool
	r0, r1 *uint256.Int
}

func newTestPool(idByte byte, t0, t1 common.Address, r0, r1 int64) *testPool {
	var id chain.PoolID
	id[0] = idByte
	return &testPool{
		BasePool: chain.NewBasePool(id, chain.ProtocolUniV2, t0, t1, 100_000),
		r0:       uint256.NewInt(uint64(r0)),
		r1:       uint256.NewInt(uint64(r1)),
	}
}

func (p *testPool) Reserves() (*uint256.Int, *uint256.Int) { return p.r0, p.r1 }
func (p *testPool) SimulateSwap(_ chain.SwapState, _ chain.Direction, in *uint256.Int) (*uint256.Int, error) {
	return in, nil
}

func addr(b byte) common.Address {
	var a common.Address
	a[19] = b
	return a
}

func buildTriangleMarket() (*Market, common.Address, common.Address, common.Address) {
	m := New()
	a, b, c := addr(1), addr(2), addr(3)
	m.AddToken(&chain.Token{Address: a, Basic: true, Symbol: "WETH"})
	m.AddToken(&chain.Token{Address: b})
	m.AddToken(&chain.Token{Address: c})

	m.AddPool(newTestPool(10, a, b, 1_000_000, 1_000_000))
	m.AddPool(newTestPool(11, b, c, 1_000_000, 1_000_000))
	m.AddPool(newTestPool(12, c, a, 1_000_000, 1_000_000))
	return m, a, b, c
}

func TestPathIndexInvariantPoolMembership(t *testing.T) {
	m, _, _, _ := buildTriangleMarket()
	m.RebuildPathIndex(DefaultMaxPathLength)

	var poolA chain.PoolID
	poolA[0] = 10
	paths := m.PathsForPool(poolA)
	require.NotEmpty(t, paths)
	for _, p := range paths {
		require.True(t, p.ContainsPool(poolA))
		require.True(t, p.IsArbitrageShaped())
	}
}

func TestMaxPathLengthZeroYieldsNoPaths(t *testing.T) {
	m, _, _, _ := buildTriangleMarket()
	m.RebuildPathIndex(0)

	var poolA chain.PoolID
	poolA[0] = 10
	paths, ok := m.index.get(poolA)
	require.False(t, ok)
	require.Empty(t, paths)
}

func TestRebuildPathIndexIsDeterministic(t *testing.T) {
	m, _, _, _ := buildTriangleMarket()
	m.RebuildPathIndex(DefaultMaxPathLength)
	first := m.index.byPool

	m.RebuildPathIndex(DefaultMaxPathLength)
	second := m.index.byPool

	require.Equal(t, len(first), len(second))
	for id, paths1 := range first {
		paths2, ok := second[id]
		require.True(t, ok)
		require.Equal(t, len(paths1), len(paths2))
		for i := range paths1 {
			require.Equal(t, paths1[i].PoolIDs(), paths2[i].PoolIDs())
		}
	}
}
