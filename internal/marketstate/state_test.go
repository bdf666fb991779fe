package marketstate

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestCommitInvertRoundTrip(t *testing.T) {
	ms := New(16)

	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")
	slot := common.HexToHash("0x01")

	before := ms.Hash()

	d := NewStateDiff()
	d.SetAccount(addr, ms.Account(addr), AccountInfo{Nonce: 1, Balance: uint256.NewInt(500)})
	d.SetStorage(addr, slot, ms.StorageAt(addr, slot), common.HexToHash("0xdead"))
	ms.Commit(d)

	require.NotEqual(t, before, ms.Hash())
	require.Equal(t, common.HexToHash("0xdead"), ms.StorageAt(addr, slot))

	ms.Commit(d.Invert())
	require.Equal(t, before, ms.Hash())
	require.Equal(t, common.Hash{}, ms.StorageAt(addr, slot))
}

func TestOverlayReadsThroughToBase(t *testing.T) {
	ms := New(16)
	addr := common.HexToAddress("0x2222222222222222222222222222222222222222")
	slot := common.HexToHash("0x02")

	base := NewStateDiff()
	base.SetStorage(addr, slot, common.Hash{}, common.HexToHash("0x01"))
	ms.Commit(base)

	pending := NewStateDiff()
	pending.SetStorage(addr, slot, common.HexToHash("0x01"), common.HexToHash("0x02"))

	ov := NewOverlay(ms, pending)
	require.Equal(t, common.HexToHash("0x02"), ov.StorageAt(addr, slot))
	require.Equal(t, common.HexToHash("0x01"), ms.StorageAt(addr, slot))
}

func TestBlockHistoryFallsOffTail(t *testing.T) {
	h := NewBlockHistory(3)
	var hashes []common.Hash
	for i := uint64(0); i < 5; i++ {
		header := headerWithNumber(i)
		hashes = append(hashes, header.Hash())
		h.Push(BlockEntry{Header: header})
	}
	require.Equal(t, 3, h.Len())

	_, ok := h.ByHash(hashes[0])
	require.False(t, ok, "oldest two entries should have fallen off")
	_, ok = h.ByHash(hashes[1])
	require.False(t, ok)

	for _, idx := range []int{2, 3, 4} {
		_, ok := h.ByHash(hashes[idx])
		require.True(t, ok)
	}

	head, ok := h.Head()
	require.True(t, ok)
	require.Equal(t, hashes[4], head.Header.Hash())
}

func headerWithNumber(n uint64) *types.Header {
	return &types.Header{
		Number: new(big.Int).SetUint64(n),
		Extra:  []byte{byte(n)},
	}
}
