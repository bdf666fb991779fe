package marketstate

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// DefaultHistoryDepth is N in spec.md §3 "bounded ring of the last N
// blocks (default 10)".
const DefaultHistoryDepth = 10

// BlockEntry is one ring-buffer slot: a header, its logs, and a
// snapshot handle into MarketState at that block (the diff that
// produced it, so BlockHistory doubles as reorg-tolerant "what
// changed vs previous head" storage without copying the whole
// mirror).
type BlockEntry struct {
	Header *types.Header
	Logs   []*types.Log
	Diff   *StateDiff
}

// BlockHistory is the bounded ring of recent blocks (spec.md §3).
// Entries fall off the tail after N additions.
type BlockHistory struct {
	mu    sync.RWMutex
	depth int
	byIdx []BlockEntry
	byHash map[common.Hash]int // hash -> index into byIdx
	head  int                  // index of most recent entry, -1 if empty
	count int
}

// NewBlockHistory creates a ring of the given depth (or
// DefaultHistoryDepth if depth <= 0).
func NewBlockHistory(depth int) *BlockHistory {
	if depth <= 0 {
		depth = DefaultHistoryDepth
	}
	return &BlockHistory{
		depth:  depth,
		byIdx:  make([]BlockEntry, depth),
		byHash: make(map[common.Hash]int),
		head:   -1,
	}
}

// Push adds a new block entry, evicting the oldest if the ring is
// full.
func (h *BlockHistory) Push(e BlockEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.head = (h.head + 1) % h.depth
	if old := h.byIdx[h.head].Header; old != nil {
		delete(h.byHash, old.Hash())
	}
	h.byIdx[h.head] = e
	h.byHash[e.Header.Hash()] = h.head
	if h.count < h.depth {
		h.count++
	}
}

// ByHash looks up a retained entry by block hash.
func (h *BlockHistory) ByHash(hash common.Hash) (BlockEntry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	idx, ok := h.byHash[hash]
	if !ok {
		return BlockEntry{}, false
	}
	return h.byIdx[idx], true
}

// Head returns the most recently pushed entry.
func (h *BlockHistory) Head() (BlockEntry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.head < 0 || h.count == 0 {
		return BlockEntry{}, false
	}
	return h.byIdx[h.head], true
}

// Len reports how many entries are currently retained (<= depth).
func (h *BlockHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Parent returns the entry immediately preceding hash in arrival
// order; the oldest retained entry has none.
func (h *BlockHistory) Parent(hash common.Hash) (BlockEntry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	idx, ok := h.byHash[hash]
	if !ok {
		return BlockEntry{}, false
	}
	oldest := (h.head - h.count + 1 + h.depth) % h.depth
	parentIdx := (idx - 1 + h.depth) % h.depth
	if idx == oldest || h.byIdx[parentIdx].Header == nil {
		return BlockEntry{}, false
	}
	return h.byIdx[parentIdx], true
}
