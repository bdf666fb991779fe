// Package market implements the registry of tokens and pools and the
// precomputed path index over the AMM graph (spec.md §3, §4.C). It is
// one of the process's shared cells: writers (discovery, state
// processors) take the write lock only for the minimal critical
// section; readers (the searcher) hold the read lock across an
// entire opportunity evaluation so a pool-touching event yields a
// consistent snapshot of candidate paths.
package market

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/flarelayer/arbbot/internal/chain"
)

// Market is the mapping pool_id -> Pool, token_address -> Token, and
// the adjacency index token -> set<pool_id>, plus the derived path
// index.
type Market struct {
	mu sync.RWMutex

	pools  map[chain.PoolID]chain.Pool
	tokens map[common.Address]*chain.Token
	adj    map[common.Address]map[chain.PoolID]struct{}

	index *pathIndex
}

// New creates an empty Market.
func New() *Market {
	return &Market{
		pools:  make(map[chain.PoolID]chain.Pool),
		tokens: make(map[common.Address]*chain.Token),
		adj:    make(map[common.Address]map[chain.PoolID]struct{}),
		index:  newPathIndex(),
	}
}

// AddToken registers or replaces a token. Tokens are never destroyed
// during a process's lifetime (spec.md §3 lifecycle).
func (m *Market) AddToken(t *chain.Token) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[t.Address] = t
}

// Token looks up a token by address.
func (m *Market) Token(addr common.Address) (*chain.Token, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tokens[addr]
	return t, ok
}

// BasicTokens returns every token flagged as a reference asset, the
// DFS roots for path-index construction (§4.C).
func (m *Market) BasicTokens() []*chain.Token {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*chain.Token
	for _, t := range m.tokens {
		if t.Basic {
			out = append(out, t)
		}
	}
	return out
}

// AddPool registers a pool and updates the adjacency index. It does
// not, by itself, update the path index; call RebuildPathIndex (or
// AddPoolPaths for an incremental add) once pools for a block/startup
// batch are all registered.
func (m *Market) AddPool(p chain.Pool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools[p.ID()] = p
	for _, tok := range p.Tokens() {
		if m.adj[tok] == nil {
			m.adj[tok] = make(map[chain.PoolID]struct{})
		}
		m.adj[tok][p.ID()] = struct{}{}
	}
}

// Pool looks up a pool by id.
func (m *Market) Pool(id chain.PoolID) (chain.Pool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pools[id]
	return p, ok
}

// PoolsForToken returns the pool ids adjacent to a token.
func (m *Market) PoolsForToken(addr common.Address) []chain.PoolID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]chain.PoolID, 0, len(m.adj[addr]))
	for id := range m.adj[addr] {
		out = append(out, id)
	}
	return out
}

// DisablePool soft-removes a pool from future path construction
// without deleting it from the registry (§4.K pool-health monitor).
func (m *Market) DisablePool(id chain.PoolID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pools[id]; ok {
		p.SetDisabled(true)
	}
}

// PathsForPool returns the candidate paths containing id, subject to
// the §4.C filter (first 100 always considered, beyond that a score
// gate), in tie-break order (score desc, hop-count asc, pool-id lex).
// If the pool is unknown to the index, it is built on demand.
func (m *Market) PathsForPool(id chain.PoolID) []*chain.SwapPath {
	m.mu.RLock()
	paths, ok := m.index.get(id)
	m.mu.RUnlock()
	if ok {
		return paths
	}

	m.mu.RLock()
	built := m.buildPathsThroughPool(id)
	m.mu.RUnlock()
	m.mu.Lock()
	m.index.set(id, built)
	m.mu.Unlock()
	return built
}

// RebuildPathIndex recomputes the full index from the current pool
// set by DFS from every basic token (§4.C). Deterministic given the
// same pool set (spec.md §8 round-trip property).
func (m *Market) RebuildPathIndex(maxPathLength int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = buildFullIndex(m.pools, m.adj, m.basicTokensLocked(), maxPathLength)
}

func (m *Market) basicTokensLocked() []common.Address {
	var out []common.Address
	for addr, t := range m.tokens {
		if t.Basic {
			out = append(out, addr)
		}
	}
	return out
}

// buildPathsThroughPool builds, on demand, the arbitrage-shaped paths
// that pass through pool id by DFS from each basic token, bounded by
// DefaultMaxPathLength. The length last given to RebuildPathIndex is
// not applied here: a pool missing from the index gets paths of up to
// DefaultMaxPathLength hops even after RebuildPathIndex(0). The
// caller holds m.mu.
func (m *Market) buildPathsThroughPool(id chain.PoolID) []*chain.SwapPath {
	return dfsPathsThroughPool(m.pools, m.adj, m.basicTokensLocked(), id, DefaultMaxPathLength)
}
