package market

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/flarelayer/arbbot/internal/chain"
)

// DefaultMaxPathLength is the bounded-DFS hop cap (spec.md §4.C
// default 4).
const DefaultMaxPathLength = 4

// topPathsPerPool is the number of paths always considered regardless
// of score; beyond it a score gate applies (spec.md §4.C).
const topPathsPerPool = 100

// scoreGate is the minimum Score a path beyond topPathsPerPool must
// clear to still be considered.
const scoreGate = 0.97

type pathIndex struct {
	byPool map[chain.PoolID][]*chain.SwapPath
}

func newPathIndex() *pathIndex {
	return &pathIndex{byPool: make(map[chain.PoolID][]*chain.SwapPath)}
}

func (idx *pathIndex) get(id chain.PoolID) ([]*chain.SwapPath, bool) {
	p, ok := idx.byPool[id]
	return p, ok
}

func (idx *pathIndex) set(id chain.PoolID, paths []*chain.SwapPath) {
	idx.byPool[id] = paths
}

// buildFullIndex performs a bounded DFS from each basic token,
// recording arbitrage-shaped cycles, and keys the result by every
// pool each discovered path contains (spec.md §4.C).
func buildFullIndex(pools map[chain.PoolID]chain.Pool, adj map[common.Address]map[chain.PoolID]struct{}, basicTokens []common.Address, maxPathLength int) *pathIndex {
	if maxPathLength <= 0 {
		return newPathIndex()
	}

	byPool := make(map[chain.PoolID][]*chain.SwapPath)
	seen := make(map[string]struct{})

	// Deterministic root order: sort basic tokens lexicographically
	// so rebuilding from the same pool set is deterministic
	// (spec.md §8 "rebuilding the path index ... is deterministic").
	roots := append([]common.Address(nil), basicTokens...)
	sort.Slice(roots, func(i, j int) bool { return roots[i].Hex() < roots[j].Hex() })

	for _, root := range roots {
		dfs(pools, adj, root, root, nil, nil, maxPathLength, func(p *chain.SwapPath) {
			key := pathKey(p)
			if _, dup := seen[key]; dup {
				return
			}
			seen[key] = struct{}{}
			for _, pool := range p.Pools {
				byPool[pool.ID()] = append(byPool[pool.ID()], p)
			}
		})
	}

	for id, paths := range byPool {
		byPool[id] = filterAndSort(paths)
	}
	return &pathIndex{byPool: byPool}
}

// dfsPathsThroughPool is the on-demand variant of buildFullIndex
// restricted to paths passing through a single pool, used when a
// touched pool is unknown to the index (§4.E step 1).
func dfsPathsThroughPool(pools map[chain.PoolID]chain.Pool, adj map[common.Address]map[chain.PoolID]struct{}, basicTokens []common.Address, target chain.PoolID, maxPathLength int) []*chain.SwapPath {
	if maxPathLength <= 0 {
		return nil
	}
	var found []*chain.SwapPath
	seen := make(map[string]struct{})

	roots := append([]common.Address(nil), basicTokens...)
	sort.Slice(roots, func(i, j int) bool { return roots[i].Hex() < roots[j].Hex() })

	for _, root := range roots {
		dfs(pools, adj, root, root, nil, nil, maxPathLength, func(p *chain.SwapPath) {
			if !p.ContainsPool(target) {
				return
			}
			key := pathKey(p)
			if _, dup := seen[key]; dup {
				return
			}
			seen[key] = struct{}{}
			found = append(found, p)
		})
	}
	return filterAndSort(found)
}

// dfs walks the pool graph from cur back toward root, bounded by
// maxHops, invoking emit for every arbitrage-shaped cycle found
// (cur == root with >= 3 hops). usedPools prevents revisiting the
// same pool twice within one path.
func dfs(
	pools map[chain.PoolID]chain.Pool,
	adj map[common.Address]map[chain.PoolID]struct{},
	root, cur common.Address,
	tokenPath []common.Address,
	poolPath []chain.Pool,
	maxHops int,
	emit func(*chain.SwapPath),
) {
	tokenPath = append(tokenPath, cur)

	if len(poolPath) >= 3 && cur == root {
		path, err := chain.NewSwapPath(tokenPath, poolPath)
		if err == nil && path.IsArbitrageShaped() {
			emit(path)
		}
		// Continuing past a completed cycle would only produce
		// longer, non-simple cycles; stop here.
		return
	}
	if len(poolPath) >= maxHops {
		return
	}

	// Deterministic neighbor order.
	neighborPools := make([]chain.PoolID, 0, len(adj[cur]))
	for id := range adj[cur] {
		neighborPools = append(neighborPools, id)
	}
	sort.Slice(neighborPools, func(i, j int) bool { return neighborPools[i].String() < neighborPools[j].String() })

	for _, pid := range neighborPools {
		if containsPoolID(poolPath, pid) {
			continue
		}
		pool, ok := pools[pid]
		if !ok || pool.Disabled() {
			continue
		}
		toks := pool.Tokens()
		var next common.Address
		switch cur {
		case toks[0]:
			next = toks[1]
		case toks[1]:
			next = toks[0]
		default:
			continue
		}
		if next != root && len(poolPath)+1 >= maxHops {
			// Only the closing hop back to root is allowed at the
			// final depth.
			continue
		}
		dfs(pools, adj, root, next, tokenPath, append(poolPath, pool), maxHops, emit)
	}
}

func containsPoolID(pools []chain.Pool, id chain.PoolID) bool {
	for _, p := range pools {
		if p.ID() == id {
			return true
		}
	}
	return false
}

func pathKey(p *chain.SwapPath) string {
	s := ""
	for _, id := range p.PoolIDs() {
		s += id.String() + ","
	}
	return s
}

// filterAndSort applies the §4.C tie-break ordering (score desc,
// hop-count asc, pool-id lex) and the first-100-then-score-gate
// filter.
func filterAndSort(paths []*chain.SwapPath) []*chain.SwapPath {
	sort.SliceStable(paths, func(i, j int) bool {
		if paths[i].Score != paths[j].Score {
			return paths[i].Score > paths[j].Score
		}
		if paths[i].HopCount() != paths[j].HopCount() {
			return paths[i].HopCount() < paths[j].HopCount()
		}
		return lexPoolIDs(paths[i]) < lexPoolIDs(paths[j])
	})

	out := make([]*chain.SwapPath, 0, len(paths))
	for i, p := range paths {
		if i < topPathsPerPool || p.Score > scoreGate {
			out = append(out, p)
		}
	}
	return out
}

func lexPoolIDs(p *chain.SwapPath) string {
	return pathKey(p)
}
