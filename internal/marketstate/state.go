// Package marketstate implements the mirrored, content-addressed EVM
// account/storage view used for opportunity simulation (spec.md §3
// MarketState), independent of the node's canonical state. It follows
// the shape of go-ethereum's state.StateDB/Database split: a
// read-locked base store plus per-opportunity overlays layered on
// top, but trimmed to the subset (accounts, storage slots, commit/
// diff/invert) the searcher and state-change processors need.
package marketstate

import (
	"encoding/binary"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	lru "github.com/hashicorp/golang-lru"
)

// AccountInfo mirrors the account-level fields the pipeline cares
// about; it intentionally omits code (pools are addressed by
// contract, never executed as general bytecode by this mirror).
type AccountInfo struct {
	Nonce   uint64
	Balance *uint256.Int
}

func (a AccountInfo) clone() AccountInfo {
	if a.Balance == nil {
		return a
	}
	return AccountInfo{Nonce: a.Nonce, Balance: new(uint256.Int).Set(a.Balance)}
}

type storageKey struct {
	addr common.Address
	slot common.Hash
}

// MarketState is the process-wide mirrored EVM view. All mutation
// goes through Commit, which applies a StateDiff transactionally: the
// full diff applies, or none of it does.
type MarketState struct {
	mu sync.RWMutex

	accounts map[common.Address]AccountInfo
	storage  map[storageKey]common.Hash

	// hot cache of recently touched slots, avoiding repeated map
	// lookups under read lock during a single opportunity evaluation
	// (mirrors go-ethereum's per-block trie node cache use of
	// hashicorp/golang-lru).
	hot *lru.Cache
}

// New constructs an empty MarketState with the given hot-cache size.
func New(hotCacheSize int) *MarketState {
	if hotCacheSize <= 0 {
		hotCacheSize = 4096
	}
	c, _ := lru.New(hotCacheSize)
	return &MarketState{
		accounts: make(map[common.Address]AccountInfo),
		storage:  make(map[storageKey]common.Hash),
		hot:      c,
	}
}

// Account returns the account info at addr, or the zero value if
// unknown.
func (m *MarketState) Account(addr common.Address) AccountInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accounts[addr].clone()
}

// StorageAt returns the storage value at (addr, slot), or the zero
// hash if unset.
func (m *MarketState) StorageAt(addr common.Address, slot common.Hash) common.Hash {
	key := storageKey{addr, slot}
	if v, ok := m.hot.Get(key); ok {
		return v.(common.Hash)
	}
	m.mu.RLock()
	v := m.storage[key]
	m.mu.RUnlock()
	m.hot.Add(key, v)
	return v
}

// BalanceAt returns the account balance at addr, or zero if unknown.
func (m *MarketState) BalanceAt(addr common.Address) *uint256.Int {
	acc := m.Account(addr)
	if acc.Balance == nil {
		return uint256.NewInt(0)
	}
	return acc.Balance
}

// StateDiff is a set of account/storage changes with enough
// information (old+new) to be applied and, symmetrically, inverted.
// It is the payload carried by StateUpdateEvent (§4.D).
type StateDiff struct {
	AccountsOld map[common.Address]AccountInfo
	AccountsNew map[common.Address]AccountInfo
	StorageOld  map[common.Address]map[common.Hash]common.Hash
	StorageNew  map[common.Address]map[common.Hash]common.Hash
}

// NewStateDiff returns an empty, ready-to-populate diff.
func NewStateDiff() *StateDiff {
	return &StateDiff{
		AccountsOld: make(map[common.Address]AccountInfo),
		AccountsNew: make(map[common.Address]AccountInfo),
		StorageOld:  make(map[common.Address]map[common.Hash]common.Hash),
		StorageNew:  make(map[common.Address]map[common.Hash]common.Hash),
	}
}

// SetStorage records a storage change; old must be the value observed
// before this diff's construction began (captured by the caller from
// the same MarketState it will later Commit against).
func (d *StateDiff) SetStorage(addr common.Address, slot common.Hash, old, new common.Hash) {
	if old == new {
		return
	}
	if d.StorageOld[addr] == nil {
		d.StorageOld[addr] = make(map[common.Hash]common.Hash)
		d.StorageNew[addr] = make(map[common.Hash]common.Hash)
	}
	d.StorageOld[addr][slot] = old
	d.StorageNew[addr][slot] = new
}

// SetAccount records an account change.
func (d *StateDiff) SetAccount(addr common.Address, old, new AccountInfo) {
	d.AccountsOld[addr] = old
	d.AccountsNew[addr] = new
}

// TouchedAddresses returns the set of addresses this diff touches,
// via account change or storage change, used by the state-change
// processor to resolve address -> pool id (§4.D).
func (d *StateDiff) TouchedAddresses() []common.Address {
	seen := make(map[common.Address]struct{})
	for a := range d.AccountsNew {
		seen[a] = struct{}{}
	}
	for a := range d.StorageNew {
		seen[a] = struct{}{}
	}
	out := make([]common.Address, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hex() < out[j].Hex() })
	return out
}

// Invert returns the diff that undoes d: applying d then Invert(d)
// restores the original state (spec.md §8 round-trip property).
func (d *StateDiff) Invert() *StateDiff {
	inv := NewStateDiff()
	for addr, old := range d.AccountsOld {
		inv.AccountsOld[addr] = d.AccountsNew[addr]
		inv.AccountsNew[addr] = old
	}
	for addr, slots := range d.StorageOld {
		for slot, old := range slots {
			newV := d.StorageNew[addr][slot]
			inv.SetStorage(addr, slot, newV, old)
		}
	}
	return inv
}

// Commit applies every change in diff. It does not check the diff's
// old values against the current state; the write-lock spans the full
// apply to keep readers from observing a torn state (§5
// shared-resource policy). An account set to zero nonce and zero
// balance, or a slot set to the zero hash, is removed rather than
// stored, so committing a diff and then its Invert restores the
// original Hash.
func (m *MarketState) Commit(diff *StateDiff) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for addr, acc := range diff.AccountsNew {
		if acc.Nonce == 0 && (acc.Balance == nil || acc.Balance.IsZero()) {
			delete(m.accounts, addr)
			continue
		}
		m.accounts[addr] = acc.clone()
	}
	for addr, slots := range diff.StorageNew {
		for slot, v := range slots {
			key := storageKey{addr, slot}
			if v == (common.Hash{}) {
				delete(m.storage, key)
			} else {
				m.storage[key] = v
			}
			m.hot.Remove(key)
		}
	}
}

// Hash returns a deterministic content hash of the entire mirrored
// state, used by tests to check the apply-then-invert round trip.
func (m *MarketState) Hash() common.Hash {
	m.mu.RLock()
	defer m.mu.RUnlock()

	addrs := make([]common.Address, 0, len(m.accounts))
	for a := range m.accounts {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Hex() < addrs[j].Hex() })

	var buf []byte
	for _, a := range addrs {
		acc := m.accounts[a]
		buf = append(buf, a.Bytes()...)
		buf = binary.BigEndian.AppendUint64(buf, acc.Nonce)
		if acc.Balance != nil {
			buf = append(buf, acc.Balance.Bytes()...)
		}
	}

	keys := make([]storageKey, 0, len(m.storage))
	for k := range m.storage {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].addr != keys[j].addr {
			return keys[i].addr.Hex() < keys[j].addr.Hex()
		}
		return keys[i].slot.Hex() < keys[j].slot.Hex()
	})
	for _, k := range keys {
		buf = append(buf, k.addr.Bytes()...)
		buf = append(buf, k.slot.Bytes()...)
		v := m.storage[k]
		buf = append(buf, v.Bytes()...)
	}

	return crypto.Keccak256Hash(buf)
}
