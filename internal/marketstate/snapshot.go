package marketstate

import (
	"encoding/binary"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// SnapshotStore persists a MarketState mirror to an on-disk pebble
// database, keyed by the client's configured db_path (spec.md §6
// clients.*.db_path). This is a convenience, not a requirement: the
// mirror is fully reconstructable from the node with or without a
// store (spec.md §6 "Persisted state: none required by the core");
// a configured db_path only lets a restart skip re-deriving the
// mirror from scratch before the first block tick.
type SnapshotStore struct {
	db *pebble.DB
}

// OpenSnapshotStore opens (creating if absent) a pebble database at
// path.
func OpenSnapshotStore(path string) (*SnapshotStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("marketstate: open snapshot store %s: %w", path, err)
	}
	return &SnapshotStore{db: db}, nil
}

// Close releases the underlying pebble handle.
func (s *SnapshotStore) Close() error {
	return s.db.Close()
}

const (
	snapshotAccountPrefix byte = 'a'
	snapshotStoragePrefix byte = 's'
)

func snapshotAccountKey(addr common.Address) []byte {
	key := make([]byte, 0, 1+common.AddressLength)
	key = append(key, snapshotAccountPrefix)
	return append(key, addr.Bytes()...)
}

func snapshotStorageKey(addr common.Address, slot common.Hash) []byte {
	key := make([]byte, 0, 1+common.AddressLength+common.HashLength)
	key = append(key, snapshotStoragePrefix)
	key = append(key, addr.Bytes()...)
	return append(key, slot.Bytes()...)
}

// Save writes the entire mirrored state to store as a single atomic
// batch, mirroring the all-or-nothing Commit contract (spec.md §3
// "MarketState is transactional").
func (m *MarketState) Save(store *SnapshotStore) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	batch := store.db.NewBatch()
	defer batch.Close()

	for addr, acc := range m.accounts {
		if err := batch.Set(snapshotAccountKey(addr), encodeSnapshotAccount(acc), nil); err != nil {
			return fmt.Errorf("marketstate: save account %s: %w", addr, err)
		}
	}
	for key, v := range m.storage {
		if err := batch.Set(snapshotStorageKey(key.addr, key.slot), v.Bytes(), nil); err != nil {
			return fmt.Errorf("marketstate: save storage %s/%s: %w", key.addr, key.slot, err)
		}
	}
	return batch.Commit(pebble.Sync)
}

// Load replaces m's in-memory mirror with the contents of store. It
// is meant to run once at startup, before any actor observes m, and
// is a no-op over an empty store.
func (m *MarketState) Load(store *SnapshotStore) error {
	iter, err := store.db.NewIter(nil)
	if err != nil {
		return fmt.Errorf("marketstate: load snapshot: %w", err)
	}
	defer iter.Close()

	accounts := make(map[common.Address]AccountInfo)
	storage := make(map[storageKey]common.Hash)

	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		if len(key) == 0 {
			continue
		}
		switch key[0] {
		case snapshotAccountPrefix:
			addr := common.BytesToAddress(key[1:])
			accounts[addr] = decodeSnapshotAccount(iter.Value())
		case snapshotStoragePrefix:
			addr := common.BytesToAddress(key[1 : 1+common.AddressLength])
			slot := common.BytesToHash(key[1+common.AddressLength:])
			storage[storageKey{addr: addr, slot: slot}] = common.BytesToHash(iter.Value())
		}
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("marketstate: load snapshot: %w", err)
	}

	m.mu.Lock()
	m.accounts = accounts
	m.storage = storage
	m.hot.Purge()
	m.mu.Unlock()
	return nil
}

func encodeSnapshotAccount(acc AccountInfo) []byte {
	buf := make([]byte, 8, 40)
	binary.BigEndian.PutUint64(buf, acc.Nonce)
	if acc.Balance != nil {
		buf = append(buf, acc.Balance.Bytes()...)
	}
	return buf
}

func decodeSnapshotAccount(b []byte) AccountInfo {
	if len(b) < 8 {
		return AccountInfo{}
	}
	acc := AccountInfo{Nonce: binary.BigEndian.Uint64(b[:8]), Balance: new(uint256.Int)}
	if len(b) > 8 {
		acc.Balance.SetBytes(b[8:])
	}
	return acc
}
