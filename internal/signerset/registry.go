package signerset

import (
	"crypto/ecdsa"
	"errors"
	"math/rand"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var errUnknownSigner = errors.New("signerset: unknown signer address")
var errNoSignersRegistered = errors.New("signerset: no signers registered")

// Registry holds the process's configured EOAs and their private
// keys, decrypted once at startup via Keystore (spec.md §6, §9
// "signer registry... shared cell"). Never logs or exposes raw key
// material beyond Sign.
type Registry struct {
	mu   sync.RWMutex
	keys map[common.Address]*ecdsa.PrivateKey
	pool []common.Address // stable iteration order for random pick
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{keys: make(map[common.Address]*ecdsa.PrivateKey)}
}

// AddFromEncrypted decrypts encKey with ks and registers the
// resulting signer, returning its address.
func (r *Registry) AddFromEncrypted(ks *Keystore, encKey []byte) (common.Address, error) {
	raw, err := ks.Decrypt(encKey)
	if err != nil {
		return common.Address{}, err
	}
	priv, err := crypto.ToECDSA(raw)
	if err != nil {
		return common.Address{}, err
	}
	addr := crypto.PubkeyToAddress(priv.PublicKey)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.keys[addr]; !exists {
		r.pool = append(r.pool, addr)
	}
	r.keys[addr] = priv
	return addr, nil
}

// Random returns an arbitrary registered signer, used when the
// pipeline has no explicit EOA preference (spec.md §4.G step 1).
func (r *Registry) Random() (common.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.pool) == 0 {
		return common.Address{}, errNoSignersRegistered
	}
	return r.pool[rand.Intn(len(r.pool))], nil
}

// SignTx produces a signed transaction for addr using signer, or
// errUnknownSigner if addr is not registered.
func (r *Registry) SignTx(addr common.Address, tx *types.Transaction, signer types.Signer) (*types.Transaction, error) {
	r.mu.RLock()
	priv, ok := r.keys[addr]
	r.mu.RUnlock()
	if !ok {
		return nil, errUnknownSigner
	}
	return types.SignTx(tx, signer, priv)
}
