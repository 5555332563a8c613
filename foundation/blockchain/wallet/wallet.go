// Package wallet holds the private keys a node signs blocks with.
package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ardanlabs/dpos/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrNoKey is returned when the wallet does not hold the key of an address.
var ErrNoKey = errors.New("no key for address")

// Wallet is a set of secp256k1 keys indexed by address.
type Wallet struct {
	mu   sync.RWMutex
	keys map[common.Address]*ecdsa.PrivateKey
}

// New constructs an empty wallet.
func New() *Wallet {
	return &Wallet{
		keys: make(map[common.Address]*ecdsa.PrivateKey),
	}
}

// Add stores the key and returns its address.
func (w *Wallet) Add(privateKey *ecdsa.PrivateKey) common.Address {
	addr := crypto.PubkeyToAddress(privateKey.PublicKey)

	w.mu.Lock()
	defer w.mu.Unlock()

	w.keys[addr] = privateKey
	return addr
}

// LoadECDSA reads a hex encoded key file and stores the key.
func (w *Wallet) LoadECDSA(path string) (common.Address, error) {
	privateKey, err := crypto.LoadECDSA(path)
	if err != nil {
		return common.Address{}, fmt.Errorf("load key %s: %w", path, err)
	}
	return w.Add(privateKey), nil
}

// HasKey reports whether the wallet can sign for the address.
func (w *Wallet) HasKey(addr common.Address) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	_, exists := w.keys[addr]
	return exists
}

// Addresses returns the addresses the wallet can sign for in order.
func (w *Wallet) Addresses() []common.Address {
	w.mu.RLock()
	defer w.mu.RUnlock()

	addrs := make([]common.Address, 0, len(w.keys))
	for addr := range w.keys {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Cmp(addrs[j]) < 0 })

	return addrs
}

// PublicKey returns the compressed public key of the address.
func (w *Wallet) PublicKey(addr common.Address) ([]byte, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	privateKey, exists := w.keys[addr]
	if !exists {
		return nil, fmt.Errorf("%s: %w", addr, ErrNoKey)
	}

	return signature.PublicKeyBytes(privateKey.PublicKey), nil
}

// Sign signs the digest with the key of the address.
func (w *Wallet) Sign(addr common.Address, digest common.Hash) ([]byte, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	privateKey, exists := w.keys[addr]
	if !exists {
		return nil, fmt.Errorf("%s: %w", addr, ErrNoKey)
	}

	return signature.Sign(digest, privateKey)
}
