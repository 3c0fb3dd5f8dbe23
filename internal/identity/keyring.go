package identity

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidKey is returned when an API key does not match its address.
var ErrInvalidKey = errors.New("invalid address or api key")

// KeyRing maps addresses to bcrypt hashes of their API keys. A caller proves
// control of an address by presenting the key, and receives a caller token.
type KeyRing struct {
	mu     sync.RWMutex
	hashes map[common.Address][]byte
}

// NewKeyRing returns an empty KeyRing.
func NewKeyRing() *KeyRing {
	return &KeyRing{hashes: make(map[common.Address][]byte)}
}

// Add registers the bcrypt hash of addr's API key.
func (k *KeyRing) Add(addr common.Address, hash string) error {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return fmt.Errorf("key hash for %s: %w", addr.Hex(), err)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.hashes[addr] = []byte(hash)
	return nil
}

// Len returns the number of registered addresses.
func (k *KeyRing) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.hashes)
}

// Verify returns nil if key is the API key registered for addr.
func (k *KeyRing) Verify(addr common.Address, key string) error {
	k.mu.RLock()
	hash, ok := k.hashes[addr]
	k.mu.RUnlock()
	if !ok {
		// Compare anyway so unknown addresses cost the same as wrong keys.
		_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(key))
		return ErrInvalidKey
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(key)); err != nil {
		return ErrInvalidKey
	}
	return nil
}

// HashKey returns the bcrypt hash of an API key, for use in configuration.
func HashKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash key: %w", err)
	}
	return string(hash), nil
}

// dummyHash returns a bcrypt hash at the default cost that no caller knows
// the key for.
var dummyHash = sync.OnceValue(func() []byte {
	h, _ := bcrypt.GenerateFromPassword([]byte("sovereign-ledger-unknown-address"), bcrypt.DefaultCost)
	return h
})
