// Package store provides the ledger.Store implementations: an in-memory store
// for tests and single-process development, and a PostgreSQL store for
// durable deployments.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/jmerrifield20/SovereignLedger/internal/ledger"
)

// errReadOnly is returned when a View transaction attempts a write.
var errReadOnly = errors.New("store: write in read-only transaction")

type balanceKey struct {
	addr common.Address
	id   uint64
}

// MemoryStore is an in-memory, thread-safe ledger.Store. Update runs against
// a write overlay that is applied only when the callback returns nil.
type MemoryStore struct {
	mu       sync.RWMutex
	state    *ledger.State
	proofs   map[common.Address]int64
	balances map[balanceKey]*uint256.Int
}

// NewMemoryStore returns an empty MemoryStore. The first ledger.Open writes
// genesis into it.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		proofs:   make(map[common.Address]int64),
		balances: make(map[balanceKey]*uint256.Int),
	}
}

// Update implements ledger.Store.
func (s *MemoryStore) Update(ctx context.Context, fn func(tx ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		base:     s,
		proofs:   make(map[common.Address]int64),
		balances: make(map[balanceKey]*uint256.Int),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if tx.state != nil {
		st := *tx.state
		s.state = &st
	}
	for addr, ts := range tx.proofs {
		s.proofs[addr] = ts
	}
	for k, v := range tx.balances {
		s.balances[k] = v
	}
	return nil
}

// View implements ledger.Store.
func (s *MemoryStore) View(_ context.Context, fn func(tx ledger.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memTx{base: s, readOnly: true})
}

// memTx reads through its overlay to the base store. The caller holds the
// store lock for the lifetime of the transaction.
type memTx struct {
	base     *MemoryStore
	readOnly bool
	state    *ledger.State
	proofs   map[common.Address]int64
	balances map[balanceKey]*uint256.Int
}

func (t *memTx) State(_ context.Context) (ledger.State, error) {
	if t.state != nil {
		return *t.state, nil
	}
	if t.base.state == nil {
		return ledger.State{}, ledger.ErrNoState
	}
	return *t.base.state, nil
}

func (t *memTx) PutState(_ context.Context, st ledger.State) error {
	if t.readOnly {
		return errReadOnly
	}
	t.state = &st
	return nil
}

func (t *memTx) Proof(_ context.Context, addr common.Address) (int64, error) {
	if ts, ok := t.proofs[addr]; ok {
		return ts, nil
	}
	return t.base.proofs[addr], nil
}

func (t *memTx) LatchProof(ctx context.Context, addr common.Address, ts int64) (bool, error) {
	if t.readOnly {
		return false, errReadOnly
	}
	if ts <= 0 {
		return false, fmt.Errorf("latch proof %s: %w", addr.Hex(), ledger.ErrInvalidTimestamp)
	}
	cur, _ := t.Proof(ctx, addr)
	if cur != 0 {
		return false, nil
	}
	t.proofs[addr] = ts
	return true, nil
}

func (t *memTx) Credit(ctx context.Context, to common.Address, id uint64, amount *uint256.Int) error {
	if t.readOnly {
		return errReadOnly
	}
	cur, _ := t.BalanceOf(ctx, to, id)
	// Balances never exceed ledger.SupplyCap, so Add cannot wrap.
	t.balances[balanceKey{to, id}] = new(uint256.Int).Add(cur, amount)
	return nil
}

func (t *memTx) BalanceOf(_ context.Context, addr common.Address, id uint64) (*uint256.Int, error) {
	k := balanceKey{addr, id}
	if v, ok := t.balances[k]; ok {
		return v.Clone(), nil
	}
	if v, ok := t.base.balances[k]; ok {
		return v.Clone(), nil
	}
	return new(uint256.Int), nil
}
