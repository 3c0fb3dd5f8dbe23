package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// TokenStore is the balance primitive the ledger credits. Transfer and
// approval entry points live with the store implementation, not here.
type TokenStore interface {
	// Credit adds amount units of token id to the balance of to.
	Credit(ctx context.Context, to common.Address, id uint64, amount *uint256.Int) error

	// BalanceOf returns the balance of addr for token id; zero when unknown.
	BalanceOf(ctx context.Context, addr common.Address, id uint64) (*uint256.Int, error)
}

// Tx is a store transaction. Writes become visible to other transactions only
// when the enclosing Update returns nil.
type Tx interface {
	TokenStore

	// State returns the singleton state, or ErrNoState before genesis.
	State(ctx context.Context) (State, error)

	// PutState replaces the singleton state.
	PutState(ctx context.Context, s State) error

	// Proof returns the latched proof timestamp of addr, or 0 when unset.
	Proof(ctx context.Context, addr common.Address) (int64, error)

	// LatchProof sets the proof of addr to ts only if it is unset, and
	// reports whether it did.
	LatchProof(ctx context.Context, addr common.Address, ts int64) (bool, error)
}

// Store persists ledger state, proofs and balances.
// Both store.MemoryStore and store.PostgresStore implement this interface.
type Store interface {
	// Update runs fn in a read-write transaction. If fn returns an error
	// every write it made is discarded and the error is returned unchanged.
	Update(ctx context.Context, fn func(tx Tx) error) error

	// View runs fn in a read-only transaction.
	View(ctx context.Context, fn func(tx Tx) error) error
}
