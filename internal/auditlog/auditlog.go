// Package auditlog keeps a hash-chained, append-only record of committed
// ledger notifications.
//
// The chain starts with a genesis entry whose Hash is GenesisHash (64 hex
// zeros). Each later entry stores the hash of its predecessor, so Verify
// detects any rewritten or reordered row.
//
// Two implementations of the Log interface are provided:
//   - MemoryLog: in-process, for tests and the memory-backed ledgerd.
//   - PostgresLog: durable, next to the PostgreSQL ledger store.
package auditlog

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get for an index outside the chain.
var ErrNotFound = errors.New("audit entry not found")

// Log is the append-only audit chain.
type Log interface {
	// Append chains a new entry. payload is JSON-marshalled and its SHA-256
	// is stored as DataHash.
	Append(ctx context.Context, kind, subject, actor string, payload any) (*Entry, error)

	// Get returns the entry at the given zero-based index.
	Get(ctx context.Context, index int) (*Entry, error)

	// Len returns the number of entries, genesis included.
	Len(ctx context.Context) (int, error)

	// Verify walks the chain and returns nil if every hash is consistent.
	Verify(ctx context.Context) error

	// Root returns the hash of the newest entry.
	Root(ctx context.Context) (string, error)
}
