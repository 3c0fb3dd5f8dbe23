// Package ledger implements the supply-capped issuance ledger for the single
// sovereign token class.
//
// A Ledger enforces a hard global cap of SupplyCap units across single and
// batch mints, keeps a running total, and latches a first-participation
// timestamp (the sovereign proof) for every recipient the first time it is
// credited. Balances are kept by a TokenStore the ledger consumes; persistence
// and transactional isolation come from a Store:
//   - store.MemoryStore: in-process, for tests and development.
//   - store.PostgresStore: durable, for production use.
//
// Every mutating operation runs in a single Store.Update transaction and is
// all-or-nothing. Notifications are delivered only after the transaction commits.
package ledger

import "strconv"

const (
	// SupplyCap is the maximum number of units that can ever be minted.
	SupplyCap uint64 = 144_000

	// TokenID identifies the one token class this ledger issues.
	TokenID uint64 = 1

	// ReferenceEpoch (2025-01-01T00:00:00Z) is the fixed origin used to report
	// a proof's signed offset. It plays no part in validation.
	ReferenceEpoch int64 = 1_735_689_600
)

// FormatURI builds the metadata URI for id: base + decimal(id) + ".json".
func FormatURI(base string, id uint64) string {
	return base + strconv.FormatUint(id, 10) + ".json"
}
