package ledger

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// Sentinel errors for ledger operations. Each one aborts the operation with no
// state change.
var (
	ErrUnauthorized      = errors.New("caller is not the ledger owner")
	ErrMintingDisabled   = errors.New("minting is disabled")
	ErrZeroAddress       = errors.New("recipient is the zero address")
	ErrSupplyCapExceeded = errors.New("supply cap exceeded")
	ErrLengthMismatch    = errors.New("recipients and amounts differ in length")

	// ErrInvalidTimestamp is returned when the clock reads at or before the
	// Unix epoch and a proof would be indistinguishable from "unset".
	ErrInvalidTimestamp = errors.New("proof timestamp must be after the Unix epoch")

	// ErrNoState is returned by a Tx whose store has never been initialised.
	ErrNoState = errors.New("ledger state not initialised")
)

// SupplyCapError carries the figures behind an ErrSupplyCapExceeded rejection.
// Requested is nil when the requested amounts overflow 256 bits.
type SupplyCapError struct {
	Requested *uint256.Int
	Minted    uint64
	Remaining uint64
}

func (e *SupplyCapError) Error() string {
	if e.Requested == nil {
		return fmt.Sprintf("%s: requested amount overflows (minted %d, remaining %d)",
			ErrSupplyCapExceeded, e.Minted, e.Remaining)
	}
	return fmt.Sprintf("%s: requested %s, minted %d, remaining %d",
		ErrSupplyCapExceeded, e.Requested.Dec(), e.Minted, e.Remaining)
}

// Unwrap lets errors.Is match ErrSupplyCapExceeded.
func (e *SupplyCapError) Unwrap() error { return ErrSupplyCapExceeded }
