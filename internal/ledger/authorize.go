package ledger

import "github.com/ethereum/go-ethereum/common"

// Authorize returns ErrUnauthorized unless caller is owner.
// The zero address never authorizes, even against a zero owner.
func Authorize(owner, caller common.Address) error {
	if caller == (common.Address{}) || caller != owner {
		return ErrUnauthorized
	}
	return nil
}
