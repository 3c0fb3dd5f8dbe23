package ledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// MintingProgress returns the minted, remaining and cap figures.
func (l *Ledger) MintingProgress(ctx context.Context) (Progress, error) {
	st, err := l.State(ctx)
	if err != nil {
		return Progress{}, err
	}
	return progressOf(st.TotalMinted), nil
}

// SovereignProof returns the proof timestamp of addr, its offset from
// ReferenceEpoch and the current balance of TokenID.
func (l *Ledger) SovereignProof(ctx context.Context, addr common.Address) (Proof, error) {
	var p Proof
	err := l.store.View(ctx, func(tx Tx) error {
		ts, err := l.proofIn(ctx, tx, addr)
		if err != nil {
			return err
		}
		bal, err := tx.BalanceOf(ctx, addr, TokenID)
		if err != nil {
			return fmt.Errorf("balance of %s: %w", addr.Hex(), err)
		}
		p = Proof{Address: addr, Timestamp: ts, Delta: ts - ReferenceEpoch, Balance: bal}
		return nil
	})
	if err != nil {
		return Proof{}, err
	}
	return p, nil
}

// IsValidated reports whether addr has ever been credited.
func (l *Ledger) IsValidated(ctx context.Context, addr common.Address) (bool, error) {
	var ts int64
	err := l.store.View(ctx, func(tx Tx) error {
		var err error
		ts, err = l.proofIn(ctx, tx, addr)
		return err
	})
	if err != nil {
		return false, err
	}
	return ts != 0, nil
}

// BalanceOf returns the TokenID balance of addr.
func (l *Ledger) BalanceOf(ctx context.Context, addr common.Address) (*uint256.Int, error) {
	var bal *uint256.Int
	err := l.store.View(ctx, func(tx Tx) error {
		var err error
		bal, err = tx.BalanceOf(ctx, addr, TokenID)
		if err != nil {
			return fmt.Errorf("balance of %s: %w", addr.Hex(), err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bal, nil
}

// URI returns the metadata URI of token id under the current base URI.
func (l *Ledger) URI(ctx context.Context, id uint64) (string, error) {
	st, err := l.State(ctx)
	if err != nil {
		return "", err
	}
	return FormatURI(st.BaseURI, id), nil
}

// ContractURI returns the contract-level metadata URI.
func (l *Ledger) ContractURI(ctx context.Context) (string, error) {
	st, err := l.State(ctx)
	if err != nil {
		return "", err
	}
	return st.ContractURI, nil
}

// State returns a snapshot of the singleton state.
func (l *Ledger) State(ctx context.Context) (State, error) {
	var st State
	err := l.store.View(ctx, func(tx Tx) error {
		var err error
		st, err = tx.State(ctx)
		if err != nil {
			return fmt.Errorf("load state: %w", err)
		}
		return nil
	})
	return st, err
}

// proofIn reads a proof through the cache. Only latched proofs are cached
// since they never change once set.
func (l *Ledger) proofIn(ctx context.Context, tx Tx, addr common.Address) (int64, error) {
	if l.proofs != nil {
		if ts, ok := l.proofs.Get(addr); ok {
			return ts, nil
		}
	}
	ts, err := tx.Proof(ctx, addr)
	if err != nil {
		return 0, fmt.Errorf("proof of %s: %w", addr.Hex(), err)
	}
	if ts != 0 && l.proofs != nil {
		l.proofs.Add(addr, ts)
	}
	return ts, nil
}
