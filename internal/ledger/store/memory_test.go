package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmerrifield20/SovereignLedger/internal/ledger"
	"github.com/jmerrifield20/SovereignLedger/internal/ledger/store"
)

var (
	ctx   = context.Background()
	owner = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	alice = common.HexToAddress("0x000000000000000000000000000000000000a11c")
)

func TestMemoryStore_noStateBeforeGenesis(t *testing.T) {
	s := store.NewMemoryStore()
	err := s.View(ctx, func(tx ledger.Tx) error {
		_, err := tx.State(ctx)
		return err
	})
	require.ErrorIs(t, err, ledger.ErrNoState)
}

func TestMemoryStore_updateCommits(t *testing.T) {
	s := store.NewMemoryStore()
	require.NoError(t, s.Update(ctx, func(tx ledger.Tx) error {
		if err := tx.PutState(ctx, ledger.State{Owner: owner, TotalMinted: 7}); err != nil {
			return err
		}
		if err := tx.Credit(ctx, alice, ledger.TokenID, uint256.NewInt(7)); err != nil {
			return err
		}
		_, err := tx.LatchProof(ctx, alice, 100)
		return err
	}))

	require.NoError(t, s.View(ctx, func(tx ledger.Tx) error {
		st, err := tx.State(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(7), st.TotalMinted)

		bal, err := tx.BalanceOf(ctx, alice, ledger.TokenID)
		require.NoError(t, err)
		assert.Equal(t, "7", bal.Dec())

		other, err := tx.BalanceOf(ctx, alice, ledger.TokenID+1)
		require.NoError(t, err)
		assert.True(t, other.IsZero())

		ts, err := tx.Proof(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, int64(100), ts)
		return nil
	}))
}

func TestMemoryStore_failedUpdateDiscardsWrites(t *testing.T) {
	s := store.NewMemoryStore()
	boom := errors.New("boom")

	err := s.Update(ctx, func(tx ledger.Tx) error {
		_ = tx.PutState(ctx, ledger.State{Owner: owner})
		_ = tx.Credit(ctx, alice, ledger.TokenID, uint256.NewInt(5))
		_, _ = tx.LatchProof(ctx, alice, 100)
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, s.View(ctx, func(tx ledger.Tx) error {
		_, err := tx.State(ctx)
		assert.ErrorIs(t, err, ledger.ErrNoState)

		bal, err := tx.BalanceOf(ctx, alice, ledger.TokenID)
		require.NoError(t, err)
		assert.True(t, bal.IsZero())

		ts, err := tx.Proof(ctx, alice)
		require.NoError(t, err)
		assert.Zero(t, ts)
		return nil
	}))
}

func TestMemoryStore_latchOnlyOnce(t *testing.T) {
	s := store.NewMemoryStore()
	require.NoError(t, s.Update(ctx, func(tx ledger.Tx) error {
		set, err := tx.LatchProof(ctx, alice, 100)
		require.NoError(t, err)
		assert.True(t, set)

		// Reads see the uncommitted overlay.
		set, err = tx.LatchProof(ctx, alice, 200)
		require.NoError(t, err)
		assert.False(t, set)
		return nil
	}))

	require.NoError(t, s.Update(ctx, func(tx ledger.Tx) error {
		set, err := tx.LatchProof(ctx, alice, 300)
		require.NoError(t, err)
		assert.False(t, set)

		ts, err := tx.Proof(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, int64(100), ts)
		return nil
	}))
}

func TestMemoryStore_viewIsReadOnly(t *testing.T) {
	s := store.NewMemoryStore()
	err := s.View(ctx, func(tx ledger.Tx) error {
		return tx.Credit(ctx, alice, ledger.TokenID, uint256.NewInt(1))
	})
	require.Error(t, err)
}

func TestMemoryStore_balanceIsCopied(t *testing.T) {
	s := store.NewMemoryStore()
	require.NoError(t, s.Update(ctx, func(tx ledger.Tx) error {
		return tx.Credit(ctx, alice, ledger.TokenID, uint256.NewInt(9))
	}))

	require.NoError(t, s.View(ctx, func(tx ledger.Tx) error {
		bal, _ := tx.BalanceOf(ctx, alice, ledger.TokenID)
		bal.SetUint64(0)
		again, _ := tx.BalanceOf(ctx, alice, ledger.TokenID)
		assert.Equal(t, "9", again.Dec())
		return nil
	}))
}

func TestMemoryStore_latchRejectsUnsetTimestamp(t *testing.T) {
	s := store.NewMemoryStore()
	err := s.Update(ctx, func(tx ledger.Tx) error {
		_, err := tx.LatchProof(ctx, alice, 0)
		return err
	})
	require.ErrorIs(t, err, ledger.ErrInvalidTimestamp)

	require.NoError(t, s.View(ctx, func(tx ledger.Tx) error {
		ts, err := tx.Proof(ctx, alice)
		require.NoError(t, err)
		assert.Zero(t, ts)
		return nil
	}))
}
