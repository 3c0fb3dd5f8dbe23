package store_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jmerrifield20/SovereignLedger/internal/ledger"
	"github.com/jmerrifield20/SovereignLedger/internal/ledger/store"
)

// newPostgresStore returns a PostgresStore on a throwaway schema. The test is
// skipped unless DATABASE_URL points at a reachable database.
func newPostgresStore(t *testing.T) *store.PostgresStore {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set")
	}

	admin, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(admin.Close)
	if err := admin.Ping(ctx); err != nil {
		t.Skipf("postgres unreachable: %v", err)
	}

	schema := fmt.Sprintf("ledger_store_test_%d", time.Now().UnixNano())
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = admin.Exec(ctx, "DROP SCHEMA "+schema+" CASCADE")
	})

	cfg, err := pgxpool.ParseConfig(dbURL)
	require.NoError(t, err)
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	ddl, err := os.ReadFile(filepath.Join("..", "..", "..", "migrations", "001_init.up.sql"))
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(ddl))
	require.NoError(t, err)

	return store.NewPostgresStore(pool, zap.NewNop())
}

func TestPostgresStore_noStateBeforeGenesis(t *testing.T) {
	s := newPostgresStore(t)
	err := s.View(ctx, func(tx ledger.Tx) error {
		_, err := tx.State(ctx)
		return err
	})
	require.ErrorIs(t, err, ledger.ErrNoState)
}

func TestPostgresStore_stateRoundTrip(t *testing.T) {
	s := newPostgresStore(t)
	want := ledger.State{
		Owner:          owner,
		TotalMinted:    42,
		MintingEnabled: true,
		BaseURI:        "ipfs://X/",
		ContractURI:    "ipfs://X/contract.json",
	}
	require.NoError(t, s.Update(ctx, func(tx ledger.Tx) error { return tx.PutState(ctx, want) }))

	want.MintingEnabled = false
	require.NoError(t, s.Update(ctx, func(tx ledger.Tx) error { return tx.PutState(ctx, want) }))

	require.NoError(t, s.View(ctx, func(tx ledger.Tx) error {
		got, err := tx.State(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		return nil
	}))
}

func TestPostgresStore_latchOnlyOnce(t *testing.T) {
	s := newPostgresStore(t)
	require.NoError(t, s.Update(ctx, func(tx ledger.Tx) error {
		set, err := tx.LatchProof(ctx, alice, 100)
		require.NoError(t, err)
		assert.True(t, set)

		set, err = tx.LatchProof(ctx, alice, 200)
		require.NoError(t, err)
		assert.False(t, set)
		return nil
	}))

	require.NoError(t, s.Update(ctx, func(tx ledger.Tx) error {
		set, err := tx.LatchProof(ctx, alice, 300)
		require.NoError(t, err)
		assert.False(t, set)
		return nil
	}))

	require.NoError(t, s.View(ctx, func(tx ledger.Tx) error {
		ts, err := tx.Proof(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, int64(100), ts)

		unset, err := tx.Proof(ctx, owner)
		require.NoError(t, err)
		assert.Zero(t, unset)
		return nil
	}))
}

func TestPostgresStore_balanceNumericRoundTrip(t *testing.T) {
	s := newPostgresStore(t)
	big := new(uint256.Int).Lsh(uint256.NewInt(1), 200)

	require.NoError(t, s.Update(ctx, func(tx ledger.Tx) error {
		if err := tx.Credit(ctx, alice, ledger.TokenID, big); err != nil {
			return err
		}
		return tx.Credit(ctx, alice, ledger.TokenID, uint256.NewInt(7))
	}))

	require.NoError(t, s.View(ctx, func(tx ledger.Tx) error {
		bal, err := tx.BalanceOf(ctx, alice, ledger.TokenID)
		require.NoError(t, err)
		want := new(uint256.Int).Add(big, uint256.NewInt(7))
		assert.Equal(t, want.Dec(), bal.Dec())

		other, err := tx.BalanceOf(ctx, alice, ledger.TokenID+1)
		require.NoError(t, err)
		assert.True(t, other.IsZero())
		return nil
	}))
}

func TestPostgresStore_failedUpdateRollsBack(t *testing.T) {
	s := newPostgresStore(t)
	boom := errors.New("boom")

	err := s.Update(ctx, func(tx ledger.Tx) error {
		require.NoError(t, tx.PutState(ctx, ledger.State{Owner: owner, TotalMinted: 5}))
		require.NoError(t, tx.Credit(ctx, alice, ledger.TokenID, uint256.NewInt(5)))
		_, err := tx.LatchProof(ctx, alice, 100)
		require.NoError(t, err)
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

func TestPostgresStore_rejectsUnsetTimestamp(t *testing.T) {
	s := newPostgresStore(t)
	err := s.Update(ctx, func(tx ledger.Tx) error {
		_, err := tx.LatchProof(ctx, alice, 0)
		return err
	})
	require.ErrorIs(t, err, ledger.ErrInvalidTimestamp)
}

func TestPostgresStore_viewIsReadOnly(t *testing.T) {
	s := newPostgresStore(t)
	err := s.View(ctx, func(tx ledger.Tx) error {
		return tx.Credit(ctx, alice, ledger.TokenID, uint256.NewInt(1))
	})
	require.Error(t, err)
}
