package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/jmerrifield20/SovereignLedger/internal/ledger"
)

// advisoryLockKey serialises ledger mutations across every ledgerd instance
// sharing the database.
const advisoryLockKey = int64(1_440_000_001)

// PostgresStore persists ledger state, proofs and balances in PostgreSQL.
// Tables are created by the migrations in migrations/.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// Update implements ledger.Store. fn runs inside one transaction holding a
// transaction-scoped advisory lock.
func (s *PostgresStore) Update(ctx context.Context, fn func(tx ledger.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	s.logger.Debug("ledger tx committed")
	return nil
}

// View implements ledger.Store.
func (s *PostgresStore) View(ctx context.Context, fn func(tx ledger.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) State(ctx context.Context) (ledger.State, error) {
	var (
		st    ledger.State
		owner []byte
	)
	err := t.tx.QueryRow(ctx,
		`SELECT owner, total_minted, minting_enabled, base_uri, contract_uri
		 FROM ledger_state WHERE id = 1`,
	).Scan(&owner, &st.TotalMinted, &st.MintingEnabled, &st.BaseURI, &st.ContractURI)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.State{}, ledger.ErrNoState
	}
	if err != nil {
		return ledger.State{}, fmt.Errorf("select ledger_state: %w", err)
	}
	st.Owner = common.BytesToAddress(owner)
	return st, nil
}

func (t *pgTx) PutState(ctx context.Context, st ledger.State) error {
	if _, err := t.tx.Exec(ctx,
		`INSERT INTO ledger_state (id, owner, total_minted, minting_enabled, base_uri, contract_uri, updated_at)
		 VALUES (1, $1, $2, $3, $4, $5, NOW())
		 ON CONFLICT (id) DO UPDATE SET
		   owner           = EXCLUDED.owner,
		   total_minted    = EXCLUDED.total_minted,
		   minting_enabled = EXCLUDED.minting_enabled,
		   base_uri        = EXCLUDED.base_uri,
		   contract_uri    = EXCLUDED.contract_uri,
		   updated_at      = NOW()`,
		st.Owner.Bytes(), int64(st.TotalMinted), st.MintingEnabled, st.BaseURI, st.ContractURI,
	); err != nil {
		return fmt.Errorf("upsert ledger_state: %w", err)
	}
	return nil
}

func (t *pgTx) Proof(ctx context.Context, addr common.Address) (int64, error) {
	var ts int64
	err := t.tx.QueryRow(ctx,
		`SELECT proof_ts FROM sovereign_proofs WHERE address = $1`, addr.Bytes(),
	).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("select proof: %w", err)
	}
	return ts, nil
}

func (t *pgTx) LatchProof(ctx context.Context, addr common.Address, ts int64) (bool, error) {
	if ts <= 0 {
		return false, fmt.Errorf("latch proof %s: %w", addr.Hex(), ledger.ErrInvalidTimestamp)
	}
	tag, err := t.tx.Exec(ctx,
		`INSERT INTO sovereign_proofs (address, proof_ts) VALUES ($1, $2)
		 ON CONFLICT (address) DO NOTHING`,
		addr.Bytes(), ts,
	)
	if err != nil {
		return false, fmt.Errorf("insert proof: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) Credit(ctx context.Context, to common.Address, id uint64, amount *uint256.Int) error {
	if _, err := t.tx.Exec(ctx,
		`INSERT INTO token_balances (address, token_id, amount) VALUES ($1, $2, $3::text::numeric)
		 ON CONFLICT (address, token_id) DO UPDATE SET amount = token_balances.amount + EXCLUDED.amount`,
		to.Bytes(), int64(id), amount.Dec(),
	); err != nil {
		return fmt.Errorf("credit balance: %w", err)
	}
	return nil
}

func (t *pgTx) BalanceOf(ctx context.Context, addr common.Address, id uint64) (*uint256.Int, error) {
	var raw string
	err := t.tx.QueryRow(ctx,
		`SELECT amount::text FROM token_balances WHERE address = $1 AND token_id = $2`,
		addr.Bytes(), int64(id),
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("select balance: %w", err)
	}
	bal, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, fmt.Errorf("parse balance %q: %w", raw, err)
	}
	return bal, nil
}
