package auditlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// advisoryLockKey serialises appends across ledgerd instances. It differs
// from the ledger store key so audit appends never wait on a mint.
const advisoryLockKey = int64(1_440_000_002)

// verifyBatch is how many rows Verify holds in memory at once.
const verifyBatch = 1000

// PostgresLog persists the audit chain in the ledger_audit table.
type PostgresLog struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresLog creates a PostgresLog backed by the given pool.
func NewPostgresLog(pool *pgxpool.Pool, logger *zap.Logger) *PostgresLog {
	return &PostgresLog{pool: pool, logger: logger}
}

// Append implements Log. The tail read and insert run in one transaction
// under an advisory lock.
func (l *PostgresLog) Append(ctx context.Context, kind, subject, actor string, payload any) (*Entry, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	var (
		prevIdx  int
		prevHash string
	)
	if err := tx.QueryRow(ctx,
		"SELECT idx, hash FROM ledger_audit ORDER BY idx DESC LIMIT 1",
	).Scan(&prevIdx, &prevHash); err != nil {
		return nil, fmt.Errorf("read audit tail: %w", err)
	}

	entry := &Entry{
		Index: prevIdx + 1,
		// Postgres stores microseconds; truncate so the hash survives a round trip.
		Timestamp: time.Now().UTC().Truncate(time.Microsecond),
		Kind:      kind,
		Subject:   subject,
		Actor:     actor,
		DataHash:  sha256Sum(payloadJSON),
		PrevHash:  prevHash,
	}
	entry.Hash = hashEntry(entry)

	if _, err := tx.Exec(ctx,
		`INSERT INTO ledger_audit (idx, timestamp, kind, subject, actor, data_hash, prev_hash, hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.Index, entry.Timestamp, entry.Kind, entry.Subject,
		entry.Actor, entry.DataHash, entry.PrevHash, entry.Hash,
	); err != nil {
		return nil, fmt.Errorf("insert audit entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit audit tx: %w", err)
	}

	l.logger.Debug("audit entry appended",
		zap.Int("idx", entry.Index),
		zap.String("kind", entry.Kind),
		zap.String("subject", entry.Subject),
	)
	return entry, nil
}

// Get implements Log.
func (l *PostgresLog) Get(ctx context.Context, index int) (*Entry, error) {
	e := &Entry{}
	err := l.pool.QueryRow(ctx,
		`SELECT idx, timestamp, kind, subject, actor, data_hash, prev_hash, hash
		 FROM ledger_audit WHERE idx = $1`, index,
	).Scan(&e.Index, &e.Timestamp, &e.Kind, &e.Subject, &e.Actor, &e.DataHash, &e.PrevHash, &e.Hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("index %d: %w", index, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get audit entry %d: %w", index, err)
	}
	return e, nil
}

// Len implements Log.
func (l *PostgresLog) Len(ctx context.Context) (int, error) {
	var n int
	if err := l.pool.QueryRow(ctx, "SELECT COUNT(*) FROM ledger_audit").Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return n, nil
}

// Verify implements Log. Rows are read in pages ordered by idx.
func (l *PostgresLog) Verify(ctx context.Context) error {
	var prev *Entry
	after := -1
	for {
		rows, err := l.pool.Query(ctx,
			`SELECT idx, timestamp, kind, subject, actor, data_hash, prev_hash, hash
			 FROM ledger_audit WHERE idx > $1 ORDER BY idx ASC LIMIT $2`,
			after, verifyBatch,
		)
		if err != nil {
			return fmt.Errorf("query audit log: %w", err)
		}
		page, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Entry, error) {
			e := &Entry{}
			err := row.Scan(&e.Index, &e.Timestamp, &e.Kind, &e.Subject, &e.Actor, &e.DataHash, &e.PrevHash, &e.Hash)
			return e, err
		})
		if err != nil {
			return fmt.Errorf("scan audit rows: %w", err)
		}
		if len(page) == 0 {
			return nil
		}
		if err := verifyChain(prev, page); err != nil {
			return err
		}
		prev = page[len(page)-1]
		after = prev.Index
	}
}

// Root implements Log.
func (l *PostgresLog) Root(ctx context.Context) (string, error) {
	var hash string
	if err := l.pool.QueryRow(ctx,
		"SELECT hash FROM ledger_audit ORDER BY idx DESC LIMIT 1",
	).Scan(&hash); err != nil {
		return "", fmt.Errorf("get audit root: %w", err)
	}
	return hash, nil
}
