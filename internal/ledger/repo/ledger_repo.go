package repo

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/ovaphlow/pitchfork/service-reputation-go/internal/ledger/entity"
)

// LedgerRepo provides data access for the point_transactions table
// using sqlx. The table is append-only: no UPDATE or DELETE statement
// exists anywhere in this package.
type LedgerRepo struct {
	db *sqlx.DB
}

func NewLedgerRepo(db *sqlx.DB) *LedgerRepo { return &LedgerRepo{db: db} }

// EnsureSchema creates the ledger table if not exists (idempotent).
// The partial unique index on (user_id, idempotency_key) is what makes
// retried awards safe: the check-and-insert is a single atomic
// statement, never a read followed by a conditional write.
func (r *LedgerRepo) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS point_transactions (
  seq BIGSERIAL PRIMARY KEY,
  id varchar(32) NOT NULL UNIQUE,
  user_id varchar(32) NOT NULL,
  amount BIGINT NOT NULL,
  reason TEXT NOT NULL DEFAULT '',
  category varchar(16) NOT NULL,
  idempotency_key TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_point_tx_user_seq ON point_transactions (user_id, seq DESC);
CREATE UNIQUE INDEX IF NOT EXISTS ux_point_tx_user_idem ON point_transactions (user_id, idempotency_key)
  WHERE idempotency_key IS NOT NULL;
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Insert appends a transaction. When tx carries an idempotency key that
// was already used for this user, no row is written and the original
// transaction is returned with duplicate=true.
func (r *LedgerRepo) Insert(ctx context.Context, tx *entity.Transaction) (*entity.Transaction, bool, error) {
	if tx.IdempotencyKey == nil {
		const q = `INSERT INTO point_transactions (id, user_id, amount, reason, category, idempotency_key)
		  VALUES ($1, $2, $3, $4, $5, NULL) RETURNING seq, created_at`
		if err := r.db.QueryRowxContext(ctx, q, tx.ID, tx.UserID, tx.Amount, tx.Reason, tx.Category).
			Scan(&tx.Seq, &tx.CreatedAt); err != nil {
			return nil, false, err
		}
		return tx, false, nil
	}

	const q = `INSERT INTO point_transactions (id, user_id, amount, reason, category, idempotency_key)
	  VALUES ($1, $2, $3, $4, $5, $6)
	  ON CONFLICT (user_id, idempotency_key) WHERE idempotency_key IS NOT NULL DO NOTHING
	  RETURNING seq, created_at`
	err := r.db.QueryRowxContext(ctx, q, tx.ID, tx.UserID, tx.Amount, tx.Reason, tx.Category, *tx.IdempotencyKey).
		Scan(&tx.Seq, &tx.CreatedAt)
	if err == nil {
		return tx, false, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, err
	}
	// conflict: another call already applied this business event
	existing, err := r.GetByIdempotencyKey(ctx, tx.UserID, *tx.IdempotencyKey)
	if err != nil {
		return nil, false, err
	}
	return existing, true, nil
}

// GetByIdempotencyKey returns the transaction recorded for the given
// user and idempotency key, or sql.ErrNoRows.
func (r *LedgerRepo) GetByIdempotencyKey(ctx context.Context, userID, key string) (*entity.Transaction, error) {
	const q = `SELECT seq, id, user_id, amount, reason, category, idempotency_key, created_at
	  FROM point_transactions WHERE user_id = $1 AND idempotency_key = $2`
	var row entity.Transaction
	if err := r.db.GetContext(ctx, &row, q, userID, key); err != nil {
		return nil, err
	}
	return &row, nil
}

// SumBalance computes the user's balance as the sum over all their
// transactions. Users with no ledger activity read zero.
func (r *LedgerRepo) SumBalance(ctx context.Context, userID string) (int64, error) {
	const q = `SELECT COALESCE(SUM(amount), 0) FROM point_transactions WHERE user_id = $1`
	var balance int64
	if err := r.db.GetContext(ctx, &balance, q, userID); err != nil {
		return 0, err
	}
	return balance, nil
}

// History returns up to limit transactions for the user, newest first.
// beforeSeq = 0 starts at the head; otherwise only rows with seq <
// beforeSeq are returned, which keeps pages stable while new rows are
// being appended concurrently.
func (r *LedgerRepo) History(ctx context.Context, userID string, limit int, beforeSeq int64) ([]*entity.Transaction, error) {
	const q = `SELECT seq, id, user_id, amount, reason, category, idempotency_key, created_at
	  FROM point_transactions
	  WHERE user_id = $1 AND ($2 = 0 OR seq < $2)
	  ORDER BY seq DESC LIMIT $3`
	rows := []*entity.Transaction{}
	if err := r.db.SelectContext(ctx, &rows, q, userID, beforeSeq, limit); err != nil {
		return nil, err
	}
	return rows, nil
}
