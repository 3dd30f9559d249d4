package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/ovaphlow/pitchfork/service-reputation-go/internal/identity/entity"
)

// UserRepo provides data access for the users table using sqlx.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// EnsureSchema creates the users table and the merge audit log if not
// exists (idempotent). Prefer migrations in production.
func (r *UserRepo) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS users (
  primary_id varchar(32) PRIMARY KEY,
  external_auth_id TEXT UNIQUE,
  display_name TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'active',
  merged_into varchar(32),
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  merged_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_users_merged_into ON users (merged_into);
CREATE TABLE IF NOT EXISTS identity_merge_log (
  id varchar(32) PRIMARY KEY,
  survivor_primary_id varchar(32) NOT NULL,
  duplicate_primary_id varchar(32) NOT NULL,
  operator TEXT NOT NULL DEFAULT '',
  note TEXT NOT NULL DEFAULT '',
  merged_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Create inserts a new canonical user row.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) error {
	const q = `INSERT INTO users (primary_id, external_auth_id, display_name, status, created_at, updated_at)
	  VALUES ($1, $2, $3, $4, $5, $5)`
	_, err := r.db.ExecContext(ctx, q, u.PrimaryID, u.ExternalAuthID, u.DisplayName, u.Status, u.CreatedAt)
	return err
}

// GetByAnyID returns the user row whose primary_id or external_auth_id
// matches the given identifier, or sql.ErrNoRows.
func (r *UserRepo) GetByAnyID(ctx context.Context, anyID string) (*entity.User, error) {
	const q = `SELECT primary_id, external_auth_id, display_name, status, merged_into, created_at, updated_at, merged_at
	  FROM users WHERE primary_id = $1 OR external_auth_id = $1`
	var row entity.User
	if err := r.db.GetContext(ctx, &row, q, anyID); err != nil {
		return nil, err
	}
	return &row, nil
}

// GetByPrimaryID fetches by primary id only.
func (r *UserRepo) GetByPrimaryID(ctx context.Context, primaryID string) (*entity.User, error) {
	const q = `SELECT primary_id, external_auth_id, display_name, status, merged_into, created_at, updated_at, merged_at
	  FROM users WHERE primary_id = $1`
	var row entity.User
	if err := r.db.GetContext(ctx, &row, q, primaryID); err != nil {
		return nil, err
	}
	return &row, nil
}

// ListMergedInto returns the retired user rows that were merged into
// the given survivor. Their identifiers still appear in historical
// activity data, so identifier expansion has to include them.
func (r *UserRepo) ListMergedInto(ctx context.Context, survivorPrimaryID string) ([]*entity.User, error) {
	const q = `SELECT primary_id, external_auth_id, display_name, status, merged_into, created_at, updated_at, merged_at
	  FROM users WHERE merged_into = $1 ORDER BY primary_id`
	rows := []*entity.User{}
	if err := r.db.SelectContext(ctx, &rows, q, survivorPrimaryID); err != nil {
		return nil, err
	}
	return rows, nil
}

// Merge retires the duplicate row, points it at the survivor and writes
// the audit record, all in one transaction. Rows previously merged into
// the duplicate are re-pointed at the new survivor in the same
// transaction, so merged_into always names an active row and the
// equivalence class stays one level deep no matter how merges chain.
func (r *UserRepo) Merge(ctx context.Context, rec *entity.MergeRecord) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE users SET status = 'merged', merged_into = $1, merged_at = $2, updated_at = $2
		  WHERE primary_id = $3 AND status = 'active'`,
		rec.SurvivorPrimaryID, now, rec.DuplicatePrimaryID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET merged_into = $1, updated_at = $2 WHERE merged_into = $3`,
		rec.SurvivorPrimaryID, now, rec.DuplicatePrimaryID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO identity_merge_log (id, survivor_primary_id, duplicate_primary_id, operator, note, merged_at)
		  VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.SurvivorPrimaryID, rec.DuplicatePrimaryID, rec.Operator, rec.Note, now); err != nil {
		return err
	}
	rec.MergedAt = now
	return tx.Commit()
}
