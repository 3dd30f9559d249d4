package repo

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/ovaphlow/pitchfork/service-reputation-go/internal/ranking/entity"
)

// RankRepo computes ranking views straight from the users table and the
// point ledger. It owns no tables: rank is derived state.
type RankRepo struct {
	db *sqlx.DB
}

func NewRankRepo(db *sqlx.DB) *RankRepo { return &RankRepo{db: db} }

// balancesCTE joins every active user against their ledger sum. Users
// with no ledger activity appear with balance zero, which is what lets
// rank queries never report not-found.
const balancesCTE = `
WITH balances AS (
  SELECT u.primary_id, u.display_name, COALESCE(SUM(t.amount), 0) AS balance
  FROM users u
  LEFT JOIN point_transactions t ON t.user_id = u.primary_id
  WHERE u.status = 'active'
  GROUP BY u.primary_id, u.display_name
)`

// Leaderboard returns one page of users ordered by balance descending
// with the primary id as tie-break, so repeated calls with no
// intervening writes return an identical ordering.
func (r *RankRepo) Leaderboard(ctx context.Context, limit, offset int) ([]*entity.RankEntry, error) {
	const q = balancesCTE + `
SELECT primary_id, display_name, balance,
       RANK() OVER (ORDER BY balance DESC) AS rank
FROM balances
ORDER BY balance DESC, primary_id ASC
LIMIT $1 OFFSET $2`
	rows := []*entity.RankEntry{}
	if err := r.db.SelectContext(ctx, &rows, q, limit, offset); err != nil {
		return nil, err
	}
	return rows, nil
}

// RankOf computes the user's balance and rank in a single statement, so
// both numbers are read against the same snapshot. Rank is defined as
// one plus the count of users with a strictly greater balance; it never
// materializes the ranked list.
func (r *RankRepo) RankOf(ctx context.Context, primaryID string) (*entity.RankEntry, error) {
	const q = balancesCTE + `,
mine AS (SELECT display_name, balance FROM balances WHERE primary_id = $1)
SELECT $1 AS primary_id,
       COALESCE((SELECT display_name FROM mine), '') AS display_name,
       COALESCE((SELECT balance FROM mine), 0) AS balance,
       1 + (SELECT COUNT(*) FROM balances b
            WHERE b.balance > COALESCE((SELECT balance FROM mine), 0)) AS rank`
	var row entity.RankEntry
	if err := r.db.GetContext(ctx, &row, q, primaryID); err != nil {
		return nil, err
	}
	return &row, nil
}
