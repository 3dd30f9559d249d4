package repo

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/ovaphlow/pitchfork/service-reputation-go/internal/achievement/entity"
	"github.com/ovaphlow/pitchfork/service-reputation-go/pkg/database"
)

// AchievementRepo provides data access for achievement definitions and
// per-user unlock state using sqlx.
type AchievementRepo struct {
	db *sqlx.DB
}

func NewAchievementRepo(db *sqlx.DB) *AchievementRepo { return &AchievementRepo{db: db} }

// EnsureSchema creates the achievement tables if not exists
// (idempotent). The composite primary key on user_achievements is the
// uniqueness guard concurrent evaluators race on.
func (r *AchievementRepo) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS achievements (
  id varchar(64) PRIMARY KEY,
  title TEXT NOT NULL DEFAULT '',
  metric varchar(64) NOT NULL,
  op varchar(4) NOT NULL,
  threshold BIGINT NOT NULL,
  reward_points BIGINT NOT NULL DEFAULT 0,
  category varchar(16) NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS user_achievements (
  user_id varchar(32) NOT NULL,
  achievement_id varchar(64) NOT NULL,
  unlocked_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  PRIMARY KEY (user_id, achievement_id)
);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// SeedDefaults inserts the built-in achievement definitions, skipping
// any id that already exists so operators can retune thresholds without
// redeploys overwriting them.
func (r *AchievementRepo) SeedDefaults(ctx context.Context) error {
	defs := []entity.Achievement{
		{ID: "first_checkin", Title: "First check-in", Metric: "checkins", Op: entity.OpAtLeast, Threshold: 1, RewardPoints: 25, Category: "event"},
		{ID: "regular_checkin", Title: "Ten check-ins", Metric: "checkins", Op: entity.OpAtLeast, Threshold: 10, RewardPoints: 100, Category: "event"},
		{ID: "first_quiz", Title: "First quiz completed", Metric: "quizzes", Op: entity.OpAtLeast, Threshold: 1, RewardPoints: 50, Category: "quiz"},
		{ID: "perfect_quiz", Title: "Perfect quiz score", Metric: "quizzes_perfect", Op: entity.OpAtLeast, Threshold: 1, RewardPoints: 75, Category: "quiz"},
		{ID: "first_ai_chat", Title: "First AI conversation", Metric: "ai_messages", Op: entity.OpAtLeast, Threshold: 1, RewardPoints: 20, Category: "ai_interaction"},
		{ID: "first_purchase", Title: "First purchase", Metric: "purchases", Op: entity.OpAtLeast, Threshold: 1, RewardPoints: 50, Category: "purchase"},
		{ID: "point_collector", Title: "One thousand points", Metric: "balance", Op: entity.OpAtLeast, Threshold: 1000, RewardPoints: 200, Category: "system"},
	}
	const q = `INSERT INTO achievements (id, title, metric, op, threshold, reward_points, category)
	  VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (id) DO NOTHING`
	for _, d := range defs {
		if _, err := r.db.ExecContext(ctx, q, d.ID, d.Title, d.Metric, d.Op, d.Threshold, d.RewardPoints, d.Category); err != nil {
			return err
		}
	}
	return nil
}

// ListDefinitions returns every achievement definition.
func (r *AchievementRepo) ListDefinitions(ctx context.Context) ([]*entity.Achievement, error) {
	const q = `SELECT id, title, metric, op, threshold, reward_points, category, created_at
	  FROM achievements ORDER BY id`
	rows := []*entity.Achievement{}
	if err := r.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, err
	}
	return rows, nil
}

// ListUnlockedIDs returns the achievement ids the user has unlocked.
func (r *AchievementRepo) ListUnlockedIDs(ctx context.Context, userID string) ([]string, error) {
	const q = `SELECT achievement_id FROM user_achievements WHERE user_id = $1`
	ids := []string{}
	if err := r.db.SelectContext(ctx, &ids, q, userID); err != nil {
		return nil, err
	}
	return ids, nil
}

// InsertUnlock attempts to record the unlock. The second return value
// is false when another evaluator already holds the row; the caller
// lost the race, the achievement is unlocked either way.
func (r *AchievementRepo) InsertUnlock(ctx context.Context, userID, achievementID string, unlockedAt time.Time) (bool, error) {
	const q = `INSERT INTO user_achievements (user_id, achievement_id, unlocked_at) VALUES ($1, $2, $3)`
	if _, err := r.db.ExecContext(ctx, q, userID, achievementID, unlockedAt); err != nil {
		if database.IsUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListUnlocked returns the user's unlocked achievements with their
// definitions, newest unlock first.
func (r *AchievementRepo) ListUnlocked(ctx context.Context, userID string) ([]*entity.UnlockedView, error) {
	const q = `SELECT a.id, a.title, a.metric, a.op, a.threshold, a.reward_points, a.category, a.created_at, ua.unlocked_at
	  FROM user_achievements ua
	  JOIN achievements a ON a.id = ua.achievement_id
	  WHERE ua.user_id = $1
	  ORDER BY ua.unlocked_at DESC, a.id`
	rows := []*entity.UnlockedView{}
	if err := r.db.SelectContext(ctx, &rows, q, userID); err != nil {
		return nil, err
	}
	return rows, nil
}
