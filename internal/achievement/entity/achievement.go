package entity

import "time"

// Rule operators. Rules are declarative predicates over a metrics
// snapshot, so a new achievement is a data row, not a code change.
const (
	OpAtLeast = ">="
	OpExactly = "=="
)

// Achievement is one unlockable definition. Metric names the aggregate
// the rule reads (an activity source count or "balance"), Op and
// Threshold form the predicate, RewardPoints is paid through the ledger
// on first unlock.
type Achievement struct {
	ID           string    `db:"id" json:"id"`
	Title        string    `db:"title" json:"title"`
	Metric       string    `db:"metric" json:"metric"`
	Op           string    `db:"op" json:"op"`
	Threshold    int64     `db:"threshold" json:"threshold"`
	RewardPoints int64     `db:"reward_points" json:"reward_points"`
	Category     string    `db:"category" json:"category"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Satisfied evaluates the rule against a metric value.
func (a *Achievement) Satisfied(value int64) bool {
	switch a.Op {
	case OpAtLeast:
		return value >= a.Threshold
	case OpExactly:
		return value == a.Threshold
	}
	return false
}

// UserAchievement joins a user with an unlocked achievement. At most
// one row per (user, achievement) pair ever exists; the table's
// primary key is the idempotence boundary for the whole engine.
type UserAchievement struct {
	UserID        string    `db:"user_id" json:"user_id"`
	AchievementID string    `db:"achievement_id" json:"achievement_id"`
	UnlockedAt    time.Time `db:"unlocked_at" json:"unlocked_at"`
}

// UnlockedView is the read model for profile pages: the definition plus
// when this user unlocked it.
type UnlockedView struct {
	Achievement
	UnlockedAt time.Time `db:"unlocked_at" json:"unlocked_at"`
}
