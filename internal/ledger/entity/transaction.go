package entity

import "time"

// Point transaction categories. Free-text reasons classify further
// inside a category.
const (
	CategorySystem        = "system"
	CategoryEvent         = "event"
	CategoryQuiz          = "quiz"
	CategoryAIInteraction = "ai_interaction"
	CategoryAchievement   = "achievement"
	CategoryPurchase      = "purchase"
	CategoryDaily         = "daily"
)

// ValidCategory reports whether c is a known transaction category.
func ValidCategory(c string) bool {
	switch c {
	case CategorySystem, CategoryEvent, CategoryQuiz, CategoryAIInteraction,
		CategoryAchievement, CategoryPurchase, CategoryDaily:
		return true
	}
	return false
}

// Transaction is one immutable row of the point ledger. Rows are only
// ever appended; a correction is a new row with a negative amount whose
// reason references the original transaction id. Seq is the monotonic
// insert order and the paging sort key; wall-clock timestamps can
// collide, seq cannot.
type Transaction struct {
	Seq            int64     `db:"seq" json:"seq"`
	ID             string    `db:"id" json:"id"`
	UserID         string    `db:"user_id" json:"user_id"`
	Amount         int64     `db:"amount" json:"amount"`
	Reason         string    `db:"reason" json:"reason"`
	Category       string    `db:"category" json:"category"`
	IdempotencyKey *string   `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
