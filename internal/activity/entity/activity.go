package entity

import "time"

// Activity rows are owned by the producers that write them. The core
// stores them verbatim: producer_user_ref is whatever identifier the
// producer used, primary id or external auth id, and is never rewritten.

// EventCheckin is one check-in against an event.
type EventCheckin struct {
	ID              string    `db:"id" json:"id"`
	EventID         string    `db:"event_id" json:"event_id"`
	ProducerUserRef string    `db:"producer_user_ref" json:"producer_user_ref"`
	CheckedInAt     time.Time `db:"checked_in_at" json:"checked_in_at"`
}

// VenueVisit is a check-in from the legacy venue recorder. Different
// shape, different table, and the ref column is the external auth id by
// convention of that producer.
type VenueVisit struct {
	Seq       int64     `db:"seq" json:"seq"`
	Venue     string    `db:"venue" json:"venue"`
	AuthRef   string    `db:"auth_ref" json:"auth_ref"`
	VisitedAt time.Time `db:"visited_at" json:"visited_at"`
}

// QuizResult is one completed quiz attempt.
type QuizResult struct {
	ID              string    `db:"id" json:"id"`
	QuizID          string    `db:"quiz_id" json:"quiz_id"`
	ProducerUserRef string    `db:"producer_user_ref" json:"producer_user_ref"`
	Score           int       `db:"score" json:"score"`
	MaxScore        int       `db:"max_score" json:"max_score"`
	TakenAt         time.Time `db:"taken_at" json:"taken_at"`
}

// AIMessage is one logged AI chat message.
type AIMessage struct {
	ID              string    `db:"id" json:"id"`
	ProducerUserRef string    `db:"producer_user_ref" json:"producer_user_ref"`
	SentAt          time.Time `db:"sent_at" json:"sent_at"`
}

// Purchase is one completed store order.
type Purchase struct {
	ID              string    `db:"id" json:"id"`
	ProducerUserRef string    `db:"producer_user_ref" json:"producer_user_ref"`
	TotalCents      int64     `db:"total_cents" json:"total_cents"`
	PlacedAt        time.Time `db:"placed_at" json:"placed_at"`
}

// SourceCount is the per-source result of an aggregation batch. Err is
// set when that source was unavailable; the other sources still report
// their counts.
type SourceCount struct {
	Count int64  `json:"count"`
	Err   string `json:"error,omitempty"`
}
