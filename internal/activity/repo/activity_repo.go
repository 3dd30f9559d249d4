package repo

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/ovaphlow/pitchfork/service-reputation-go/internal/activity/entity"
)

// ActivityRepo provides data access for the activity source tables
// using sqlx. The tables are deliberately heterogeneous, with
// different shapes and identifier schemes, because that is what the
// producers actually write. Counting always filters on the full
// identifier set (pq.Array + ANY) so activity recorded under either
// scheme is found.
type ActivityRepo struct {
	db *sqlx.DB
}

func NewActivityRepo(db *sqlx.DB) *ActivityRepo { return &ActivityRepo{db: db} }

// EnsureSchema creates the activity source tables if not exists
// (idempotent).
func (r *ActivityRepo) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS event_checkins (
  id varchar(32) PRIMARY KEY,
  event_id varchar(64) NOT NULL,
  producer_user_ref TEXT NOT NULL,
  checked_in_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_event_checkins_ref ON event_checkins (producer_user_ref);
CREATE TABLE IF NOT EXISTS venue_checkins_legacy (
  seq BIGSERIAL PRIMARY KEY,
  venue TEXT NOT NULL DEFAULT '',
  auth_ref TEXT NOT NULL,
  visited_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_venue_checkins_ref ON venue_checkins_legacy (auth_ref);
CREATE TABLE IF NOT EXISTS quiz_results (
  id varchar(32) PRIMARY KEY,
  quiz_id varchar(64) NOT NULL,
  producer_user_ref TEXT NOT NULL,
  score INT NOT NULL DEFAULT 0,
  max_score INT NOT NULL DEFAULT 0,
  taken_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_quiz_results_ref ON quiz_results (producer_user_ref);
CREATE TABLE IF NOT EXISTS ai_messages (
  id varchar(32) PRIMARY KEY,
  producer_user_ref TEXT NOT NULL,
  sent_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_ai_messages_ref ON ai_messages (producer_user_ref);
CREATE TABLE IF NOT EXISTS store_orders (
  id varchar(32) PRIMARY KEY,
  producer_user_ref TEXT NOT NULL,
  total_cents BIGINT NOT NULL DEFAULT 0,
  placed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_store_orders_ref ON store_orders (producer_user_ref);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

func (r *ActivityRepo) InsertEventCheckin(ctx context.Context, c *entity.EventCheckin) error {
	const q = `INSERT INTO event_checkins (id, event_id, producer_user_ref, checked_in_at)
	  VALUES ($1, $2, $3, $4)`
	_, err := r.db.ExecContext(ctx, q, c.ID, c.EventID, c.ProducerUserRef, c.CheckedInAt)
	return err
}

func (r *ActivityRepo) InsertVenueVisit(ctx context.Context, v *entity.VenueVisit) error {
	const q = `INSERT INTO venue_checkins_legacy (venue, auth_ref, visited_at)
	  VALUES ($1, $2, $3) RETURNING seq`
	return r.db.QueryRowxContext(ctx, q, v.Venue, v.AuthRef, v.VisitedAt).Scan(&v.Seq)
}

func (r *ActivityRepo) InsertQuizResult(ctx context.Context, qr *entity.QuizResult) error {
	const q = `INSERT INTO quiz_results (id, quiz_id, producer_user_ref, score, max_score, taken_at)
	  VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.ExecContext(ctx, q, qr.ID, qr.QuizID, qr.ProducerUserRef, qr.Score, qr.MaxScore, qr.TakenAt)
	return err
}

func (r *ActivityRepo) InsertAIMessage(ctx context.Context, m *entity.AIMessage) error {
	const q = `INSERT INTO ai_messages (id, producer_user_ref, sent_at) VALUES ($1, $2, $3)`
	_, err := r.db.ExecContext(ctx, q, m.ID, m.ProducerUserRef, m.SentAt)
	return err
}

func (r *ActivityRepo) InsertPurchase(ctx context.Context, p *entity.Purchase) error {
	const q = `INSERT INTO store_orders (id, producer_user_ref, total_cents, placed_at)
	  VALUES ($1, $2, $3, $4)`
	_, err := r.db.ExecContext(ctx, q, p.ID, p.ProducerUserRef, p.TotalCents, p.PlacedAt)
	return err
}

func (r *ActivityRepo) countRefs(ctx context.Context, query string, ids []string) (int64, error) {
	var n int64
	if err := r.db.GetContext(ctx, &n, query, pq.Array(ids)); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *ActivityRepo) CountEventCheckins(ctx context.Context, ids []string) (int64, error) {
	return r.countRefs(ctx, `SELECT COUNT(*) FROM event_checkins WHERE producer_user_ref = ANY($1)`, ids)
}

func (r *ActivityRepo) CountVenueVisits(ctx context.Context, ids []string) (int64, error) {
	return r.countRefs(ctx, `SELECT COUNT(*) FROM venue_checkins_legacy WHERE auth_ref = ANY($1)`, ids)
}

func (r *ActivityRepo) CountQuizResults(ctx context.Context, ids []string) (int64, error) {
	return r.countRefs(ctx, `SELECT COUNT(*) FROM quiz_results WHERE producer_user_ref = ANY($1)`, ids)
}

func (r *ActivityRepo) CountPerfectQuizResults(ctx context.Context, ids []string) (int64, error) {
	return r.countRefs(ctx,
		`SELECT COUNT(*) FROM quiz_results WHERE producer_user_ref = ANY($1) AND max_score > 0 AND score = max_score`, ids)
}

func (r *ActivityRepo) CountAIMessages(ctx context.Context, ids []string) (int64, error) {
	return r.countRefs(ctx, `SELECT COUNT(*) FROM ai_messages WHERE producer_user_ref = ANY($1)`, ids)
}

func (r *ActivityRepo) CountPurchases(ctx context.Context, ids []string) (int64, error) {
	return r.countRefs(ctx, `SELECT COUNT(*) FROM store_orders WHERE producer_user_ref = ANY($1)`, ids)
}
