package achievement

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	achieveentity "github.com/ovaphlow/pitchfork/service-reputation-go/internal/achievement/entity"
	achieverepo "github.com/ovaphlow/pitchfork/service-reputation-go/internal/achievement/repo"
	activityentity "github.com/ovaphlow/pitchfork/service-reputation-go/internal/activity/entity"
	ledgerentity "github.com/ovaphlow/pitchfork/service-reputation-go/internal/ledger/entity"
)

// Repo is the data access surface the achievement service needs.
type Repo interface {
	ListDefinitions(ctx context.Context) ([]*achieveentity.Achievement, error)
	ListUnlockedIDs(ctx context.Context, userID string) ([]string, error)
	InsertUnlock(ctx context.Context, userID, achievementID string, unlockedAt time.Time) (bool, error)
	ListUnlocked(ctx context.Context, userID string) ([]*achieveentity.UnlockedView, error)
}

// Awarder appends reward transactions to the point ledger. Implemented
// by the ledger service.
type Awarder interface {
	Award(ctx context.Context, userID string, amount int64, reason, category, idempotencyKey string) (*ledgerentity.Transaction, error)
}

// ActivityCounter is the aggregation surface metrics are read from.
// Implemented by the activity service.
type ActivityCounter interface {
	SourceNames() []string
	CountMany(ctx context.Context, sources []string, primaryID string) (map[string]activityentity.SourceCount, error)
}

// BalanceReader reads the user's current point balance. Implemented by
// the ledger service.
type BalanceReader interface {
	Balance(ctx context.Context, userID string) (int64, error)
}

// MetricsProvider produces the metrics snapshot rules are evaluated
// against.
type MetricsProvider interface {
	Metrics(ctx context.Context, userID string) (map[string]int64, error)
}

type aggregateMetrics struct {
	activity ActivityCounter
	ledger   BalanceReader
}

// NewMetrics builds the default metrics provider: one value per
// activity source plus the ledger balance. A source that is currently
// unavailable is omitted from the snapshot, so rules over it neither
// unlock nor fail; they wait for the next evaluation.
func NewMetrics(activity ActivityCounter, ledger BalanceReader) MetricsProvider {
	return &aggregateMetrics{activity: activity, ledger: ledger}
}

func (m *aggregateMetrics) Metrics(ctx context.Context, userID string) (map[string]int64, error) {
	counts, err := m.activity.CountMany(ctx, m.activity.SourceNames(), userID)
	if err != nil {
		return nil, err
	}
	metrics := make(map[string]int64, len(counts)+1)
	for name, sc := range counts {
		if sc.Err != "" {
			continue
		}
		metrics[name] = sc.Count
	}
	balance, err := m.ledger.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	metrics["balance"] = balance
	return metrics, nil
}

// Service derives unlock state from ledger and aggregate data. Per
// (user, achievement) the state machine goes locked to unlocked, one way,
// guarded by the storage uniqueness constraint rather than any lock:
// when evaluators race, exactly one wins the insert and pays the
// reward.
type Service struct {
	repo    Repo
	metrics MetricsProvider
	awarder Awarder
	logger  *zap.SugaredLogger
}

func NewService(db *sqlx.DB, r Repo, metrics MetricsProvider, awarder Awarder, logger *zap.SugaredLogger) *Service {
	if r == nil {
		r = achieverepo.NewAchievementRepo(db)
	}
	return &Service{repo: r, metrics: metrics, awarder: awarder, logger: logger}
}

// rewardKey derives the idempotency key for an unlock's reward
// transaction. Deterministic per (user, achievement), so a retried or
// concurrent payout collapses into one ledger row no matter who sends
// it.
func rewardKey(userID, achievementID string) string {
	return fmt.Sprintf("achievement:%s:%s", userID, achievementID)
}

// Evaluate checks every still-locked achievement for the user against a
// fresh metrics snapshot and returns the ones newly unlocked by this
// call. Losing the insert race to a concurrent evaluator is not an
// error: the winner pays out, this call just doesn't report the
// achievement.
func (s *Service) Evaluate(ctx context.Context, userID string) ([]*achieveentity.Achievement, error) {
	defs, err := s.repo.ListDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	unlockedIDs, err := s.repo.ListUnlockedIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	unlocked := make(map[string]bool, len(unlockedIDs))
	for _, id := range unlockedIDs {
		unlocked[id] = true
	}

	pending := defs[:0]
	for _, d := range defs {
		if !unlocked[d.ID] {
			pending = append(pending, d)
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}

	metrics, err := s.metrics.Metrics(ctx, userID)
	if err != nil {
		return nil, err
	}

	var newly []*achieveentity.Achievement
	now := time.Now().UTC()
	for _, d := range pending {
		value, ok := metrics[d.Metric]
		if !ok || !d.Satisfied(value) {
			continue
		}
		won, err := s.repo.InsertUnlock(ctx, userID, d.ID, now)
		if err != nil {
			return newly, err
		}
		if !won {
			continue
		}
		if d.RewardPoints != 0 {
			reason := fmt.Sprintf("achievement unlocked: %s", d.Title)
			if _, err := s.awarder.Award(ctx, userID, d.RewardPoints, reason, ledgerentity.CategoryAchievement, rewardKey(userID, d.ID)); err != nil {
				// unlock is recorded; the idempotency key lets a later
				// repair re-issue this exact reward safely
				s.logger.Errorw("achievement reward failed",
					"op", "achievement.evaluate", "user", userID, "achievement", d.ID, "err", err)
			}
		}
		newly = append(newly, d)
	}
	return newly, nil
}

// ListUnlocked returns the user's unlocked achievements for display.
func (s *Service) ListUnlocked(ctx context.Context, userID string) ([]*achieveentity.UnlockedView, error) {
	return s.repo.ListUnlocked(ctx, userID)
}
