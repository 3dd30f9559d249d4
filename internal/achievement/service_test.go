package achievement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	achieveentity "github.com/ovaphlow/pitchfork/service-reputation-go/internal/achievement/entity"
	ledgerentity "github.com/ovaphlow/pitchfork/service-reputation-go/internal/ledger/entity"
)

// fakeAchievementRepo holds definitions and unlock rows in memory. The
// insert is atomic under the mutex, matching the primary key guard.
type fakeAchievementRepo struct {
	mu       sync.Mutex
	defs     []*achieveentity.Achievement
	unlocked map[string]map[string]time.Time // userID -> achievementID -> at
}

func newFakeAchievementRepo(defs ...*achieveentity.Achievement) *fakeAchievementRepo {
	return &fakeAchievementRepo{defs: defs, unlocked: map[string]map[string]time.Time{}}
}

func (f *fakeAchievementRepo) ListDefinitions(_ context.Context) ([]*achieveentity.Achievement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*achieveentity.Achievement, len(f.defs))
	copy(out, f.defs)
	return out, nil
}

func (f *fakeAchievementRepo) ListUnlockedIDs(_ context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id := range f.unlocked[userID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeAchievementRepo) InsertUnlock(_ context.Context, userID, achievementID string, unlockedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows, ok := f.unlocked[userID]
	if !ok {
		rows = map[string]time.Time{}
		f.unlocked[userID] = rows
	}
	if _, exists := rows[achievementID]; exists {
		return false, nil
	}
	rows[achievementID] = unlockedAt
	return true, nil
}

func (f *fakeAchievementRepo) ListUnlocked(_ context.Context, userID string) ([]*achieveentity.UnlockedView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*achieveentity.UnlockedView
	for _, d := range f.defs {
		at, ok := f.unlocked[userID][d.ID]
		if !ok {
			continue
		}
		out = append(out, &achieveentity.UnlockedView{Achievement: *d, UnlockedAt: at})
	}
	return out, nil
}

func (f *fakeAchievementRepo) unlockCount(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.unlocked[userID])
}

// fakeAwarder records reward calls, deduplicating on the idempotency
// key the way the ledger does.
type fakeAwarder struct {
	mu    sync.Mutex
	calls int
	keys  map[string]int64
	fail  bool
}

func newFakeAwarder() *fakeAwarder { return &fakeAwarder{keys: map[string]int64{}} }

func (f *fakeAwarder) Award(_ context.Context, userID string, amount int64, reason, category, idempotencyKey string) (*ledgerentity.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("ledger unavailable")
	}
	f.calls++
	if _, dup := f.keys[idempotencyKey]; !dup {
		f.keys[idempotencyKey] = amount
	}
	return &ledgerentity.Transaction{UserID: userID, Amount: amount, Reason: reason, Category: category}, nil
}

type staticMetrics map[string]int64

func (m staticMetrics) Metrics(_ context.Context, _ string) (map[string]int64, error) {
	return m, nil
}

func testDefs() []*achieveentity.Achievement {
	return []*achieveentity.Achievement{
		{ID: "first_checkin", Title: "First Check-in", Metric: "checkins", Op: achieveentity.OpAtLeast, Threshold: 1, RewardPoints: 25},
		{ID: "regular_checkin", Title: "Regular", Metric: "checkins", Op: achieveentity.OpAtLeast, Threshold: 10, RewardPoints: 100},
		{ID: "point_collector", Title: "Collector", Metric: "balance", Op: achieveentity.OpAtLeast, Threshold: 1000, RewardPoints: 200},
	}
}

func newEvalService(repo Repo, metrics MetricsProvider, awarder Awarder) *Service {
	return NewService(nil, repo, metrics, awarder, zap.NewNop().Sugar())
}

func TestEvaluateUnlocksOnceThenNothing(t *testing.T) {
	repo := newFakeAchievementRepo(testDefs()...)
	awarder := newFakeAwarder()
	svc := newEvalService(repo, staticMetrics{"checkins": 3, "balance": 50}, awarder)
	ctx := context.Background()

	newly, err := svc.Evaluate(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, newly, 1)
	assert.Equal(t, "first_checkin", newly[0].ID)
	assert.Equal(t, 1, awarder.calls)
	assert.Equal(t, int64(25), awarder.keys["achievement:u1:first_checkin"])

	// same metrics again: nothing new, no second payout
	newly, err = svc.Evaluate(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, newly)
	assert.Equal(t, 1, awarder.calls)
}

func TestEvaluateThresholdProgression(t *testing.T) {
	repo := newFakeAchievementRepo(testDefs()...)
	awarder := newFakeAwarder()
	metrics := staticMetrics{"checkins": 0, "balance": 0}
	svc := newEvalService(repo, metrics, awarder)
	ctx := context.Background()

	newly, err := svc.Evaluate(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, newly)

	metrics["checkins"] = 10
	newly, err = svc.Evaluate(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, newly, 2)
	ids := []string{newly[0].ID, newly[1].ID}
	assert.ElementsMatch(t, []string{"first_checkin", "regular_checkin"}, ids)
}

func TestEvaluateMissingMetricSkipped(t *testing.T) {
	repo := newFakeAchievementRepo(testDefs()...)
	awarder := newFakeAwarder()
	// the checkins source is unavailable, so its metric is absent
	svc := newEvalService(repo, staticMetrics{"balance": 2000}, awarder)

	newly, err := svc.Evaluate(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, newly, 1)
	assert.Equal(t, "point_collector", newly[0].ID)
}

func TestEvaluateConcurrentSingleUnlock(t *testing.T) {
	repo := newFakeAchievementRepo(testDefs()...)
	awarder := newFakeAwarder()
	svc := newEvalService(repo, staticMetrics{"checkins": 1, "balance": 0}, awarder)
	ctx := context.Background()

	const evaluators = 16
	var wg sync.WaitGroup
	reported := make(chan int, evaluators)
	for i := 0; i < evaluators; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			newly, err := svc.Evaluate(ctx, "u1")
			if err != nil {
				t.Error(err)
				return
			}
			reported <- len(newly)
		}()
	}
	wg.Wait()
	close(reported)

	var total int
	for n := range reported {
		total += n
	}
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, repo.unlockCount("u1"))
	assert.Equal(t, 1, awarder.calls)
	assert.Len(t, awarder.keys, 1)
}

func TestEvaluateRewardFailureKeepsUnlock(t *testing.T) {
	repo := newFakeAchievementRepo(testDefs()...)
	awarder := newFakeAwarder()
	awarder.fail = true
	svc := newEvalService(repo, staticMetrics{"checkins": 1, "balance": 0}, awarder)

	newly, err := svc.Evaluate(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, newly, 1)
	assert.Equal(t, 1, repo.unlockCount("u1"))
	assert.Zero(t, awarder.calls)
}

func TestEvaluateUsersAreIndependent(t *testing.T) {
	repo := newFakeAchievementRepo(testDefs()...)
	awarder := newFakeAwarder()
	svc := newEvalService(repo, staticMetrics{"checkins": 1, "balance": 0}, awarder)
	ctx := context.Background()

	for _, user := range []string{"u1", "u2"} {
		newly, err := svc.Evaluate(ctx, user)
		require.NoError(t, err)
		require.Len(t, newly, 1)
	}
	assert.Equal(t, int64(25), awarder.keys["achievement:u1:first_checkin"])
	assert.Equal(t, int64(25), awarder.keys["achievement:u2:first_checkin"])
}

func TestListUnlockedView(t *testing.T) {
	repo := newFakeAchievementRepo(testDefs()...)
	awarder := newFakeAwarder()
	svc := newEvalService(repo, staticMetrics{"checkins": 1, "balance": 0}, awarder)
	ctx := context.Background()

	_, err := svc.Evaluate(ctx, "u1")
	require.NoError(t, err)

	views, err := svc.ListUnlocked(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "first_checkin", views[0].ID)
	assert.False(t, views[0].UnlockedAt.IsZero())
}

func TestSatisfiedOperators(t *testing.T) {
	atLeast := &achieveentity.Achievement{Op: achieveentity.OpAtLeast, Threshold: 5}
	assert.False(t, atLeast.Satisfied(4))
	assert.True(t, atLeast.Satisfied(5))
	assert.True(t, atLeast.Satisfied(6))

	exactly := &achieveentity.Achievement{Op: achieveentity.OpExactly, Threshold: 5}
	assert.False(t, exactly.Satisfied(4))
	assert.True(t, exactly.Satisfied(5))
	assert.False(t, exactly.Satisfied(6))

	unknown := &achieveentity.Achievement{Op: "<", Threshold: 5}
	assert.False(t, unknown.Satisfied(1))
}
