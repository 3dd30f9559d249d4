package ranking

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-reputation-go/internal/ranking/entity"
)

// fakeRankRepo mirrors the SQL semantics: balances derived per active
// user, RANK() ties sharing a rank, strict primary id tie-break in the
// page ordering.
type fakeRankRepo struct {
	mu       sync.Mutex
	balances map[string]int64 // active users only
	names    map[string]string
}

func newFakeRankRepo() *fakeRankRepo {
	return &fakeRankRepo{balances: map[string]int64{}, names: map[string]string{}}
}

func (f *fakeRankRepo) addUser(id, name string, balance int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[id] = balance
	f.names[id] = name
}

func (f *fakeRankRepo) ranked() []*entity.RankEntry {
	ids := make([]string, 0, len(f.balances))
	for id := range f.balances {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		bi, bj := f.balances[ids[i]], f.balances[ids[j]]
		if bi != bj {
			return bi > bj
		}
		return ids[i] < ids[j]
	})
	out := make([]*entity.RankEntry, 0, len(ids))
	for i, id := range ids {
		rank := int64(i + 1)
		if i > 0 && f.balances[id] == f.balances[ids[i-1]] {
			rank = out[i-1].Rank
		}
		out = append(out, &entity.RankEntry{
			UserID:      id,
			DisplayName: f.names[id],
			Balance:     f.balances[id],
			Rank:        rank,
		})
	}
	return out
}

func (f *fakeRankRepo) Leaderboard(_ context.Context, limit, offset int) ([]*entity.RankEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.ranked()
	if offset >= len(all) {
		return []*entity.RankEntry{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (f *fakeRankRepo) RankOf(_ context.Context, primaryID string) (*entity.RankEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mine := f.balances[primaryID] // zero when absent, like the COALESCE
	var greater int64
	for _, b := range f.balances {
		if b > mine {
			greater++
		}
	}
	return &entity.RankEntry{
		UserID:      primaryID,
		DisplayName: f.names[primaryID],
		Balance:     mine,
		Rank:        1 + greater,
	}, nil
}

func seededService(t *testing.T) (*Service, *fakeRankRepo) {
	t.Helper()
	repo := newFakeRankRepo()
	repo.addUser("u-alice", "alice", 300)
	repo.addUser("u-bob", "bob", 150)
	repo.addUser("u-carol", "carol", 150)
	repo.addUser("u-dave", "dave", 40)
	repo.addUser("u-erin", "erin", 0)
	return NewService(nil, repo, nil, 0), repo
}

func TestLeaderboardOrderAndTies(t *testing.T) {
	svc, _ := seededService(t)

	entries, err := svc.Leaderboard(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 5)

	assert.Equal(t, "u-alice", entries[0].UserID)
	assert.Equal(t, int64(1), entries[0].Rank)
	// tied balances share a rank; id breaks the page order
	assert.Equal(t, "u-bob", entries[1].UserID)
	assert.Equal(t, "u-carol", entries[2].UserID)
	assert.Equal(t, int64(2), entries[1].Rank)
	assert.Equal(t, int64(2), entries[2].Rank)
	// the user after a tie resumes at the positional rank
	assert.Equal(t, "u-dave", entries[3].UserID)
	assert.Equal(t, int64(4), entries[3].Rank)
}

func TestLeaderboardDeterministicAcrossCalls(t *testing.T) {
	svc, _ := seededService(t)
	ctx := context.Background()

	first, err := svc.Leaderboard(ctx, 10, 0)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := svc.Leaderboard(ctx, 10, 0)
		require.NoError(t, err)
		require.Len(t, again, len(first))
		for j := range first {
			assert.Equal(t, first[j].UserID, again[j].UserID)
		}
	}
}

func TestLeaderboardPaging(t *testing.T) {
	svc, _ := seededService(t)
	ctx := context.Background()

	page, err := svc.Leaderboard(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "u-carol", page[0].UserID)
	assert.Equal(t, "u-dave", page[1].UserID)

	beyond, err := svc.Leaderboard(ctx, 2, 100)
	require.NoError(t, err)
	assert.Empty(t, beyond)
}

func TestLeaderboardLimitClamp(t *testing.T) {
	repo := newFakeRankRepo()
	for i := 0; i < 90; i++ {
		repo.addUser(fakeID(i), "u", int64(i))
	}
	svc := NewService(nil, repo, nil, 0)

	entries, err := svc.Leaderboard(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Len(t, entries, defaultLimit)

	entries, err = svc.Leaderboard(context.Background(), 100000, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 90)
}

func fakeID(i int) string {
	return string([]byte{'u', '-', byte('a' + i/26), byte('a' + i%26)})
}

func TestRankOfMatchesLeaderboard(t *testing.T) {
	svc, _ := seededService(t)
	ctx := context.Background()

	entries, err := svc.Leaderboard(ctx, 10, 0)
	require.NoError(t, err)
	for _, e := range entries {
		mine, err := svc.RankOf(ctx, e.UserID)
		require.NoError(t, err)
		assert.Equal(t, e.Rank, mine.Rank, "user %s", e.UserID)
		assert.Equal(t, e.Balance, mine.Balance, "user %s", e.UserID)
	}
}

func TestRankOfZeroActivityUser(t *testing.T) {
	svc, _ := seededService(t)

	mine, err := svc.RankOf(context.Background(), "u-erin")
	require.NoError(t, err)
	assert.Equal(t, int64(0), mine.Balance)
	assert.Equal(t, int64(5), mine.Rank)
}

func TestRankOfOutsideTopPage(t *testing.T) {
	svc, _ := seededService(t)
	ctx := context.Background()

	page, err := svc.Leaderboard(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)

	mine, err := svc.RankOf(ctx, "u-dave")
	require.NoError(t, err)
	assert.Equal(t, int64(4), mine.Rank)
}
