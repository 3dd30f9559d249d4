package ranking

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/ovaphlow/pitchfork/service-reputation-go/internal/ranking/entity"
	rankrepo "github.com/ovaphlow/pitchfork/service-reputation-go/internal/ranking/repo"
)

// Repo is the data access surface the ranking service needs.
type Repo interface {
	Leaderboard(ctx context.Context, limit, offset int) ([]*entity.RankEntry, error)
	RankOf(ctx context.Context, primaryID string) (*entity.RankEntry, error)
}

const defaultLimit = 50
const maxLimit = 200

// Service produces the ordered leaderboard view and positional rank
// lookups over canonical users. Reads may run concurrently with ledger
// writes; a leaderboard page is eventually consistent, while a single
// RankOf call is computed against one snapshot.
type Service struct {
	repo  Repo
	cache *pageCache
}

// NewService constructs the ranking service. rdb may be nil, which
// disables the leaderboard page cache.
func NewService(db *sqlx.DB, r Repo, rdb *redis.Client, cacheTTL time.Duration) *Service {
	if r == nil {
		r = rankrepo.NewRankRepo(db)
	}
	s := &Service{repo: r}
	if rdb != nil {
		s.cache = newPageCache(rdb, cacheTTL)
	}
	return s
}

// Leaderboard returns one page of rank entries, balance descending with
// the primary id as deterministic tie-break. Pages may be served from
// the cache for up to one refresh cycle.
func (s *Service) Leaderboard(ctx context.Context, limit, offset int) ([]*entity.RankEntry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	if s.cache != nil {
		if entries, ok := s.cache.get(ctx, limit, offset); ok {
			return entries, nil
		}
	}
	entries, err := s.repo.Leaderboard(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.set(ctx, limit, offset, entries)
	}
	return entries, nil
}

// RankOf returns the balance and 1-based rank for the user. A user with
// no ledger activity ranks with balance zero, never not-found. Always
// computed against the store, never the cache.
func (s *Service) RankOf(ctx context.Context, primaryID string) (*entity.RankEntry, error) {
	return s.repo.RankOf(ctx, primaryID)
}
