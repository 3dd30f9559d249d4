package ranking

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ovaphlow/pitchfork/service-reputation-go/internal/ranking/entity"
)

// pageCache holds recently computed leaderboard pages in Redis for one
// refresh cycle. It is strictly an accelerator: every failure falls
// through to Postgres, and single-user rank lookups never go through
// it.
type pageCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func newPageCache(rdb *redis.Client, ttl time.Duration) *pageCache {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &pageCache{rdb: rdb, ttl: ttl}
}

func pageKey(limit, offset int) string {
	return fmt.Sprintf("reputation:leaderboard:%d:%d", limit, offset)
}

func (c *pageCache) get(ctx context.Context, limit, offset int) ([]*entity.RankEntry, bool) {
	raw, err := c.rdb.Get(ctx, pageKey(limit, offset)).Bytes()
	if err != nil {
		return nil, false
	}
	var entries []*entity.RankEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, false
	}
	return entries, true
}

func (c *pageCache) set(ctx context.Context, limit, offset int, entries []*entity.RankEntry) {
	raw, err := json.Marshal(entries)
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, pageKey(limit, offset), raw, c.ttl).Err()
}
