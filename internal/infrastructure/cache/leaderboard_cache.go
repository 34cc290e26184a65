package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// LeaderboardCache 排行榜窗口缓存
//
// 排行榜是只读聚合，允许轻微延迟，因此按 (period, 窗口起点, limit) 缓存整页结果。
// 窗口起点写进 key，跨周/跨月后旧 key 自然失效，不会读到上一周期的榜单
type LeaderboardCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLeaderboardCache(client *redis.Client, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{client: client, ttl: ttl}
}

func (c *LeaderboardCache) enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

func leaderboardKey(period string, windowStart time.Time, limit int) string {
	return fmt.Sprintf("leaderboard:%s:%d:%d", period, windowStart.Unix(), limit)
}

// Get 读取缓存，未命中返回 false
func (c *LeaderboardCache) Get(ctx context.Context, period string, windowStart time.Time, limit int, dest interface{}) (bool, error) {
	if !c.enabled() {
		return false, nil
	}
	raw, err := c.client.Get(ctx, leaderboardKey(period, windowStart, limit)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *LeaderboardCache) Set(ctx context.Context, period string, windowStart time.Time, limit int, value interface{}) error {
	if !c.enabled() {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, leaderboardKey(period, windowStart, limit), raw, c.ttl).Err()
}
