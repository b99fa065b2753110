package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/halcyon271/strafetimer/internal/domain"
	"github.com/halcyon271/strafetimer/internal/obslog"
)

// Cached wraps a Gateway with a redis read-through cache for the hot
// leaderboard query. Invalidation is a per-(map, style) version counter baked
// into the cache key, so an upsert never needs to scan for stale keys. Any
// redis fault degrades to the inner gateway.
type Cached struct {
	Gateway
	rdb *redis.Client
	ttl time.Duration
}

func NewCached(inner Gateway, redisURL string) (*Cached, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Cached{Gateway: inner, rdb: rdb, ttl: 30 * time.Second}, nil
}

func (c *Cached) Close() error {
	if c.rdb != nil {
		_ = c.rdb.Close()
	}
	return c.Gateway.Close()
}

func (c *Cached) GetTopRecords(ctx context.Context, mapName string, style, limit int) ([]domain.LeaderboardEntry, error) {
	ver, err := c.rdb.Get(ctx, verKey(mapName, style)).Result()
	if err != nil && err != redis.Nil {
		obslog.L().Warn("leaderboard_cache_error", zap.Error(err))
		return c.Gateway.GetTopRecords(ctx, mapName, style, limit)
	}
	if ver == "" {
		ver = "0"
	}
	key := topKey(mapName, style, ver, limit)

	if raw, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var out []domain.LeaderboardEntry
		if jerr := json.Unmarshal(raw, &out); jerr == nil {
			return out, nil
		}
	}

	out, err := c.Gateway.GetTopRecords(ctx, mapName, style, limit)
	if err != nil {
		return nil, err
	}
	if raw, jerr := json.Marshal(out); jerr == nil {
		if serr := c.rdb.Set(ctx, key, raw, c.ttl).Err(); serr != nil {
			obslog.L().Warn("leaderboard_cache_error", zap.Error(serr))
		}
	}
	return out, nil
}

func (c *Cached) UpsertRecord(ctx context.Context, r domain.Record) (int64, int32, error) {
	prev, times, err := c.Gateway.UpsertRecord(ctx, r)
	if err != nil {
		return prev, times, err
	}
	if ierr := c.rdb.Incr(ctx, verKey(r.MapName, r.Style)).Err(); ierr != nil {
		obslog.L().Warn("leaderboard_cache_error", zap.Error(ierr))
	}
	return prev, times, nil
}

func verKey(mapName string, style int) string {
	return fmt.Sprintf("strafetimer:topver:%s:%d", mapName, style)
}

func topKey(mapName string, style int, ver string, limit int) string {
	return fmt.Sprintf("strafetimer:top:%s:%d:%s:%d", mapName, style, ver, limit)
}
