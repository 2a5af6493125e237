// Package redis keeps guild cooldowns in Redis so several bot processes share them.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"gamingbot/internal/models"
)

const keyPrefix = "gamingbot:cooldown:"

type Client struct {
	rdb *redis.Client
}

func New(ctx context.Context, dsn string) (*Client, error) {
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis dsn: %w", err)
	}

	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.ConnMaxIdleTime = 5 * time.Minute
	opts.ConnMaxLifetime = 30 * time.Minute

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// CooldownStore implements notify.CooldownStore on top of Redis.
// Keys expire after ttl, an expired key reads as never notified.
type CooldownStore struct {
	client *Client
	ttl    time.Duration
}

// NewCooldownStore creates a store. ttl <= 0 keeps keys forever.
func NewCooldownStore(client *Client, ttl time.Duration) *CooldownStore {
	return &CooldownStore{client: client, ttl: ttl}
}

func cooldownKey(guildID string) string {
	return keyPrefix + guildID
}

func (s *CooldownStore) LastNotified(ctx context.Context, guildID string) (time.Time, bool, error) {
	raw, err := s.client.rdb.Get(ctx, cooldownKey(guildID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get cooldown: %w", err)
	}
	at, err := parseEpoch(raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return at, true, nil
}

func (s *CooldownStore) SetLastNotified(ctx context.Context, guildID string, at time.Time) error {
	ttl := s.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.rdb.Set(ctx, cooldownKey(guildID), formatEpoch(at), ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cooldown: %w", err)
	}
	return nil
}

func formatEpoch(t time.Time) string {
	return strconv.FormatFloat(models.EpochSeconds(t), 'f', -1, 64)
}

func parseEpoch(raw string) (time.Time, error) {
	sec, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cooldown value %q: %w", raw, err)
	}
	return models.FromEpochSeconds(sec), nil
}
