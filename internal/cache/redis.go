// Package cache wires the optional Redis layer. The bot works without
// it; when configured it keeps the latest market snapshots so restarts
// and the status API do not have to wait for a fresh poll.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var (
	newRedisClient = func(opts *redis.Options) *redis.Client {
		return redis.NewClient(opts)
	}
	pingRedis = func(ctx context.Context, client *redis.Client) error {
		return client.Ping(ctx).Err()
	}
	parseRedisURL = redis.ParseURL
)

// Connect opens a Redis client for addr. An empty addr means the cache
// is disabled; the caller gets a nil client and no error.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	if addr == "" {
		return nil, nil
	}

	opts := &redis.Options{Addr: addr}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := parseRedisURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	}

	client := newRedisClient(opts)
	if err := pingRedis(ctx, client); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	log.Info().Str("addr", opts.Addr).Msg("connected to redis")
	return client, nil
}

// MarketCache stores serialized market snapshots keyed by symbol. All
// methods are no-ops when the underlying client is nil.
type MarketCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewMarketCache(client *redis.Client, ttl time.Duration) *MarketCache {
	return &MarketCache{client: client, ttl: ttl}
}

func (c *MarketCache) Enabled() bool {
	return c != nil && c.client != nil
}

func (c *MarketCache) Put(ctx context.Context, symbol string, data []byte) {
	if !c.Enabled() {
		return
	}
	if err := c.client.Set(ctx, snapshotKey(symbol), data, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("failed to cache market snapshot")
	}
}

func (c *MarketCache) Get(ctx context.Context, symbol string) ([]byte, bool) {
	if !c.Enabled() {
		return nil, false
	}
	data, err := c.client.Get(ctx, snapshotKey(symbol)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("failed to read market snapshot")
		}
		return nil, false
	}
	return data, true
}

func snapshotKey(symbol string) string {
	return "market:" + symbol
}
