package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func stubRedis(t *testing.T, pingErr error) *string {
	t.Helper()

	origNewClient := newRedisClient
	origPing := pingRedis
	t.Cleanup(func() {
		newRedisClient = origNewClient
		pingRedis = origPing
	})

	captured := new(string)
	newRedisClient = func(opts *redis.Options) *redis.Client {
		*captured = opts.Addr
		return redis.NewClient(opts)
	}
	pingRedis = func(ctx context.Context, client *redis.Client) error {
		return pingErr
	}
	return captured
}

func TestConnectDisabledWithoutAddr(t *testing.T) {
	client, err := Connect(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client != nil {
		t.Fatal("empty addr should disable the cache")
	}
}

func TestConnectPlainAddr(t *testing.T) {
	captured := stubRedis(t, nil)

	client, err := Connect(context.Background(), "redis:9999")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client == nil {
		t.Fatal("expected a client")
	}
	if *captured != "redis:9999" {
		t.Fatalf("expected plain addr to pass through, got %s", *captured)
	}
}

func TestConnectRedisURL(t *testing.T) {
	captured := stubRedis(t, nil)

	if _, err := Connect(context.Background(), "redis://user:pw@host:6380/2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *captured != "host:6380" {
		t.Fatalf("expected parsed url addr, got %s", *captured)
	}
}

func TestConnectPingFailure(t *testing.T) {
	stubRedis(t, context.DeadlineExceeded)

	if _, err := Connect(context.Background(), "redis:9999"); err == nil {
		t.Fatal("expected ping failure to surface")
	}
}

func TestMarketCacheDisabled(t *testing.T) {
	var c *MarketCache
	if c.Enabled() {
		t.Fatal("nil cache should report disabled")
	}

	c = NewMarketCache(nil, time.Minute)
	if c.Enabled() {
		t.Fatal("cache without a client should report disabled")
	}

	c.Put(context.Background(), "BTC", []byte("x"))
	if _, ok := c.Get(context.Background(), "BTC"); ok {
		t.Fatal("disabled cache should never return data")
	}
}
