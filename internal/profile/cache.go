package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	goredis "github.com/redis/go-redis/v9"

	"mentor-chat/internal/chat"
)

const DefaultCacheTTL = 5 * time.Minute

// Cache stores resolved profiles. A hit carries whatever was Set, nil
// included.
type Cache interface {
	Get(ctx context.Context, identity string, role chat.Role) (p *chat.Profile, hit bool, err error)
	Set(ctx context.Context, identity string, role chat.Role, p *chat.Profile, ttl time.Duration) error
}

func cacheKey(identity string, role chat.Role) string {
	return fmt.Sprintf("chat-profile:%s:%s", role, identity)
}

// RedisCache shares resolved profiles between instances.
type RedisCache struct {
	client *goredis.Client
}

func NewRedisCache(ctx context.Context, addr string) (*RedisCache, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis cache: ping failed: %w", err)
	}
	return &RedisCache{client: client}, nil
}

func (c *RedisCache) Get(ctx context.Context, identity string, role chat.Role) (*chat.Profile, bool, error) {
	data, err := c.client.Get(ctx, cacheKey(identity, role)).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var p *chat.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, false, err
	}
	return p, true, nil
}

func (c *RedisCache) Set(ctx context.Context, identity string, role chat.Role, p *chat.Profile, ttl time.Duration) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(identity, role), data, ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// LocalCache keeps profiles in process memory when no Redis is configured.
type LocalCache struct {
	cache *ristretto.Cache[string, localEntry]
}

type localEntry struct {
	profile *chat.Profile
}

func NewLocalCache(maxEntries int64) (*LocalCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, localEntry]{
		NumCounters:        maxEntries * 10,
		MaxCost:            maxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true, // every entry costs 1, MaxCost counts entries
	})
	if err != nil {
		return nil, err
	}
	return &LocalCache{cache: cache}, nil
}

func (c *LocalCache) Get(_ context.Context, identity string, role chat.Role) (*chat.Profile, bool, error) {
	e, ok := c.cache.Get(cacheKey(identity, role))
	if !ok {
		return nil, false, nil
	}
	return e.profile, true, nil
}

func (c *LocalCache) Set(_ context.Context, identity string, role chat.Role, p *chat.Profile, ttl time.Duration) error {
	c.cache.SetWithTTL(cacheKey(identity, role), localEntry{profile: p}, 1, ttl)
	c.cache.Wait()
	return nil
}

func (c *LocalCache) Close() error {
	c.cache.Close()
	return nil
}

var (
	_ Cache = (*RedisCache)(nil)
	_ Cache = (*LocalCache)(nil)
)
