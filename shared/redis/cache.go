package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// setIfVersion writes KEYS[1] only while the version counter KEYS[2] still holds ARGV[1].
var setIfVersion = goredis.NewScript(`
local current = redis.call('GET', KEYS[2])
if current == false then current = '0' end
if current ~= ARGV[1] then return 0 end
if tonumber(ARGV[3]) > 0 then
  redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
else
  redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

// ViewCache is a generic JSON-backed Redis cache for read model projections.
// Bind it to a specific view type T; each instance holds a Redis client and an
// optional TTL (pass 0 for keys that should not expire).
//
// Every write and delete bumps a per-key version counter. Read-through fills use
// Version and SetIfVersion so a value loaded before a concurrent write can never
// overwrite it.
type ViewCache[T any] struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
	logger zerolog.Logger
}

// NewViewCache creates a ViewCache whose keys all start with prefix.
func NewViewCache[T any](client *goredis.Client, prefix string, ttl time.Duration, logger zerolog.Logger) *ViewCache[T] {
	return &ViewCache[T]{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

func (c *ViewCache[T]) versionKey(key string) string {
	return c.prefix + key + ":v"
}

// Get retrieves and unmarshals a value from Redis.
// Returns (nil, false) on any miss. Entries that no longer unmarshal are removed.
func (c *ViewCache[T]) Get(ctx context.Context, key string) (*T, bool) {
	data, err := c.client.Get(ctx, c.prefix+key).Result()
	if err != nil {
		return nil, false
	}
	var v T
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		c.logger.Warn().Err(err).Str("key", c.prefix+key).Msg("evicting corrupt view cache entry")
		c.client.Del(ctx, c.prefix+key)
		return nil, false
	}
	return &v, true
}

// Version returns the current version of key. ok is false when Redis could not
// be asked, in which case the caller should not fill the cache.
func (c *ViewCache[T]) Version(ctx context.Context, key string) (version string, ok bool) {
	v, err := c.client.Get(ctx, c.versionKey(key)).Result()
	if errors.Is(err, goredis.Nil) {
		return "0", true
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("key", c.prefix+key).Msg("view cache version read error")
		return "", false
	}
	return v, true
}

// SetIfVersion stores value unless key was written or deleted since version was read.
func (c *ViewCache[T]) SetIfVersion(ctx context.Context, key, version string, value *T) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", c.prefix+key).Msg("view cache marshal error")
		return
	}
	keys := []string{c.prefix + key, c.versionKey(key)}
	if err := setIfVersion.Run(ctx, c.client, keys, version, data, c.ttl.Milliseconds()).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", c.prefix+key).Msg("view cache write error")
	}
}

// Set marshals value and stores it in Redis under key.
// Errors are logged rather than returned; a cache write miss is non-fatal.
func (c *ViewCache[T]) Set(ctx context.Context, key string, value *T) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", c.prefix+key).Msg("view cache marshal error")
		return
	}
	_, err = c.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		c.bumpVersion(ctx, pipe, key)
		pipe.Set(ctx, c.prefix+key, data, c.ttl)
		return nil
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("key", c.prefix+key).Msg("view cache write error")
	}
}

// Delete removes a key from Redis.
func (c *ViewCache[T]) Delete(ctx context.Context, key string) {
	_, err := c.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		c.bumpVersion(ctx, pipe, key)
		pipe.Del(ctx, c.prefix+key)
		return nil
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("key", c.prefix+key).Msg("view cache delete error")
	}
}

func (c *ViewCache[T]) bumpVersion(ctx context.Context, pipe goredis.Pipeliner, key string) {
	pipe.Incr(ctx, c.versionKey(key))
	if c.ttl > 0 {
		pipe.Expire(ctx, c.versionKey(key), c.ttl)
	}
}
