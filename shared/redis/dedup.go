package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DedupStore remembers processed keys for a bounded window so that a redelivered
// message can be recognised and skipped.
type DedupStore struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
}

func NewDedupStore(client *goredis.Client, prefix string, ttl time.Duration) *DedupStore {
	return &DedupStore{client: client, prefix: prefix, ttl: ttl}
}

// Seen reports whether key was marked processed within the window.
func (d *DedupStore) Seen(ctx context.Context, key string) (bool, error) {
	_, err := d.client.Get(ctx, d.prefix+key).Result()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up processed key %s: %w", key, err)
	}
	return true, nil
}

// MarkProcessed records key once its message has been fully handled.
func (d *DedupStore) MarkProcessed(ctx context.Context, key string) error {
	if err := d.client.Set(ctx, d.prefix+key, "1", d.ttl).Err(); err != nil {
		return fmt.Errorf("failed to record processed key %s: %w", key, err)
	}
	return nil
}
