package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// Redis is a Handler backed by a Redis server. Expiry is delegated to the
// server's native TTL; the sidecar metadata travels inside the stored
// envelope. Concurrent access relies on the backend's own concurrency
// control rather than client-side locking.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis creates a handler on the given client. All keys are stored under
// prefix to keep cache entries apart from other tenants of the same server.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

var _ Handler = &Redis{}

func (r *Redis) key(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}

// Save stores value under key with the given ttl.
func (r *Redis) Save(ctx context.Context, key string, value Value, ttl time.Duration) error {
	now := time.Now()

	var prev *Metadata
	if raw, err := r.client.Get(ctx, r.key(key)).Bytes(); err == nil {
		var existing envelope
		if json.Unmarshal(raw, &existing) == nil {
			prev = &existing.Metadata
		}
	}

	payload, err := json.Marshal(envelope{
		Kind:     value.Kind,
		Data:     value.Raw,
		Metadata: newMetadata(prev, now, ttl),
	})
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %q: %w", key, err)
	}

	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, r.key(key), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store cache entry %q: %w", key, err)
	}
	return nil
}

// Load returns the value under key. Expired entries are already gone on the
// server side.
func (r *Redis) Load(ctx context.Context, key string) (Value, bool, error) {
	raw, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Value{}, false, nil
	}
	if err != nil {
		return Value{}, false, fmt.Errorf("failed to load cache entry %q: %w", key, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Value{}, false, fmt.Errorf("failed to decode cache entry %q: %w", key, err)
	}
	return Value{Kind: env.Kind, Raw: env.Data}, true, nil
}

// Delete removes key and reports whether an entry was present.
func (r *Redis) Delete(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Del(ctx, r.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete cache entry %q: %w", key, err)
	}
	return n > 0, nil
}

// Exists reports whether a live entry is stored under key.
func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check cache entry %q: %w", key, err)
	}
	return n > 0, nil
}
