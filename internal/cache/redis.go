package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oshokin/expo-updates-server/internal/domain/update"
)

// keyPrefix namespaces digest entries inside a shared Redis database.
const keyPrefix = "expo-updates:digest:"

// pingTimeout bounds the connectivity check performed by Dial.
const pingTimeout = 2 * time.Second

// Redis is a digest cache backed by Redis. Bundles are immutable, so entries
// only expire through their TTL.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// Dial connects to addr and verifies the server answers.
func Dial(ctx context.Context, addr string, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}

	return New(client, ttl), nil
}

// New wraps an existing client. A non-positive ttl keeps entries forever.
func New(client redis.UniversalClient, ttl time.Duration) *Redis {
	if ttl < 0 {
		ttl = 0
	}

	return &Redis{
		client: client,
		ttl:    ttl,
	}
}

// Get returns the cached digests of objectKey and whether they were present.
func (r *Redis) Get(ctx context.Context, objectKey string) (update.Digests, bool, error) {
	data, err := r.client.Get(ctx, keyPrefix+objectKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return update.Digests{}, false, nil
		}

		return update.Digests{}, false, fmt.Errorf("get digest %s: %w", objectKey, err)
	}

	var digests update.Digests
	if err = json.Unmarshal(data, &digests); err != nil {
		return update.Digests{}, false, fmt.Errorf("decode digest %s: %w", objectKey, err)
	}

	// Treat half-written entries as misses.
	if digests.Hash == "" || digests.Key == "" {
		return update.Digests{}, false, nil
	}

	return digests, true, nil
}

// Set stores the digests of objectKey.
func (r *Redis) Set(ctx context.Context, objectKey string, digests update.Digests) error {
	data, err := json.Marshal(digests)
	if err != nil {
		return fmt.Errorf("encode digest %s: %w", objectKey, err)
	}

	if err = r.client.Set(ctx, keyPrefix+objectKey, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("set digest %s: %w", objectKey, err)
	}

	return nil
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
