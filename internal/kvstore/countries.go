// Package kvstore provides the Redis-backed source-country directory
// consulted by the repost detector.
package kvstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/driftwatch/driftwatch/internal/conf"
	"github.com/driftwatch/driftwatch/internal/errors"
)

// countriesHashKey is the hash holding chat-id → country-code mappings,
// maintained by the source enrichment pipeline. Read-only here.
const countriesHashKey = "tg_countries"

// CountryDirectory resolves chat countries via a single hash-field lookup.
type CountryDirectory struct {
	client      *redis.Client
	callTimeout time.Duration
}

// New connects to Redis per the given settings.
func New(settings *conf.RedisSettings) *CountryDirectory {
	client := redis.NewClient(&redis.Options{
		Addr:     settings.Addr,
		DB:       settings.DB,
		Password: settings.Password,
	})
	return &CountryDirectory{
		client:      client,
		callTimeout: settings.CallTimeout.Std(),
	}
}

// ForwardCountry returns the country code registered for chatID, or empty
// when the chat is unknown. Connectivity failures are returned so callers
// can treat them as a detector-local failure instead of "unknown chat".
func (d *CountryDirectory) ForwardCountry(ctx context.Context, chatID int64) (string, error) {
	if d.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.callTimeout)
		defer cancel()
	}

	country, err := d.client.HGet(ctx, countriesHashKey, strconv.FormatInt(chatID, 10)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", errors.New(fmt.Errorf("country lookup for chat %d: %w", chatID, err)).
			Component("kvstore").Category(errors.CategoryNetwork).Build()
	}
	return country, nil
}

// Ping verifies connectivity on startup.
func (d *CountryDirectory) Ping(ctx context.Context) error {
	if err := d.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (d *CountryDirectory) Close() error {
	return d.client.Close()
}
