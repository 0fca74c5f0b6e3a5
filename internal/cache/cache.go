package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mgoodwin/go-carpool/internal/types"
	"github.com/redis/go-redis/v9"
)

// listingsKey is the single fixed key holding the JSON-encoded carpool
// listing snapshot.
const listingsKey = "carpool:listings"

// listingTTL bounds how stale a repopulated snapshot can be. Invalidation
// after a mutation is an optimization, not a consistency guarantee.
const listingTTL = 30 * time.Second

type ListingCache interface {
	GetListings(ctx context.Context) ([]types.Carpool, bool, error)
	SetListings(ctx context.Context, listings []types.Carpool) error
	Invalidate(ctx context.Context) error
}

type RedisListingCache struct {
	client *redis.Client
}

func NewRedisListingCache(client *redis.Client) *RedisListingCache {
	return &RedisListingCache{client: client}
}

// GetListings returns the cached snapshot. The second return value is false
// on a cache miss.
func (c *RedisListingCache) GetListings(ctx context.Context) ([]types.Carpool, bool, error) {
	data, err := c.client.Get(ctx, listingsKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache get: %w", err)
	}

	var listings []types.Carpool
	if err := json.Unmarshal(data, &listings); err != nil {
		return nil, false, fmt.Errorf("cache unmarshal: %w", err)
	}

	return listings, true, nil
}

func (c *RedisListingCache) SetListings(ctx context.Context, listings []types.Carpool) error {
	data, err := json.Marshal(listings)
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}

	if err := c.client.Set(ctx, listingsKey, data, listingTTL).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}

	return nil
}

// Invalidate deletes the listing snapshot so the next read repopulates it
// from the database.
func (c *RedisListingCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, listingsKey).Err(); err != nil {
		return fmt.Errorf("cache del: %w", err)
	}

	return nil
}
