/**
 * Redis mirror of the latest reading per unit.
 *
 * Dashboards poll this cache instead of PostgreSQL. The mirror is
 * best-effort: PostgreSQL remains the source of truth and cache failures
 * never fail a job.
 */

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	latestKeyPrefix = "aquapanel:latest:"
	eventsChannel   = "aquapanel:events"
)

// RedisCache mirrors the latest unit readings into Redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a Redis cache client.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis URL is required")
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// SetLatest stores the unit's readings in its latest-value hash and
// publishes a readings-updated event for live dashboards.
func (c *RedisCache) SetLatest(ctx context.Context, rec *UnitRecord) error {
	if rec == nil || rec.UnitID == "" {
		return fmt.Errorf("unit ID is required")
	}

	fields := map[string]interface{}{
		"recorded_at": time.Now().UTC().Format(time.RFC3339),
	}
	for param, value := range rec.Readings {
		fields[string(param)] = value
	}

	key := latestKeyPrefix + rec.UnitID
	if err := c.client.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("failed to cache latest readings for %s: %w", rec.UnitID, err)
	}

	event := map[string]interface{}{
		"event":     "readings:updated",
		"unitId":    rec.UnitID,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	eventData, _ := json.Marshal(event)
	c.client.Publish(ctx, eventsChannel, eventData)

	return nil
}

// GetLatest returns the cached readings hash for a unit, or nil when the
// unit has no cached entry.
func (c *RedisCache) GetLatest(ctx context.Context, unitID string) (map[string]string, error) {
	if unitID == "" {
		return nil, fmt.Errorf("unit ID is required")
	}

	fields, err := c.client.HGetAll(ctx, latestKeyPrefix+unitID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read latest readings for %s: %w", unitID, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return fields, nil
}

// Ping checks cache connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
