/**
 * Unified storage manager: PostgreSQL (durable) + Redis (latest-value cache).
 *
 * A unit record write succeeds iff the PostgreSQL upsert succeeds; the Redis
 * mirror is best-effort and only logged on failure.
 */

package storage

import (
	"context"
	"fmt"

	"github.com/reeflab/aquapanel-worker/internal/logging"
)

// Manager coordinates the durable store and the latest-reading cache.
type Manager struct {
	Postgres *PostgresClient
	Cache    *RedisCache
	log      *logging.Logger
}

// NewManager connects to both stores.
func NewManager(databaseURL, redisURL string) (*Manager, error) {
	postgres, err := NewPostgresClient(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL client: %w", err)
	}

	cache, err := NewRedisCache(redisURL)
	if err != nil {
		postgres.Close()
		return nil, fmt.Errorf("failed to initialize Redis cache: %w", err)
	}

	return &Manager{
		Postgres: postgres,
		Cache:    cache,
		log:      logging.NewLogger("storage"),
	}, nil
}

// SaveUnitRecord persists one extraction outcome. The PostgreSQL upsert is
// authoritative; a cache miss is tolerated.
func (m *Manager) SaveUnitRecord(ctx context.Context, rec *UnitRecord) error {
	if err := m.Postgres.UpsertUnitRecord(ctx, rec); err != nil {
		return err
	}

	if err := m.Cache.SetLatest(ctx, rec); err != nil {
		m.log.Warn("latest-reading cache update failed", "unit", rec.UnitID, "error", err)
	}

	return nil
}

// UpdateJobStatus records a capture-job status transition.
func (m *Manager) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	return m.Postgres.UpdateJobStatus(ctx, update)
}

// GetUnitRecord reads the durable record for a unit.
func (m *Manager) GetUnitRecord(ctx context.Context, unitID string) (*UnitRecord, error) {
	return m.Postgres.GetUnitRecord(ctx, unitID)
}

// Ping verifies connectivity to the durable store.
func (m *Manager) Ping(ctx context.Context) error {
	return m.Postgres.Ping(ctx)
}

// Close closes both stores, returning the first error encountered.
func (m *Manager) Close() error {
	var firstErr error
	if err := m.Postgres.Close(); err != nil {
		firstErr = err
	}
	if err := m.Cache.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
