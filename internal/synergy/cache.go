package synergy

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/wtthornton/HomeIQ-sub015/internal/synergy/graph"
	"github.com/wtthornton/HomeIQ-sub015/pkg/ontology"
	"github.com/wtthornton/HomeIQ-sub015/pkg/redis"
)

// graphSnapshot bundles the device graph with the entity snapshot it was
// built from, so spatial annotation reads the same world state the graph
// encodes.
type graphSnapshot struct {
	graph    *graph.DeviceGraph
	entities []ontology.Entity
	builtAt  time.Time
}

// snapshotCache keeps the most recently built graph for the prediction
// path. Predictions rebuild at most once per TTL; training always
// rebuilds and replaces the cached snapshot.
type snapshotCache struct {
	mu  sync.Mutex
	ttl time.Duration
	cur *graphSnapshot
}

func newSnapshotCache(ttl time.Duration) *snapshotCache {
	return &snapshotCache{ttl: ttl}
}

func (c *snapshotCache) get() *graphSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil || time.Since(c.cur.builtAt) > c.ttl {
		return nil
	}
	return c.cur
}

func (c *snapshotCache) put(snap *graphSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = snap
}

func (c *snapshotCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = nil
}

// scoreCache is the optional redis-backed pair-score cache. The model
// version is part of every key, so a retrain or rollback starts from a
// clean namespace without explicit invalidation. A nil client disables
// caching; unversioned (untrained) predictions are never cached.
type scoreCache struct {
	client redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func (c *scoreCache) get(ctx context.Context, version, pairKey string) (ScoredSynergy, bool) {
	if c.client == nil || version == "" {
		return ScoredSynergy{}, false
	}

	raw, err := c.client.Get(ctx, redis.ScoreCacheKey(version, pairKey))
	if err != nil {
		if !errors.Is(err, redis.ErrNotFound) {
			c.logger.Warn("Score cache read failed", "pair", pairKey, "error", err)
		}
		return ScoredSynergy{}, false
	}

	var scored ScoredSynergy
	if err := json.Unmarshal([]byte(raw), &scored); err != nil {
		c.logger.Warn("Discarding unreadable cached score", "pair", pairKey, "error", err)
		return ScoredSynergy{}, false
	}
	return scored, true
}

func (c *scoreCache) put(ctx context.Context, version, pairKey string, scored ScoredSynergy) {
	if c.client == nil || version == "" {
		return
	}

	payload, err := json.Marshal(scored)
	if err != nil {
		c.logger.Error("Failed to encode score for cache", "pair", pairKey, "error", err)
		return
	}
	if err := c.client.Set(ctx, redis.ScoreCacheKey(version, pairKey), string(payload), c.ttl); err != nil {
		c.logger.Warn("Score cache write failed", "pair", pairKey, "error", err)
	}
}
