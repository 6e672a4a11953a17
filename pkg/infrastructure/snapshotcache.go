package infrastructure

import (
	"time"

	"github.com/akeemphilbert/mercato/pkg/domain"
	gocache "github.com/patrickmn/go-cache"
)

// SnapshotCache is a read-through cache in front of the snapshots table.
// Entries are set after a successful commit and invalidated the moment a new
// snapshot for the aggregate is buffered, so a concurrent reader can never
// observe a cached snapshot newer than storage.
type SnapshotCache struct {
	cache *gocache.Cache
}

// NewSnapshotCache creates a snapshot cache with the given TTL.
func NewSnapshotCache(ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{
		cache: gocache.New(ttl, 2*ttl),
	}
}

// Get returns the cached snapshot for an aggregate id, if present.
func (c *SnapshotCache) Get(aggregateID string) (domain.Snapshot, bool) {
	if c == nil {
		return domain.Snapshot{}, false
	}
	v, ok := c.cache.Get(aggregateID)
	if !ok {
		return domain.Snapshot{}, false
	}
	return v.(domain.Snapshot), true
}

// Set stores a snapshot. Called only after the snapshot's transaction has
// committed.
func (c *SnapshotCache) Set(snapshot domain.Snapshot) {
	if c == nil {
		return
	}
	c.cache.SetDefault(snapshot.AggregateID, snapshot)
}

// Invalidate drops the cached snapshot for an aggregate id.
func (c *SnapshotCache) Invalidate(aggregateID string) {
	if c == nil {
		return
	}
	c.cache.Delete(aggregateID)
}
