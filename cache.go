package slamon

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// CacheKey is the storage key the snapshot is persisted under.
const CacheKey = "sla_monitoring_cache"

// Snapshot is the last full SLA payload and when it was cached.
type Snapshot struct {
	Data     *SLAData
	CachedAt time.Time
}

// cacheEntry is the persisted form; timestamp is unix milliseconds.
type cacheEntry struct {
	Data      *SLAData `json:"data"`
	Timestamp int64    `json:"timestamp"`
}

// SnapshotCache keeps the last SLA snapshot in memory and in Storage. Storage
// is best effort: read and write failures are logged and otherwise ignored.
type SnapshotCache struct {
	storage Storage
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *Metrics

	mu      sync.RWMutex
	current *Snapshot
}

func newSnapshotCache(storage Storage, config *ChannelConfig, logger *slog.Logger, metrics *Metrics) *SnapshotCache {
	c := &SnapshotCache{
		storage: storage,
		ttl:     config.CacheTTL,
		now:     config.Now,
		logger:  logger,
		metrics: metrics,
	}
	c.Restore()
	return c
}

// Restore loads the persisted snapshot if it is younger than the TTL.
// Expired or unreadable entries are removed from storage.
func (c *SnapshotCache) Restore() *Snapshot {
	if c.storage == nil {
		return nil
	}
	raw, ok, err := c.storage.GetItem(CacheKey)
	if err != nil {
		c.logger.Warn("snapshot cache read failed", "err", err)
		return nil
	}
	if !ok {
		return nil
	}

	var entry cacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil || entry.Data == nil {
		c.logger.Warn("discarding corrupted snapshot cache entry", "err", err)
		c.remove()
		return nil
	}

	snap := &Snapshot{Data: entry.Data, CachedAt: time.UnixMilli(entry.Timestamp)}
	if !c.fresh(snap) {
		c.logger.Debug("discarding expired snapshot", "cached_at", snap.CachedAt)
		c.remove()
		return nil
	}

	c.mu.Lock()
	c.current = snap
	c.mu.Unlock()
	return snap
}

// Save stores data as the current snapshot.
func (c *SnapshotCache) Save(data *SLAData) {
	snap := &Snapshot{Data: data, CachedAt: c.now()}
	c.mu.Lock()
	c.current = snap
	c.mu.Unlock()

	if c.storage == nil {
		return
	}
	raw, err := json.Marshal(cacheEntry{Data: data, Timestamp: snap.CachedAt.UnixMilli()})
	if err == nil {
		err = c.storage.SetItem(CacheKey, string(raw))
	}
	if err != nil {
		c.logger.Warn("snapshot cache write failed", "err", err)
		c.metrics.cacheWrite("error")
		return
	}
	c.metrics.cacheWrite("ok")
}

// Get returns the current snapshot, or nil once it is older than the TTL.
func (c *SnapshotCache) Get() *Snapshot {
	c.mu.RLock()
	snap := c.current
	c.mu.RUnlock()
	if snap == nil || !c.fresh(snap) {
		return nil
	}
	return snap
}

// HasFreshData reports whether Get would return a snapshot.
func (c *SnapshotCache) HasFreshData() bool {
	return c.Get() != nil
}

func (c *SnapshotCache) fresh(snap *Snapshot) bool {
	return c.now().Sub(snap.CachedAt) < c.ttl
}

func (c *SnapshotCache) remove() {
	if err := c.storage.RemoveItem(CacheKey); err != nil {
		c.logger.Warn("snapshot cache remove failed", "err", err)
	}
}
