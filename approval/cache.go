package approval

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultCacheTTL bounds how stale a cached approval read may be. Writes
// through this process update the cache immediately; the TTL only limits
// staleness against writes from other processes.
const DefaultCacheTTL = 30 * time.Second

// CachedStore wraps a Store with a TTL cache using stale-while-revalidate:
// reads on the hot path never block on the backend once an entry exists,
// and an expired entry is served stale while one goroutine refreshes it in
// the background. Absent records are cached too, so repeated lookups of an
// unapproved tool cost one backend read per TTL.
type CachedStore struct {
	backend Store
	entries sync.Map // map[string]*cacheEntry
	ttl     time.Duration
	logger  *zap.Logger
}

type cacheEntry struct {
	rec        *Record // nil = negative entry (no approval on record)
	expiresAt  time.Time
	refreshing atomic.Bool
}

// NewCachedStore wraps backend. A zero ttl applies DefaultCacheTTL.
func NewCachedStore(backend Store, ttl time.Duration, logger *zap.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedStore{backend: backend, ttl: ttl, logger: logger}
}

func (c *CachedStore) Get(ctx context.Context, toolID string) (*Record, error) {
	if val, ok := c.entries.Load(toolID); ok {
		entry := val.(*cacheEntry)
		if time.Now().Before(entry.expiresAt) {
			return entry.rec.Clone(), nil
		}
		if entry.refreshing.CompareAndSwap(false, true) {
			go c.refresh(toolID)
		}
		return entry.rec.Clone(), nil
	}

	rec, err := c.backend.Get(ctx, toolID)
	if err != nil {
		return nil, err
	}
	c.set(toolID, rec)
	return rec.Clone(), nil
}

func (c *CachedStore) Put(ctx context.Context, rec *Record) error {
	if err := c.backend.Put(ctx, rec); err != nil {
		return err
	}
	c.set(rec.ToolID, rec.Clone())
	return nil
}

func (c *CachedStore) Delete(ctx context.Context, toolID string) error {
	if err := c.backend.Delete(ctx, toolID); err != nil {
		return err
	}
	c.set(toolID, nil)
	return nil
}

// Invalidate drops the cached entry for toolID so the next read hits the
// backend. Used when another process is known to have written.
func (c *CachedStore) Invalidate(toolID string) {
	c.entries.Delete(toolID)
}

func (c *CachedStore) set(toolID string, rec *Record) {
	c.entries.Store(toolID, &cacheEntry{
		rec:       rec,
		expiresAt: time.Now().Add(c.ttl),
	})
}

func (c *CachedStore) refresh(toolID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec, err := c.backend.Get(ctx, toolID)
	if err != nil {
		c.logger.Warn("background approval refresh failed",
			zap.String("tool_id", toolID),
			zap.Error(err),
		)
		return
	}
	c.set(toolID, rec)
}
