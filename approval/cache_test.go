package approval

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// countingStore wraps MemoryStore and counts backend reads.
type countingStore struct {
	*MemoryStore
	mu   sync.Mutex
	gets int
}

func (s *countingStore) Get(ctx context.Context, toolID string) (*Record, error) {
	s.mu.Lock()
	s.gets++
	s.mu.Unlock()
	return s.MemoryStore.Get(ctx, toolID)
}

func (s *countingStore) getCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

func TestCachedStore_ServesFromCache(t *testing.T) {
	ctx := context.Background()
	backend := &countingStore{MemoryStore: NewMemoryStore()}
	if err := backend.Put(ctx, record("calculator", "1.0.0", "calc:execute")); err != nil {
		t.Fatal(err)
	}

	c := NewCachedStore(backend, time.Minute, zap.NewNop())
	for i := 0; i < 5; i++ {
		rec, err := c.Get(ctx, "calculator")
		if err != nil {
			t.Fatal(err)
		}
		if rec == nil || rec.Version != "1.0.0" {
			t.Fatalf("unexpected record: %+v", rec)
		}
	}
	if got := backend.getCount(); got != 1 {
		t.Fatalf("expected one backend read, got %d", got)
	}
}

func TestCachedStore_NegativeCache(t *testing.T) {
	ctx := context.Background()
	backend := &countingStore{MemoryStore: NewMemoryStore()}
	c := NewCachedStore(backend, time.Minute, zap.NewNop())

	for i := 0; i < 3; i++ {
		rec, err := c.Get(ctx, "ghost")
		if err != nil {
			t.Fatal(err)
		}
		if rec != nil {
			t.Fatalf("unexpected record for unapproved tool: %+v", rec)
		}
	}
	if got := backend.getCount(); got != 1 {
		t.Fatalf("expected one backend read for negative entry, got %d", got)
	}
}

func TestCachedStore_WriteThrough(t *testing.T) {
	ctx := context.Background()
	backend := &countingStore{MemoryStore: NewMemoryStore()}
	c := NewCachedStore(backend, time.Minute, zap.NewNop())

	if err := c.Put(ctx, record("calculator", "1.0.0", "calc:execute")); err != nil {
		t.Fatal(err)
	}

	rec, err := c.Get(ctx, "calculator")
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil || rec.Version != "1.0.0" {
		t.Fatalf("unexpected record after put: %+v", rec)
	}
	if got := backend.getCount(); got != 0 {
		t.Fatalf("read after write-through hit the backend %d times", got)
	}

	stored, err := backend.MemoryStore.Get(ctx, "calculator")
	if err != nil {
		t.Fatal(err)
	}
	if stored == nil {
		t.Fatal("put did not reach the backend")
	}

	if err := c.Delete(ctx, "calculator"); err != nil {
		t.Fatal(err)
	}
	rec, err = c.Get(ctx, "calculator")
	if err != nil {
		t.Fatal(err)
	}
	if rec != nil {
		t.Fatal("cached record visible after delete")
	}
}

func TestCachedStore_StaleRefresh(t *testing.T) {
	ctx := context.Background()
	backend := &countingStore{MemoryStore: NewMemoryStore()}
	if err := backend.Put(ctx, record("calculator", "1.0.0", "calc:execute")); err != nil {
		t.Fatal(err)
	}

	c := NewCachedStore(backend, 5*time.Millisecond, zap.NewNop())
	if _, err := c.Get(ctx, "calculator"); err != nil {
		t.Fatal(err)
	}

	// Write around the cache, let the entry expire, then read: the stale
	// value is served and a background refresh picks up the new version.
	if err := backend.MemoryStore.Put(ctx, record("calculator", "2.0.0", "calc:execute")); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)

	stale, err := c.Get(ctx, "calculator")
	if err != nil {
		t.Fatal(err)
	}
	if stale == nil || stale.Version != "1.0.0" {
		t.Fatalf("expected stale record served, got %+v", stale)
	}

	deadline := time.Now().Add(time.Second)
	for {
		rec, err := c.Get(ctx, "calculator")
		if err != nil {
			t.Fatal(err)
		}
		if rec != nil && rec.Version == "2.0.0" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("background refresh never surfaced the new record")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestCachedStore_Invalidate(t *testing.T) {
	ctx := context.Background()
	backend := &countingStore{MemoryStore: NewMemoryStore()}
	if err := backend.Put(ctx, record("calculator", "1.0.0", "calc:execute")); err != nil {
		t.Fatal(err)
	}

	c := NewCachedStore(backend, time.Minute, zap.NewNop())
	if _, err := c.Get(ctx, "calculator"); err != nil {
		t.Fatal(err)
	}

	if err := backend.MemoryStore.Put(ctx, record("calculator", "2.0.0", "calc:execute")); err != nil {
		t.Fatal(err)
	}
	c.Invalidate("calculator")

	rec, err := c.Get(ctx, "calculator")
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil || rec.Version != "2.0.0" {
		t.Fatalf("invalidate did not force a backend read: %+v", rec)
	}
}

// Verify the store contracts are satisfied at compile time.
var (
	_ Store      = (*MemoryStore)(nil)
	_ Store      = (*PostgresStore)(nil)
	_ Store      = (*CachedStore)(nil)
	_ ChainStore = (*MemoryStore)(nil)
	_ ChainStore = (*PostgresStore)(nil)
)
