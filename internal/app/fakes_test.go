package app_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/victorhugom-zz/rio-review/internal/domain"
	"github.com/victorhugom-zz/rio-review/internal/storage"
	"github.com/victorhugom-zz/rio-review/internal/storage/memory"
)

// ---- fakes ----

type fakeCache struct {
	mu    sync.Mutex
	store map[string][]byte
	dels  []string
	hits  int
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.store[key]
	if !ok {
		return false, nil
	}
	c.hits++
	return true, json.Unmarshal(b, dst)
}

func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = map[string][]byte{}
	}
	c.store[key] = b
	return nil
}

func (c *fakeCache) Del(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.store, k)
	}
	c.dels = append(c.dels, keys...)
	return nil
}

func (c *fakeCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.store)
}

// contendedStore loses every compare-and-swap.
type contendedStore struct {
	domain.Store[*domain.Review]
	replaces atomic.Int32
}

func (c *contendedStore) Replace(ctx context.Context, doc *domain.Review) error {
	c.replaces.Add(1)
	return fmt.Errorf("replace %s: %w", doc.ID, domain.ErrVersionMismatch)
}

// flakyStore drops the first n writes with a transient failure.
type flakyStore struct {
	domain.Store[*domain.Review]
	failures atomic.Int32
	replaces atomic.Int32
}

func (f *flakyStore) Replace(ctx context.Context, doc *domain.Review) error {
	f.replaces.Add(1)
	if f.failures.Add(-1) >= 0 {
		return fmt.Errorf("replace %s: %w: connection reset", doc.ID, domain.ErrPersistence)
	}
	return f.Store.Replace(ctx, doc)
}

// timeoutStore times out every write.
type timeoutStore struct {
	domain.Store[*domain.Review]
	replaces atomic.Int32
}

func (s *timeoutStore) Replace(ctx context.Context, doc *domain.Review) error {
	s.replaces.Add(1)
	return fmt.Errorf("replace %s: %w", doc.ID, domain.ErrTimeout)
}

// brokenStore fails every read.
type brokenStore struct {
	domain.Store[*domain.Review]
}

func (brokenStore) Get(ctx context.Context, id string) (*domain.Review, bool, error) {
	return nil, false, fmt.Errorf("get: %w", domain.ErrTimeout)
}

func (brokenStore) Query(ctx context.Context, pred domain.Predicate[*domain.Review]) *domain.View[*domain.Review] {
	return domain.NewView(func() ([]*domain.Review, error) {
		return nil, fmt.Errorf("query: %w", domain.ErrPersistence)
	})
}

type fakeFeed struct {
	rows  map[string][]map[string]any
	err   error
	calls int
}

func (f *fakeFeed) GetReviews(ctx context.Context, itemID string) ([]map[string]any, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	rows, ok := f.rows[itemID]
	if !ok {
		return nil, fmt.Errorf("feed item %s: %w", itemID, domain.ErrNotFound)
	}
	return rows, nil
}

// ---- helpers ----

func newStore() *memory.Store[*domain.Review] {
	return memory.New(func() *domain.Review { return &domain.Review{} }, storage.Options{Pacing: -1})
}

// tickingClock returns a strictly increasing time on every call.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Minute)
		return t
	}
}

func ptr[T any](v T) *T { return &v }
