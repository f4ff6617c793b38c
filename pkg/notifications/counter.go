package notifications

import (
	"context"
	"sync"
	"sync/atomic"
)

// UnreadCounter caches per-user unread counts. Add must be atomic per user.
type UnreadCounter interface {
	Add(ctx context.Context, userID string, delta int) error
	Get(ctx context.Context, userID string) (int, error)
	// Reset overwrites the count, used when priming from the store.
	Reset(ctx context.Context, userID string, n int) error
}

// MemoryCounter keeps one atomic counter per user.
type MemoryCounter struct {
	counts sync.Map // userID -> *atomic.Int64
}

// NewMemoryCounter creates an empty counter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{}
}

func (c *MemoryCounter) counter(userID string) *atomic.Int64 {
	if v, ok := c.counts.Load(userID); ok {
		return v.(*atomic.Int64)
	}
	v, _ := c.counts.LoadOrStore(userID, new(atomic.Int64))
	return v.(*atomic.Int64)
}

func (c *MemoryCounter) Add(_ context.Context, userID string, delta int) error {
	ctr := c.counter(userID)
	for {
		cur := ctr.Load()
		next := max(cur+int64(delta), 0)
		if ctr.CompareAndSwap(cur, next) {
			return nil
		}
	}
}

func (c *MemoryCounter) Get(_ context.Context, userID string) (int, error) {
	v, ok := c.counts.Load(userID)
	if !ok {
		return 0, nil
	}
	return int(v.(*atomic.Int64).Load()), nil
}

func (c *MemoryCounter) Reset(_ context.Context, userID string, n int) error {
	c.counter(userID).Store(int64(max(n, 0)))
	return nil
}
