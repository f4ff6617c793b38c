package notifications

import (
	"context"
	"hash/maphash"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// DefaultDedupWindow is the suppression window for types without an override.
const DefaultDedupWindow = 5 * time.Minute

// DedupIndex records dedup keys with a TTL. Implementations must make
// CheckAndRecord atomic per key: of two concurrent calls with the same
// key, exactly one sees duplicate == false.
type DedupIndex interface {
	CheckAndRecord(ctx context.Context, key string, window time.Duration, now time.Time) (duplicate bool, err error)
	// Release forgets key so the event can be submitted again.
	Release(ctx context.Context, key string) error
}

// Deduplicator decides Accept or Suppress for a notification.
type Deduplicator struct {
	index    DedupIndex
	window   time.Duration
	perType  map[Type]time.Duration
	failOpen bool
	logger   *slog.Logger
}

// NewDeduplicator creates a deduplicator over index. window applies to
// types missing from perType; zero means DefaultDedupWindow.
func NewDeduplicator(index DedupIndex, window time.Duration, perType map[Type]time.Duration, failOpen bool, log *slog.Logger) *Deduplicator {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	if log == nil {
		log = slog.Default()
	}
	return &Deduplicator{index: index, window: window, perType: perType, failOpen: failOpen, logger: log}
}

// Window returns the suppression window for t.
func (d *Deduplicator) Window(t Type) time.Duration {
	if w, ok := d.perType[t]; ok && w > 0 {
		return w
	}
	return d.window
}

// CheckAndRecord returns OutcomeSuppressed when an equivalent notification
// was recorded within the window and records n otherwise. Notifications
// without a dedup key are always accepted. Index errors are returned
// unless the deduplicator fails open.
func (d *Deduplicator) CheckAndRecord(ctx context.Context, n Notification) (Outcome, error) {
	if n.DedupKey == "" {
		return OutcomeAccepted, nil
	}
	dup, err := d.index.CheckAndRecord(ctx, n.DedupKey, d.Window(n.Type), n.CreatedAt)
	if err != nil {
		if d.failOpen {
			d.logger.LogAttrs(ctx, slog.LevelWarn, "dedup index unavailable, accepting notification",
				logger.NotificationID(n.ID),
				logger.UserID(n.RecipientID),
				logger.Error(err),
			)
			return OutcomeAccepted, nil
		}
		return "", err
	}
	if dup {
		return OutcomeSuppressed, nil
	}
	return OutcomeAccepted, nil
}

// Release forgets n's key after a submission failed downstream of the
// dedup check, so a retried submission is not suppressed.
func (d *Deduplicator) Release(ctx context.Context, n Notification) {
	if n.DedupKey == "" {
		return
	}
	if err := d.index.Release(ctx, n.DedupKey); err != nil {
		d.logger.LogAttrs(ctx, slog.LevelWarn, "failed to release dedup key",
			logger.NotificationID(n.ID),
			logger.Error(err),
		)
	}
}

const (
	dedupShards          = 32
	defaultDedupCapacity = 1 << 16
)

type dedupShard struct {
	mu      sync.Mutex
	expires map[string]time.Time
}

// MemoryDedupIndex is a sharded in-process DedupIndex. Expired keys are
// dropped when looked up; a full shard sweeps its expired keys and then
// evicts the entry closest to expiry.
type MemoryDedupIndex struct {
	seed     maphash.Seed
	shards   [dedupShards]dedupShard
	perShard int
}

// NewMemoryDedupIndex creates an index holding at most capacity keys.
func NewMemoryDedupIndex(capacity int) *MemoryDedupIndex {
	if capacity <= 0 {
		capacity = defaultDedupCapacity
	}
	idx := &MemoryDedupIndex{
		seed:     maphash.MakeSeed(),
		perShard: max(capacity/dedupShards, 1),
	}
	for i := range idx.shards {
		idx.shards[i].expires = make(map[string]time.Time)
	}
	return idx
}

func (m *MemoryDedupIndex) shard(key string) *dedupShard {
	return &m.shards[maphash.String(m.seed, key)%dedupShards]
}

func (m *MemoryDedupIndex) CheckAndRecord(_ context.Context, key string, window time.Duration, now time.Time) (bool, error) {
	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if exp, ok := s.expires[key]; ok {
		if now.Before(exp) {
			return true, nil
		}
		delete(s.expires, key)
	}

	if len(s.expires) >= m.perShard {
		s.makeRoom(now, m.perShard)
	}
	s.expires[key] = now.Add(window)
	return false, nil
}

func (m *MemoryDedupIndex) Release(_ context.Context, key string) error {
	s := m.shard(key)
	s.mu.Lock()
	delete(s.expires, key)
	s.mu.Unlock()
	return nil
}

// Len returns the number of keys held, expired or not.
func (m *MemoryDedupIndex) Len() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		n += len(s.expires)
		s.mu.Unlock()
	}
	return n
}

func (s *dedupShard) makeRoom(now time.Time, limit int) {
	var (
		oldestKey string
		oldestExp time.Time
	)
	for k, exp := range s.expires {
		if !now.Before(exp) {
			delete(s.expires, k)
			continue
		}
		if oldestKey == "" || exp.Before(oldestExp) {
			oldestKey, oldestExp = k, exp
		}
	}
	if len(s.expires) >= limit && oldestKey != "" {
		delete(s.expires, oldestKey)
	}
}
