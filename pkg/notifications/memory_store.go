package notifications

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and single-node setups.
// All methods are safe for concurrent use.
type MemoryStore struct {
	mu            sync.RWMutex
	notifications map[string]Notification
	byUser        map[string]map[string]struct{}
	attempts      map[string]DeliveryAttempt
	byParent      map[string][]string // notification id -> attempt ids
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		notifications: make(map[string]Notification),
		byUser:        make(map[string]map[string]struct{}),
		attempts:      make(map[string]DeliveryAttempt),
		byParent:      make(map[string][]string),
	}
}

func (s *MemoryStore) Save(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notifications[n.ID] = n.Clone()
	if s.byUser[n.RecipientID] == nil {
		s.byUser[n.RecipientID] = make(map[string]struct{})
	}
	s.byUser[n.RecipientID][n.ID] = struct{}{}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.notifications[id]
	if !ok {
		return Notification{}, ErrNotFound
	}
	return n.Clone(), nil
}

func (s *MemoryStore) SetStatus(_ context.Context, id string, status Status) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return 0, ErrNotFound
	}
	before := n.CountsAsUnread()
	n.Status = status
	s.notifications[id] = n
	return unreadDelta(before, n.CountsAsUnread()), nil
}

func (s *MemoryStore) SaveAttempts(_ context.Context, attempts ...DeliveryAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range attempts {
		if _, ok := s.notifications[a.NotificationID]; !ok {
			continue
		}
		if _, ok := s.attempts[a.ID]; !ok {
			s.byParent[a.NotificationID] = append(s.byParent[a.NotificationID], a.ID)
		}
		s.attempts[a.ID] = cloneAttempt(a)
	}
	return nil
}

func (s *MemoryStore) Attempts(_ context.Context, notificationID string) ([]DeliveryAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attemptsLocked(notificationID), nil
}

func (s *MemoryStore) AttemptsFor(_ context.Context, notificationIDs []string) (map[string][]DeliveryAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]DeliveryAttempt, len(notificationIDs))
	for _, id := range notificationIDs {
		if as := s.attemptsLocked(id); len(as) > 0 {
			out[id] = as
		}
	}
	return out, nil
}

func (s *MemoryStore) attemptsLocked(notificationID string) []DeliveryAttempt {
	ids := s.byParent[notificationID]
	out := make([]DeliveryAttempt, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneAttempt(s.attempts[id]))
	}
	return out
}

func (s *MemoryStore) QueryPending(_ context.Context) ([]Notification, []DeliveryAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var queued []Notification
	for _, n := range s.notifications {
		if n.Status == StatusQueued {
			queued = append(queued, n.Clone())
		}
	}
	var pending []DeliveryAttempt
	for _, a := range s.attempts {
		if a.State == AttemptPending || a.Retrying() {
			pending = append(pending, cloneAttempt(a))
		}
	}
	slices.SortFunc(queued, func(a, b Notification) int { return a.CreatedAt.Compare(b.CreatedAt) })
	slices.SortFunc(pending, func(a, b DeliveryAttempt) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return queued, pending, nil
}

func (s *MemoryStore) List(_ context.Context, userID string, opts ListOptions) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Notification
	for id := range s.byUser[userID] {
		n := s.notifications[id]
		if !opts.matches(n) {
			continue
		}
		out = append(out, n.Clone())
	}
	slices.SortFunc(out, func(a, b Notification) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *MemoryStore) MarkRead(_ context.Context, userID, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok || n.RecipientID != userID {
		return false, ErrNotFound
	}
	return s.markReadLocked(n, at), nil
}

func (s *MemoryStore) MarkAllRead(_ context.Context, userID string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for id := range s.byUser[userID] {
		if s.markReadLocked(s.notifications[id], at) {
			changed++
		}
	}
	return changed, nil
}

// markReadLocked reports whether n stopped counting as unread.
func (s *MemoryStore) markReadLocked(n Notification, at time.Time) bool {
	if n.Read {
		return false
	}
	counted := n.CountsAsUnread()
	n.Read = true
	n.ReadAt = &at
	s.notifications[n.ID] = n
	return counted
}

func (s *MemoryStore) Delete(_ context.Context, userID string, ids ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unread := 0
	for _, id := range ids {
		n, ok := s.notifications[id]
		if !ok || n.RecipientID != userID {
			continue
		}
		if n.CountsAsUnread() {
			unread++
		}
		for _, aid := range s.byParent[id] {
			delete(s.attempts, aid)
		}
		delete(s.byParent, id)
		delete(s.byUser[userID], id)
		delete(s.notifications, id)
	}
	return unread, nil
}

func (s *MemoryStore) UnreadCounts(_ context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, n := range s.notifications {
		if n.CountsAsUnread() {
			counts[n.RecipientID]++
		}
	}
	return counts, nil
}

func (o ListOptions) matches(n Notification) bool {
	if n.Status == StatusSuppressed && !o.IncludeSuppressed {
		return false
	}
	if o.OnlyUnread && n.Read {
		return false
	}
	if o.Since != nil && n.CreatedAt.Before(*o.Since) {
		return false
	}
	if len(o.Types) > 0 && !slices.Contains(o.Types, n.Type) {
		return false
	}
	return true
}

func cloneAttempt(a DeliveryAttempt) DeliveryAttempt {
	if a.NextRetryAt != nil {
		at := *a.NextRetryAt
		a.NextRetryAt = &at
	}
	return a
}

func unreadDelta(before, after bool) int {
	switch {
	case before && !after:
		return -1
	case !before && after:
		return 1
	}
	return 0
}
