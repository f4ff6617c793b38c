package notifications

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// DefaultMaxPoll bounds how long the dispatch loop sleeps without checking.
const DefaultMaxPoll = 30 * time.Second

type scheduledItem struct {
	id         string
	dispatchAt time.Time
	priority   Priority
	createdAt  time.Time
	seq        uint64
	index      int
}

// before orders by dispatchAt, then priority (higher first), then
// createdAt, then insertion order.
func (a *scheduledItem) before(b *scheduledItem) bool {
	if !a.dispatchAt.Equal(b.dispatchAt) {
		return a.dispatchAt.Before(b.dispatchAt)
	}
	if a.priority != b.priority {
		return a.priority > b.priority
	}
	if !a.createdAt.Equal(b.createdAt) {
		return a.createdAt.Before(b.createdAt)
	}
	return a.seq < b.seq
}

type scheduleHeap []*scheduledItem

func (h scheduleHeap) Len() int           { return len(h) }
func (h scheduleHeap) Less(i, j int) bool { return h[i].before(h[j]) }
func (h scheduleHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *scheduleHeap) Push(x any) {
	item := x.(*scheduledItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *scheduleHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// Scheduler is the priority queue of notifications waiting for dispatch.
type Scheduler struct {
	mu    sync.Mutex
	items scheduleHeap
	byID  map[string]*scheduledItem
	seq   uint64
	wake  chan struct{}

	clock   Clock
	maxPoll time.Duration
}

// NewScheduler creates an empty scheduler.
func NewScheduler(clock Clock, maxPoll time.Duration) *Scheduler {
	if clock == nil {
		clock = systemClock
	}
	if maxPoll <= 0 {
		maxPoll = DefaultMaxPoll
	}
	return &Scheduler{
		byID:    make(map[string]*scheduledItem),
		wake:    make(chan struct{}, 1),
		clock:   clock,
		maxPoll: maxPoll,
	}
}

// Push enqueues n at n.DispatchAt. Pushing an id that is already queued
// reschedules it.
func (s *Scheduler) Push(n Notification) {
	s.mu.Lock()
	if item, ok := s.byID[n.ID]; ok {
		item.dispatchAt = n.DispatchAt
		item.priority = n.Priority
		heap.Fix(&s.items, item.index)
	} else {
		s.seq++
		item := &scheduledItem{
			id:         n.ID,
			dispatchAt: n.DispatchAt,
			priority:   n.Priority,
			createdAt:  n.CreatedAt,
			seq:        s.seq,
		}
		heap.Push(&s.items, item)
		s.byID[n.ID] = item
	}
	s.mu.Unlock()
	s.Wake()
}

// Remove drops id from the queue. It reports whether id was queued.
func (s *Scheduler) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.byID[id]
	if !ok {
		return false
	}
	heap.Remove(&s.items, item.index)
	delete(s.byID, id)
	return true
}

// Contains reports whether id is queued.
func (s *Scheduler) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byID[id]
	return ok
}

// Len returns the number of queued notifications.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Scheduled is a queue entry popped by Due.
type Scheduled struct {
	ID         string
	DispatchAt time.Time
	Priority   Priority
	CreatedAt  time.Time
}

// Due pops every entry whose dispatch time is at or before now, in order.
func (s *Scheduler) Due(now time.Time) []Scheduled {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []Scheduled
	for len(s.items) > 0 && !s.items[0].dispatchAt.After(now) {
		item := heap.Pop(&s.items).(*scheduledItem)
		delete(s.byID, item.id)
		due = append(due, Scheduled{
			ID:         item.id,
			DispatchAt: item.dispatchAt,
			Priority:   item.priority,
			CreatedAt:  item.createdAt,
		})
	}
	return due
}

// Next returns the earliest queued dispatch time.
func (s *Scheduler) Next() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return time.Time{}, false
	}
	return s.items[0].dispatchAt, true
}

// Wake interrupts the dispatch loop's sleep.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run is the dispatch loop. It hands due entries to dispatch in order and
// sleeps until the next dispatch time, at most maxPoll, or until Wake.
func (s *Scheduler) Run(ctx context.Context, dispatch func(ctx context.Context, due []Scheduled)) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-s.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		now := s.clock.Now()
		if due := s.Due(now); len(due) > 0 {
			dispatch(ctx, due)
		}

		wait := s.maxPoll
		if next, ok := s.Next(); ok {
			if d := next.Sub(s.clock.Now()); d < wait {
				wait = max(d, 0)
			}
		}
		timer.Reset(wait)
	}
}
