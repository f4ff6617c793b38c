package notifications_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

func scheduled(id string, at time.Time, p notifications.Priority, created time.Time) notifications.Notification {
	return notifications.Notification{ID: id, DispatchAt: at, Priority: p, CreatedAt: created}
}

func dueIDs(due []notifications.Scheduled) []string {
	ids := make([]string, 0, len(due))
	for _, d := range due {
		ids = append(ids, d.ID)
	}
	return ids
}

func TestScheduler_Due_Order(t *testing.T) {
	t.Parallel()

	now := testStart
	s := notifications.NewScheduler(newFakeClock(now), time.Second)

	s.Push(scheduled("later", now.Add(time.Minute), notifications.PriorityUrgent, now))
	s.Push(scheduled("low", now, notifications.PriorityLow, now))
	s.Push(scheduled("normal-old", now, notifications.PriorityNormal, now.Add(-2*time.Second)))
	s.Push(scheduled("normal-new", now, notifications.PriorityNormal, now.Add(-time.Second)))
	s.Push(scheduled("urgent", now, notifications.PriorityUrgent, now))
	s.Push(scheduled("earlier-low", now.Add(-time.Minute), notifications.PriorityLow, now))
	s.Push(scheduled("high", now, notifications.PriorityHigh, now))

	assert.Equal(t, 7, s.Len())
	assert.Equal(t,
		[]string{"earlier-low", "urgent", "high", "normal-old", "normal-new", "low"},
		dueIDs(s.Due(now)),
	)
	assert.Equal(t, 1, s.Len())

	next, ok := s.Next()
	require.True(t, ok)
	assert.True(t, next.Equal(now.Add(time.Minute)))
	assert.Empty(t, s.Due(now))
}

func TestScheduler_FIFOWithinTies(t *testing.T) {
	t.Parallel()

	s := notifications.NewScheduler(newFakeClock(testStart), time.Second)
	for _, id := range []string{"a", "b", "c", "d"} {
		s.Push(scheduled(id, testStart, notifications.PriorityNormal, testStart))
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, dueIDs(s.Due(testStart)))
}

func TestScheduler_DueKeepsOrderingKeys(t *testing.T) {
	t.Parallel()

	s := notifications.NewScheduler(newFakeClock(testStart), time.Second)
	created := testStart.Add(-time.Hour)
	s.Push(scheduled("a", testStart, notifications.PriorityUrgent, created))

	due := s.Due(testStart)
	require.Len(t, due, 1)
	assert.Equal(t, notifications.Scheduled{
		ID:         "a",
		DispatchAt: testStart,
		Priority:   notifications.PriorityUrgent,
		CreatedAt:  created,
	}, due[0])
}

func TestScheduler_RemoveAndReschedule(t *testing.T) {
	t.Parallel()

	s := notifications.NewScheduler(newFakeClock(testStart), time.Second)
	s.Push(scheduled("a", testStart.Add(time.Hour), notifications.PriorityNormal, testStart))
	s.Push(scheduled("b", testStart.Add(2*time.Hour), notifications.PriorityNormal, testStart))

	assert.True(t, s.Contains("a"))
	assert.True(t, s.Remove("a"))
	assert.False(t, s.Remove("a"))
	assert.False(t, s.Contains("a"))

	s.Push(scheduled("b", testStart, notifications.PriorityNormal, testStart))
	assert.Equal(t, 1, s.Len(), "pushing a queued id reschedules it")
	assert.Equal(t, []string{"b"}, dueIDs(s.Due(testStart)))

	_, ok := s.Next()
	assert.False(t, ok)
}

func TestScheduler_Run(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(testStart)
	s := notifications.NewScheduler(clock, 2*time.Millisecond)

	var (
		mu  sync.Mutex
		got []string
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx, func(_ context.Context, due []notifications.Scheduled) {
			mu.Lock()
			got = append(got, dueIDs(due)...)
			mu.Unlock()
		})
	}()
	dispatched := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), got...)
	}

	s.Push(scheduled("now", testStart, notifications.PriorityNormal, testStart))
	s.Push(scheduled("tomorrow", testStart.Add(24*time.Hour), notifications.PriorityNormal, testStart))

	require.Eventually(t, func() bool { return len(dispatched()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"now"}, dispatched())

	time.Sleep(10 * time.Millisecond)
	assert.Len(t, dispatched(), 1, "future entries stay queued")

	clock.Advance(24 * time.Hour)
	require.Eventually(t, func() bool { return len(dispatched()) == 2 }, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
