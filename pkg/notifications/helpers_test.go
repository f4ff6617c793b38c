package notifications_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingSink records deliveries and returns the errors from script in
// order, then nil.
type recordingSink struct {
	mu     sync.Mutex
	calls  atomic.Int32
	msgs   []notifications.Message
	dests  []string
	script []error
	always error
	delay  time.Duration
}

func (s *recordingSink) Deliver(_ context.Context, msg notifications.Message, dest string) error {
	time.Sleep(s.delay)
	n := int(s.calls.Add(1))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	s.dests = append(s.dests, dest)
	if s.always != nil {
		return s.always
	}
	if n <= len(s.script) {
		return s.script[n-1]
	}
	return nil
}

func (s *recordingSink) Calls() int { return int(s.calls.Load()) }

func (s *recordingSink) Messages() []notifications.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notifications.Message(nil), s.msgs...)
}

var testStart = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC) // Monday

func testTemplates(t *testing.T) *notifications.TemplateStore {
	t.Helper()
	store, err := notifications.NewTemplateStore(
		notifications.Template{
			Ref:      "task.assigned",
			Type:     notifications.TypeTask,
			Required: []string{"task"},
			Subject:  "New task: {{.task}}",
			Body:     "You were assigned {{.task}}.",
			Channels: map[notifications.Channel]notifications.ChannelTemplate{
				notifications.ChannelSMS: {Body: "Task {{.task}}"},
			},
		},
		notifications.Template{
			Ref:     "security.login",
			Type:    notifications.TypeSecurity,
			Subject: "New sign-in",
			Body:    "A new device signed in to your account.",
		},
	)
	require.NoError(t, err)
	return store
}

type testEngine struct {
	*notifications.Engine
	store *notifications.MemoryStore
	clock *fakeClock
}

func startEngine(t *testing.T, opts ...notifications.EngineOption) testEngine {
	t.Helper()
	return startEngineWithStore(t, notifications.NewMemoryStore(), opts...)
}

func startEngineWithStore(t *testing.T, store *notifications.MemoryStore, opts ...notifications.EngineOption) testEngine {
	t.Helper()
	return startEngineOn(t, store, store, opts...)
}

// startEngineOn runs the engine on backend, which may wrap mem.
func startEngineOn(t *testing.T, backend notifications.Store, mem *notifications.MemoryStore, opts ...notifications.EngineOption) testEngine {
	t.Helper()
	clock := newFakeClock(testStart)
	base := []notifications.EngineOption{
		notifications.WithClock(clock),
		notifications.WithLogger(logger.Nop()),
		notifications.WithTemplates(testTemplates(t)),
		notifications.WithMaxPoll(5 * time.Millisecond),
		notifications.WithRetryPolicy(notifications.RetryPolicy{
			MaxAttempts: 6,
			Backoff:     notifications.FixedBackoff{Interval: time.Millisecond},
		}),
	}
	e, err := notifications.NewEngine(backend, append(base, opts...)...)
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { _ = e.Stop() })
	return testEngine{Engine: e, store: mem, clock: clock}
}

func taskIntent(user, correlation string) notifications.Intent {
	return notifications.Intent{
		Type:          notifications.TypeTask,
		Priority:      notifications.PriorityNormal,
		Title:         "Task assigned",
		TemplateRef:   "task.assigned",
		Data:          map[string]any{"task": "Ship v2"},
		RecipientID:   user,
		CorrelationID: correlation,
	}
}

func waitStatus(t *testing.T, e testEngine, id string, want notifications.Status) notifications.View {
	t.Helper()
	var view notifications.View
	require.Eventually(t, func() bool {
		v, err := e.Get(context.Background(), id)
		if err != nil {
			return false
		}
		view = v
		return v.Status == want
	}, 2*time.Second, 2*time.Millisecond, "notification %s never reached %s", id, want)
	return view
}
