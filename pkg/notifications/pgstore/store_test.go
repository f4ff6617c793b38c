package pgstore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/notifications/pgstore"
	"github.com/dmitrymomot/notifykit/pkg/pg"
)

// newStore connects to NOTIFY_TEST_PG_URL and skips when it is unset.
func newStore(t *testing.T) *pgstore.Store {
	t.Helper()
	url := os.Getenv("NOTIFY_TEST_PG_URL")
	if url == "" {
		t.Skip("NOTIFY_TEST_PG_URL not set")
	}

	cfg := pg.Config{ConnectionString: url, MaxOpenConns: 4, RetryAttempts: 1, MigrationsTable: "notify_schema_migrations"}
	ctx := context.Background()
	pool, err := pg.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, pgstore.Migrate(ctx, pool, cfg, logger.Nop()))
	return pgstore.New(pool)
}

func newNotification(user string, created time.Time) notifications.Notification {
	return notifications.Notification{
		ID:           uuid.NewString(),
		Type:         notifications.TypeTask,
		Priority:     notifications.PriorityHigh,
		TemplateRef:  "task.assigned",
		TemplateData: map[string]any{"task": "Review"},
		RecipientID:  user,
		CreatedAt:    created,
		DispatchAt:   created,
		Channels:     notifications.NewChannelSet(notifications.ChannelInApp, notifications.ChannelEmail),
		Status:       notifications.StatusQueued,
	}
}

func TestStore_Lifecycle(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()
	user := "user-" + uuid.NewString()
	now := time.Now().UTC().Truncate(time.Microsecond)

	n := newNotification(user, now)
	require.NoError(t, s.Save(ctx, n))

	got, err := s.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, n.Channels, got.Channels)
	assert.Equal(t, notifications.PriorityHigh, got.Priority)
	assert.Equal(t, "Review", got.TemplateData["task"])

	_, err = s.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, notifications.ErrNotFound)

	retryAt := now.Add(time.Minute)
	attempts := []notifications.DeliveryAttempt{
		{ID: uuid.NewString(), NotificationID: n.ID, UserID: user, Channel: notifications.ChannelInApp, State: notifications.AttemptPending, CreatedAt: now, UpdatedAt: now},
		{ID: uuid.NewString(), NotificationID: n.ID, UserID: user, Channel: notifications.ChannelEmail, State: notifications.AttemptFailed, AttemptCount: 1, NextRetryAt: &retryAt, CreatedAt: now, UpdatedAt: now},
		{ID: uuid.NewString(), NotificationID: uuid.NewString(), UserID: user, Channel: notifications.ChannelSMS, State: notifications.AttemptPending, CreatedAt: now, UpdatedAt: now},
	}
	require.NoError(t, s.SaveAttempts(ctx, attempts...))

	stored, err := s.Attempts(ctx, n.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2, "attempts without a notification are dropped")

	byParent, err := s.AttemptsFor(ctx, []string{n.ID})
	require.NoError(t, err)
	assert.Len(t, byParent[n.ID], 2)

	delta, err := s.SetStatus(ctx, n.ID, notifications.StatusDispatched)
	require.NoError(t, err)
	assert.Zero(t, delta)

	counts, err := s.UnreadCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[user])

	changed, err := s.MarkRead(ctx, user, n.ID, now)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = s.MarkRead(ctx, user, n.ID, now)
	require.NoError(t, err)
	assert.False(t, changed)
	_, err = s.MarkRead(ctx, "someone-else", n.ID, now)
	assert.ErrorIs(t, err, notifications.ErrNotFound)

	removed, err := s.Delete(ctx, user, n.ID)
	require.NoError(t, err)
	assert.Zero(t, removed, "already read")
	stored, err = s.Attempts(ctx, n.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestStore_ListAndReadAll(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()
	user := "user-" + uuid.NewString()
	base := time.Now().UTC().Truncate(time.Microsecond)

	var created []notifications.Notification
	for i := range 3 {
		n := newNotification(user, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, s.Save(ctx, n))
		created = append(created, n)
	}
	dup := newNotification(user, base.Add(time.Minute))
	dup.Status = notifications.StatusSuppressed
	require.NoError(t, s.Save(ctx, dup))

	list, err := s.List(ctx, user, notifications.ListOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, created[2].ID, list[0].ID)
	assert.Equal(t, created[1].ID, list[1].ID)

	all, err := s.List(ctx, user, notifications.ListOptions{IncludeSuppressed: true})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	delta, err := s.SetStatus(ctx, created[0].ID, notifications.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, -1, delta)

	marked, err := s.MarkAllRead(ctx, user, base)
	require.NoError(t, err)
	assert.Equal(t, 2, marked)

	unread, err := s.List(ctx, user, notifications.ListOptions{OnlyUnread: true})
	require.NoError(t, err)
	assert.Empty(t, unread)
}
