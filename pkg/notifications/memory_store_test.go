package notifications_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

func seedStore(t *testing.T) *notifications.MemoryStore {
	t.Helper()
	ctx := context.Background()
	s := notifications.NewMemoryStore()
	rows := []notifications.Notification{
		{ID: "n1", Type: notifications.TypeTask, RecipientID: "u1", CreatedAt: testStart, Status: notifications.StatusDelivered},
		{ID: "n2", Type: notifications.TypeProject, RecipientID: "u1", CreatedAt: testStart.Add(time.Minute), Status: notifications.StatusQueued},
		{ID: "n3", Type: notifications.TypeTask, RecipientID: "u1", CreatedAt: testStart.Add(2 * time.Minute), Status: notifications.StatusSuppressed},
		{ID: "n4", Type: notifications.TypeTask, RecipientID: "u1", CreatedAt: testStart.Add(3 * time.Minute), Status: notifications.StatusDispatched},
		{ID: "n5", Type: notifications.TypeTask, RecipientID: "u2", CreatedAt: testStart, Status: notifications.StatusDelivered},
	}
	for _, n := range rows {
		require.NoError(t, s.Save(ctx, n))
	}
	return s
}

func ids(list []notifications.Notification) []string {
	out := make([]string, len(list))
	for i, n := range list {
		out[i] = n.ID
	}
	return out
}

func TestMemoryStore_List(t *testing.T) {
	t.Parallel()

	s := seedStore(t)
	ctx := context.Background()
	since := testStart.Add(time.Minute)

	tests := []struct {
		name string
		opts notifications.ListOptions
		want []string
	}{
		{"newest first without suppressed", notifications.ListOptions{}, []string{"n4", "n2", "n1"}},
		{"include suppressed", notifications.ListOptions{IncludeSuppressed: true}, []string{"n4", "n3", "n2", "n1"}},
		{"types", notifications.ListOptions{Types: []notifications.Type{notifications.TypeProject}}, []string{"n2"}},
		{"since", notifications.ListOptions{Since: &since}, []string{"n4", "n2"}},
		{"limit", notifications.ListOptions{Limit: 2}, []string{"n4", "n2"}},
		{"offset", notifications.ListOptions{Offset: 1, Limit: 1}, []string{"n2"}},
		{"offset past end", notifications.ListOptions{Offset: 10}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := s.List(ctx, "u1", tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestMemoryStore_ReadState(t *testing.T) {
	t.Parallel()

	s := seedStore(t)
	ctx := context.Background()

	counts, err := s.UnreadCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"u1": 3, "u2": 1}, counts, "suppressed notifications are not unread")

	changed, err := s.MarkRead(ctx, "u1", "n1", testStart)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = s.MarkRead(ctx, "u1", "n1", testStart.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)

	n, err := s.Get(ctx, "n1")
	require.NoError(t, err)
	require.NotNil(t, n.ReadAt)
	assert.True(t, n.ReadAt.Equal(testStart), "readAt is set once")

	_, err = s.MarkRead(ctx, "u2", "n1", testStart)
	assert.ErrorIs(t, err, notifications.ErrNotFound)

	changed, err = s.MarkRead(ctx, "u1", "n3", testStart)
	require.NoError(t, err)
	assert.False(t, changed, "suppressed notifications never counted")

	marked, err := s.MarkAllRead(ctx, "u1", testStart)
	require.NoError(t, err)
	assert.Equal(t, 2, marked)

	removed, err := s.Delete(ctx, "u2", "n5", "n1")
	require.NoError(t, err)
	assert.Equal(t, 1, removed, "only the caller's notifications are deleted")
	_, err = s.Get(ctx, "n1")
	assert.NoError(t, err)
}

func TestMemoryStore_SetStatus(t *testing.T) {
	t.Parallel()

	s := seedStore(t)
	ctx := context.Background()

	delta, err := s.SetStatus(ctx, "n2", notifications.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, -1, delta)

	delta, err = s.SetStatus(ctx, "n4", notifications.StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, 0, delta)

	_, err = s.SetStatus(ctx, "missing", notifications.StatusDelivered)
	assert.ErrorIs(t, err, notifications.ErrNotFound)
}

func TestMemoryStore_Attempts(t *testing.T) {
	t.Parallel()

	s := seedStore(t)
	ctx := context.Background()
	retryAt := testStart.Add(time.Minute)

	require.NoError(t, s.SaveAttempts(ctx,
		notifications.DeliveryAttempt{ID: "a1", NotificationID: "n4", Channel: notifications.ChannelInApp, State: notifications.AttemptPending, CreatedAt: testStart},
		notifications.DeliveryAttempt{ID: "a2", NotificationID: "n4", Channel: notifications.ChannelEmail, State: notifications.AttemptFailed, NextRetryAt: &retryAt, CreatedAt: testStart},
		notifications.DeliveryAttempt{ID: "a3", NotificationID: "n1", Channel: notifications.ChannelEmail, State: notifications.AttemptSent, CreatedAt: testStart},
		notifications.DeliveryAttempt{ID: "orphan", NotificationID: "gone", State: notifications.AttemptPending},
	))

	got, err := s.Attempts(ctx, "n4")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a1", got[0].ID)

	got[1].NextRetryAt = nil
	again, err := s.Attempts(ctx, "n4")
	require.NoError(t, err)
	assert.NotNil(t, again[1].NextRetryAt, "returned attempts are copies")

	byParent, err := s.AttemptsFor(ctx, []string{"n1", "n4", "gone"})
	require.NoError(t, err)
	assert.Len(t, byParent["n1"], 1)
	assert.Len(t, byParent["n4"], 2)
	assert.NotContains(t, byParent, "gone")

	queued, pending, err := s.QueryPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"n2"}, ids(queued))
	require.Len(t, pending, 2)

	removed, err := s.Delete(ctx, "u1", "n4")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	got, err = s.Attempts(ctx, "n4")
	require.NoError(t, err)
	assert.Empty(t, got)
}
