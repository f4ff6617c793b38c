package notifications_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

type MockDedupIndex struct {
	mock.Mock
}

func (m *MockDedupIndex) CheckAndRecord(ctx context.Context, key string, window time.Duration, now time.Time) (bool, error) {
	args := m.Called(ctx, key, window, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockDedupIndex) Release(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func TestMemoryDedupIndex_Window(t *testing.T) {
	t.Parallel()

	idx := notifications.NewMemoryDedupIndex(0)
	ctx := context.Background()
	now := testStart

	dup, err := idx.CheckAndRecord(ctx, "k", 5*time.Minute, now)
	require.NoError(t, err)
	assert.False(t, dup)

	dup, err = idx.CheckAndRecord(ctx, "k", 5*time.Minute, now.Add(2*time.Second))
	require.NoError(t, err)
	assert.True(t, dup)

	dup, err = idx.CheckAndRecord(ctx, "k", 5*time.Minute, now.Add(5*time.Minute))
	require.NoError(t, err)
	assert.False(t, dup, "an expired entry is replaced on lookup")

	require.NoError(t, idx.Release(ctx, "k"))
	dup, err = idx.CheckAndRecord(ctx, "k", 5*time.Minute, now.Add(5*time.Minute))
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestMemoryDedupIndex_Concurrent(t *testing.T) {
	t.Parallel()

	idx := notifications.NewMemoryDedupIndex(0)
	var accepted atomic.Int32
	var wg sync.WaitGroup
	for range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dup, err := idx.CheckAndRecord(context.Background(), "same", time.Minute, testStart)
			assert.NoError(t, err)
			if !dup {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), accepted.Load())
}

func TestMemoryDedupIndex_Capacity(t *testing.T) {
	t.Parallel()

	idx := notifications.NewMemoryDedupIndex(64)
	ctx := context.Background()
	for i := range 1000 {
		_, err := idx.CheckAndRecord(ctx, fmt.Sprintf("key-%d", i), time.Hour, testStart)
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, idx.Len(), 64)
}

func TestDeduplicator(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	n := notifications.Notification{
		ID:          "n1",
		Type:        notifications.TypeSecurity,
		RecipientID: "u1",
		DedupKey:    notifications.DedupKey(notifications.TypeSecurity, "u1", "login-1"),
		CreatedAt:   testStart,
	}

	t.Run("per-type window", func(t *testing.T) {
		t.Parallel()

		idx := &MockDedupIndex{}
		idx.On("CheckAndRecord", ctx, "security:u1:login-1", time.Minute, testStart).Return(false, nil).Once()

		d := notifications.NewDeduplicator(idx, 0, map[notifications.Type]time.Duration{notifications.TypeSecurity: time.Minute}, false, nil)
		assert.Equal(t, notifications.DefaultDedupWindow, d.Window(notifications.TypeTask))

		outcome, err := d.CheckAndRecord(ctx, n)
		require.NoError(t, err)
		assert.Equal(t, notifications.OutcomeAccepted, outcome)
		idx.AssertExpectations(t)
	})

	t.Run("duplicate", func(t *testing.T) {
		t.Parallel()

		idx := &MockDedupIndex{}
		idx.On("CheckAndRecord", ctx, n.DedupKey, 5*time.Minute, testStart).Return(true, nil)

		outcome, err := notifications.NewDeduplicator(idx, 0, nil, false, nil).CheckAndRecord(ctx, n)
		require.NoError(t, err)
		assert.Equal(t, notifications.OutcomeSuppressed, outcome)
	})

	t.Run("no key skips the index", func(t *testing.T) {
		t.Parallel()

		idx := &MockDedupIndex{}
		unkeyed := n
		unkeyed.DedupKey = ""
		outcome, err := notifications.NewDeduplicator(idx, 0, nil, false, nil).CheckAndRecord(ctx, unkeyed)
		require.NoError(t, err)
		assert.Equal(t, notifications.OutcomeAccepted, outcome)
		idx.AssertNotCalled(t, "CheckAndRecord", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("index error", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("index down")
		idx := &MockDedupIndex{}
		idx.On("CheckAndRecord", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false, boom)

		_, err := notifications.NewDeduplicator(idx, 0, nil, false, nil).CheckAndRecord(ctx, n)
		assert.ErrorIs(t, err, boom)

		outcome, err := notifications.NewDeduplicator(idx, 0, nil, true, nil).CheckAndRecord(ctx, n)
		require.NoError(t, err)
		assert.Equal(t, notifications.OutcomeAccepted, outcome)
	})

	t.Run("release", func(t *testing.T) {
		t.Parallel()

		idx := &MockDedupIndex{}
		idx.On("Release", ctx, n.DedupKey).Return(errors.New("ignored"))
		notifications.NewDeduplicator(idx, 0, nil, false, nil).Release(ctx, n)
		idx.AssertExpectations(t)
	})
}

func TestDedupKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "task:u1:c1", notifications.DedupKey(notifications.TypeTask, "u1", "c1"))
	assert.Empty(t, notifications.DedupKey(notifications.TypeTask, "u1", ""))
	assert.NotEqual(t,
		notifications.DedupKey(notifications.TypeTask, "u1", "c1"),
		notifications.DedupKey(notifications.TypeProject, "u1", "c1"),
	)
}
