package notifications_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

func TestMemoryCounter(t *testing.T) {
	t.Parallel()

	c := notifications.NewMemoryCounter()
	ctx := context.Background()

	n, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, n)

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Add(ctx, "u1", 2))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Add(ctx, "u2", 1))
		}()
	}
	wg.Wait()

	n, _ = c.Get(ctx, "u1")
	assert.Equal(t, 200, n)
	n, _ = c.Get(ctx, "u2")
	assert.Equal(t, 100, n)

	require.NoError(t, c.Add(ctx, "u2", -150))
	n, _ = c.Get(ctx, "u2")
	assert.Equal(t, 0, n, "counts never go negative")

	require.NoError(t, c.Reset(ctx, "u1", 7))
	n, _ = c.Get(ctx, "u1")
	assert.Equal(t, 7, n)
}
