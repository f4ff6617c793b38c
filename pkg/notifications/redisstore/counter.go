package redisstore

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// addClamped increments and floors the counter at zero atomically.
var addClamped = redis.NewScript(`
local v = redis.call('INCRBY', KEYS[1], ARGV[1])
if v < 0 then
	redis.call('SET', KEYS[1], 0)
	return 0
end
return v
`)

// UnreadCounter implements notifications.UnreadCounter with one integer
// key per user.
type UnreadCounter struct {
	client redis.UniversalClient
	prefix string
}

var _ notifications.UnreadCounter = (*UnreadCounter)(nil)

// NewUnreadCounter stores counts under prefix + "unread:".
func NewUnreadCounter(client redis.UniversalClient, prefix string) *UnreadCounter {
	return &UnreadCounter{client: client, prefix: prefix + "unread:"}
}

func (c *UnreadCounter) key(userID string) string { return c.prefix + userID }

func (c *UnreadCounter) Add(ctx context.Context, userID string, delta int) error {
	if delta == 0 {
		return nil
	}
	if err := addClamped.Run(ctx, c.client, []string{c.key(userID)}, delta).Err(); err != nil {
		return errors.Join(ErrRedisCommand, err)
	}
	return nil
}

func (c *UnreadCounter) Get(ctx context.Context, userID string) (int, error) {
	n, err := c.client.Get(ctx, c.key(userID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Join(ErrRedisCommand, err)
	}
	return n, nil
}

func (c *UnreadCounter) Reset(ctx context.Context, userID string, n int) error {
	if err := c.client.Set(ctx, c.key(userID), max(n, 0), 0).Err(); err != nil {
		return errors.Join(ErrRedisCommand, err)
	}
	return nil
}
