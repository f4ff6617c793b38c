package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

var ErrRedisCommand = errors.New("redisstore: redis command failed")

// DedupIndex implements notifications.DedupIndex.
type DedupIndex struct {
	client redis.UniversalClient
	prefix string
}

var _ notifications.DedupIndex = (*DedupIndex)(nil)

// NewDedupIndex stores keys under prefix + "dedup:".
func NewDedupIndex(client redis.UniversalClient, prefix string) *DedupIndex {
	return &DedupIndex{client: client, prefix: prefix + "dedup:"}
}

// CheckAndRecord records key for window unless it is already present.
func (d *DedupIndex) CheckAndRecord(ctx context.Context, key string, window time.Duration, now time.Time) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.prefix+key, now.UnixMilli(), window).Result()
	if err != nil {
		return false, errors.Join(ErrRedisCommand, err)
	}
	return !ok, nil
}

func (d *DedupIndex) Release(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, d.prefix+key).Err(); err != nil {
		return errors.Join(ErrRedisCommand, err)
	}
	return nil
}
