// Package redisstore backs the engine's dedup index and unread counters
// with Redis, so several engine processes share suppression windows and
// badge counts.
//
//	client, err := redis.Connect(ctx, cfg.Redis)
//	if err != nil {
//		return err
//	}
//	engine, err := notifications.NewEngine(store,
//		notifications.WithDedupIndex(redisstore.NewDedupIndex(client, cfg.Redis.KeyPrefix)),
//		notifications.WithCounter(redisstore.NewUnreadCounter(client, cfg.Redis.KeyPrefix)),
//	)
//
// Dedup keys are written with SET NX PX, so the first writer inside the
// window wins and Redis expires the key when the window closes.
package redisstore
