package redis

import "errors"

var (
	ErrFailedToParseRedisConnString = errors.New("redis: failed to parse connection string")
	ErrRedisNotReady                = errors.New("redis: did not become ready within the given time period")
	ErrHealthcheckFailed            = errors.New("redis: healthcheck failed")
)
