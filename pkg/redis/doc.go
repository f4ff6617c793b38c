// Package redis connects to Redis with retries and exposes a readiness
// check. notifyd uses it for the dedup index and the unread counters.
package redis
