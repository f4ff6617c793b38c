package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Router expands a due notification into one pending attempt per channel
// and hands each to that channel's pool.
type Router struct {
	store Store
	clock Clock
	pools map[Channel]*pool
}

// Expand persists one pending attempt per channel in channels, then
// enqueues them. Attempts are stored before any send so a crash between
// the two leaves them for startup recovery.
func (r *Router) Expand(ctx context.Context, n Notification, channels ChannelSet) ([]DeliveryAttempt, error) {
	now := r.clock.Now()
	attempts := make([]DeliveryAttempt, 0, len(Channels))
	for _, ch := range channels.List() {
		attempts = append(attempts, DeliveryAttempt{
			ID:             uuid.NewString(),
			NotificationID: n.ID,
			UserID:         n.RecipientID,
			Channel:        ch,
			State:          AttemptPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}
	if len(attempts) == 0 {
		return nil, nil
	}
	if err := r.store.SaveAttempts(ctx, attempts...); err != nil {
		return nil, fmt.Errorf("save attempts: %w", err)
	}
	for _, a := range attempts {
		r.enqueue(n, a)
	}
	return attempts, nil
}

func (r *Router) enqueue(n Notification, a DeliveryAttempt) {
	if p, ok := r.pools[a.Channel]; ok {
		p.enqueue(task{notification: n, attempt: a})
	}
}
