package notifications

import (
	"context"
	"time"
)

// ListOptions filters ListNotifications.
type ListOptions struct {
	Limit      int
	Offset     int
	OnlyUnread bool
	Types      []Type
	Since      *time.Time
	// IncludeSuppressed also returns dedup-suppressed notifications.
	IncludeSuppressed bool
}

// Store is the system of record for notifications and their attempts.
// Every engine state transition is written through it.
type Store interface {
	// Save inserts or replaces a notification.
	Save(ctx context.Context, n Notification) error
	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (Notification, error)
	// SetStatus updates the aggregate status and returns how the
	// notification's unread contribution changed: -1, 0 or +1.
	SetStatus(ctx context.Context, id string, status Status) (int, error)

	// SaveAttempts inserts or replaces attempts by id.
	SaveAttempts(ctx context.Context, attempts ...DeliveryAttempt) error
	Attempts(ctx context.Context, notificationID string) ([]DeliveryAttempt, error)
	AttemptsFor(ctx context.Context, notificationIDs []string) (map[string][]DeliveryAttempt, error)

	// QueryPending returns the work a restarted engine must resume:
	// queued notifications and attempts that are pending or awaiting retry.
	QueryPending(ctx context.Context) ([]Notification, []DeliveryAttempt, error)

	// List returns the user's notifications, newest first.
	List(ctx context.Context, userID string, opts ListOptions) ([]Notification, error)
	// MarkRead sets read and readAt once. It reports whether the
	// notification stopped counting as unread, and returns ErrNotFound when
	// id does not belong to userID. Suppressed and cancelled notifications
	// never count as unread.
	MarkRead(ctx context.Context, userID, id string, at time.Time) (bool, error)
	// MarkAllRead returns how many notifications stopped counting as unread.
	MarkAllRead(ctx context.Context, userID string, at time.Time) (int, error)
	// Delete returns how many of the removed notifications counted as unread.
	Delete(ctx context.Context, userID string, ids ...string) (int, error)
	// UnreadCounts recounts every user's unread notifications. Used only
	// to prime counters at startup.
	UnreadCounts(ctx context.Context) (map[string]int, error)
}
