package notifications

import (
	"fmt"
	"maps"
	"time"
)

// Intent is what a caller submits.
type Intent struct {
	Type        Type           `json:"type"`
	Priority    Priority       `json:"priority"`
	Title       string         `json:"title"`
	TemplateRef string         `json:"template_ref"`
	Data        map[string]any `json:"data,omitempty"`
	RecipientID string         `json:"recipient_id"`
	// CorrelationID identifies the logical event. Empty disables dedup.
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Notification is one logical event for one recipient. Everything except
// Status, Read and ReadAt is fixed at creation.
type Notification struct {
	ID            string         `json:"id"`
	Type          Type           `json:"type"`
	Priority      Priority       `json:"priority"`
	Title         string         `json:"title"`
	TemplateRef   string         `json:"template_ref"`
	TemplateData  map[string]any `json:"template_data,omitempty"`
	RecipientID   string         `json:"recipient_id"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	DedupKey      string         `json:"dedup_key,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	DispatchAt    time.Time      `json:"dispatch_at"`
	Channels      ChannelSet     `json:"channels"`
	Status        Status         `json:"status"`
	Read          bool           `json:"read"`
	ReadAt        *time.Time     `json:"read_at,omitempty"`
}

// Clone returns a copy that shares no mutable state with n.
func (n Notification) Clone() Notification {
	n.TemplateData = maps.Clone(n.TemplateData)
	if n.ReadAt != nil {
		at := *n.ReadAt
		n.ReadAt = &at
	}
	return n
}

// CountsAsUnread reports whether n contributes to the unread counter.
// Suppressed duplicates and cancelled notifications never do.
func (n Notification) CountsAsUnread() bool {
	return !n.Read && n.Status != StatusSuppressed && n.Status != StatusCancelled
}

// DedupKey derives the dedup key for a logical event. An empty
// correlation id yields an empty key, which is never deduplicated.
func DedupKey(t Type, recipientID, correlationID string) string {
	if correlationID == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s:%s", t, recipientID, correlationID)
}

// DeliveryAttempt records one channel's delivery of one notification.
type DeliveryAttempt struct {
	ID             string       `json:"id"`
	NotificationID string       `json:"notification_id"`
	UserID         string       `json:"user_id"`
	Channel        Channel      `json:"channel"`
	State          AttemptState `json:"state"`
	AttemptCount   int          `json:"attempt_count"`
	LastError      string       `json:"last_error,omitempty"`
	NextRetryAt    *time.Time   `json:"next_retry_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Terminal reports whether the attempt will never change again. A failed
// attempt with NextRetryAt set is waiting for its retry.
func (a DeliveryAttempt) Terminal() bool {
	switch a.State {
	case AttemptSent, AttemptSuppressed, AttemptCancelled:
		return true
	case AttemptFailed:
		return a.NextRetryAt == nil
	}
	return false
}

// Retrying reports whether the attempt is failed and scheduled for retry.
func (a DeliveryAttempt) Retrying() bool {
	return a.State == AttemptFailed && a.NextRetryAt != nil
}

var attemptTransitions = map[AttemptState][]AttemptState{
	AttemptPending: {AttemptSent, AttemptFailed, AttemptSuppressed, AttemptCancelled},
	AttemptFailed:  {AttemptPending, AttemptCancelled},
}

// transition moves a to next. failed→pending and failed→cancelled are only
// legal while a retry is scheduled.
func (a *DeliveryAttempt) transition(next AttemptState, at time.Time) error {
	allowed := false
	for _, s := range attemptTransitions[a.State] {
		if s == next {
			allowed = true
			break
		}
	}
	if allowed && a.State == AttemptFailed && a.NextRetryAt == nil {
		allowed = false
	}
	if !allowed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.State, next)
	}
	a.State = next
	a.UpdatedAt = at
	if next != AttemptFailed {
		a.NextRetryAt = nil
	}
	return nil
}

// Outcome is the result of the dedup check for a submission.
type Outcome string

const (
	OutcomeAccepted   Outcome = "accepted"
	OutcomeSuppressed Outcome = "suppressed"
)

// Receipt is returned by Submit.
type Receipt struct {
	NotificationID string     `json:"notification_id"`
	Outcome        Outcome    `json:"outcome"`
	Status         Status     `json:"status"`
	Channels       ChannelSet `json:"channels"`
	DispatchAt     time.Time  `json:"dispatch_at"`
}

// ChannelDelivery summarises one channel for presentation.
type ChannelDelivery struct {
	Channel      Channel      `json:"channel"`
	State        AttemptState `json:"state"`
	AttemptCount int          `json:"attempt_count"`
	Degraded     bool         `json:"degraded"`
}

// View is a notification together with its per-channel delivery summary.
type View struct {
	Notification
	Deliveries []ChannelDelivery `json:"deliveries"`
}

// aggregateStatus folds attempt states into a notification status. It
// returns StatusDispatched while any attempt is still in flight.
func aggregateStatus(attempts []DeliveryAttempt) Status {
	if len(attempts) == 0 {
		return StatusSkipped
	}
	var sent, failed, cancelled int
	for _, a := range attempts {
		if !a.Terminal() {
			return StatusDispatched
		}
		switch a.State {
		case AttemptSent:
			sent++
		case AttemptFailed:
			failed++
		case AttemptCancelled:
			cancelled++
		}
	}
	switch {
	case sent > 0 && sent == len(attempts):
		return StatusDelivered
	case sent > 0:
		return StatusPartiallyDelivered
	case failed > 0:
		return StatusFailed
	case cancelled > 0:
		return StatusCancelled
	default:
		return StatusSuppressed
	}
}

func summarize(attempts []DeliveryAttempt) []ChannelDelivery {
	out := make([]ChannelDelivery, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, ChannelDelivery{
			Channel:      a.Channel,
			State:        a.State,
			AttemptCount: a.AttemptCount,
			Degraded:     a.State == AttemptFailed && a.NextRetryAt == nil,
		})
	}
	return out
}
