package sinks

import (
	"context"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/webhook"
)

// Payload is the JSON body posted to webhook endpoints.
type Payload struct {
	ID             string                 `json:"id"`
	NotificationID string                 `json:"notification_id"`
	UserID         string                 `json:"user_id"`
	Type           notifications.Type     `json:"type"`
	Priority       notifications.Priority `json:"priority"`
	Title          string                 `json:"title,omitempty"`
	Subject        string                 `json:"subject,omitempty"`
	Body           string                 `json:"body"`
	Data           map[string]any         `json:"data,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

func payloadFrom(msg notifications.Message) Payload {
	return Payload{
		ID:             msg.AttemptID,
		NotificationID: msg.NotificationID,
		UserID:         msg.UserID,
		Type:           msg.Type,
		Priority:       msg.Priority,
		Title:          msg.Title,
		Subject:        msg.Subject,
		Body:           msg.Body,
		Data:           msg.Data,
		CreatedAt:      msg.CreatedAt,
	}
}

// WebhookSink posts signed payloads to the user's endpoint URL.
type WebhookSink struct {
	sender   *webhook.Sender
	breakers *webhook.Breakers
	cfg      WebhookConfig
}

func NewWebhookSink(sender *webhook.Sender, cfg WebhookConfig) *WebhookSink {
	return &WebhookSink{
		sender:   sender,
		breakers: webhook.NewBreakers(cfg.Breaker),
		cfg:      cfg,
	}
}

func (s *WebhookSink) Deliver(ctx context.Context, msg notifications.Message, destination string) error {
	return post(ctx, s.sender, destination, payloadFrom(msg), msg.AttemptID, s.cfg.Secret, s.cfg.Timeout, s.breakers.For(destination))
}

// post makes one signed delivery. The attempt id is the delivery id, so
// receivers can drop retried duplicates.
func post(ctx context.Context, sender *webhook.Sender, url string, body any, attemptID, secret string, timeout time.Duration, breaker *webhook.CircuitBreaker) error {
	opts := []webhook.SendOption{
		webhook.WithTimeout(timeout),
		webhook.WithDeliveryID(attemptID),
		webhook.WithBreaker(breaker),
	}
	if secret != "" {
		opts = append(opts, webhook.WithSignature(secret))
	}

	res, err := sender.Send(ctx, url, body, opts...)
	if err == nil {
		return nil
	}
	if webhook.IsPermanent(err) {
		return notifications.Permanent(err)
	}
	return notifications.Transient(err, res.RetryAfter)
}
