package sinks

import (
	"context"
	"errors"

	"github.com/dmitrymomot/notifykit/pkg/mq"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// Publisher is satisfied by *mq.Publisher.
type Publisher interface {
	Publish(ctx context.Context, routingKey, messageID string, payload any) error
}

// PushMessage is published for the push gateway consumer.
type PushMessage struct {
	DeviceToken string `json:"device_token"`
	Payload
}

// PushSink publishes push notifications to RabbitMQ; a separate gateway
// consumer talks to APNs and FCM.
type PushSink struct {
	publisher Publisher
	cfg       PushConfig
}

func NewPushSink(publisher Publisher, cfg PushConfig) *PushSink {
	return &PushSink{publisher: publisher, cfg: cfg}
}

func (s *PushSink) Deliver(ctx context.Context, msg notifications.Message, destination string) error {
	err := s.publisher.Publish(ctx, s.cfg.RoutingPrefix+string(msg.Type), msg.AttemptID, PushMessage{
		DeviceToken: destination,
		Payload:     payloadFrom(msg),
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mq.ErrInvalidMessage):
		return notifications.Permanent(err)
	default:
		return notifications.Transient(err, 0)
	}
}
