package sinks

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/webhook"
)

var e164 = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

// SMSRequest is the body posted to the SMS gateway.
type SMSRequest struct {
	To        string `json:"to"`
	From      string `json:"from,omitempty"`
	Body      string `json:"body"`
	Reference string `json:"reference"`
}

// SMSSink hands text messages to an HTTP gateway.
type SMSSink struct {
	sender  *webhook.Sender
	breaker *webhook.CircuitBreaker
	cfg     SMSConfig
}

func NewSMSSink(sender *webhook.Sender, cfg SMSConfig) *SMSSink {
	return &SMSSink{
		sender:  sender,
		breaker: webhook.NewCircuitBreaker(cfg.Breaker),
		cfg:     cfg,
	}
}

func (s *SMSSink) Deliver(ctx context.Context, msg notifications.Message, destination string) error {
	if s.cfg.GatewayURL == "" {
		return notifications.Permanent(ErrNoGateway)
	}
	to := strings.ReplaceAll(strings.TrimSpace(destination), " ", "")
	if !e164.MatchString(to) {
		return notifications.Permanent(fmt.Errorf("%w: %q", ErrInvalidPhoneNumber, destination))
	}
	body := firstNonEmpty(msg.Body, msg.Subject, msg.Title)
	if body == "" {
		return notifications.Permanent(ErrEmptyMessage)
	}

	req := SMSRequest{To: to, From: s.cfg.From, Body: body, Reference: msg.AttemptID}
	return post(ctx, s.sender, s.cfg.GatewayURL, req, msg.AttemptID, s.cfg.Secret, s.cfg.Timeout, s.breaker)
}
