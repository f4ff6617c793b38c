package sinks

import (
	"context"
	"errors"
	"strings"

	"github.com/dmitrymomot/notifykit/pkg/email"
	"github.com/dmitrymomot/notifykit/pkg/email/templates"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// EmailSink renders the message into the HTML layout and sends it through
// an email.EmailSender, Postmark in production.
type EmailSink struct {
	sender email.EmailSender
	cfg    EmailConfig
}

func NewEmailSink(sender email.EmailSender, cfg EmailConfig) *EmailSink {
	return &EmailSink{sender: sender, cfg: cfg}
}

func (s *EmailSink) Deliver(ctx context.Context, msg notifications.Message, destination string) error {
	subject := firstNonEmpty(msg.Subject, msg.Title)
	html, err := templates.Render(ctx, templates.Layout(templates.LayoutProps{
		Title:   subject,
		Body:    msg.Body,
		Product: s.cfg.Product,
		Footer:  s.cfg.Footer,
	}))
	if err != nil {
		return notifications.Permanent(err)
	}

	err = s.sender.SendEmail(ctx, email.SendEmailParams{
		SendTo:   destination,
		Subject:  subject,
		BodyHTML: html,
		BodyText: msg.Body,
		Tag:      string(msg.Type),
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, email.ErrInvalidRecipient), errors.Is(err, email.ErrInvalidParams):
		return notifications.Permanent(err)
	default:
		return notifications.Transient(err, 0)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
