package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"
)

// Postmark error codes that mean the recipient can never be reached.
// https://postmarkapp.com/developer/api/overview#error-codes
var permanentPostmarkCodes = map[int64]bool{
	300: true, // invalid email request
	406: true, // inactive recipient
	409: true, // JSON required
	422: true, // invalid JSON
}

type postmarkClient struct {
	client *postmark.Client
	config Config
}

// NewPostmarkClient creates a Postmark-backed email sender.
func NewPostmarkClient(cfg Config) (EmailSender, error) {
	if !cfg.PostmarkEnabled() {
		return nil, fmt.Errorf("%w: Postmark server and account tokens are required", ErrInvalidConfig)
	}
	if !emailRegex.MatchString(cfg.SenderEmail) {
		return nil, fmt.Errorf("%w: SenderEmail must be a valid email address", ErrInvalidConfig)
	}
	if !emailRegex.MatchString(cfg.SupportEmail) {
		return nil, fmt.Errorf("%w: SupportEmail must be a valid email address", ErrInvalidConfig)
	}

	return &postmarkClient{
		client: postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		config: cfg,
	}, nil
}

// NewSender returns the Postmark client when tokens are configured and a
// DevSender writing to cfg.DevOutputDir otherwise.
func NewSender(cfg Config) (EmailSender, error) {
	if cfg.PostmarkEnabled() {
		return NewPostmarkClient(cfg)
	}
	return NewDevSender(cfg.DevOutputDir), nil
}

func (c *postmarkClient) SendEmail(ctx context.Context, params SendEmailParams) error {
	if err := params.Validate(); err != nil {
		return err
	}

	resp, err := c.client.SendEmail(ctx, postmark.Email{
		From:       c.config.SenderEmail,
		ReplyTo:    c.config.SupportEmail,
		To:         params.SendTo,
		Subject:    params.Subject,
		Tag:        params.Tag,
		HTMLBody:   params.BodyHTML,
		TextBody:   params.BodyText,
		TrackOpens: true,
		TrackLinks: "HtmlOnly",
	})
	if err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}
	return classifyResponse(int64(resp.ErrorCode), resp.Message)
}

func classifyResponse(code int64, message string) error {
	if code == 0 {
		return nil
	}
	apiErr := fmt.Errorf("postmark error: %d - %s", code, message)
	if permanentPostmarkCodes[code] {
		return errors.Join(ErrInvalidRecipient, apiErr)
	}
	return errors.Join(ErrFailedToSendEmail, apiErr)
}
