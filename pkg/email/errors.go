package email

import "errors"

var (
	ErrFailedToSendEmail = errors.New("email: failed to send email")
	ErrInvalidRecipient  = errors.New("email: recipient rejected")
	ErrInvalidParams     = errors.New("email: invalid params")
	ErrInvalidConfig     = errors.New("email: invalid config")
)
