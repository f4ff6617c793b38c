package sinks

import "errors"

var (
	ErrInvalidPhoneNumber = errors.New("sinks: invalid phone number")
	ErrNoGateway          = errors.New("sinks: sms gateway url is not configured")
	ErrEmptyMessage       = errors.New("sinks: message has no body")
)
