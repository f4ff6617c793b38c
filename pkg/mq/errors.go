package mq

import "errors"

var (
	ErrEmptyURL       = errors.New("mq: empty amqp url")
	ErrNotConnected   = errors.New("mq: publisher is not connected")
	ErrPublishFailed  = errors.New("mq: publish failed")
	ErrInvalidMessage = errors.New("mq: invalid message")
)
