package notifications

import (
	"context"
	"sync"
	"time"
)

// Message is a rendered notification addressed to one channel.
type Message struct {
	NotificationID string         `json:"notification_id"`
	AttemptID      string         `json:"attempt_id"`
	UserID         string         `json:"user_id"`
	Type           Type           `json:"type"`
	Priority       Priority       `json:"priority"`
	Channel        Channel        `json:"channel"`
	Title          string         `json:"title"`
	Subject        string         `json:"subject"`
	Body           string         `json:"body"`
	Data           map[string]any `json:"data,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Sink delivers messages over one channel. Returning a *DeliveryError
// (see Transient and Permanent) controls retries; any other error is
// treated as transient.
type Sink interface {
	Deliver(ctx context.Context, msg Message, destination string) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, msg Message, destination string) error

func (f SinkFunc) Deliver(ctx context.Context, msg Message, destination string) error {
	return f(ctx, msg, destination)
}

// AddressResolver maps a user and channel to a destination: an email
// address, a phone number, a device token or a webhook URL. It returns
// ErrNoDestination when the user has none.
type AddressResolver interface {
	Address(ctx context.Context, userID string, ch Channel) (string, error)
}

// AddressResolverFunc adapts a function to AddressResolver.
type AddressResolverFunc func(ctx context.Context, userID string, ch Channel) (string, error)

func (f AddressResolverFunc) Address(ctx context.Context, userID string, ch Channel) (string, error) {
	return f(ctx, userID, ch)
}

// AddressBook is an in-memory AddressResolver.
type AddressBook struct {
	mu    sync.RWMutex
	addrs map[string]map[Channel]string
}

// NewAddressBook creates an empty address book.
func NewAddressBook() *AddressBook {
	return &AddressBook{addrs: make(map[string]map[Channel]string)}
}

// Set stores the destination for userID on ch. An empty address removes it.
func (b *AddressBook) Set(userID string, ch Channel, address string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if address == "" {
		delete(b.addrs[userID], ch)
		return
	}
	if b.addrs[userID] == nil {
		b.addrs[userID] = make(map[Channel]string)
	}
	b.addrs[userID][ch] = address
}

func (b *AddressBook) Address(_ context.Context, userID string, ch Channel) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if addr, ok := b.addrs[userID][ch]; ok {
		return addr, nil
	}
	return "", ErrNoDestination
}
