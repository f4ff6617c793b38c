package notifications

import (
	"context"
	"sync"
)

// InAppSink is the real-time in-app channel. The stored notification is
// the in-app record; the sink only pushes it to live subscribers such as
// SSE connections. Slow subscribers lose messages instead of blocking
// delivery.
type InAppSink struct {
	mu     sync.RWMutex
	subs   map[string]map[*inAppSubscriber]struct{}
	buffer int
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

type inAppSubscriber struct {
	mu     sync.RWMutex
	ch     chan Message
	closed bool
}

func (s *inAppSubscriber) send(msg Message) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}

func (s *inAppSubscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		close(s.ch)
		s.closed = true
	}
}

// NewInAppSink creates a sink whose subscribers buffer up to buffer
// messages each.
func NewInAppSink(buffer int) *InAppSink {
	return &InAppSink{
		subs:   make(map[string]map[*inAppSubscriber]struct{}),
		buffer: max(buffer, 1),
		done:   make(chan struct{}),
	}
}

// Subscribe streams userID's in-app messages until ctx is done. The
// returned channel is closed when the subscription ends.
func (s *InAppSink) Subscribe(ctx context.Context, userID string) <-chan Message {
	sub := &inAppSubscriber{ch: make(chan Message, s.buffer)}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		sub.close()
		return sub.ch
	}
	if s.subs[userID] == nil {
		s.subs[userID] = make(map[*inAppSubscriber]struct{})
	}
	s.subs[userID][sub] = struct{}{}

	if ctx.Done() != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			select {
			case <-ctx.Done():
				s.unsubscribe(userID, sub)
			case <-s.done:
			}
		}()
	}
	return sub.ch
}

// Deliver pushes msg to every live subscriber of destination, the user id.
// It never fails: users without a live connection read the stored
// notification later.
func (s *InAppSink) Deliver(_ context.Context, msg Message, destination string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}
	for sub := range s.subs[destination] {
		sub.send(msg)
	}
	return nil
}

// Subscribers returns the number of live subscriptions for userID.
func (s *InAppSink) Subscribers(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs[userID])
}

// Close ends every subscription and waits for their context watchers to
// exit. Safe to call more than once.
func (s *InAppSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for _, set := range s.subs {
		for sub := range set {
			sub.close()
		}
	}
	clear(s.subs)
	close(s.done)
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

func (s *InAppSink) unsubscribe(userID string, sub *inAppSubscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.subs[userID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(s.subs, userID)
		}
	}
	sub.close()
}
