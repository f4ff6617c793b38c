package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// result is a worker's report of one sink call.
type result struct {
	task    task
	err     error
	latency time.Duration
}

// process runs one attempt. It is the handler of every channel pool.
func (e *Engine) process(ctx context.Context, t task) {
	a, ok := e.claim(ctx, t.attempt)
	if !ok {
		return
	}
	t.attempt = a
	res := e.send(ctx, t)
	e.results <- res
}

// claim re-reads the attempt under the notification lock and marks it in
// flight. Attempts that were cancelled, deleted, already sent or claimed
// by another worker are dropped.
func (e *Engine) claim(ctx context.Context, a DeliveryAttempt) (DeliveryAttempt, bool) {
	unlock := e.locks.lock(a.NotificationID)
	defer unlock()

	if _, ok := e.cancelled.Load(a.NotificationID); ok {
		return a, false
	}
	if e.isInFlight(a.ID) {
		return a, false
	}
	stored, err := e.store.Attempts(ctx, a.NotificationID)
	if err != nil {
		e.logger.LogAttrs(ctx, slog.LevelError, "load attempt before send",
			logger.AttemptID(a.ID),
			logger.Error(err),
		)
		// Keep the attempt alive; it stays pending in the store.
		e.scheduleRetry(task{attempt: a}, e.retry.Delay(1, 0))
		return a, false
	}
	var cur *DeliveryAttempt
	for i := range stored {
		if stored[i].ID == a.ID {
			cur = &stored[i]
			break
		}
	}
	if cur == nil || (cur.State != AttemptPending && !cur.Retrying()) {
		return a, false
	}

	if cur.Retrying() {
		if err := cur.transition(AttemptPending, e.clock.Now()); err != nil {
			return a, false
		}
		if err := e.store.SaveAttempts(ctx, *cur); err != nil {
			e.logger.LogAttrs(ctx, slog.LevelWarn, "persist retry start",
				logger.AttemptID(a.ID),
				logger.Error(err),
			)
		}
	}
	e.inflight.Store(a.ID, struct{}{})
	return *cur, true
}

// send renders, addresses and delivers one attempt. Sink calls outlive
// engine shutdown up to the send timeout.
func (e *Engine) send(ctx context.Context, t task) (res result) {
	res.task = t
	res.task.attempt.AttemptCount++
	a := res.task.attempt
	n := t.notification

	start := time.Now()
	defer func() {
		res.latency = time.Since(start)
		if r := recover(); r != nil {
			res.err = fmt.Errorf("sink panicked: %v", r)
		}
	}()

	sink, ok := e.sinks[a.Channel]
	if !ok {
		res.err = ErrNoSink
		return res
	}

	rendered := Rendered{Subject: n.Title}
	if e.templates != nil {
		r, err := e.templates.Render(n.TemplateRef, n.TemplateData, a.Channel)
		if err != nil {
			res.err = err
			return res
		}
		rendered = r
		if rendered.Subject == "" {
			rendered.Subject = n.Title
		}
	}

	dest, err := e.destination(ctx, n.RecipientID, a.Channel)
	if err != nil {
		res.err = err
		return res
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.sendTimeout)
	defer cancel()
	res.err = sink.Deliver(sendCtx, Message{
		NotificationID: n.ID,
		AttemptID:      a.ID,
		UserID:         n.RecipientID,
		Type:           n.Type,
		Priority:       n.Priority,
		Channel:        a.Channel,
		Title:          n.Title,
		Subject:        rendered.Subject,
		Body:           rendered.Body,
		Data:           n.TemplateData,
		CreatedAt:      n.CreatedAt,
	}, dest)
	return res
}

// destination resolves the address for ch. In-app falls back to the user id.
func (e *Engine) destination(ctx context.Context, userID string, ch Channel) (string, error) {
	if e.addresses != nil {
		addr, err := e.addresses.Address(ctx, userID, ch)
		switch {
		case err == nil && addr != "":
			return addr, nil
		case err != nil && !errors.Is(err, ErrNoDestination):
			return "", fmt.Errorf("resolve %s address: %w", ch, err)
		}
	}
	if ch == ChannelInApp {
		return userID, nil
	}
	return "", ErrNoDestination
}

// collect is the single consumer of worker results.
func (e *Engine) collect(ctx context.Context, results <-chan result, done chan<- struct{}) {
	defer close(done)
	for res := range results {
		e.apply(ctx, res)
	}
}

// apply records a sink outcome: sent, terminal failure, or failure with a
// scheduled retry.
func (e *Engine) apply(ctx context.Context, res result) {
	a := res.task.attempt
	unlock := e.locks.lock(a.NotificationID)
	defer unlock()
	defer e.inflight.Delete(a.ID)

	now := e.clock.Now()
	class, hint := ClassifyError(res.err)
	_, cancelled := e.cancelled.Load(a.NotificationID)

	var retryIn time.Duration
	var err error
	switch class {
	case ClassSuccess:
		a.LastError = ""
		err = a.transition(AttemptSent, now)
	case ClassPermanent:
		a.LastError = res.err.Error()
		err = a.transition(AttemptFailed, now)
	default:
		a.LastError = res.err.Error()
		if err = a.transition(AttemptFailed, now); err != nil {
			break
		}
		switch {
		case cancelled:
			a.NextRetryAt = &now
			err = a.transition(AttemptCancelled, now)
		case !e.retry.Exhausted(a.AttemptCount):
			retryIn = e.retry.Delay(a.AttemptCount, hint)
			at := now.Add(retryIn)
			a.NextRetryAt = &at
		}
	}
	if err != nil {
		e.logger.LogAttrs(ctx, slog.LevelError, "invalid attempt transition",
			logger.AttemptID(a.ID),
			logger.Error(err),
		)
		return
	}

	if err := e.store.SaveAttempts(ctx, a); err != nil {
		e.logger.LogAttrs(ctx, slog.LevelError, "failed to persist attempt",
			logger.AttemptID(a.ID),
			logger.Error(err),
		)
	}
	e.observer.ObserveAttempt(string(a.Channel), string(a.State), res.latency)
	e.logAttempt(ctx, a, res)

	if a.Retrying() {
		res.task.attempt = a
		e.scheduleRetry(res.task, retryIn)
		return
	}
	e.refreshStatus(ctx, a)
}

func (e *Engine) logAttempt(ctx context.Context, a DeliveryAttempt, res result) {
	attrs := []slog.Attr{
		logger.NotificationID(a.NotificationID),
		logger.AttemptID(a.ID),
		logger.UserID(a.UserID),
		logger.Channel(string(a.Channel)),
		logger.Attempt(a.AttemptCount),
		logger.Duration(res.latency),
	}
	switch {
	case a.State == AttemptSent:
		e.logger.LogAttrs(ctx, slog.LevelDebug, "notification delivered", attrs...)
	case a.Retrying():
		attrs = append(attrs, slog.Time("next_retry_at", *a.NextRetryAt), logger.Error(res.err))
		e.logger.LogAttrs(ctx, slog.LevelWarn, "delivery failed, will retry", attrs...)
	case a.State == AttemptCancelled:
		e.logger.LogAttrs(ctx, slog.LevelInfo, "delivery failed after cancellation", attrs...)
	default:
		attrs = append(attrs, logger.Error(res.err))
		msg := "delivery failed permanently"
		var te *TemplateError
		if errors.As(res.err, &te) {
			msg = "template rendering failed"
		}
		e.logger.LogAttrs(ctx, slog.LevelError, msg, attrs...)
	}
}

// refreshStatus recomputes the aggregate status from stored attempts. Must
// be called with the notification's lock held.
func (e *Engine) refreshStatus(ctx context.Context, a DeliveryAttempt) {
	attempts, err := e.store.Attempts(ctx, a.NotificationID)
	if err != nil || len(attempts) == 0 {
		return
	}
	if err := e.setStatus(ctx, a.UserID, a.NotificationID, aggregateStatus(attempts)); err != nil && !errors.Is(err, ErrNotFound) {
		e.logger.LogAttrs(ctx, slog.LevelError, "failed to update notification status",
			logger.NotificationID(a.NotificationID),
			logger.Error(err),
		)
	}
}

// scheduleRetry re-enqueues t after delay. The task is re-read from the
// store before sending, so a stale snapshot is harmless.
func (e *Engine) scheduleRetry(t task, delay time.Duration) {
	e.retries.schedule(t.attempt.ID, delay, func() {
		if t.notification.ID == "" {
			n, err := e.store.Get(context.Background(), t.attempt.NotificationID)
			if err != nil {
				return
			}
			t.notification = n
		}
		e.pools[t.attempt.Channel].enqueue(t)
	})
}
