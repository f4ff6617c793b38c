package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// Engine turns submitted intents into per-channel deliveries.
//
// Submit runs dedup and preference resolution and stores the notification
// as queued. A single dispatch loop pops due notifications from the
// priority scheduler and the router expands them into attempts, one per
// channel. Each channel has its own worker pool; workers report outcomes
// to one collector goroutine, which persists attempt state, schedules
// retries and recomputes the aggregate status.
type Engine struct {
	store       Store
	clock       Clock
	logger      *slog.Logger
	templates   *TemplateStore
	resolver    *Resolver
	dedup       *Deduplicator
	scheduler   *Scheduler
	router      *Router
	pools       map[Channel]*pool
	sinks       map[Channel]Sink
	addresses   AddressResolver
	counter     UnreadCounter
	observer    Observer
	retry       RetryPolicy
	sendTimeout time.Duration
	resultSize  int

	locks     *keyedMutex
	retries   *retryTimers
	cancelled sync.Map // notification id -> struct{}
	inflight  sync.Map // attempt id -> struct{}

	mu        sync.Mutex
	cancel    context.CancelFunc
	results   chan result
	loopDone  chan struct{}
	collected chan struct{}
}

// NewEngine creates an engine over store. Unset collaborators default to
// in-memory implementations.
func NewEngine(store Store, opts ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, errors.New("notifications: store is required")
	}
	o := defaultEngineOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.dedupIndex == nil {
		o.dedupIndex = NewMemoryDedupIndex(0)
	}
	if o.counter == nil {
		o.counter = NewMemoryCounter()
	}
	if o.observer == nil {
		o.observer = nopObserver{}
	}

	e := &Engine{
		store:       store,
		clock:       o.clock,
		logger:      o.logger.With(logger.Component("notifications")),
		templates:   o.templates,
		resolver:    NewResolver(o.preferences, o.fallback, o.policy, o.batch, o.location, o.logger),
		dedup:       NewDeduplicator(o.dedupIndex, o.dedupWindow, o.typeWindows, o.failOpen, o.logger),
		scheduler:   NewScheduler(o.clock, o.maxPoll),
		pools:       make(map[Channel]*pool, len(Channels)),
		sinks:       o.sinks,
		addresses:   o.addresses,
		counter:     o.counter,
		observer:    o.observer,
		retry:       o.retry,
		sendTimeout: o.sendTimeout,
		resultSize:  o.results,
		locks:       newKeyedMutex(),
		retries:     newRetryTimers(),
	}
	for _, ch := range Channels {
		e.pools[ch] = newPool(ch, o.poolSizes[ch], e.process)
	}
	e.router = &Router{store: store, clock: o.clock, pools: e.pools}
	return e, nil
}

// Start recovers unfinished work from the store and starts the dispatch
// loop, the channel pools and the result collector.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return ErrEngineAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.results = make(chan result, e.resultSize)
	e.loopDone = make(chan struct{})
	e.collected = make(chan struct{})
	e.retries.restart()
	for _, p := range e.pools {
		p.reset()
	}

	if err := e.recover(runCtx); err != nil {
		cancel()
		return fmt.Errorf("recover pending work: %w", err)
	}

	go e.collect(context.WithoutCancel(runCtx), e.results, e.collected)
	for _, p := range e.pools {
		p.start(runCtx)
	}
	go func() {
		defer close(e.loopDone)
		e.scheduler.Run(runCtx, e.dispatch)
	}()

	e.cancel = cancel
	e.logger.LogAttrs(ctx, slog.LevelInfo, "engine started",
		slog.Int("queued", e.scheduler.Len()),
	)
	return nil
}

// Stop halts dispatch and waits for in-flight sends to be recorded.
// Unsent work stays in the store and resumes on the next Start.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel == nil {
		return ErrEngineNotStarted
	}

	e.cancel()
	e.cancel = nil
	<-e.loopDone
	for _, p := range e.pools {
		p.wait()
	}
	close(e.results)
	<-e.collected
	e.retries.stop()

	e.logger.Info("engine stopped")
	return nil
}

// Run starts the engine and stops it when ctx is done. It fits errgroup.
func (e *Engine) Run(ctx context.Context) func() error {
	return func() error {
		if err := e.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return e.Stop()
	}
}

// Submit validates in, checks it against the dedup index, resolves
// channels and dispatch time, and stores the notification. Suppressed
// duplicates are stored for audit with suppressed attempts and a nil error.
func (e *Engine) Submit(ctx context.Context, in Intent) (Receipt, error) {
	if err := e.validate(in); err != nil {
		e.observer.ObserveSubmission(submissionRejected)
		return Receipt{}, err
	}

	now := e.clock.Now()
	n := Notification{
		ID:            uuid.NewString(),
		Type:          in.Type,
		Priority:      in.Priority,
		Title:         in.Title,
		TemplateRef:   in.TemplateRef,
		TemplateData:  in.Data,
		RecipientID:   in.RecipientID,
		CorrelationID: in.CorrelationID,
		DedupKey:      DedupKey(in.Type, in.RecipientID, in.CorrelationID),
		CreatedAt:     now,
		DispatchAt:    now,
		Status:        StatusQueued,
	}
	n = n.Clone()

	outcome, err := e.dedup.CheckAndRecord(ctx, n)
	if err != nil {
		e.observer.ObserveSubmission(submissionRejected)
		return Receipt{}, fmt.Errorf("check dedup index: %w", err)
	}
	if outcome == OutcomeSuppressed {
		return e.suppress(ctx, n)
	}

	res, err := e.resolver.Resolve(ctx, n.RecipientID, n.Type, n.Priority, now)
	if err != nil {
		e.dedup.Release(ctx, n)
		e.observer.ObserveSubmission(submissionRejected)
		return Receipt{}, fmt.Errorf("resolve preference: %w", err)
	}
	n.Channels = res.Channels
	n.DispatchAt = res.DispatchAt
	if res.Channels.Empty() {
		n.Status = StatusSkipped
	}

	if err := e.store.Save(ctx, n); err != nil {
		e.dedup.Release(ctx, n)
		e.observer.ObserveSubmission(submissionRejected)
		return Receipt{}, fmt.Errorf("save notification: %w", err)
	}
	e.adjustUnread(ctx, n.RecipientID, unreadDelta(false, n.CountsAsUnread()))

	receipt := Receipt{
		NotificationID: n.ID,
		Outcome:        OutcomeAccepted,
		Status:         n.Status,
		Channels:       n.Channels,
		DispatchAt:     n.DispatchAt,
	}
	if n.Status == StatusSkipped {
		e.observer.ObserveSubmission(submissionSkipped)
		e.logger.LogAttrs(ctx, slog.LevelDebug, "notification skipped, no eligible channel",
			logger.NotificationID(n.ID),
			logger.UserID(n.RecipientID),
			slog.String("frequency", string(res.Frequency)),
		)
		return receipt, nil
	}

	e.scheduler.Push(n)
	e.observer.ObserveSubmission(string(OutcomeAccepted))
	e.observer.ObserveQueueDepth(e.scheduler.Len())
	e.logger.LogAttrs(ctx, slog.LevelDebug, "notification queued",
		logger.NotificationID(n.ID),
		logger.UserID(n.RecipientID),
		logger.DispatchAt(n.DispatchAt),
		slog.String("channels", n.Channels.String()),
	)
	return receipt, nil
}

func (e *Engine) validate(in Intent) error {
	switch {
	case in.RecipientID == "":
		return &ValidationError{Field: "recipient_id", Reason: "is required"}
	case in.Type == "":
		return &ValidationError{Field: "type", Reason: "is required"}
	case !in.Type.Valid():
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown type %q", in.Type)}
	case in.TemplateRef == "":
		return &ValidationError{Field: "template_ref", Reason: "is required"}
	case !in.Priority.Valid():
		return &ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %d", in.Priority)}
	case e.templates != nil && !e.templates.Has(in.TemplateRef):
		return &ValidationError{Field: "template_ref", Reason: fmt.Sprintf("unknown template %q", in.TemplateRef)}
	}
	return nil
}

// suppress stores a duplicate with one suppressed attempt per channel it
// would have used, so the suppression is auditable.
func (e *Engine) suppress(ctx context.Context, n Notification) (Receipt, error) {
	now := n.CreatedAt
	n.Status = StatusSuppressed
	if res, err := e.resolver.Resolve(ctx, n.RecipientID, n.Type, n.Priority, now); err == nil {
		n.Channels = res.Channels
	} else {
		e.logger.LogAttrs(ctx, slog.LevelWarn, "resolve channels for suppressed notification",
			logger.NotificationID(n.ID),
			logger.Error(err),
		)
	}
	if err := e.store.Save(ctx, n); err != nil {
		return Receipt{}, fmt.Errorf("save suppressed notification: %w", err)
	}

	attempts := make([]DeliveryAttempt, 0, len(Channels))
	for _, ch := range n.Channels.List() {
		attempts = append(attempts, DeliveryAttempt{
			ID:             uuid.NewString(),
			NotificationID: n.ID,
			UserID:         n.RecipientID,
			Channel:        ch,
			State:          AttemptSuppressed,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}
	if len(attempts) > 0 {
		if err := e.store.SaveAttempts(ctx, attempts...); err != nil {
			return Receipt{}, fmt.Errorf("save suppressed attempts: %w", err)
		}
	}

	e.observer.ObserveSubmission(string(OutcomeSuppressed))
	e.logger.LogAttrs(ctx, slog.LevelInfo, "duplicate notification suppressed",
		logger.NotificationID(n.ID),
		logger.UserID(n.RecipientID),
		slog.String("dedup_key", n.DedupKey),
	)
	return Receipt{
		NotificationID: n.ID,
		Outcome:        OutcomeSuppressed,
		Status:         n.Status,
		Channels:       n.Channels,
		DispatchAt:     n.DispatchAt,
	}, nil
}

// dispatch is the scheduler callback for due notifications.
func (e *Engine) dispatch(ctx context.Context, due []Scheduled) {
	for _, item := range due {
		if err := e.expand(ctx, item.ID); err != nil {
			if ctx.Err() != nil {
				return
			}
			e.logger.LogAttrs(ctx, slog.LevelError, "dispatch failed, requeueing",
				logger.NotificationID(item.ID),
				logger.Error(err),
			)
			e.requeue(ctx, item)
		}
	}
	e.observer.ObserveQueueDepth(e.scheduler.Len())
}

// requeue retries a failed dispatch after the retry policy's first delay.
// When the store is unreachable the popped entry keeps its priority and
// creation time.
func (e *Engine) requeue(ctx context.Context, item Scheduled) {
	n, err := e.store.Get(ctx, item.ID)
	if err != nil {
		n = Notification{ID: item.ID, Priority: item.Priority, CreatedAt: item.CreatedAt}
	}
	n.DispatchAt = e.clock.Now().Add(e.retry.Delay(1, 0))
	e.scheduler.Push(n)
}

// expand turns a due notification into delivery attempts. It is
// idempotent: attempts saved by an earlier expansion whose status update
// failed already belong to the pools, so only the status is settled.
func (e *Engine) expand(ctx context.Context, id string) error {
	unlock := e.locks.lock(id)
	defer unlock()

	n, err := e.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if n.Status != StatusQueued {
		return nil
	}

	existing, err := e.store.Attempts(ctx, id)
	if err != nil {
		return fmt.Errorf("load attempts: %w", err)
	}
	if len(existing) > 0 {
		return e.setStatus(ctx, n.RecipientID, id, aggregateStatus(existing))
	}
	if _, ok := e.cancelled.Load(id); ok {
		return e.setStatus(ctx, n.RecipientID, id, StatusCancelled)
	}

	if _, err := e.router.Expand(ctx, n, n.Channels); err != nil {
		return err
	}
	return e.setStatus(ctx, n.RecipientID, id, StatusDispatched)
}

// Cancel stops delivery of a notification. A queued notification is
// cancelled entirely. Once dispatched, only attempts that are pending and
// not being sent, or waiting for a retry, are cancelled; sends in flight
// are not retried if they fail. ErrNotCancellable means nothing was left
// to cancel.
func (e *Engine) Cancel(ctx context.Context, id string) error {
	unlock := e.locks.lock(id)
	defer unlock()

	n, err := e.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if n.Status.Final() {
		return ErrNotCancellable
	}

	attempts, err := e.store.Attempts(ctx, id)
	if err != nil {
		return fmt.Errorf("load attempts: %w", err)
	}
	// A queued notification with attempts was expanded but its status
	// update failed; its requeued entry settles the status later.
	if n.Status == StatusQueued && len(attempts) == 0 {
		e.scheduler.Remove(id)
		e.observer.ObserveQueueDepth(e.scheduler.Len())
		return e.setStatus(ctx, n.RecipientID, id, StatusCancelled)
	}
	now := e.clock.Now()
	var changed []DeliveryAttempt
	inFlight := false
	for i, a := range attempts {
		switch {
		case a.State == AttemptPending && e.isInFlight(a.ID):
			inFlight = true
			continue
		case a.State == AttemptPending:
		case a.Retrying():
			e.retries.cancel(a.ID)
		default:
			continue
		}
		if err := attempts[i].transition(AttemptCancelled, now); err != nil {
			return err
		}
		changed = append(changed, attempts[i])
	}
	if len(changed) == 0 && !inFlight {
		return ErrNotCancellable
	}
	e.cancelled.Store(id, struct{}{})
	if len(changed) == 0 {
		return nil
	}
	if err := e.store.SaveAttempts(ctx, changed...); err != nil {
		return fmt.Errorf("save cancelled attempts: %w", err)
	}
	for _, a := range changed {
		e.observer.ObserveAttempt(string(a.Channel), string(a.State), 0)
	}
	e.logger.LogAttrs(ctx, slog.LevelInfo, "notification cancelled",
		logger.NotificationID(id),
		slog.Int("attempts", len(changed)),
	)
	return e.setStatus(ctx, n.RecipientID, id, aggregateStatus(attempts))
}

// Get returns a notification with its delivery summary.
func (e *Engine) Get(ctx context.Context, id string) (View, error) {
	n, err := e.store.Get(ctx, id)
	if err != nil {
		return View{}, err
	}
	attempts, err := e.store.Attempts(ctx, id)
	if err != nil {
		return View{}, fmt.Errorf("load attempts: %w", err)
	}
	return View{Notification: n, Deliveries: summarize(attempts)}, nil
}

// Attempts returns the delivery attempts of a notification.
func (e *Engine) Attempts(ctx context.Context, id string) ([]DeliveryAttempt, error) {
	return e.store.Attempts(ctx, id)
}

// ListNotifications returns userID's notifications, newest first, each
// with its per-channel delivery summary.
func (e *Engine) ListNotifications(ctx context.Context, userID string, opts ListOptions) ([]View, error) {
	list, err := e.store.List(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	ids := make([]string, len(list))
	for i, n := range list {
		ids[i] = n.ID
	}
	attempts, err := e.store.AttemptsFor(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load attempts: %w", err)
	}
	views := make([]View, len(list))
	for i, n := range list {
		views[i] = View{Notification: n, Deliveries: summarize(attempts[n.ID])}
	}
	return views, nil
}

// GetUnreadCount returns the cached unread count for userID.
func (e *Engine) GetUnreadCount(ctx context.Context, userID string) (int, error) {
	return e.counter.Get(ctx, userID)
}

// MarkRead marks a notification read. Repeated calls are no-ops.
func (e *Engine) MarkRead(ctx context.Context, userID, id string) error {
	changed, err := e.store.MarkRead(ctx, userID, id, e.clock.Now())
	if err != nil {
		return err
	}
	if changed {
		e.adjustUnread(ctx, userID, -1)
		e.observer.ObserveReadState("mark_read", 1)
	}
	return nil
}

// MarkAllRead marks every notification of userID read and returns how many
// were unread.
func (e *Engine) MarkAllRead(ctx context.Context, userID string) (int, error) {
	n, err := e.store.MarkAllRead(ctx, userID, e.clock.Now())
	if err != nil {
		return 0, err
	}
	e.adjustUnread(ctx, userID, -n)
	e.observer.ObserveReadState("mark_all_read", n)
	return n, nil
}

// Delete removes notifications of userID with their attempts.
func (e *Engine) Delete(ctx context.Context, userID string, ids ...string) error {
	unread, err := e.store.Delete(ctx, userID, ids...)
	if err != nil {
		return err
	}
	for _, id := range ids {
		e.scheduler.Remove(id)
	}
	e.adjustUnread(ctx, userID, -unread)
	e.observer.ObserveReadState("delete", unread)
	return nil
}

// setStatus must be called with the notification's lock held.
func (e *Engine) setStatus(ctx context.Context, userID, id string, status Status) error {
	delta, err := e.store.SetStatus(ctx, id, status)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	e.adjustUnread(ctx, userID, delta)
	if status.Final() {
		e.cancelled.Delete(id)
	}
	return nil
}

// adjustUnread applies delta to the counter. The store stays authoritative
// and counters are primed from it on start, so failures are only logged.
func (e *Engine) adjustUnread(ctx context.Context, userID string, delta int) {
	if delta == 0 {
		return
	}
	if err := e.counter.Add(ctx, userID, delta); err != nil {
		e.logger.LogAttrs(ctx, slog.LevelWarn, "failed to update unread counter",
			logger.UserID(userID),
			slog.Int("delta", delta),
			logger.Error(err),
		)
	}
}

func (e *Engine) isInFlight(attemptID string) bool {
	_, ok := e.inflight.Load(attemptID)
	return ok
}

// recover primes unread counters, re-queues stored queued notifications
// and re-enqueues attempts that are pending or waiting for a retry.
func (e *Engine) recover(ctx context.Context) error {
	counts, err := e.store.UnreadCounts(ctx)
	if err != nil {
		return fmt.Errorf("count unread: %w", err)
	}
	for userID, n := range counts {
		if err := e.counter.Reset(ctx, userID, n); err != nil {
			return fmt.Errorf("prime unread counter: %w", err)
		}
	}

	queued, attempts, err := e.store.QueryPending(ctx)
	if err != nil {
		return fmt.Errorf("query pending: %w", err)
	}
	requeued := 0
	for _, n := range queued {
		existing, err := e.store.Attempts(ctx, n.ID)
		if err != nil {
			return fmt.Errorf("load attempts for %s: %w", n.ID, err)
		}
		if len(existing) > 0 {
			// Expanded before the stop; pending attempts are resumed below.
			if err := e.setStatus(ctx, n.RecipientID, n.ID, aggregateStatus(existing)); err != nil {
				return err
			}
			continue
		}
		e.scheduler.Push(n)
		requeued++
	}

	parents := make(map[string]Notification)
	now := e.clock.Now()
	resumed := 0
	for _, a := range attempts {
		n, ok := parents[a.NotificationID]
		if !ok {
			n, err = e.store.Get(ctx, a.NotificationID)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("load notification %s: %w", a.NotificationID, err)
			}
			parents[n.ID] = n
		}
		t := task{notification: n, attempt: a}
		if a.Retrying() {
			e.scheduleRetry(t, a.NextRetryAt.Sub(now))
		} else {
			e.pools[a.Channel].enqueue(t)
		}
		resumed++
	}

	if requeued > 0 || resumed > 0 {
		e.logger.LogAttrs(ctx, slog.LevelInfo, "recovered pending work",
			slog.Int("notifications", requeued),
			slog.Int("attempts", resumed),
		)
	}
	e.observer.ObserveQueueDepth(e.scheduler.Len())
	return nil
}
