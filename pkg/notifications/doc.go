// Package notifications is a notification distribution engine: it turns one
// logical event into zero or more deliveries across in-app, email, push,
// SMS and webhook channels.
//
// # Pipeline
//
// A submitted Intent passes through:
//
//   - Deduplicator: suppresses repeats of the same (type, recipient,
//     correlation id) inside a per-type window.
//   - Resolver: applies the user's Preference (enabled channels, frequency,
//     quiet hours) and the ChannelPolicy table of forced channels, and
//     computes the dispatch time.
//   - Scheduler: a priority queue ordered by dispatch time, priority and
//     creation time, drained by a single dispatch loop.
//   - Router: persists one pending DeliveryAttempt per channel and hands
//     each to that channel's worker pool.
//   - Workers: render the template, resolve the destination and call the
//     channel's Sink, retrying transient failures with exponential backoff.
//
// Channel pools are independent, so a failing email provider never delays
// in-app or push delivery of the same notification.
//
// # Basic Usage
//
//	templates, _ := notifications.LoadTemplatesFile("templates.yaml")
//	inApp := notifications.NewInAppSink(16)
//
//	engine, err := notifications.NewEngine(notifications.NewMemoryStore(),
//	    notifications.WithTemplates(templates),
//	    notifications.WithSink(notifications.ChannelInApp, inApp),
//	    notifications.WithSink(notifications.ChannelEmail, emailSink),
//	)
//	if err != nil {
//	    return err
//	}
//	g.Go(engine.Run(ctx))
//
//	receipt, err := engine.Submit(ctx, notifications.Intent{
//	    Type:          notifications.TypeTask,
//	    Priority:      notifications.PriorityNormal,
//	    Title:         "Task assigned",
//	    TemplateRef:   "task.assigned",
//	    Data:          map[string]any{"task": "Ship v2"},
//	    RecipientID:   "user-1",
//	    CorrelationID: "task-42:assigned",
//	})
//
// # Sinks
//
// Sinks return Transient or Permanent errors to steer retries. Any other
// error counts as transient and is bounded by the retry ceiling:
//
//	notifications.SinkFunc(func(ctx context.Context, msg notifications.Message, to string) error {
//	    if err := client.Send(ctx, to, msg.Subject, msg.Body); err != nil {
//	        return notifications.Transient(err, 0)
//	    }
//	    return nil
//	})
//
// # Persistence
//
// Every state change goes through the Store interface. MemoryStore serves
// tests and single-node setups; pgstore provides PostgreSQL. After a
// restart, Start re-queues stored queued notifications, re-enqueues pending
// attempts and primes unread counters from the store.
package notifications
