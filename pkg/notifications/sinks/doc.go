// Package sinks adapts the transport packages to notifications.Sink.
//
// Each sink makes exactly one delivery attempt and classifies the outcome
// with notifications.Permanent or notifications.Transient; the engine owns
// retries and backoff.
//
//	engine, err := notifications.NewEngine(store,
//		notifications.WithSink(notifications.ChannelEmail, sinks.NewEmailSink(mailer, cfg.Email)),
//		notifications.WithSink(notifications.ChannelWebhook, sinks.NewWebhookSink(sender, cfg.Webhook)),
//		notifications.WithSink(notifications.ChannelSMS, sinks.NewSMSSink(sender, cfg.SMS)),
//		notifications.WithSink(notifications.ChannelPush, sinks.NewPushSink(publisher, cfg.Push)),
//	)
//
// The webhook and SMS sinks share webhook.Sender: payloads are signed with
// HMAC-SHA256 and every endpoint gets its own circuit breaker. An open
// circuit is a transient failure.
package sinks
