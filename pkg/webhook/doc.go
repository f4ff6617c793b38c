// Package webhook performs single signed HTTP POST deliveries.
//
// Sender.Send makes exactly one attempt and reports what happened in a
// Result: status code, duration, and any Retry-After hint the endpoint
// returned. Retrying is left to the caller, which in notifyd is the
// delivery worker pool with its own backoff policy. Errors wrap either
// ErrPermanentFailure or ErrTemporaryFailure so callers can classify
// them with errors.Is.
//
//	sender := webhook.NewSender()
//	res, err := sender.Send(ctx, "https://hooks.example.com/notify", payload,
//		webhook.WithSignature(secret),
//		webhook.WithDeliveryID(attemptID),
//		webhook.WithBreaker(breakers.For(url)),
//	)
//
// Signed requests carry X-Notify-Signature, X-Notify-Timestamp and
// X-Notify-ID. The signature is hex(HMAC-SHA256(secret, timestamp + "." +
// body)); receivers verify it with VerifySignature.
//
// CircuitBreaker stops hammering an endpoint after repeated failures.
// Breakers keeps one breaker per endpoint URL.
package webhook
