// Package logger builds the structured slog loggers used across notifykit.
//
// New returns a *slog.Logger configured through functional options. The
// handler is either slog's text handler (development) or JSON handler
// (staging, production) and is wrapped with a decorator that injects
// attributes extracted from the context on every record.
//
// Attribute helpers such as NotificationID, Channel and Attempt keep key
// names consistent between the engine, the sinks and the HTTP layer:
//
//	log := logger.New(logger.WithEnvironment("production", "notifyd"))
//	log.InfoContext(ctx, "delivery sent",
//	    logger.NotificationID(n.ID),
//	    logger.Channel("email"),
//	    logger.Attempt(2),
//	)
//
// Error returns an empty attribute for a nil error, so it can be passed
// unconditionally.
package logger
