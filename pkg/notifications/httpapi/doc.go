// Package httpapi exposes the notification engine over HTTP with chi.
//
// Producers submit notifications for any recipient. Every other route,
// cancel included, acts on the resolved user's own notifications. The
// acting user comes from a UserResolver, by default the X-User-ID header
// set by an upstream auth proxy.
//
//	POST   /                 submit an intent, 202 with the receipt
//	POST   /{id}/cancel      cancel undelivered channels
//	GET    /                 list (limit, offset, unread, types, since, include_suppressed)
//	GET    /unread-count     badge count
//	GET    /stream           server-sent events of in-app deliveries
//	GET    /{id}             one notification with its delivery summary
//	POST   /{id}/read        mark read
//	POST   /read             mark all read
//	DELETE /{id}             delete one
//	DELETE /                 delete {"ids": [...]}
//
// Mount it under any prefix:
//
//	r := chi.NewRouter()
//	r.Mount("/v1/notifications", httpapi.New(engine, httpapi.WithStream(inApp)).Handle())
//
// Responses use the envelope {"data": ..., "meta": ..., "error": {...}}.
package httpapi
